package core

import (
	"errors"
	"fmt"
)

var (
	ErrPersonNotFound       = errors.New("person not found")
	ErrDuplicatePerson      = errors.New("person already exists")
	ErrDuplicateTransaction = errors.New("transaction id already exists")
	ErrUnknownKind          = errors.New("unknown transaction kind")
)

// ValidationError reports a missing or malformed request field. Always
// recoverable by the caller correcting the field and resubmitting.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// InsufficientFundsError is returned when a spend exceeds the person's cash
// on hand. It carries the available balance so the caller can correct the
// amount.
type InsufficientFundsError struct {
	Available Money
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient cash balance: %s available", e.Available)
}
