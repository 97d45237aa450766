package core

import (
	"strings"
	"time"
)

const (
	KindClosing    Kind = "closing"
	KindWithdrawal Kind = "withdrawal"
	KindDeposit    Kind = "deposit"
	KindSpending   Kind = "spending"
)

// DefaultCategory is assigned when a spending submission omits the category.
const DefaultCategory = "General"

type (
	// Kind is the closed enumeration of transaction types. Deposit is
	// accepted by the schema but has no recording pathway yet.
	Kind string

	// Person is a named actor holding withdrawn cash. Created lazily on
	// first withdrawal, never deleted. Balance never goes negative.
	Person struct {
		ID        int64
		Name      string
		Balance   Money
		CreatedAt time.Time
		UpdatedAt time.Time
	}

	// Transaction is one immutable cash event from the append-only log.
	Transaction struct {
		ID            int64
		TransactionID string
		Kind          Kind
		PersonID      *int64
		PersonName    string // resolved for display, empty for closings
		PhotoRef      string
		Amount        Money
		Counts        DenominationCounts // closing only
		Recipient     string             // withdrawal only
		Reason        string             // withdrawal only
		Description   string             // spending only
		Category      string             // spending only
		CreatedAt     time.Time
	}

	// TillBalance is the single running aggregate of cash in the drawer.
	TillBalance struct {
		Total     Money
		UpdatedAt time.Time
		UpdatedBy string // person behind the last closing/withdrawal, informational
	}

	// Closing is a submitted physical recount of the till.
	Closing struct {
		PersonName string
		Counts     DenominationCounts
		PhotoRef   string
	}

	// Withdrawal moves cash from the till into a person's custody.
	Withdrawal struct {
		Recipient string
		Amount    Money
		Reason    string
		PhotoRef  string
	}

	// Spending consumes previously withdrawn cash.
	Spending struct {
		PersonName  string
		Amount      Money
		Description string
		Category    string
		PhotoRef    string
	}
)

// Valid reports whether k is one of the four recognized kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindClosing, KindWithdrawal, KindDeposit, KindSpending:
		return true
	}
	return false
}

func (c Closing) Validate() error {
	if strings.TrimSpace(c.PersonName) == "" {
		return &ValidationError{Field: "person_name", Reason: "cannot be empty"}
	}
	if strings.TrimSpace(c.PhotoRef) == "" {
		return &ValidationError{Field: "photo_ref", Reason: "cannot be empty"}
	}
	return c.Counts.Validate()
}

func (w Withdrawal) Validate() error {
	if strings.TrimSpace(w.Recipient) == "" {
		return &ValidationError{Field: "recipient_name", Reason: "cannot be empty"}
	}
	if !w.Amount.Positive() {
		return &ValidationError{Field: "amount", Reason: "must be greater than zero"}
	}
	if strings.TrimSpace(w.Reason) == "" {
		return &ValidationError{Field: "reason", Reason: "cannot be empty"}
	}
	if strings.TrimSpace(w.PhotoRef) == "" {
		return &ValidationError{Field: "photo_ref", Reason: "cannot be empty"}
	}
	return nil
}

func (s Spending) Validate() error {
	if strings.TrimSpace(s.PersonName) == "" {
		return &ValidationError{Field: "person_name", Reason: "cannot be empty"}
	}
	if !s.Amount.Positive() {
		return &ValidationError{Field: "amount", Reason: "must be greater than zero"}
	}
	if strings.TrimSpace(s.Description) == "" {
		return &ValidationError{Field: "description", Reason: "cannot be empty"}
	}
	if strings.TrimSpace(s.PhotoRef) == "" {
		return &ValidationError{Field: "photo_ref", Reason: "cannot be empty"}
	}
	return nil
}
