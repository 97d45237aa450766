// Package core holds the ledger domain: money, denominations, transaction
// kinds and the validation rules applied before anything is persisted.
//
// All monetary values are carried as int64 cents. Conversion to and from
// dollars happens only at the HTTP boundary, so ledger arithmetic is exact.
package core

import (
	"fmt"
	"math"
	"strconv"
)

// Money is a monetary amount in cents.
type Money struct {
	Cents int64
}

// CentsFromDollars converts a dollar amount received from a client into
// cents, rounding half away from zero on fractions of a cent. This is the
// only place float money enters the system.
func CentsFromDollars(dollars float64) int64 {
	return int64(math.Round(dollars * 100))
}

// Dollars returns the dollar value as a float64 for responses and display.
// Use Cents for any calculation.
func (m Money) Dollars() float64 {
	return float64(m.Cents) / 100.0
}

// Positive reports whether the amount is strictly greater than zero.
func (m Money) Positive() bool {
	return m.Cents > 0
}

// String formats the amount as a dollar string, e.g. "$43.00" or "-$1.25".
func (m Money) String() string {
	cents := m.Cents
	neg := cents < 0
	if neg {
		cents = -cents
	}
	s := "$" + strconv.FormatInt(cents/100, 10) + "." + fmt.Sprintf("%02d", cents%100)
	if neg {
		return "-" + s
	}
	return s
}
