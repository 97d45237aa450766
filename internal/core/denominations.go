package core

// Cent value of each counted denomination (CAD).
const (
	Bill100Cents = 10000
	Bill50Cents  = 5000
	Bill20Cents  = 2000
	Bill10Cents  = 1000
	Bill5Cents   = 500
	ToonieCents  = 200
	LoonieCents  = 100
	QuarterCents = 25
	DimeCents    = 10
	NickelCents  = 5
	PennyCents   = 1
)

// DenominationCounts is a physical cash count: how many of each of the
// eleven denominations were in the till drawer.
type DenominationCounts struct {
	Bills100 int64 `json:"bills_100"`
	Bills50  int64 `json:"bills_50"`
	Bills20  int64 `json:"bills_20"`
	Bills10  int64 `json:"bills_10"`
	Bills5   int64 `json:"bills_5"`
	Toonies  int64 `json:"coins_toonies"`
	Loonies  int64 `json:"coins_loonies"`
	Quarters int64 `json:"coins_quarters"`
	Dimes    int64 `json:"coins_dimes"`
	Nickels  int64 `json:"coins_nickels"`
	Pennies  int64 `json:"coins_pennies"`
}

// Total computes the monetary value of the count. Pure integer arithmetic,
// so the result is exact to the cent; there is no rounding step.
func (d DenominationCounts) Total() Money {
	cents := d.Bills100*Bill100Cents +
		d.Bills50*Bill50Cents +
		d.Bills20*Bill20Cents +
		d.Bills10*Bill10Cents +
		d.Bills5*Bill5Cents +
		d.Toonies*ToonieCents +
		d.Loonies*LoonieCents +
		d.Quarters*QuarterCents +
		d.Dimes*DimeCents +
		d.Nickels*NickelCents +
		d.Pennies*PennyCents
	return Money{Cents: cents}
}

// Validate rejects negative counts. The total computation itself assumes
// validated input.
func (d DenominationCounts) Validate() error {
	fields := []struct {
		name  string
		count int64
	}{
		{"bills_100", d.Bills100},
		{"bills_50", d.Bills50},
		{"bills_20", d.Bills20},
		{"bills_10", d.Bills10},
		{"bills_5", d.Bills5},
		{"coins_toonies", d.Toonies},
		{"coins_loonies", d.Loonies},
		{"coins_quarters", d.Quarters},
		{"coins_dimes", d.Dimes},
		{"coins_nickels", d.Nickels},
		{"coins_pennies", d.Pennies},
	}
	for _, f := range fields {
		if f.count < 0 {
			return &ValidationError{Field: f.name, Reason: "count cannot be negative"}
		}
	}
	return nil
}
