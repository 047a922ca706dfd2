package model

import (
	"github.com/shopspring/decimal"
)

// UnresolvedMarker is written wherever an amount could not be extracted.
const UnresolvedMarker = "ERRO_EXTRAÇÃO"

// Amount is a currency value that may be unresolved. The zero value is
// unresolved, never R$ 0,00.
type Amount struct {
	value    decimal.Decimal
	resolved bool
}

// NewAmount returns a resolved amount.
func NewAmount(d decimal.Decimal) Amount {
	return Amount{value: d, resolved: true}
}

// AmountFromFloat returns a resolved amount rounded to cents.
func AmountFromFloat(f float64) Amount {
	return NewAmount(decimal.NewFromFloat(f).Round(2))
}

// UnresolvedAmount returns the extraction-failed sentinel.
func UnresolvedAmount() Amount {
	return Amount{}
}

// IsResolved reports whether the amount holds a real value.
func (a Amount) IsResolved() bool {
	return a.resolved
}

// Decimal returns the value and whether it is resolved.
func (a Amount) Decimal() (decimal.Decimal, bool) {
	return a.value, a.resolved
}

// Float returns the value as float64, or 0 and false when unresolved.
func (a Amount) Float() (float64, bool) {
	if !a.resolved {
		return 0, false
	}
	return a.value.InexactFloat64(), true
}

// Display renders "R$ 1.126,37" or the unresolved marker.
func (a Amount) Display() string {
	if !a.resolved {
		return UnresolvedMarker
	}
	return "R$ " + FormatBRL(a.value)
}

// String implements fmt.Stringer.
func (a Amount) String() string {
	return a.Display()
}

// MarshalJSON encodes a resolved amount as a decimal string and an
// unresolved one as null.
func (a Amount) MarshalJSON() ([]byte, error) {
	if !a.resolved {
		return []byte("null"), nil
	}
	return []byte(`"` + a.value.StringFixed(2) + `"`), nil
}

// UnmarshalJSON is the inverse of MarshalJSON.
func (a *Amount) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*a = UnresolvedAmount()
		return nil
	}
	var d decimal.Decimal
	if err := d.UnmarshalJSON(b); err != nil {
		return err
	}
	*a = NewAmount(d)
	return nil
}
