// Package money provides a fixed-point monetary amount with 8 decimal
// places of precision. All arithmetic rounds half-to-even so repeated fee
// computations do not drift in either direction.
package money

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Scale is the number of decimal places every amount is normalized to.
const Scale = 8

// Money is an immutable fixed-point amount. The zero value is 0.00000000.
type Money struct {
	d decimal.Decimal
}

// New normalizes d to the fixed scale using banker's rounding.
func New(d decimal.Decimal) Money {
	return Money{d: d.RoundBank(Scale)}
}

// Zero returns the zero amount.
func Zero() Money {
	return Money{}
}

// FromString parses a decimal string into a Money.
func FromString(s string) (Money, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Money{}, fmt.Errorf("parse amount %q: %w", s, err)
	}
	return New(d), nil
}

// MustFromString parses s or panics. Test and initialization helper.
func MustFromString(s string) Money {
	m, err := FromString(s)
	if err != nil {
		panic(err)
	}
	return m
}

// Add returns m + other.
func (m Money) Add(other Money) Money {
	return New(m.d.Add(other.d))
}

// Sub returns m - other.
func (m Money) Sub(other Money) Money {
	return New(m.d.Sub(other.d))
}

// MulRate multiplies the amount by a decimal rate, rounding the product
// back to the fixed scale.
func (m Money) MulRate(rate decimal.Decimal) Money {
	return New(m.d.Mul(rate))
}

// Cmp compares m and other: -1 if m < other, 0 if equal, +1 if m > other.
func (m Money) Cmp(other Money) int {
	return m.d.Cmp(other.d)
}

// Equal reports whether the two amounts are numerically equal.
func (m Money) Equal(other Money) bool {
	return m.d.Equal(other.d)
}

// IsPositive reports whether m > 0.
func (m Money) IsPositive() bool {
	return m.d.IsPositive()
}

// IsNegative reports whether m < 0.
func (m Money) IsNegative() bool {
	return m.d.IsNegative()
}

// IsZero reports whether m == 0.
func (m Money) IsZero() bool {
	return m.d.IsZero()
}

// Decimal returns the underlying decimal value.
func (m Money) Decimal() decimal.Decimal {
	return m.d
}

// String renders the amount with exactly Scale decimal places. This is the
// canonical wire and storage representation.
func (m Money) String() string {
	return m.d.StringFixed(Scale)
}

// MarshalJSON renders the amount as a quoted decimal string so clients
// never receive a float.
func (m Money) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.String())
}

// UnmarshalJSON accepts either a quoted decimal string or a bare JSON
// number.
func (m *Money) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	parsed, err := FromString(s)
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}
