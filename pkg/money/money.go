// Package money stores monetary amounts as integer cents.
//
// Amounts travel over JSON as decimal numbers (29.99) and are accepted from
// clients either as numbers or numeric strings ("29.99").
package money

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Cents is an amount in hundredths of the currency unit.
type Cents int64

var (
	// ErrInvalid is returned for values that are not finite decimal numbers.
	ErrInvalid = errors.New("invalid amount")
	// ErrOverflow is returned when a product does not fit in Cents.
	ErrOverflow = errors.New("amount out of range")
)

// FromFloat rounds f to the nearest cent.
func FromFloat(f float64) (Cents, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) || math.Abs(f) > math.MaxInt64/100 {
		return 0, ErrInvalid
	}
	return Cents(math.Round(f * 100)), nil
}

// Parse reads a decimal string such as "29.99" or "30".
func Parse(s string) (Cents, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, ErrInvalid
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, ErrInvalid
	}
	return FromFloat(f)
}

// Times multiplies the amount by n, failing instead of wrapping around.
func (c Cents) Times(n int) (Cents, error) {
	a, b := int64(c), int64(n)
	if a == 0 || b == 0 {
		return 0, nil
	}
	if (a == -1 && b == math.MinInt64) || (b == -1 && a == math.MinInt64) {
		return 0, ErrOverflow
	}
	r := a * b
	if r/b != a {
		return 0, ErrOverflow
	}
	return Cents(r), nil
}

// Float returns the amount in currency units.
func (c Cents) Float() float64 {
	return float64(c) / 100
}

// String formats the amount with two decimals.
func (c Cents) String() string {
	sign := ""
	v := int64(c)
	if v < 0 {
		sign = "-"
		v = -v
	}
	return fmt.Sprintf("%s%d.%02d", sign, v/100, v%100)
}

// MarshalJSON encodes the amount as a JSON number.
func (c Cents) MarshalJSON() ([]byte, error) {
	return []byte(c.String()), nil
}

// UnmarshalJSON accepts a JSON number or a numeric string.
func (c *Cents) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return ErrInvalid
		}
		v, err := Parse(s)
		if err != nil {
			return err
		}
		*c = v
		return nil
	}
	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		return ErrInvalid
	}
	v, err := FromFloat(f)
	if err != nil {
		return err
	}
	*c = v
	return nil
}
