// Package money holds the storefront's currency arithmetic. Amounts are kept
// in integer haléře so that summing line totals never drifts.
package money

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

// ErrInvalidPrice is returned when a raw catalog price cannot be read as a non-negative amount.
var ErrInvalidPrice = errors.New("money: invalid price")

// Amount is a CZK amount in minor units (1/100 Kč).
type Amount int64

// Round2 rounds x to two decimal places through integer cents. Non-finite input is returned unchanged.
func Round2(x float64) float64 {
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return x
	}
	return math.Round(x*100) / 100
}

// FromFloat converts a koruna value to an Amount. Non-finite input yields zero.
func FromFloat(x float64) Amount {
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return 0
	}
	return Amount(math.Round(x * 100))
}

// FromKoruna returns an Amount of whole koruny.
func FromKoruna(czk int64) Amount {
	return Amount(czk * 100)
}

// Float64 returns the amount in koruny.
func (a Amount) Float64() float64 {
	return float64(a) / 100
}

// Decimal returns the amount in koruny as an exact decimal.
func (a Amount) Decimal() decimal.Decimal {
	return decimal.New(int64(a), -2)
}

// Times multiplies a unit price by a quantity.
func (a Amount) Times(quantity int) Amount {
	return a * Amount(quantity)
}

// String formats the amount with exactly two decimals and a dot separator.
func (a Amount) String() string {
	return a.Decimal().StringFixed(2)
}

// MarshalJSON encodes the amount as a JSON number with two decimals.
func (a Amount) MarshalJSON() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalJSON accepts a JSON number or a numeric string.
func (a *Amount) UnmarshalJSON(data []byte) error {
	var raw any
	dec := json.NewDecoder(strings.NewReader(string(data)))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		return err
	}
	parsed, err := ParsePrice(raw)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// ParsePrice normalises a price as delivered by the catalog backend: a JSON
// number, or a string using either "," or "." as the decimal separator, with
// optional spaces and a trailing "Kč" or "CZK".
func ParsePrice(raw any) (Amount, error) {
	var d decimal.Decimal
	switch v := raw.(type) {
	case Amount:
		return v, nil
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return 0, fmt.Errorf("%w: %v", ErrInvalidPrice, v)
		}
		d = decimal.NewFromFloat(v)
	case float32:
		return ParsePrice(float64(v))
	case int:
		d = decimal.NewFromInt(int64(v))
	case int64:
		d = decimal.NewFromInt(v)
	case json.Number:
		return ParsePrice(string(v))
	case string:
		parsed, err := decimal.NewFromString(normalizePriceText(v))
		if err != nil {
			return 0, fmt.Errorf("%w: %q", ErrInvalidPrice, v)
		}
		d = parsed
	default:
		return 0, fmt.Errorf("%w: unsupported type %T", ErrInvalidPrice, raw)
	}
	if d.IsNegative() {
		return 0, fmt.Errorf("%w: negative %s", ErrInvalidPrice, d.String())
	}
	return Amount(d.Round(2).Shift(2).IntPart()), nil
}

// ParsePriceOrZero is ParsePrice with the zero fallback used for data-shape errors.
func ParsePriceOrZero(raw any) Amount {
	amount, err := ParsePrice(raw)
	if err != nil {
		return 0
	}
	return amount
}

func normalizePriceText(s string) string {
	s = strings.TrimSpace(s)
	for _, suffix := range []string{"kč", "czk", ",-"} {
		if strings.HasSuffix(strings.ToLower(s), suffix) {
			s = strings.TrimSpace(s[:len(s)-len(suffix)])
		}
	}
	s = strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\t', '\u00a0', '\u202f':
			return -1
		}
		return r
	}, s)

	comma := strings.LastIndex(s, ",")
	dot := strings.LastIndex(s, ".")
	switch {
	case comma >= 0 && dot >= 0 && comma > dot:
		s = strings.ReplaceAll(s, ".", "")
		s = strings.Replace(s, ",", ".", 1)
	case comma >= 0 && dot >= 0:
		s = strings.ReplaceAll(s, ",", "")
	case comma >= 0:
		s = strings.Replace(s, ",", ".", 1)
	}
	return s
}
