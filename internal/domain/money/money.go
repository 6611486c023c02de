// Package money holds the fixed-precision primitives used for every price,
// discount and total in the checkout engine.
//
// Amounts are plain decimal.Decimal values. Intermediate results are never
// rounded; callers round once, at the final step, with a Rounding mode.
package money

import (
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Places is the number of fractional digits stored for monetary amounts.
const Places = 2

var (
	// Hundred is the percentage divisor.
	Hundred = decimal.NewFromInt(100)
	// Zero is the zero amount.
	Zero = decimal.Zero
)

// Rounding selects how amounts are rounded to Places digits.
type Rounding string

const (
	// HalfUp rounds halves away from zero (2.345 -> 2.35).
	HalfUp Rounding = "half_up"
	// HalfEven rounds halves to the nearest even digit (2.345 -> 2.34).
	HalfEven Rounding = "half_even"
	// Down truncates toward zero (2.349 -> 2.34).
	Down Rounding = "down"
)

// ParseRounding converts a configuration value into a Rounding mode.
// An empty value selects HalfUp.
func ParseRounding(s string) (Rounding, error) {
	switch r := Rounding(s); r {
	case "":
		return HalfUp, nil
	case HalfUp, HalfEven, Down:
		return r, nil
	default:
		return "", errors.Errorf("unknown rounding mode %q", s)
	}
}

// Round rounds d to Places digits using the mode.
func (r Rounding) Round(d decimal.Decimal) decimal.Decimal {
	switch r {
	case HalfEven:
		return d.RoundBank(Places)
	case Down:
		return d.Truncate(Places)
	default:
		return d.Round(Places)
	}
}

// Equal reports whether a and b are equal once both are rounded with r.
func (r Rounding) Equal(a, b decimal.Decimal) bool {
	return r.Round(a).Equal(r.Round(b))
}

// FloorAtZero clamps negative values to zero.
func FloorAtZero(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return Zero
	}
	return d
}

// Percent returns amount * pct / 100 without rounding.
func Percent(amount, pct decimal.Decimal) decimal.Decimal {
	return amount.Mul(pct).Div(Hundred)
}

// Cap returns d limited to max when max is non-nil.
func Cap(d decimal.Decimal, max *decimal.Decimal) decimal.Decimal {
	if max != nil && d.GreaterThan(*max) {
		return *max
	}
	return d
}

// Qty converts an item quantity to a decimal multiplier.
func Qty(n int) decimal.Decimal {
	return decimal.NewFromInt(int64(n))
}

// LineTotal returns unit * qty.
func LineTotal(unit decimal.Decimal, qty int) decimal.Decimal {
	return unit.Mul(Qty(qty))
}

// Sum adds all amounts.
func Sum(amounts ...decimal.Decimal) decimal.Decimal {
	total := Zero
	for _, a := range amounts {
		total = total.Add(a)
	}
	return total
}

// Format renders d with exactly Places fractional digits.
func Format(d decimal.Decimal) string {
	return d.StringFixed(Places)
}

// Allocate splits amount across weights proportionally. Each share is
// rounded with r and the last share absorbs the rounding remainder, so the
// shares always sum to r.Round(amount).
func Allocate(amount decimal.Decimal, weights []decimal.Decimal, r Rounding) []decimal.Decimal {
	shares := make([]decimal.Decimal, len(weights))
	if len(weights) == 0 {
		return shares
	}
	total := Sum(weights...)
	amount = r.Round(amount)
	if total.IsZero() {
		for i := range shares {
			shares[i] = Zero
		}
		shares[len(shares)-1] = amount
		return shares
	}

	allocated := Zero
	for i, w := range weights[:len(weights)-1] {
		shares[i] = r.Round(amount.Mul(w).Div(total))
		allocated = allocated.Add(shares[i])
	}
	shares[len(shares)-1] = amount.Sub(allocated)
	return shares
}
