// Package discount computes coupon and promotion discount amounts. Every
// function is pure: inputs are immutable cart snapshots and the only output
// is a rounded money value.
package discount

import (
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront-checkout/internal/domain/cart"
)

// CouponType enumerates the supported coupon discount strategies.
type CouponType string

const (
	// CouponPercentage takes a percentage off the eligible amount.
	CouponPercentage CouponType = "percentage"
	// CouponFixedAmount takes a fixed amount off, capped at the subtotal.
	CouponFixedAmount CouponType = "fixed_amount"
	// CouponFreeShipping waives shipping; it contributes no discount here.
	CouponFreeShipping CouponType = "free_shipping"
	// CouponBuyXGetY gives the cheapest "get" units away for every complete
	// set of "buy" units.
	CouponBuyXGetY CouponType = "buy_x_get_y"
	// CouponFixedPrice sells eligible lines at a fixed unit price.
	CouponFixedPrice CouponType = "fixed_price"
)

// Valid reports whether t is a known coupon type.
func (t CouponType) Valid() bool {
	switch t {
	case CouponPercentage, CouponFixedAmount, CouponFreeShipping, CouponBuyXGetY, CouponFixedPrice:
		return true
	}
	return false
}

// Kind enumerates the discount kinds available to promotions.
type Kind string

const (
	// KindPercentage discounts a percentage of the price.
	KindPercentage Kind = "percentage"
	// KindFixedAmount discounts a fixed amount, never more than the price.
	KindFixedAmount Kind = "fixed_amount"
)

// Scope restricts which cart lines a discount applies to.
type Scope struct {
	ApplicableProducts   []string
	ApplicableCategories []string
	ExcludedProducts     []string
	ExcludedCategories   []string
	ExcludeSaleItems     bool
}

// CouponTerms carries the coupon fields the calculator needs.
type CouponTerms struct {
	Type        CouponType
	Value       decimal.Decimal
	MaxDiscount *decimal.Decimal
	Scope       Scope

	BuyQuantity int
	GetQuantity int
	BuyProducts []string
	GetProducts []string
}

// Tier is one quantity band of a tiered-pricing promotion. A nil MaxQuantity
// means the band is open-ended.
type Tier struct {
	MinQuantity        int             `json:"min_quantity"`
	MaxQuantity        *int            `json:"max_quantity,omitempty"`
	DiscountPercentage decimal.Decimal `json:"discount_percentage"`
}

// Contains reports whether qty falls inside the tier bounds (inclusive).
func (t Tier) Contains(qty int) bool {
	if qty < t.MinQuantity {
		return false
	}
	return t.MaxQuantity == nil || qty <= *t.MaxQuantity
}

// matcher is a compiled Scope.
type matcher struct {
	applicableProducts   map[string]struct{}
	applicableCategories map[string]struct{}
	excludedProducts     map[string]struct{}
	excludedCategories   map[string]struct{}
	excludeSale          bool
}

func compile(s Scope) matcher {
	return matcher{
		applicableProducts:   toSet(s.ApplicableProducts),
		applicableCategories: toSet(s.ApplicableCategories),
		excludedProducts:     toSet(s.ExcludedProducts),
		excludedCategories:   toSet(s.ExcludedCategories),
		excludeSale:          s.ExcludeSaleItems,
	}
}

// eligible evaluates exclusions first, then the inclusion restriction.
func (m matcher) eligible(l cart.Line) bool {
	if m.excluded(l) {
		return false
	}
	return m.included(l)
}

func (m matcher) excluded(l cart.Line) bool {
	if m.excludeSale && l.OnSale {
		return true
	}
	if _, ok := m.excludedProducts[l.ProductID]; ok {
		return true
	}
	return l.InCategory(m.excludedCategories)
}

func (m matcher) included(l cart.Line) bool {
	if len(m.applicableProducts) == 0 && len(m.applicableCategories) == 0 {
		return true
	}
	if _, ok := m.applicableProducts[l.ProductID]; ok {
		return true
	}
	return l.InCategory(m.applicableCategories)
}

// Eligible reports whether the line qualifies for a discount with scope s.
func Eligible(l cart.Line, s Scope) bool {
	return compile(s).eligible(l)
}

func toSet(values []string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		set[v] = struct{}{}
	}
	return set
}
