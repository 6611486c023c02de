// Package promotion resolves automatically applied catalog and cart
// promotions.
package promotion

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront-checkout/internal/domain/discount"
)

// ErrNotFound is returned when a promotion does not exist.
var ErrNotFound = errors.New("promotion not found")

// Type enumerates promotion kinds.
type Type string

const (
	// TypeCatalogRule adjusts a product's displayed price.
	TypeCatalogRule Type = "catalog_rule"
	// TypeCartRule discounts the cart when its conditions hold.
	TypeCartRule Type = "cart_rule"
	// TypeTieredPricing discounts lines by purchased quantity.
	TypeTieredPricing Type = "tiered_pricing"
)

// Conditions gate a promotion on cart and customer facts. Zero values
// impose no restriction.
type Conditions struct {
	MinOrderAmount   *decimal.Decimal `json:"min_order_amount,omitempty"`
	MinItems         *int             `json:"min_items,omitempty"`
	MinQuantity      *int             `json:"min_quantity,omitempty"`
	CustomerGroups   []string         `json:"customer_groups,omitempty"`
	RequiresProducts []string         `json:"requires_products,omitempty"`
	FirstOrderOnly   bool             `json:"first_order_only,omitempty"`
}

// Actions restrict which products a promotion discounts.
type Actions struct {
	ApplicableProducts   []string `json:"applicable_products,omitempty"`
	ApplicableCategories []string `json:"applicable_categories,omitempty"`
	ExcludedProducts     []string `json:"excluded_products,omitempty"`
	ExcludedCategories   []string `json:"excluded_categories,omitempty"`
}

// Scope converts the actions to a discount scope.
func (a Actions) Scope() discount.Scope {
	return discount.Scope{
		ApplicableProducts:   a.ApplicableProducts,
		ApplicableCategories: a.ApplicableCategories,
		ExcludedProducts:     a.ExcludedProducts,
		ExcludedCategories:   a.ExcludedCategories,
	}
}

// Badge is display metadata for the storefront.
type Badge struct {
	Text  string `json:"text,omitempty"`
	Color string `json:"color,omitempty"`
}

// Promotion is an admin-configured automatic discount rule.
type Promotion struct {
	ID                  string
	Name                string
	Type                Type
	DiscountType        discount.Kind
	DiscountValue       decimal.Decimal
	MaxDiscount         *decimal.Decimal
	Conditions          Conditions
	Actions             Actions
	Priority            int
	StopRulesProcessing bool
	// PriceTiers are evaluated in order; the first containing band wins.
	PriceTiers []discount.Tier

	UsageCount            int
	TotalRevenueGenerated decimal.Decimal

	IsActive  bool
	StartDate *time.Time
	EndDate   *time.Time
	Badge     Badge
}

// ActiveAt reports whether the promotion is active and inside its date window.
func (p *Promotion) ActiveAt(now time.Time) bool {
	if !p.IsActive {
		return false
	}
	if p.StartDate != nil && now.Before(*p.StartDate) {
		return false
	}
	return p.EndDate == nil || !now.After(*p.EndDate)
}

// ValidateTiers checks that bands are well-formed and do not overlap when
// taken in order.
func ValidateTiers(tiers []discount.Tier) error {
	for i, t := range tiers {
		if t.MinQuantity < 1 {
			return errors.Errorf("tier %d: min quantity must be positive", i)
		}
		if t.MaxQuantity != nil && *t.MaxQuantity < t.MinQuantity {
			return errors.Errorf("tier %d: max quantity below min quantity", i)
		}
		if t.DiscountPercentage.IsNegative() || t.DiscountPercentage.GreaterThan(decimal.NewFromInt(100)) {
			return errors.Errorf("tier %d: discount percentage out of range", i)
		}
		for j := range i {
			if overlaps(tiers[j], t) {
				return &TierOverlapError{First: j, Second: i}
			}
		}
	}
	return nil
}

func overlaps(a, b discount.Tier) bool {
	aEndsBeforeB := a.MaxQuantity != nil && *a.MaxQuantity < b.MinQuantity
	bEndsBeforeA := b.MaxQuantity != nil && *b.MaxQuantity < a.MinQuantity
	return !aEndsBeforeB && !bEndsBeforeA
}

// TierOverlapError reports two overlapping price tiers.
type TierOverlapError struct {
	First, Second int
}

func (e *TierOverlapError) Error() string {
	return fmt.Sprintf("price tiers %d and %d overlap", e.First, e.Second)
}

// Repository provides promotion lookup and usage counters.
type Repository interface {
	// ListActive returns active promotions of the given type.
	ListActive(ctx context.Context, typ Type) ([]Promotion, error)
	// IncrementUsage adds one use and revenue to the promotion totals.
	IncrementUsage(ctx context.Context, id string, revenue decimal.Decimal) error
}
