// Package coupon validates customer-entered coupon codes, computes their
// discount and records usage.
package coupon

import (
	"context"
	"slices"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xenking/storefront-checkout/internal/domain/customer"
	"github.com/xenking/storefront-checkout/internal/domain/discount"
)

// Coupon is an admin-defined discount code. Codes are unique ignoring case.
type Coupon struct {
	ID          string
	Code        string
	Description string
	Type        discount.CouponType
	Value       decimal.Decimal
	MaxDiscount *decimal.Decimal

	MinOrderAmount        *decimal.Decimal
	UsageLimitTotal       *int
	UsageLimitPerCustomer *int
	// UsageCount only grows; it is incremented once per recorded Usage.
	UsageCount int

	StartDate *time.Time
	EndDate   *time.Time
	// DaysOfWeek restricts redemption to the listed weekdays when non-empty.
	DaysOfWeek        []time.Weekday
	FirstOrderOnly    bool
	CustomerGroups    []string
	MinAccountAgeDays *int

	ApplicableProducts   []string
	ApplicableCategories []string
	ExcludedProducts     []string
	ExcludedCategories   []string
	ExcludeSaleItems     bool

	BuyQuantity int
	GetQuantity int
	BuyProducts []string
	GetProducts []string

	IsActive  bool
	IsPublic  bool
	AutoApply bool
	Priority  int

	CreatedAt time.Time
	DeletedAt *time.Time
}

// Terms returns the fields the discount calculator needs.
func (c *Coupon) Terms() discount.CouponTerms {
	return discount.CouponTerms{
		Type:        c.Type,
		Value:       c.Value,
		MaxDiscount: c.MaxDiscount,
		Scope: discount.Scope{
			ApplicableProducts:   c.ApplicableProducts,
			ApplicableCategories: c.ApplicableCategories,
			ExcludedProducts:     c.ExcludedProducts,
			ExcludedCategories:   c.ExcludedCategories,
			ExcludeSaleItems:     c.ExcludeSaleItems,
		},
		BuyQuantity: c.BuyQuantity,
		GetQuantity: c.GetQuantity,
		BuyProducts: c.BuyProducts,
		GetProducts: c.GetProducts,
	}
}

// AvailableTo reports whether the coupon's group restriction admits group.
// A coupon without groups is universal.
func (c *Coupon) AvailableTo(group string) bool {
	return len(c.CustomerGroups) == 0 || slices.Contains(c.CustomerGroups, group)
}

// Usage is the immutable record of one order consuming a coupon.
type Usage struct {
	ID             string
	CouponID       string
	OrderID        string
	CustomerID     string
	DiscountAmount decimal.Decimal
	OrderSubtotal  decimal.Decimal
	UsedAt         time.Time
	IPAddress      string
	UserAgent      string
}

// Repository provides coupon lookup and usage persistence.
type Repository interface {
	// FindByCode returns the non-deleted coupon matching code ignoring case,
	// or ErrNotFound.
	FindByCode(ctx context.Context, code string) (*Coupon, error)
	// LockByID loads the coupon and holds a row lock until the surrounding
	// transaction ends.
	LockByID(ctx context.Context, id string) (*Coupon, error)
	// CountCustomerUsage returns how many usages customerID has for the coupon.
	CountCustomerUsage(ctx context.Context, couponID, customerID string) (int, error)
	// CountHolds returns how many open orders carry the coupon without
	// recorded usage, overall and for customerID. Cancelled and refunded
	// orders and orders whose payment failed hold nothing.
	CountHolds(ctx context.Context, couponID, customerID string) (total, forCustomer int, err error)
	// ListAutoApply returns active auto-apply coupons.
	ListAutoApply(ctx context.Context) ([]Coupon, error)
	InsertUsage(ctx context.Context, u Usage) error
	IncrementUsage(ctx context.Context, couponID string) error
}

// ProfileSource resolves eligibility facts about a customer.
type ProfileSource interface {
	Profile(ctx context.Context, customerID string) (*customer.Profile, error)
}
