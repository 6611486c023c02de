package order

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront-checkout/internal/domain/money"
)

var (
	// ErrNotFound is returned when no order matches the lookup.
	ErrNotFound = errors.New("order not found")
	// ErrDuplicateNumber is returned by Repository.Create when the order
	// number is already taken.
	ErrDuplicateNumber = errors.New("order number already exists")
)

// Order is the aggregate root. Items and Addresses are owned by the order
// and written once, in the transaction that creates it.
type Order struct {
	ID            string
	Number        string
	UserID        string
	CustomerID    string
	Status        Status
	PaymentStatus PaymentStatus

	Subtotal     decimal.Decimal
	Tax          decimal.Decimal
	ShippingCost decimal.Decimal
	Discount     decimal.Decimal
	Total        decimal.Decimal

	CouponID       string
	CouponCode     string
	CouponDiscount decimal.Decimal
	PromotionIDs   []string

	PaymentMethod  string
	ShippingMethod string
	CustomerEmail  string
	CustomerPhone  string
	Notes          string
	IPAddress      string
	UserAgent      string

	// UsageRecordedAt is set once coupon and promotion usage for the order
	// has been recorded.
	UsageRecordedAt *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time

	Items     []Item
	Addresses []Address
}

// Item is an order line. Product fields are snapshots taken at placement so
// the order stays accurate when the catalog changes.
type Item struct {
	ID             string
	OrderID        string
	ProductID      string
	ProductSKU     string
	ProductName    string
	Quantity       int
	Price          decimal.Decimal
	Total          decimal.Decimal
	TaxAmount      decimal.Decimal
	DiscountAmount decimal.Decimal
	Options        map[string]string
}

// AddressType distinguishes shipping and billing addresses.
type AddressType string

const (
	AddressShipping AddressType = "shipping"
	AddressBilling  AddressType = "billing"
)

// Address is a postal address attached to an order.
type Address struct {
	Type       AddressType `json:"type"`
	FirstName  string      `json:"first_name" validate:"required,max=100"`
	LastName   string      `json:"last_name" validate:"required,max=100"`
	Company    string      `json:"company,omitempty" validate:"max=150"`
	Line1      string      `json:"line1" validate:"required,max=255"`
	Line2      string      `json:"line2,omitempty" validate:"max=255"`
	City       string      `json:"city" validate:"required,max=100"`
	State      string      `json:"state,omitempty" validate:"max=100"`
	PostalCode string      `json:"postal_code" validate:"required,max=20"`
	Country    string      `json:"country" validate:"required,len=2"`
	Phone      string      `json:"phone,omitempty" validate:"max=40"`
}

// ShippingAddress returns the shipping address, if any.
func (o *Order) ShippingAddress() (Address, bool) {
	return o.address(AddressShipping)
}

// BillingAddress returns the billing address, if any.
func (o *Order) BillingAddress() (Address, bool) {
	return o.address(AddressBilling)
}

func (o *Order) address(t AddressType) (Address, bool) {
	for _, a := range o.Addresses {
		if a.Type == t {
			return a, true
		}
	}
	return Address{}, false
}

// TotalsBalanced reports whether total == subtotal + tax + shipping - discount
// under the rounding mode, and total is not negative.
func (o *Order) TotalsBalanced(r money.Rounding) bool {
	want := o.Subtotal.Add(o.Tax).Add(o.ShippingCost).Sub(o.Discount)
	return r.Equal(o.Total, want) && !o.Total.IsNegative()
}

// HoldsCoupon reports whether the order reserves a slot of its coupon. An
// open order holds the slot until usage is recorded or its payment fails.
func (o *Order) HoldsCoupon() bool {
	if o.CouponID == "" || o.UsageRecordedAt != nil || o.PaymentStatus == PaymentFailed {
		return false
	}
	return o.Status != StatusCancelled && o.Status != StatusRefunded
}

// Repository defines persistence operations for orders.
type Repository interface {
	// Create persists the order with its items and addresses. It returns
	// ErrDuplicateNumber when Number collides with an existing order.
	Create(ctx context.Context, o *Order) error
	// FindByNumber loads the order with items and addresses.
	FindByNumber(ctx context.Context, number string) (*Order, error)
	// LockByNumber loads the order and holds a row lock until the
	// surrounding transaction ends.
	LockByNumber(ctx context.Context, number string) (*Order, error)
	// UpdateStatus persists status, payment status and usage marker.
	UpdateStatus(ctx context.Context, o *Order) error
}
