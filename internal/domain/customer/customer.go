// Package customer models storefront customers, both guests and registered
// accounts, and the profile facts used by coupon and promotion eligibility.
package customer

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront-checkout/internal/domain/order"
)

// GuestGroup is the customer group reported for checkouts without a customer.
const GuestGroup = "guest"

var (
	// ErrNotFound is returned when a customer or account does not exist.
	ErrNotFound = errors.New("customer not found")
	// ErrEmailTaken is returned when an account already exists for an email.
	ErrEmailTaken = errors.New("email already registered")
)

// Customer is the buyer record orders are attributed to.
type Customer struct {
	ID          string
	UserID      string
	IsGuest     bool
	Email       string
	FirstName   string
	LastName    string
	Phone       string
	GroupID     string
	TotalOrders int
	TotalSpent  decimal.Decimal
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Account is an authentication identity.
type Account struct {
	ID           string
	Email        string
	PasswordHash string
	Name         string
	CreatedAt    time.Time
}

// Contact is the identity captured at checkout.
type Contact struct {
	Email     string
	FirstName string
	LastName  string
	Phone     string
}

// Profile is the read model consulted by eligibility checks.
type Profile struct {
	CustomerID string
	GroupID    string
	CreatedAt  time.Time
	// OrderCount counts the customer's orders except cancelled ones.
	OrderCount int
}

// NormalizeEmail lowercases and trims an email so lookups are case-insensitive.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Repository defines customer persistence. Implementations bound to a
// transaction must make UpsertGuest safe under concurrent callers for the
// same email.
type Repository interface {
	FindByID(ctx context.Context, id string) (*Customer, error)
	FindByUserID(ctx context.Context, userID string) (*Customer, error)
	// UpsertGuest returns the guest customer for the contact email, creating
	// it when missing. Repeated calls return the same row.
	UpsertGuest(ctx context.Context, c Contact) (*Customer, error)
	// CreateAccount stores a new authentication identity. It returns
	// ErrEmailTaken when the email is already registered.
	CreateAccount(ctx context.Context, a Account) (*Account, error)
	// AttachAccount links userID to the customer for email: an existing
	// guest row is converted in place, an existing registered row is reused,
	// otherwise a registered customer is created. It returns ErrEmailTaken
	// when the email belongs to a customer linked to another account.
	AttachAccount(ctx context.Context, c Contact, userID string) (*Customer, error)
	// RecordOrder increments the running order aggregates.
	RecordOrder(ctx context.Context, id string, total decimal.Decimal) error
	HasAddresses(ctx context.Context, id string) (bool, error)
	SaveAddresses(ctx context.Context, id string, addrs []order.Address) error
	Profile(ctx context.Context, id string) (*Profile, error)
}
