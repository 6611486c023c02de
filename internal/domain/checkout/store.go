package checkout

import (
	"context"

	"golang.org/x/crypto/bcrypt"

	"github.com/xenking/storefront-checkout/internal/domain/coupon"
	"github.com/xenking/storefront-checkout/internal/domain/customer"
	"github.com/xenking/storefront-checkout/internal/domain/order"
	"github.com/xenking/storefront-checkout/internal/domain/product"
	"github.com/xenking/storefront-checkout/internal/domain/promotion"
)

// Repos groups the repositories bound to one unit of work.
type Repos struct {
	Customers  customer.Repository
	Orders     order.Repository
	Products   product.Repository
	Coupons    coupon.Repository
	Promotions promotion.Repository
}

// Store is the transactional store. fn runs inside one transaction: when it
// returns an error every write made through r is rolled back.
type Store interface {
	InTx(ctx context.Context, fn func(ctx context.Context, r Repos) error) error
	// Repos returns repositories outside any transaction, for reads.
	Repos() Repos
}

// Notifier receives order lifecycle events after the owning transaction has
// committed. Implementations must not block the caller.
type Notifier interface {
	OrderPlaced(ctx context.Context, o *order.Order)
	OrderPaid(ctx context.Context, o *order.Order)
	OrderStatusChanged(ctx context.Context, o *order.Order, from order.Status)
}

// CacheInvalidator drops cached data that an operation made stale.
type CacheInvalidator interface {
	InvalidateCoupon(ctx context.Context, code string) error
}

// PasswordHasher hashes passwords for new accounts.
type PasswordHasher interface {
	Hash(password string) (string, error)
}

// BcryptHasher hashes passwords with bcrypt.
type BcryptHasher struct {
	Cost int
}

// Hash returns the bcrypt hash of password.
func (h BcryptHasher) Hash(password string) (string, error) {
	cost := h.Cost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	b, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

type nopNotifier struct{}

func (nopNotifier) OrderPlaced(context.Context, *order.Order)                       {}
func (nopNotifier) OrderPaid(context.Context, *order.Order)                         {}
func (nopNotifier) OrderStatusChanged(context.Context, *order.Order, order.Status) {}

type nopInvalidator struct{}

func (nopInvalidator) InvalidateCoupon(context.Context, string) error { return nil }
