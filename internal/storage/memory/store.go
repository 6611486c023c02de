// Package memory is an in-process implementation of the checkout store.
// Transactions are serialized by a single lock and run against a copy of
// the state that replaces the live state only on success.
package memory

import (
	"context"
	"maps"
	"sync"
	"time"

	"github.com/xenking/storefront-checkout/internal/domain/checkout"
	"github.com/xenking/storefront-checkout/internal/domain/coupon"
	"github.com/xenking/storefront-checkout/internal/domain/customer"
	"github.com/xenking/storefront-checkout/internal/domain/order"
	"github.com/xenking/storefront-checkout/internal/domain/product"
	"github.com/xenking/storefront-checkout/internal/domain/promotion"
)

var _ checkout.Store = (*Store)(nil)

type state struct {
	products   map[string]product.Product
	customers  map[string]customer.Customer
	accounts   map[string]customer.Account
	addresses  map[string][]order.Address
	coupons    map[string]coupon.Coupon
	usages     []coupon.Usage
	promotions map[string]promotion.Promotion
	orders     map[string]order.Order
}

func newState() *state {
	return &state{
		products:   map[string]product.Product{},
		customers:  map[string]customer.Customer{},
		accounts:   map[string]customer.Account{},
		addresses:  map[string][]order.Address{},
		coupons:    map[string]coupon.Coupon{},
		promotions: map[string]promotion.Promotion{},
		orders:     map[string]order.Order{},
	}
}

// clone copies the maps. Values are copied by assignment; slices inside
// them are never mutated in place.
func (s *state) clone() *state {
	return &state{
		products:   maps.Clone(s.products),
		customers:  maps.Clone(s.customers),
		accounts:   maps.Clone(s.accounts),
		addresses:  maps.Clone(s.addresses),
		coupons:    maps.Clone(s.coupons),
		usages:     append([]coupon.Usage(nil), s.usages...),
		promotions: maps.Clone(s.promotions),
		orders:     maps.Clone(s.orders),
	}
}

// db gives repositories access to a state.
type db interface {
	with(fn func(st *state) error) error
}

// txDB is a state owned by a running transaction; the store lock is held.
type txDB struct {
	st *state
}

func (t txDB) with(fn func(st *state) error) error {
	return fn(t.st)
}

// Store is a serializable in-memory store.
type Store struct {
	mu  sync.Mutex
	st  *state
	now func() time.Time
}

// New returns an empty Store.
func New() *Store {
	return &Store{st: newState(), now: time.Now}
}

// SetClock overrides the time source used for timestamps.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

func (s *Store) with(fn func(st *state) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(s.st)
}

// InTx runs fn against a private copy of the state and publishes the copy
// when fn succeeds.
func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context, r checkout.Repos) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	tx := s.st.clone()
	if err := fn(ctx, s.repos(txDB{st: tx})); err != nil {
		return err
	}
	s.st = tx
	return nil
}

// Repos returns auto-committing repositories.
func (s *Store) Repos() checkout.Repos {
	return s.repos(s)
}

func (s *Store) repos(d db) checkout.Repos {
	return checkout.Repos{
		Customers:  &CustomerRepository{db: d, now: s.now},
		Orders:     &OrderRepository{db: d, now: s.now},
		Products:   &ProductRepository{db: d},
		Coupons:    &CouponRepository{db: d},
		Promotions: &PromotionRepository{db: d},
	}
}

// PutProduct inserts or replaces a product.
func (s *Store) PutProduct(p product.Product) {
	_ = s.with(func(st *state) error {
		st.products[p.ID] = p
		return nil
	})
}

// PutCoupon inserts or replaces a coupon.
func (s *Store) PutCoupon(c coupon.Coupon) {
	_ = s.with(func(st *state) error {
		st.coupons[c.ID] = c
		return nil
	})
}

// PutPromotion inserts or replaces a promotion.
func (s *Store) PutPromotion(p promotion.Promotion) {
	_ = s.with(func(st *state) error {
		st.promotions[p.ID] = p
		return nil
	})
}

// PutCustomer inserts or replaces a customer.
func (s *Store) PutCustomer(c customer.Customer) {
	_ = s.with(func(st *state) error {
		st.customers[c.ID] = c
		return nil
	})
}

// Customers returns a snapshot of all customers.
func (s *Store) Customers() []customer.Customer {
	var out []customer.Customer
	_ = s.with(func(st *state) error {
		for _, c := range st.customers {
			out = append(out, c)
		}
		return nil
	})
	return out
}

// OrderCount returns the number of persisted orders.
func (s *Store) OrderCount() int {
	var n int
	_ = s.with(func(st *state) error {
		n = len(st.orders)
		return nil
	})
	return n
}

// Usages returns the usage rows recorded for a coupon.
func (s *Store) Usages(couponID string) []coupon.Usage {
	var out []coupon.Usage
	_ = s.with(func(st *state) error {
		for _, u := range st.usages {
			if u.CouponID == couponID {
				out = append(out, u)
			}
		}
		return nil
	})
	return out
}

// Addresses returns the customer's address book.
func (s *Store) Addresses(customerID string) []order.Address {
	var out []order.Address
	_ = s.with(func(st *state) error {
		out = append(out, st.addresses[customerID]...)
		return nil
	})
	return out
}
