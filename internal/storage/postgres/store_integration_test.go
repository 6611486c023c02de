//go:build integration

package postgres_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/storefront-checkout/internal/domain/cart"
	"github.com/xenking/storefront-checkout/internal/domain/checkout"
	"github.com/xenking/storefront-checkout/internal/domain/coupon"
	"github.com/xenking/storefront-checkout/internal/domain/customer"
	"github.com/xenking/storefront-checkout/internal/domain/discount"
	"github.com/xenking/storefront-checkout/internal/domain/order"
	"github.com/xenking/storefront-checkout/internal/domain/product"
	"github.com/xenking/storefront-checkout/internal/domain/promotion"
	"github.com/xenking/storefront-checkout/internal/storage/postgres"
)

func newStore(t *testing.T) *postgres.Store {
	t.Helper()
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("checkout_test"),
		tcpostgres.WithUsername("postgres"),
		tcpostgres.WithPassword("postgres"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = testcontainers.TerminateContainer(container) })

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	pool, err := postgres.NewPool(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	require.NoError(t, postgres.RunMigrations(ctx, pool))

	store := postgres.NewStore(pool)
	products := store.Products()
	require.NoError(t, products.Upsert(ctx, product.Product{
		ID: "A", SKU: "SKU-A", Name: "Widget", Price: decimal.NewFromInt(10), Stock: 100, ManageStock: true,
	}))
	require.NoError(t, products.Upsert(ctx, product.Product{
		ID: "RARE", SKU: "SKU-R", Name: "Rare", Price: decimal.NewFromInt(100), Stock: 1, ManageStock: true,
	}))
	return store
}

type scriptedNumbers struct {
	mu      sync.Mutex
	numbers []string
}

func (s *scriptedNumbers) Next(time.Time) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := s.numbers[0]
	if len(s.numbers) > 1 {
		s.numbers = s.numbers[1:]
	}
	return n
}

func newService(t *testing.T, store *postgres.Store, opts ...checkout.Option) *checkout.Service {
	t.Helper()
	cfg := checkout.DefaultConfig()
	cfg.AutoApplyCoupons = false
	cfg.TaxRate = decimal.NewFromInt(10)
	cfg.ShippingRates = map[string]decimal.Decimal{"standard": decimal.NewFromInt(5)}

	calc := discount.NewCalculator(cfg.Rounding)
	repos := store.Repos()
	coupons := coupon.NewService(repos.Coupons, repos.Customers, calc)
	promotions := promotion.NewService(repos.Promotions, repos.Customers, calc)
	opts = append([]checkout.Option{checkout.WithPasswordHasher(checkout.BcryptHasher{Cost: bcrypt.MinCost})}, opts...)
	svc, err := checkout.NewService(cfg, store, coupons, promotions, opts...)
	require.NoError(t, err)
	return svc
}

func guestRequest(email, productID string, qty int, price string) checkout.OrderRequest {
	return checkout.OrderRequest{
		Cart: cart.Cart{Lines: []cart.Line{{
			ProductID: productID, Quantity: qty, UnitPrice: decimal.RequireFromString(price),
		}}},
		Contact: customer.Contact{Email: email, FirstName: "Ada", LastName: "Lovelace"},
		ShippingAddress: order.Address{
			FirstName: "Ada", LastName: "Lovelace", Line1: "12 Analytical St",
			City: "London", PostalCode: "N1 9GU", Country: "GB",
		},
		SameAsShipping: true,
		ShippingMethod: "standard",
		PaymentMethod:  "cod",
	}
}

func TestStore_CreateOrderRoundTrip(t *testing.T) {
	store := newStore(t)
	svc := newService(t, store)
	ctx := context.Background()

	o, err := svc.CreateOrder(ctx, guestRequest("ada@example.com", "A", 3, "10"))
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(30).Equal(o.Subtotal))
	assert.True(t, o.TotalsBalanced(checkout.DefaultConfig().Rounding))

	got, err := svc.GetOrder(ctx, o.Number)
	require.NoError(t, err)
	require.Len(t, got.Items, 1)
	assert.Equal(t, "Widget", got.Items[0].ProductName)
	require.Len(t, got.Addresses, 2)
	assert.Equal(t, order.AddressShipping, got.Addresses[0].Type)

	require.NoError(t, store.Products().Upsert(ctx, product.Product{
		ID: "A", SKU: "SKU-A", Name: "Renamed", Price: decimal.NewFromInt(99), Stock: 10, ManageStock: true,
	}))
	got, err = svc.GetOrder(ctx, o.Number)
	require.NoError(t, err)
	assert.Equal(t, "Widget", got.Items[0].ProductName)
	assert.True(t, decimal.NewFromInt(10).Equal(got.Items[0].Price))
}

func TestStore_ConcurrentGuests(t *testing.T) {
	store := newStore(t)
	svc := newService(t, store)
	ctx := context.Background()

	var g errgroup.Group
	for range 5 {
		g.Go(func() error {
			_, err := svc.CreateOrder(ctx, guestRequest("Same@Example.com", "A", 1, "10"))
			return err
		})
	}
	require.NoError(t, g.Wait())

	c, err := store.Repos().Customers.UpsertGuest(ctx, customer.Contact{Email: "same@example.com"})
	require.NoError(t, err)
	assert.Equal(t, 5, c.TotalOrders)
	assert.True(t, decimal.NewFromInt(5*(10+1+5)).Equal(c.TotalSpent))
}

func TestStore_RollbackOnInsufficientStock(t *testing.T) {
	store := newStore(t)
	svc := newService(t, store)
	ctx := context.Background()

	_, err := svc.CreateOrder(ctx, guestRequest("ada@example.com", "RARE", 2, "100"))
	var stockErr *product.InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	assert.Equal(t, 1, stockErr.Available)

	p, err := store.Repos().Products.GetByID(ctx, "RARE")
	require.NoError(t, err)
	assert.Equal(t, 1, p.Stock)
}

func TestStore_OrderNumberCollisionRetries(t *testing.T) {
	store := newStore(t)
	gen := &scriptedNumbers{numbers: []string{"ORD-1", "ORD-1", "ORD-2"}}
	svc := newService(t, store, checkout.WithNumberGenerator(gen))
	ctx := context.Background()

	first, err := svc.CreateOrder(ctx, guestRequest("a@example.com", "A", 1, "10"))
	require.NoError(t, err)
	second, err := svc.CreateOrder(ctx, guestRequest("b@example.com", "A", 1, "10"))
	require.NoError(t, err)
	assert.Equal(t, "ORD-1", first.Number)
	assert.Equal(t, "ORD-2", second.Number)
}

func TestStore_CouponLastSlotRace(t *testing.T) {
	store := newStore(t)
	svc := newService(t, store)
	ctx := context.Background()

	require.NoError(t, store.Coupons().Upsert(ctx, coupon.Coupon{
		ID: "last", Code: "LAST", Type: discount.CouponFixedAmount, Value: decimal.NewFromInt(2),
		IsActive: true, UsageLimitTotal: ptr(1),
	}))

	const n = 5
	placed := make([]string, n)
	errs := make([]error, n)
	var g errgroup.Group
	for i := range n {
		g.Go(func() error {
			req := guestRequest(fmt.Sprintf("c%d@example.com", i), "A", 1, "10")
			req.CouponCode = "last"
			o, err := svc.CreateOrder(ctx, req)
			if err == nil {
				placed[i] = o.Number
			}
			errs[i] = err
			return nil
		})
	}
	require.NoError(t, g.Wait())

	var winner string
	for i, err := range errs {
		if err == nil {
			require.Empty(t, winner, "only one order may hold the last slot")
			winner = placed[i]
			continue
		}
		assert.ErrorIs(t, err, coupon.ErrExhausted)
	}
	require.NotEmpty(t, winner)

	_, err := svc.ConfirmPayment(ctx, winner)
	require.NoError(t, err)

	c, err := store.Repos().Coupons.FindByCode(ctx, "LAST")
	require.NoError(t, err)
	assert.Equal(t, 1, c.UsageCount)

	held, _, err := store.Repos().Coupons.CountHolds(ctx, "last", "")
	require.NoError(t, err)
	assert.Zero(t, held)
}

func TestCustomerRepository_AccountConversion(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	repo := store.Repos().Customers

	guest, err := repo.UpsertGuest(ctx, customer.Contact{Email: "ada@example.com"})
	require.NoError(t, err)

	acc, err := repo.CreateAccount(ctx, customer.Account{Email: "ADA@example.com", PasswordHash: "x"})
	require.NoError(t, err)
	_, err = repo.CreateAccount(ctx, customer.Account{Email: "ada@example.com", PasswordHash: "y"})
	require.ErrorIs(t, err, customer.ErrEmailTaken)

	converted, err := repo.AttachAccount(ctx, customer.Contact{Email: "ada@example.com"}, acc.ID)
	require.NoError(t, err)
	assert.Equal(t, guest.ID, converted.ID)
	assert.False(t, converted.IsGuest)

	again, err := repo.AttachAccount(ctx, customer.Contact{Email: "ada@example.com"}, acc.ID)
	require.NoError(t, err)
	assert.Equal(t, guest.ID, again.ID)

	_, err = repo.AttachAccount(ctx, customer.Contact{Email: "ada@example.com"}, "someone-else")
	require.ErrorIs(t, err, customer.ErrEmailTaken)
}

func TestCouponRepository_CloneCodes(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	coupons := store.Coupons()

	require.NoError(t, coupons.Upsert(ctx, coupon.Coupon{
		Code: "TEMPLATE", Type: discount.CouponPercentage, Value: decimal.NewFromInt(15), IsActive: true,
	}))
	n, err := coupons.CloneCodes(ctx, "template", []string{"AAAA2222", "BBBB3333", "AAAA2222"})
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	c, err := store.Repos().Coupons.FindByCode(ctx, "aaaa2222")
	require.NoError(t, err)
	require.NotNil(t, c.UsageLimitTotal)
	assert.Equal(t, 1, *c.UsageLimitTotal)
	assert.True(t, decimal.NewFromInt(15).Equal(c.Value))
}

func ptr[T any](v T) *T { return &v }
