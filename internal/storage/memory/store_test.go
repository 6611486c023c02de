package memory

import (
	"context"
	"testing"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/storefront-checkout/internal/domain/checkout"
	"github.com/xenking/storefront-checkout/internal/domain/customer"
	"github.com/xenking/storefront-checkout/internal/domain/order"
	"github.com/xenking/storefront-checkout/internal/domain/product"
)

func TestStore_InTxRollback(t *testing.T) {
	s := New()
	s.PutProduct(product.Product{ID: "A", Price: decimal.NewFromInt(10), Stock: 3, ManageStock: true})
	ctx := context.Background()

	boom := errors.New("boom")
	err := s.InTx(ctx, func(ctx context.Context, r checkout.Repos) error {
		_, err := r.Products.ReserveStock(ctx, "A", 2)
		require.NoError(t, err)
		_, err = r.Customers.UpsertGuest(ctx, customer.Contact{Email: "a@example.com"})
		require.NoError(t, err)
		return boom
	})
	require.ErrorIs(t, err, boom)

	p, err := s.Repos().Products.GetByID(ctx, "A")
	require.NoError(t, err)
	assert.Equal(t, 3, p.Stock)
	assert.Empty(t, s.Customers())
}

func TestStore_ReserveStock(t *testing.T) {
	s := New()
	s.PutProduct(product.Product{ID: "A", Stock: 1, ManageStock: true})
	s.PutProduct(product.Product{ID: "D", Stock: 0})
	ctx := context.Background()
	repo := s.Repos().Products

	_, err := repo.ReserveStock(ctx, "A", 2)
	var stockErr *product.InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	assert.Equal(t, 1, stockErr.Available)

	_, err = repo.ReserveStock(ctx, "D", 5)
	require.NoError(t, err, "unmanaged stock is never reserved")

	_, err = repo.ReserveStock(ctx, "missing", 1)
	require.ErrorIs(t, err, product.ErrNotFound)
}

func TestCustomerRepository_AttachAccountConvertsGuest(t *testing.T) {
	s := New()
	ctx := context.Background()
	repo := s.Repos().Customers

	guest, err := repo.UpsertGuest(ctx, customer.Contact{Email: " Ada@Example.com "})
	require.NoError(t, err)
	assert.True(t, guest.IsGuest)
	assert.Equal(t, "ada@example.com", guest.Email)

	again, err := repo.UpsertGuest(ctx, customer.Contact{Email: "ada@example.com", FirstName: "Ada"})
	require.NoError(t, err)
	assert.Equal(t, guest.ID, again.ID)

	acc, err := repo.AttachAccount(ctx, customer.Contact{Email: "ada@example.com"}, "user-1")
	require.NoError(t, err)
	assert.Equal(t, guest.ID, acc.ID)
	assert.False(t, acc.IsGuest)
	assert.Equal(t, "user-1", acc.UserID)
	assert.Empty(t, acc.GroupID)

	_, err = repo.AttachAccount(ctx, customer.Contact{Email: "ada@example.com"}, "user-2")
	require.ErrorIs(t, err, customer.ErrEmailTaken)
	same, err := repo.AttachAccount(ctx, customer.Contact{Email: "ada@example.com"}, "user-1")
	require.NoError(t, err)
	assert.Equal(t, guest.ID, same.ID)

	_, err = repo.CreateAccount(ctx, customer.Account{Email: "ADA@example.com"})
	require.NoError(t, err)
	_, err = repo.CreateAccount(ctx, customer.Account{Email: "ada@example.com"})
	require.ErrorIs(t, err, customer.ErrEmailTaken)
}

func TestOrderRepository_DuplicateNumber(t *testing.T) {
	s := New()
	ctx := context.Background()
	repo := s.Repos().Orders

	o := &order.Order{Number: "ORD-1", Items: []order.Item{{ProductID: "A", Quantity: 1}}}
	require.NoError(t, repo.Create(ctx, o))
	assert.NotEmpty(t, o.ID)
	assert.Equal(t, o.ID, o.Items[0].OrderID)

	require.ErrorIs(t, repo.Create(ctx, &order.Order{Number: "ORD-1"}), order.ErrDuplicateNumber)

	_, err := repo.FindByNumber(ctx, "ORD-2")
	require.ErrorIs(t, err, order.ErrNotFound)
}
