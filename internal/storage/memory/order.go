package memory

import (
	"context"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/xenking/storefront-checkout/internal/domain/order"
)

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository.
type OrderRepository struct {
	db  db
	now func() time.Time
}

func copyOrder(o order.Order) *order.Order {
	o.Items = slices.Clone(o.Items)
	o.Addresses = slices.Clone(o.Addresses)
	o.PromotionIDs = slices.Clone(o.PromotionIDs)
	return &o
}

func (r *OrderRepository) Create(_ context.Context, o *order.Order) error {
	return r.db.with(func(st *state) error {
		if _, ok := st.orders[o.Number]; ok {
			return order.ErrDuplicateNumber
		}
		if o.ID == "" {
			o.ID = uuid.NewString()
		}
		now := r.now()
		if o.CreatedAt.IsZero() {
			o.CreatedAt = now
		}
		o.UpdatedAt = now
		for i := range o.Items {
			if o.Items[i].ID == "" {
				o.Items[i].ID = uuid.NewString()
			}
			o.Items[i].OrderID = o.ID
		}
		st.orders[o.Number] = *copyOrder(*o)
		return nil
	})
}

func (r *OrderRepository) FindByNumber(_ context.Context, number string) (*order.Order, error) {
	var out *order.Order
	err := r.db.with(func(st *state) error {
		o, ok := st.orders[number]
		if !ok {
			return order.ErrNotFound
		}
		out = copyOrder(o)
		return nil
	})
	return out, err
}

// LockByNumber is FindByNumber: transactions are already serialized.
func (r *OrderRepository) LockByNumber(ctx context.Context, number string) (*order.Order, error) {
	return r.FindByNumber(ctx, number)
}

func (r *OrderRepository) UpdateStatus(_ context.Context, o *order.Order) error {
	return r.db.with(func(st *state) error {
		stored, ok := st.orders[o.Number]
		if !ok {
			return order.ErrNotFound
		}
		stored.Status = o.Status
		stored.PaymentStatus = o.PaymentStatus
		stored.UsageRecordedAt = o.UsageRecordedAt
		stored.UpdatedAt = r.now()
		st.orders[o.Number] = stored
		return nil
	})
}
