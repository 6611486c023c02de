package memory

import (
	"context"
	"strings"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront-checkout/internal/domain/coupon"
	"github.com/xenking/storefront-checkout/internal/domain/product"
	"github.com/xenking/storefront-checkout/internal/domain/promotion"
)

var (
	_ product.Repository   = (*ProductRepository)(nil)
	_ coupon.Repository    = (*CouponRepository)(nil)
	_ promotion.Repository = (*PromotionRepository)(nil)
)

// ProductRepository implements product.Repository.
type ProductRepository struct {
	db db
}

func (r *ProductRepository) GetByID(_ context.Context, id string) (*product.Product, error) {
	var out *product.Product
	err := r.db.with(func(st *state) error {
		p, ok := st.products[id]
		if !ok {
			return product.ErrNotFound
		}
		out = &p
		return nil
	})
	return out, err
}

func (r *ProductRepository) GetByIDs(_ context.Context, ids []string) ([]product.Product, error) {
	var out []product.Product
	err := r.db.with(func(st *state) error {
		for _, id := range ids {
			if p, ok := st.products[id]; ok {
				out = append(out, p)
			}
		}
		return nil
	})
	return out, err
}

func (r *ProductRepository) ReserveStock(_ context.Context, id string, qty int) (*product.Product, error) {
	var out *product.Product
	err := r.db.with(func(st *state) error {
		p, ok := st.products[id]
		if !ok {
			return errors.Wrapf(product.ErrNotFound, "product %s", id)
		}
		if p.ManageStock {
			if p.Stock < qty {
				return &product.InsufficientStockError{ProductID: id, Requested: qty, Available: p.Stock}
			}
			p.Stock -= qty
			st.products[id] = p
		}
		out = &p
		return nil
	})
	return out, err
}

// CouponRepository implements coupon.Repository.
type CouponRepository struct {
	db db
}

func (r *CouponRepository) FindByCode(_ context.Context, code string) (*coupon.Coupon, error) {
	var out *coupon.Coupon
	err := r.db.with(func(st *state) error {
		for _, c := range st.coupons {
			if c.DeletedAt == nil && strings.EqualFold(c.Code, code) {
				out = &c
				return nil
			}
		}
		return coupon.ErrNotFound
	})
	return out, err
}

// LockByID is a plain read: transactions are already serialized.
func (r *CouponRepository) LockByID(_ context.Context, id string) (*coupon.Coupon, error) {
	var out *coupon.Coupon
	err := r.db.with(func(st *state) error {
		c, ok := st.coupons[id]
		if !ok || c.DeletedAt != nil {
			return coupon.ErrNotFound
		}
		out = &c
		return nil
	})
	return out, err
}

func (r *CouponRepository) CountCustomerUsage(_ context.Context, couponID, customerID string) (int, error) {
	var n int
	err := r.db.with(func(st *state) error {
		for _, u := range st.usages {
			if u.CouponID == couponID && u.CustomerID == customerID {
				n++
			}
		}
		return nil
	})
	return n, err
}

func (r *CouponRepository) CountHolds(_ context.Context, couponID, customerID string) (total, forCustomer int, err error) {
	err = r.db.with(func(st *state) error {
		for _, o := range st.orders {
			if o.CouponID != couponID || !o.HoldsCoupon() {
				continue
			}
			total++
			if o.CustomerID == customerID {
				forCustomer++
			}
		}
		return nil
	})
	return total, forCustomer, err
}

func (r *CouponRepository) ListAutoApply(_ context.Context) ([]coupon.Coupon, error) {
	var out []coupon.Coupon
	err := r.db.with(func(st *state) error {
		for _, c := range st.coupons {
			if c.DeletedAt == nil && c.IsActive && c.AutoApply {
				out = append(out, c)
			}
		}
		return nil
	})
	return out, err
}

func (r *CouponRepository) InsertUsage(_ context.Context, u coupon.Usage) error {
	return r.db.with(func(st *state) error {
		for _, existing := range st.usages {
			if existing.CouponID == u.CouponID && existing.OrderID == u.OrderID {
				return errors.Errorf("usage for coupon %s and order %s already recorded", u.CouponID, u.OrderID)
			}
		}
		if u.ID == "" {
			u.ID = uuid.NewString()
		}
		st.usages = append(st.usages, u)
		return nil
	})
}

func (r *CouponRepository) IncrementUsage(_ context.Context, id string) error {
	return r.db.with(func(st *state) error {
		c, ok := st.coupons[id]
		if !ok {
			return coupon.ErrNotFound
		}
		c.UsageCount++
		st.coupons[id] = c
		return nil
	})
}

// PromotionRepository implements promotion.Repository.
type PromotionRepository struct {
	db db
}

func (r *PromotionRepository) ListActive(_ context.Context, typ promotion.Type) ([]promotion.Promotion, error) {
	var out []promotion.Promotion
	err := r.db.with(func(st *state) error {
		for _, p := range st.promotions {
			if p.IsActive && p.Type == typ {
				out = append(out, p)
			}
		}
		return nil
	})
	return out, err
}

func (r *PromotionRepository) IncrementUsage(_ context.Context, id string, revenue decimal.Decimal) error {
	return r.db.with(func(st *state) error {
		p, ok := st.promotions[id]
		if !ok {
			return promotion.ErrNotFound
		}
		p.UsageCount++
		p.TotalRevenueGenerated = p.TotalRevenueGenerated.Add(revenue)
		st.promotions[id] = p
		return nil
	})
}
