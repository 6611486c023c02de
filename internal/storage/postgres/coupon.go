package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/xenking/storefront-checkout/internal/domain/coupon"
)

const (
	couponColumns = `id, code, description, type, value, max_discount, min_order_amount,
		usage_limit_total, usage_limit_per_customer, usage_count, start_date, end_date,
		days_of_week, first_order_only, customer_groups, min_account_age_days,
		applicable_products, applicable_categories, excluded_products, excluded_categories,
		exclude_sale_items, buy_quantity, get_quantity, buy_products, get_products,
		is_active, is_public, auto_apply, priority, created_at, deleted_at`

	getCouponByCodeSQL = `SELECT ` + couponColumns + `
		FROM coupons WHERE UPPER(code) = UPPER($1) AND deleted_at IS NULL`

	lockCouponSQL = `SELECT ` + couponColumns + `
		FROM coupons WHERE id = $1 AND deleted_at IS NULL
		FOR UPDATE`

	countCustomerUsageSQL = `SELECT count(*) FROM coupon_usages WHERE coupon_id = $1 AND customer_id = $2`

	// Mirrors order.Order.HoldsCoupon.
	countCouponHoldsSQL = `SELECT count(*), count(*) FILTER (WHERE customer_id = $2)
		FROM orders
		WHERE coupon_id = $1 AND usage_recorded_at IS NULL
			AND status NOT IN ('cancelled', 'refunded') AND payment_status <> 'failed'`

	listAutoApplyCouponsSQL = `SELECT ` + couponColumns + `
		FROM coupons WHERE is_active AND auto_apply AND deleted_at IS NULL
		ORDER BY priority DESC, code`

	insertCouponUsageSQL = `INSERT INTO coupon_usages
			(id, coupon_id, order_id, customer_id, discount_amount, order_subtotal, used_at, ip_address, user_agent)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	incrementCouponUsageSQL = `UPDATE coupons SET usage_count = usage_count + 1 WHERE id = $1`

	upsertCouponSQL = `INSERT INTO coupons (` + couponColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16,
			$17, $18, $19, $20, $21, $22, $23, $24, $25, $26, $27, $28, $29, $30, $31)
		ON CONFLICT (id) DO UPDATE SET
			code = EXCLUDED.code, description = EXCLUDED.description, type = EXCLUDED.type,
			value = EXCLUDED.value, max_discount = EXCLUDED.max_discount,
			min_order_amount = EXCLUDED.min_order_amount, usage_limit_total = EXCLUDED.usage_limit_total,
			usage_limit_per_customer = EXCLUDED.usage_limit_per_customer,
			start_date = EXCLUDED.start_date, end_date = EXCLUDED.end_date,
			days_of_week = EXCLUDED.days_of_week, first_order_only = EXCLUDED.first_order_only,
			customer_groups = EXCLUDED.customer_groups, min_account_age_days = EXCLUDED.min_account_age_days,
			applicable_products = EXCLUDED.applicable_products,
			applicable_categories = EXCLUDED.applicable_categories,
			excluded_products = EXCLUDED.excluded_products, excluded_categories = EXCLUDED.excluded_categories,
			exclude_sale_items = EXCLUDED.exclude_sale_items, buy_quantity = EXCLUDED.buy_quantity,
			get_quantity = EXCLUDED.get_quantity, buy_products = EXCLUDED.buy_products,
			get_products = EXCLUDED.get_products, is_active = EXCLUDED.is_active,
			is_public = EXCLUDED.is_public, auto_apply = EXCLUDED.auto_apply, priority = EXCLUDED.priority,
			deleted_at = EXCLUDED.deleted_at`

	// cloneCouponSQL copies a template coupon once per code. Clones are
	// single use; codes that already exist are skipped.
	cloneCouponSQL = `INSERT INTO coupons (id, code, description, type, value, max_discount, min_order_amount,
			usage_limit_total, usage_limit_per_customer, start_date, end_date, days_of_week,
			first_order_only, customer_groups, min_account_age_days, applicable_products,
			applicable_categories, excluded_products, excluded_categories, exclude_sale_items,
			buy_quantity, get_quantity, buy_products, get_products, is_active, is_public, auto_apply, priority)
		SELECT gen_random_uuid()::text, c.code, t.description, t.type, t.value, t.max_discount, t.min_order_amount,
			1, 1, t.start_date, t.end_date, t.days_of_week,
			t.first_order_only, t.customer_groups, t.min_account_age_days, t.applicable_products,
			t.applicable_categories, t.excluded_products, t.excluded_categories, t.exclude_sale_items,
			t.buy_quantity, t.get_quantity, t.buy_products, t.get_products, t.is_active, FALSE, FALSE, t.priority
		FROM coupons t, unnest($2::text[]) AS c(code)
		WHERE UPPER(t.code) = UPPER($1) AND t.deleted_at IS NULL
		ON CONFLICT DO NOTHING`
)

var _ coupon.Repository = (*CouponRepository)(nil)

// CouponRepository implements coupon.Repository backed by PostgreSQL.
type CouponRepository struct {
	db DBTX
}

// FindByCode looks up a coupon by its code (case-insensitive).
func (r *CouponRepository) FindByCode(ctx context.Context, code string) (*coupon.Coupon, error) {
	return r.one(ctx, getCouponByCodeSQL, code)
}

// LockByID loads the coupon with SELECT ... FOR UPDATE.
func (r *CouponRepository) LockByID(ctx context.Context, id string) (*coupon.Coupon, error) {
	return r.one(ctx, lockCouponSQL, id)
}

func (r *CouponRepository) CountCustomerUsage(ctx context.Context, couponID, customerID string) (int, error) {
	var n int
	if err := r.db.QueryRow(ctx, countCustomerUsageSQL, couponID, customerID).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting usage of coupon %q: %w", couponID, err)
	}
	return n, nil
}

func (r *CouponRepository) CountHolds(ctx context.Context, couponID, customerID string) (total, forCustomer int, err error) {
	if err := r.db.QueryRow(ctx, countCouponHoldsSQL, couponID, customerID).Scan(&total, &forCustomer); err != nil {
		return 0, 0, fmt.Errorf("counting holds of coupon %q: %w", couponID, err)
	}
	return total, forCustomer, nil
}

func (r *CouponRepository) ListAutoApply(ctx context.Context) ([]coupon.Coupon, error) {
	rows, err := r.db.Query(ctx, listAutoApplyCouponsSQL)
	if err != nil {
		return nil, fmt.Errorf("listing auto-apply coupons: %w", err)
	}
	return pgx.CollectRows(rows, scanCoupon)
}

func (r *CouponRepository) InsertUsage(ctx context.Context, u coupon.Usage) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	_, err := r.db.Exec(ctx, insertCouponUsageSQL,
		u.ID, u.CouponID, u.OrderID, u.CustomerID, u.DiscountAmount, u.OrderSubtotal, u.UsedAt,
		u.IPAddress, u.UserAgent,
	)
	if err != nil {
		return fmt.Errorf("inserting usage of coupon %q: %w", u.CouponID, err)
	}
	return nil
}

func (r *CouponRepository) IncrementUsage(ctx context.Context, couponID string) error {
	tag, err := r.db.Exec(ctx, incrementCouponUsageSQL, couponID)
	if err != nil {
		return fmt.Errorf("incrementing usage of coupon %q: %w", couponID, err)
	}
	if tag.RowsAffected() == 0 {
		return coupon.ErrNotFound
	}
	return nil
}

// Upsert inserts or replaces a coupon. The usage counter of an existing
// coupon is kept.
func (r *CouponRepository) Upsert(ctx context.Context, c coupon.Coupon) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now()
	}
	_, err := r.db.Exec(ctx, upsertCouponSQL,
		c.ID, c.Code, c.Description, c.Type, c.Value, c.MaxDiscount, c.MinOrderAmount,
		c.UsageLimitTotal, c.UsageLimitPerCustomer, c.UsageCount, c.StartDate, c.EndDate,
		weekdaysToInts(c.DaysOfWeek), c.FirstOrderOnly, nonNil(c.CustomerGroups), c.MinAccountAgeDays,
		nonNil(c.ApplicableProducts), nonNil(c.ApplicableCategories),
		nonNil(c.ExcludedProducts), nonNil(c.ExcludedCategories),
		c.ExcludeSaleItems, c.BuyQuantity, c.GetQuantity, nonNil(c.BuyProducts), nonNil(c.GetProducts),
		c.IsActive, c.IsPublic, c.AutoApply, c.Priority, c.CreatedAt, c.DeletedAt,
	)
	if err != nil {
		return fmt.Errorf("upserting coupon %q: %w", c.Code, err)
	}
	return nil
}

// CloneCodes inserts one single-use copy of the template coupon per code and
// returns how many rows were inserted.
func (r *CouponRepository) CloneCodes(ctx context.Context, templateCode string, codes []string) (int64, error) {
	tag, err := r.db.Exec(ctx, cloneCouponSQL, templateCode, codes)
	if err != nil {
		return 0, fmt.Errorf("cloning coupon %q: %w", templateCode, err)
	}
	return tag.RowsAffected(), nil
}

func (r *CouponRepository) one(ctx context.Context, sql string, args ...any) (*coupon.Coupon, error) {
	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("querying coupon: %w", err)
	}
	c, err := pgx.CollectExactlyOneRow(rows, scanCoupon)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, coupon.ErrNotFound
		}
		return nil, fmt.Errorf("querying coupon: %w", err)
	}
	return &c, nil
}

func scanCoupon(row pgx.CollectableRow) (coupon.Coupon, error) {
	var (
		c    coupon.Coupon
		days []int16
	)
	err := row.Scan(
		&c.ID, &c.Code, &c.Description, &c.Type, &c.Value, &c.MaxDiscount, &c.MinOrderAmount,
		&c.UsageLimitTotal, &c.UsageLimitPerCustomer, &c.UsageCount, &c.StartDate, &c.EndDate,
		&days, &c.FirstOrderOnly, &c.CustomerGroups, &c.MinAccountAgeDays,
		&c.ApplicableProducts, &c.ApplicableCategories, &c.ExcludedProducts, &c.ExcludedCategories,
		&c.ExcludeSaleItems, &c.BuyQuantity, &c.GetQuantity, &c.BuyProducts, &c.GetProducts,
		&c.IsActive, &c.IsPublic, &c.AutoApply, &c.Priority, &c.CreatedAt, &c.DeletedAt,
	)
	for _, d := range days {
		c.DaysOfWeek = append(c.DaysOfWeek, time.Weekday(d))
	}
	return c, err
}

func weekdaysToInts(days []time.Weekday) []int16 {
	out := make([]int16, 0, len(days))
	for _, d := range days {
		out = append(out, int16(d))
	}
	return out
}
