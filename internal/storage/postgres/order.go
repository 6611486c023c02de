package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/xenking/storefront-checkout/internal/domain/order"
)

const (
	orderColumns = `id, order_number, COALESCE(user_id, ''), customer_id, status, payment_status,
		subtotal, tax, shipping_cost, discount, total,
		COALESCE(coupon_id, ''), coupon_code, coupon_discount, promotion_ids,
		payment_method, shipping_method, customer_email, customer_phone, notes, ip_address, user_agent,
		usage_recorded_at, created_at, updated_at`

	createOrderSQL = `INSERT INTO orders (id, order_number, user_id, customer_id, status, payment_status,
			subtotal, tax, shipping_cost, discount, total,
			coupon_id, coupon_code, coupon_discount, promotion_ids,
			payment_method, shipping_method, customer_email, customer_phone, notes, ip_address, user_agent,
			usage_recorded_at, created_at, updated_at)
		VALUES ($1, $2, NULLIF($3, ''), $4, $5, $6, $7, $8, $9, $10, $11,
			NULLIF($12, ''), $13, $14, $15, $16, $17, $18, $19, $20, $21, $22, $23, $24, $25)`

	createOrderItemSQL = `INSERT INTO order_items (id, order_id, product_id, product_sku, product_name,
			quantity, price, total, tax_amount, discount_amount, options, position)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	createOrderAddressSQL = `INSERT INTO order_addresses (order_id, type, first_name, last_name, company,
			line1, line2, city, state, postal_code, country, phone)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	getOrderByNumberSQL = `SELECT ` + orderColumns + ` FROM orders WHERE order_number = $1`

	lockOrderByNumberSQL = `SELECT ` + orderColumns + ` FROM orders WHERE order_number = $1 FOR UPDATE`

	listOrderItemsSQL = `SELECT id, order_id, product_id, product_sku, product_name,
			quantity, price, total, tax_amount, discount_amount, options
		FROM order_items WHERE order_id = $1 ORDER BY position`

	listOrderAddressesSQL = `SELECT type, first_name, last_name, company, line1, line2, city, state,
			postal_code, country, phone
		FROM order_addresses WHERE order_id = $1 ORDER BY type DESC`

	updateOrderStatusSQL = `UPDATE orders
		SET status = $2, payment_status = $3, usage_recorded_at = $4, updated_at = $5
		WHERE id = $1`
)

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository backed by PostgreSQL.
type OrderRepository struct {
	db  DBTX
	now func() time.Time
}

// Create persists the order, its items and addresses. The writes run in a
// nested transaction (a savepoint inside an outer transaction) so an order
// number collision can be retried without aborting the caller's transaction.
func (r *OrderRepository) Create(ctx context.Context, o *order.Order) error {
	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	now := r.now()
	if o.CreatedAt.IsZero() {
		o.CreatedAt = now
	}
	o.UpdatedAt = now

	sp, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("creating order %q: %w", o.Number, err)
	}
	defer func() { _ = sp.Rollback(ctx) }()

	_, err = sp.Exec(ctx, createOrderSQL,
		o.ID, o.Number, o.UserID, o.CustomerID, o.Status, o.PaymentStatus,
		o.Subtotal, o.Tax, o.ShippingCost, o.Discount, o.Total,
		o.CouponID, o.CouponCode, o.CouponDiscount, nonNil(o.PromotionIDs),
		o.PaymentMethod, o.ShippingMethod, o.CustomerEmail, o.CustomerPhone, o.Notes, o.IPAddress, o.UserAgent,
		o.UsageRecordedAt, o.CreatedAt, o.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err, "orders_order_number_key") {
			return order.ErrDuplicateNumber
		}
		return fmt.Errorf("creating order %q: %w", o.Number, err)
	}

	batch := &pgx.Batch{}
	for i := range o.Items {
		it := &o.Items[i]
		if it.ID == "" {
			it.ID = uuid.NewString()
		}
		it.OrderID = o.ID
		options := it.Options
		if options == nil {
			options = map[string]string{}
		}
		batch.Queue(createOrderItemSQL,
			it.ID, it.OrderID, it.ProductID, it.ProductSKU, it.ProductName,
			it.Quantity, it.Price, it.Total, it.TaxAmount, it.DiscountAmount, options, i,
		)
	}
	for _, a := range o.Addresses {
		batch.Queue(createOrderAddressSQL,
			o.ID, a.Type, a.FirstName, a.LastName, a.Company,
			a.Line1, a.Line2, a.City, a.State, a.PostalCode, a.Country, a.Phone,
		)
	}
	if err := sp.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("creating items of order %q: %w", o.Number, err)
	}

	if err := sp.Commit(ctx); err != nil {
		return fmt.Errorf("creating order %q: %w", o.Number, err)
	}
	return nil
}

func (r *OrderRepository) FindByNumber(ctx context.Context, number string) (*order.Order, error) {
	return r.load(ctx, getOrderByNumberSQL, number)
}

// LockByNumber loads the order with SELECT ... FOR UPDATE.
func (r *OrderRepository) LockByNumber(ctx context.Context, number string) (*order.Order, error) {
	return r.load(ctx, lockOrderByNumberSQL, number)
}

func (r *OrderRepository) UpdateStatus(ctx context.Context, o *order.Order) error {
	o.UpdatedAt = r.now()
	tag, err := r.db.Exec(ctx, updateOrderStatusSQL, o.ID, o.Status, o.PaymentStatus, o.UsageRecordedAt, o.UpdatedAt)
	if err != nil {
		return fmt.Errorf("updating order %q: %w", o.Number, err)
	}
	if tag.RowsAffected() == 0 {
		return order.ErrNotFound
	}
	return nil
}

func (r *OrderRepository) load(ctx context.Context, sql, number string) (*order.Order, error) {
	rows, err := r.db.Query(ctx, sql, number)
	if err != nil {
		return nil, fmt.Errorf("getting order %q: %w", number, err)
	}
	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, fmt.Errorf("getting order %q: %w", number, err)
	}

	rows, err = r.db.Query(ctx, listOrderItemsSQL, o.ID)
	if err != nil {
		return nil, fmt.Errorf("getting items of order %q: %w", number, err)
	}
	if o.Items, err = pgx.CollectRows(rows, scanOrderItem); err != nil {
		return nil, fmt.Errorf("getting items of order %q: %w", number, err)
	}

	rows, err = r.db.Query(ctx, listOrderAddressesSQL, o.ID)
	if err != nil {
		return nil, fmt.Errorf("getting addresses of order %q: %w", number, err)
	}
	if o.Addresses, err = pgx.CollectRows(rows, scanAddress); err != nil {
		return nil, fmt.Errorf("getting addresses of order %q: %w", number, err)
	}
	return &o, nil
}

func scanOrder(row pgx.CollectableRow) (order.Order, error) {
	var o order.Order
	err := row.Scan(
		&o.ID, &o.Number, &o.UserID, &o.CustomerID, &o.Status, &o.PaymentStatus,
		&o.Subtotal, &o.Tax, &o.ShippingCost, &o.Discount, &o.Total,
		&o.CouponID, &o.CouponCode, &o.CouponDiscount, &o.PromotionIDs,
		&o.PaymentMethod, &o.ShippingMethod, &o.CustomerEmail, &o.CustomerPhone, &o.Notes, &o.IPAddress, &o.UserAgent,
		&o.UsageRecordedAt, &o.CreatedAt, &o.UpdatedAt,
	)
	return o, err
}

func scanOrderItem(row pgx.CollectableRow) (order.Item, error) {
	var it order.Item
	err := row.Scan(
		&it.ID, &it.OrderID, &it.ProductID, &it.ProductSKU, &it.ProductName,
		&it.Quantity, &it.Price, &it.Total, &it.TaxAmount, &it.DiscountAmount, &it.Options,
	)
	return it, err
}

func scanAddress(row pgx.CollectableRow) (order.Address, error) {
	var a order.Address
	err := row.Scan(
		&a.Type, &a.FirstName, &a.LastName, &a.Company, &a.Line1, &a.Line2, &a.City, &a.State,
		&a.PostalCode, &a.Country, &a.Phone,
	)
	return a, err
}
