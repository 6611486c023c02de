package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"

	"github.com/xenking/storefront-checkout/internal/domain/product"
)

const (
	productColumns = `id, sku, name, price, special_price, category_ids, stock, manage_stock`

	getProductByIDSQL = `SELECT ` + productColumns + ` FROM products WHERE id = $1`

	getProductsByIDsSQL = `SELECT ` + productColumns + ` FROM products WHERE id = ANY($1) ORDER BY id`

	reserveStockSQL = `UPDATE products
		SET stock = CASE WHEN manage_stock THEN stock - $2 ELSE stock END, updated_at = now()
		WHERE id = $1 AND (NOT manage_stock OR stock >= $2)
		RETURNING ` + productColumns

	upsertProductSQL = `INSERT INTO products (` + productColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			sku = EXCLUDED.sku, name = EXCLUDED.name, price = EXCLUDED.price,
			special_price = EXCLUDED.special_price, category_ids = EXCLUDED.category_ids,
			stock = EXCLUDED.stock, manage_stock = EXCLUDED.manage_stock, updated_at = now()`
)

var _ product.Repository = (*ProductRepository)(nil)

// ProductRepository implements product.Repository backed by PostgreSQL.
type ProductRepository struct {
	db DBTX
}

// GetByID returns a single product by its identifier.
func (r *ProductRepository) GetByID(ctx context.Context, id string) (*product.Product, error) {
	rows, err := r.db.Query(ctx, getProductByIDSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting product %q: %w", id, err)
	}

	p, err := pgx.CollectExactlyOneRow(rows, scanProduct)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, product.ErrNotFound
		}
		return nil, fmt.Errorf("getting product %q: %w", id, err)
	}
	return &p, nil
}

// GetByIDs returns products matching any of the given IDs.
func (r *ProductRepository) GetByIDs(ctx context.Context, ids []string) ([]product.Product, error) {
	rows, err := r.db.Query(ctx, getProductsByIDsSQL, ids)
	if err != nil {
		return nil, fmt.Errorf("getting products by ids: %w", err)
	}
	return pgx.CollectRows(rows, scanProduct)
}

// ReserveStock decrements stock with a conditional update, so concurrent
// reservations never drive stock negative.
func (r *ProductRepository) ReserveStock(ctx context.Context, id string, qty int) (*product.Product, error) {
	rows, err := r.db.Query(ctx, reserveStockSQL, id, qty)
	if err != nil {
		return nil, fmt.Errorf("reserving stock for %q: %w", id, err)
	}

	p, err := pgx.CollectExactlyOneRow(rows, scanProduct)
	if err == nil {
		return &p, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("reserving stock for %q: %w", id, err)
	}

	current, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return nil, &product.InsufficientStockError{ProductID: id, Requested: qty, Available: current.Stock}
}

// Upsert inserts or replaces a product.
func (r *ProductRepository) Upsert(ctx context.Context, p product.Product) error {
	_, err := r.db.Exec(ctx, upsertProductSQL,
		p.ID, p.SKU, p.Name, p.Price, p.SpecialPrice, nonNil(p.CategoryIDs), p.Stock, p.ManageStock,
	)
	if err != nil {
		return fmt.Errorf("upserting product %q: %w", p.ID, err)
	}
	return nil
}

func scanProduct(row pgx.CollectableRow) (product.Product, error) {
	var p product.Product
	err := row.Scan(
		&p.ID, &p.SKU, &p.Name, &p.Price, &p.SpecialPrice, &p.CategoryIDs, &p.Stock, &p.ManageStock,
	)
	return p, err
}

// nonNil keeps NOT NULL array columns from receiving NULL.
func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
