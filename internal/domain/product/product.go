// Package product is the catalog snapshot source consulted at checkout and
// the stock reservation contract.
package product

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when a requested product does not exist.
var ErrNotFound = errors.New("product not found")

// Product represents a catalog item available for purchase.
type Product struct {
	ID           string
	SKU          string
	Name         string
	Price        decimal.Decimal
	SpecialPrice *decimal.Decimal
	CategoryIDs  []string
	Stock        int
	// ManageStock disables reservation checks when false.
	ManageStock bool
}

// OnSale reports whether a special price below the regular price is set.
func (p Product) OnSale() bool {
	return p.SpecialPrice != nil && p.SpecialPrice.LessThan(p.Price)
}

// EffectivePrice returns the special price when on sale, otherwise Price.
func (p Product) EffectivePrice() decimal.Decimal {
	if p.OnSale() {
		return *p.SpecialPrice
	}
	return p.Price
}

// Snapshot is the product state captured on an order item.
type Snapshot struct {
	ID   string
	SKU  string
	Name string
}

// Snapshot returns the fields copied onto order items.
func (p Product) Snapshot() Snapshot {
	return Snapshot{ID: p.ID, SKU: p.SKU, Name: p.Name}
}

// InsufficientStockError is returned when a reservation exceeds available stock.
type InsufficientStockError struct {
	ProductID string
	Requested int
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %q: requested %d, available %d",
		e.ProductID, e.Requested, e.Available)
}

// Repository defines operations on the product catalog.
type Repository interface {
	GetByID(ctx context.Context, id string) (*Product, error)
	GetByIDs(ctx context.Context, ids []string) ([]Product, error)
	// ReserveStock decrements stock for qty units and returns the product
	// snapshot. It returns ErrNotFound or *InsufficientStockError. Callers run
	// it inside the order transaction so a failure rolls back every
	// reservation made before it.
	ReserveStock(ctx context.Context, id string, qty int) (*Product, error)
}
