// Package cart defines the immutable cart snapshot the checkout engine
// receives per request, together with the precomputed tax and shipping
// results supplied by external calculators.
package cart

import (
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront-checkout/internal/domain/money"
)

// MaxLineQuantity bounds the quantity of one line.
const MaxLineQuantity = 10000

// Line is a single cart entry. UnitPrice is the price snapshot taken when the
// product was added to the cart. Checkout requires it to match the catalog
// and overwrites CategoryIDs and OnSale from the catalog.
type Line struct {
	ProductID   string            `json:"product_id" validate:"required"`
	Quantity    int               `json:"quantity" validate:"gt=0,lte=10000"`
	UnitPrice   decimal.Decimal   `json:"unit_price" validate:"gte=0"`
	TaxClassID  string            `json:"tax_class_id,omitempty"`
	Weight      decimal.Decimal   `json:"weight"`
	Options     map[string]string `json:"options,omitempty"`
	CategoryIDs []string          `json:"category_ids,omitempty"`
	// OnSale marks lines whose unit price is a sale price.
	OnSale bool `json:"on_sale,omitempty"`
}

// Total returns UnitPrice * Quantity.
func (l Line) Total() decimal.Decimal {
	return money.LineTotal(l.UnitPrice, l.Quantity)
}

// InCategory reports whether the line belongs to any of the given categories.
func (l Line) InCategory(categories map[string]struct{}) bool {
	for _, c := range l.CategoryIDs {
		if _, ok := categories[c]; ok {
			return true
		}
	}
	return false
}

// Cart is the ordered list of lines for one checkout.
type Cart struct {
	Lines []Line `json:"lines"`
}

// IsEmpty reports whether the cart has no lines.
func (c Cart) IsEmpty() bool {
	return len(c.Lines) == 0
}

// Subtotal returns the unrounded sum of line totals.
func (c Cart) Subtotal() decimal.Decimal {
	sum := money.Zero
	for _, l := range c.Lines {
		sum = sum.Add(l.Total())
	}
	return sum
}

// ItemCount returns the number of distinct lines.
func (c Cart) ItemCount() int {
	return len(c.Lines)
}

// TotalQuantity returns the sum of quantities across all lines.
func (c Cart) TotalQuantity() int {
	total := 0
	for _, l := range c.Lines {
		total += l.Quantity
	}
	return total
}

// ProductIDs returns the set of product ids present in the cart.
func (c Cart) ProductIDs() map[string]struct{} {
	ids := make(map[string]struct{}, len(c.Lines))
	for _, l := range c.Lines {
		ids[l.ProductID] = struct{}{}
	}
	return ids
}

// TaxLine is one entry of an external tax breakdown.
type TaxLine struct {
	Name   string          `json:"name"`
	Rate   decimal.Decimal `json:"rate"`
	Amount decimal.Decimal `json:"amount"`
}

// TaxResult is produced by the external tax calculator.
type TaxResult struct {
	Breakdown []TaxLine       `json:"breakdown"`
	Total     decimal.Decimal `json:"total"`
}

// ShippingOption is one quote returned by the external shipping calculator.
type ShippingOption struct {
	Code string          `json:"code"`
	Name string          `json:"name"`
	Cost decimal.Decimal `json:"cost"`
}

// ShippingResult is produced by the external shipping calculator.
type ShippingResult struct {
	Options  []ShippingOption `json:"options"`
	Selected string           `json:"selected"`
	Cost     decimal.Decimal  `json:"cost"`
}
