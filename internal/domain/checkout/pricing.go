package checkout

import (
	"context"

	"github.com/go-faster/errors"

	"github.com/xenking/storefront-checkout/internal/domain/cart"
	"github.com/xenking/storefront-checkout/internal/domain/product"
)

// PriceCart checks a cart against the catalog using the non-transactional
// repositories. See priceCart.
func (s *Service) PriceCart(ctx context.Context, c cart.Cart) (cart.Cart, error) {
	return priceCart(ctx, s.store.Repos().Products, c)
}

// priceCart returns a copy of c whose lines carry catalog data. Each line
// must quote the product's current effective price, otherwise
// *PriceMismatchError is returned. Sale flags and categories always come
// from the catalog.
func priceCart(ctx context.Context, products product.Repository, c cart.Cart) (cart.Cart, error) {
	ids := make([]string, 0, len(c.Lines))
	for _, l := range c.Lines {
		if l.Quantity <= 0 || l.Quantity > cart.MaxLineQuantity {
			return cart.Cart{}, errors.Wrapf(ErrInvalidQuantity, "product %s: %d", l.ProductID, l.Quantity)
		}
		ids = append(ids, l.ProductID)
	}

	found, err := products.GetByIDs(ctx, ids)
	if err != nil {
		return cart.Cart{}, errors.Wrap(err, "load cart products")
	}
	catalog := make(map[string]product.Product, len(found))
	for _, p := range found {
		catalog[p.ID] = p
	}

	lines := make([]cart.Line, len(c.Lines))
	for i, l := range c.Lines {
		p, ok := catalog[l.ProductID]
		if !ok {
			return cart.Cart{}, errors.Wrapf(product.ErrNotFound, "product %s", l.ProductID)
		}
		if err := checkPrice(l, p); err != nil {
			return cart.Cart{}, err
		}
		l.OnSale = p.OnSale()
		l.CategoryIDs = p.CategoryIDs
		lines[i] = l
	}
	return cart.Cart{Lines: lines}, nil
}

func checkPrice(l cart.Line, p product.Product) error {
	if want := p.EffectivePrice(); l.UnitPrice.IsNegative() || !l.UnitPrice.Equal(want) {
		return &PriceMismatchError{ProductID: p.ID, Expected: want, Actual: l.UnitPrice}
	}
	return nil
}
