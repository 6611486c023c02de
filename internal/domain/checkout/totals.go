package checkout

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"

	"github.com/xenking/storefront-checkout/internal/domain/cart"
	"github.com/xenking/storefront-checkout/internal/domain/coupon"
	"github.com/xenking/storefront-checkout/internal/domain/discount"
	"github.com/xenking/storefront-checkout/internal/domain/money"
	"github.com/xenking/storefront-checkout/internal/domain/promotion"
)

// TotalsRequest is the input to CalculateTotals.
type TotalsRequest struct {
	Cart cart.Cart
	// CouponCode is the code entered by the customer. When empty and
	// auto-apply is enabled the best valid auto-apply coupon is used.
	CouponCode     string
	CustomerID     string
	ShippingMethod string
	// Tax and Shipping are precomputed results from external calculators.
	// When nil the configured TaxRate and ShippingRates are used.
	Tax      *cart.TaxResult
	Shipping *cart.ShippingResult
}

// Totals is the money breakdown of a cart. Every component is rounded and
// Total == Subtotal + Tax + ShippingCost - Discount holds exactly.
type Totals struct {
	Subtotal     decimal.Decimal
	Tax          decimal.Decimal
	ShippingCost decimal.Decimal
	Discount     decimal.Decimal
	Total        decimal.Decimal

	Coupon            *coupon.Coupon
	CouponDiscount    decimal.Decimal
	CouponMessage     string
	PromotionDiscount decimal.Decimal
	Promotions        []promotion.Applied
	FreeShipping      bool
	TaxBreakdown      []cart.TaxLine
}

// PromotionIDs returns the ids of the applied promotions.
func (t *Totals) PromotionIDs() []string {
	ids := make([]string, 0, len(t.Promotions))
	for _, p := range t.Promotions {
		ids = append(ids, p.PromotionID)
	}
	return ids
}

// Balanced reports whether the totals satisfy the order invariant under r.
func (t *Totals) Balanced(r money.Rounding) bool {
	want := t.Subtotal.Add(t.Tax).Add(t.ShippingCost).Sub(t.Discount)
	return r.Equal(t.Total, want) && !t.Total.IsNegative()
}

func (t *Totals) check(r money.Rounding) error {
	if !t.Balanced(r) {
		return &TotalsMismatchError{
			Expected: t.Subtotal.Add(t.Tax).Add(t.ShippingCost).Sub(t.Discount),
			Actual:   t.Total,
		}
	}
	return nil
}

// CalculateTotals computes the totals for a cart using the non-transactional
// repositories. Lines are checked against the catalog first.
func (s *Service) CalculateTotals(ctx context.Context, req TotalsRequest) (*Totals, error) {
	ctx, span := s.tracer.Start(ctx, "checkout.CalculateTotals")
	defer span.End()

	if req.Cart.IsEmpty() {
		return nil, ErrEmptyCart
	}
	repos := s.store.Repos()
	priced, err := priceCart(ctx, repos.Products, req.Cart)
	if err != nil {
		return nil, err
	}
	req.Cart = priced

	coupons, promotions := s.bound(repos)
	t, err := s.calculate(ctx, coupons, promotions, req)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("checkout.total", money.Format(t.Total)))
	return t, nil
}

func (s *Service) calculate(ctx context.Context, coupons *coupon.Service, promotions *promotion.Service, req TotalsRequest) (*Totals, error) {
	r := s.cfg.Rounding
	lines := req.Cart.Lines
	t := &Totals{
		Subtotal:          r.Round(req.Cart.Subtotal()),
		CouponDiscount:    money.Zero,
		PromotionDiscount: money.Zero,
	}

	app, err := s.resolveCoupon(ctx, coupons, req, t.Subtotal)
	if err != nil {
		return nil, err
	}
	if app != nil {
		t.Coupon = app.Coupon
		t.CouponDiscount = app.Amount
		t.CouponMessage = app.Message
		t.FreeShipping = app.Coupon.Type == discount.CouponFreeShipping
	}

	promo, err := promotions.ApplyCartRules(ctx, lines, t.Subtotal, req.CustomerID)
	if err != nil {
		return nil, errors.Wrap(err, "apply cart rules")
	}
	t.PromotionDiscount = promo.TotalDiscount
	t.Promotions = promo.Applied

	s.stack(t)

	t.Tax, t.TaxBreakdown = s.tax(req, t.Subtotal.Sub(t.Discount))
	t.ShippingCost, err = s.shipping(req, t.FreeShipping)
	if err != nil {
		return nil, err
	}

	t.Total = t.Subtotal.Add(t.Tax).Add(t.ShippingCost).Sub(t.Discount)
	if err := t.check(r); err != nil {
		return nil, err
	}
	return t, nil
}

// resolveCoupon validates the entered coupon, or picks the first valid
// auto-apply coupon when none was entered. A rejected entered code is an
// error; rejected auto-apply coupons are skipped.
func (s *Service) resolveCoupon(ctx context.Context, coupons *coupon.Service, req TotalsRequest, subtotal decimal.Decimal) (*coupon.Application, error) {
	if req.CouponCode != "" {
		c, err := coupons.Validate(ctx, req.CouponCode, req.CustomerID, subtotal)
		if err != nil {
			return nil, err
		}
		return coupons.Apply(c, subtotal, req.Cart.Lines)
	}

	if !s.cfg.AutoApplyCoupons {
		return nil, nil
	}
	auto, err := coupons.GetAutoApplyCoupons(ctx, req.CustomerID)
	if err != nil {
		return nil, err
	}
	for _, candidate := range auto {
		c, err := coupons.Validate(ctx, candidate.Code, req.CustomerID, subtotal)
		if err != nil {
			if _, ok := coupon.AsRejection(err); ok {
				continue
			}
			return nil, err
		}
		return coupons.Apply(c, subtotal, req.Cart.Lines)
	}
	return nil, nil
}

// stack combines the coupon and promotion discounts once for the cart and
// caps the result at the subtotal. Without stacking the losing side is
// dropped so its usage is never recorded. A free-shipping coupon keeps its
// shipping waiver either way.
func (s *Service) stack(t *Totals) {
	t.Discount = s.calc.Stack([]decimal.Decimal{t.CouponDiscount, t.PromotionDiscount}, s.cfg.AllowStacking)

	if !s.cfg.AllowStacking && t.Coupon != nil && t.PromotionDiscount.IsPositive() {
		if t.CouponDiscount.GreaterThanOrEqual(t.PromotionDiscount) {
			t.PromotionDiscount = money.Zero
			t.Promotions = nil
		} else if !t.FreeShipping {
			t.Coupon = nil
			t.CouponDiscount = money.Zero
			t.CouponMessage = ""
		}
	}

	if t.Discount.GreaterThan(t.Subtotal) {
		t.Discount = t.Subtotal
	}
}

func (s *Service) tax(req TotalsRequest, taxable decimal.Decimal) (decimal.Decimal, []cart.TaxLine) {
	r := s.cfg.Rounding
	if req.Tax != nil {
		return r.Round(money.FloorAtZero(req.Tax.Total)), req.Tax.Breakdown
	}
	return r.Round(money.Percent(money.FloorAtZero(taxable), s.cfg.TaxRate)), nil
}

func (s *Service) shipping(req TotalsRequest, free bool) (decimal.Decimal, error) {
	if free {
		return money.Zero, nil
	}
	r := s.cfg.Rounding
	if req.Shipping != nil {
		return r.Round(money.FloorAtZero(req.Shipping.Cost)), nil
	}
	if req.ShippingMethod == "" || len(s.cfg.ShippingRates) == 0 {
		return money.Zero, nil
	}
	rate, ok := s.cfg.ShippingRates[req.ShippingMethod]
	if !ok {
		return money.Zero, errors.Wrapf(ErrUnknownShippingMethod, "method %q", req.ShippingMethod)
	}
	return r.Round(rate), nil
}
