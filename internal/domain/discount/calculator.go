package discount

import (
	"slices"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront-checkout/internal/domain/cart"
	"github.com/xenking/storefront-checkout/internal/domain/money"
)

// Calculator computes discount amounts. Rounding is applied once, to the
// value each method returns.
type Calculator struct {
	rounding money.Rounding
}

// NewCalculator returns a Calculator using the given rounding mode.
func NewCalculator(rounding money.Rounding) Calculator {
	if rounding == "" {
		rounding = money.HalfUp
	}
	return Calculator{rounding: rounding}
}

// Rounding returns the calculator's rounding mode.
func (c Calculator) Rounding() money.Rounding {
	return c.rounding
}

// CouponDiscount dispatches on the coupon type and returns the discount for
// the given subtotal and cart lines. The result never exceeds subtotal.
func (c Calculator) CouponDiscount(t CouponTerms, subtotal decimal.Decimal, lines []cart.Line) (decimal.Decimal, error) {
	var amount decimal.Decimal
	switch t.Type {
	case CouponPercentage:
		amount = money.Cap(money.Percent(c.eligibleAmount(lines, t.Scope), t.Value), t.MaxDiscount)
	case CouponFixedAmount:
		amount = decimal.Min(t.Value, subtotal)
	case CouponFreeShipping:
		amount = money.Zero
	case CouponBuyXGetY:
		amount = buyXGetY(t, lines)
	case CouponFixedPrice:
		amount = fixedPrice(t, lines)
	default:
		return money.Zero, errors.Errorf("unsupported coupon type: %q", t.Type)
	}

	amount = decimal.Min(money.FloorAtZero(amount), money.FloorAtZero(subtotal))
	return c.rounding.Round(amount), nil
}

// EligibleAmount returns the rounded sum of line totals that qualify under s.
func (c Calculator) EligibleAmount(lines []cart.Line, s Scope) decimal.Decimal {
	return c.rounding.Round(c.eligibleAmount(lines, s))
}

func (c Calculator) eligibleAmount(lines []cart.Line, s Scope) decimal.Decimal {
	m := compile(s)
	sum := money.Zero
	for _, l := range lines {
		if m.eligible(l) {
			sum = sum.Add(l.Total())
		}
	}
	return sum
}

// buyXGetY discounts the cheapest freeItems units drawn from the get
// products. Cheapest-first is the policy; ties keep cart order.
func buyXGetY(t CouponTerms, lines []cart.Line) decimal.Decimal {
	if t.BuyQuantity <= 0 || t.GetQuantity <= 0 {
		return money.Zero
	}

	buy := toSet(t.BuyProducts)
	get := toSet(t.GetProducts)

	buyQty := 0
	for _, l := range lines {
		if inSetOrAll(buy, l.ProductID) {
			buyQty += l.Quantity
		}
	}
	if buyQty < t.BuyQuantity {
		return money.Zero
	}

	free := (buyQty / t.BuyQuantity) * t.GetQuantity

	var candidates []cart.Line
	for _, l := range lines {
		if inSetOrAll(get, l.ProductID) && l.Quantity > 0 {
			candidates = append(candidates, l)
		}
	}
	slices.SortStableFunc(candidates, func(a, b cart.Line) int {
		return a.UnitPrice.Cmp(b.UnitPrice)
	})

	sum := money.Zero
	for _, l := range candidates {
		if free == 0 {
			break
		}
		n := min(free, l.Quantity)
		sum = sum.Add(money.LineTotal(l.UnitPrice, n))
		free -= n
	}
	return sum
}

// fixedPrice discounts each eligible line down to the coupon's unit price.
// Lines already at or below that price contribute nothing.
func fixedPrice(t CouponTerms, lines []cart.Line) decimal.Decimal {
	m := compile(t.Scope)
	sum := money.Zero
	for _, l := range lines {
		if !m.eligible(l) || !l.UnitPrice.GreaterThan(t.Value) {
			continue
		}
		sum = sum.Add(money.LineTotal(l.UnitPrice.Sub(t.Value), l.Quantity))
	}
	return sum
}

func inSetOrAll(set map[string]struct{}, id string) bool {
	if len(set) == 0 {
		return true
	}
	_, ok := set[id]
	return ok
}

// PromotionDiscount returns the discount a catalog rule grants on a single
// product price. The result is never larger than price.
func (c Calculator) PromotionDiscount(kind Kind, value decimal.Decimal, max *decimal.Decimal, price decimal.Decimal) decimal.Decimal {
	return c.rounding.Round(c.promotionDiscount(kind, value, max, price))
}

func (c Calculator) promotionDiscount(kind Kind, value decimal.Decimal, max *decimal.Decimal, price decimal.Decimal) decimal.Decimal {
	var amount decimal.Decimal
	switch kind {
	case KindPercentage:
		amount = money.Cap(money.Percent(price, value), max)
	case KindFixedAmount:
		amount = decimal.Min(value, price)
	default:
		return money.Zero
	}
	return decimal.Min(money.FloorAtZero(amount), money.FloorAtZero(price))
}

// PromotionalPrice returns price minus the catalog rule discount.
func (c Calculator) PromotionalPrice(kind Kind, value decimal.Decimal, max *decimal.Decimal, price decimal.Decimal) decimal.Decimal {
	return c.rounding.Round(money.FloorAtZero(price.Sub(c.promotionDiscount(kind, value, max, price))))
}

// CartRuleDiscount applies a cart-rule promotion to the lines matching s.
func (c Calculator) CartRuleDiscount(kind Kind, value decimal.Decimal, max *decimal.Decimal, lines []cart.Line, s Scope) decimal.Decimal {
	return c.rounding.Round(c.promotionDiscount(kind, value, max, c.eligibleAmount(lines, s)))
}

// MatchTier returns the first tier containing qty. Tiers are evaluated in
// order; the first match wins even if a later tier would be larger.
func MatchTier(tiers []Tier, qty int) (Tier, bool) {
	for _, t := range tiers {
		if t.Contains(qty) {
			return t, true
		}
	}
	return Tier{}, false
}

// TieredDiscount returns the discount for qty units at unitPrice. No matching
// tier yields zero.
func (c Calculator) TieredDiscount(tiers []Tier, qty int, unitPrice decimal.Decimal) decimal.Decimal {
	t, ok := MatchTier(tiers, qty)
	if !ok {
		return money.Zero
	}
	amount := money.Percent(money.LineTotal(unitPrice, qty), t.DiscountPercentage)
	return c.rounding.Round(money.FloorAtZero(amount))
}

// Stack combines the discounts resolved for one cart. Without stacking only
// the largest discount applies; with stacking they are summed.
func (c Calculator) Stack(discounts []decimal.Decimal, allowStacking bool) decimal.Decimal {
	if len(discounts) == 0 {
		return money.Zero
	}
	if allowStacking {
		return c.rounding.Round(money.Sum(discounts...))
	}
	return c.rounding.Round(decimal.Max(discounts[0], discounts[1:]...))
}
