package promotion

import (
	"cmp"
	"context"
	"slices"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xenking/storefront-checkout/internal/domain/cart"
	"github.com/xenking/storefront-checkout/internal/domain/customer"
	"github.com/xenking/storefront-checkout/internal/domain/discount"
	"github.com/xenking/storefront-checkout/internal/domain/money"
	"github.com/xenking/storefront-checkout/internal/domain/product"
)

// Applied is one promotion that contributed to a cart discount.
type Applied struct {
	PromotionID string
	Name        string
	Amount      decimal.Decimal
}

// CartResult is the outcome of evaluating cart rules.
type CartResult struct {
	TotalDiscount decimal.Decimal
	Applied       []Applied
}

// IDs returns the applied promotion ids in evaluation order.
func (r *CartResult) IDs() []string {
	ids := make([]string, 0, len(r.Applied))
	for _, a := range r.Applied {
		ids = append(ids, a.PromotionID)
	}
	return ids
}

// ProductBadge is the best catalog promotion for a product and its resulting price.
type ProductBadge struct {
	Promotion        *Promotion
	Price            decimal.Decimal
	PromotionalPrice decimal.Decimal
	Discount         decimal.Decimal
}

// ProfileSource resolves eligibility facts about a customer.
type ProfileSource interface {
	Profile(ctx context.Context, customerID string) (*customer.Profile, error)
}

// Service evaluates promotions.
type Service struct {
	repo     Repository
	profiles ProfileSource
	calc     discount.Calculator
	now      func() time.Time
}

// NewService creates a Service.
func NewService(repo Repository, profiles ProfileSource, calc discount.Calculator, opts ...Option) *Service {
	s := &Service{repo: repo, profiles: profiles, calc: calc, now: time.Now}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// Bind returns a copy of the service using repositories bound to a
// transaction.
func (s *Service) Bind(repo Repository, profiles ProfileSource) *Service {
	c := *s
	c.repo = repo
	c.profiles = profiles
	return &c
}

// FindBestForProduct returns the catalog promotion shown for p. Eligible
// promotions are ranked by priority, then by discount value, both
// descending.
func (s *Service) FindBestForProduct(p product.Product, promotions []Promotion) (*Promotion, bool) {
	l := productLine(p)
	now := s.now()

	var candidates []Promotion
	for _, promo := range promotions {
		if !promo.ActiveAt(now) {
			continue
		}
		if discount.Eligible(l, promo.Actions.Scope()) {
			candidates = append(candidates, promo)
		}
	}
	if len(candidates) == 0 {
		return nil, false
	}

	slices.SortStableFunc(candidates, func(a, b Promotion) int {
		if c := cmp.Compare(b.Priority, a.Priority); c != 0 {
			return c
		}
		return b.DiscountValue.Cmp(a.DiscountValue)
	})
	return &candidates[0], true
}

func productLine(p product.Product) cart.Line {
	return cart.Line{
		ProductID:   p.ID,
		Quantity:    1,
		UnitPrice:   p.EffectivePrice(),
		CategoryIDs: p.CategoryIDs,
		OnSale:      p.OnSale(),
	}
}

// BadgeFor loads catalog rules and returns the best promotion for p with its
// promotional price. ok is false when no promotion applies.
func (s *Service) BadgeFor(ctx context.Context, p product.Product) (*ProductBadge, bool, error) {
	promos, err := s.repo.ListActive(ctx, TypeCatalogRule)
	if err != nil {
		return nil, false, errors.Wrap(err, "list catalog rules")
	}
	best, ok := s.FindBestForProduct(p, promos)
	if !ok {
		return nil, false, nil
	}

	price := p.EffectivePrice()
	return &ProductBadge{
		Promotion:        best,
		Price:            price,
		PromotionalPrice: s.calc.PromotionalPrice(best.DiscountType, best.DiscountValue, best.MaxDiscount, price),
		Discount:         s.calc.PromotionDiscount(best.DiscountType, best.DiscountValue, best.MaxDiscount, price),
	}, true, nil
}

// ApplyCartRules evaluates active cart-rule and tiered-pricing promotions
// in priority order. Rules whose conditions fail are skipped. A rule with
// StopRulesProcessing ends evaluation once it has been applied.
func (s *Service) ApplyCartRules(ctx context.Context, lines []cart.Line, subtotal decimal.Decimal, customerID string) (*CartResult, error) {
	rules, err := s.repo.ListActive(ctx, TypeCartRule)
	if err != nil {
		return nil, errors.Wrap(err, "list cart rules")
	}
	tiered, err := s.repo.ListActive(ctx, TypeTieredPricing)
	if err != nil {
		return nil, errors.Wrap(err, "list tiered pricing")
	}
	rules = append(rules, tiered...)
	slices.SortStableFunc(rules, func(a, b Promotion) int {
		return cmp.Compare(b.Priority, a.Priority)
	})

	now := s.now()
	var profile *customer.Profile
	profileLoaded := false

	result := &CartResult{TotalDiscount: money.Zero}
	for i := range rules {
		rule := &rules[i]
		if !rule.ActiveAt(now) {
			continue
		}

		if needsProfile(rule.Conditions) && !profileLoaded {
			profile, err = s.profile(ctx, customerID)
			if err != nil {
				return nil, err
			}
			profileLoaded = true
		}
		if !meetsConditions(rule.Conditions, lines, subtotal, profile) {
			continue
		}

		amount := s.ruleDiscount(rule, lines)
		if amount.IsPositive() {
			result.TotalDiscount = result.TotalDiscount.Add(amount)
			result.Applied = append(result.Applied, Applied{PromotionID: rule.ID, Name: rule.Name, Amount: amount})
		}
		if rule.StopRulesProcessing {
			break
		}
	}
	return result, nil
}

func (s *Service) ruleDiscount(p *Promotion, lines []cart.Line) decimal.Decimal {
	if p.Type != TypeTieredPricing {
		return s.calc.CartRuleDiscount(p.DiscountType, p.DiscountValue, p.MaxDiscount, lines, p.Actions.Scope())
	}
	scope := p.Actions.Scope()
	sum := money.Zero
	for _, l := range lines {
		if discount.Eligible(l, scope) {
			sum = sum.Add(s.calc.TieredDiscount(p.PriceTiers, l.Quantity, l.UnitPrice))
		}
	}
	return sum
}

func needsProfile(c Conditions) bool {
	return c.FirstOrderOnly || len(c.CustomerGroups) > 0
}

// meetsConditions mirrors the coupon checks for minimum order, first order
// and customer group. A nil profile is a guest.
func meetsConditions(c Conditions, lines []cart.Line, subtotal decimal.Decimal, profile *customer.Profile) bool {
	if c.MinOrderAmount != nil && subtotal.LessThan(*c.MinOrderAmount) {
		return false
	}
	if c.MinItems != nil && len(lines) < *c.MinItems {
		return false
	}
	if c.MinQuantity != nil {
		qty := 0
		for _, l := range lines {
			qty += l.Quantity
		}
		if qty < *c.MinQuantity {
			return false
		}
	}
	if len(c.CustomerGroups) > 0 {
		group := customer.GuestGroup
		if profile != nil && profile.GroupID != "" {
			group = profile.GroupID
		}
		if !slices.Contains(c.CustomerGroups, group) {
			return false
		}
	}
	if len(c.RequiresProducts) > 0 && !containsAny(lines, c.RequiresProducts) {
		return false
	}
	if c.FirstOrderOnly && profile != nil && profile.OrderCount > 0 {
		return false
	}
	return true
}

func containsAny(lines []cart.Line, productIDs []string) bool {
	for _, l := range lines {
		if slices.Contains(productIDs, l.ProductID) {
			return true
		}
	}
	return false
}

func (s *Service) profile(ctx context.Context, customerID string) (*customer.Profile, error) {
	if customerID == "" {
		return nil, nil
	}
	p, err := s.profiles.Profile(ctx, customerID)
	if err != nil {
		if errors.Is(err, customer.ErrNotFound) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "load customer profile")
	}
	return p, nil
}

// RecordUsage increments usage and revenue for each applied promotion. The
// caller invokes it once per order, when payment is confirmed.
func (s *Service) RecordUsage(ctx context.Context, promotionIDs []string, revenue decimal.Decimal) error {
	for _, id := range promotionIDs {
		if err := s.repo.IncrementUsage(ctx, id, revenue); err != nil {
			return errors.Wrapf(err, "record promotion %s usage", id)
		}
	}
	if len(promotionIDs) > 0 {
		zctx.From(ctx).Info("Promotion usage recorded",
			zap.Strings("promotion_ids", promotionIDs),
			zap.String("revenue", money.Format(revenue)),
		)
	}
	return nil
}
