package coupon

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xenking/storefront-checkout/internal/domain/cart"
	"github.com/xenking/storefront-checkout/internal/domain/customer"
	"github.com/xenking/storefront-checkout/internal/domain/discount"
	"github.com/xenking/storefront-checkout/internal/domain/money"
)

// Application is the result of applying a valid coupon to a cart.
type Application struct {
	Coupon  *Coupon
	Amount  decimal.Decimal
	Message string
}

// Service validates, applies and records coupons.
type Service struct {
	repo     Repository
	profiles ProfileSource
	calc     discount.Calculator
	now      func() time.Time
}

// NewService creates a Service backed by the given repository and profile
// source.
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

// Validate runs the coupon checks in a fixed order and stops at the first
// failure. Business failures are returned as *Rejection; any other error is
// an infrastructure failure. customerID may be empty for guests.
func (s *Service) Validate(ctx context.Context, code, customerID string, cartTotal decimal.Decimal) (*Coupon, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, reject(ErrNotFound, "Please enter a coupon code.")
	}

	c, err := s.repo.FindByCode(ctx, code)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, reject(ErrNotFound, fmt.Sprintf("Coupon %q does not exist.", code))
		}
		return nil, errors.Wrap(err, "lookup coupon")
	}

	if err := s.check(ctx, c, customerID, cartTotal); err != nil {
		return nil, err
	}
	return c, nil
}

func (s *Service) check(ctx context.Context, c *Coupon, customerID string, cartTotal decimal.Decimal) error {
	now := s.now()

	if !c.IsActive {
		return reject(ErrInactive, "This coupon is no longer active.")
	}

	if c.StartDate != nil && now.Before(*c.StartDate) {
		return reject(ErrNotYetActive, "This coupon is not active yet.")
	}
	if c.EndDate != nil && now.After(*c.EndDate) {
		return reject(ErrExpired, "This coupon has expired.")
	}

	if c.UsageLimitTotal != nil && c.UsageCount >= *c.UsageLimitTotal {
		return reject(ErrExhausted, "This coupon has reached its usage limit.")
	}

	if c.UsageLimitPerCustomer != nil && customerID != "" {
		used, err := s.repo.CountCustomerUsage(ctx, c.ID, customerID)
		if err != nil {
			return errors.Wrap(err, "count customer usage")
		}
		if used >= *c.UsageLimitPerCustomer {
			return reject(ErrPerCustomerLimit, "You have already used this coupon the maximum number of times.")
		}
	}

	if len(c.DaysOfWeek) > 0 && !slices.Contains(c.DaysOfWeek, now.Weekday()) {
		return reject(ErrDayRestricted, "This coupon is not valid today.")
	}

	if c.MinOrderAmount != nil && cartTotal.LessThan(*c.MinOrderAmount) {
		return reject(ErrMinOrderNotMet, fmt.Sprintf(
			"A minimum order amount of %s is required for this coupon.", money.Format(*c.MinOrderAmount)))
	}

	if !c.FirstOrderOnly && len(c.CustomerGroups) == 0 && c.MinAccountAgeDays == nil {
		return nil
	}

	profile, err := s.profile(ctx, customerID)
	if err != nil {
		return err
	}

	if c.FirstOrderOnly && profile != nil && profile.OrderCount > 0 {
		return reject(ErrNotFirstOrder, "This coupon is only valid on your first order.")
	}

	if !c.AvailableTo(groupOf(profile)) {
		return reject(ErrGroupIneligible, "This coupon is not available for your account.")
	}

	if c.MinAccountAgeDays != nil {
		if profile == nil || accountAgeDays(profile.CreatedAt, now) < *c.MinAccountAgeDays {
			return reject(ErrAccountTooNew, fmt.Sprintf(
				"Your account must be at least %d days old to use this coupon.", *c.MinAccountAgeDays))
		}
	}

	return nil
}

// profile returns nil for guests without a customer record.
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

func groupOf(p *customer.Profile) string {
	if p == nil || p.GroupID == "" {
		return customer.GuestGroup
	}
	return p.GroupID
}

func accountAgeDays(created, now time.Time) int {
	return int(now.Sub(created) / (24 * time.Hour))
}

// Apply computes the discount for a validated coupon and a message that
// describes it.
func (s *Service) Apply(c *Coupon, cartTotal decimal.Decimal, lines []cart.Line) (*Application, error) {
	amount, err := s.calc.CouponDiscount(c.Terms(), cartTotal, lines)
	if err != nil {
		return nil, errors.Wrapf(err, "apply coupon %q", c.Code)
	}
	return &Application{Coupon: c, Amount: amount, Message: applyMessage(c, amount)}, nil
}

func applyMessage(c *Coupon, amount decimal.Decimal) string {
	switch c.Type {
	case discount.CouponPercentage:
		return fmt.Sprintf("%s%% discount applied. You save %s.", c.Value.String(), money.Format(amount))
	case discount.CouponFixedAmount:
		return fmt.Sprintf("%s discount applied.", money.Format(amount))
	case discount.CouponFreeShipping:
		return "Free shipping applied."
	case discount.CouponBuyXGetY:
		return fmt.Sprintf("Buy %d get %d free applied. You save %s.", c.BuyQuantity, c.GetQuantity, money.Format(amount))
	case discount.CouponFixedPrice:
		return fmt.Sprintf("Special price of %s applied. You save %s.", money.Format(c.Value), money.Format(amount))
	default:
		return fmt.Sprintf("Coupon applied. You save %s.", money.Format(amount))
	}
}

// EnsureCapacity locks the coupon row and checks that one more order fits
// the total and per-customer limits. Open orders that carry the coupon but
// have not recorded usage yet count against both limits, so an order
// inserted in the same transaction holds its slot once the lock is
// released.
func (s *Service) EnsureCapacity(ctx context.Context, couponID, customerID string) (*Coupon, error) {
	c, err := s.repo.LockByID(ctx, couponID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, reject(ErrNotFound, "This coupon no longer exists.")
		}
		return nil, errors.Wrap(err, "lock coupon")
	}
	if c.UsageLimitTotal == nil && (c.UsageLimitPerCustomer == nil || customerID == "") {
		return c, nil
	}

	held, heldByCustomer, err := s.repo.CountHolds(ctx, c.ID, customerID)
	if err != nil {
		return nil, errors.Wrap(err, "count coupon holds")
	}
	if c.UsageLimitTotal != nil && c.UsageCount+held >= *c.UsageLimitTotal {
		return nil, reject(ErrExhausted, "This coupon has reached its usage limit.")
	}
	if c.UsageLimitPerCustomer != nil && customerID != "" {
		used, err := s.repo.CountCustomerUsage(ctx, c.ID, customerID)
		if err != nil {
			return nil, errors.Wrap(err, "count customer usage")
		}
		if used+heldByCustomer >= *c.UsageLimitPerCustomer {
			return nil, reject(ErrPerCustomerLimit, "You have already used this coupon the maximum number of times.")
		}
	}
	return c, nil
}

// RecordUsage converts an order's hold into a usage row and increments the
// usage counter under the coupon row lock. It never refuses a paid order:
// an order whose hold lapsed (failed payment later paid) may push the
// coupon past its limit, which is logged.
func (s *Service) RecordUsage(ctx context.Context, u Usage) error {
	c, err := s.repo.LockByID(ctx, u.CouponID)
	switch {
	case errors.Is(err, ErrNotFound):
		zctx.From(ctx).Warn("Recording usage of a deleted coupon", zap.String("coupon_id", u.CouponID))
	case err != nil:
		return errors.Wrap(err, "lock coupon")
	case c.UsageLimitTotal != nil && c.UsageCount >= *c.UsageLimitTotal:
		zctx.From(ctx).Warn("Coupon usage exceeds its limit",
			zap.String("coupon_id", c.ID),
			zap.Int("usage_count", c.UsageCount),
			zap.Int("usage_limit", *c.UsageLimitTotal),
		)
	}
	if u.UsedAt.IsZero() {
		u.UsedAt = s.now()
	}
	if err := s.repo.InsertUsage(ctx, u); err != nil {
		return errors.Wrap(err, "insert coupon usage")
	}
	if err := s.repo.IncrementUsage(ctx, u.CouponID); err != nil {
		return errors.Wrap(err, "increment coupon usage")
	}

	zctx.From(ctx).Info("Coupon usage recorded",
		zap.String("coupon_id", u.CouponID),
		zap.String("order_id", u.OrderID),
		zap.String("discount", money.Format(u.DiscountAmount)),
	)
	return nil
}

// GetAutoApplyCoupons returns active auto-apply coupons available to the
// customer's group, highest priority first.
func (s *Service) GetAutoApplyCoupons(ctx context.Context, customerID string) ([]Coupon, error) {
	all, err := s.repo.ListAutoApply(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "list auto-apply coupons")
	}

	profile, err := s.profile(ctx, customerID)
	if err != nil {
		return nil, err
	}
	group := groupOf(profile)

	out := make([]Coupon, 0, len(all))
	for _, c := range all {
		if c.IsActive && c.AutoApply && c.AvailableTo(group) {
			out = append(out, c)
		}
	}
	slices.SortStableFunc(out, func(a, b Coupon) int {
		return b.Priority - a.Priority
	})
	return out, nil
}
