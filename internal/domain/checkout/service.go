// Package checkout turns a cart into a persisted order. It computes totals,
// creates the order aggregate in one transaction and drives the order through
// payment and fulfilment status changes.
package checkout

import (
	"time"

	"github.com/go-faster/errors"
	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"

	"github.com/xenking/storefront-checkout/internal/domain/coupon"
	"github.com/xenking/storefront-checkout/internal/domain/discount"
	"github.com/xenking/storefront-checkout/internal/domain/order"
	"github.com/xenking/storefront-checkout/internal/domain/promotion"
)

// Service orchestrates checkout.
type Service struct {
	cfg        Config
	store      Store
	calc       discount.Calculator
	coupons    *coupon.Service
	promotions *promotion.Service

	numbers  order.NumberGenerator
	hasher   PasswordHasher
	notifier Notifier
	cache    CacheInvalidator
	validate *validator.Validate
	now      func() time.Time

	meter  metric.MeterProvider
	tracer trace.Tracer

	ordersCreated metric.Int64Counter
	ordersFailed  metric.Int64Counter
}

// Option configures a Service.
type Option func(*Service)

// WithNotifier sets the post-commit notifier.
func WithNotifier(n Notifier) Option {
	return func(s *Service) { s.notifier = n }
}

// WithCacheInvalidator sets the cache invalidator.
func WithCacheInvalidator(c CacheInvalidator) Option {
	return func(s *Service) { s.cache = c }
}

// WithPasswordHasher overrides the bcrypt hasher.
func WithPasswordHasher(h PasswordHasher) Option {
	return func(s *Service) { s.hasher = h }
}

// WithNumberGenerator overrides order number generation.
func WithNumberGenerator(g order.NumberGenerator) Option {
	return func(s *Service) { s.numbers = g }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithMeterProvider sets the meter provider for checkout counters.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(s *Service) { s.meter = mp }
}

// WithTracerProvider sets the tracer provider for checkout spans.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(s *Service) { s.tracer = tp.Tracer("checkout") }
}

// NewService creates a checkout Service. coupons and promotions are used
// as templates and re-bound to transactional repositories when needed.
func NewService(cfg Config, store Store, coupons *coupon.Service, promotions *promotion.Service, opts ...Option) (*Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "checkout config")
	}

	s := &Service{
		cfg:        cfg,
		store:      store,
		calc:       discount.NewCalculator(cfg.Rounding),
		coupons:    coupons,
		promotions: promotions,
		numbers:    order.RandomNumbers{Prefix: cfg.OrderNumberPrefix},
		hasher:     BcryptHasher{},
		notifier:   nopNotifier{},
		cache:      nopInvalidator{},
		validate:   validator.New(validator.WithRequiredStructEnabled()),
		now:        time.Now,
		meter:      metricnoop.NewMeterProvider(),
		tracer:     tracenoop.NewTracerProvider().Tracer("checkout"),
	}
	for _, o := range opts {
		o(s)
	}

	meter := s.meter.Meter("checkout")
	var err error
	if s.ordersCreated, err = meter.Int64Counter("checkout.orders.created",
		metric.WithDescription("Orders committed")); err != nil {
		return nil, errors.Wrap(err, "orders created counter")
	}
	if s.ordersFailed, err = meter.Int64Counter("checkout.orders.failed",
		metric.WithDescription("Order transactions rolled back")); err != nil {
		return nil, errors.Wrap(err, "orders failed counter")
	}
	return s, nil
}

// Config returns the service configuration.
func (s *Service) Config() Config {
	return s.cfg
}

// bound returns coupon and promotion services operating on r.
func (s *Service) bound(r Repos) (*coupon.Service, *promotion.Service) {
	return s.coupons.Bind(r.Coupons, r.Customers), s.promotions.Bind(r.Promotions, r.Customers)
}
