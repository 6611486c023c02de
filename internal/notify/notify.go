// Package notify sends post-order emails and events outside the order
// transaction. Dispatch never blocks the caller and failures are only
// logged.
package notify

import (
	"context"
	"sync"
	"time"

	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/storefront-checkout/internal/domain/checkout"
	"github.com/xenking/storefront-checkout/internal/domain/money"
	"github.com/xenking/storefront-checkout/internal/domain/order"
	"github.com/xenking/storefront-checkout/internal/events"
	"github.com/xenking/storefront-checkout/pkg/httpmiddleware"
)

var _ checkout.Notifier = (*Dispatcher)(nil)

// Email templates.
const (
	TemplateOrderConfirmation = "order_confirmation"
	TemplatePaymentReceived   = "payment_received"
	TemplateOrderStatus       = "order_status"
)

// EmailSender renders a named template with variables and sends it.
type EmailSender interface {
	Send(ctx context.Context, to, template string, vars map[string]string) error
}

// LogSender writes emails to the context logger instead of sending them.
type LogSender struct{}

func (LogSender) Send(ctx context.Context, to, template string, vars map[string]string) error {
	zctx.From(ctx).Info("Email",
		zap.String("to", to),
		zap.String("template", template),
		zap.Any("vars", vars),
	)
	return nil
}

// Dispatcher implements checkout.Notifier.
type Dispatcher struct {
	sender    EmailSender
	publisher events.Publisher
	producer  string
	timeout   time.Duration
	now       func() time.Time

	wg sync.WaitGroup
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithTimeout bounds each dispatch.
func WithTimeout(d time.Duration) Option {
	return func(n *Dispatcher) { n.timeout = d }
}

// WithClock overrides the event timestamp source.
func WithClock(now func() time.Time) Option {
	return func(n *Dispatcher) { n.now = now }
}

// NewDispatcher returns a Dispatcher. A nil publisher disables events.
func NewDispatcher(sender EmailSender, publisher events.Publisher, producer string, opts ...Option) *Dispatcher {
	if sender == nil {
		sender = LogSender{}
	}
	n := &Dispatcher{
		sender:    sender,
		publisher: publisher,
		producer:  producer,
		timeout:   10 * time.Second,
		now:       time.Now,
	}
	for _, o := range opts {
		o(n)
	}
	return n
}

func (n *Dispatcher) OrderPlaced(ctx context.Context, o *order.Order) {
	n.dispatch(ctx, events.TypeOrderPlaced, TemplateOrderConfirmation, o, "")
}

func (n *Dispatcher) OrderPaid(ctx context.Context, o *order.Order) {
	n.dispatch(ctx, events.TypeOrderPaid, TemplatePaymentReceived, o, "")
}

func (n *Dispatcher) OrderStatusChanged(ctx context.Context, o *order.Order, from order.Status) {
	n.dispatch(ctx, events.TypeOrderStatusChanged, TemplateOrderStatus, o, from)
}

// Wait blocks until in-flight dispatches finish.
func (n *Dispatcher) Wait() {
	n.wg.Wait()
}

func (n *Dispatcher) dispatch(ctx context.Context, typ, template string, o *order.Order, from order.Status) {
	ev := events.NewOrderEvent(typ, n.producer, o, from, n.now())
	ev.CorrelationID = httpmiddleware.RequestIDFromContext(ctx)
	to := o.CustomerEmail
	vars := map[string]string{
		"order_number":   o.Number,
		"status":         string(o.Status),
		"payment_status": string(o.PaymentStatus),
		"total":          money.Format(o.Total),
	}
	if from != "" {
		vars["previous_status"] = string(from)
	}

	// The request context is cancelled once the response is written.
	ctx = context.WithoutCancel(ctx)
	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		ctx, cancel := context.WithTimeout(ctx, n.timeout)
		defer cancel()

		lg := zctx.From(ctx).With(zap.String("order_number", ev.Key), zap.String("event_type", typ))
		if to != "" {
			if err := n.sender.Send(ctx, to, template, vars); err != nil {
				lg.Warn("Email send failed", zap.Error(err))
			}
		}
		if n.publisher != nil {
			if err := n.publisher.Publish(ctx, ev); err != nil {
				lg.Warn("Event publish failed", zap.Error(err))
			}
		}
	}()
}
