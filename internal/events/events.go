// Package events publishes order lifecycle events.
package events

import (
	"context"
	"time"

	"github.com/go-faster/jx"
	"github.com/google/uuid"

	"github.com/xenking/storefront-checkout/internal/domain/money"
	"github.com/xenking/storefront-checkout/internal/domain/order"
)

// Event types.
const (
	TypeOrderPlaced        = "order.placed"
	TypeOrderPaid          = "order.paid"
	TypeOrderStatusChanged = "order.status_changed"
)

// Version is the envelope schema version.
const Version = 1

// Envelope wraps an order event for the wire.
type Envelope struct {
	ID         string
	Type       string
	Version    int
	OccurredAt time.Time
	Producer   string
	// Key partitions events by order so consumers see them in order.
	Key string
	// CorrelationID is the id of the API request that caused the event.
	CorrelationID string
	Order         OrderPayload
}

// OrderPayload is the order snapshot carried by every order event.
type OrderPayload struct {
	Number         string
	CustomerID     string
	CustomerEmail  string
	Status         order.Status
	PreviousStatus order.Status
	PaymentStatus  order.PaymentStatus
	PaymentMethod  string
	CouponCode     string
	Subtotal       string
	Discount       string
	Total          string
	Items          []ItemPayload
}

// ItemPayload is one order line.
type ItemPayload struct {
	ProductID string
	SKU       string
	Quantity  int
	Price     string
}

// NewOrderEvent builds an envelope for o. previous is only set for
// status changes.
func NewOrderEvent(typ, producer string, o *order.Order, previous order.Status, now time.Time) Envelope {
	p := OrderPayload{
		Number:         o.Number,
		CustomerID:     o.CustomerID,
		CustomerEmail:  o.CustomerEmail,
		Status:         o.Status,
		PreviousStatus: previous,
		PaymentStatus:  o.PaymentStatus,
		PaymentMethod:  o.PaymentMethod,
		CouponCode:     o.CouponCode,
		Subtotal:       money.Format(o.Subtotal),
		Discount:       money.Format(o.Discount),
		Total:          money.Format(o.Total),
	}
	for _, it := range o.Items {
		p.Items = append(p.Items, ItemPayload{
			ProductID: it.ProductID,
			SKU:       it.ProductSKU,
			Quantity:  it.Quantity,
			Price:     money.Format(it.Price),
		})
	}
	return Envelope{
		ID:         uuid.NewString(),
		Type:       typ,
		Version:    Version,
		OccurredAt: now.UTC(),
		Producer:   producer,
		Key:        o.Number,
		Order:      p,
	}
}

// Encode writes the envelope as JSON.
func (e Envelope) Encode(enc *jx.Encoder) {
	enc.Obj(func(enc *jx.Encoder) {
		enc.Field("event_id", func(enc *jx.Encoder) { enc.Str(e.ID) })
		enc.Field("event_type", func(enc *jx.Encoder) { enc.Str(e.Type) })
		enc.Field("event_version", func(enc *jx.Encoder) { enc.Int(e.Version) })
		enc.Field("occurred_at", func(enc *jx.Encoder) { enc.Str(e.OccurredAt.Format(time.RFC3339Nano)) })
		enc.Field("producer", func(enc *jx.Encoder) { enc.Str(e.Producer) })
		if e.CorrelationID != "" {
			enc.Field("correlation_id", func(enc *jx.Encoder) { enc.Str(e.CorrelationID) })
		}
		enc.Field("payload", e.Order.Encode)
	})
}

// Encode writes the payload as JSON.
func (p OrderPayload) Encode(enc *jx.Encoder) {
	enc.Obj(func(enc *jx.Encoder) {
		enc.Field("order_number", func(enc *jx.Encoder) { enc.Str(p.Number) })
		enc.Field("customer_id", func(enc *jx.Encoder) { enc.Str(p.CustomerID) })
		enc.Field("customer_email", func(enc *jx.Encoder) { enc.Str(p.CustomerEmail) })
		enc.Field("status", func(enc *jx.Encoder) { enc.Str(string(p.Status)) })
		if p.PreviousStatus != "" {
			enc.Field("previous_status", func(enc *jx.Encoder) { enc.Str(string(p.PreviousStatus)) })
		}
		enc.Field("payment_status", func(enc *jx.Encoder) { enc.Str(string(p.PaymentStatus)) })
		enc.Field("payment_method", func(enc *jx.Encoder) { enc.Str(p.PaymentMethod) })
		if p.CouponCode != "" {
			enc.Field("coupon_code", func(enc *jx.Encoder) { enc.Str(p.CouponCode) })
		}
		enc.Field("subtotal", func(enc *jx.Encoder) { enc.Str(p.Subtotal) })
		enc.Field("discount", func(enc *jx.Encoder) { enc.Str(p.Discount) })
		enc.Field("total", func(enc *jx.Encoder) { enc.Str(p.Total) })
		enc.Field("items", func(enc *jx.Encoder) {
			enc.ArrStart()
			for _, it := range p.Items {
				enc.Obj(func(enc *jx.Encoder) {
					enc.Field("product_id", func(enc *jx.Encoder) { enc.Str(it.ProductID) })
					enc.Field("sku", func(enc *jx.Encoder) { enc.Str(it.SKU) })
					enc.Field("quantity", func(enc *jx.Encoder) { enc.Int(it.Quantity) })
					enc.Field("price", func(enc *jx.Encoder) { enc.Str(it.Price) })
				})
			}
			enc.ArrEnd()
		})
	})
}

// MarshalJSON implements json.Marshaler.
func (e Envelope) MarshalJSON() ([]byte, error) {
	var enc jx.Encoder
	e.Encode(&enc)
	return enc.Bytes(), nil
}

// Publisher delivers envelopes to a broker.
type Publisher interface {
	Publish(ctx context.Context, events ...Envelope) error
	Close() error
}
