package events

import (
	"context"
	"testing"
	"time"

	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/storefront-checkout/internal/domain/order"
)

func TestNewOrderEvent_Encode(t *testing.T) {
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	o := &order.Order{
		Number:        "ORD-20250615-ABC234",
		CustomerID:    "cust-1",
		CustomerEmail: "ada@example.com",
		Status:        order.StatusProcessing,
		PaymentStatus: order.PaymentPaid,
		PaymentMethod: "cod",
		Subtotal:      decimal.NewFromInt(20),
		Discount:      decimal.NewFromInt(2),
		Total:         decimal.RequireFromString("23.8"),
		Items: []order.Item{
			{ProductID: "A", ProductSKU: "SKU-A", Quantity: 2, Price: decimal.NewFromInt(10)},
		},
	}

	e := NewOrderEvent(TypeOrderStatusChanged, "checkout", o, order.StatusPending, now)
	assert.NotEmpty(t, e.ID)
	assert.Equal(t, o.Number, e.Key)
	e.CorrelationID = "req-1"

	raw, err := e.MarshalJSON()
	require.NoError(t, err)

	got := map[string]string{}
	var items int
	d := jx.DecodeBytes(raw)
	require.NoError(t, d.Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "event_type", "producer", "occurred_at", "correlation_id":
			v, err := d.Str()
			got[key] = v
			return err
		case "payload":
			return d.Obj(func(d *jx.Decoder, key string) error {
				if key == "items" {
					return d.Arr(func(d *jx.Decoder) error {
						items++
						return d.Skip()
					})
				}
				if d.Next() != jx.String {
					return d.Skip()
				}
				v, err := d.Str()
				got[key] = v
				return err
			})
		default:
			return d.Skip()
		}
	}))

	assert.Equal(t, TypeOrderStatusChanged, got["event_type"])
	assert.Equal(t, "checkout", got["producer"])
	assert.Equal(t, "req-1", got["correlation_id"])
	assert.Equal(t, "2025-06-15T12:00:00Z", got["occurred_at"])
	assert.Equal(t, "pending", got["previous_status"])
	assert.Equal(t, "processing", got["status"])
	assert.Equal(t, "23.80", got["total"])
	assert.Equal(t, 1, items)
}

func TestMemoryPublisher(t *testing.T) {
	p := &MemoryPublisher{}
	o := &order.Order{Number: "ORD-1"}
	require.NoError(t, p.Publish(context.Background(),
		NewOrderEvent(TypeOrderPlaced, "checkout", o, "", time.Now()),
		NewOrderEvent(TypeOrderPaid, "checkout", o, "", time.Now()),
	))
	evs := p.Events()
	require.Len(t, evs, 2)
	assert.Equal(t, TypeOrderPaid, evs[1].Type)
}

func TestNewKafkaPublisher_RequiresBrokers(t *testing.T) {
	_, err := NewKafkaPublisher(KafkaConfig{Topic: "orders.events"})
	require.Error(t, err)

	p, err := NewKafkaPublisher(KafkaConfig{Brokers: []string{"localhost:9092"}, Topic: "orders.events"})
	require.NoError(t, err)
	require.NoError(t, p.Close())
}
