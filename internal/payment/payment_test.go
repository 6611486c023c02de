package payment

import (
	"context"
	"net/url"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/storefront-checkout/internal/domain/order"
)

func testOrder(method string) *order.Order {
	return &order.Order{
		Number:        "ORD-20250615-ABC234",
		Total:         decimal.RequireFromString("42.5"),
		PaymentMethod: method,
	}
}

func TestRegistry(t *testing.T) {
	hosted := &Hosted{MethodCode: "card", PageURL: "https://pay.example.com/checkout", Secret: "s3cret"}
	r := NewRegistry(CashOnDelivery{}, BankTransfer{}, hosted)

	assert.Equal(t, []string{"card", "cod"}, r.Available())
	assert.True(t, r.Supports("cod"))
	assert.False(t, r.Supports("bank_transfer"))

	_, err := r.Get("bank_transfer")
	require.ErrorIs(t, err, ErrUnavailable)
	_, err = r.Get("crypto")
	require.ErrorIs(t, err, ErrUnavailable)

	_, err = r.Process(context.Background(), testOrder("crypto"), Request{})
	require.ErrorIs(t, err, ErrUnavailable)
}

func TestGateways(t *testing.T) {
	ctx := context.Background()

	t.Run("CashOnDelivery", func(t *testing.T) {
		res, err := CashOnDelivery{}.ProcessPayment(ctx, testOrder("cod"), Request{})
		require.NoError(t, err)
		assert.Equal(t, KindImmediate, res.Kind)
		assert.False(t, res.Paid)
	})

	t.Run("BankTransfer", func(t *testing.T) {
		g := BankTransfer{AccountName: "Storefront Ltd", IBAN: "GB33BUKB20201555555555"}
		require.True(t, g.IsConfigured())
		res, err := g.ProcessPayment(ctx, testOrder("bank_transfer"), Request{})
		require.NoError(t, err)
		assert.Equal(t, KindStructured, res.Kind)
		assert.Equal(t, "42.50", res.Payload["amount"])
		assert.Equal(t, "ORD-20250615-ABC234", res.Payload["reference"])
	})

	t.Run("Hosted", func(t *testing.T) {
		g := &Hosted{MethodCode: "card", PageURL: "https://pay.example.com/checkout", Secret: "s3cret"}
		res, err := NewRegistry(g).Process(ctx, testOrder("card"), Request{ReturnURL: "https://shop.example.com/done"})
		require.NoError(t, err)
		assert.Equal(t, KindRedirect, res.Kind)

		u, err := url.Parse(res.RedirectURL)
		require.NoError(t, err)
		q := u.Query()
		assert.Equal(t, "pay.example.com", u.Host)
		assert.Equal(t, "42.50", q.Get("amount"))
		assert.Equal(t, "https://shop.example.com/done", q.Get("return_url"))
		assert.True(t, g.Verify(q.Get("order"), q.Get("amount"), q.Get("signature")))
		assert.False(t, g.Verify(q.Get("order"), "0.01", q.Get("signature")))
		assert.False(t, g.Verify(q.Get("order"), q.Get("amount"), "not-hex"))
	})
}
