package app

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/storefront-checkout/internal/domain/money"
	"github.com/xenking/storefront-checkout/internal/payment"
)

func TestCheckoutConfig_Resolve(t *testing.T) {
	cfg, err := CheckoutConfig{
		AllowGuestCheckout:     true,
		AllowStacking:          true,
		TaxRate:                "7.5",
		ShippingRates:          map[string]string{"standard": "4.99", "express": "12"},
		Rounding:               "half_even",
		OrderNumberPrefix:      "SHOP",
		MaxOrderNumberAttempts: 3,
	}.Resolve()
	require.NoError(t, err)

	assert.True(t, cfg.AllowGuestCheckout)
	assert.True(t, cfg.AllowStacking)
	assert.False(t, cfg.AutoApplyCoupons)
	assert.True(t, decimal.RequireFromString("7.5").Equal(cfg.TaxRate))
	assert.True(t, decimal.RequireFromString("4.99").Equal(cfg.ShippingRates["standard"]))
	assert.Equal(t, money.HalfEven, cfg.Rounding)
	assert.Equal(t, "SHOP", cfg.OrderNumberPrefix)
	assert.Equal(t, 3, cfg.MaxOrderNumberAttempts)
}

func TestCheckoutConfig_ResolveInvalid(t *testing.T) {
	for _, tt := range []struct {
		Name string
		Cfg  CheckoutConfig
	}{
		{Name: "TaxRate", Cfg: CheckoutConfig{TaxRate: "ten"}},
		{Name: "NegativeTaxRate", Cfg: CheckoutConfig{TaxRate: "-1"}},
		{Name: "ShippingRate", Cfg: CheckoutConfig{ShippingRates: map[string]string{"standard": "free"}}},
		{Name: "NegativeShippingRate", Cfg: CheckoutConfig{ShippingRates: map[string]string{"standard": "-5"}}},
		{Name: "Rounding", Cfg: CheckoutConfig{Rounding: "banker"}},
	} {
		t.Run(tt.Name, func(t *testing.T) {
			_, err := tt.Cfg.Resolve()
			assert.Error(t, err)
		})
	}
}

func TestPaymentConfig_Gateways(t *testing.T) {
	reg := payment.NewRegistry(PaymentConfig{
		CashOnDelivery:  true,
		BankAccountName: "Storefront Ltd",
		BankIBAN:        "GB33BUKB20201555555555",
		HostedCode:      "card",
	}.Gateways()...)

	// The hosted page has no URL or secret, so only two methods are offered.
	assert.Equal(t, []string{"bank_transfer", "cod"}, reg.Available())
}

func TestApplyPlatformDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://platform/db")
	t.Setenv("REDIS_URL", "redis://platform:6379/0")
	t.Setenv("PORT", "9000")

	cfg := Config{Addr: "0.0.0.0:8080"}
	cfg.applyPlatformDefaults()
	assert.Equal(t, "postgres://platform/db", cfg.DatabaseURL)
	assert.Equal(t, "redis://platform:6379/0", cfg.Redis.URL)
	assert.Equal(t, "0.0.0.0:9000", cfg.Addr)

	explicit := Config{Addr: "127.0.0.1:7000", DatabaseURL: "postgres://explicit/db"}
	explicit.applyPlatformDefaults()
	assert.Equal(t, "postgres://explicit/db", explicit.DatabaseURL)
	assert.Equal(t, "127.0.0.1:7000", explicit.Addr)
}
