package checkout

import (
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront-checkout/internal/domain/money"
)

// Config is the store's checkout policy, resolved once at startup.
type Config struct {
	AllowGuestCheckout bool
	RequireAccount     bool
	// AllowStacking sums coupon and promotion discounts instead of taking
	// the larger one.
	AllowStacking    bool
	AutoApplyCoupons bool
	// TaxRate is a percentage applied to (subtotal - discount) when no
	// TaxResult is supplied.
	TaxRate decimal.Decimal
	// ShippingRates maps shipping method codes to flat costs, used when no
	// ShippingResult is supplied.
	ShippingRates          map[string]decimal.Decimal
	Rounding               money.Rounding
	OrderNumberPrefix      string
	MaxOrderNumberAttempts int
}

// DefaultConfig returns a permissive configuration.
func DefaultConfig() Config {
	return Config{
		AllowGuestCheckout:     true,
		AutoApplyCoupons:       true,
		TaxRate:                money.Zero,
		Rounding:               money.HalfUp,
		OrderNumberPrefix:      "ORD",
		MaxOrderNumberAttempts: 5,
	}
}

// Validate checks the configuration for values the service cannot work with.
func (c Config) Validate() error {
	if c.TaxRate.IsNegative() {
		return errors.New("tax rate must not be negative")
	}
	for method, rate := range c.ShippingRates {
		if rate.IsNegative() {
			return errors.Errorf("shipping rate for %q must not be negative", method)
		}
	}
	if c.MaxOrderNumberAttempts < 1 {
		return errors.New("max order number attempts must be positive")
	}
	if _, err := money.ParseRounding(string(c.Rounding)); err != nil {
		return err
	}
	return nil
}

// guestsAllowed reports whether checkout without an account is permitted.
func (c Config) guestsAllowed() bool {
	return c.AllowGuestCheckout && !c.RequireAccount
}
