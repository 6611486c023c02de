package app

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront-checkout/internal/cache"
	"github.com/xenking/storefront-checkout/internal/domain/checkout"
	"github.com/xenking/storefront-checkout/internal/domain/money"
	"github.com/xenking/storefront-checkout/internal/events"
	"github.com/xenking/storefront-checkout/internal/payment"
)

// Config holds the complete application configuration, loadable from
// environment variables (SHOP_ prefix), flags, or YAML config files.
type Config struct {
	Addr        string `default:"0.0.0.0:8080" usage:"API server listen address"`
	DatabaseURL string `usage:"PostgreSQL connection URL (SHOP_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	Redis       cache.Config
	Kafka       events.KafkaConfig
	Checkout    CheckoutConfig
	Payment     PaymentConfig
	Auth        AuthConfig
	RateLimit   RateLimitConfig
	CORS        CORSConfig
	Graceful    GracefulConfig
}

// CheckoutConfig is the store's checkout policy.
type CheckoutConfig struct {
	AllowGuestCheckout     bool              `default:"true" usage:"Allow checkout without an account"`
	RequireAccount         bool              `default:"false" usage:"Require an account even when guests are allowed"`
	AllowStacking          bool              `default:"false" usage:"Sum coupon and promotion discounts"`
	AutoApplyCoupons       bool              `default:"true" usage:"Apply the best auto-apply coupon when none is entered"`
	TaxRate                string            `default:"0" usage:"Fallback tax rate in percent"`
	ShippingRates          map[string]string `default:"standard:5.00,express:15.00" usage:"Flat shipping cost per method"`
	Rounding               string            `default:"half_up" usage:"Rounding mode: half_up, half_even or down"`
	OrderNumberPrefix      string            `default:"ORD" usage:"Order number prefix"`
	MaxOrderNumberAttempts int               `default:"5" usage:"Order number collision retries"`
}

// PaymentConfig configures the built-in gateways. Gateways without their
// required settings are not offered.
type PaymentConfig struct {
	CashOnDelivery  bool   `default:"true" usage:"Offer cash on delivery" flag:"payment-cod"`
	BankAccountName string `usage:"Bank transfer account holder"`
	BankIBAN        string `usage:"Bank transfer IBAN"`
	BankBIC         string `usage:"Bank transfer BIC"`
	HostedCode      string `default:"card" usage:"Payment method code served by the hosted page"`
	HostedPageURL   string `usage:"Hosted payment page URL"`
	HostedSecret    string `usage:"HMAC secret shared with the hosted payment page"`
	ReturnURL       string `usage:"Storefront URL the hosted page returns to"`
	CancelURL       string `usage:"Storefront URL the hosted page returns to on cancel"`
}

// AuthConfig controls API key authentication of back-office routes.
type AuthConfig struct {
	APIKeyPepper string   `usage:"HMAC pepper for API key hashing (SHOP_AUTH_API_KEY_PEPPER)" flag:"api-key-pepper"`
	APIKeyHashes []string `usage:"Hex HMAC-SHA256 digests of accepted API keys" flag:"api-key-hashes"`
}

// RateLimitConfig controls per-client rate limits. Counters live in Redis
// when it is configured and in process memory otherwise.
type RateLimitConfig struct {
	Max         int           `default:"100" usage:"Max requests per window"`
	CheckoutMax int           `default:"20" usage:"Max checkout and coupon validation posts per window" flag:"rate-limit-checkout-max"`
	Window      time.Duration `default:"1m"  usage:"Rate limit window duration"`
}

// CORSConfig controls Cross-Origin Resource Sharing headers.
type CORSConfig struct {
	Origins          []string `default:"*" usage:"Allowed CORS origins"`
	AllowCredentials bool     `default:"false" usage:"Allow credentials (cookies, auth headers)" flag:"cors-credentials"`
}

// GracefulConfig controls graceful shutdown timing.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `default:"3s"  usage:"Delay after readiness=false before shutdown" flag:"readiness-delay"`
	ShutdownTimeout time.Duration `default:"15s" usage:"Maximum shutdown duration" flag:"shutdown-timeout"`
}

// LoadConfig loads configuration from environment variables, YAML config files,
// and applies platform-specific defaults.
func LoadConfig() (*Config, error) {
	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "SHOP",
		Files:     []string{"config.yaml", "/etc/shop/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()

	if cfg.DatabaseURL == "" {
		return nil, errors.New("database URL is required: set SHOP_DATABASE_URL or DATABASE_URL")
	}
	if _, err := cfg.Checkout.Resolve(); err != nil {
		return nil, errors.Wrap(err, "checkout config")
	}

	return &cfg, nil
}

// applyPlatformDefaults maps platform-provided environment variables (Railway,
// Render, etc.) that use standard names like DATABASE_URL and PORT to the
// application's SHOP_-prefixed configuration.
func (c *Config) applyPlatformDefaults() {
	if c.DatabaseURL == "" {
		if v := os.Getenv("DATABASE_URL"); v != "" {
			c.DatabaseURL = v
		}
	}
	if c.Redis.URL == "" {
		if v := os.Getenv("REDIS_URL"); v != "" {
			c.Redis.URL = v
		}
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == "0.0.0.0:8080" {
		c.Addr = "0.0.0.0:" + port
	}
}

// Resolve parses the textual settings into a checkout.Config.
func (c CheckoutConfig) Resolve() (checkout.Config, error) {
	cfg := checkout.DefaultConfig()
	cfg.AllowGuestCheckout = c.AllowGuestCheckout
	cfg.RequireAccount = c.RequireAccount
	cfg.AllowStacking = c.AllowStacking
	cfg.AutoApplyCoupons = c.AutoApplyCoupons
	if c.OrderNumberPrefix != "" {
		cfg.OrderNumberPrefix = c.OrderNumberPrefix
	}
	if c.MaxOrderNumberAttempts > 0 {
		cfg.MaxOrderNumberAttempts = c.MaxOrderNumberAttempts
	}

	if c.TaxRate != "" {
		rate, err := decimal.NewFromString(c.TaxRate)
		if err != nil {
			return checkout.Config{}, errors.Wrapf(err, "parse tax rate %q", c.TaxRate)
		}
		cfg.TaxRate = rate
	}

	rounding, err := money.ParseRounding(c.Rounding)
	if err != nil {
		return checkout.Config{}, err
	}
	cfg.Rounding = rounding

	cfg.ShippingRates = make(map[string]decimal.Decimal, len(c.ShippingRates))
	for method, v := range c.ShippingRates {
		rate, err := decimal.NewFromString(v)
		if err != nil {
			return checkout.Config{}, errors.Wrapf(err, "parse shipping rate for %q", method)
		}
		cfg.ShippingRates[method] = rate
	}

	if err := cfg.Validate(); err != nil {
		return checkout.Config{}, err
	}
	return cfg, nil
}

// Gateways returns the configured payment gateways. Unconfigured gateways
// are skipped by the registry.
func (c PaymentConfig) Gateways() []payment.Gateway {
	var out []payment.Gateway
	if c.CashOnDelivery {
		out = append(out, payment.CashOnDelivery{})
	}
	out = append(out,
		payment.BankTransfer{AccountName: c.BankAccountName, IBAN: c.BankIBAN, BIC: c.BankBIC},
		&payment.Hosted{MethodCode: c.HostedCode, PageURL: c.HostedPageURL, Secret: c.HostedSecret},
	)
	return out
}
