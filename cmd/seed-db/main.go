package main

import (
	"context"
	"encoding/json"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront-checkout/internal/domain/coupon"
	"github.com/xenking/storefront-checkout/internal/domain/discount"
	"github.com/xenking/storefront-checkout/internal/domain/product"
	"github.com/xenking/storefront-checkout/internal/domain/promotion"
	"github.com/xenking/storefront-checkout/internal/storage/postgres"
	"github.com/xenking/storefront-checkout/pkg/httpmiddleware"
)

type productJSON struct {
	ID           string           `json:"id"`
	SKU          string           `json:"sku"`
	Name         string           `json:"name"`
	Price        decimal.Decimal  `json:"price"`
	SpecialPrice *decimal.Decimal `json:"special_price"`
	Categories   []string         `json:"categories"`
	Stock        int              `json:"stock"`
}

func main() {
	var (
		databaseURL  string
		productsFile string
		apiKey       string
		apiKeyPepper string
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&productsFile, "products-file", "", "path to products JSON file (built-in demo catalog when empty)")
	flag.StringVar(&apiKey, "api-key", "", "print the configuration hash for this API key (or SHOP_SEED_API_KEY env)")
	flag.StringVar(&apiKeyPepper, "api-key-pepper", "", "HMAC pepper for API key hashing (or SHOP_AUTH_API_KEY_PEPPER env)")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}
	if apiKey == "" {
		apiKey = os.Getenv("SHOP_SEED_API_KEY")
	}
	if apiKeyPepper == "" {
		apiKeyPepper = os.Getenv("SHOP_AUTH_API_KEY_PEPPER")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, productsFile); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	if apiKey != "" {
		slog.Info("add this hash to SHOP_AUTH_API_KEY_HASHES",
			slog.String("hash", httpmiddleware.HashAPIKey(apiKeyPepper, apiKey)))
	}

	slog.Info("seed completed successfully")
}

func run(ctx context.Context, databaseURL, productsFile string) error {
	slog.Info("connecting to database")

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	slog.Info("running migrations")

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	store := postgres.NewStore(pool)

	products, err := loadProducts(productsFile)
	if err != nil {
		return errors.Wrap(err, "load products")
	}
	if err := seedProducts(ctx, store.Products(), products); err != nil {
		return errors.Wrap(err, "seed products")
	}

	if err := seedCoupons(ctx, store.Coupons()); err != nil {
		return errors.Wrap(err, "seed coupons")
	}

	if err := seedPromotions(ctx, store.Promotions()); err != nil {
		return errors.Wrap(err, "seed promotions")
	}

	return nil
}

func loadProducts(path string) ([]product.Product, error) {
	if path == "" {
		return demoProducts(), nil
	}

	slog.Info("reading products file", slog.String("path", path))

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read products file")
	}

	var raw []productJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, errors.Wrap(err, "parse products JSON")
	}

	out := make([]product.Product, 0, len(raw))
	for _, p := range raw {
		out = append(out, product.Product{
			ID:           p.ID,
			SKU:          p.SKU,
			Name:         p.Name,
			Price:        p.Price,
			SpecialPrice: p.SpecialPrice,
			CategoryIDs:  p.Categories,
			Stock:        p.Stock,
			ManageStock:  true,
		})
	}
	return out, nil
}

func demoProducts() []product.Product {
	sale := decimal.RequireFromString("39.00")
	return []product.Product{
		{ID: "tee-basic", SKU: "TEE-001", Name: "Basic Tee", Price: decimal.RequireFromString("19.00"),
			CategoryIDs: []string{"apparel"}, Stock: 500, ManageStock: true},
		{ID: "hoodie", SKU: "HOO-001", Name: "Zip Hoodie", Price: decimal.RequireFromString("49.00"),
			SpecialPrice: &sale, CategoryIDs: []string{"apparel"}, Stock: 200, ManageStock: true},
		{ID: "mug", SKU: "MUG-001", Name: "Enamel Mug", Price: decimal.RequireFromString("12.50"),
			CategoryIDs: []string{"kitchen"}, Stock: 300, ManageStock: true},
		{ID: "poster", SKU: "POS-001", Name: "Screen Print Poster", Price: decimal.RequireFromString("25.00"),
			CategoryIDs: []string{"prints"}, Stock: 50, ManageStock: true},
		{ID: "gift-card", SKU: "GFT-001", Name: "Gift Card", Price: decimal.RequireFromString("50.00"),
			CategoryIDs: []string{"gift"}, ManageStock: false},
	}
}

func seedProducts(ctx context.Context, repo *postgres.ProductRepository, products []product.Product) error {
	slog.Info("upserting products", slog.Int("count", len(products)))

	for _, p := range products {
		if err := repo.Upsert(ctx, p); err != nil {
			return errors.Wrapf(err, "upsert product %s", p.ID)
		}

		slog.Info("upserted product", slog.String("id", p.ID), slog.String("name", p.Name))
	}

	return nil
}

func seedCoupons(ctx context.Context, repo *postgres.CouponRepository) error {
	slog.Info("seeding demo coupons")

	minOrder := decimal.NewFromInt(100)
	maxDiscount := decimal.NewFromInt(30)
	limit := 1000
	perCustomer := 1

	coupons := []coupon.Coupon{
		{
			ID:          "seed-save10",
			Code:        "SAVE10",
			Description: "10% off your order (up to 30.00)",
			Type:        discount.CouponPercentage,
			Value:       decimal.NewFromInt(10),
			MaxDiscount: &maxDiscount,
			IsActive:    true,
			IsPublic:    true,
		},
		{
			ID:                    "seed-flat50",
			Code:                  "FLAT50",
			Description:           "50.00 off orders over 100.00",
			Type:                  discount.CouponFixedAmount,
			Value:                 decimal.NewFromInt(50),
			MinOrderAmount:        &minOrder,
			UsageLimitTotal:       &limit,
			UsageLimitPerCustomer: &perCustomer,
			IsActive:              true,
			IsPublic:              true,
		},
		{
			ID:                   "seed-b2g1",
			Code:                 "B2G1",
			Description:          "Buy 2 tees, get 1 free",
			Type:                 discount.CouponBuyXGetY,
			BuyQuantity:          2,
			GetQuantity:          1,
			ApplicableCategories: []string{"apparel"},
			IsActive:             true,
			IsPublic:             true,
		},
		{
			ID:          "seed-freeship",
			Code:        "FREESHIP",
			Description: "Free shipping",
			Type:        discount.CouponFreeShipping,
			IsActive:    true,
			IsPublic:    true,
		},
		{
			ID:             "seed-welcome",
			Code:           "WELCOME5",
			Description:    "5.00 off your first order",
			Type:           discount.CouponFixedAmount,
			Value:          decimal.NewFromInt(5),
			FirstOrderOnly: true,
			IsActive:       true,
			AutoApply:      true,
			Priority:       10,
		},
		{
			ID:          "seed-weekend",
			Code:        "WEEKEND15",
			Description: "15% off on weekends",
			Type:        discount.CouponPercentage,
			Value:       decimal.NewFromInt(15),
			DaysOfWeek:  []time.Weekday{time.Saturday, time.Sunday},
			IsActive:    true,
			IsPublic:    true,
		},
	}

	for _, c := range coupons {
		if err := repo.Upsert(ctx, c); err != nil {
			return errors.Wrapf(err, "upsert coupon %s", c.Code)
		}

		slog.Info("upserted coupon", slog.String("code", c.Code), slog.String("description", c.Description))
	}

	return nil
}

func seedPromotions(ctx context.Context, repo *postgres.PromotionRepository) error {
	slog.Info("seeding demo promotions")

	threshold := decimal.NewFromInt(150)
	maxQty := 5
	promotions := []promotion.Promotion{
		{
			ID:            "seed-apparel-sale",
			Name:          "Apparel week",
			Type:          promotion.TypeCatalogRule,
			DiscountType:  discount.KindPercentage,
			DiscountValue: decimal.NewFromInt(20),
			Actions:       promotion.Actions{ApplicableCategories: []string{"apparel"}},
			Priority:      10,
			IsActive:      true,
			Badge:         promotion.Badge{Text: "-20%", Color: "#d7263d"},
		},
		{
			ID:            "seed-big-basket",
			Name:          "10.00 off baskets over 150.00",
			Type:          promotion.TypeCartRule,
			DiscountType:  discount.KindFixedAmount,
			DiscountValue: decimal.NewFromInt(10),
			Conditions:    promotion.Conditions{MinOrderAmount: &threshold},
			Priority:      5,
			IsActive:      true,
		},
		{
			ID:           "seed-mug-tiers",
			Name:         "Mug multi-buy",
			Type:         promotion.TypeTieredPricing,
			DiscountType: discount.KindPercentage,
			Actions:      promotion.Actions{ApplicableProducts: []string{"mug"}},
			PriceTiers: []discount.Tier{
				{MinQuantity: 3, MaxQuantity: &maxQty, DiscountPercentage: decimal.NewFromInt(10)},
				{MinQuantity: 6, DiscountPercentage: decimal.NewFromInt(20)},
			},
			Priority: 1,
			IsActive: true,
		},
	}

	for _, p := range promotions {
		if err := promotion.ValidateTiers(p.PriceTiers); err != nil {
			return errors.Wrapf(err, "promotion %s", p.ID)
		}
		if err := repo.Upsert(ctx, p); err != nil {
			return errors.Wrapf(err, "upsert promotion %s", p.ID)
		}

		slog.Info("upserted promotion", slog.String("id", p.ID), slog.String("name", p.Name))
	}

	return nil
}
