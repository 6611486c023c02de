package discount

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/storefront-checkout/internal/domain/cart"
	"github.com/xenking/storefront-checkout/internal/domain/money"
)

func d(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func ptr[T any](v T) *T {
	return &v
}

func line(id, price string, qty int, categories ...string) cart.Line {
	return cart.Line{ProductID: id, UnitPrice: d(price), Quantity: qty, CategoryIDs: categories}
}

func TestCalculator_CouponDiscount(t *testing.T) {
	calc := NewCalculator(money.HalfUp)

	tests := []struct {
		name     string
		terms    CouponTerms
		subtotal string
		lines    []cart.Line
		want     string
		wantErr  string
	}{
		{
			name:     "percentage on fully eligible cart",
			terms:    CouponTerms{Type: CouponPercentage, Value: d("10")},
			subtotal: "200",
			lines:    []cart.Line{line("a", "50", 2), line("b", "100", 1)},
			want:     "20.00",
		},
		{
			name:     "percentage capped by max discount",
			terms:    CouponTerms{Type: CouponPercentage, Value: d("50"), MaxDiscount: ptr(d("15"))},
			subtotal: "100",
			lines:    []cart.Line{line("a", "100", 1)},
			want:     "15.00",
		},
		{
			name: "percentage only on applicable category",
			terms: CouponTerms{
				Type:  CouponPercentage,
				Value: d("10"),
				Scope: Scope{ApplicableCategories: []string{"shoes"}},
			},
			subtotal: "150",
			lines:    []cart.Line{line("a", "100", 1, "shoes"), line("b", "50", 1, "hats")},
			want:     "10.00",
		},
		{
			name:     "percentage rounds half up at the end",
			terms:    CouponTerms{Type: CouponPercentage, Value: d("15")},
			subtotal: "29.97",
			lines:    []cart.Line{line("a", "9.99", 3)},
			want:     "4.50",
		},
		{
			name:     "fixed amount below subtotal",
			terms:    CouponTerms{Type: CouponFixedAmount, Value: d("50")},
			subtotal: "120",
			lines:    []cart.Line{line("a", "120", 1)},
			want:     "50.00",
		},
		{
			name:     "fixed amount capped at subtotal",
			terms:    CouponTerms{Type: CouponFixedAmount, Value: d("50")},
			subtotal: "30",
			lines:    []cart.Line{line("a", "30", 1)},
			want:     "30.00",
		},
		{
			name:     "free shipping contributes nothing",
			terms:    CouponTerms{Type: CouponFreeShipping},
			subtotal: "80",
			lines:    []cart.Line{line("a", "80", 1)},
			want:     "0",
		},
		{
			name: "buy two get one discounts the cheapest get units",
			terms: CouponTerms{
				Type: CouponBuyXGetY, BuyQuantity: 2, GetQuantity: 1,
				BuyProducts: []string{"A"}, GetProducts: []string{"B1", "B2", "B3"},
			},
			subtotal: "61",
			lines: []cart.Line{
				line("A", "10", 4),
				line("B3", "9", 1),
				line("B1", "5", 1),
				line("B2", "7", 1),
			},
			want: "12.00",
		},
		{
			name: "buy x get y below buy quantity",
			terms: CouponTerms{
				Type: CouponBuyXGetY, BuyQuantity: 3, GetQuantity: 1,
				BuyProducts: []string{"A"}, GetProducts: []string{"B"},
			},
			subtotal: "25",
			lines:    []cart.Line{line("A", "10", 2), line("B", "5", 1)},
			want:     "0",
		},
		{
			name: "buy x get y with fewer get units than earned",
			terms: CouponTerms{
				Type: CouponBuyXGetY, BuyQuantity: 1, GetQuantity: 2,
				BuyProducts: []string{"A"}, GetProducts: []string{"B"},
			},
			subtotal: "35",
			lines:    []cart.Line{line("A", "10", 3), line("B", "5", 1)},
			want:     "5.00",
		},
		{
			name: "buy x get y takes part of a line",
			terms: CouponTerms{
				Type: CouponBuyXGetY, BuyQuantity: 1, GetQuantity: 1,
				BuyProducts: []string{"A"}, GetProducts: []string{"B", "C"},
			},
			subtotal: "54",
			lines:    []cart.Line{line("A", "10", 3), line("C", "7", 2), line("B", "5", 2)},
			want:     "17.00",
		},
		{
			name: "buy x get y with huge quantities",
			terms: CouponTerms{
				Type: CouponBuyXGetY, BuyQuantity: 1, GetQuantity: 1,
				BuyProducts: []string{"A"}, GetProducts: []string{"B"},
			},
			subtotal: "6000000000",
			lines:    []cart.Line{line("A", "1", 2_000_000_000), line("B", "2", 2_000_000_000)},
			want:     "4000000000.00",
		},
		{
			name: "fixed price skips lines already below price",
			terms: CouponTerms{
				Type:  CouponFixedPrice,
				Value: d("20"),
			},
			subtotal: "85",
			lines:    []cart.Line{line("a", "25", 3), line("b", "10", 1)},
			want:     "15.00",
		},
		{
			name:     "unsupported type",
			terms:    CouponTerms{Type: CouponType("bogus")},
			subtotal: "10",
			lines:    []cart.Line{line("a", "10", 1)},
			wantErr:  "unsupported coupon type",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := calc.CouponDiscount(tt.terms, d(tt.subtotal), tt.lines)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.True(t, d(tt.want).Equal(got), "want %s, got %s", tt.want, got)
		})
	}
}

func TestEligible(t *testing.T) {
	sale := line("p1", "10", 1, "c1")
	sale.OnSale = true

	tests := []struct {
		name  string
		line  cart.Line
		scope Scope
		want  bool
	}{
		{"no restrictions", line("p1", "10", 1), Scope{}, true},
		{"sale item excluded", sale, Scope{ExcludeSaleItems: true}, false},
		{"sale item allowed", sale, Scope{}, true},
		{"excluded product", line("p1", "10", 1), Scope{ExcludedProducts: []string{"p1"}}, false},
		{"excluded category", line("p1", "10", 1, "c1"), Scope{ExcludedCategories: []string{"c1"}}, false},
		{
			"exclusion wins over inclusion",
			line("p1", "10", 1, "c1"),
			Scope{ApplicableProducts: []string{"p1"}, ExcludedCategories: []string{"c1"}},
			false,
		},
		{"applicable product", line("p1", "10", 1), Scope{ApplicableProducts: []string{"p1"}}, true},
		{"not applicable product", line("p2", "10", 1), Scope{ApplicableProducts: []string{"p1"}}, false},
		{"applicable category", line("p2", "10", 1, "c2"), Scope{ApplicableCategories: []string{"c2"}}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Eligible(tt.line, tt.scope))
		})
	}
}

func TestCalculator_Promotion(t *testing.T) {
	calc := NewCalculator(money.HalfUp)

	assert.True(t, d("2.50").Equal(calc.PromotionDiscount(KindPercentage, d("25"), nil, d("10"))))
	assert.True(t, d("1.00").Equal(calc.PromotionDiscount(KindPercentage, d("25"), ptr(d("1")), d("10"))))
	assert.True(t, d("10.00").Equal(calc.PromotionDiscount(KindFixedAmount, d("15"), nil, d("10"))))
	assert.True(t, d("7.50").Equal(calc.PromotionalPrice(KindPercentage, d("25"), nil, d("10"))))
	assert.True(t, d("0").Equal(calc.PromotionalPrice(KindFixedAmount, d("15"), nil, d("10"))))
	assert.True(t, d("0").Equal(calc.PromotionDiscount(Kind("other"), d("15"), nil, d("10"))))

	lines := []cart.Line{line("a", "40", 1, "c1"), line("b", "60", 1, "c2")}
	got := calc.CartRuleDiscount(KindPercentage, d("10"), nil, lines, Scope{ApplicableCategories: []string{"c2"}})
	assert.True(t, d("6.00").Equal(got), "got %s", got)
}

func TestCalculator_TieredDiscount(t *testing.T) {
	calc := NewCalculator(money.HalfUp)
	tiers := []Tier{
		{MinQuantity: 5, MaxQuantity: ptr(9), DiscountPercentage: d("5")},
		{MinQuantity: 10, MaxQuantity: nil, DiscountPercentage: d("10")},
		{MinQuantity: 8, MaxQuantity: nil, DiscountPercentage: d("50")},
	}

	assert.True(t, d("0").Equal(calc.TieredDiscount(tiers, 4, d("10"))))
	assert.True(t, d("2.50").Equal(calc.TieredDiscount(tiers, 5, d("10"))))
	// First match wins: 8 units sit in the 5..9 band even though a later
	// band offers more.
	assert.True(t, d("4.00").Equal(calc.TieredDiscount(tiers, 8, d("10"))))
	assert.True(t, d("12.00").Equal(calc.TieredDiscount(tiers, 12, d("10"))))

	_, ok := MatchTier(nil, 3)
	assert.False(t, ok)
}

func TestCalculator_Stack(t *testing.T) {
	calc := NewCalculator(money.HalfUp)
	discounts := []decimal.Decimal{d("5"), d("12.5"), d("3")}

	assert.True(t, d("12.50").Equal(calc.Stack(discounts, false)))
	assert.True(t, d("20.50").Equal(calc.Stack(discounts, true)))
	assert.True(t, decimal.Zero.Equal(calc.Stack(nil, true)))
}
