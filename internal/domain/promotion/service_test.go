package promotion

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/storefront-checkout/internal/domain/cart"
	"github.com/xenking/storefront-checkout/internal/domain/customer"
	"github.com/xenking/storefront-checkout/internal/domain/discount"
	"github.com/xenking/storefront-checkout/internal/domain/money"
	"github.com/xenking/storefront-checkout/internal/domain/product"
)

var fixedNow = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

type mockRepo struct {
	byType     map[Type][]Promotion
	increments map[string]decimal.Decimal
}

func (m *mockRepo) ListActive(_ context.Context, typ Type) ([]Promotion, error) {
	return append([]Promotion(nil), m.byType[typ]...), nil
}

func (m *mockRepo) IncrementUsage(_ context.Context, id string, revenue decimal.Decimal) error {
	if m.increments == nil {
		m.increments = map[string]decimal.Decimal{}
	}
	m.increments[id] = m.increments[id].Add(revenue)
	return nil
}

type mockProfiles map[string]*customer.Profile

func (m mockProfiles) Profile(_ context.Context, id string) (*customer.Profile, error) {
	p, ok := m[id]
	if !ok {
		return nil, customer.ErrNotFound
	}
	return p, nil
}

func d(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func ptr[T any](v T) *T {
	return &v
}

func newTestService(repo Repository, profiles ProfileSource) *Service {
	s := NewService(repo, profiles, discount.NewCalculator(money.HalfUp))
	s.now = func() time.Time { return fixedNow }
	return s
}

func TestService_FindBestForProduct(t *testing.T) {
	p := product.Product{ID: "p1", Price: d("100"), CategoryIDs: []string{"shoes"}}
	past := fixedNow.Add(-time.Hour)

	promos := []Promotion{
		{ID: "low-priority-big", IsActive: true, Priority: 1, DiscountType: discount.KindPercentage, DiscountValue: d("50")},
		{ID: "high-small", IsActive: true, Priority: 5, DiscountType: discount.KindPercentage, DiscountValue: d("10")},
		{ID: "high-big", IsActive: true, Priority: 5, DiscountType: discount.KindPercentage, DiscountValue: d("20")},
		{ID: "excluded", IsActive: true, Priority: 9, DiscountValue: d("90"),
			Actions: Actions{ApplicableProducts: []string{"p1"}, ExcludedCategories: []string{"shoes"}}},
		{ID: "other-category", IsActive: true, Priority: 9, DiscountValue: d("90"),
			Actions: Actions{ApplicableCategories: []string{"hats"}}},
		{ID: "ended", IsActive: true, Priority: 9, DiscountValue: d("90"), EndDate: &past},
		{ID: "inactive", IsActive: false, Priority: 9, DiscountValue: d("90")},
	}

	best, ok := newTestService(&mockRepo{}, mockProfiles{}).FindBestForProduct(p, promos)
	require.True(t, ok)
	assert.Equal(t, "high-big", best.ID)

	_, ok = newTestService(&mockRepo{}, mockProfiles{}).FindBestForProduct(p, promos[3:])
	assert.False(t, ok)
}

func TestService_BadgeFor(t *testing.T) {
	repo := &mockRepo{byType: map[Type][]Promotion{
		TypeCatalogRule: {
			{ID: "summer", IsActive: true, DiscountType: discount.KindPercentage, DiscountValue: d("25"),
				Badge: Badge{Text: "-25%"}},
		},
	}}
	svc := newTestService(repo, mockProfiles{})

	badge, ok, err := svc.BadgeFor(context.Background(), product.Product{ID: "p", Price: d("19.99")})
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "-25%", badge.Promotion.Badge.Text)
	assert.True(t, d("14.99").Equal(badge.PromotionalPrice), "got %s", badge.PromotionalPrice)
	assert.True(t, d("5.00").Equal(badge.Discount), "got %s", badge.Discount)
}

func TestService_ApplyCartRules(t *testing.T) {
	lines := []cart.Line{
		{ProductID: "a", UnitPrice: d("40"), Quantity: 2, CategoryIDs: []string{"c1"}},
		{ProductID: "b", UnitPrice: d("20"), Quantity: 1, CategoryIDs: []string{"c2"}},
	}
	subtotal := d("100")

	tests := []struct {
		name       string
		rules      []Promotion
		tiered     []Promotion
		customerID string
		wantIDs    []string
		want       string
	}{
		{
			name: "accumulates every eligible rule",
			rules: []Promotion{
				{ID: "r1", IsActive: true, Priority: 2, DiscountType: discount.KindPercentage, DiscountValue: d("10")},
				{ID: "r2", IsActive: true, Priority: 1, DiscountType: discount.KindFixedAmount, DiscountValue: d("5")},
			},
			wantIDs: []string{"r1", "r2"},
			want:    "15",
		},
		{
			name: "stop rules processing halts lower priorities",
			rules: []Promotion{
				{ID: "r2", IsActive: true, Priority: 1, DiscountType: discount.KindFixedAmount, DiscountValue: d("5")},
				{ID: "r1", IsActive: true, Priority: 2, DiscountType: discount.KindPercentage, DiscountValue: d("10"),
					StopRulesProcessing: true},
			},
			wantIDs: []string{"r1"},
			want:    "10",
		},
		{
			name: "failed conditions skip without stopping",
			rules: []Promotion{
				{ID: "big-order", IsActive: true, Priority: 3, DiscountType: discount.KindFixedAmount, DiscountValue: d("50"),
					StopRulesProcessing: true, Conditions: Conditions{MinOrderAmount: ptr(d("500"))}},
				{ID: "r2", IsActive: true, Priority: 1, DiscountType: discount.KindFixedAmount, DiscountValue: d("5")},
			},
			wantIDs: []string{"r2"},
			want:    "5",
		},
		{
			name: "min items, quantity and required products",
			rules: []Promotion{
				{ID: "items", IsActive: true, Priority: 4, DiscountType: discount.KindFixedAmount, DiscountValue: d("1"),
					Conditions: Conditions{MinItems: ptr(3)}},
				{ID: "qty", IsActive: true, Priority: 3, DiscountType: discount.KindFixedAmount, DiscountValue: d("2"),
					Conditions: Conditions{MinQuantity: ptr(3)}},
				{ID: "requires", IsActive: true, Priority: 2, DiscountType: discount.KindFixedAmount, DiscountValue: d("3"),
					Conditions: Conditions{RequiresProducts: []string{"z", "b"}}},
				{ID: "requires-missing", IsActive: true, Priority: 1, DiscountType: discount.KindFixedAmount, DiscountValue: d("4"),
					Conditions: Conditions{RequiresProducts: []string{"z"}}},
			},
			wantIDs: []string{"qty", "requires"},
			want:    "5",
		},
		{
			name: "group and first order conditions",
			rules: []Promotion{
				{ID: "vip", IsActive: true, Priority: 2, DiscountType: discount.KindFixedAmount, DiscountValue: d("7"),
					Conditions: Conditions{CustomerGroups: []string{"vip"}}},
				{ID: "welcome", IsActive: true, Priority: 1, DiscountType: discount.KindFixedAmount, DiscountValue: d("3"),
					Conditions: Conditions{FirstOrderOnly: true}},
			},
			customerID: "returning-vip",
			wantIDs:    []string{"vip"},
			want:       "7",
		},
		{
			name: "scoped to category",
			rules: []Promotion{
				{ID: "c2", IsActive: true, DiscountType: discount.KindPercentage, DiscountValue: d("50"),
					Actions: Actions{ApplicableCategories: []string{"c2"}}},
			},
			wantIDs: []string{"c2"},
			want:    "10",
		},
		{
			name: "tiered pricing by line quantity",
			tiered: []Promotion{
				{ID: "bulk", Type: TypeTieredPricing, IsActive: true, PriceTiers: []discount.Tier{
					{MinQuantity: 2, MaxQuantity: ptr(4), DiscountPercentage: d("10")},
					{MinQuantity: 5, DiscountPercentage: d("20")},
				}},
			},
			wantIDs: []string{"bulk"},
			want:    "8",
		},
	}

	profiles := mockProfiles{
		"returning-vip": {CustomerID: "returning-vip", GroupID: "vip", OrderCount: 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := &mockRepo{byType: map[Type][]Promotion{TypeCartRule: tt.rules, TypeTieredPricing: tt.tiered}}

			got, err := newTestService(repo, profiles).ApplyCartRules(context.Background(), lines, subtotal, tt.customerID)
			require.NoError(t, err)
			assert.Equal(t, tt.wantIDs, got.IDs())
			assert.True(t, d(tt.want).Equal(got.TotalDiscount), "want %s, got %s", tt.want, got.TotalDiscount)
		})
	}
}

func TestService_RecordUsage(t *testing.T) {
	repo := &mockRepo{}
	svc := newTestService(repo, mockProfiles{})

	require.NoError(t, svc.RecordUsage(context.Background(), []string{"a", "b"}, d("80")))
	assert.True(t, d("80").Equal(repo.increments["a"]))
	assert.True(t, d("80").Equal(repo.increments["b"]))
}

func TestValidateTiers(t *testing.T) {
	tests := []struct {
		name    string
		tiers   []discount.Tier
		wantErr bool
	}{
		{"empty", nil, false},
		{"disjoint", []discount.Tier{
			{MinQuantity: 1, MaxQuantity: ptr(4), DiscountPercentage: d("5")},
			{MinQuantity: 5, DiscountPercentage: d("10")},
		}, false},
		{"overlapping", []discount.Tier{
			{MinQuantity: 1, MaxQuantity: ptr(5), DiscountPercentage: d("5")},
			{MinQuantity: 5, DiscountPercentage: d("10")},
		}, true},
		{"open-ended before later band", []discount.Tier{
			{MinQuantity: 1, DiscountPercentage: d("5")},
			{MinQuantity: 10, MaxQuantity: ptr(20), DiscountPercentage: d("10")},
		}, true},
		{"inverted bounds", []discount.Tier{
			{MinQuantity: 5, MaxQuantity: ptr(2), DiscountPercentage: d("5")},
		}, true},
		{"percentage above 100", []discount.Tier{
			{MinQuantity: 1, DiscountPercentage: d("150")},
		}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateTiers(tt.tiers)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
		})
	}
}
