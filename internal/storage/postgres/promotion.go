package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront-checkout/internal/domain/discount"
	"github.com/xenking/storefront-checkout/internal/domain/promotion"
)

const (
	promotionColumns = `id, name, type, discount_type, discount_value, max_discount, conditions, actions,
		priority, stop_rules_processing, price_tiers, usage_count, total_revenue_generated,
		is_active, start_date, end_date, badge`

	listActivePromotionsSQL = `SELECT ` + promotionColumns + `
		FROM promotions WHERE is_active AND type = $1
		ORDER BY priority DESC, id`

	incrementPromotionUsageSQL = `UPDATE promotions
		SET usage_count = usage_count + 1, total_revenue_generated = total_revenue_generated + $2
		WHERE id = $1`

	upsertPromotionSQL = `INSERT INTO promotions (` + promotionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name, type = EXCLUDED.type, discount_type = EXCLUDED.discount_type,
			discount_value = EXCLUDED.discount_value, max_discount = EXCLUDED.max_discount,
			conditions = EXCLUDED.conditions, actions = EXCLUDED.actions, priority = EXCLUDED.priority,
			stop_rules_processing = EXCLUDED.stop_rules_processing, price_tiers = EXCLUDED.price_tiers,
			is_active = EXCLUDED.is_active, start_date = EXCLUDED.start_date,
			end_date = EXCLUDED.end_date, badge = EXCLUDED.badge`
)

var _ promotion.Repository = (*PromotionRepository)(nil)

// PromotionRepository implements promotion.Repository backed by PostgreSQL.
// Conditions, actions, tiers and badge are stored as JSONB.
type PromotionRepository struct {
	db DBTX
}

func (r *PromotionRepository) ListActive(ctx context.Context, typ promotion.Type) ([]promotion.Promotion, error) {
	rows, err := r.db.Query(ctx, listActivePromotionsSQL, typ)
	if err != nil {
		return nil, fmt.Errorf("listing %s promotions: %w", typ, err)
	}
	return pgx.CollectRows(rows, scanPromotion)
}

func (r *PromotionRepository) IncrementUsage(ctx context.Context, id string, revenue decimal.Decimal) error {
	tag, err := r.db.Exec(ctx, incrementPromotionUsageSQL, id, revenue)
	if err != nil {
		return fmt.Errorf("incrementing usage of promotion %q: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return promotion.ErrNotFound
	}
	return nil
}

// Upsert inserts or replaces a promotion. Usage totals of an existing
// promotion are kept.
func (r *PromotionRepository) Upsert(ctx context.Context, p promotion.Promotion) error {
	tiers := p.PriceTiers
	if tiers == nil {
		tiers = []discount.Tier{}
	}
	_, err := r.db.Exec(ctx, upsertPromotionSQL,
		p.ID, p.Name, p.Type, p.DiscountType, p.DiscountValue, p.MaxDiscount, p.Conditions, p.Actions,
		p.Priority, p.StopRulesProcessing, tiers, p.UsageCount, p.TotalRevenueGenerated,
		p.IsActive, p.StartDate, p.EndDate, p.Badge,
	)
	if err != nil {
		return fmt.Errorf("upserting promotion %q: %w", p.ID, err)
	}
	return nil
}

func scanPromotion(row pgx.CollectableRow) (promotion.Promotion, error) {
	var p promotion.Promotion
	err := row.Scan(
		&p.ID, &p.Name, &p.Type, &p.DiscountType, &p.DiscountValue, &p.MaxDiscount, &p.Conditions, &p.Actions,
		&p.Priority, &p.StopRulesProcessing, &p.PriceTiers, &p.UsageCount, &p.TotalRevenueGenerated,
		&p.IsActive, &p.StartDate, &p.EndDate, &p.Badge,
	)
	return p, err
}
