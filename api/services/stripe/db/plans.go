package db

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"
)

const planColumns = `creator_id, plan_key, interval_unit, interval_count, amount, currency, stripe_price_id,
	intro_discount_percent, stripe_coupon_id, created_at, updated_at`

// UpsertPlan creates or replaces the creator's plan for its key. Provider prices
// are immutable, so a changed plan points at a new price id.
func (s *Store) UpsertPlan(ctx context.Context, p Plan) error {
	var coupon *string
	if p.StripeCouponID != nil {
		coupon = nullString(*p.StripeCouponID)
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO creator_plans (
	creator_id, plan_key, interval_unit, interval_count, amount, currency, stripe_price_id, intro_discount_percent,
	stripe_coupon_id, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, now(), now())
ON CONFLICT ON CONSTRAINT creator_plans_pkey DO UPDATE SET
	interval_unit = EXCLUDED.interval_unit,
	interval_count = EXCLUDED.interval_count,
	amount = EXCLUDED.amount,
	currency = EXCLUDED.currency,
	stripe_price_id = EXCLUDED.stripe_price_id,
	intro_discount_percent = EXCLUDED.intro_discount_percent,
	stripe_coupon_id = EXCLUDED.stripe_coupon_id,
	updated_at = now()`,
		p.CreatorID, p.Key, p.IntervalUnit, p.IntervalCount, p.Amount, p.Currency, p.StripePriceID,
		p.IntroDiscountPercent, coupon)
	if err != nil {
		return fmt.Errorf("upsert plan: %w", err)
	}
	return nil
}

func (s *Store) GetPlan(ctx context.Context, creatorID, key string) (Plan, bool, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+planColumns+` FROM creator_plans WHERE creator_id = $1 AND plan_key = $2`, creatorID, key)
	p, err := scanPlan(row)
	ok, err := found(err)
	if err != nil {
		return Plan{}, false, fmt.Errorf("get plan: %w", err)
	}
	return p, ok, nil
}

// GetPlanByPrice finds the plan only if the price belongs to the creator.
func (s *Store) GetPlanByPrice(ctx context.Context, creatorID, stripePriceID string) (Plan, bool, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+planColumns+` FROM creator_plans WHERE creator_id = $1 AND stripe_price_id = $2`, creatorID, stripePriceID)
	p, err := scanPlan(row)
	ok, err := found(err)
	if err != nil {
		return Plan{}, false, fmt.Errorf("get plan by price: %w", err)
	}
	return p, ok, nil
}

// ListPlans returns the creator's plans restricted to keys when any are given.
func (s *Store) ListPlans(ctx context.Context, creatorID string, keys ...string) ([]Plan, error) {
	query := `SELECT ` + planColumns + ` FROM creator_plans WHERE creator_id = $1`
	args := []any{creatorID}
	if len(keys) > 0 {
		query += ` AND plan_key = ANY($2)`
		args = append(args, pq.Array(keys))
	}
	query += ` ORDER BY amount`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list plans: %w", err)
	}
	defer rows.Close()

	var out []Plan
	for rows.Next() {
		p, err := scanPlan(rows)
		if err != nil {
			return nil, fmt.Errorf("scan plan: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func scanPlan(row scanner) (Plan, error) {
	var (
		p      Plan
		coupon sql.NullString
	)
	err := row.Scan(&p.CreatorID, &p.Key, &p.IntervalUnit, &p.IntervalCount, &p.Amount, &p.Currency,
		&p.StripePriceID, &p.IntroDiscountPercent, &coupon, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return Plan{}, err
	}
	p.StripeCouponID = stringPtr(coupon)
	return p, nil
}
