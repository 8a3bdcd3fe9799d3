package db

import (
	"context"
	"database/sql"
	"fmt"
)

const purchaseColumns = `id, buyer_id, post_id, creator_id, amount, currency, stripe_payment_intent_id, status,
	platform_fee, creator_net, created_at, updated_at`

const upsertPendingPurchaseSQL = `INSERT INTO purchases (
	id, buyer_id, post_id, creator_id, stripe_payment_intent_id, status, currency, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, now(), now())
ON CONFLICT ON CONSTRAINT purchases_pair_key DO UPDATE SET
	creator_id = EXCLUDED.creator_id,
	stripe_payment_intent_id = COALESCE(EXCLUDED.stripe_payment_intent_id, purchases.stripe_payment_intent_id),
	status = EXCLUDED.status,
	currency = CASE WHEN EXCLUDED.currency = '' THEN purchases.currency ELSE EXCLUDED.currency END,
	updated_at = now()
WHERE purchases.status <> 'succeeded'`

// UpsertPendingPurchase records a PPV checkout that has not settled yet. A
// succeeded purchase is never moved back; false is returned in that case.
func (s *Store) UpsertPendingPurchase(ctx context.Context, p PendingPurchase) (bool, error) {
	if p.Status == PurchaseStatusSucceeded {
		return false, fmt.Errorf("upsert pending purchase: status %q is a settlement", p.Status)
	}
	res, err := s.db.ExecContext(ctx, upsertPendingPurchaseSQL,
		newID(), p.BuyerID, p.PostID, p.CreatorID, nullString(p.StripePaymentIntentID), string(p.Status), p.Currency)
	if err != nil {
		return false, fmt.Errorf("upsert pending purchase: %w", err)
	}
	return applied(res)
}

const settlePurchaseSQL = `INSERT INTO purchases (
	id, buyer_id, post_id, creator_id, stripe_payment_intent_id, status, amount, currency, platform_fee, creator_net,
	created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, 'succeeded', $6, $7, $8, $9, now(), now())
ON CONFLICT ON CONSTRAINT purchases_pair_key DO UPDATE SET
	creator_id = EXCLUDED.creator_id,
	stripe_payment_intent_id = EXCLUDED.stripe_payment_intent_id,
	status = 'succeeded',
	amount = EXCLUDED.amount,
	currency = EXCLUDED.currency,
	platform_fee = EXCLUDED.platform_fee,
	creator_net = EXCLUDED.creator_net,
	updated_at = now()
WHERE purchases.status <> 'succeeded'
	OR purchases.stripe_payment_intent_id = EXCLUDED.stripe_payment_intent_id`

// SettlePurchase marks the pair's purchase succeeded with provider-reported
// amounts, creating it if the capture is seen before the checkout. A purchase
// already settled by a different payment is left untouched and false is returned.
func (s *Store) SettlePurchase(ctx context.Context, st Settlement) (bool, error) {
	res, err := s.db.ExecContext(ctx, settlePurchaseSQL,
		newID(), st.BuyerID, st.PostID, st.CreatorID, st.StripePaymentIntentID,
		st.Amount, st.Currency, st.PlatformFee, st.CreatorNet)
	if err != nil {
		return false, fmt.Errorf("settle purchase: %w", err)
	}
	return applied(res)
}

// SettlePurchaseByPaymentRef settles the purchase that already carries the
// payment reference. Used when the payment carried no correlation metadata.
func (s *Store) SettlePurchaseByPaymentRef(ctx context.Context, st Settlement) (bool, error) {
	res, err := s.db.ExecContext(ctx, `UPDATE purchases SET
	status = 'succeeded', amount = $2, currency = $3, platform_fee = $4, creator_net = $5, updated_at = now()
WHERE stripe_payment_intent_id = $1`,
		st.StripePaymentIntentID, st.Amount, st.Currency, st.PlatformFee, st.CreatorNet)
	if err != nil {
		return false, fmt.Errorf("settle purchase by payment ref: %w", err)
	}
	return applied(res)
}

// MarkPurchaseFailed records a failed or canceled payment unless the purchase
// already succeeded.
func (s *Store) MarkPurchaseFailed(ctx context.Context, stripePaymentIntentID string, status PurchaseStatus) (bool, error) {
	res, err := s.db.ExecContext(ctx, `UPDATE purchases SET status = $2, updated_at = now()
WHERE stripe_payment_intent_id = $1 AND status <> 'succeeded'`,
		stripePaymentIntentID, string(status))
	if err != nil {
		return false, fmt.Errorf("mark purchase failed: %w", err)
	}
	return applied(res)
}

// GetPurchase is a point lookup on the natural key.
func (s *Store) GetPurchase(ctx context.Context, buyerID, postID string) (Purchase, bool, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+purchaseColumns+` FROM purchases WHERE buyer_id = $1 AND post_id = $2`, buyerID, postID)
	p, err := scanPurchase(row)
	ok, err := found(err)
	if err != nil {
		return Purchase{}, false, fmt.Errorf("get purchase: %w", err)
	}
	return p, ok, nil
}

// ListPurchases returns a buyer's purchases, newest first.
func (s *Store) ListPurchases(ctx context.Context, buyerID string) ([]Purchase, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+purchaseColumns+` FROM purchases WHERE buyer_id = $1 ORDER BY created_at DESC`, buyerID)
	if err != nil {
		return nil, fmt.Errorf("list purchases: %w", err)
	}
	defer rows.Close()

	var out []Purchase
	for rows.Next() {
		p, err := scanPurchase(rows)
		if err != nil {
			return nil, fmt.Errorf("scan purchase: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func scanPurchase(row scanner) (Purchase, error) {
	var (
		p      Purchase
		ref    sql.NullString
		status string
	)
	err := row.Scan(&p.ID, &p.BuyerID, &p.PostID, &p.CreatorID, &p.Amount, &p.Currency, &ref, &status,
		&p.PlatformFee, &p.CreatorNet, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return Purchase{}, err
	}
	p.StripePaymentIntentID = stringPtr(ref)
	p.Status = PurchaseStatus(status)
	return p, nil
}
