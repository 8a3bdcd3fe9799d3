package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

const subscriptionColumns = `id, subscriber_id, creator_id, status, stripe_subscription_id, stripe_price_id,
	current_period_end, cancel_at_period_end, cancel_at, created_at, updated_at`

// A pair's row may be taken over by a new provider subscription only when it is
// free, already the same subscription, dead, or never got past incomplete.
const replaceableSubscription = `(subscriptions.stripe_subscription_id IS NULL
	OR subscriptions.stripe_subscription_id = EXCLUDED.stripe_subscription_id
	OR subscriptions.status IN ('canceled', 'incomplete_expired', 'incomplete'))`

const upsertPaidSubscriptionSQL = `INSERT INTO subscriptions (
	id, subscriber_id, creator_id, status, stripe_subscription_id, stripe_price_id, current_period_end, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, now(), now())
ON CONFLICT ON CONSTRAINT subscriptions_pair_key DO UPDATE SET
	status = CASE
		WHEN subscriptions.stripe_subscription_id = EXCLUDED.stripe_subscription_id
			AND subscriptions.status <> 'incomplete' THEN subscriptions.status
		ELSE EXCLUDED.status END,
	stripe_subscription_id = EXCLUDED.stripe_subscription_id,
	stripe_price_id = COALESCE(EXCLUDED.stripe_price_id, subscriptions.stripe_price_id),
	current_period_end = CASE
		WHEN subscriptions.stripe_subscription_id IS DISTINCT FROM EXCLUDED.stripe_subscription_id THEN EXCLUDED.current_period_end
		ELSE GREATEST(subscriptions.current_period_end, EXCLUDED.current_period_end) END,
	cancel_at_period_end = CASE
		WHEN subscriptions.stripe_subscription_id IS DISTINCT FROM EXCLUDED.stripe_subscription_id THEN FALSE
		ELSE subscriptions.cancel_at_period_end END,
	cancel_at = CASE
		WHEN subscriptions.stripe_subscription_id IS DISTINCT FROM EXCLUDED.stripe_subscription_id THEN NULL
		ELSE subscriptions.cancel_at END,
	provider_event_at = CASE
		WHEN subscriptions.stripe_subscription_id IS DISTINCT FROM EXCLUDED.stripe_subscription_id THEN NULL
		ELSE subscriptions.provider_event_at END,
	updated_at = now()
WHERE ` + replaceableSubscription

// UpsertPaidSubscription records a completed subscription checkout for the pair.
// On replay, or when the provider already reported a later status for the same
// subscription, the known status is kept. A row still incomplete under another
// reference is replaced. It returns false when the pair holds a different live
// paid subscription, which is left untouched.
func (s *Store) UpsertPaidSubscription(ctx context.Context, p PaidSubscription) (bool, error) {
	res, err := s.db.ExecContext(ctx, upsertPaidSubscriptionSQL,
		newID(), p.SubscriberID, p.CreatorID, string(p.Status), p.StripeSubscriptionID,
		nullString(p.StripePriceID), p.CurrentPeriodEnd)
	if err != nil {
		return false, fmt.Errorf("upsert paid subscription: %w", err)
	}
	return applied(res)
}

// staleMirror holds when the incoming event is older than the last one applied to
// the same provider subscription.
const staleMirror = `(subscriptions.stripe_subscription_id = EXCLUDED.stripe_subscription_id
	AND EXCLUDED.provider_event_at < subscriptions.provider_event_at)`

// A terminal status is absorbing. Otherwise a terminal event always lands, an
// incomplete one never regresses a row that moved on, and a stale one is dropped.
const mirrorSubscriptionByPairSQL = `INSERT INTO subscriptions (
	id, subscriber_id, creator_id, status, stripe_subscription_id, current_period_end, cancel_at_period_end, cancel_at,
	provider_event_at, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, now(), now())
ON CONFLICT ON CONSTRAINT subscriptions_pair_key DO UPDATE SET
	status = CASE
		WHEN subscriptions.stripe_subscription_id IS DISTINCT FROM EXCLUDED.stripe_subscription_id THEN EXCLUDED.status
		WHEN subscriptions.status IN ('canceled', 'incomplete_expired') THEN subscriptions.status
		WHEN EXCLUDED.status IN ('canceled', 'incomplete_expired') THEN EXCLUDED.status
		WHEN EXCLUDED.status = 'incomplete' THEN subscriptions.status
		WHEN ` + staleMirror + ` THEN subscriptions.status
		ELSE EXCLUDED.status END,
	stripe_subscription_id = EXCLUDED.stripe_subscription_id,
	current_period_end = CASE WHEN ` + staleMirror + ` THEN subscriptions.current_period_end
		ELSE COALESCE(EXCLUDED.current_period_end, subscriptions.current_period_end) END,
	cancel_at_period_end = CASE WHEN ` + staleMirror + ` THEN subscriptions.cancel_at_period_end
		ELSE EXCLUDED.cancel_at_period_end END,
	cancel_at = CASE WHEN ` + staleMirror + ` THEN subscriptions.cancel_at ELSE EXCLUDED.cancel_at END,
	provider_event_at = CASE
		WHEN subscriptions.stripe_subscription_id IS DISTINCT FROM EXCLUDED.stripe_subscription_id THEN EXCLUDED.provider_event_at
		ELSE GREATEST(subscriptions.provider_event_at, EXCLUDED.provider_event_at) END,
	updated_at = now()
WHERE ` + replaceableSubscription + `
	AND NOT (subscriptions.stripe_subscription_id IS NULL AND EXCLUDED.status IN ('canceled', 'incomplete_expired'))`

const mirrorSubscriptionByRefSQL = `UPDATE subscriptions SET
	status = CASE
		WHEN status IN ('canceled', 'incomplete_expired') THEN status
		WHEN $2::text IN ('canceled', 'incomplete_expired') THEN $2::text
		WHEN $2::text = 'incomplete' THEN status
		WHEN $6::timestamptz < provider_event_at THEN status
		ELSE $2::text END,
	current_period_end = CASE WHEN $6::timestamptz < provider_event_at THEN current_period_end
		ELSE COALESCE($3, current_period_end) END,
	cancel_at_period_end = CASE WHEN $6::timestamptz < provider_event_at THEN cancel_at_period_end ELSE $4 END,
	cancel_at = CASE WHEN $6::timestamptz < provider_event_at THEN cancel_at ELSE $5 END,
	provider_event_at = GREATEST(provider_event_at, $6::timestamptz),
	updated_at = now()
WHERE stripe_subscription_id = $1`

// MirrorSubscription copies the provider's status and period onto the local row.
// Terminal statuses are absorbing for the same provider subscription, events older
// than the last applied one are ignored, a row never goes back to incomplete, and
// the end of an old subscription never overwrites a free relation. Without a known pair
// only an existing row with the same provider reference is updated.
func (s *Store) MirrorSubscription(ctx context.Context, m SubscriptionMirror) (bool, error) {
	var (
		res sql.Result
		err error
	)
	if m.SubscriberID != "" && m.CreatorID != "" {
		res, err = s.db.ExecContext(ctx, mirrorSubscriptionByPairSQL,
			newID(), m.SubscriberID, m.CreatorID, string(m.Status), m.StripeSubscriptionID,
			m.CurrentPeriodEnd, m.CancelAtPeriodEnd, m.CancelAt, m.EventAt)
	} else {
		res, err = s.db.ExecContext(ctx, mirrorSubscriptionByRefSQL,
			m.StripeSubscriptionID, string(m.Status), m.CurrentPeriodEnd, m.CancelAtPeriodEnd, m.CancelAt, m.EventAt)
	}
	if err != nil {
		return false, fmt.Errorf("mirror subscription: %w", err)
	}
	return applied(res)
}

const markInvoicePaidSQL = `UPDATE subscriptions SET
	status = 'active',
	current_period_end = GREATEST(COALESCE(current_period_end, $2), $2),
	updated_at = now()
WHERE stripe_subscription_id = $1 AND status NOT IN ('canceled', 'incomplete_expired')`

// MarkInvoicePaid advances the subscription to active and moves its period end
// forward. It never resurrects a terminal subscription.
func (s *Store) MarkInvoicePaid(ctx context.Context, stripeSubscriptionID string, periodEnd *time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx, markInvoicePaidSQL, stripeSubscriptionID, periodEnd)
	if err != nil {
		return false, fmt.Errorf("mark invoice paid: %w", err)
	}
	return applied(res)
}

// RecordDuplicateSubscription keeps an audit row for a paid subscription that
// lost to a live one for the same pair, so it can be refunded.
func (s *Store) RecordDuplicateSubscription(ctx context.Context, p PaidSubscription) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO duplicate_subscriptions (stripe_subscription_id, subscriber_id, creator_id, stripe_price_id)
VALUES ($1, $2, $3, $4) ON CONFLICT (stripe_subscription_id) DO NOTHING`,
		p.StripeSubscriptionID, p.SubscriberID, p.CreatorID, nullString(p.StripePriceID))
	if err != nil {
		return fmt.Errorf("record duplicate subscription: %w", err)
	}
	return nil
}

const followCreatorSQL = `INSERT INTO subscriptions (id, subscriber_id, creator_id, status, created_at, updated_at)
VALUES ($1, $2, $3, 'active', now(), now())
ON CONFLICT ON CONSTRAINT subscriptions_pair_key DO UPDATE SET
	status = 'active',
	stripe_subscription_id = NULL,
	stripe_price_id = NULL,
	current_period_end = NULL,
	cancel_at_period_end = FALSE,
	cancel_at = NULL,
	updated_at = now()
WHERE subscriptions.status IN ('canceled', 'incomplete_expired')`

// FollowCreator creates the free-tier relation. A dead paid relation is turned
// into a free one; a live one is left alone and false is returned.
func (s *Store) FollowCreator(ctx context.Context, subscriberID, creatorID string) (bool, error) {
	res, err := s.db.ExecContext(ctx, followCreatorSQL, newID(), subscriberID, creatorID)
	if err != nil {
		return false, fmt.Errorf("follow creator: %w", err)
	}
	return applied(res)
}

// UnfollowCreator deletes the free-tier relation only. Paid rows are never deleted here.
func (s *Store) UnfollowCreator(ctx context.Context, subscriberID, creatorID string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM subscriptions WHERE subscriber_id = $1 AND creator_id = $2 AND stripe_subscription_id IS NULL`,
		subscriberID, creatorID)
	if err != nil {
		return false, fmt.Errorf("unfollow creator: %w", err)
	}
	return applied(res)
}

// GetSubscription is a point lookup on the natural key.
func (s *Store) GetSubscription(ctx context.Context, subscriberID, creatorID string) (Subscription, bool, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+subscriptionColumns+` FROM subscriptions WHERE subscriber_id = $1 AND creator_id = $2`,
		subscriberID, creatorID)
	sub, err := scanSubscription(row)
	ok, err := found(err)
	if err != nil {
		return Subscription{}, false, fmt.Errorf("get subscription: %w", err)
	}
	return sub, ok, nil
}

// ListSubscriptions returns every relation of a subscriber, newest first.
func (s *Store) ListSubscriptions(ctx context.Context, subscriberID string) ([]Subscription, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+subscriptionColumns+` FROM subscriptions WHERE subscriber_id = $1 ORDER BY created_at DESC`,
		subscriberID)
	if err != nil {
		return nil, fmt.Errorf("list subscriptions: %w", err)
	}
	defer rows.Close()

	var out []Subscription
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, fmt.Errorf("scan subscription: %w", err)
		}
		out = append(out, sub)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSubscription(row scanner) (Subscription, error) {
	var (
		sub                 Subscription
		status              string
		ref, price          sql.NullString
		periodEnd, cancelAt sql.NullTime
	)
	err := row.Scan(&sub.ID, &sub.SubscriberID, &sub.CreatorID, &status, &ref, &price,
		&periodEnd, &sub.CancelAtPeriodEnd, &cancelAt, &sub.CreatedAt, &sub.UpdatedAt)
	if err != nil {
		return Subscription{}, err
	}
	sub.Status = SubscriptionStatus(status)
	sub.StripeSubscriptionID = stringPtr(ref)
	sub.StripePriceID = stringPtr(price)
	sub.CurrentPeriodEnd = timePtr(periodEnd)
	sub.CancelAt = timePtr(cancelAt)
	return sub, nil
}
