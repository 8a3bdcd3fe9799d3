package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

func (s *Store) GetUser(ctx context.Context, id string) (User, bool, error) {
	var (
		u                 User
		customer, account sql.NullString
		checkedAt         sql.NullTime
	)
	err := s.db.QueryRowContext(ctx, `SELECT id, email, username, stripe_customer_id, stripe_account_id,
	charges_enabled, charges_checked_at FROM users WHERE id = $1`, id).
		Scan(&u.ID, &u.Email, &u.Username, &customer, &account, &u.ChargesEnabled, &checkedAt)
	ok, err := found(err)
	if err != nil {
		return User{}, false, fmt.Errorf("get user: %w", err)
	}
	if !ok {
		return User{}, false, nil
	}
	u.StripeCustomerID = stringPtr(customer)
	u.StripeAccountID = stringPtr(account)
	u.ChargesCheckedAt = timePtr(checkedAt)
	return u, true, nil
}

// SetStripeCustomerID stores the customer id unless one is already set, and
// returns the id that won.
func (s *Store) SetStripeCustomerID(ctx context.Context, userID, customerID string) (string, error) {
	var stored string
	err := s.db.QueryRowContext(ctx, `UPDATE users SET stripe_customer_id = COALESCE(stripe_customer_id, $2)
WHERE id = $1 RETURNING stripe_customer_id`, userID, customerID).Scan(&stored)
	if err != nil {
		return "", fmt.Errorf("set stripe customer id: %w", err)
	}
	return stored, nil
}

// SetConnectAccount stores the connected account id unless one is already set,
// and returns the id that won.
func (s *Store) SetConnectAccount(ctx context.Context, userID, accountID string) (string, error) {
	var stored string
	err := s.db.QueryRowContext(ctx, `UPDATE users SET stripe_account_id = COALESCE(stripe_account_id, $2)
WHERE id = $1 RETURNING stripe_account_id`, userID, accountID).Scan(&stored)
	if err != nil {
		return "", fmt.Errorf("set connect account: %w", err)
	}
	return stored, nil
}

// UpdateChargesEnabled caches the provider's charges flag for the creator.
func (s *Store) UpdateChargesEnabled(ctx context.Context, userID string, enabled bool, checkedAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `UPDATE users SET charges_enabled = $2, charges_checked_at = $3 WHERE id = $1`,
		userID, enabled, checkedAt)
	if err != nil {
		return fmt.Errorf("update charges enabled: %w", err)
	}
	return nil
}

func (s *Store) GetPost(ctx context.Context, id string) (Post, bool, error) {
	var (
		p     Post
		price sql.NullInt64
	)
	err := s.db.QueryRowContext(ctx, `SELECT id, creator_id, title, exclusive, ppv_price, currency FROM posts WHERE id = $1`, id).
		Scan(&p.ID, &p.CreatorID, &p.Title, &p.Exclusive, &price, &p.Currency)
	ok, err := found(err)
	if err != nil {
		return Post{}, false, fmt.Errorf("get post: %w", err)
	}
	if !ok {
		return Post{}, false, nil
	}
	if price.Valid {
		v := price.Int64
		p.PPVPrice = &v
	}
	return p, true, nil
}
