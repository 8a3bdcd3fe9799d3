package app

import (
	"context"
	"fmt"

	stripedb "github.com/tbeaudouin05/fanvault/api/services/stripe/db"
)

const (
	connectRefreshPath = "/settings/payouts?refresh=1"
	connectReturnPath  = "/settings/payouts?onboarded=1"
)

// GetConnectStatus returns the cached readiness without calling the provider.
// Callers must tolerate staleness.
func (s serviceImpl) GetConnectStatus(ctx context.Context, creatorID string) (ConnectStatus, error) {
	u, err := s.loadUser(ctx, creatorID)
	if err != nil {
		return ConnectStatus{}, err
	}
	return connectStatusFromUser(u), nil
}

// RefreshConnectStatus asks the provider whether the creator's account can
// receive charges and caches the answer.
func (s serviceImpl) RefreshConnectStatus(ctx context.Context, creatorID string) (ConnectStatus, error) {
	u, err := s.loadUser(ctx, creatorID)
	if err != nil {
		return ConnectStatus{}, err
	}
	if u.StripeAccountID == nil || *u.StripeAccountID == "" {
		return connectStatusFromUser(u), nil
	}

	acct, err := s.gw.GetAccount(ctx, *u.StripeAccountID)
	if err != nil {
		return ConnectStatus{}, fmt.Errorf("%w: error retrieving account: %v", ErrGateway, err)
	}
	now := s.now().UTC()
	if err := s.store.UpdateChargesEnabled(ctx, creatorID, acct.ChargesEnabled, now); err != nil {
		return ConnectStatus{}, fmt.Errorf("%w: %v", ErrDatabase, err)
	}
	if acct.ChargesEnabled != u.ChargesEnabled {
		s.log.Info("connect charges flag changed", "creator_id", creatorID, "charges_enabled", acct.ChargesEnabled)
	}
	return ConnectStatus{AccountID: acct.ID, ChargesEnabled: acct.ChargesEnabled, CheckedAt: &now}, nil
}

// StartConnectOnboarding creates the creator's Express account on first use and
// returns a hosted onboarding link for it.
func (s serviceImpl) StartConnectOnboarding(ctx context.Context, creatorID string) (string, error) {
	u, err := s.loadUser(ctx, creatorID)
	if err != nil {
		return "", err
	}

	accountID := ""
	if u.StripeAccountID != nil {
		accountID = *u.StripeAccountID
	}
	if accountID == "" {
		acct, err := s.gw.CreateExpressAccount(ctx, creatorID, u.Email)
		if err != nil {
			return "", fmt.Errorf("%w: error creating connect account: %v", ErrGateway, err)
		}
		// a concurrent request may have stored its account first
		accountID, err = s.store.SetConnectAccount(ctx, creatorID, acct.ID)
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrDatabase, err)
		}
		s.log.Info("connect account created", "creator_id", creatorID, "stripe_account_id", accountID)
	}

	link, err := s.gw.CreateOnboardingLink(ctx, accountID,
		s.settings.PublicBaseURL+connectRefreshPath, s.settings.PublicBaseURL+connectReturnPath)
	if err != nil {
		return "", fmt.Errorf("%w: error creating onboarding link: %v", ErrGateway, err)
	}
	return link, nil
}

// payoutDestination returns the creator's account when it can currently
// receive charges. Any failure degrades to "not ready" so checkout proceeds
// without a fee split.
func (s serviceImpl) payoutDestination(ctx context.Context, creatorID string) (string, bool) {
	st, err := s.RefreshConnectStatus(ctx, creatorID)
	if err != nil {
		s.log.Warn("connect status unavailable, collecting without split", "creator_id", creatorID, "err", err)
		s.metrics.IncSideEffectFailure("connect_refresh")
		return "", false
	}
	if !st.ChargesEnabled || st.AccountID == "" {
		return "", false
	}
	return st.AccountID, true
}

func (s serviceImpl) loadUser(ctx context.Context, userID string) (stripedb.User, error) {
	if userID == "" {
		return stripedb.User{}, ErrUnauthenticated
	}
	u, ok, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return stripedb.User{}, fmt.Errorf("%w: %v", ErrDatabase, err)
	}
	if !ok {
		return stripedb.User{}, fmt.Errorf("%w: user %s", ErrNotFound, userID)
	}
	return u, nil
}
