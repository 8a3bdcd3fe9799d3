package app

import (
	"context"
	"fmt"
	"time"

	stripe "github.com/stripe/stripe-go/v76"
	stripedb "github.com/tbeaudouin05/fanvault/api/services/stripe/db"
)

// FollowCreator creates the free relation. It returns false when the pair
// already has a live relation, free or paid.
func (s serviceImpl) FollowCreator(ctx context.Context, viewerID, creatorID string) (bool, error) {
	if err := s.checkPair(ctx, viewerID, creatorID); err != nil {
		return false, err
	}
	ok, err := s.store.FollowCreator(ctx, viewerID, creatorID)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrDatabase, err)
	}
	s.metrics.IncLedgerMutation("subscription", ok)
	return ok, nil
}

// UnfollowCreator removes the free relation. Paid relations are ended through
// CancelSubscription instead.
func (s serviceImpl) UnfollowCreator(ctx context.Context, viewerID, creatorID string) (bool, error) {
	if viewerID == "" {
		return false, ErrUnauthenticated
	}
	if creatorID == "" {
		return false, fmt.Errorf("%w: creator_id is required", ErrValidation)
	}
	ok, err := s.store.UnfollowCreator(ctx, viewerID, creatorID)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrDatabase, err)
	}
	s.metrics.IncLedgerMutation("subscription", ok)
	return ok, nil
}

// CancelSubscription ends a paid relation at the provider, immediately or at
// period end, and mirrors the provider's answer. The row is kept.
func (s serviceImpl) CancelSubscription(ctx context.Context, viewerID, creatorID string, atPeriodEnd bool) (stripedb.Subscription, error) {
	if viewerID == "" {
		return stripedb.Subscription{}, ErrUnauthenticated
	}
	sub, ok, err := s.store.GetSubscription(ctx, viewerID, creatorID)
	if err != nil {
		return stripedb.Subscription{}, fmt.Errorf("%w: %v", ErrDatabase, err)
	}
	if !ok {
		return stripedb.Subscription{}, fmt.Errorf("%w: no subscription to creator %s", ErrNotFound, creatorID)
	}
	if !sub.Paid() {
		return stripedb.Subscription{}, fmt.Errorf("%w: free relation has nothing to cancel", ErrValidation)
	}
	if sub.Status.Terminal() {
		return sub, nil
	}

	var provider stripe.Subscription
	if atPeriodEnd {
		provider, err = s.gw.ScheduleCancellation(ctx, *sub.StripeSubscriptionID, time.Time{})
	} else {
		provider, err = s.gw.CancelSubscription(ctx, *sub.StripeSubscriptionID)
	}
	if err != nil {
		return stripedb.Subscription{}, fmt.Errorf("%w: error canceling subscription: %v", ErrGateway, err)
	}
	if provider.ID == "" {
		provider.ID = *sub.StripeSubscriptionID
	}

	changed, err := SubscriptionChangedFromSubscription(provider, provider.Status == stripe.SubscriptionStatusCanceled)
	if err != nil {
		return stripedb.Subscription{}, fmt.Errorf("%w: %v", ErrGateway, err)
	}
	changed.Meta = CheckoutMetadata{BuyerID: viewerID, CreatorID: creatorID}
	if err := s.applySubscriptionChanged(ctx, changed); err != nil {
		return stripedb.Subscription{}, err
	}
	s.log.Info("subscription cancellation requested", "subscriber_id", viewerID, "creator_id", creatorID,
		"at_period_end", atPeriodEnd, "status", changed.Status)

	updated, ok, err := s.store.GetSubscription(ctx, viewerID, creatorID)
	if err != nil {
		return stripedb.Subscription{}, fmt.Errorf("%w: %v", ErrDatabase, err)
	}
	if !ok {
		return stripedb.Subscription{}, fmt.Errorf("%w: subscription vanished", ErrDatabase)
	}
	return updated, nil
}

func (s serviceImpl) ListSubscriptions(ctx context.Context, viewerID string) ([]stripedb.Subscription, error) {
	if viewerID == "" {
		return nil, ErrUnauthenticated
	}
	subs, err := s.store.ListSubscriptions(ctx, viewerID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDatabase, err)
	}
	return subs, nil
}

func (s serviceImpl) ListPurchases(ctx context.Context, viewerID string) ([]stripedb.Purchase, error) {
	if viewerID == "" {
		return nil, ErrUnauthenticated
	}
	purchases, err := s.store.ListPurchases(ctx, viewerID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDatabase, err)
	}
	return purchases, nil
}

func (s serviceImpl) checkPair(ctx context.Context, viewerID, creatorID string) error {
	if viewerID == "" {
		return ErrUnauthenticated
	}
	if creatorID == "" {
		return fmt.Errorf("%w: creator_id is required", ErrValidation)
	}
	if viewerID == creatorID {
		return fmt.Errorf("%w: cannot follow yourself", ErrValidation)
	}
	_, ok, err := s.store.GetUser(ctx, creatorID)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDatabase, err)
	}
	if !ok {
		return fmt.Errorf("%w: creator %s", ErrNotFound, creatorID)
	}
	return nil
}
