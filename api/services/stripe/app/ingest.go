package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/stripe/stripe-go/v76/webhook"
	stripedb "github.com/tbeaudouin05/fanvault/api/services/stripe/db"
)

// Webhook outcomes recorded in metrics.
const (
	outcomeApplied  = "applied"
	outcomeReplayed = "replayed"
	outcomeSkipped  = "skipped"
	outcomeIgnored  = "ignored"
	outcomeFailed   = "failed"
	outcomeRejected = "rejected"
)

// HandleWebhook verifies and applies one provider delivery. It returns nil for
// anything the provider should not retry: applied, replayed, ignored or
// malformed events. Only a bad signature (ErrSignature) and storage failures
// (ErrDatabase) are returned.
func (s serviceImpl) HandleWebhook(ctx context.Context, payload []byte, signature string) error {
	ctx, cancel := context.WithTimeout(ctx, s.settings.WebhookTimeout)
	defer cancel()

	event, err := webhook.ConstructEventWithOptions(payload, signature, s.settings.WebhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		s.metrics.IncWebhookEvent("unverified", outcomeRejected)
		s.log.Warn("stripe webhook signature verification failed", "err", err)
		return fmt.Errorf("%w: %v", ErrSignature, err)
	}
	kind := string(event.Type)
	log := s.log.With("event_id", event.ID, "event_type", kind)

	seen, err := s.marker.Seen(ctx, event.ID)
	if err != nil {
		// the ledger writes are idempotent, so a marker outage only costs a replay
		log.Warn("event marker lookup failed", "err", err)
	}
	if seen {
		s.metrics.IncWebhookEvent(kind, outcomeReplayed)
		log.Debug("stripe event already processed")
		return nil
	}

	parsed, err := ParseEvent(event)
	if err != nil {
		if errors.Is(err, ErrBadEvent) {
			s.metrics.IncWebhookEvent(kind, outcomeSkipped)
			log.Warn("skipping malformed stripe event", "err", err)
			s.mark(ctx, event.ID)
			return nil
		}
		return err
	}

	if err := s.apply(ctx, parsed); err != nil {
		if errors.Is(err, ErrBadEvent) {
			s.metrics.IncWebhookEvent(kind, outcomeSkipped)
			log.Warn("skipping stripe event", "err", err)
			s.mark(ctx, event.ID)
			return nil
		}
		s.metrics.IncWebhookEvent(kind, outcomeFailed)
		log.Error("failed to apply stripe event", "err", err)
		return err
	}

	outcome := outcomeApplied
	if parsed.Kind() == KindIgnored {
		outcome = outcomeIgnored
		log.Info("ignoring stripe event type")
	}
	s.metrics.IncWebhookEvent(kind, outcome)
	s.mark(ctx, event.ID)
	return nil
}

func (s serviceImpl) mark(ctx context.Context, eventID string) {
	if err := s.marker.Mark(ctx, eventID); err != nil {
		s.log.Warn("failed to mark stripe event processed", "event_id", eventID, "err", err)
	}
}

// apply routes a parsed event to the one ledger write for its kind. Both
// ingestion paths go through here.
func (s serviceImpl) apply(ctx context.Context, e Event) error {
	switch ev := e.(type) {
	case CheckoutCompleted:
		return s.applyCheckoutCompleted(ctx, ev)
	case InvoicePaid:
		return s.applyInvoicePaid(ctx, ev)
	case SubscriptionChanged:
		return s.applySubscriptionChanged(ctx, ev)
	case PaymentSucceeded:
		return s.applyPaymentSucceeded(ctx, ev)
	case PaymentFailed:
		return s.applyPaymentFailed(ctx, ev)
	case IgnoredEvent:
		return nil
	}
	return fmt.Errorf("%w: unhandled event %T", ErrBadEvent, e)
}

func (s serviceImpl) applyCheckoutCompleted(ctx context.Context, e CheckoutCompleted) error {
	switch e.Meta.Intent {
	case IntentSubscription:
		paid := stripedb.PaidSubscription{
			SubscriberID:         e.Meta.BuyerID,
			CreatorID:            e.Meta.CreatorID,
			StripeSubscriptionID: e.SubscriptionRef,
			StripePriceID:        e.Meta.PriceID,
			Status:               e.SubscriptionStatus,
			CurrentPeriodEnd:     e.PeriodEnd,
		}
		return s.recordPaidSubscription(ctx, paid, e.Meta.Cancel)

	case IntentPPV:
		ok, err := s.store.UpsertPendingPurchase(ctx, stripedb.PendingPurchase{
			BuyerID:               e.Meta.BuyerID,
			PostID:                e.Meta.PostID,
			CreatorID:             e.Meta.CreatorID,
			StripePaymentIntentID: e.PaymentRef,
			Currency:              e.Currency,
			Status:                stripedb.PurchaseStatusProcessing,
		})
		if err != nil {
			return fmt.Errorf("%w: %v", ErrDatabase, err)
		}
		s.metrics.IncLedgerMutation("purchase", ok)
		if !ok {
			s.log.Debug("purchase already settled", "buyer_id", e.Meta.BuyerID, "post_id", e.Meta.PostID)
		}

	case IntentTip:
		s.log.Info("tip checkout completed", "session_id", e.SessionID, "buyer_id", e.Meta.BuyerID,
			"creator_id", e.Meta.CreatorID)
	}

	if e.Payment != nil {
		return s.applyPaymentSucceeded(ctx, *e.Payment)
	}
	return nil
}

// recordPaidSubscription writes the paid relation and, only when it was
// accepted, schedules the requested provider-side end.
func (s serviceImpl) recordPaidSubscription(ctx context.Context, paid stripedb.PaidSubscription, cancel CancellationPolicy) error {
	ok, err := s.store.UpsertPaidSubscription(ctx, paid)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDatabase, err)
	}
	s.metrics.IncLedgerMutation("subscription", ok)
	if !ok {
		s.log.Warn("pair already holds a live paid subscription, recording duplicate",
			"subscriber_id", paid.SubscriberID, "creator_id", paid.CreatorID,
			"stripe_subscription_id", paid.StripeSubscriptionID)
		if err := s.store.RecordDuplicateSubscription(ctx, paid); err != nil {
			return fmt.Errorf("%w: %v", ErrDatabase, err)
		}
		return nil
	}
	s.scheduleCancellation(ctx, paid.StripeSubscriptionID, cancel)
	return nil
}

// scheduleCancellation is best-effort: failures are logged and counted, never
// returned.
func (s serviceImpl) scheduleCancellation(ctx context.Context, subscriptionID string, p CancellationPolicy) {
	if p.IsZero() {
		return
	}
	log := s.log.With("stripe_subscription_id", subscriptionID)
	if !p.At.IsZero() && !p.At.After(s.now()) {
		log.Warn("requested cancel_at already passed, not scheduling", "cancel_at", p.At)
		s.metrics.IncSideEffectFailure("schedule_cancellation")
		return
	}
	if _, err := s.gw.ScheduleCancellation(ctx, subscriptionID, p.At); err != nil {
		log.Warn("failed to schedule subscription cancellation", "err", err)
		s.metrics.IncSideEffectFailure("schedule_cancellation")
		return
	}
	log.Info("scheduled subscription cancellation", "at_period_end", p.At.IsZero(), "cancel_at", p.At)
}

func (s serviceImpl) applyInvoicePaid(ctx context.Context, e InvoicePaid) error {
	ok, err := s.store.MarkInvoicePaid(ctx, e.SubscriptionRef, e.PeriodEnd)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDatabase, err)
	}
	s.metrics.IncLedgerMutation("subscription", ok)
	if ok || !e.Meta.HasPair() {
		if !ok {
			s.log.Info("invoice paid for unknown subscription", "stripe_subscription_id", e.SubscriptionRef)
		}
		return nil
	}
	// The invoice beat the checkout event: create the row from the
	// subscription metadata instead of waiting for it.
	return s.recordPaidSubscription(ctx, stripedb.PaidSubscription{
		SubscriberID:         e.Meta.BuyerID,
		CreatorID:            e.Meta.CreatorID,
		StripeSubscriptionID: e.SubscriptionRef,
		StripePriceID:        e.Meta.PriceID,
		Status:               stripedb.SubscriptionStatusActive,
		CurrentPeriodEnd:     e.PeriodEnd,
	}, e.Meta.Cancel)
}

func (s serviceImpl) applySubscriptionChanged(ctx context.Context, e SubscriptionChanged) error {
	ok, err := s.store.MirrorSubscription(ctx, stripedb.SubscriptionMirror{
		SubscriberID:         e.Meta.BuyerID,
		CreatorID:            e.Meta.CreatorID,
		StripeSubscriptionID: e.SubscriptionRef,
		Status:               e.Status,
		CurrentPeriodEnd:     e.PeriodEnd,
		CancelAtPeriodEnd:    e.CancelAtPeriodEnd,
		CancelAt:             e.CancelAt,
		EventAt:              e.EventAt,
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDatabase, err)
	}
	s.metrics.IncLedgerMutation("subscription", ok)
	if !ok {
		s.log.Info("subscription update did not match a ledger row",
			"stripe_subscription_id", e.SubscriptionRef, "status", e.Status)
	}
	return nil
}

func (s serviceImpl) applyPaymentSucceeded(ctx context.Context, e PaymentSucceeded) error {
	if e.Meta.Intent == IntentTip {
		split := ComputeFee(e.Amount, s.settings.FeePercent)
		s.log.Info("tip settled", "payment_intent_id", e.PaymentRef, "creator_id", e.Meta.CreatorID,
			"amount", e.Amount, "currency", e.Currency, "platform_fee", split.PlatformFee)
		return nil
	}
	if e.Meta.Intent != "" && e.Meta.Intent != IntentPPV {
		return nil
	}

	split := ComputeFee(e.Amount, s.settings.FeePercent)
	st := stripedb.Settlement{
		BuyerID:               e.Meta.BuyerID,
		PostID:                e.Meta.PostID,
		CreatorID:             e.Meta.CreatorID,
		StripePaymentIntentID: e.PaymentRef,
		Amount:                e.Amount,
		Currency:              e.Currency,
		PlatformFee:           split.PlatformFee,
		CreatorNet:            split.CreatorNet,
	}

	var (
		ok  bool
		err error
	)
	if e.Meta.Intent == IntentPPV && e.Meta.HasPair() && e.Meta.PostID != "" {
		ok, err = s.store.SettlePurchase(ctx, st)
	} else {
		ok, err = s.store.SettlePurchaseByPaymentRef(ctx, st)
	}
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDatabase, err)
	}
	s.metrics.IncLedgerMutation("purchase", ok)
	if !ok {
		s.log.Info("payment did not settle a purchase", "payment_intent_id", e.PaymentRef)
	}
	return nil
}

func (s serviceImpl) applyPaymentFailed(ctx context.Context, e PaymentFailed) error {
	ok, err := s.store.MarkPurchaseFailed(ctx, e.PaymentRef, e.Status)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDatabase, err)
	}
	s.metrics.IncLedgerMutation("purchase", ok)
	return nil
}
