package app

import (
	"context"
	"fmt"

	stripe "github.com/stripe/stripe-go/v76"
)

// ConfirmCheckout is the pull side of ingestion. After the buyer is redirected
// back, the session is fetched from the provider and, when complete, applied
// through the same ledger writes as the webhook.
func (s serviceImpl) ConfirmCheckout(ctx context.Context, viewerID, sessionID string) (ConfirmResult, error) {
	if sessionID == "" {
		return ConfirmResult{}, fmt.Errorf("%w: session_id is required", ErrValidation)
	}
	if viewerID == "" {
		return ConfirmResult{}, ErrUnauthenticated
	}

	sess, err := s.gw.GetCheckoutSession(ctx, sessionID)
	if err != nil {
		return ConfirmResult{}, fmt.Errorf("%w: error retrieving checkout session: %v", ErrGateway, err)
	}
	meta, err := ParseCheckoutMetadata(sess.Metadata)
	if err != nil {
		return ConfirmResult{}, err
	}
	if meta.BuyerID != viewerID {
		return ConfirmResult{}, fmt.Errorf("%w: checkout session belongs to another user", ErrForbidden)
	}

	res := ConfirmResult{Intent: meta.Intent, Status: string(sess.Status)}
	if sess.Status != stripe.CheckoutSessionStatusComplete {
		return res, nil
	}

	completed, err := CheckoutCompletedFromSession(sess)
	if err != nil {
		return res, err
	}
	if err := s.apply(ctx, completed); err != nil {
		return res, err
	}
	res.Verified = true
	return res, nil
}
