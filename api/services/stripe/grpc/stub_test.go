package grpcserver

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
	"github.com/tbeaudouin05/fanvault/api/auth"
	"github.com/tbeaudouin05/fanvault/api/services/stripe/app"
	stripedb "github.com/tbeaudouin05/fanvault/api/services/stripe/db"
)

const testJWTSecret = "test-session-secret"

func quietLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func token(t *testing.T, userID string) string {
	t.Helper()
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": userID,
		"exp":     time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte(testJWTSecret))
	require.NoError(t, err)
	return signed
}

// stubService records what the transport passed in. Methods a test does not
// exercise panic through the nil embedded interface.
type stubService struct {
	app.Service

	payload   []byte
	signature string
	webhook   error

	viewer     string
	sessionID  string
	confirm    app.ConfirmResult
	confirmErr error

	subReq  app.SubscriptionCheckoutRequest
	tipReq  app.TipCheckoutRequest
	postID  string
	plan    app.PlanInput
	creator string
	atEnd   bool
	err     error
}

func (s *stubService) HandleWebhook(_ context.Context, payload []byte, signature string) error {
	s.payload, s.signature = payload, signature
	return s.webhook
}

func (s *stubService) ConfirmCheckout(_ context.Context, viewerID, sessionID string) (app.ConfirmResult, error) {
	s.viewer, s.sessionID = viewerID, sessionID
	return s.confirm, s.confirmErr
}

func (s *stubService) CreateSubscriptionCheckout(_ context.Context, req app.SubscriptionCheckoutRequest) (app.CheckoutResult, error) {
	s.subReq = req
	if s.err != nil {
		return app.CheckoutResult{}, s.err
	}
	return app.CheckoutResult{SessionID: "cs_1", URL: "https://checkout.stripe.com/c/pay/cs_1", FeeSplit: true}, nil
}

func (s *stubService) CreateTipCheckout(_ context.Context, req app.TipCheckoutRequest) (app.CheckoutResult, error) {
	s.tipReq = req
	return app.CheckoutResult{SessionID: "cs_tip", URL: "https://checkout.stripe.com/c/pay/cs_tip"}, s.err
}

func (s *stubService) CheckAccess(_ context.Context, viewerID, postID string) app.AccessDecision {
	s.viewer, s.postID = viewerID, postID
	if viewerID == "" {
		return app.AccessDecision{Reason: app.AccessReasonNoAuth}
	}
	return app.AccessDecision{Access: true, Reason: app.AccessReasonPPV}
}

func (s *stubService) UpsertPlan(_ context.Context, in app.PlanInput) (stripedb.Plan, error) {
	s.plan = in
	return stripedb.Plan{CreatorID: in.CreatorID, Key: in.Key, IntervalUnit: "month", IntervalCount: 1,
		Amount: in.Amount, Currency: "usd", StripePriceID: "price_1"}, s.err
}

func (s *stubService) CancelSubscription(_ context.Context, viewerID, creatorID string, atPeriodEnd bool) (stripedb.Subscription, error) {
	s.viewer, s.creator, s.atEnd = viewerID, creatorID, atPeriodEnd
	ref := "sub_1"
	return stripedb.Subscription{SubscriberID: viewerID, CreatorID: creatorID, Status: stripedb.SubscriptionStatusActive,
		StripeSubscriptionID: &ref, CancelAtPeriodEnd: atPeriodEnd}, s.err
}

func (s *stubService) ListPurchases(_ context.Context, viewerID string) ([]stripedb.Purchase, error) {
	s.viewer = viewerID
	ref := "pi_secret"
	return []stripedb.Purchase{{ID: "p1", BuyerID: viewerID, PostID: "post-1", CreatorID: "creator-1", Amount: 500,
		Currency: "usd", Status: stripedb.PurchaseStatusSucceeded, StripePaymentIntentID: &ref, PlatformFee: 100, CreatorNet: 400}}, s.err
}

func newTestServer(svc app.Service) *Server {
	return New(svc, auth.NewVerifier(testJWTSecret), quietLogger())
}
