package app

import (
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	stripe "github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/webhook"
	"github.com/tbeaudouin05/fanvault/api/metrics"
	stripedb "github.com/tbeaudouin05/fanvault/api/services/stripe/db"
	gw "github.com/tbeaudouin05/fanvault/api/services/stripe/gateway"
)

const (
	testSecret  = "whsec_test_secret"
	testFan     = "fan-1"
	testCreator = "creator-1"
	testPost    = "post-1"
)

var testNow = time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)

type harness struct {
	svc   Service
	store *fakeStore
	gw    *fakeGateway
	reg   *prometheus.Registry
}

func testSettings() Settings {
	return Settings{
		FeePercent:     20,
		Currency:       "usd",
		PublicBaseURL:  "https://fans.example.com",
		WebhookSecret:  testSecret,
		WebhookTimeout: 5 * time.Second,
	}
}

func quietLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

// newHarness seeds a fan, a creator with a monthly plan and an exclusive
// PPV post.
func newHarness(t *testing.T, opts ...Option) *harness {
	t.Helper()
	h := &harness{store: newFakeStore(), gw: newFakeGateway(), reg: prometheus.NewRegistry()}
	h.store.users[testFan] = stripedb.User{ID: testFan, Email: "fan@example.com", Username: "fan"}
	h.store.users[testCreator] = stripedb.User{ID: testCreator, Email: "creator@example.com", Username: "creator"}
	price := int64(500)
	h.store.posts[testPost] = stripedb.Post{ID: testPost, CreatorID: testCreator, Title: "Studio session",
		Exclusive: true, PPVPrice: &price, Currency: "usd"}
	h.store.plans[pairKey{testCreator, "monthly"}] = stripedb.Plan{CreatorID: testCreator, Key: "monthly",
		IntervalUnit: "month", IntervalCount: 1, Amount: 999, Currency: "usd", StripePriceID: "price_monthly"}

	base := []Option{
		WithLogger(quietLogger()),
		WithMetrics(metrics.MustNewMetrics(h.reg)),
		WithClock(func() time.Time { return testNow }),
	}
	h.svc = NewService(h.store, h.gw, testSettings(), append(base, opts...)...)
	return h
}

// newServiceWith builds a service over an arbitrary gateway, for gomock tests.
func newServiceWith(store *fakeStore, g gw.StripeGateway, reg *prometheus.Registry) Service {
	return NewService(store, g, testSettings(),
		WithLogger(quietLogger()),
		WithMetrics(metrics.MustNewMetrics(reg)),
		WithClock(func() time.Time { return testNow }))
}

// connectReady gives the creator an account that can receive charges.
func (h *harness) connectReady() {
	u := h.store.users[testCreator]
	acct := "acct_" + testCreator
	u.StripeAccountID = &acct
	h.store.users[testCreator] = u
	h.gw.accounts[acct] = stripe.Account{ID: acct, ChargesEnabled: true}
}

// signedEvent builds a provider event around obj and signs it like the
// provider would.
func signedEvent(t *testing.T, id string, typ stripe.EventType, obj map[string]any) ([]byte, string) {
	t.Helper()
	return signedEventAt(t, id, typ, obj, testNow)
}

func signedEventAt(t *testing.T, id string, typ stripe.EventType, obj map[string]any, created time.Time) ([]byte, string) {
	t.Helper()
	payload, err := json.Marshal(map[string]any{
		"id":          id,
		"object":      "event",
		"type":        string(typ),
		"api_version": stripe.APIVersion,
		"created":     created.Unix(),
		"data":        map[string]any{"object": obj},
	})
	require.NoError(t, err)
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{Payload: payload, Secret: testSecret})
	return payload, signed.Header
}

func subscriptionCheckoutObject(ref string, meta map[string]string) map[string]any {
	return map[string]any{
		"id":             "cs_sub_1",
		"object":         "checkout.session",
		"mode":           "subscription",
		"status":         "complete",
		"payment_status": "paid",
		"currency":       "usd",
		"subscription":   ref,
		"metadata":       meta,
	}
}

func ppvCheckoutObject(pi string, meta map[string]string) map[string]any {
	return map[string]any{
		"id":             "cs_ppv_1",
		"object":         "checkout.session",
		"mode":           "payment",
		"status":         "complete",
		"payment_status": "paid",
		"currency":       "usd",
		"payment_intent": pi,
		"metadata":       meta,
	}
}

func paymentIntentObject(pi string, amount int64, meta map[string]string) map[string]any {
	return map[string]any{
		"id":              pi,
		"object":          "payment_intent",
		"amount":          amount,
		"amount_received": amount,
		"currency":        "usd",
		"status":          "succeeded",
		"metadata":        meta,
	}
}

func subscriptionMeta() map[string]string {
	return CheckoutMetadata{Intent: IntentSubscription, CreatorID: testCreator, BuyerID: testFan,
		PlanKey: "monthly", PriceID: "price_monthly"}.Map()
}

func ppvMeta() map[string]string {
	return CheckoutMetadata{Intent: IntentPPV, CreatorID: testCreator, BuyerID: testFan, PostID: testPost}.Map()
}
