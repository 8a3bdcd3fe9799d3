package app

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	stripedb "github.com/tbeaudouin05/fanvault/api/services/stripe/db"
)

func (h *harness) paidSub(status stripedb.SubscriptionStatus) {
	end := testNow.Add(30 * 24 * time.Hour)
	h.store.subs[pairKey{testFan, testCreator}] = &stripedb.Subscription{SubscriberID: testFan, CreatorID: testCreator,
		StripeSubscriptionID: strp("sub_1"), Status: status, CurrentPeriodEnd: &end}
}

func (h *harness) purchased(status stripedb.PurchaseStatus) {
	h.store.purchases[pairKey{testFan, testPost}] = &stripedb.Purchase{BuyerID: testFan, PostID: testPost,
		CreatorID: testCreator, StripePaymentIntentID: strp("pi_1"), Status: status, Amount: 500, Currency: "usd"}
}

func Test_CheckAccess_Scenarios(t *testing.T) {
	tests := []struct {
		name   string
		viewer string
		post   string
		setup  func(h *harness)
		want   AccessDecision
	}{
		{name: "public post", viewer: "", post: "post-public",
			want: AccessDecision{Access: true, Reason: AccessReasonPublic}},
		{name: "anonymous on exclusive", viewer: "", post: testPost,
			want: AccessDecision{Reason: AccessReasonNoAuth}},
		{name: "owner", viewer: testCreator, post: testPost,
			want: AccessDecision{Access: true, Reason: AccessReasonOwner}},
		{name: "active paid subscription", viewer: testFan, post: testPost,
			setup: func(h *harness) { h.paidSub(stripedb.SubscriptionStatusActive) },
			want:  AccessDecision{Access: true, Reason: AccessReasonSubscription}},
		{name: "past due still entitles", viewer: testFan, post: testPost,
			setup: func(h *harness) { h.paidSub(stripedb.SubscriptionStatusPastDue) },
			want:  AccessDecision{Access: true, Reason: AccessReasonSubscription}},
		{name: "canceled subscription locked", viewer: testFan, post: testPost,
			setup: func(h *harness) { h.paidSub(stripedb.SubscriptionStatusCanceled) },
			want:  AccessDecision{Reason: AccessReasonLocked}},
		{name: "incomplete subscription locked", viewer: testFan, post: testPost,
			setup: func(h *harness) { h.paidSub(stripedb.SubscriptionStatusIncomplete) },
			want:  AccessDecision{Reason: AccessReasonLocked}},
		{name: "free follow does not unlock", viewer: testFan, post: testPost,
			setup: func(h *harness) {
				h.store.subs[pairKey{testFan, testCreator}] = &stripedb.Subscription{SubscriberID: testFan,
					CreatorID: testCreator, Status: stripedb.SubscriptionStatusActive}
			},
			want: AccessDecision{Reason: AccessReasonLocked}},
		{name: "succeeded purchase", viewer: testFan, post: testPost,
			setup: func(h *harness) { h.purchased(stripedb.PurchaseStatusSucceeded) },
			want:  AccessDecision{Access: true, Reason: AccessReasonPPV}},
		{name: "processing purchase locked", viewer: testFan, post: testPost,
			setup: func(h *harness) { h.purchased(stripedb.PurchaseStatusProcessing) },
			want:  AccessDecision{Reason: AccessReasonLocked}},
		{name: "nothing held", viewer: testFan, post: testPost,
			want: AccessDecision{Reason: AccessReasonLocked}},
		{name: "missing post", viewer: testFan, post: "post-missing",
			want: AccessDecision{Reason: AccessReasonNotFound}},
		{name: "empty post id", viewer: testFan, post: "",
			want: AccessDecision{Reason: AccessReasonInvalid}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			h.store.posts["post-public"] = stripedb.Post{ID: "post-public", CreatorID: testCreator}
			if tt.setup != nil {
				tt.setup(h)
			}
			assert.Equal(t, tt.want, h.svc.CheckAccess(context.Background(), tt.viewer, tt.post))
		})
	}
}

func Test_CheckAccess_StorageErrorDenies(t *testing.T) {
	h := newHarness(t)
	h.store.err = errors.New("connection refused")

	got := h.svc.CheckAccess(context.Background(), testFan, testPost)
	assert.Equal(t, AccessDecision{Reason: AccessReasonError}, got)

	expected := `
# HELP fanvault_stripe_access_decisions_total Access resolutions, by reason.
# TYPE fanvault_stripe_access_decisions_total counter
fanvault_stripe_access_decisions_total{reason="error"} 1
`
	require.NoError(t, testutil.GatherAndCompare(h.reg, strings.NewReader(expected), "fanvault_stripe_access_decisions_total"))
}

func Test_ResolveAccess_AfterWebhookSettlement(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	assert.False(t, h.svc.CheckAccess(ctx, testFan, testPost).Access)

	require.NoError(t, deliver(t, h.svc, "evt_pi", "payment_intent.succeeded",
		paymentIntentObject("pi_1", 500, ppvMeta())))

	got := h.svc.CheckAccess(ctx, testFan, testPost)
	assert.Equal(t, AccessDecision{Access: true, Reason: AccessReasonPPV}, got)
	// another fan is unaffected
	assert.Equal(t, AccessReasonLocked, h.svc.CheckAccess(ctx, "fan-2", testPost).Reason)
}
