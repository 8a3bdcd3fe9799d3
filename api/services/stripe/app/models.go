package app

import (
	"time"

	stripedb "github.com/tbeaudouin05/fanvault/api/services/stripe/db"
)

// AccessReason explains an access decision for diagnostics.
type AccessReason string

const (
	AccessReasonPublic       AccessReason = "public"
	AccessReasonOwner        AccessReason = "owner"
	AccessReasonSubscription AccessReason = "subscription"
	AccessReasonPPV          AccessReason = "ppv"
	AccessReasonLocked       AccessReason = "locked"
	AccessReasonNoAuth       AccessReason = "no-auth"
	AccessReasonInvalid      AccessReason = "invalid"
	AccessReasonNotFound     AccessReason = "not-found"
	AccessReasonError        AccessReason = "error"
)

// AccessDecision is the answer to "may this viewer see this post".
// A deny is a normal result, not an error.
type AccessDecision struct {
	Access bool         `json:"access"`
	Reason AccessReason `json:"reason"`
}

// Business constants
const (
	MinPlanAmount = 50
	MinTipAmount  = 100
	MaxTipAmount  = 100000
)

// SubscriptionCheckoutRequest starts a recurring subscription to a creator.
// Exactly one of PriceID and PlanKey identifies the plan.
type SubscriptionCheckoutRequest struct {
	ViewerID          string
	CreatorID         string
	PriceID           string
	PlanKey           string
	CouponID          string
	CancelAtPeriodEnd bool
	CancelAt          time.Time
}

// PPVCheckoutRequest buys a single post.
type PPVCheckoutRequest struct {
	ViewerID string
	PostID   string
}

// TipCheckoutRequest sends a one-off amount to a creator, optionally about a post.
type TipCheckoutRequest struct {
	ViewerID  string
	CreatorID string
	PostID    string
	Amount    int64
}

// CheckoutResult carries the hosted checkout redirect.
type CheckoutResult struct {
	SessionID string `json:"sessionId"`
	URL       string `json:"url"`
	// FeeSplit is false when the creator could not receive charges and the
	// payment is collected by the platform alone.
	FeeSplit bool `json:"feeSplit"`
}

// ConfirmResult is the acknowledgement returned to the browser after redirect.
// It never carries payment details.
type ConfirmResult struct {
	Verified bool           `json:"verified"`
	Intent   CheckoutIntent `json:"intent,omitempty"`
	Status   string         `json:"status"`
}

// PlanInput defines or redefines one of a creator's plans.
type PlanInput struct {
	CreatorID            string
	Key                  string
	Amount               int64
	Currency             string
	IntroDiscountPercent int64
}

// ConnectStatus is the cached payout readiness of a creator.
type ConnectStatus struct {
	AccountID      string     `json:"accountId"`
	ChargesEnabled bool       `json:"chargesEnabled"`
	CheckedAt      *time.Time `json:"checkedAt,omitempty"`
}

func connectStatusFromUser(u stripedb.User) ConnectStatus {
	st := ConnectStatus{ChargesEnabled: u.ChargesEnabled, CheckedAt: u.ChargesCheckedAt}
	if u.StripeAccountID != nil {
		st.AccountID = *u.StripeAccountID
	}
	return st
}
