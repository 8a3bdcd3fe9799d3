package db

import "time"

// SubscriptionStatus mirrors the provider's subscription lifecycle.
type SubscriptionStatus string

const (
	SubscriptionStatusActive            SubscriptionStatus = "active"
	SubscriptionStatusTrialing          SubscriptionStatus = "trialing"
	SubscriptionStatusIncomplete        SubscriptionStatus = "incomplete"
	SubscriptionStatusIncompleteExpired SubscriptionStatus = "incomplete_expired"
	SubscriptionStatusPastDue           SubscriptionStatus = "past_due"
	SubscriptionStatusCanceled          SubscriptionStatus = "canceled"
	SubscriptionStatusUnpaid            SubscriptionStatus = "unpaid"
)

// Valid reports whether s is one of the statuses the ledger stores.
func (s SubscriptionStatus) Valid() bool {
	switch s {
	case SubscriptionStatusActive, SubscriptionStatusTrialing, SubscriptionStatusIncomplete,
		SubscriptionStatusIncompleteExpired, SubscriptionStatusPastDue, SubscriptionStatusCanceled,
		SubscriptionStatusUnpaid:
		return true
	}
	return false
}

// Terminal statuses never change again for the same provider subscription.
func (s SubscriptionStatus) Terminal() bool {
	return s == SubscriptionStatusCanceled || s == SubscriptionStatusIncompleteExpired
}

// Entitling statuses unlock exclusive content when the row is provider-managed.
func (s SubscriptionStatus) Entitling() bool {
	return s == SubscriptionStatusActive || s == SubscriptionStatusTrialing || s == SubscriptionStatusPastDue
}

// PurchaseStatus is the settlement state of a single PPV purchase.
type PurchaseStatus string

const (
	PurchaseStatusSucceeded             PurchaseStatus = "succeeded"
	PurchaseStatusProcessing            PurchaseStatus = "processing"
	PurchaseStatusRequiresPaymentMethod PurchaseStatus = "requires_payment_method"
	PurchaseStatusCanceled              PurchaseStatus = "canceled"
)

// Subscription is a fan's free or paid relationship to a creator, keyed by
// (SubscriberID, CreatorID). A nil StripeSubscriptionID is the free tier.
type Subscription struct {
	ID                   string
	SubscriberID         string
	CreatorID            string
	Status               SubscriptionStatus
	StripeSubscriptionID *string
	StripePriceID        *string
	CurrentPeriodEnd     *time.Time
	CancelAtPeriodEnd    bool
	CancelAt             *time.Time
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// Paid reports whether the relationship is managed by the provider.
func (s Subscription) Paid() bool {
	return s.StripeSubscriptionID != nil && *s.StripeSubscriptionID != ""
}

// Live reports whether a paid subscription still holds the pair. An incomplete
// one never got its first payment and may be replaced by a new checkout.
func (s Subscription) Live() bool {
	return s.Paid() && !s.Status.Terminal() && s.Status != SubscriptionStatusIncomplete
}

// Purchase is a PPV grant keyed by (BuyerID, PostID). Amount, currency and the
// fee split are only final once Status is succeeded.
type Purchase struct {
	ID                    string
	BuyerID               string
	PostID                string
	CreatorID             string
	Amount                int64
	Currency              string
	StripePaymentIntentID *string
	Status                PurchaseStatus
	PlatformFee           int64
	CreatorNet            int64
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

// Plan is a recurring price a creator offers.
type Plan struct {
	CreatorID            string
	Key                  string
	IntervalUnit         string
	IntervalCount        int64
	Amount               int64
	Currency             string
	StripePriceID        string
	IntroDiscountPercent int64
	StripeCouponID       *string
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// User carries the payment fields of a platform account.
type User struct {
	ID               string
	Email            string
	Username         string
	StripeCustomerID *string
	StripeAccountID  *string
	ChargesEnabled   bool
	ChargesCheckedAt *time.Time
}

// Post is the read model of a content item needed for access and PPV checkout.
type Post struct {
	ID        string
	CreatorID string
	Title     string
	Exclusive bool
	PPVPrice  *int64
	Currency  string
}

// PaidSubscription is the outcome of a completed subscription checkout.
type PaidSubscription struct {
	SubscriberID         string
	CreatorID            string
	StripeSubscriptionID string
	StripePriceID        string
	Status               SubscriptionStatus
	CurrentPeriodEnd     *time.Time
}

// SubscriptionMirror copies the provider's view of a subscription. SubscriberID
// and CreatorID are empty when the provider object carried no correlation metadata.
type SubscriptionMirror struct {
	SubscriberID         string
	CreatorID            string
	StripeSubscriptionID string
	Status               SubscriptionStatus
	CurrentPeriodEnd     *time.Time
	CancelAtPeriodEnd    bool
	CancelAt             *time.Time
	// EventAt is when the provider emitted the event; nil skips the staleness check.
	EventAt *time.Time
}

// PendingPurchase records a PPV checkout that completed but has not settled.
type PendingPurchase struct {
	BuyerID               string
	PostID                string
	CreatorID             string
	StripePaymentIntentID string
	Currency              string
	Status                PurchaseStatus
}

// Settlement finalizes a PPV purchase with provider-reported amounts.
type Settlement struct {
	BuyerID               string
	PostID                string
	CreatorID             string
	StripePaymentIntentID string
	Amount                int64
	Currency              string
	PlatformFee           int64
	CreatorNet            int64
}
