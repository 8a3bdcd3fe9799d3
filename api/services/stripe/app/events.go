package app

import (
	"encoding/json"
	"fmt"
	"time"

	stripe "github.com/stripe/stripe-go/v76"
	stripedb "github.com/tbeaudouin05/fanvault/api/services/stripe/db"
)

// EventKind names the closed set of provider events the ledger reacts to.
type EventKind string

const (
	KindCheckoutCompleted   EventKind = "checkout_completed"
	KindInvoicePaid         EventKind = "invoice_paid"
	KindSubscriptionChanged EventKind = "subscription_changed"
	KindPaymentSucceeded    EventKind = "payment_succeeded"
	KindPaymentFailed       EventKind = "payment_failed"
	KindIgnored             EventKind = "ignored"
)

// Event is one of the types below. The set is closed: only this package
// implements it.
type Event interface {
	Kind() EventKind
	isEvent()
}

// CheckoutCompleted is a hosted checkout that reached the complete state.
type CheckoutCompleted struct {
	SessionID string
	Meta      CheckoutMetadata
	Currency  string

	// subscription intent
	SubscriptionRef    string
	SubscriptionStatus stripedb.SubscriptionStatus
	PeriodEnd          *time.Time

	// ppv and tip intents
	PaymentRef string
	// Payment is set when the session carried an expanded, captured payment.
	Payment *PaymentSucceeded
}

// InvoicePaid is a paid invoice of a provider subscription.
type InvoicePaid struct {
	InvoiceID       string
	SubscriptionRef string
	PeriodEnd       *time.Time
	Meta            CheckoutMetadata
}

// SubscriptionChanged carries the provider's current view of a subscription.
type SubscriptionChanged struct {
	SubscriptionRef   string
	Status            stripedb.SubscriptionStatus
	PeriodEnd         *time.Time
	CancelAtPeriodEnd bool
	CancelAt          *time.Time
	Deleted           bool
	Meta              CheckoutMetadata
	// EventAt is the provider event's creation time, used to drop stale deliveries.
	EventAt *time.Time
}

// PaymentSucceeded is a captured payment with provider-reported amounts.
type PaymentSucceeded struct {
	PaymentRef string
	Amount     int64
	Currency   string
	Meta       CheckoutMetadata
}

// PaymentFailed is a payment that failed or was canceled.
type PaymentFailed struct {
	PaymentRef string
	Status     stripedb.PurchaseStatus
}

// IgnoredEvent is any provider event type the ledger does not react to.
type IgnoredEvent struct {
	Type string
}

func (CheckoutCompleted) Kind() EventKind   { return KindCheckoutCompleted }
func (InvoicePaid) Kind() EventKind         { return KindInvoicePaid }
func (SubscriptionChanged) Kind() EventKind { return KindSubscriptionChanged }
func (PaymentSucceeded) Kind() EventKind    { return KindPaymentSucceeded }
func (PaymentFailed) Kind() EventKind       { return KindPaymentFailed }
func (IgnoredEvent) Kind() EventKind        { return KindIgnored }

func (CheckoutCompleted) isEvent()   {}
func (InvoicePaid) isEvent()         {}
func (SubscriptionChanged) isEvent() {}
func (PaymentSucceeded) isEvent()    {}
func (PaymentFailed) isEvent()       {}
func (IgnoredEvent) isEvent()        {}

// ParseEvent extracts the fields the ledger needs from a verified provider
// event. Missing correlation data yields ErrBadEvent; unknown types yield an
// IgnoredEvent.
func ParseEvent(event stripe.Event) (Event, error) {
	if event.Data == nil || len(event.Data.Raw) == 0 {
		return nil, fmt.Errorf("%w: event %s has no data", ErrBadEvent, event.ID)
	}
	raw := event.Data.Raw

	switch event.Type {
	case stripe.EventTypeCheckoutSessionCompleted, stripe.EventTypeCheckoutSessionAsyncPaymentSucceeded:
		var sess stripe.CheckoutSession
		if err := json.Unmarshal(raw, &sess); err != nil {
			return nil, fmt.Errorf("%w: error unmarshaling into CheckoutSession: %v", ErrBadEvent, err)
		}
		return CheckoutCompletedFromSession(sess)

	case stripe.EventTypeCheckoutSessionAsyncPaymentFailed:
		var sess stripe.CheckoutSession
		if err := json.Unmarshal(raw, &sess); err != nil {
			return nil, fmt.Errorf("%w: error unmarshaling into CheckoutSession: %v", ErrBadEvent, err)
		}
		if sess.PaymentIntent == nil || sess.PaymentIntent.ID == "" {
			return IgnoredEvent{Type: string(event.Type)}, nil
		}
		return PaymentFailed{PaymentRef: sess.PaymentIntent.ID, Status: stripedb.PurchaseStatusRequiresPaymentMethod}, nil

	case stripe.EventTypeInvoicePaid, stripe.EventTypeInvoicePaymentSucceeded:
		var inv stripe.Invoice
		if err := json.Unmarshal(raw, &inv); err != nil {
			return nil, fmt.Errorf("%w: error unmarshaling into Invoice: %v", ErrBadEvent, err)
		}
		if inv.Subscription == nil || inv.Subscription.ID == "" {
			return IgnoredEvent{Type: string(event.Type)}, nil
		}
		return invoicePaidFromInvoice(inv), nil

	case stripe.EventTypeCustomerSubscriptionCreated, stripe.EventTypeCustomerSubscriptionUpdated,
		stripe.EventTypeCustomerSubscriptionDeleted:
		var sub stripe.Subscription
		if err := json.Unmarshal(raw, &sub); err != nil {
			return nil, fmt.Errorf("%w: error unmarshaling into Subscription: %v", ErrBadEvent, err)
		}
		changed, err := SubscriptionChangedFromSubscription(sub, event.Type == stripe.EventTypeCustomerSubscriptionDeleted)
		if err != nil {
			return nil, err
		}
		changed.EventAt = unixTime(event.Created)
		return changed, nil

	case stripe.EventTypePaymentIntentSucceeded:
		var pi stripe.PaymentIntent
		if err := json.Unmarshal(raw, &pi); err != nil {
			return nil, fmt.Errorf("%w: error unmarshaling into PaymentIntent: %v", ErrBadEvent, err)
		}
		return PaymentSucceededFromIntent(pi)

	case stripe.EventTypePaymentIntentPaymentFailed, stripe.EventTypePaymentIntentCanceled:
		var pi stripe.PaymentIntent
		if err := json.Unmarshal(raw, &pi); err != nil {
			return nil, fmt.Errorf("%w: error unmarshaling into PaymentIntent: %v", ErrBadEvent, err)
		}
		if pi.ID == "" {
			return nil, fmt.Errorf("%w: payment intent id missing", ErrBadEvent)
		}
		status := stripedb.PurchaseStatusRequiresPaymentMethod
		if event.Type == stripe.EventTypePaymentIntentCanceled {
			status = stripedb.PurchaseStatusCanceled
		}
		return PaymentFailed{PaymentRef: pi.ID, Status: status}, nil
	}
	return IgnoredEvent{Type: string(event.Type)}, nil
}

// CheckoutCompletedFromSession is shared by the webhook and confirm paths so
// both feed the same ledger writes.
func CheckoutCompletedFromSession(sess stripe.CheckoutSession) (CheckoutCompleted, error) {
	meta, err := ParseCheckoutMetadata(sess.Metadata)
	if err != nil {
		return CheckoutCompleted{}, err
	}
	if err := meta.Validate(); err != nil {
		return CheckoutCompleted{}, err
	}
	out := CheckoutCompleted{SessionID: sess.ID, Meta: meta, Currency: string(sess.Currency)}

	switch meta.Intent {
	case IntentSubscription:
		if sess.Subscription == nil || sess.Subscription.ID == "" {
			return CheckoutCompleted{}, fmt.Errorf("%w: subscription ID not found in CheckoutSession", ErrBadEvent)
		}
		out.SubscriptionRef = sess.Subscription.ID
		out.SubscriptionStatus = stripedb.SubscriptionStatusActive
		if sess.PaymentStatus == stripe.CheckoutSessionPaymentStatusUnpaid {
			// delayed payment methods settle later through invoice.paid
			out.SubscriptionStatus = stripedb.SubscriptionStatusIncomplete
		}
		out.PeriodEnd = unixTime(sess.Subscription.CurrentPeriodEnd)

	case IntentPPV, IntentTip:
		if sess.PaymentIntent == nil || sess.PaymentIntent.ID == "" {
			break
		}
		out.PaymentRef = sess.PaymentIntent.ID
		if sess.PaymentIntent.Status == stripe.PaymentIntentStatusSucceeded {
			p, err := PaymentSucceededFromIntent(*sess.PaymentIntent)
			if err != nil {
				return CheckoutCompleted{}, err
			}
			if p.Meta.Intent == "" {
				p.Meta = meta
			}
			out.Payment = &p
		}
	}
	return out, nil
}

// PaymentSucceededFromIntent prefers the received amount: the provider is the
// source of truth for what settled.
func PaymentSucceededFromIntent(pi stripe.PaymentIntent) (PaymentSucceeded, error) {
	if pi.ID == "" {
		return PaymentSucceeded{}, fmt.Errorf("%w: payment intent id missing", ErrBadEvent)
	}
	meta, err := ParseCheckoutMetadata(pi.Metadata)
	if err != nil {
		return PaymentSucceeded{}, err
	}
	amount := pi.AmountReceived
	if amount <= 0 {
		amount = pi.Amount
	}
	return PaymentSucceeded{PaymentRef: pi.ID, Amount: amount, Currency: string(pi.Currency), Meta: meta}, nil
}

// SubscriptionChangedFromSubscription mirrors the provider object. Statuses the
// ledger does not model are rejected as bad events.
func SubscriptionChangedFromSubscription(sub stripe.Subscription, deleted bool) (SubscriptionChanged, error) {
	if sub.ID == "" {
		return SubscriptionChanged{}, fmt.Errorf("%w: subscription id missing", ErrBadEvent)
	}
	status := stripedb.SubscriptionStatus(sub.Status)
	if deleted {
		status = stripedb.SubscriptionStatusCanceled
	}
	if !status.Valid() {
		return SubscriptionChanged{}, fmt.Errorf("%w: unsupported subscription status %q", ErrBadEvent, sub.Status)
	}
	return SubscriptionChanged{
		SubscriptionRef:   sub.ID,
		Status:            status,
		PeriodEnd:         unixTime(sub.CurrentPeriodEnd),
		CancelAtPeriodEnd: sub.CancelAtPeriodEnd,
		CancelAt:          unixTime(sub.CancelAt),
		Deleted:           deleted,
		Meta:              lenientMetadata(sub.Metadata),
	}, nil
}

func invoicePaidFromInvoice(inv stripe.Invoice) InvoicePaid {
	out := InvoicePaid{InvoiceID: inv.ID, SubscriptionRef: inv.Subscription.ID}
	var end int64
	if inv.Lines != nil {
		for _, line := range inv.Lines.Data {
			if line != nil && line.Period != nil && line.Period.End > end {
				end = line.Period.End
			}
		}
	}
	out.PeriodEnd = unixTime(end)
	if inv.SubscriptionDetails != nil {
		out.Meta = lenientMetadata(inv.SubscriptionDetails.Metadata)
	}
	return out
}
