package app

import (
	"fmt"
	"strconv"
	"time"
)

// CheckoutIntent discriminates what a checkout pays for.
type CheckoutIntent string

const (
	IntentSubscription CheckoutIntent = "subscription"
	IntentPPV          CheckoutIntent = "ppv"
	IntentTip          CheckoutIntent = "tip"
)

// Metadata keys written on checkout sessions and copied onto the payment
// intent or subscription they create.
const (
	metaType              = "type"
	metaCreatorID         = "creator_id"
	metaBuyerID           = "buyer_id"
	metaPostID            = "post_id"
	metaPlanKey           = "plan_key"
	metaPriceID           = "price_id"
	metaCancelAtPeriodEnd = "cancel_at_period_end"
	metaCancelAt          = "cancel_at"
)

// CancellationPolicy is the provider-side end requested at checkout time.
type CancellationPolicy struct {
	AtPeriodEnd bool
	At          time.Time
}

func (p CancellationPolicy) IsZero() bool { return !p.AtPeriodEnd && p.At.IsZero() }

// CheckoutMetadata correlates provider objects back to ledger keys.
type CheckoutMetadata struct {
	Intent    CheckoutIntent
	CreatorID string
	BuyerID   string
	PostID    string
	PlanKey   string
	PriceID   string
	Cancel    CancellationPolicy
}

// Map renders the metadata as provider key/value pairs, omitting empty values.
func (m CheckoutMetadata) Map() map[string]string {
	out := map[string]string{metaType: string(m.Intent)}
	set := func(k, v string) {
		if v != "" {
			out[k] = v
		}
	}
	set(metaCreatorID, m.CreatorID)
	set(metaBuyerID, m.BuyerID)
	set(metaPostID, m.PostID)
	set(metaPlanKey, m.PlanKey)
	set(metaPriceID, m.PriceID)
	if m.Cancel.AtPeriodEnd {
		out[metaCancelAtPeriodEnd] = "true"
	}
	if !m.Cancel.At.IsZero() {
		out[metaCancelAt] = strconv.FormatInt(m.Cancel.At.Unix(), 10)
	}
	return out
}

// HasPair reports whether the ledger natural key can be derived.
func (m CheckoutMetadata) HasPair() bool { return m.BuyerID != "" && m.CreatorID != "" }

// ParseCheckoutMetadata reads metadata back. Absent keys stay empty; present
// but malformed values are an ErrBadEvent.
func ParseCheckoutMetadata(md map[string]string) (CheckoutMetadata, error) {
	m := CheckoutMetadata{
		Intent:    CheckoutIntent(md[metaType]),
		CreatorID: md[metaCreatorID],
		BuyerID:   md[metaBuyerID],
		PostID:    md[metaPostID],
		PlanKey:   md[metaPlanKey],
		PriceID:   md[metaPriceID],
	}
	switch m.Intent {
	case "", IntentSubscription, IntentPPV, IntentTip:
	default:
		return CheckoutMetadata{}, fmt.Errorf("%w: unknown checkout type %q", ErrBadEvent, m.Intent)
	}
	if v := md[metaCancelAtPeriodEnd]; v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return CheckoutMetadata{}, fmt.Errorf("%w: bad %s %q", ErrBadEvent, metaCancelAtPeriodEnd, v)
		}
		m.Cancel.AtPeriodEnd = b
	}
	if v := md[metaCancelAt]; v != "" {
		sec, err := strconv.ParseInt(v, 10, 64)
		if err != nil || sec <= 0 {
			return CheckoutMetadata{}, fmt.Errorf("%w: bad %s %q", ErrBadEvent, metaCancelAt, v)
		}
		m.Cancel.At = time.Unix(sec, 0).UTC()
	}
	return m, nil
}

// Validate checks the fields each intent needs to reach the ledger.
func (m CheckoutMetadata) Validate() error {
	if m.Intent == "" {
		return fmt.Errorf("%w: checkout type missing from metadata", ErrBadEvent)
	}
	if !m.HasPair() {
		return fmt.Errorf("%w: buyer or creator missing from %s metadata", ErrBadEvent, m.Intent)
	}
	if m.Intent == IntentPPV && m.PostID == "" {
		return fmt.Errorf("%w: post missing from ppv metadata", ErrBadEvent)
	}
	return nil
}
