package app

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"time"

	stripe "github.com/stripe/stripe-go/v76"
	stripedb "github.com/tbeaudouin05/fanvault/api/services/stripe/db"
)

type pairKey struct{ a, b string }

// fakeStore is an in-memory ledger applying the same conditional rules as the
// SQL statements in the db package.
type fakeStore struct {
	mu        sync.Mutex
	subs      map[pairKey]*stripedb.Subscription
	dups      map[string]stripedb.PaidSubscription
	purchases map[pairKey]*stripedb.Purchase
	plans     map[pairKey]stripedb.Plan
	users     map[string]stripedb.User
	posts     map[string]stripedb.Post
	// eventAt is the provider_event_at column, keyed by provider subscription.
	eventAt map[string]*time.Time
	// err, when set, is returned by every call.
	err error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		subs:      map[pairKey]*stripedb.Subscription{},
		dups:      map[string]stripedb.PaidSubscription{},
		purchases: map[pairKey]*stripedb.Purchase{},
		plans:     map[pairKey]stripedb.Plan{},
		users:     map[string]stripedb.User{},
		posts:     map[string]stripedb.Post{},
		eventAt:   map[string]*time.Time{},
	}
}

func strp(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func sameRef(a *string, b string) bool { return a != nil && *a == b }

func laterTime(a, b *time.Time) *time.Time {
	switch {
	case a == nil:
		return b
	case b == nil:
		return a
	case b.After(*a):
		return b
	}
	return a
}

func (f *fakeStore) subByRef(ref string) *stripedb.Subscription {
	for _, s := range f.subs {
		if sameRef(s.StripeSubscriptionID, ref) {
			return s
		}
	}
	return nil
}

func (f *fakeStore) UpsertPaidSubscription(_ context.Context, p stripedb.PaidSubscription) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return false, f.err
	}
	k := pairKey{p.SubscriberID, p.CreatorID}
	e, ok := f.subs[k]
	if !ok {
		f.subs[k] = &stripedb.Subscription{SubscriberID: p.SubscriberID, CreatorID: p.CreatorID, Status: p.Status,
			StripeSubscriptionID: strp(p.StripeSubscriptionID), StripePriceID: strp(p.StripePriceID), CurrentPeriodEnd: p.CurrentPeriodEnd}
		return true, nil
	}
	same := sameRef(e.StripeSubscriptionID, p.StripeSubscriptionID)
	if !same && e.Live() {
		return false, nil
	}
	if !same || e.Status == stripedb.SubscriptionStatusIncomplete {
		e.Status = p.Status
	}
	if p.StripePriceID != "" {
		e.StripePriceID = strp(p.StripePriceID)
	}
	if same {
		e.CurrentPeriodEnd = laterTime(e.CurrentPeriodEnd, p.CurrentPeriodEnd)
	} else {
		e.CurrentPeriodEnd = p.CurrentPeriodEnd
		e.CancelAtPeriodEnd = false
		e.CancelAt = nil
		delete(f.eventAt, p.StripeSubscriptionID)
	}
	e.StripeSubscriptionID = strp(p.StripeSubscriptionID)
	return true, nil
}

func (f *fakeStore) MirrorSubscription(_ context.Context, m stripedb.SubscriptionMirror) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return false, f.err
	}
	var (
		e    *stripedb.Subscription
		same = true
	)
	if m.SubscriberID != "" && m.CreatorID != "" {
		k := pairKey{m.SubscriberID, m.CreatorID}
		var ok bool
		if e, ok = f.subs[k]; !ok {
			f.subs[k] = &stripedb.Subscription{SubscriberID: m.SubscriberID, CreatorID: m.CreatorID, Status: m.Status,
				StripeSubscriptionID: strp(m.StripeSubscriptionID), CurrentPeriodEnd: m.CurrentPeriodEnd,
				CancelAtPeriodEnd: m.CancelAtPeriodEnd, CancelAt: m.CancelAt}
			f.eventAt[m.StripeSubscriptionID] = m.EventAt
			return true, nil
		}
		same = sameRef(e.StripeSubscriptionID, m.StripeSubscriptionID)
		if !same && e.Live() {
			return false, nil
		}
		if e.StripeSubscriptionID == nil && m.Status.Terminal() {
			return false, nil
		}
	} else if e = f.subByRef(m.StripeSubscriptionID); e == nil {
		return false, nil
	}

	last := f.eventAt[m.StripeSubscriptionID]
	stale := same && m.EventAt != nil && last != nil && m.EventAt.Before(*last)
	switch {
	case !same:
		e.Status = m.Status
	case e.Status.Terminal():
	case m.Status.Terminal():
		e.Status = m.Status
	case m.Status == stripedb.SubscriptionStatusIncomplete, stale:
	default:
		e.Status = m.Status
	}
	e.StripeSubscriptionID = strp(m.StripeSubscriptionID)
	if !stale {
		if m.CurrentPeriodEnd != nil {
			e.CurrentPeriodEnd = m.CurrentPeriodEnd
		}
		e.CancelAtPeriodEnd = m.CancelAtPeriodEnd
		e.CancelAt = m.CancelAt
	}
	if same {
		f.eventAt[m.StripeSubscriptionID] = laterTime(last, m.EventAt)
	} else {
		f.eventAt[m.StripeSubscriptionID] = m.EventAt
	}
	return true, nil
}

func (f *fakeStore) MarkInvoicePaid(_ context.Context, ref string, periodEnd *time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return false, f.err
	}
	e := f.subByRef(ref)
	if e == nil || e.Status.Terminal() {
		return false, nil
	}
	e.Status = stripedb.SubscriptionStatusActive
	e.CurrentPeriodEnd = laterTime(e.CurrentPeriodEnd, periodEnd)
	return true, nil
}

func (f *fakeStore) RecordDuplicateSubscription(_ context.Context, p stripedb.PaidSubscription) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	if _, ok := f.dups[p.StripeSubscriptionID]; !ok {
		f.dups[p.StripeSubscriptionID] = p
	}
	return nil
}

func (f *fakeStore) FollowCreator(_ context.Context, subscriberID, creatorID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return false, f.err
	}
	k := pairKey{subscriberID, creatorID}
	if e, ok := f.subs[k]; ok && !e.Status.Terminal() {
		return false, nil
	}
	f.subs[k] = &stripedb.Subscription{SubscriberID: subscriberID, CreatorID: creatorID, Status: stripedb.SubscriptionStatusActive}
	return true, nil
}

func (f *fakeStore) UnfollowCreator(_ context.Context, subscriberID, creatorID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return false, f.err
	}
	k := pairKey{subscriberID, creatorID}
	if e, ok := f.subs[k]; ok && e.StripeSubscriptionID == nil {
		delete(f.subs, k)
		return true, nil
	}
	return false, nil
}

func (f *fakeStore) GetSubscription(_ context.Context, subscriberID, creatorID string) (stripedb.Subscription, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return stripedb.Subscription{}, false, f.err
	}
	e, ok := f.subs[pairKey{subscriberID, creatorID}]
	if !ok {
		return stripedb.Subscription{}, false, nil
	}
	return *e, true, nil
}

func (f *fakeStore) ListSubscriptions(_ context.Context, subscriberID string) ([]stripedb.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	var out []stripedb.Subscription
	for k, s := range f.subs {
		if k.a == subscriberID {
			out = append(out, *s)
		}
	}
	return out, nil
}

func (f *fakeStore) UpsertPendingPurchase(_ context.Context, p stripedb.PendingPurchase) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return false, f.err
	}
	if p.Status == stripedb.PurchaseStatusSucceeded {
		return false, errors.New("pending purchase cannot be succeeded")
	}
	k := pairKey{p.BuyerID, p.PostID}
	e, ok := f.purchases[k]
	if !ok {
		f.purchases[k] = &stripedb.Purchase{BuyerID: p.BuyerID, PostID: p.PostID, CreatorID: p.CreatorID,
			StripePaymentIntentID: strp(p.StripePaymentIntentID), Status: p.Status, Currency: p.Currency}
		return true, nil
	}
	if e.Status == stripedb.PurchaseStatusSucceeded {
		return false, nil
	}
	e.CreatorID = p.CreatorID
	if p.StripePaymentIntentID != "" {
		e.StripePaymentIntentID = strp(p.StripePaymentIntentID)
	}
	e.Status = p.Status
	if p.Currency != "" {
		e.Currency = p.Currency
	}
	return true, nil
}

func settle(e *stripedb.Purchase, st stripedb.Settlement) {
	e.StripePaymentIntentID = strp(st.StripePaymentIntentID)
	e.Status = stripedb.PurchaseStatusSucceeded
	e.Amount = st.Amount
	e.Currency = st.Currency
	e.PlatformFee = st.PlatformFee
	e.CreatorNet = st.CreatorNet
}

func (f *fakeStore) SettlePurchase(_ context.Context, st stripedb.Settlement) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return false, f.err
	}
	k := pairKey{st.BuyerID, st.PostID}
	e, ok := f.purchases[k]
	if !ok {
		e = &stripedb.Purchase{BuyerID: st.BuyerID, PostID: st.PostID, CreatorID: st.CreatorID}
		settle(e, st)
		f.purchases[k] = e
		return true, nil
	}
	if e.Status == stripedb.PurchaseStatusSucceeded && !sameRef(e.StripePaymentIntentID, st.StripePaymentIntentID) {
		return false, nil
	}
	e.CreatorID = st.CreatorID
	settle(e, st)
	return true, nil
}

func (f *fakeStore) SettlePurchaseByPaymentRef(_ context.Context, st stripedb.Settlement) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return false, f.err
	}
	for _, e := range f.purchases {
		if sameRef(e.StripePaymentIntentID, st.StripePaymentIntentID) {
			settle(e, st)
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeStore) MarkPurchaseFailed(_ context.Context, ref string, status stripedb.PurchaseStatus) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return false, f.err
	}
	for _, e := range f.purchases {
		if sameRef(e.StripePaymentIntentID, ref) && e.Status != stripedb.PurchaseStatusSucceeded {
			e.Status = status
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeStore) GetPurchase(_ context.Context, buyerID, postID string) (stripedb.Purchase, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return stripedb.Purchase{}, false, f.err
	}
	e, ok := f.purchases[pairKey{buyerID, postID}]
	if !ok {
		return stripedb.Purchase{}, false, nil
	}
	return *e, true, nil
}

func (f *fakeStore) ListPurchases(_ context.Context, buyerID string) ([]stripedb.Purchase, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	var out []stripedb.Purchase
	for k, p := range f.purchases {
		if k.a == buyerID {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (f *fakeStore) UpsertPlan(_ context.Context, p stripedb.Plan) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.plans[pairKey{p.CreatorID, p.Key}] = p
	return nil
}

func (f *fakeStore) GetPlan(_ context.Context, creatorID, key string) (stripedb.Plan, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return stripedb.Plan{}, false, f.err
	}
	p, ok := f.plans[pairKey{creatorID, key}]
	return p, ok, nil
}

func (f *fakeStore) GetPlanByPrice(_ context.Context, creatorID, priceID string) (stripedb.Plan, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return stripedb.Plan{}, false, f.err
	}
	for k, p := range f.plans {
		if k.a == creatorID && p.StripePriceID == priceID {
			return p, true, nil
		}
	}
	return stripedb.Plan{}, false, nil
}

func (f *fakeStore) ListPlans(_ context.Context, creatorID string, keys ...string) ([]stripedb.Plan, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	var out []stripedb.Plan
	for k, p := range f.plans {
		if k.a == creatorID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakeStore) GetUser(_ context.Context, id string) (stripedb.User, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return stripedb.User{}, false, f.err
	}
	u, ok := f.users[id]
	return u, ok, nil
}

func (f *fakeStore) SetStripeCustomerID(_ context.Context, userID, customerID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	u, ok := f.users[userID]
	if !ok {
		return "", sql.ErrNoRows
	}
	if u.StripeCustomerID == nil {
		u.StripeCustomerID = strp(customerID)
		f.users[userID] = u
	}
	return *u.StripeCustomerID, nil
}

func (f *fakeStore) SetConnectAccount(_ context.Context, userID, accountID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	u, ok := f.users[userID]
	if !ok {
		return "", sql.ErrNoRows
	}
	if u.StripeAccountID == nil {
		u.StripeAccountID = strp(accountID)
		f.users[userID] = u
	}
	return *u.StripeAccountID, nil
}

func (f *fakeStore) UpdateChargesEnabled(_ context.Context, userID string, enabled bool, checkedAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	u := f.users[userID]
	u.ChargesEnabled = enabled
	u.ChargesCheckedAt = &checkedAt
	f.users[userID] = u
	return nil
}

func (f *fakeStore) GetPost(_ context.Context, id string) (stripedb.Post, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return stripedb.Post{}, false, f.err
	}
	p, ok := f.posts[id]
	return p, ok, nil
}

func (f *fakeStore) sub(subscriberID, creatorID string) (stripedb.Subscription, bool) {
	s, ok, _ := f.GetSubscription(context.Background(), subscriberID, creatorID)
	return s, ok
}

func (f *fakeStore) purchase(buyerID, postID string) (stripedb.Purchase, bool) {
	p, ok, _ := f.GetPurchase(context.Background(), buyerID, postID)
	return p, ok
}

// fakeGateway records what the service asked the provider for.
type fakeGateway struct {
	mu        sync.Mutex
	sessions  map[string]stripe.CheckoutSession
	accounts  map[string]stripe.Account
	created   []*stripe.CheckoutSessionParams
	scheduled map[string]time.Time
	canceled  []string
	prices    []*stripe.PriceParams
	coupons   []*stripe.CouponParams
	customers int

	scheduleErr error
	accountErr  error
	sessionErr  error
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		sessions:  map[string]stripe.CheckoutSession{},
		accounts:  map[string]stripe.Account{},
		scheduled: map[string]time.Time{},
	}
}

func (f *fakeGateway) CreateCheckoutSession(_ context.Context, params *stripe.CheckoutSessionParams) (stripe.CheckoutSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sessionErr != nil {
		return stripe.CheckoutSession{}, f.sessionErr
	}
	f.created = append(f.created, params)
	id := "cs_test_" + string(rune('a'+len(f.created)-1))
	return stripe.CheckoutSession{ID: id, URL: "https://checkout.stripe.com/c/pay/" + id}, nil
}

func (f *fakeGateway) GetCheckoutSession(_ context.Context, id string) (stripe.CheckoutSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sessionErr != nil {
		return stripe.CheckoutSession{}, f.sessionErr
	}
	sess, ok := f.sessions[id]
	if !ok {
		return stripe.CheckoutSession{}, errors.New("no such checkout session")
	}
	return sess, nil
}

func (f *fakeGateway) GetSubscription(_ context.Context, id string) (stripe.Subscription, error) {
	return stripe.Subscription{ID: id, Status: stripe.SubscriptionStatusActive}, nil
}

func (f *fakeGateway) CancelSubscription(_ context.Context, id string) (stripe.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.canceled = append(f.canceled, id)
	return stripe.Subscription{ID: id, Status: stripe.SubscriptionStatusCanceled}, nil
}

func (f *fakeGateway) ScheduleCancellation(_ context.Context, id string, at time.Time) (stripe.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.scheduleErr != nil {
		return stripe.Subscription{}, f.scheduleErr
	}
	f.scheduled[id] = at
	sub := stripe.Subscription{ID: id, Status: stripe.SubscriptionStatusActive}
	if at.IsZero() {
		sub.CancelAtPeriodEnd = true
	} else {
		sub.CancelAt = at.Unix()
	}
	return sub, nil
}

func (f *fakeGateway) CreateCustomer(_ context.Context, userID, _, _ string) (stripe.Customer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.customers++
	return stripe.Customer{ID: "cus_" + userID}, nil
}

func (f *fakeGateway) CreatePrice(_ context.Context, params *stripe.PriceParams) (stripe.Price, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prices = append(f.prices, params)
	return stripe.Price{ID: "price_" + string(rune('a'+len(f.prices)-1))}, nil
}

func (f *fakeGateway) CreateCoupon(_ context.Context, params *stripe.CouponParams) (stripe.Coupon, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.coupons = append(f.coupons, params)
	return stripe.Coupon{ID: "coupon_" + string(rune('a'+len(f.coupons)-1))}, nil
}

func (f *fakeGateway) CreateExpressAccount(_ context.Context, userID, _ string) (stripe.Account, error) {
	return stripe.Account{ID: "acct_" + userID}, nil
}

func (f *fakeGateway) GetAccount(_ context.Context, id string) (stripe.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.accountErr != nil {
		return stripe.Account{}, f.accountErr
	}
	acct, ok := f.accounts[id]
	if !ok {
		return stripe.Account{ID: id}, nil
	}
	return acct, nil
}

func (f *fakeGateway) CreateOnboardingLink(_ context.Context, accountID, refreshURL, returnURL string) (string, error) {
	return "https://connect.stripe.com/setup/e/" + accountID + "?return=" + returnURL + "&refresh=" + refreshURL, nil
}
