package app

import (
	"context"
	"fmt"

	stripe "github.com/stripe/stripe-go/v76"
	stripedb "github.com/tbeaudouin05/fanvault/api/services/stripe/db"
)

const successPath = "/checkout/success?session_id={CHECKOUT_SESSION_ID}"

// CreateSubscriptionCheckout starts a hosted checkout for one of the creator's
// plans. The price must belong to the creator, and a pair that already holds a
// live paid subscription is refused.
func (s serviceImpl) CreateSubscriptionCheckout(ctx context.Context, req SubscriptionCheckoutRequest) (CheckoutResult, error) {
	if req.ViewerID == "" {
		return CheckoutResult{}, ErrUnauthenticated
	}
	if req.CreatorID == "" {
		return CheckoutResult{}, fmt.Errorf("%w: creator_id is required", ErrValidation)
	}
	if req.PriceID == "" && req.PlanKey == "" {
		return CheckoutResult{}, fmt.Errorf("%w: price_id or plan_key is required", ErrValidation)
	}
	if req.ViewerID == req.CreatorID {
		return CheckoutResult{}, fmt.Errorf("%w: cannot subscribe to yourself", ErrValidation)
	}
	if !req.CancelAt.IsZero() && !req.CancelAt.After(s.now()) {
		return CheckoutResult{}, fmt.Errorf("%w: cancel_at must be in the future", ErrValidation)
	}

	var (
		plan  stripedb.Plan
		found bool
		err   error
	)
	if req.PriceID != "" {
		plan, found, err = s.store.GetPlanByPrice(ctx, req.CreatorID, req.PriceID)
	} else {
		plan, found, err = s.store.GetPlan(ctx, req.CreatorID, req.PlanKey)
	}
	if err != nil {
		return CheckoutResult{}, fmt.Errorf("%w: %v", ErrDatabase, err)
	}
	if !found || (req.PlanKey != "" && plan.Key != req.PlanKey) {
		return CheckoutResult{}, fmt.Errorf("%w: creator %s", ErrPlanMismatch, req.CreatorID)
	}

	sub, ok, err := s.store.GetSubscription(ctx, req.ViewerID, req.CreatorID)
	if err != nil {
		return CheckoutResult{}, fmt.Errorf("%w: %v", ErrDatabase, err)
	}
	if ok && sub.Live() {
		return CheckoutResult{}, fmt.Errorf("%w: already subscribed to creator", ErrConflict)
	}

	customerID, err := s.ensureCustomer(ctx, req.ViewerID)
	if err != nil {
		return CheckoutResult{}, err
	}

	meta := CheckoutMetadata{
		Intent:    IntentSubscription,
		CreatorID: req.CreatorID,
		BuyerID:   req.ViewerID,
		PlanKey:   plan.Key,
		PriceID:   plan.StripePriceID,
		Cancel:    CancellationPolicy{AtPeriodEnd: req.CancelAtPeriodEnd, At: req.CancelAt},
	}.Map()
	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		Customer:          stripe.String(customerID),
		ClientReferenceID: stripe.String(req.ViewerID),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{Price: stripe.String(plan.StripePriceID), Quantity: stripe.Int64(1)},
		},
		Metadata:         meta,
		SubscriptionData: &stripe.CheckoutSessionSubscriptionDataParams{Metadata: meta},
		SuccessURL:       stripe.String(s.settings.PublicBaseURL + successPath),
		CancelURL:        stripe.String(s.settings.PublicBaseURL + "/creators/" + req.CreatorID),
	}
	coupon := req.CouponID
	if coupon == "" && plan.StripeCouponID != nil {
		coupon = *plan.StripeCouponID
	}
	if coupon != "" {
		params.Discounts = []*stripe.CheckoutSessionDiscountParams{{Coupon: stripe.String(coupon)}}
	}

	destination, split := s.payoutDestination(ctx, req.CreatorID)
	if split {
		params.SubscriptionData.ApplicationFeePercent = stripe.Float64(float64(s.settings.FeePercent))
		params.SubscriptionData.TransferData = &stripe.CheckoutSessionSubscriptionDataTransferDataParams{
			Destination: stripe.String(destination),
		}
	}
	return s.createSession(ctx, IntentSubscription, params, split)
}

// CreatePPVCheckout starts a one-off payment for a single post.
func (s serviceImpl) CreatePPVCheckout(ctx context.Context, req PPVCheckoutRequest) (CheckoutResult, error) {
	if req.ViewerID == "" {
		return CheckoutResult{}, ErrUnauthenticated
	}
	if req.PostID == "" {
		return CheckoutResult{}, fmt.Errorf("%w: post_id is required", ErrValidation)
	}

	post, ok, err := s.store.GetPost(ctx, req.PostID)
	if err != nil {
		return CheckoutResult{}, fmt.Errorf("%w: %v", ErrDatabase, err)
	}
	if !ok {
		return CheckoutResult{}, fmt.Errorf("%w: post %s", ErrNotFound, req.PostID)
	}
	if post.PPVPrice == nil || *post.PPVPrice <= 0 {
		return CheckoutResult{}, fmt.Errorf("%w: post is not sold individually", ErrValidation)
	}
	if post.CreatorID == req.ViewerID {
		return CheckoutResult{}, fmt.Errorf("%w: cannot buy your own post", ErrValidation)
	}

	purchase, ok, err := s.store.GetPurchase(ctx, req.ViewerID, post.ID)
	if err != nil {
		return CheckoutResult{}, fmt.Errorf("%w: %v", ErrDatabase, err)
	}
	if ok && purchase.Status == stripedb.PurchaseStatusSucceeded {
		return CheckoutResult{}, fmt.Errorf("%w: post already purchased", ErrConflict)
	}

	customerID, err := s.ensureCustomer(ctx, req.ViewerID)
	if err != nil {
		return CheckoutResult{}, err
	}

	price := *post.PPVPrice
	currency := post.Currency
	if currency == "" {
		currency = s.settings.Currency
	}
	name := post.Title
	if name == "" {
		name = "Exclusive post"
	}
	meta := CheckoutMetadata{Intent: IntentPPV, CreatorID: post.CreatorID, BuyerID: req.ViewerID, PostID: post.ID}.Map()
	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		Customer:          stripe.String(customerID),
		ClientReferenceID: stripe.String(req.ViewerID),
		LineItems: []*stripe.CheckoutSessionLineItemParams{{
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:    stripe.String(currency),
				UnitAmount:  stripe.Int64(price),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{Name: stripe.String(name)},
			},
			Quantity: stripe.Int64(1),
		}},
		Metadata:          meta,
		PaymentIntentData: &stripe.CheckoutSessionPaymentIntentDataParams{Metadata: meta},
		SuccessURL:        stripe.String(s.settings.PublicBaseURL + successPath),
		CancelURL:         stripe.String(s.settings.PublicBaseURL + "/posts/" + post.ID),
	}

	destination, split := s.payoutDestination(ctx, post.CreatorID)
	if split {
		routeToCreator(params.PaymentIntentData, destination, ComputeFee(price, s.settings.FeePercent))
	}
	return s.createSession(ctx, IntentPPV, params, split)
}

// CreateTipCheckout starts a one-off payment to a creator. Tips grant nothing.
func (s serviceImpl) CreateTipCheckout(ctx context.Context, req TipCheckoutRequest) (CheckoutResult, error) {
	if req.ViewerID == "" {
		return CheckoutResult{}, ErrUnauthenticated
	}
	if req.CreatorID == "" {
		return CheckoutResult{}, fmt.Errorf("%w: creator_id is required", ErrValidation)
	}
	if req.Amount < MinTipAmount || req.Amount > MaxTipAmount {
		return CheckoutResult{}, fmt.Errorf("%w: tip amount must be between %d and %d", ErrValidation, MinTipAmount, MaxTipAmount)
	}
	if req.ViewerID == req.CreatorID {
		return CheckoutResult{}, fmt.Errorf("%w: cannot tip yourself", ErrValidation)
	}
	if _, ok, err := s.store.GetUser(ctx, req.CreatorID); err != nil {
		return CheckoutResult{}, fmt.Errorf("%w: %v", ErrDatabase, err)
	} else if !ok {
		return CheckoutResult{}, fmt.Errorf("%w: creator %s", ErrNotFound, req.CreatorID)
	}
	if req.PostID != "" {
		post, ok, err := s.store.GetPost(ctx, req.PostID)
		if err != nil {
			return CheckoutResult{}, fmt.Errorf("%w: %v", ErrDatabase, err)
		}
		if !ok || post.CreatorID != req.CreatorID {
			return CheckoutResult{}, fmt.Errorf("%w: post does not belong to creator", ErrValidation)
		}
	}

	customerID, err := s.ensureCustomer(ctx, req.ViewerID)
	if err != nil {
		return CheckoutResult{}, err
	}

	meta := CheckoutMetadata{Intent: IntentTip, CreatorID: req.CreatorID, BuyerID: req.ViewerID, PostID: req.PostID}.Map()
	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		Customer:          stripe.String(customerID),
		ClientReferenceID: stripe.String(req.ViewerID),
		LineItems: []*stripe.CheckoutSessionLineItemParams{{
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:    stripe.String(s.settings.Currency),
				UnitAmount:  stripe.Int64(req.Amount),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{Name: stripe.String("Tip")},
			},
			Quantity: stripe.Int64(1),
		}},
		Metadata:          meta,
		PaymentIntentData: &stripe.CheckoutSessionPaymentIntentDataParams{Metadata: meta},
		SuccessURL:        stripe.String(s.settings.PublicBaseURL + successPath),
		CancelURL:         stripe.String(s.settings.PublicBaseURL + "/creators/" + req.CreatorID),
	}

	destination, split := s.payoutDestination(ctx, req.CreatorID)
	if split {
		routeToCreator(params.PaymentIntentData, destination, ComputeFee(req.Amount, s.settings.FeePercent))
	}
	return s.createSession(ctx, IntentTip, params, split)
}

// routeToCreator requests the same platform fee that settlement will record.
func routeToCreator(pi *stripe.CheckoutSessionPaymentIntentDataParams, destination string, split FeeSplit) {
	pi.ApplicationFeeAmount = stripe.Int64(split.PlatformFee)
	pi.TransferData = &stripe.CheckoutSessionPaymentIntentDataTransferDataParams{Destination: stripe.String(destination)}
}

func (s serviceImpl) createSession(ctx context.Context, intent CheckoutIntent, params *stripe.CheckoutSessionParams, split bool) (CheckoutResult, error) {
	sess, err := s.gw.CreateCheckoutSession(ctx, params)
	if err != nil {
		return CheckoutResult{}, fmt.Errorf("%w: error creating checkout session: %v", ErrGateway, err)
	}
	routing := "platform"
	if split {
		routing = "connect"
	}
	s.metrics.IncCheckoutSession(string(intent), routing)
	s.log.Info("checkout session created", "session_id", sess.ID, "intent", intent, "routing", routing,
		"buyer_id", params.Metadata[metaBuyerID], "creator_id", params.Metadata[metaCreatorID])
	return CheckoutResult{SessionID: sess.ID, URL: sess.URL, FeeSplit: split}, nil
}

// ensureCustomer returns the buyer's provider customer, creating it once.
func (s serviceImpl) ensureCustomer(ctx context.Context, userID string) (string, error) {
	u, err := s.loadUser(ctx, userID)
	if err != nil {
		return "", err
	}
	if u.StripeCustomerID != nil && *u.StripeCustomerID != "" {
		return *u.StripeCustomerID, nil
	}
	cust, err := s.gw.CreateCustomer(ctx, userID, u.Email, u.Username)
	if err != nil {
		return "", fmt.Errorf("%w: error creating customer: %v", ErrGateway, err)
	}
	stored, err := s.store.SetStripeCustomerID(ctx, userID, cust.ID)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDatabase, err)
	}
	return stored, nil
}
