package stripegw

import (
	"context"
	"time"

	stripe "github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/account"
	"github.com/stripe/stripe-go/v76/accountlink"
	"github.com/stripe/stripe-go/v76/checkout/session"
	"github.com/stripe/stripe-go/v76/coupon"
	"github.com/stripe/stripe-go/v76/customer"
	"github.com/stripe/stripe-go/v76/price"
	"github.com/stripe/stripe-go/v76/subscription"

	gw "github.com/tbeaudouin05/fanvault/api/services/stripe/gateway"
)

// SetKey configures the Stripe SDK key once during bootstrap.
func SetKey(key string) { stripe.Key = key }

// client is the Stripe SDK-backed implementation of the gateway.
type client struct{}

// New returns a StripeGateway backed by the official Stripe SDK.
func New() gw.StripeGateway { return client{} }

func value[T any](ptr *T, err error) (T, error) {
	var zero T
	if err != nil {
		return zero, err
	}
	if ptr == nil {
		return zero, nil
	}
	return *ptr, nil
}

func (client) CreateCheckoutSession(ctx context.Context, params *stripe.CheckoutSessionParams) (stripe.CheckoutSession, error) {
	params.Context = ctx
	return value(session.New(params))
}

func (client) GetCheckoutSession(ctx context.Context, id string) (stripe.CheckoutSession, error) {
	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx
	params.AddExpand("subscription")
	params.AddExpand("payment_intent")
	return value(session.Get(id, params))
}

func (client) GetSubscription(ctx context.Context, id string) (stripe.Subscription, error) {
	params := &stripe.SubscriptionParams{}
	params.Context = ctx
	return value(subscription.Get(id, params))
}

func (client) CancelSubscription(ctx context.Context, id string) (stripe.Subscription, error) {
	params := &stripe.SubscriptionCancelParams{}
	params.Context = ctx
	return value(subscription.Cancel(id, params))
}

func (client) ScheduleCancellation(ctx context.Context, id string, at time.Time) (stripe.Subscription, error) {
	params := &stripe.SubscriptionParams{}
	params.Context = ctx
	if at.IsZero() {
		params.CancelAtPeriodEnd = stripe.Bool(true)
	} else {
		params.CancelAt = stripe.Int64(at.Unix())
	}
	return value(subscription.Update(id, params))
}

func (client) CreateCustomer(ctx context.Context, userID, email, name string) (stripe.Customer, error) {
	params := &stripe.CustomerParams{}
	params.Context = ctx
	if email != "" {
		params.Email = stripe.String(email)
	}
	if name != "" {
		params.Name = stripe.String(name)
	}
	params.AddMetadata("user_id", userID)
	// retried customer creation for the same user must not create two customers
	params.SetIdempotencyKey("customer-" + userID)
	return value(customer.New(params))
}

func (client) CreatePrice(ctx context.Context, params *stripe.PriceParams) (stripe.Price, error) {
	params.Context = ctx
	return value(price.New(params))
}

func (client) CreateCoupon(ctx context.Context, params *stripe.CouponParams) (stripe.Coupon, error) {
	params.Context = ctx
	return value(coupon.New(params))
}

func (client) CreateExpressAccount(ctx context.Context, userID, email string) (stripe.Account, error) {
	params := &stripe.AccountParams{
		Type: stripe.String(string(stripe.AccountTypeExpress)),
		Capabilities: &stripe.AccountCapabilitiesParams{
			CardPayments: &stripe.AccountCapabilitiesCardPaymentsParams{Requested: stripe.Bool(true)},
			Transfers:    &stripe.AccountCapabilitiesTransfersParams{Requested: stripe.Bool(true)},
		},
	}
	params.Context = ctx
	if email != "" {
		params.Email = stripe.String(email)
	}
	params.AddMetadata("user_id", userID)
	params.SetIdempotencyKey("connect-account-" + userID)
	return value(account.New(params))
}

func (client) GetAccount(ctx context.Context, id string) (stripe.Account, error) {
	params := &stripe.AccountParams{}
	params.Context = ctx
	return value(account.GetByID(id, params))
}

func (client) CreateOnboardingLink(ctx context.Context, accountID, refreshURL, returnURL string) (string, error) {
	params := &stripe.AccountLinkParams{
		Account:    stripe.String(accountID),
		RefreshURL: stripe.String(refreshURL),
		ReturnURL:  stripe.String(returnURL),
		Type:       stripe.String(string(stripe.AccountLinkTypeAccountOnboarding)),
	}
	params.Context = ctx
	link, err := accountlink.New(params)
	if err != nil {
		return "", err
	}
	return link.URL, nil
}
