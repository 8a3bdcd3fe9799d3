package gateway

import (
	"context"
	"time"

	stripe "github.com/stripe/stripe-go/v76"
)

//go:generate mockgen -destination=mock/gateway_mock.go -package=mock github.com/tbeaudouin05/fanvault/api/services/stripe/gateway StripeGateway

// StripeGateway abstracts Stripe SDK operations needed by the app layer.
// Methods return values (not pointers) to respect the project's preference
// to avoid pointer types in public interfaces. Every call is bounded by ctx.
type StripeGateway interface {
	CreateCheckoutSession(ctx context.Context, params *stripe.CheckoutSessionParams) (stripe.CheckoutSession, error)
	// GetCheckoutSession expands the subscription and payment intent.
	GetCheckoutSession(ctx context.Context, id string) (stripe.CheckoutSession, error)

	GetSubscription(ctx context.Context, id string) (stripe.Subscription, error)
	CancelSubscription(ctx context.Context, id string) (stripe.Subscription, error)
	// ScheduleCancellation programs a future end: at a fixed time when at is
	// non-zero, otherwise at the end of the current period.
	ScheduleCancellation(ctx context.Context, id string, at time.Time) (stripe.Subscription, error)

	CreateCustomer(ctx context.Context, userID, email, name string) (stripe.Customer, error)

	CreatePrice(ctx context.Context, params *stripe.PriceParams) (stripe.Price, error)
	CreateCoupon(ctx context.Context, params *stripe.CouponParams) (stripe.Coupon, error)

	CreateExpressAccount(ctx context.Context, userID, email string) (stripe.Account, error)
	GetAccount(ctx context.Context, id string) (stripe.Account, error)
	CreateOnboardingLink(ctx context.Context, accountID, refreshURL, returnURL string) (string, error)
}
