package app

import (
	"context"
	"log/slog"
	"time"

	"github.com/tbeaudouin05/fanvault/api/metrics"
	"github.com/tbeaudouin05/fanvault/api/services/stripe/dedupe"
	stripedb "github.com/tbeaudouin05/fanvault/api/services/stripe/db"
	gw "github.com/tbeaudouin05/fanvault/api/services/stripe/gateway"
)

// Service defines the business operations for the payments domain.
type Service interface {
	// Event ingestion
	HandleWebhook(ctx context.Context, payload []byte, signature string) error
	ConfirmCheckout(ctx context.Context, viewerID, sessionID string) (ConfirmResult, error)

	// Checkout
	CreateSubscriptionCheckout(ctx context.Context, req SubscriptionCheckoutRequest) (CheckoutResult, error)
	CreatePPVCheckout(ctx context.Context, req PPVCheckoutRequest) (CheckoutResult, error)
	CreateTipCheckout(ctx context.Context, req TipCheckoutRequest) (CheckoutResult, error)

	// Access
	CheckAccess(ctx context.Context, viewerID, postID string) AccessDecision
	ResolveAccess(ctx context.Context, viewerID string, post stripedb.Post) AccessDecision

	// Plans
	UpsertPlan(ctx context.Context, in PlanInput) (stripedb.Plan, error)
	ListPlans(ctx context.Context, creatorID string) ([]stripedb.Plan, error)

	// Connect
	GetConnectStatus(ctx context.Context, creatorID string) (ConnectStatus, error)
	RefreshConnectStatus(ctx context.Context, creatorID string) (ConnectStatus, error)
	StartConnectOnboarding(ctx context.Context, creatorID string) (string, error)

	// Relationships
	FollowCreator(ctx context.Context, viewerID, creatorID string) (bool, error)
	UnfollowCreator(ctx context.Context, viewerID, creatorID string) (bool, error)
	CancelSubscription(ctx context.Context, viewerID, creatorID string, atPeriodEnd bool) (stripedb.Subscription, error)
	ListSubscriptions(ctx context.Context, viewerID string) ([]stripedb.Subscription, error)
	ListPurchases(ctx context.Context, viewerID string) ([]stripedb.Purchase, error)
}

// Store is the ledger persistence the service depends on. *stripedb.Store
// implements it; every mutation is a single conditional statement.
type Store interface {
	UpsertPaidSubscription(ctx context.Context, p stripedb.PaidSubscription) (bool, error)
	MirrorSubscription(ctx context.Context, m stripedb.SubscriptionMirror) (bool, error)
	MarkInvoicePaid(ctx context.Context, stripeSubscriptionID string, periodEnd *time.Time) (bool, error)
	RecordDuplicateSubscription(ctx context.Context, p stripedb.PaidSubscription) error
	FollowCreator(ctx context.Context, subscriberID, creatorID string) (bool, error)
	UnfollowCreator(ctx context.Context, subscriberID, creatorID string) (bool, error)
	GetSubscription(ctx context.Context, subscriberID, creatorID string) (stripedb.Subscription, bool, error)
	ListSubscriptions(ctx context.Context, subscriberID string) ([]stripedb.Subscription, error)

	UpsertPendingPurchase(ctx context.Context, p stripedb.PendingPurchase) (bool, error)
	SettlePurchase(ctx context.Context, st stripedb.Settlement) (bool, error)
	SettlePurchaseByPaymentRef(ctx context.Context, st stripedb.Settlement) (bool, error)
	MarkPurchaseFailed(ctx context.Context, stripePaymentIntentID string, status stripedb.PurchaseStatus) (bool, error)
	GetPurchase(ctx context.Context, buyerID, postID string) (stripedb.Purchase, bool, error)
	ListPurchases(ctx context.Context, buyerID string) ([]stripedb.Purchase, error)

	UpsertPlan(ctx context.Context, p stripedb.Plan) error
	GetPlan(ctx context.Context, creatorID, key string) (stripedb.Plan, bool, error)
	GetPlanByPrice(ctx context.Context, creatorID, stripePriceID string) (stripedb.Plan, bool, error)
	ListPlans(ctx context.Context, creatorID string, keys ...string) ([]stripedb.Plan, error)

	GetUser(ctx context.Context, id string) (stripedb.User, bool, error)
	SetStripeCustomerID(ctx context.Context, userID, customerID string) (string, error)
	SetConnectAccount(ctx context.Context, userID, accountID string) (string, error)
	UpdateChargesEnabled(ctx context.Context, userID string, enabled bool, checkedAt time.Time) error
	GetPost(ctx context.Context, id string) (stripedb.Post, bool, error)
}

var _ Store = (*stripedb.Store)(nil)

// Settings are the platform-wide values the service needs from config.
type Settings struct {
	FeePercent     int64
	Currency       string
	PublicBaseURL  string
	WebhookSecret  string
	WebhookTimeout time.Duration
}

// Option customizes a service built by NewService.
type Option func(*serviceImpl)

// WithMarker enables cross-instance webhook replay short-circuiting.
func WithMarker(m dedupe.Marker) Option {
	return func(s *serviceImpl) { s.marker = m }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *serviceImpl) { s.metrics = m }
}

func WithLogger(l *slog.Logger) Option {
	return func(s *serviceImpl) { s.log = l }
}

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *serviceImpl) { s.now = now }
}

// serviceImpl is a concrete implementation. It holds no mutable state: every
// dependency is safe for concurrent use.
type serviceImpl struct {
	store    Store
	gw       gw.StripeGateway
	settings Settings
	marker   dedupe.Marker
	metrics  *metrics.Metrics
	log      *slog.Logger
	now      func() time.Time
}

func NewService(store Store, g gw.StripeGateway, settings Settings, opts ...Option) Service {
	s := serviceImpl{
		store:    store,
		gw:       g,
		settings: settings,
		marker:   dedupe.Nop{},
		log:      slog.Default(),
		now:      time.Now,
	}
	if s.settings.Currency == "" {
		s.settings.Currency = "usd"
	}
	if s.settings.WebhookTimeout <= 0 {
		s.settings.WebhookTimeout = 10 * time.Second
	}
	for _, opt := range opts {
		opt(&s)
	}
	return s
}
