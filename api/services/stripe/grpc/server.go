package grpcserver

import (
	"context"
	"log/slog"
	"time"

	"github.com/tbeaudouin05/fanvault/api/services/stripe/app"
	"google.golang.org/genproto/googleapis/api/httpbody"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

// SignatureHeader carries the provider's webhook signature.
const SignatureHeader = "stripe-signature"

// ViewerResolver identifies the caller of an RPC. *auth.Verifier implements it.
type ViewerResolver interface {
	ViewerFromContext(ctx context.Context) (string, error)
}

// Server adapts app.Service to StripeServiceServer.
type Server struct {
	svc    app.Service
	viewer ViewerResolver
	log    *slog.Logger
}

func New(svc app.Service, viewer ViewerResolver, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{svc: svc, viewer: viewer, log: log}
}

var _ StripeServiceServer = (*Server)(nil)

// viewerID returns "" for anonymous callers; an invalid token is an error.
func (s *Server) viewerID(ctx context.Context) (string, error) {
	id, err := s.viewer.ViewerFromContext(ctx)
	if err != nil {
		return "", status.Error(codes.Unauthenticated, "invalid session token")
	}
	return id, nil
}

// ReceiveStripeWebhook must answer 2xx for everything except a bad signature
// or a storage failure, so the provider only retries what can succeed later.
func (s *Server) ReceiveStripeWebhook(ctx context.Context, in *httpbody.HttpBody) (*emptypb.Empty, error) {
	signature := ""
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if v := md.Get(SignatureHeader); len(v) > 0 {
			signature = v[0]
		}
	}
	if signature == "" {
		return nil, status.Error(codes.InvalidArgument, "missing Stripe-Signature header")
	}
	if err := s.svc.HandleWebhook(ctx, in.GetData(), signature); err != nil {
		return nil, toStatus(err)
	}
	return &emptypb.Empty{}, nil
}

func (s *Server) ConfirmCheckout(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	viewer, err := s.viewerID(ctx)
	if err != nil {
		return nil, err
	}
	res, err := s.svc.ConfirmCheckout(ctx, viewer, firstString(in, "sessionId", "session_id"))
	if err != nil {
		return nil, confirmStatus(err)
	}
	return toStruct(map[string]any{
		"verified": res.Verified,
		"intent":   string(res.Intent),
		"status":   res.Status,
	})
}

func (s *Server) CreateSubscriptionCheckout(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	viewer, err := s.viewerID(ctx)
	if err != nil {
		return nil, err
	}
	req := app.SubscriptionCheckoutRequest{
		ViewerID:          viewer,
		CreatorID:         stringField(in, "creatorId"),
		PriceID:           stringField(in, "priceId"),
		PlanKey:           stringField(in, "planKey"),
		CouponID:          stringField(in, "couponId"),
		CancelAtPeriodEnd: boolField(in, "cancelAtPeriodEnd"),
	}
	if sec, err := intField(in, "cancelAt"); err != nil {
		return nil, err
	} else if sec > 0 {
		req.CancelAt = time.Unix(sec, 0).UTC()
	}
	res, err := s.svc.CreateSubscriptionCheckout(ctx, req)
	if err != nil {
		return nil, toStatus(err)
	}
	return checkoutStruct(res)
}

func (s *Server) CreatePPVCheckout(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	viewer, err := s.viewerID(ctx)
	if err != nil {
		return nil, err
	}
	res, err := s.svc.CreatePPVCheckout(ctx, app.PPVCheckoutRequest{ViewerID: viewer, PostID: stringField(in, "postId")})
	if err != nil {
		return nil, toStatus(err)
	}
	return checkoutStruct(res)
}

func (s *Server) CreateTipCheckout(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	viewer, err := s.viewerID(ctx)
	if err != nil {
		return nil, err
	}
	amount, err := intField(in, "amount")
	if err != nil {
		return nil, err
	}
	res, err := s.svc.CreateTipCheckout(ctx, app.TipCheckoutRequest{
		ViewerID:  viewer,
		CreatorID: stringField(in, "creatorId"),
		PostID:    stringField(in, "postId"),
		Amount:    amount,
	})
	if err != nil {
		return nil, toStatus(err)
	}
	return checkoutStruct(res)
}

// CheckAccess never fails: a bad token reads as anonymous.
func (s *Server) CheckAccess(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	viewer, err := s.viewer.ViewerFromContext(ctx)
	if err != nil {
		s.log.Debug("ignoring invalid token on access check", "err", err)
		viewer = ""
	}
	d := s.svc.CheckAccess(ctx, viewer, stringField(in, "postId"))
	return toStruct(map[string]any{"access": d.Access, "reason": string(d.Reason)})
}

func (s *Server) GetConnectStatus(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	viewer, err := s.viewerID(ctx)
	if err != nil {
		return nil, err
	}
	st, err := s.svc.GetConnectStatus(ctx, viewer)
	if err != nil {
		return nil, toStatus(err)
	}
	return toStruct(connectValue(st))
}

func (s *Server) RefreshConnectStatus(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	viewer, err := s.viewerID(ctx)
	if err != nil {
		return nil, err
	}
	st, err := s.svc.RefreshConnectStatus(ctx, viewer)
	if err != nil {
		return nil, toStatus(err)
	}
	return toStruct(connectValue(st))
}

func (s *Server) StartConnectOnboarding(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	viewer, err := s.viewerID(ctx)
	if err != nil {
		return nil, err
	}
	link, err := s.svc.StartConnectOnboarding(ctx, viewer)
	if err != nil {
		return nil, toStatus(err)
	}
	return toStruct(map[string]any{"url": link})
}

func (s *Server) UpsertPlan(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	viewer, err := s.viewerID(ctx)
	if err != nil {
		return nil, err
	}
	amount, err := intField(in, "amount")
	if err != nil {
		return nil, err
	}
	discount, err := intField(in, "introDiscountPercent")
	if err != nil {
		return nil, err
	}
	plan, err := s.svc.UpsertPlan(ctx, app.PlanInput{
		CreatorID:            viewer,
		Key:                  stringField(in, "planKey"),
		Amount:               amount,
		Currency:             stringField(in, "currency"),
		IntroDiscountPercent: discount,
	})
	if err != nil {
		return nil, toStatus(err)
	}
	return toStruct(planValue(plan))
}

func (s *Server) ListPlans(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	plans, err := s.svc.ListPlans(ctx, stringField(in, "creatorId"))
	if err != nil {
		return nil, toStatus(err)
	}
	items := make([]any, 0, len(plans))
	for _, p := range plans {
		items = append(items, planValue(p))
	}
	return toStruct(map[string]any{"plans": items})
}

func (s *Server) FollowCreator(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	viewer, err := s.viewerID(ctx)
	if err != nil {
		return nil, err
	}
	created, err := s.svc.FollowCreator(ctx, viewer, stringField(in, "creatorId"))
	if err != nil {
		return nil, toStatus(err)
	}
	return toStruct(map[string]any{"created": created})
}

func (s *Server) UnfollowCreator(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	viewer, err := s.viewerID(ctx)
	if err != nil {
		return nil, err
	}
	removed, err := s.svc.UnfollowCreator(ctx, viewer, stringField(in, "creatorId"))
	if err != nil {
		return nil, toStatus(err)
	}
	return toStruct(map[string]any{"removed": removed})
}

func (s *Server) CancelSubscription(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	viewer, err := s.viewerID(ctx)
	if err != nil {
		return nil, err
	}
	atPeriodEnd := true
	if v, ok := in.GetFields()["atPeriodEnd"]; ok {
		atPeriodEnd = boolValue(v)
	}
	sub, err := s.svc.CancelSubscription(ctx, viewer, stringField(in, "creatorId"), atPeriodEnd)
	if err != nil {
		return nil, toStatus(err)
	}
	return toStruct(subscriptionValue(sub))
}

func (s *Server) ListMySubscriptions(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	viewer, err := s.viewerID(ctx)
	if err != nil {
		return nil, err
	}
	subs, err := s.svc.ListSubscriptions(ctx, viewer)
	if err != nil {
		return nil, toStatus(err)
	}
	items := make([]any, 0, len(subs))
	for _, sub := range subs {
		items = append(items, subscriptionValue(sub))
	}
	return toStruct(map[string]any{"subscriptions": items})
}

func (s *Server) ListMyPurchases(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	viewer, err := s.viewerID(ctx)
	if err != nil {
		return nil, err
	}
	purchases, err := s.svc.ListPurchases(ctx, viewer)
	if err != nil {
		return nil, toStatus(err)
	}
	items := make([]any, 0, len(purchases))
	for _, p := range purchases {
		items = append(items, purchaseValue(p))
	}
	return toStruct(map[string]any{"purchases": items})
}
