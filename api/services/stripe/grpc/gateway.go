package grpcserver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/textproto"
	"strings"

	"github.com/grpc-ecosystem/grpc-gateway/v2/runtime"
	"github.com/tbeaudouin05/fanvault/api/config"
	"google.golang.org/genproto/googleapis/api/httpbody"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// HeaderMatcher forwards the webhook signature header into gRPC metadata on
// top of the default grpc-gateway rules. Authorization is always forwarded.
func HeaderMatcher(key string) (string, bool) {
	if textproto.CanonicalMIMEHeaderKey(key) == "Stripe-Signature" {
		return SignatureHeader, true
	}
	return runtime.DefaultHeaderMatcher(key)
}

type route struct {
	method string
	path   string
	rpc    string
}

// routes is the HTTP surface of the Struct RPCs.
var routes = []route{
	{http.MethodGet, "/api/checkout/confirm", "ConfirmCheckout"},
	{http.MethodPost, "/api/checkout/subscription", "CreateSubscriptionCheckout"},
	{http.MethodPost, "/api/checkout/ppv", "CreatePPVCheckout"},
	{http.MethodPost, "/api/checkout/tip", "CreateTipCheckout"},
	{http.MethodGet, "/api/posts/{post_id}/access", "CheckAccess"},
	{http.MethodGet, "/api/connect/status", "GetConnectStatus"},
	{http.MethodPost, "/api/connect/status", "RefreshConnectStatus"},
	{http.MethodPost, "/api/connect/onboarding", "StartConnectOnboarding"},
	{http.MethodPut, "/api/plans/{plan_key}", "UpsertPlan"},
	{http.MethodGet, "/api/creators/{creator_id}/plans", "ListPlans"},
	{http.MethodPost, "/api/creators/{creator_id}/follow", "FollowCreator"},
	{http.MethodDelete, "/api/creators/{creator_id}/follow", "UnfollowCreator"},
	{http.MethodPost, "/api/creators/{creator_id}/subscription/cancel", "CancelSubscription"},
	{http.MethodGet, "/api/me/subscriptions", "ListMySubscriptions"},
	{http.MethodGet, "/api/me/purchases", "ListMyPurchases"},
}

const webhookPath = "/api/webhooks/stripe"

type gateway struct {
	mux       *runtime.ServeMux
	srv       StripeServiceServer
	intercept grpc.UnaryServerInterceptor
}

// RegisterGateway serves srv on mux in-process. HTTP calls go through
// intercept, when set, exactly like gRPC calls do.
func RegisterGateway(_ context.Context, mux *runtime.ServeMux, srv StripeServiceServer, intercept grpc.UnaryServerInterceptor) error {
	g := &gateway{mux: mux, srv: srv, intercept: intercept}
	if err := mux.HandlePath(http.MethodPost, webhookPath, g.webhook); err != nil {
		return fmt.Errorf("registering %s: %w", webhookPath, err)
	}
	for _, rt := range routes {
		call, ok := structMethods[rt.rpc]
		if !ok {
			return fmt.Errorf("no rpc named %s", rt.rpc)
		}
		if err := mux.HandlePath(rt.method, rt.path, g.handle(rt, call)); err != nil {
			return fmt.Errorf("registering %s %s: %w", rt.method, rt.path, err)
		}
	}
	return nil
}

func (g *gateway) invoke(ctx context.Context, rpc string, req any, h grpc.UnaryHandler) (any, error) {
	if g.intercept == nil {
		return h(ctx, req)
	}
	return g.intercept(ctx, req, &grpc.UnaryServerInfo{Server: g.srv, FullMethod: FullMethod(rpc)}, h)
}

func (g *gateway) handle(rt route, call structCall) runtime.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request, params map[string]string) {
		inbound, outbound := runtime.MarshalerForRequest(g.mux, r)
		ctx, err := runtime.AnnotateIncomingContext(r.Context(), g.mux, r, FullMethod(rt.rpc),
			runtime.WithHTTPPathPattern(rt.path))
		if err != nil {
			runtime.HTTPError(r.Context(), g.mux, outbound, w, r, err)
			return
		}
		ctx = runtime.NewServerMetadataContext(ctx, runtime.ServerMetadata{})

		in, err := decodeRequest(inbound, r, params)
		if err != nil {
			runtime.HTTPError(ctx, g.mux, outbound, w, r, err)
			return
		}
		resp, err := g.invoke(ctx, rt.rpc, in, func(ctx context.Context, req any) (any, error) {
			return call(g.srv, ctx, req.(*structpb.Struct))
		})
		if err != nil {
			runtime.HTTPError(ctx, g.mux, outbound, w, r, err)
			return
		}
		runtime.ForwardResponseMessage(ctx, g.mux, outbound, w, r, resp.(proto.Message))
	}
}

// decodeRequest merges the JSON body, query string and path parameters into
// one Struct. Path parameters win over query values, which win over the body.
func decodeRequest(inbound runtime.Marshaler, r *http.Request, params map[string]string) (*structpb.Struct, error) {
	in := &structpb.Struct{}
	if r.Body != nil && r.Method != http.MethodGet {
		if err := inbound.NewDecoder(r.Body).Decode(in); err != nil && !errors.Is(err, io.EOF) {
			return nil, status.Errorf(codes.InvalidArgument, "malformed request body: %v", err)
		}
	}
	if in.Fields == nil {
		in.Fields = map[string]*structpb.Value{}
	}
	for k, vs := range r.URL.Query() {
		if len(vs) > 0 {
			in.Fields[camelCase(k)] = structpb.NewStringValue(vs[0])
		}
	}
	for k, v := range params {
		in.Fields[camelCase(k)] = structpb.NewStringValue(v)
	}
	return in, nil
}

// camelCase turns snake_case parameter names into the JSON field names.
func camelCase(s string) string {
	parts := strings.Split(s, "_")
	for i := 1; i < len(parts); i++ {
		if parts[i] != "" {
			parts[i] = strings.ToUpper(parts[i][:1]) + parts[i][1:]
		}
	}
	return strings.Join(parts, "")
}

// webhook passes the raw body through untouched: the signature covers the
// exact bytes.
func (g *gateway) webhook(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	const rpc = "ReceiveStripeWebhook"
	_, outbound := runtime.MarshalerForRequest(g.mux, r)
	ctx, err := runtime.AnnotateIncomingContext(r.Context(), g.mux, r, FullMethod(rpc),
		runtime.WithHTTPPathPattern(webhookPath))
	if err != nil {
		runtime.HTTPError(r.Context(), g.mux, outbound, w, r, err)
		return
	}
	ctx = runtime.NewServerMetadataContext(ctx, runtime.ServerMetadata{})

	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, config.WebhookMaxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			runtime.HTTPError(ctx, g.mux, outbound, w, r, &runtime.HTTPStatusError{
				HTTPStatus: http.StatusRequestEntityTooLarge,
				Err:        status.Error(codes.InvalidArgument, "webhook payload too large"),
			})
			return
		}
		runtime.HTTPError(ctx, g.mux, outbound, w, r, status.Errorf(codes.InvalidArgument, "reading webhook body: %v", err))
		return
	}

	in := &httpbody.HttpBody{ContentType: r.Header.Get("Content-Type"), Data: payload}
	resp, err := g.invoke(ctx, rpc, in, func(ctx context.Context, req any) (any, error) {
		return g.srv.ReceiveStripeWebhook(ctx, req.(*httpbody.HttpBody))
	})
	if err != nil {
		runtime.HTTPError(ctx, g.mux, outbound, w, r, err)
		return
	}
	runtime.ForwardResponseMessage(ctx, g.mux, outbound, w, r, resp.(proto.Message))
}
