// Package grpcserver exposes the payments service over gRPC and, through
// grpc-gateway, over HTTP/JSON. Messages are well-known protobuf types so the
// service needs no generated code: requests and responses are
// google.protobuf.Struct, the webhook takes a google.api.HttpBody.
package grpcserver

import (
	"context"

	"google.golang.org/genproto/googleapis/api/httpbody"
	"google.golang.org/grpc"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "fanvault.stripe.v1.StripeService"

// StripeServiceServer is the server API for the StripeService service.
type StripeServiceServer interface {
	ReceiveStripeWebhook(context.Context, *httpbody.HttpBody) (*emptypb.Empty, error)
	ConfirmCheckout(context.Context, *structpb.Struct) (*structpb.Struct, error)
	CreateSubscriptionCheckout(context.Context, *structpb.Struct) (*structpb.Struct, error)
	CreatePPVCheckout(context.Context, *structpb.Struct) (*structpb.Struct, error)
	CreateTipCheckout(context.Context, *structpb.Struct) (*structpb.Struct, error)
	CheckAccess(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetConnectStatus(context.Context, *structpb.Struct) (*structpb.Struct, error)
	RefreshConnectStatus(context.Context, *structpb.Struct) (*structpb.Struct, error)
	StartConnectOnboarding(context.Context, *structpb.Struct) (*structpb.Struct, error)
	UpsertPlan(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListPlans(context.Context, *structpb.Struct) (*structpb.Struct, error)
	FollowCreator(context.Context, *structpb.Struct) (*structpb.Struct, error)
	UnfollowCreator(context.Context, *structpb.Struct) (*structpb.Struct, error)
	CancelSubscription(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListMySubscriptions(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListMyPurchases(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

// structCall is the shape of every Struct-in, Struct-out RPC.
type structCall func(StripeServiceServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

// structMethods lists the Struct RPCs by method name.
var structMethods = map[string]structCall{
	"ConfirmCheckout":            StripeServiceServer.ConfirmCheckout,
	"CreateSubscriptionCheckout": StripeServiceServer.CreateSubscriptionCheckout,
	"CreatePPVCheckout":          StripeServiceServer.CreatePPVCheckout,
	"CreateTipCheckout":          StripeServiceServer.CreateTipCheckout,
	"CheckAccess":                StripeServiceServer.CheckAccess,
	"GetConnectStatus":           StripeServiceServer.GetConnectStatus,
	"RefreshConnectStatus":       StripeServiceServer.RefreshConnectStatus,
	"StartConnectOnboarding":     StripeServiceServer.StartConnectOnboarding,
	"UpsertPlan":                 StripeServiceServer.UpsertPlan,
	"ListPlans":                  StripeServiceServer.ListPlans,
	"FollowCreator":              StripeServiceServer.FollowCreator,
	"UnfollowCreator":            StripeServiceServer.UnfollowCreator,
	"CancelSubscription":         StripeServiceServer.CancelSubscription,
	"ListMySubscriptions":        StripeServiceServer.ListMySubscriptions,
	"ListMyPurchases":            StripeServiceServer.ListMyPurchases,
}

// FullMethod returns the "/service/method" path of an RPC.
func FullMethod(name string) string { return "/" + ServiceName + "/" + name }

func methodDesc[Req, Resp proto.Message](name string, newReq func() Req, call func(StripeServiceServer, context.Context, Req) (Resp, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := newReq()
			if err := dec(in); err != nil {
				return nil, err
			}
			s := srv.(StripeServiceServer)
			if interceptor == nil {
				return call(s, ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: FullMethod(name)}
			return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
				return call(s, ctx, req.(Req))
			})
		},
	}
}

func newStruct() *structpb.Struct { return &structpb.Struct{} }

func serviceDesc() *grpc.ServiceDesc {
	desc := &grpc.ServiceDesc{
		ServiceName: ServiceName,
		HandlerType: (*StripeServiceServer)(nil),
		Methods: []grpc.MethodDesc{
			methodDesc("ReceiveStripeWebhook", func() *httpbody.HttpBody { return &httpbody.HttpBody{} },
				StripeServiceServer.ReceiveStripeWebhook),
		},
		Metadata: "fanvault/stripe/v1/stripe_service",
	}
	for name, call := range structMethods {
		desc.Methods = append(desc.Methods, methodDesc(name, newStruct, call))
	}
	return desc
}

// Register adds the StripeService to a gRPC server.
func Register(s grpc.ServiceRegistrar, srv StripeServiceServer) {
	s.RegisterService(serviceDesc(), srv)
}
