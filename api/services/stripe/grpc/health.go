package grpcserver

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
)

// localHealthClient answers health checks from the in-process health server,
// so the HTTP gateway can serve /healthz without dialing itself.
type localHealthClient struct {
	srv *health.Server
}

// LocalHealthClient wraps srv as a HealthClient.
func LocalHealthClient(srv *health.Server) healthpb.HealthClient {
	return localHealthClient{srv: srv}
}

func (c localHealthClient) Check(ctx context.Context, in *healthpb.HealthCheckRequest, _ ...grpc.CallOption) (*healthpb.HealthCheckResponse, error) {
	return c.srv.Check(ctx, in)
}

func (localHealthClient) Watch(context.Context, *healthpb.HealthCheckRequest, ...grpc.CallOption) (healthpb.Health_WatchClient, error) {
	return nil, status.Error(codes.Unimplemented, "watch is only served over gRPC")
}
