package router

import (
	"context"
	"fmt"
	"net/http"

	"github.com/grpc-ecosystem/grpc-gateway/v2/runtime"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	grpcserver "github.com/tbeaudouin05/fanvault/api/services/stripe/grpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
)

// NewRouter returns the central HTTP router for the API using grpc-gateway.
// The StripeService RPCs are served in-process; /healthz reports hs and
// /metrics exposes gatherer.
func NewRouter(ctx context.Context, srv grpcserver.StripeServiceServer, hs *health.Server,
	gatherer prometheus.Gatherer, intercept grpc.UnaryServerInterceptor) (http.Handler, error) {
	opts := []runtime.ServeMuxOption{runtime.WithIncomingHeaderMatcher(grpcserver.HeaderMatcher)}
	if hs != nil {
		opts = append(opts, runtime.WithHealthzEndpoint(grpcserver.LocalHealthClient(hs)))
	}
	mux := runtime.NewServeMux(opts...)

	if err := grpcserver.RegisterGateway(ctx, mux, srv, intercept); err != nil {
		return nil, fmt.Errorf("failed to register grpc-gateway: %w", err)
	}

	if gatherer != nil {
		metricsHandler := promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
		err := mux.HandlePath(http.MethodGet, "/metrics", func(w http.ResponseWriter, r *http.Request, _ map[string]string) {
			metricsHandler.ServeHTTP(w, r)
		})
		if err != nil {
			return nil, fmt.Errorf("failed to register /metrics: %w", err)
		}
	}
	return mux, nil
}
