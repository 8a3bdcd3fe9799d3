package grpcserver

import (
	"context"
	"log/slog"
	"path"
	"time"

	"github.com/tbeaudouin05/fanvault/api/metrics"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// UnaryInterceptor records the duration of every call and logs failures. The
// gateway runs HTTP requests through it too.
func UnaryInterceptor(log *slog.Logger, m *metrics.Metrics) grpc.UnaryServerInterceptor {
	if log == nil {
		log = slog.Default()
	}
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		elapsed := time.Since(start)

		code := status.Code(err)
		method := path.Base(info.FullMethod)
		m.ObserveRPC(method, code.String(), elapsed)

		switch code {
		case codes.OK:
			log.Debug("rpc completed", "method", method, "duration", elapsed)
		case codes.Internal, codes.Unknown, codes.Unavailable:
			log.Error("rpc failed", "method", method, "code", code.String(), "err", err, "duration", elapsed)
		default:
			log.Info("rpc rejected", "method", method, "code", code.String(), "err", err)
		}
		return resp, err
	}
}
