// Package bootstrap wires config, storage, the payment provider and both
// transports into one App. Nothing here is global: tests build their own.
package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/tbeaudouin05/fanvault/api/auth"
	"github.com/tbeaudouin05/fanvault/api/config"
	"github.com/tbeaudouin05/fanvault/api/database"
	"github.com/tbeaudouin05/fanvault/api/metrics"
	"github.com/tbeaudouin05/fanvault/api/router"
	stripeapp "github.com/tbeaudouin05/fanvault/api/services/stripe/app"
	stripedb "github.com/tbeaudouin05/fanvault/api/services/stripe/db"
	"github.com/tbeaudouin05/fanvault/api/services/stripe/dedupe"
	gw "github.com/tbeaudouin05/fanvault/api/services/stripe/gateway"
	stripegw "github.com/tbeaudouin05/fanvault/api/services/stripe/gateway/stripe"
	grpcserver "github.com/tbeaudouin05/fanvault/api/services/stripe/grpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// App holds everything a running server owns.
type App struct {
	Config   *config.Config
	DB       *sql.DB
	Redis    *redis.Client
	Registry *prometheus.Registry
	Service  stripeapp.Service
	Health   *health.Server
	GRPC     *grpc.Server
	HTTP     http.Handler

	log *slog.Logger
}

// Options tweak New. The zero value runs migrations off.
type Options struct {
	Migrate bool
	Logger  *slog.Logger
}

// New connects to Postgres and (optionally) Redis, then wires the service
// behind a gRPC server and an HTTP gateway sharing one interceptor.
func New(ctx context.Context, cfg *config.Config, opts Options) (*App, error) {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}

	db, err := database.Open(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if opts.Migrate {
		if err := database.Migrate(ctx, db); err != nil {
			_ = db.Close()
			return nil, err
		}
	}

	rdb, err := database.ConnectRedis(ctx, cfg)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	stripegw.SetKey(cfg.StripeSecretKey)

	app, err := Wire(ctx, cfg, stripedb.NewStore(db), stripegw.New(), rdb, log)
	if err != nil {
		_ = db.Close()
		if rdb != nil {
			_ = rdb.Close()
		}
		return nil, err
	}
	app.DB = db
	return app, nil
}

// Wire assembles the service and transports over already-open dependencies.
// rdb may be nil, in which case webhook replays are only caught by the ledger.
func Wire(ctx context.Context, cfg *config.Config, store stripeapp.Store, gateway gw.StripeGateway,
	rdb *redis.Client, log *slog.Logger) (*App, error) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.MustNewMetrics(reg)

	var marker dedupe.Marker = dedupe.Nop{}
	if rdb != nil {
		marker = dedupe.NewRedisMarker(rdb, dedupe.DefaultTTL)
	}

	svc := stripeapp.NewService(store, gateway, stripeapp.Settings{
		FeePercent:     cfg.PlatformFeePercent,
		Currency:       cfg.Currency,
		PublicBaseURL:  cfg.PublicBaseURL,
		WebhookSecret:  cfg.StripeWebhookSecret,
		WebhookTimeout: cfg.WebhookTimeout,
	},
		stripeapp.WithMarker(marker),
		stripeapp.WithMetrics(m),
		stripeapp.WithLogger(log.With("component", "stripe")),
	)

	srv := grpcserver.New(svc, auth.NewVerifier(cfg.JWTSecret), log)
	intercept := grpcserver.UnaryInterceptor(log, m)

	gs := grpc.NewServer(grpc.ChainUnaryInterceptor(intercept))
	grpcserver.Register(gs, srv)
	hs := health.NewServer()
	healthpb.RegisterHealthServer(gs, hs)
	reflection.Register(gs)

	handler, err := router.NewRouter(ctx, srv, hs, reg, intercept)
	if err != nil {
		return nil, err
	}
	hs.SetServingStatus(grpcserver.ServiceName, healthpb.HealthCheckResponse_SERVING)

	return &App{
		Config:   cfg,
		Redis:    rdb,
		Registry: reg,
		Service:  svc,
		Health:   hs,
		GRPC:     gs,
		HTTP:     handler,
		log:      log,
	}, nil
}

// Close marks the app not serving and releases storage connections. Stopping
// the listeners is the caller's job.
func (a *App) Close() error {
	a.Health.Shutdown()
	var errs []error
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing redis: %w", err))
		}
	}
	if a.DB != nil {
		if err := a.DB.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing database: %w", err))
		}
	}
	if err := errors.Join(errs...); err != nil {
		return err
	}
	a.log.Info("app closed")
	return nil
}
