package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tbeaudouin05/fanvault/api/bootstrap"
	"github.com/tbeaudouin05/fanvault/api/config"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 15 * time.Second

func main() {
	var (
		migrate  bool
		logLevel string
	)
	flag.BoolVar(&migrate, "migrate", true, "apply the embedded schema before serving")
	flag.StringVar(&logLevel, "log-level", "info", "debug, info, warn or error")
	flag.Parse()

	var level slog.Level
	if err := level.UnmarshalText([]byte(logLevel)); err != nil {
		fatal(fmt.Errorf("invalid -log-level: %w", err))
	}
	log := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(log)

	if err := run(migrate, log); err != nil {
		log.Error("server stopped", "err", err)
		os.Exit(1)
	}
	log.Info("server stopped")
}

func run(migrate bool, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}
	app, err := bootstrap.New(ctx, cfg, bootstrap.Options{Migrate: migrate, Logger: log})
	if err != nil {
		return err
	}
	defer func() {
		if err := app.Close(); err != nil {
			log.Error("shutdown cleanup failed", "err", err)
		}
	}()
	return serve(ctx, app, log)
}

// serve runs the HTTP gateway and the gRPC server until ctx is done or one of
// them fails, then drains both.
func serve(ctx context.Context, app *bootstrap.App, log *slog.Logger) error {
	grpcLis, err := net.Listen("tcp", ":"+app.Config.GRPCPort)
	if err != nil {
		return fmt.Errorf("listening for grpc: %w", err)
	}
	httpSrv := &http.Server{
		Addr:              ":" + app.Config.HTTPPort,
		Handler:           app.HTTP,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("http gateway listening", "addr", httpSrv.Addr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		log.Info("grpc server listening", "addr", grpcLis.Addr().String())
		if err := app.GRPC.Serve(grpcLis); err != nil {
			return fmt.Errorf("grpc server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")
		app.Health.Shutdown()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		err := httpSrv.Shutdown(shutdownCtx)

		stopped := make(chan struct{})
		go func() {
			app.GRPC.GracefulStop()
			close(stopped)
		}()
		select {
		case <-stopped:
		case <-shutdownCtx.Done():
			app.GRPC.Stop()
		}
		return err
	})
	return g.Wait()
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}
