package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	grpcdelivery "github.com/Xausdorf/payrelay/internal/delivery/grpc"
	httpdelivery "github.com/Xausdorf/payrelay/internal/delivery/http"
	"github.com/Xausdorf/payrelay/internal/domain/exchange"
	"github.com/Xausdorf/payrelay/internal/infrastructure/config"
	"github.com/Xausdorf/payrelay/internal/infrastructure/kafka"
	"github.com/Xausdorf/payrelay/internal/infrastructure/nobitex"
	"github.com/Xausdorf/payrelay/internal/infrastructure/observability"
	"github.com/Xausdorf/payrelay/internal/infrastructure/payping"
	"github.com/Xausdorf/payrelay/internal/infrastructure/qrgenerator"
	"github.com/Xausdorf/payrelay/internal/usecase/generateqr"
	"github.com/Xausdorf/payrelay/internal/usecase/webhook"
)

const readHeaderTimeout = 5 * time.Second

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP relay and the gRPC health endpoint",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context())
		},
	}
}

func runServe(parent context.Context) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	shutdownOtel, err := observability.SetupOpenTelemetry(ctx, cfg.ServiceName)
	if err != nil {
		return err
	}
	defer func() {
		if err := shutdownOtel(context.Background()); err != nil {
			slog.Error("otel shutdown failed", "error", err)
		}
	}()

	if cfg.RequestTimeout < cfg.WebhookBudget() {
		slog.Warn("REQUEST_TIMEOUT is below the webhook upstream budget",
			"request_timeout", cfg.RequestTimeout,
			"budget", cfg.WebhookBudget())
	}

	st, err := openStores(ctx, cfg)
	if err != nil {
		slog.Error("store init failed", "store", cfg.DedupStore, "error", err)
		return err
	}
	defer st.Close()

	gateway := payping.NewClient(cfg.PayPingBaseURL, payping.Credentials{
		ClientID:     cfg.PayPingClientID,
		ClientSecret: cfg.PayPingClientSecret,
	}, cfg.UpstreamTimeout)
	ex := nobitex.NewClient(cfg.NobitexBaseURL, cfg.NobitexAPIKey, cfg.UpstreamTimeout)

	opts := webhook.Options{
		PayoutSheba:          cfg.PayoutSheba,
		RequireSuccessStatus: cfg.RequireSuccessStatus,
		SuccessStatus:        cfg.SuccessStatus,
	}
	if cfg.OrderEnabled {
		opts.Order = &webhook.OrderOptions{Symbol: cfg.OrderSymbol, Type: exchange.OrderType(cfg.OrderType)}
	}
	webhookUC := webhook.NewUseCase(gateway, ex, st.deliveries, st.journal, opts)
	generateQRUC := generateqr.NewUseCase(gateway, qrgenerator.NewGenerator(qrgenerator.DefaultSize))

	if len(cfg.KafkaBrokers) > 0 && st.journal != nil {
		publisher := kafka.NewStepPublisher(st.journal, kafka.NewWriter(cfg.KafkaTopic, cfg.KafkaBrokers...), cfg.JournalPollInterval)
		defer publisher.Close()
		go publisher.Run(ctx)
		slog.Info("journal publisher started", "topic", cfg.KafkaTopic, "brokers", cfg.KafkaBrokers)
	}

	handler := httpdelivery.NewHandler(gateway, ex, webhookUC, generateQRUC, cfg.HotWalletAddress)
	router := httpdelivery.NewRouter(handler, cfg.RequestTimeout)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           httpdelivery.Instrument(router),
		ReadHeaderTimeout: readHeaderTimeout,
	}

	grpcSrv := grpcdelivery.NewServer()
	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		slog.Error("listen failed", "addr", cfg.GRPCAddr, "error", err)
		return err
	}

	errCh := make(chan error, 2)
	go func() {
		slog.Info("gRPC server starting", "addr", cfg.GRPCAddr)
		if err := grpcSrv.Serve(lis); err != nil {
			errCh <- err
		}
	}()
	go func() {
		slog.Info("HTTP server starting", "addr", cfg.HTTPAddr,
			"dedup_store", cfg.DedupStore,
			"require_success_status", cfg.RequireSuccessStatus,
			"order_enabled", cfg.OrderEnabled,
			"testnet", cfg.Testnet)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	grpcSrv.SetServing(true)

	select {
	case <-ctx.Done():
	case err = <-errCh:
		slog.Error("server failed", "error", err)
	}

	slog.Info("shutting down...")
	grpcSrv.SetServing(false)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()
	if shutdownErr := srv.Shutdown(shutdownCtx); shutdownErr != nil {
		slog.Error("http shutdown failed", "error", shutdownErr)
	}
	grpcSrv.GracefulStop()

	return err
}
