package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/zhouzirui/care-portal/backend/internal/backend"
	"github.com/zhouzirui/care-portal/backend/internal/config"
	"github.com/zhouzirui/care-portal/backend/internal/handler"
	"github.com/zhouzirui/care-portal/backend/internal/model/doctor"
	"github.com/zhouzirui/care-portal/backend/internal/observability/metrics"
	"github.com/zhouzirui/care-portal/backend/internal/portal"
	"github.com/zhouzirui/care-portal/backend/internal/service/ai"
	"github.com/zhouzirui/care-portal/backend/internal/service/booking"
	"github.com/zhouzirui/care-portal/backend/internal/service/chat"
	"github.com/zhouzirui/care-portal/backend/internal/service/prescription"
	"github.com/zhouzirui/care-portal/backend/pkg/logging"
)

const evictInterval = time.Minute

func newServeCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the portal HTTP server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load configuration: %w", err)
			}
			if addr != "" {
				cfg.Server.Addr = addr
			}
			return serve(cmd.Context(), cfg)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address, overrides PORT")
	return cmd
}

func serve(ctx context.Context, cfg *config.Config) error {
	logger := logging.New(cfg.Portal.LogLevel)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	portalMetrics := metrics.NewPortalMetrics(reg)

	be, shutdown, err := buildBackend(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer shutdown()

	registry := portal.NewRegistry(func(clientID string, view portal.View) (*portal.Controller, error) {
		return portal.New(portal.Options{
			Backend:      be,
			View:         view,
			Metrics:      portalMetrics,
			Logger:       logger.With("client_id", clientID),
			ReplyTimeout: cfg.Portal.ReplyTimeout,
		})
	}, portalMetrics, logger)
	go registry.Run(ctx, cfg.Portal.IdleTTL, evictInterval)

	router := handler.NewRouter(handler.RouterConfig{
		Workspaces:     registry,
		Gatherer:       reg,
		AllowedOrigins: cfg.Portal.AllowedOrigins,
		MaxFileBytes:   cfg.Portal.MaxUploadBytes,
		Logger:         logger,
	})

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	logger.Info("care portal listening", "addr", cfg.Server.Addr, "remote_backend", cfg.Backend.Remote())
	if err := runServer(ctx, srv); err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	logger.Info("care portal stopped")
	return nil
}

// buildBackend returns the remote client when BACKEND_URL is set and the
// in-process services otherwise.
func buildBackend(ctx context.Context, cfg *config.Config, logger *logging.Logger) (backend.Backend, func(), error) {
	if cfg.Backend.Remote() {
		client, err := backend.NewClient(backend.ClientConfig{
			BaseURL:      cfg.Backend.URL,
			PatientID:    cfg.Backend.PatientID,
			Timeout:      cfg.Backend.Timeout,
			PollInterval: cfg.Backend.PollInterval,
			Logger:       logger,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("create backend client: %w", err)
		}
		return client, func() {}, nil
	}

	roster := doctor.NewMemoryStore(doctor.Seed())
	chatCfg := chat.Config{
		ReplyDelay:   cfg.Portal.ReplyDelay,
		ReplyTimeout: cfg.Portal.ReplyTimeout,
		Doctors:      roster,
		Logger:       logger,
	}
	if cfg.AI.Enabled() {
		aiSvc, err := ai.NewService(ctx, cfg.AI, logger)
		if err != nil {
			logger.Warn("AI replies disabled, using scripted replies", "error", err)
		} else {
			chatCfg.Responder = aiSvc
			logger.Info("AI replies enabled", "model", cfg.AI.Model)
		}
	}

	chatSvc := chat.NewService(chatCfg)
	bookings := booking.NewService(roster)
	uploads := prescription.NewService(prescription.Config{
		PatientID:      cfg.Backend.PatientID,
		ProcessingTime: cfg.Portal.UploadDelay,
		MaxFileBytes:   cfg.Portal.MaxUploadBytes,
	})
	return backend.Compose(bookings, bookings, uploads, chatSvc), chatSvc.Shutdown, nil
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
