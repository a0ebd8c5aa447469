package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/log"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/apreview/internal/config"
	httpserver "github.com/fyrsmithlabs/apreview/internal/http"
	"github.com/fyrsmithlabs/apreview/internal/logging"
	"github.com/fyrsmithlabs/apreview/internal/review"
	"github.com/fyrsmithlabs/apreview/internal/session"
	"github.com/fyrsmithlabs/apreview/internal/session/sqlite"
	"github.com/fyrsmithlabs/apreview/internal/sink"
	"github.com/fyrsmithlabs/apreview/internal/telemetry"
)

func newServeCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP service",
		Long: `Start the review HTTP service and block until SIGINT or SIGTERM.

Configuration comes from the config file and APREVIEW_* environment
variables. APREVIEW_WEBHOOK_URL is required.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			return run(ctx, cfg)
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "", "config file (default: ~/.config/apreview/config.yaml)")
	return cmd
}

func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("loading configuration: %w", err)
	}
	return cfg, nil
}

// run wires every component and serves until ctx is cancelled.
//
// Startup order:
//  1. Telemetry and logger
//  2. Questionnaire definition
//  3. Session store, CSV sink and webhook
//  4. Review service and HTTP server
func run(ctx context.Context, cfg *config.Config) error {
	tel, err := telemetry.New(ctx, telemetryConfig(cfg))
	if err != nil {
		return fmt.Errorf("initializing telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		_ = tel.Shutdown(shutdownCtx)
	}()

	logger, err := newLogger(cfg, tel.LoggerProvider())
	if err != nil {
		return fmt.Errorf("initializing logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	def, err := loadDefinition(cfg.Form.Definition, cfg.Form.Ceiling)
	if err != nil {
		return fmt.Errorf("loading questionnaire: %w", err)
	}

	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	csvSink, err := sink.OpenCSV(cfg.Storage.CSVPath, def.Schema())
	if err != nil {
		return fmt.Errorf("opening csv sink: %w", err)
	}
	webhook := sink.NewWebhook(cfg.Webhook.URL.Value(), cfg.Webhook.Timeout.Duration())

	metrics, err := review.NewMetrics(tel.Meter(review.InstrumentationName))
	if err != nil {
		return fmt.Errorf("creating review metrics: %w", err)
	}
	svc, err := review.NewService(def, store, csvSink, webhook,
		review.WithLogger(logger.Named("review")),
		review.WithTracer(tel.Tracer(review.InstrumentationName)),
		review.WithMetrics(metrics),
	)
	if err != nil {
		return fmt.Errorf("creating review service: %w", err)
	}

	srv, err := httpserver.NewServer(svc, logger.Named("http"), &httpserver.Config{
		Host:      cfg.Server.Host,
		Port:      cfg.Server.Port,
		RateLimit: cfg.Server.RateLimit,
		RateBurst: cfg.Server.RateBurst,
		BodyLimit: cfg.Server.BodyLimit,
	})
	if err != nil {
		return fmt.Errorf("creating http server: %w", err)
	}

	logger.Info(ctx, "starting apreview",
		zap.String("version", version),
		zap.String("addr", srv.Addr()),
		zap.String("storage", cfg.Storage.Backend),
		zap.String("csv_path", csvSink.Path()),
		zap.Int("columns", len(def.Schema())),
		zap.Bool("telemetry", tel.IsEnabled()),
	)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.Server.ShutdownTimeout.Duration())
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down http server: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	logger.Info(shutdownCtx, "server shutdown complete")
	return nil
}

func newLogger(cfg *config.Config, provider log.LoggerProvider) (*logging.Logger, error) {
	lc := logging.NewDefaultConfig()
	level, err := logging.LevelFromString(cfg.Logging.Level)
	if err != nil {
		return nil, err
	}
	lc.Level = level
	lc.Format = cfg.Logging.Format
	lc.Output.OTEL = cfg.Observability.EnableTelemetry && provider != nil
	return logging.NewLogger(lc, provider)
}

func telemetryConfig(cfg *config.Config) *telemetry.Config {
	tc := telemetry.NewDefaultConfig()
	obs := cfg.Observability
	tc.Enabled = obs.EnableTelemetry
	tc.Endpoint = obs.Endpoint
	tc.Insecure = obs.Insecure
	tc.TLSSkipVerify = obs.TLSSkipVerify
	tc.ServiceName = obs.ServiceName
	tc.ServiceVersion = version
	tc.Sampling.Rate = obs.SampleRate
	if obs.Protocol == "http" || obs.Protocol == telemetry.ProtocolHTTP {
		tc.Protocol = telemetry.ProtocolHTTP
	} else {
		tc.Protocol = telemetry.ProtocolGRPC
	}
	return tc
}

func openStore(ctx context.Context, cfg *config.Config) (session.Store, error) {
	ttl := cfg.Form.SessionTTL.Duration()
	switch cfg.Storage.Backend {
	case config.BackendSQLite:
		store, err := sqlite.Open(ctx, cfg.Storage.SQLitePath, ttl)
		if err != nil {
			return nil, fmt.Errorf("opening session store: %w", err)
		}
		return store, nil
	default:
		return session.NewMemoryStore(ttl), nil
	}
}
