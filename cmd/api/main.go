package main

import (
	"context"
	"encoding/hex"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/joho/godotenv"

	"quiz-rewards-api/internal/catalog"
	"quiz-rewards-api/internal/config"
	"quiz-rewards-api/internal/events"
	"quiz-rewards-api/internal/features"
	"quiz-rewards-api/internal/handler"
	"quiz-rewards-api/internal/logging"
	"quiz-rewards-api/internal/middleware"
	"quiz-rewards-api/internal/records"
	"quiz-rewards-api/internal/scheduler"
	"quiz-rewards-api/internal/service"
	"quiz-rewards-api/internal/session"
	"quiz-rewards-api/internal/tracing"
)

const shutdownTimeout = 10 * time.Second

func main() {
	configFile := flag.String("config", "", "Path to a JSON config file")
	flag.Parse()

	// .env is optional
	_ = godotenv.Load()

	cfg, err := config.LoadConfig(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := logging.NewJSON(os.Stdout, cfg.Log.Level)
	ctx := context.Background()

	if err := cfg.Validate(); err != nil {
		logger.Error(ctx, "invalid configuration", "error", err)
		os.Exit(1)
	}

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error(ctx, "server failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger logging.Logger) error {
	key, err := loadOrGenerateKey(ctx, cfg.Session.SecretKey, logger)
	if err != nil {
		return err
	}

	cat, err := catalog.Load(cfg.Catalog.Path)
	if err != nil {
		return fmt.Errorf("failed to load catalog: %w", err)
	}
	logger.Info(ctx, "catalog loaded",
		"path", cfg.Catalog.Path,
		"quizzes", len(cat.Quizzes()),
		"codes", len(cat.Codes()),
		"wheels", len(cat.Wheels()),
	)

	sink, err := openSink(cfg.Records)
	if err != nil {
		return err
	}
	writer := records.NewWriter(sink, cfg.Records.Workers)
	defer func() {
		if err := writer.Close(); err != nil {
			logger.Error(ctx, "failed to close records", "error", err)
		}
	}()
	logger.Info(ctx, "records ready", "backend", cfg.Records.Backend, "workers", cfg.Records.Workers)

	tracer, err := tracing.InitTracing(tracing.Config{
		Enabled:     cfg.Tracing.Enabled,
		Endpoint:    cfg.Tracing.Endpoint,
		ServiceName: tracing.DefaultServiceName,
		Environment: cfg.Tracing.Environment,
	})
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := tracing.Shutdown(shutdownCtx); err != nil {
			logger.Error(ctx, "failed to flush traces", "error", err)
		}
	}()

	flags := features.Defaults()
	if err := flags.Apply(cfg.Features); err != nil {
		return err
	}
	for _, f := range flags.All() {
		logger.Debug(ctx, "feature flag", "name", f.Name, "enabled", f.Enabled)
	}

	eventManager := events.NewManager(flags.IsEnabled(features.EventLog), logger)
	logEvent := events.LogHandler(logger)
	for _, et := range []events.EventType{
		events.EventSessionStarted,
		events.EventAnswerSubmitted,
		events.EventWheelSpun,
		events.EventRedemptionRecorded,
	} {
		eventManager.Subscribe(et, logEvent)
	}
	defer eventManager.Shutdown()

	if cfg.Scheduler.Enabled {
		interval, err := cfg.Scheduler.IntervalDuration()
		if err != nil {
			return err
		}
		sched, err := scheduler.New(scheduler.NewCodeWatcher(cat, logger), interval, logger)
		if err != nil {
			return err
		}
		sched.Start()
		defer func() {
			if err := sched.Shutdown(); err != nil {
				logger.Error(ctx, "failed to stop scheduler", "error", err)
			}
		}()
	}

	svc := service.NewService(cat, session.NewCodec(key), records.NewRecorder(cat, writer), service.Options{
		Events:   eventManager,
		Features: flags,
		Tracer:   tracer,
		Logger:   logger,
	})
	h := handler.NewHandlerWithOptions(svc, handler.NewHandlerOptions{
		MaxBodySize: cfg.Security.MaxRequestBodySize,
		Logger:      logger,
	})

	var rateLimiter *middleware.RateLimiter
	if cfg.RateLimit.Enabled {
		rateLimiter = middleware.NewRateLimiter(cfg.RateLimit.Rate, time.Duration(cfg.RateLimit.Window)*time.Second)
		defer rateLimiter.Stop()
	}

	server := &http.Server{
		Addr:              cfg.Server.Host + ":" + cfg.Server.Port,
		Handler:           newRouter(h, cfg, rateLimiter),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info(ctx, "starting server", "addr", server.Addr, "tls", cfg.Server.TLSEnabled())
		var err error
		if cfg.Server.TLSEnabled() {
			err = server.ListenAndServeTLS(cfg.Server.CertFile, cfg.Server.KeyFile)
		} else {
			err = server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-errCh:
		return err
	case <-sigCtx.Done():
	}

	logger.Info(ctx, "shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down server: %w", err)
	}
	return nil
}

// loadOrGenerateKey decodes the configured key. Without one, a fresh key
// is generated and logged so the operator can pin it.
func loadOrGenerateKey(ctx context.Context, hexKey string, logger logging.Logger) ([]byte, error) {
	if hexKey != "" {
		key, err := session.LoadKey(hexKey)
		if err != nil {
			return nil, fmt.Errorf("invalid SECRET_KEY: %w", err)
		}
		return key, nil
	}

	key, err := session.GenerateKey()
	if err != nil {
		return nil, err
	}
	logger.Warn(ctx, "Rerun with SECRET_KEY="+hex.EncodeToString(key))
	return key, nil
}

func openSink(cfg config.RecordsConfig) (records.Sink, error) {
	var (
		sink records.Sink
		err  error
	)
	switch cfg.Backend {
	case config.BackendCSV:
		sink, err = records.NewCSVSink(cfg.Path)
	case config.BackendSQLite:
		sink, err = records.NewSQLiteSink(cfg.Path)
	case config.BackendRedis:
		sink, err = records.NewRedisSink(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.RedisKey)
	default:
		return nil, fmt.Errorf("unknown records backend %q", cfg.Backend)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open %s records: %w", cfg.Backend, err)
	}
	return sink, nil
}

func newRouter(h *handler.Handler, cfg *config.Config, rateLimiter *middleware.RateLimiter) *chi.Mux {
	r := chi.NewRouter()

	// Middleware (order matters)
	r.Use(chimw.RequestID)
	if cfg.Security.TrustProxyHeaders {
		r.Use(chimw.RealIP)
	}
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)

	if rateLimiter != nil {
		r.Use(middleware.RateLimitMiddleware(rateLimiter))
	}

	r.Use(middleware.TracingMiddleware(tracing.DefaultServiceName))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.Security.Origins(),
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))

	h.Routes(r)

	return r
}
