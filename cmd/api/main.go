package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"genflow/internal/bootstrap"
	"genflow/internal/http/handlers"
	"genflow/internal/http/httpapi"
	"genflow/internal/infra"
	"genflow/internal/telemetry"
)

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}

	logger := infra.NewLogger(cfg.AppEnv)
	logger.Info().Str("env", cfg.AppEnv).Str("port", cfg.Port).Msg("starting genflow api")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.SetupTracing(ctx, telemetry.TraceConfig{
		ServiceName:  "genflow-api",
		Exporter:     cfg.TraceExporter,
		OTLPEndpoint: cfg.OTLPEndpoint,
		OTLPInsecure: cfg.OTLPInsecure,
	}, &logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("tracing setup failed")
	}

	metrics := telemetry.NewMetrics()
	stack, err := bootstrap.Build(ctx, cfg, &logger, metrics)
	if err != nil {
		logger.Fatal().Err(err).Msg("startup failed")
	}

	resumed, err := stack.Service.Resume(ctx)
	if err != nil {
		logger.Error().Err(err).Msg("resume in-flight jobs failed")
	} else {
		logger.Info().Int("jobs", resumed).Msg("resumed in-flight jobs")
	}

	app := handlers.NewApp(stack.Service, metrics, &logger)
	app.Ready = stack.Ready
	router := httpapi.NewRouter(app, httpapi.Options{
		JWTSecret:       cfg.JWTSecret,
		CORSOrigins:     cfg.CORSOrigins,
		RateLimitPerMin: cfg.RateLimitPerMin,
		Logger:          logger,
	})
	srv := infra.NewHTTPServer(cfg, router, &logger)

	serveErr := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", srv.Addr()).Msg("http server listening")
		serveErr <- srv.Start()
	}()

	select {
	case <-ctx.Done():
		logger.Info().Msg("shutdown signal received")
	case err := <-serveErr:
		if err != nil {
			logger.Error().Err(err).Msg("http server stopped")
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	// Open event streams end with their sessions, so the server can drain.
	stack.Hub.Close()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("http server shutdown failed")
	}
	if err := stack.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("stack shutdown failed")
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("tracing shutdown failed")
	}
	logger.Info().Msg("server stopped")
}
