package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"genflow/internal/bootstrap"
	"genflow/internal/infra"
	"genflow/internal/telemetry"
)

const defaultReconcileEvery = time.Minute

// resumer re-enters jobs that are pending or processing but not tracked in
// this process.
type resumer interface {
	Resume(ctx context.Context) (int, error)
}

type reconciler struct {
	jobs   resumer
	every  time.Duration
	logger infra.Logger
}

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv).With().Str("cmd", "worker").Logger()
	if cfg.UsesMemoryStore() {
		logger.Fatal().Msg("worker: DATABASE_URL is required, the memory store is not shared between processes")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.SetupTracing(ctx, telemetry.TraceConfig{
		ServiceName:  "genflow-worker",
		Exporter:     cfg.TraceExporter,
		OTLPEndpoint: cfg.OTLPEndpoint,
		OTLPInsecure: cfg.OTLPInsecure,
	}, &logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: tracing setup failed")
	}

	stack, err := bootstrap.Build(ctx, cfg, &logger, telemetry.NewMetrics())
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: startup failed")
	}

	r := &reconciler{jobs: stack.Service, every: cfg.ReconcileEvery, logger: logger}
	if err := r.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error().Err(err).Msg("worker: stopped with error")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := stack.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("worker: shutdown incomplete")
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("worker: tracing shutdown failed")
	}
	logger.Info().Msg("worker: stopped")
}

// Run resumes once immediately and then on every tick until ctx is done.
func (r *reconciler) Run(ctx context.Context) error {
	every := r.every
	if every <= 0 {
		every = defaultReconcileEvery
	}
	r.logger.Info().Dur("every", every).Msg("worker: reconciler started")

	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		r.reconcile(ctx)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (r *reconciler) reconcile(ctx context.Context) {
	n, err := r.jobs.Resume(ctx)
	if err != nil {
		if ctx.Err() == nil {
			r.logger.Error().Err(err).Msg("worker: reconcile failed")
		}
		return
	}
	if n > 0 {
		r.logger.Info().Int("jobs", n).Msg("worker: resumed jobs")
	}
}
