// Package bootstrap assembles the job store, providers, polling engine,
// live hub and orchestrator from configuration. Both the API and the
// reconciler binaries start from Build.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"genflow/internal/adapter/repo"
	"genflow/internal/domain"
	"genflow/internal/infra"
	"genflow/internal/infra/credentials"
	"genflow/internal/lifecycle"
	"genflow/internal/live"
	"genflow/internal/orchestrator"
	"genflow/internal/poller"
	"genflow/internal/providers"
	"genflow/internal/providers/heygen"
	"genflow/internal/providers/kie"
	"genflow/internal/providers/qwen"
	"genflow/internal/telemetry"
)

// Stack holds the running components. Close releases them in reverse
// dependency order.
type Stack struct {
	Config    *infra.Config
	Logger    *infra.Logger
	Metrics   *telemetry.Metrics
	Pool      *pgxpool.Pool
	Store     domain.JobStore
	Ledger    domain.CreditLedger
	Providers *providers.Registry
	Lifecycle *lifecycle.Manager
	Engine    *poller.Engine
	Hub       *live.Hub
	Service   *orchestrator.Service

	closers []func() error
}

// Build connects to PostgreSQL (or falls back to the memory store when no
// DATABASE_URL is set) and wires every component around it.
func Build(ctx context.Context, cfg *infra.Config, logger *infra.Logger, metrics *telemetry.Metrics) (*Stack, error) {
	if logger == nil {
		logger = infra.DiscardLogger()
	}
	s := &Stack{Config: cfg, Logger: logger, Metrics: metrics}

	var creds *credentials.Store
	if cfg.UsesMemoryStore() {
		logger.Warn().Msg("DATABASE_URL not set, jobs and credits are kept in memory")
		mem := repo.NewMemoryJobStore(logger)
		s.closers = append(s.closers, func() error { mem.Close(); return nil })
		s.Store = mem
		s.Ledger = repo.NewMemoryCreditLedger()
	} else {
		pool, err := infra.NewDBPool(ctx, cfg)
		if err != nil {
			return nil, err
		}
		s.Pool = pool
		s.closers = append(s.closers, func() error { pool.Close(); return nil })

		runner := infra.NewSQLRunner(pool, *logger)
		if err := repo.EnsureSchema(ctx, runner); err != nil {
			s.Close()
			return nil, err
		}
		feedLogger := logger.With().Str("component", "change_feed").Logger()
		feed, err := repo.NewChangeFeed(cfg.DatabaseURL, &feedLogger)
		if err != nil {
			s.Close()
			return nil, err
		}
		s.closers = append(s.closers, feed.Close)
		s.Store = repo.NewJobStore(runner, feed, logger)
		s.Ledger = repo.NewCreditLedger(runner)
		creds = credentials.NewStore(runner)
	}

	registry, err := buildProviders(ctx, cfg, creds, logger)
	if err != nil {
		s.Close()
		return nil, err
	}
	s.Providers = registry

	dedup, err := buildDedup(ctx, cfg, s)
	if err != nil {
		s.Close()
		return nil, err
	}

	s.Lifecycle = lifecycle.NewManager(lifecycle.Options{Store: s.Store, Logger: logger, Metrics: metrics})
	s.Engine = poller.NewEngine(poller.Options{
		Lifecycle: s.Lifecycle,
		Providers: registry,
		Pending:   s.Store,
		Logger:    logger,
		Metrics:   metrics,
		Tracer:    telemetry.Tracer("poller"),
	})
	s.Hub = live.NewHub(live.Options{
		Store:    s.Store,
		Dedup:    dedup,
		Window:   cfg.NotifyWindow,
		Progress: s.Engine.Progress,
		Logger:   logger,
		Metrics:  metrics,
	})
	s.Service = orchestrator.NewService(orchestrator.Options{
		Store:     s.Store,
		Ledger:    s.Ledger,
		Lifecycle: s.Lifecycle,
		Engine:    s.Engine,
		Providers: registry,
		Hub:       s.Hub,
		Costs:     orchestrator.CostsFromConfig(cfg.CreditCosts),
		Logger:    logger,
		Tracer:    telemetry.Tracer("orchestrator"),
	})
	return s, nil
}

// Ready pings the database when one is configured.
func (s *Stack) Ready(ctx context.Context) error {
	if s.Pool == nil {
		return nil
	}
	return s.Pool.Ping(ctx)
}

// Shutdown stops every poll loop and closes open sessions, then releases
// connections. Loops that outlive ctx are abandoned; their jobs are picked up
// again by the next Resume.
func (s *Stack) Shutdown(ctx context.Context) error {
	var errs []error
	if s.Hub != nil {
		s.Hub.Close()
	}
	if s.Engine != nil {
		if err := s.Engine.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("poller shutdown: %w", err))
		}
	}
	if err := s.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Close releases connections without waiting for poll loops.
func (s *Stack) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	s.closers = nil
	return errors.Join(errs...)
}

func buildProviders(ctx context.Context, cfg *infra.Config, creds *credentials.Store, logger *infra.Logger) (*providers.Registry, error) {
	resolve := func(provider, fromEnv string) string {
		key, err := creds.Resolve(ctx, provider, fromEnv)
		if err != nil {
			logger.Warn().Err(err).Str("provider", provider).Msg("failed to load api key from store")
			return ""
		}
		if key == "" {
			logger.Warn().Str("provider", provider).Msg("api key missing, submissions will fail with AUTH_ERROR")
		}
		return key
	}

	httpClient := &http.Client{Timeout: 60 * time.Second}
	kieKey := resolve(credentials.ProviderKie, cfg.KieAPIKey)

	registry := providers.NewRegistry()
	adapters := []providers.Adapter{
		kie.NewVeoClient(kie.Options{
			APIKey:     kieKey,
			BaseURL:    cfg.KieBaseURL,
			Model:      cfg.KieVideoModel,
			HTTPClient: httpClient,
			Logger:     logger,
		}),
		// Qwen registers before Kie GPT-4o so it is the image default.
		qwen.NewClient(qwen.Options{
			APIKey:     resolve(credentials.ProviderQwen, cfg.QwenAPIKey),
			BaseURL:    cfg.QwenBaseURL,
			Model:      cfg.QwenModel,
			HTTPClient: httpClient,
			Logger:     logger,
		}),
		kie.NewImageClient(kie.Options{
			APIKey:     kieKey,
			BaseURL:    cfg.KieBaseURL,
			HTTPClient: httpClient,
			Logger:     logger,
		}),
		heygen.NewClient(heygen.Options{
			APIKey:     resolve(credentials.ProviderHeyGen, cfg.HeyGenAPIKey),
			BaseURL:    cfg.HeyGenBaseURL,
			HTTPClient: httpClient,
			Logger:     logger,
		}),
	}
	tracer := telemetry.Tracer("providers")
	for _, a := range adapters {
		registry.Register(providers.WithTracing(a, tracer))
	}
	for _, kind := range domain.Kinds {
		if _, err := registry.Default(kind); err != nil {
			return nil, fmt.Errorf("no provider for %s jobs: %w", kind, err)
		}
	}
	return registry, nil
}

func buildDedup(ctx context.Context, cfg *infra.Config, s *Stack) (live.DedupSet, error) {
	if cfg.RedisAddr == "" {
		return live.NewMemoryDedup(0), nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	s.closers = append(s.closers, client.Close)
	s.Logger.Info().Str("addr", cfg.RedisAddr).Msg("notification dedup shared through redis")
	return live.NewRedisDedup(client, 0, "")
}
