package main

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/sells-group/marketflow-cli/internal/audit"
	"github.com/sells-group/marketflow-cli/internal/cache"
	"github.com/sells-group/marketflow-cli/internal/collector"
	"github.com/sells-group/marketflow-cli/internal/fetch"
	"github.com/sells-group/marketflow-cli/internal/monitoring"
	"github.com/sells-group/marketflow-cli/internal/reconcile"
	"github.com/sells-group/marketflow-cli/internal/source"
)

// appEnv holds the initialized components shared by the data commands.
type appEnv struct {
	Cache     *cache.Service
	Engine    *reconcile.Engine
	Trends    *collector.TrendCollector
	Gainers   *collector.GainersCollector
	Charts    *collector.ChartCollector
	Investors *collector.InvestorsCollector
	Monitor   *monitoring.Collector

	auditPool *pgxpool.Pool
}

// Close releases resources held by the environment.
func (e *appEnv) Close() {
	if e.auditPool != nil {
		e.auditPool.Close()
	}
	if e.Cache != nil {
		if err := e.Cache.Store().Close(); err != nil {
			zap.L().Warn("close cache store", zap.Error(err))
		}
	}
}

// initApp wires the cache, sources, engine, and collectors from the
// loaded config. Callers should defer env.Close().
func initApp(ctx context.Context) (*appEnv, error) {
	env := &appEnv{}

	store := cache.NewStore(cache.StoreOptions{
		MaxRows:       cfg.Cache.MaxRows,
		PruneInterval: cfg.Cache.PruneInterval,
	})
	env.Cache = cache.NewService(cache.NewMemoryCache(cfg.Cache.MaxEntries), store)

	fetcher := fetch.NewHTTPFetcher(fetch.HTTPOptions{
		RateLimiters: fetch.DefaultRateLimiters(),
	})

	registry := source.NewRegistry(fetcher, source.Endpoints{
		ExchangeBaseURL: cfg.Sources.ExchangeBaseURL,
		VendorBaseURL:   cfg.Sources.VendorBaseURL,
		VendorAPIKey:    cfg.Sources.VendorAPIKey,
	})
	sources, err := registry.Ordered(cfg.Sources.Priority)
	if err != nil {
		return nil, err
	}

	rcfg := reconcile.DefaultConfig()
	if cfg.Reconcile.ConfigPath != "" {
		if rcfg, err = reconcile.LoadConfig(cfg.Reconcile.ConfigPath); err != nil {
			return nil, err
		}
	}
	if cfg.Reconcile.WindowDays > 0 {
		rcfg.WindowDays = cfg.Reconcile.WindowDays
	}

	var opts []reconcile.Option
	if cfg.Audit.DSN != "" {
		pool, err := audit.NewPool(ctx, cfg.Audit.DSN)
		if err != nil {
			return nil, err
		}
		recorder := audit.NewRecorder(pool)
		if err := recorder.EnsureSchema(ctx); err != nil {
			pool.Close()
			return nil, err
		}
		env.auditPool = pool
		opts = append(opts, reconcile.WithAuditSink(recorder))
	}

	env.Engine = reconcile.NewEngine(rcfg, sources, opts...)
	env.Trends = collector.NewTrendCollector(env.Cache, env.Engine, cfg.DataDir, rcfg.WindowDays)
	env.Gainers = collector.NewGainersCollector(env.Cache, env.Trends, cfg.DataDir)
	env.Charts = collector.NewChartCollector(env.Cache, cfg.DataDir)
	env.Investors = collector.NewInvestorsCollector(env.Cache, cfg.DataDir)
	env.Monitor = monitoring.NewCollector(env.Cache, env.Engine)

	return env, nil
}
