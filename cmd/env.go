package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/kpm34/college-football-fantasy-app-sub000/internal/adapter"
	"github.com/kpm34/college-football-fantasy-app-sub000/internal/config"
	"github.com/kpm34/college-football-fantasy-app-sub000/internal/matcher"
	"github.com/kpm34/college-football-fantasy-app-sub000/internal/monitoring"
	"github.com/kpm34/college-football-fantasy-app-sub000/internal/orchestrator"
	"github.com/kpm34/college-football-fantasy-app-sub000/internal/publish"
	"github.com/kpm34/college-football-fantasy-app-sub000/internal/resilience"
	"github.com/kpm34/college-football-fantasy-app-sub000/internal/resolve"
	"github.com/kpm34/college-football-fantasy-app-sub000/internal/store"
)

func initStore(ctx context.Context, c *config.Config) (store.Store, error) {
	var (
		st  store.Store
		err error
	)
	switch c.Store.Driver {
	case "sqlite":
		dsn := c.Store.DatabaseURL
		if dsn == "" {
			dsn = "depthchart.db"
		}
		st, err = store.NewSQLite(dsn)
	case "postgres":
		st, err = store.NewPostgres(ctx, c.Store.DatabaseURL, &store.PoolConfig{
			MaxConns: c.Store.MaxConns,
			MinConns: c.Store.MinConns,
		})
	default:
		return nil, eris.Errorf("unsupported store driver: %s", c.Store.Driver)
	}
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close() //nolint:errcheck
		return nil, err
	}
	return st, nil
}

// pipelineEnv holds the wired collaborators shared by run and serve.
type pipelineEnv struct {
	Store        store.Store
	Orchestrator *orchestrator.Orchestrator
	Alerter      *monitoring.Alerter
	Breakers     *resilience.Breakers
}

// Close releases the store.
func (e *pipelineEnv) Close() {
	if e.Store != nil {
		e.Store.Close() //nolint:errcheck
	}
}

func buildPipeline(ctx context.Context, c *config.Config) (*pipelineEnv, error) {
	st, err := initStore(ctx, c)
	if err != nil {
		return nil, err
	}
	env, err := wirePipeline(st, c)
	if err != nil {
		st.Close() //nolint:errcheck
		return nil, err
	}
	return env, nil
}

// wirePipeline builds the orchestrator over an open store.
func wirePipeline(st store.Store, c *config.Config) (*pipelineEnv, error) {
	reg, err := adapter.BuildRegistry(c.Adapters.Feeds)
	if err != nil {
		return nil, err
	}

	strategies := resolve.DefaultStrategyTable()
	if c.Resolver.StrategyFile != "" {
		if strategies, err = resolve.LoadStrategies(c.Resolver.StrategyFile); err != nil {
			return nil, err
		}
	}

	breakers := resilience.NewBreakers(resilience.BreakerConfig{
		Threshold: c.Ingest.BreakerThreshold,
		Cooldown:  time.Duration(c.Ingest.BreakerCooldownSec) * time.Second,
	})
	alerter := monitoring.NewAlerter(c.Monitoring)

	backoff := resilience.DefaultBackoff()
	if c.Ingest.MaxRetries > 0 {
		backoff.Attempts = c.Ingest.MaxRetries
	}

	var matchOpts []matcher.Option
	if c.Matcher.CacheTTLMins > 0 {
		matchOpts = append(matchOpts, matcher.WithCacheTTL(time.Duration(c.Matcher.CacheTTLMins)*time.Minute))
	}

	orch := orchestrator.New(orchestrator.Deps{
		Adapters:     reg,
		Matcher:      matcher.New(st, matchOpts...),
		PreviousWeek: st,
		Overrides:    st,
		Publisher:    publish.New(st, c.Ingest.SnapshotDir),
		ExecutionLog: st,
	},
		orchestrator.WithBreakers(breakers),
		orchestrator.WithBackoff(backoff),
		orchestrator.WithAdapterTimeout(c.Ingest.AdapterTimeout()),
		orchestrator.WithStrategies(strategies),
		orchestrator.WithMatchThresholds(c.Matcher.MinConfidence, c.Matcher.WarnConfidence),
		orchestrator.WithNotifier(alerter),
	)
	return &pipelineEnv{Store: st, Orchestrator: orch, Alerter: alerter, Breakers: breakers}, nil
}
