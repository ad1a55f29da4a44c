// Package orchestrator runs one ingestion pass for a (season, week):
// adapters, normalization, conflict resolution and publication.
package orchestrator

import (
	"context"
	"fmt"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kpm34/college-football-fantasy-app-sub000/internal/adapter"
	"github.com/kpm34/college-football-fantasy-app-sub000/internal/model"
	"github.com/kpm34/college-football-fantasy-app-sub000/internal/normalize"
	"github.com/kpm34/college-football-fantasy-app-sub000/internal/publish"
	"github.com/kpm34/college-football-fantasy-app-sub000/internal/resilience"
	"github.com/kpm34/college-football-fantasy-app-sub000/internal/resolve"
	"github.com/kpm34/college-football-fantasy-app-sub000/internal/store"
)

// Publisher persists a resolution result.
type Publisher interface {
	Publish(ctx context.Context, res *model.ResolutionResult, season, week int, opts publish.Options) (*model.PublishResult, error)
}

// ExecutionLog records runs and serves their history.
type ExecutionLog interface {
	LogExecutionStart(ctx context.Context, rec model.ExecutionRecord) error
	LogExecutionCompletion(ctx context.Context, executionID string, result *model.IngestionResult) error
	ListExecutions(ctx context.Context, filter store.ExecutionFilter) ([]model.ExecutionRecord, error)
	Ping(ctx context.Context) error
}

// Notifier is told about every finished run.
type Notifier interface {
	Notify(ctx context.Context, result *model.IngestionResult) error
}

// Deps are the collaborators of an Orchestrator. PreviousWeek, Overrides,
// ExecutionLog and Publisher may be nil.
type Deps struct {
	Adapters     *adapter.Registry
	Matcher      normalize.PlayerMatcher
	PreviousWeek resolve.PreviousWeekSource
	Overrides    resolve.OverrideSource
	Publisher    Publisher
	ExecutionLog ExecutionLog
}

// Orchestrator coordinates ingestion runs. It is safe to call Execute
// concurrently; each run builds its own normalizer and resolver.
type Orchestrator struct {
	deps           Deps
	breakers       *resilience.Breakers
	backoff        resilience.Backoff
	adapterTimeout time.Duration
	strategies     resolve.StrategyTable
	minMatch       float64
	warnMatch      float64
	notifier       Notifier
	now            func() time.Time
	log            *zap.Logger
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithNow sets the clock.
func WithNow(fn func() time.Time) Option {
	return func(o *Orchestrator) { o.now = fn }
}

// WithBreakers shares a breaker set across orchestrators.
func WithBreakers(b *resilience.Breakers) Option {
	return func(o *Orchestrator) { o.breakers = b }
}

// WithBackoff sets the adapter retry policy. Attempts is replaced by the
// run's max_retries when that is set.
func WithBackoff(b resilience.Backoff) Option {
	return func(o *Orchestrator) { o.backoff = b }
}

// WithAdapterTimeout bounds each adapter attempt.
func WithAdapterTimeout(d time.Duration) Option {
	return func(o *Orchestrator) { o.adapterTimeout = d }
}

// WithStrategies sets the resolver strategy table.
func WithStrategies(t resolve.StrategyTable) Option {
	return func(o *Orchestrator) { o.strategies = t }
}

// WithMatchThresholds sets the normalizer match thresholds.
func WithMatchThresholds(minConfidence, warnConfidence float64) Option {
	return func(o *Orchestrator) { o.minMatch, o.warnMatch = minConfidence, warnConfidence }
}

// WithNotifier registers a run notifier.
func WithNotifier(n Notifier) Option {
	return func(o *Orchestrator) { o.notifier = n }
}

// New creates an Orchestrator.
func New(deps Deps, opts ...Option) *Orchestrator {
	if deps.Adapters == nil {
		deps.Adapters = adapter.NewRegistry()
	}
	o := &Orchestrator{
		deps:           deps,
		breakers:       resilience.NewBreakers(resilience.DefaultBreakerConfig()),
		backoff:        resilience.DefaultBackoff(),
		adapterTimeout: 30 * time.Second,
		strategies:     resolve.DefaultStrategyTable(),
		minMatch:       normalize.DefaultMinMatchConfidence,
		warnMatch:      normalize.DefaultWarnMatchConfidence,
		now:            time.Now,
		log:            zap.L().With(zap.String("component", "orchestrator")),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Breakers returns the adapter circuit breakers.
func (o *Orchestrator) Breakers() *resilience.Breakers { return o.breakers }

// run carries the state of one Execute call.
type run struct {
	cfg     model.IngestionConfig
	result  *model.IngestionResult
	log     *zap.Logger
	now     func() time.Time
	peakMB  float64
	started time.Time
}

func (r *run) addError(stage, component string, sev model.ErrorSeverity, msg string) {
	r.result.Errors = append(r.result.Errors, model.IngestionError{
		Stage:     stage,
		Component: component,
		Message:   msg,
		Severity:  sev,
		Timestamp: r.now().UTC(),
	})
}

func (r *run) warn(stage, msg string) {
	r.result.Warnings = append(r.result.Warnings, stage+": "+msg)
}

// sampleHeap records the heap high-water mark between stages.
func (r *run) sampleHeap() {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	r.peakMB = max(r.peakMB, float64(ms.HeapAlloc)/(1<<20))
}

// guard runs fn, turning an error or a panic into a critical error for the
// stage. It reports whether fn completed cleanly.
func (r *run) guard(stage, component string, fn func() error) (ok bool) {
	defer func() {
		if p := recover(); p != nil {
			r.log.Error("orchestrator: stage panicked", zap.String("stage", stage), zap.Any("panic", p))
			r.addError(stage, component, model.ErrorCritical, fmt.Sprintf("%s panicked: %v", component, p))
			ok = false
		}
	}()
	if err := fn(); err != nil {
		r.log.Error("orchestrator: stage failed", zap.String("stage", stage), zap.Error(err))
		r.addError(stage, component, model.ErrorCritical, err.Error())
		return false
	}
	return true
}

// Execute runs the pipeline for cfg. It never returns an error: every
// failure is reported in the returned result.
func (o *Orchestrator) Execute(ctx context.Context, cfg model.IngestionConfig) *model.IngestionResult {
	start := o.now().UTC()
	id := NewExecutionID(cfg.Season, cfg.Week, start)
	r := &run{
		cfg: cfg,
		result: &model.IngestionResult{
			ExecutionID: id,
			Season:      cfg.Season,
			Week:        cfg.Week,
			DryRun:      cfg.Options.DryRun,
			StartedAt:   start,
			Errors:      []model.IngestionError{},
			Warnings:    []string{},
			Stages: model.Stages{
				Adapters:      model.AdapterStage{Status: model.StatusPending, AdaptersRun: []string{}, AdaptersFailed: []string{}},
				Normalization: model.NormalizationStage{Status: model.StatusPending},
				Resolution:    model.ResolutionStage{Status: model.StatusPending},
				Publication:   model.PublicationStage{Status: model.StatusPending},
			},
		},
		log: o.log.With(
			zap.String("execution_id", id),
			zap.Int("season", cfg.Season),
			zap.Int("week", cfg.Week),
		),
		now:     o.now,
		started: start,
	}
	r.log.Info("orchestrator: starting run", zap.Strings("adapters", cfg.Adapters), zap.Bool("dry_run", cfg.Options.DryRun))
	o.logStart(ctx, r)

	r.guard(model.StageOrchestrator, "orchestrator", func() error {
		o.pipeline(ctx, r)
		return nil
	})
	o.finish(ctx, r)
	return r.result
}

func (o *Orchestrator) pipeline(ctx context.Context, r *run) {
	norm := normalize.New(o.deps.Matcher, normalize.WithThresholds(o.minMatch, o.warnMatch), normalize.WithNow(o.now))
	res := resolve.New(o.deps.PreviousWeek, o.deps.Overrides, resolve.WithStrategies(o.strategies), resolve.WithNow(o.now))

	if !r.guard(model.StageOrchestrator, "orchestrator", func() error {
		return o.initialize(ctx, r, norm, res)
	}) {
		st := &r.result.Stages
		st.Adapters.Status = model.StatusFailed
		st.Normalization.Status = model.StatusFailed
		st.Resolution.Status = model.StatusFailed
		st.Publication.Status = model.StatusFailed
		return
	}

	raw := o.runAdapters(ctx, r)
	r.sampleHeap()
	normalized := o.runNormalization(ctx, r, norm, raw)
	r.sampleHeap()
	resolution := o.runResolution(ctx, r, res, normalized)
	r.sampleHeap()
	o.runPublication(ctx, r, resolution)
	r.sampleHeap()
}

// initialize loads normalizer and resolver reference data concurrently.
// Normalization that is skipped does not need the matcher.
func (o *Orchestrator) initialize(ctx context.Context, r *run, norm *normalize.Normalizer, res *resolve.Resolver) error {
	g, gctx := errgroup.WithContext(ctx)
	if !r.cfg.Options.SkipNormalization {
		g.Go(func() error { return norm.Initialize(gctx) })
	}
	if !r.cfg.Options.SkipResolution {
		g.Go(func() error { return res.Initialize(gctx, r.cfg.Season, r.cfg.Week) })
	}
	return g.Wait()
}

func (o *Orchestrator) finish(ctx context.Context, r *run) {
	res := r.result
	completed := o.now().UTC()
	res.CompletedAt = completed

	st := &res.Stages
	for _, s := range []*model.StageStatus{&st.Adapters.Status, &st.Normalization.Status, &st.Resolution.Status, &st.Publication.Status} {
		if *s == model.StatusPending {
			*s = model.StatusFailed
		}
	}
	res.Success = !res.HasCritical() &&
		st.Adapters.RecordsFetched > 0 &&
		st.Normalization.Status.Acceptable() &&
		st.Resolution.Status.Acceptable() &&
		st.Publication.Status.Acceptable()

	r.sampleHeap()
	total := completed.Sub(r.started)
	res.Performance = model.PerformanceMetrics{
		TotalDurationMS: total.Milliseconds(),
		PeakHeapMB:      r.peakMB,
		Goroutines:      runtime.NumGoroutine(),
	}
	if secs := total.Seconds(); secs > 0 {
		res.Performance.RecordsPerSecond = float64(st.Adapters.RecordsFetched) / secs
	}

	if o.deps.ExecutionLog != nil {
		if err := o.deps.ExecutionLog.LogExecutionCompletion(ctx, res.ExecutionID, res); err != nil {
			r.log.Warn("orchestrator: failed to log execution completion", zap.Error(err))
		}
	}
	if o.notifier != nil {
		if err := o.notifier.Notify(ctx, res); err != nil {
			r.log.Warn("orchestrator: notifier failed", zap.Error(err))
		}
	}

	r.log.Info("orchestrator: run complete",
		zap.Bool("success", res.Success),
		zap.Int64("duration_ms", res.Performance.TotalDurationMS),
		zap.Int("errors", len(res.Errors)),
		zap.Int("warnings", len(res.Warnings)),
	)
}

func (o *Orchestrator) logStart(ctx context.Context, r *run) {
	if o.deps.ExecutionLog == nil {
		return
	}
	err := o.deps.ExecutionLog.LogExecutionStart(ctx, model.ExecutionRecord{
		ExecutionID: r.result.ExecutionID,
		Season:      r.cfg.Season,
		Week:        r.cfg.Week,
		Status:      model.ExecutionRunning,
		Config:      r.cfg,
		StartedAt:   r.started,
	})
	if err != nil {
		r.log.Warn("orchestrator: failed to log execution start", zap.Error(err))
	}
}

// History lists recent runs for a season, newest first.
func (o *Orchestrator) History(ctx context.Context, season, limit int) ([]model.ExecutionRecord, error) {
	if o.deps.ExecutionLog == nil {
		return nil, nil
	}
	return o.deps.ExecutionLog.ListExecutions(ctx, store.ExecutionFilter{Season: season, Limit: limit})
}

// NewExecutionID formats <season>W<week>_<base36 unix ms>_<random>.
func NewExecutionID(season, week int, at time.Time) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:6]
	return fmt.Sprintf("%dW%d_%s_%s", season, week, strconv.FormatInt(at.UnixMilli(), 36), suffix)
}
