package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kpm34/college-football-fantasy-app-sub000/internal/adapter"
	"github.com/kpm34/college-football-fantasy-app-sub000/internal/model"
	"github.com/kpm34/college-football-fantasy-app-sub000/internal/normalize"
	"github.com/kpm34/college-football-fantasy-app-sub000/internal/publish"
	"github.com/kpm34/college-football-fantasy-app-sub000/internal/resolve"
)

// fetchOutcome is one adapter's contribution to the fetch stage.
type fetchOutcome struct {
	name    string
	records []model.RawDataRecord
	err     error
}

func (o *Orchestrator) wrap(a adapter.Adapter, maxRetries int) adapter.Adapter {
	b := o.backoff
	if maxRetries > 0 {
		b.Attempts = maxRetries
	}
	return adapter.NewResilient(a, o.breakers.Get(a.Name()), adapter.ResilientOptions{
		Backoff: b,
		Timeout: o.adapterTimeout,
	})
}

// fetchOne runs a single adapter. A panic becomes the adapter's error.
func (o *Orchestrator) fetchOne(ctx context.Context, r *run, name string) (out fetchOutcome) {
	out.name = name
	defer func() {
		if p := recover(); p != nil {
			out.records, out.err = nil, eris.Errorf("orchestrator: adapter %s panicked: %v", name, p)
		}
	}()

	a, ok := o.deps.Adapters.Get(name)
	if !ok {
		out.err = eris.Errorf("orchestrator: adapter %s not found", name)
		return out
	}
	start := time.Now()
	out.records, out.err = o.wrap(a, r.cfg.Options.MaxRetries).Fetch(ctx, r.cfg.Season, r.cfg.Week)
	r.log.Debug("orchestrator: adapter finished",
		zap.String("adapter", name),
		zap.Int("records", len(out.records)),
		zap.Duration("elapsed", time.Since(start)),
		zap.Error(out.err),
	)
	return out
}

// runAdapters fetches from every configured adapter. One adapter failing
// never affects the others; records merge in configuration order.
func (o *Orchestrator) runAdapters(ctx context.Context, r *run) []model.RawDataRecord {
	stage := &r.result.Stages.Adapters
	start := time.Now()
	defer func() { stage.DurationMS = time.Since(start).Milliseconds() }()

	names := r.cfg.Adapters
	if len(names) == 0 {
		stage.Status = model.StatusSkipped
		r.warn(model.StageAdapters, "no adapters configured")
		return nil
	}

	outcomes := make([]fetchOutcome, len(names))
	if r.cfg.Options.ParallelAdapters {
		var g errgroup.Group
		for i, name := range names {
			g.Go(func() error {
				outcomes[i] = o.fetchOne(ctx, r, name)
				return nil
			})
		}
		_ = g.Wait()
	} else {
		for i, name := range names {
			outcomes[i] = o.fetchOne(ctx, r, name)
		}
	}

	var raw []model.RawDataRecord
	for _, out := range outcomes {
		if out.err != nil {
			stage.AdaptersFailed = append(stage.AdaptersFailed, out.name)
			r.addError(model.StageAdapters, out.name, model.ErrorError, out.err.Error())
			r.log.Warn("orchestrator: adapter failed", zap.String("adapter", out.name), zap.Error(out.err))
			continue
		}
		stage.AdaptersRun = append(stage.AdaptersRun, out.name)
		raw = append(raw, out.records...)
	}
	stage.RecordsFetched = len(raw)

	switch {
	case len(stage.AdaptersFailed) == 0:
		stage.Status = model.StatusSuccess
	case len(stage.AdaptersRun) > 0:
		stage.Status = model.StatusPartial
	default:
		stage.Status = model.StatusFailed
	}
	r.log.Info("orchestrator: adapters complete",
		zap.String("status", string(stage.Status)),
		zap.Int("records", stage.RecordsFetched),
		zap.Strings("failed", stage.AdaptersFailed),
	)
	return raw
}

func (o *Orchestrator) runNormalization(ctx context.Context, r *run, norm *normalize.Normalizer, raw []model.RawDataRecord) []model.NormalizedRecord {
	stage := &r.result.Stages.Normalization
	if r.cfg.Options.SkipNormalization {
		stage.Status = model.StatusSkipped
		return nil
	}
	if len(raw) == 0 {
		stage.Status = model.StatusSkipped
		r.warn(model.StageNormalization, "no raw records to normalize")
		return nil
	}

	start := time.Now()
	defer func() { stage.DurationMS = time.Since(start).Milliseconds() }()

	var res *normalize.Result
	if !r.guard(model.StageNormalization, "normalizer", func() error {
		res = norm.Normalize(ctx, raw, r.cfg.Season, r.cfg.Week)
		return nil
	}) {
		stage.Status = model.StatusFailed
		return nil
	}

	stage.RecordsNormalized = len(res.NormalizedRecords)
	stage.MappingFailures = res.MappingStats.MappingFailures
	stage.DuplicateRecords = res.MappingStats.DuplicateRecords
	for _, ve := range res.ValidationErrors {
		if ve.Severity == model.SeverityError {
			stage.ValidationErrors++
		}
		r.warn(model.StageNormalization, fmt.Sprintf("record %d %s: %s", ve.RecordIndex, ve.Field, ve.Message))
	}

	switch {
	case stage.RecordsNormalized == 0:
		stage.Status = model.StatusFailed
		r.addError(model.StageNormalization, "normalizer", model.ErrorError, "no records survived normalization")
	case stage.ValidationErrors > 0 || stage.MappingFailures > 0:
		stage.Status = model.StatusPartial
	default:
		stage.Status = model.StatusSuccess
	}
	return res.NormalizedRecords
}

func (o *Orchestrator) runResolution(ctx context.Context, r *run, res *resolve.Resolver, recs []model.NormalizedRecord) *model.ResolutionResult {
	stage := &r.result.Stages.Resolution
	if len(recs) == 0 {
		stage.Status = model.StatusSkipped
		return nil
	}
	if r.cfg.Options.SkipResolution {
		stage.Status = model.StatusSkipped
		return passThrough(recs)
	}

	start := time.Now()
	defer func() { stage.DurationMS = time.Since(start).Milliseconds() }()

	var out *model.ResolutionResult
	if !r.guard(model.StageResolution, "resolver", func() error {
		var err error
		out, err = res.Resolve(ctx, recs)
		return err
	}) {
		stage.Status = model.StatusFailed
		return nil
	}

	stage.RecordsResolved = len(out.ResolvedRecords)
	stage.ConflictsResolved = out.ConflictStats.ResolvedConflicts
	stage.ManualOverridesApplied = out.ConflictStats.ManualOverridesApplied
	stage.GroupsFailed = len(out.Failures)
	for _, f := range out.Failures {
		r.addError(model.StageResolution, "resolver", model.ErrorError,
			fmt.Sprintf("player %s season %d week %d: %s", f.PlayerID, f.Season, f.Week, f.Error))
	}

	switch {
	case stage.RecordsResolved == 0:
		stage.Status = model.StatusFailed
	case stage.GroupsFailed > 0:
		stage.Status = model.StatusPartial
	default:
		stage.Status = model.StatusSuccess
	}
	return out
}

// passThrough wraps normalized records unchanged when resolution is skipped.
func passThrough(recs []model.NormalizedRecord) *model.ResolutionResult {
	out := &model.ResolutionResult{
		ResolvedRecords: make([]model.ResolvedRecord, 0, len(recs)),
		DiffLog:         []model.DiffLogEntry{},
	}
	var sum float64
	for _, rec := range recs {
		out.ResolvedRecords = append(out.ResolvedRecords, model.ResolvedRecord{
			NormalizedRecord:       rec,
			ResolutionLog:          []model.ConflictResolution{},
			ManualOverridesApplied: []string{},
			FinalConfidence:        rec.Confidence,
			SourcesMerged:          []model.DataSource{rec.Source},
		})
		sum += rec.Confidence
	}
	out.ConflictStats.AvgConfidence = sum / float64(len(recs))
	return out
}

func (o *Orchestrator) runPublication(ctx context.Context, r *run, res *model.ResolutionResult) {
	stage := &r.result.Stages.Publication
	if r.cfg.Options.SkipPublication {
		stage.Status = model.StatusSkipped
		return
	}
	if res == nil || len(res.ResolvedRecords) == 0 {
		stage.Status = model.StatusSkipped
		r.warn(model.StagePublication, "no resolved records to publish")
		return
	}
	if o.deps.Publisher == nil {
		stage.Status = model.StatusFailed
		r.addError(model.StagePublication, "publisher", model.ErrorCritical, "no publisher configured")
		return
	}

	start := time.Now()
	defer func() { stage.DurationMS = time.Since(start).Milliseconds() }()

	var pub *model.PublishResult
	ok := r.guard(model.StagePublication, "publisher", func() error {
		var err error
		pub, err = o.deps.Publisher.Publish(ctx, res, r.cfg.Season, r.cfg.Week, publish.Options{
			DryRun:         r.cfg.Options.DryRun,
			CreateSnapshot: r.cfg.Options.CreateSnapshot,
		})
		return err
	})
	if pub != nil {
		stage.RecordsCreated = pub.RecordsCreated
		stage.RecordsUpdated = pub.RecordsUpdated
		stage.RecordsPublished = pub.RecordsCreated + pub.RecordsUpdated
		stage.SnapshotPath = pub.SnapshotPath
		stage.SnapshotCreated = pub.SnapshotPath != "" && !r.cfg.Options.DryRun
		for _, msg := range pub.Errors {
			r.addError(model.StagePublication, "publisher", model.ErrorError, msg)
		}
		for _, msg := range pub.Warnings {
			r.warn(model.StagePublication, msg)
		}
	}

	switch {
	case !ok || pub == nil:
		stage.Status = model.StatusFailed
	case pub.Success:
		stage.Status = model.StatusSuccess
	case stage.RecordsPublished > 0:
		stage.Status = model.StatusPartial
	default:
		stage.Status = model.StatusFailed
	}
}
