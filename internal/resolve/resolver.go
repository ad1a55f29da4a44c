// Package resolve merges normalized records from disagreeing sources into
// one resolved record per player per week.
package resolve

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/kpm34/college-football-fantasy-app-sub000/internal/model"
)

// PreviousWeekSource loads last week's resolved records as a diff baseline.
type PreviousWeekSource interface {
	ListResolvedRecords(ctx context.Context, season, week int) ([]model.NormalizedRecord, error)
}

// OverrideSource loads operator overrides for a season.
type OverrideSource interface {
	ListActiveOverrides(ctx context.Context, season int) ([]model.ManualOverride, error)
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithNow injects the clock used for override activity and diff timestamps.
func WithNow(fn func() time.Time) Option {
	return func(r *Resolver) { r.now = fn }
}

// WithStrategies replaces the field strategy table.
func WithStrategies(t StrategyTable) Option {
	return func(r *Resolver) { r.strategies = t }
}

// Resolver holds the previous-week and override caches for one run.
// Initialize loads them; Resolve only reads them. Construct one Resolver
// per run.
type Resolver struct {
	prev       PreviousWeekSource
	overrides  OverrideSource
	strategies StrategyTable
	now        func() time.Time
	log        *zap.Logger

	season       int
	week         int
	initialized  bool
	previousWeek map[string]model.NormalizedRecord
	playerOvr    map[string][]model.ManualOverride
}

// New creates a Resolver. Either source may be nil, in which case that
// cache stays empty.
func New(prev PreviousWeekSource, overrides OverrideSource, opts ...Option) *Resolver {
	r := &Resolver{
		prev:       prev,
		overrides:  overrides,
		strategies: DefaultStrategyTable(),
		now:        time.Now,
		log:        zap.L().With(zap.String("component", "resolver")),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Initialize loads the previous week's records (skipped for week 1) and the
// season's active overrides. A previous-week load failure only costs the
// diff baseline and is logged; an override load failure is returned.
func (r *Resolver) Initialize(ctx context.Context, season, week int) error {
	r.season, r.week = season, week
	r.previousWeek = make(map[string]model.NormalizedRecord)
	r.playerOvr = make(map[string][]model.ManualOverride)

	if r.prev != nil && week > 1 {
		recs, err := r.prev.ListResolvedRecords(ctx, season, week-1)
		if err != nil {
			r.log.Warn("resolve: previous week unavailable, diffs will report created",
				zap.Int("season", season), zap.Int("week", week-1), zap.Error(err))
		}
		for _, rec := range recs {
			r.previousWeek[rec.PlayerID] = rec
		}
	}

	if r.overrides != nil {
		ovs, err := r.overrides.ListActiveOverrides(ctx, season)
		if err != nil {
			return eris.Wrapf(err, "resolve: load overrides for season %d", season)
		}
		for _, o := range ovs {
			r.playerOvr[o.PlayerID] = append(r.playerOvr[o.PlayerID], o)
		}
	}

	r.initialized = true
	r.log.Info("resolve: initialized",
		zap.Int("season", season),
		zap.Int("week", week),
		zap.Int("previous_records", len(r.previousWeek)),
		zap.Int("override_players", len(r.playerOvr)),
	)
	return nil
}

// groupOutcome is the per-group result collected by Resolve.
type groupOutcome struct {
	record    model.ResolvedRecord
	conflicts int
	overrides int
}

// Resolve groups records by (player, season, week) and resolves each group.
// A failing group is logged, excluded from the output and listed in
// Failures; the rest of the batch is unaffected.
func (r *Resolver) Resolve(ctx context.Context, records []model.NormalizedRecord) (*model.ResolutionResult, error) {
	if !r.initialized {
		return nil, eris.New("resolve: Resolve called before Initialize")
	}

	res := &model.ResolutionResult{
		ResolvedRecords: []model.ResolvedRecord{},
		DiffLog:         []model.DiffLogEntry{},
	}

	keys, groups := groupRecords(records)
	var confSum float64
	for _, key := range keys {
		if err := ctx.Err(); err != nil {
			return nil, eris.Wrap(err, "resolve: canceled")
		}

		out, conflicts, err := r.resolveGroup(groups[key])
		res.ConflictStats.TotalConflicts += conflicts
		if err != nil {
			r.log.Error("resolve: group failed",
				zap.String("player_id", key.PlayerID),
				zap.Int("season", key.Season),
				zap.Int("week", key.Week),
				zap.Error(err),
			)
			res.Failures = append(res.Failures, model.GroupFailure{
				PlayerID: key.PlayerID,
				Season:   key.Season,
				Week:     key.Week,
				Error:    err.Error(),
			})
			continue
		}

		res.ConflictStats.ResolvedConflicts += out.conflicts
		res.ConflictStats.ManualOverridesApplied += out.overrides
		confSum += out.record.FinalConfidence
		res.ResolvedRecords = append(res.ResolvedRecords, out.record)
		res.DiffLog = append(res.DiffLog, r.diff(&out.record)...)
	}

	if n := len(res.ResolvedRecords); n > 0 {
		res.ConflictStats.AvgConfidence = confSum / float64(n)
	}

	r.log.Info("resolve: batch complete",
		zap.Int("records", len(records)),
		zap.Int("resolved", len(res.ResolvedRecords)),
		zap.Int("conflicts", res.ConflictStats.TotalConflicts),
		zap.Int("overrides", res.ConflictStats.ManualOverridesApplied),
		zap.Int("failed_groups", len(res.Failures)),
	)
	return res, nil
}

// groupRecords buckets records by key, preserving first-seen key order.
func groupRecords(records []model.NormalizedRecord) ([]model.RecordKey, map[model.RecordKey][]model.NormalizedRecord) {
	groups := make(map[model.RecordKey][]model.NormalizedRecord)
	var keys []model.RecordKey
	for _, rec := range records {
		k := rec.Key()
		if _, ok := groups[k]; !ok {
			keys = append(keys, k)
		}
		groups[k] = append(groups[k], rec)
	}
	return keys, groups
}

// orderGroup sorts a group into resolution order: source priority, then
// confidence, then recency, then hash so the order is total.
func orderGroup(group []model.NormalizedRecord) []model.NormalizedRecord {
	out := make([]model.NormalizedRecord, len(group))
	copy(out, group)
	sort.SliceStable(out, func(i, j int) bool {
		a, b := &out[i], &out[j]
		if pa, pb := a.Source.Priority(), b.Source.Priority(); pa != pb {
			return pa > pb
		}
		if a.Confidence != b.Confidence {
			return a.Confidence > b.Confidence
		}
		if !a.AsOf.Equal(b.AsOf) {
			return a.AsOf.After(b.AsOf)
		}
		return a.RawDataHash < b.RawDataHash
	})
	return out
}

// resolveGroup resolves one player's records. conflicts is the number of
// contested fields found, reported even when err is non-nil.
func (r *Resolver) resolveGroup(group []model.NormalizedRecord) (out groupOutcome, conflicts int, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = eris.Errorf("resolve: panic: %v", p)
		}
	}()

	ordered := orderGroup(group)
	primary := ordered[0]
	rec := model.ResolvedRecord{
		NormalizedRecord:       primary,
		ResolutionLog:          []model.ConflictResolution{},
		ManualOverridesApplied: []string{},
	}
	rec.NormalizationWarnings = append([]string(nil), primary.NormalizationWarnings...)

	if len(ordered) == 1 {
		rec.FinalConfidence = primary.Confidence
		rec.SourcesMerged = []model.DataSource{primary.Source}
	} else {
		merged := map[model.DataSource]bool{primary.Source: true}
		for _, f := range model.ResolvableFields {
			cands := collectCandidates(ordered, f.Name)
			if len(cands) == 0 {
				continue
			}
			if len(cands) == 1 {
				// Fill a field the primary did not report.
				if _, ok := primary.FieldValue(f.Name); !ok {
					if err := rec.SetFieldValue(f.Name, cands[0].value); err != nil {
						return out, conflicts, eris.Wrapf(err, "resolve: fill %s", f.Name)
					}
					merged[cands[0].source] = true
				}
				continue
			}
			conflicts++
			cr := resolveField(f.Name, r.strategies.For(f.Name), cands)
			if err := rec.SetFieldValue(f.Name, cr.FinalValue); err != nil {
				return out, conflicts, eris.Wrapf(err, "resolve: apply %s", f.Name)
			}
			merged[cr.WinningSource] = true
			rec.ResolutionLog = append(rec.ResolutionLog, cr)
		}
		rec.SourcesMerged = sortedSources(merged)
		rec.FinalConfidence = finalConfidence(ordered, rec.ResolutionLog)
	}

	applied, err := r.applyOverrides(&rec)
	if err != nil {
		return out, conflicts, err
	}

	return groupOutcome{record: rec, conflicts: conflicts, overrides: applied}, conflicts, nil
}

// finalConfidence averages the winning confidences and adds a diversity
// boost of 0.02 per extra source, up to 0.1, capped at 1. Without conflicts
// it is the best single-source confidence.
func finalConfidence(group []model.NormalizedRecord, log []model.ConflictResolution) float64 {
	if len(log) == 0 {
		best := 0.0
		for _, g := range group {
			best = math.Max(best, g.Confidence)
		}
		return math.Min(1, best)
	}

	var sum float64
	for _, cr := range log {
		sum += cr.Confidence
	}
	sources := make(map[model.DataSource]bool)
	for _, g := range group {
		sources[g.Source] = true
	}
	boost := math.Min(0.1, float64(len(sources)-1)*0.02)
	return math.Max(0, math.Min(1, sum/float64(len(log))+boost))
}

func sortedSources(set map[model.DataSource]bool) []model.DataSource {
	out := make([]model.DataSource, 0, len(set))
	for s := range set {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		if pi, pj := out[i].Priority(), out[j].Priority(); pi != pj {
			return pi > pj
		}
		return out[i] < out[j]
	})
	return out
}

func describe(v any) string {
	if t, ok := v.(time.Time); ok {
		return t.Format(time.RFC3339)
	}
	return fmt.Sprint(v)
}
