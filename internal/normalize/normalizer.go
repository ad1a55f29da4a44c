// Package normalize turns loosely typed adapter records into canonical
// per-player records.
package normalize

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/kpm34/college-football-fantasy-app-sub000/internal/model"
)

// PlayerMatcher resolves a source's player description to a canonical id.
// MapPlayer returns nil when no candidate is found.
type PlayerMatcher interface {
	Initialize(ctx context.Context) error
	MapPlayer(ctx context.Context, name, team, position, jersey string) (*model.PlayerMatch, error)
}

// Default match thresholds.
const (
	DefaultMinMatchConfidence  = 0.5
	DefaultWarnMatchConfidence = 0.8
)

// MappingStats summarizes one Normalize call.
type MappingStats struct {
	Total              int     `json:"total"`
	SuccessfullyMapped int     `json:"successfully_mapped"`
	MappingFailures    int     `json:"mapping_failures"`
	ValidationFailures int     `json:"validation_failures"`
	DuplicateRecords   int     `json:"duplicate_records"`
	AvgConfidence      float64 `json:"avg_confidence"`
}

// Result is the output of Normalize.
type Result struct {
	Success           bool                     `json:"success"`
	NormalizedRecords []model.NormalizedRecord `json:"normalized_records"`
	ValidationErrors  []model.ValidationError  `json:"validation_errors"`
	MappingStats      MappingStats             `json:"mapping_stats"`
}

// Stats reports cumulative counters since construction or the last Reset.
type Stats struct {
	Batches      int          `json:"batches"`
	DedupEntries int          `json:"dedup_entries"`
	Totals       MappingStats `json:"totals"`
}

// Option configures a Normalizer.
type Option func(*Normalizer)

// WithThresholds overrides the match confidence thresholds.
func WithThresholds(minConfidence, warnConfidence float64) Option {
	return func(n *Normalizer) {
		n.minMatch = minConfidence
		n.warnMatch = warnConfidence
	}
}

// WithNow injects the clock used for default timestamps.
func WithNow(fn func() time.Time) Option {
	return func(n *Normalizer) { n.now = fn }
}

type seenEntry struct {
	batch int
	index int
}

// Normalizer is stateful: Initialize must succeed before Normalize, and
// Reset must be called between unrelated batches so dedup state from one
// batch does not suppress records in the next. A Normalizer is not safe for
// concurrent use.
type Normalizer struct {
	matcher   PlayerMatcher
	minMatch  float64
	warnMatch float64
	now       func() time.Time
	log       *zap.Logger

	initialized bool
	batch       int
	seen        map[string]seenEntry
	totals      MappingStats
}

// New creates a Normalizer backed by matcher.
func New(matcher PlayerMatcher, opts ...Option) *Normalizer {
	n := &Normalizer{
		matcher:   matcher,
		minMatch:  DefaultMinMatchConfidence,
		warnMatch: DefaultWarnMatchConfidence,
		now:       time.Now,
		log:       zap.L().With(zap.String("component", "normalizer")),
		seen:      make(map[string]seenEntry),
	}
	for _, o := range opts {
		o(n)
	}
	return n
}

// Initialize loads the matcher's reference data.
func (n *Normalizer) Initialize(ctx context.Context) error {
	if n.matcher == nil {
		return eris.New("normalize: no player matcher configured")
	}
	if err := n.matcher.Initialize(ctx); err != nil {
		return eris.Wrap(err, "normalize: initialize matcher")
	}
	n.initialized = true
	return nil
}

// Reset clears all dedup state and cumulative counters.
func (n *Normalizer) Reset() {
	n.seen = make(map[string]seenEntry)
	n.batch = 0
	n.totals = MappingStats{}
}

// Stats returns cumulative counters since the last Reset.
func (n *Normalizer) Stats() Stats {
	return Stats{Batches: n.batch, DedupEntries: len(n.seen), Totals: n.totals}
}

// Normalize canonicalizes raw into NormalizedRecords for (season, week).
// A bad record never aborts the batch; its problems are reported in the
// result. Calling Normalize before Initialize returns an unsuccessful
// result with a single error entry.
func (n *Normalizer) Normalize(ctx context.Context, raw []model.RawDataRecord, season, week int) *Result {
	res := &Result{
		NormalizedRecords: []model.NormalizedRecord{},
		ValidationErrors:  []model.ValidationError{},
	}
	res.MappingStats.Total = len(raw)

	if !n.initialized {
		res.ValidationErrors = append(res.ValidationErrors, model.ValidationError{
			RecordIndex: -1,
			ErrorType:   "not_initialized",
			Message:     "normalizer used before Initialize",
			Severity:    model.SeverityError,
		})
		return res
	}

	n.batch++
	for i := range raw {
		if err := ctx.Err(); err != nil {
			res.ValidationErrors = append(res.ValidationErrors, model.ValidationError{
				RecordIndex: i,
				ErrorType:   "canceled",
				Message:     err.Error(),
				Severity:    model.SeverityError,
			})
			break
		}

		rec, findings, mapped := n.normalizeRecord(ctx, i, &raw[i], season, week)
		res.ValidationErrors = append(res.ValidationErrors, findings...)
		if !mapped {
			res.MappingStats.MappingFailures++
			continue
		}
		res.MappingStats.SuccessfullyMapped++
		if rec == nil {
			res.MappingStats.ValidationFailures++
			continue
		}
		if n.dedup(res, rec) {
			res.MappingStats.DuplicateRecords++
		}
	}

	var sum float64
	for i := range res.NormalizedRecords {
		sum += res.NormalizedRecords[i].Confidence
	}
	if len(res.NormalizedRecords) > 0 {
		res.MappingStats.AvgConfidence = sum / float64(len(res.NormalizedRecords))
	}
	res.Success = !hasError(res.ValidationErrors)
	n.accumulate(res.MappingStats)

	n.log.Info("normalize: batch complete",
		zap.Int("season", season),
		zap.Int("week", week),
		zap.Int("total", res.MappingStats.Total),
		zap.Int("normalized", len(res.NormalizedRecords)),
		zap.Int("mapping_failures", res.MappingStats.MappingFailures),
		zap.Int("validation_failures", res.MappingStats.ValidationFailures),
		zap.Int("duplicates", res.MappingStats.DuplicateRecords),
	)
	return res
}

// dedup adds rec to the result unless an equal-hash record was already
// kept. Within one batch the higher confidence copy wins and ties keep the
// first; a copy kept by an earlier batch always wins. Reports whether rec
// collided.
func (n *Normalizer) dedup(res *Result, rec *model.NormalizedRecord) bool {
	prev, ok := n.seen[rec.RawDataHash]
	if !ok {
		n.seen[rec.RawDataHash] = seenEntry{batch: n.batch, index: len(res.NormalizedRecords)}
		res.NormalizedRecords = append(res.NormalizedRecords, *rec)
		return false
	}
	if prev.batch == n.batch && rec.Confidence > res.NormalizedRecords[prev.index].Confidence {
		res.NormalizedRecords[prev.index] = *rec
	}
	return true
}

func (n *Normalizer) accumulate(s MappingStats) {
	t := &n.totals
	prevKept := float64(t.SuccessfullyMapped - t.ValidationFailures - t.DuplicateRecords)
	kept := float64(s.SuccessfullyMapped - s.ValidationFailures - s.DuplicateRecords)
	if prevKept+kept > 0 {
		t.AvgConfidence = (t.AvgConfidence*prevKept + s.AvgConfidence*kept) / (prevKept + kept)
	}
	t.Total += s.Total
	t.SuccessfullyMapped += s.SuccessfullyMapped
	t.MappingFailures += s.MappingFailures
	t.ValidationFailures += s.ValidationFailures
	t.DuplicateRecords += s.DuplicateRecords
}

// normalizeRecord maps one raw record. mapped is false when the player
// could not be identified; rec is nil when the record was rejected.
func (n *Normalizer) normalizeRecord(ctx context.Context, idx int, raw *model.RawDataRecord, season, week int) (rec *model.NormalizedRecord, findings []model.ValidationError, mapped bool) {
	data := raw.Data
	if data == nil {
		data = map[string]any{}
	}

	name := extractString(data, nameKeys...)
	teamID := NormalizeTeam(extractString(data, teamKeys...))
	position := NormalizePosition(extractString(data, positionKeys...))
	jersey := extractString(data, jerseyKeys...)

	if name == "" {
		findings = append(findings, model.ValidationError{
			RecordIndex: idx,
			Field:       "player_name",
			ErrorType:   "missing_player_name",
			Message:     "record has no player name",
			Severity:    model.SeverityWarning,
		})
		return nil, findings, false
	}

	match, err := n.matcher.MapPlayer(ctx, name, teamID, position, jersey)
	if err != nil {
		n.log.Warn("normalize: matcher failed", zap.Int("record", idx), zap.String("name", name), zap.Error(err))
		findings = append(findings, model.ValidationError{
			RecordIndex: idx,
			Field:       "player_name",
			ErrorType:   "mapping_failed",
			Message:     fmt.Sprintf("match %q: %v", name, err),
			Severity:    model.SeverityError,
		})
		return nil, findings, false
	}
	if match == nil || match.Confidence < n.minMatch {
		n.log.Debug("normalize: player not matched", zap.Int("record", idx), zap.String("name", name), zap.String("team", teamID))
		return nil, findings, false
	}

	now := n.now()
	source := model.ParseDataSource(extractString(data, "source"))
	if source == model.SourceUnknown {
		source = model.ParseDataSource(string(raw.Source))
	}

	confidence := extractNumber(data, math.NaN(), confidenceKeys...)
	if math.IsNaN(confidence) {
		confidence = raw.Confidence
		if confidence == 0 {
			confidence = 0.5
		}
	}
	confidence = math.Max(0, math.Min(1, confidence))

	asOf, ok := extractTime(data, asOfKeys...)
	if !ok {
		asOf = raw.Timestamp
		if asOf.IsZero() {
			asOf = now
		}
	}
	injuryAsOf, ok := extractTime(data, "injury_as_of")
	if !ok {
		injuryAsOf = asOf
	}
	injurySource := string(source)
	if s := extractString(data, "injury_source"); s != "" {
		injurySource = string(model.ParseDataSource(s))
	}

	rec = &model.NormalizedRecord{
		PlayerID:       match.CollegePlayerID,
		Season:         season,
		Week:           week,
		TeamID:         teamID,
		Position:       position,
		DepthChartRank: int(math.Round(extractNumber(data, 1, rankKeys...))),
		StarterProb:    extractNumber(data, 0.5, starterKeys...),
		SnapShareProj:  extractNumber(data, 0, snapProjKeys...),
		InjuryStatus:   NormalizeInjuryStatus(extractString(data, injuryKeys...)),
		InjuryNote:     extractString(data, injuryNoteKeys...),
		InjuryAsOf:     injuryAsOf,
		InjurySource:   injurySource,
		Source:         source,
		Confidence:     confidence,
		AsOf:           asOf,
		PlayerMatch:    match,
	}
	for _, f := range model.ResolvableFields {
		if f.Category != model.CategoryUsage || f.Name == model.FieldSnapShareProj {
			continue
		}
		// Usage and prior-season fields are keyed by their canonical names.
		if err := rec.SetFieldValue(f.Name, extractNumber(data, 0, f.Name)); err != nil {
			findings = append(findings, model.ValidationError{
				RecordIndex: idx,
				Field:       f.Name,
				ErrorType:   "invalid_value",
				Message:     err.Error(),
				Severity:    model.SeverityError,
			})
			return nil, findings, true
		}
	}

	if match.Confidence < n.warnMatch {
		rec.NormalizationWarnings = append(rec.NormalizationWarnings,
			fmt.Sprintf("low player match confidence %.2f for %q", match.Confidence, name))
	}
	rec.RawDataHash = RawDataHash(rec)

	checks := validateRecord(idx, rec)
	findings = append(findings, checks...)
	if hasError(checks) {
		return nil, findings, true
	}
	for _, c := range checks {
		rec.NormalizationWarnings = append(rec.NormalizationWarnings, c.Message)
	}
	return rec, findings, true
}
