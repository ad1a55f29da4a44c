package resolve

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kpm34/college-football-fantasy-app-sub000/internal/model"
)

type fakePrev struct {
	recs  []model.NormalizedRecord
	err   error
	calls []int
}

func (f *fakePrev) ListResolvedRecords(_ context.Context, _ int, week int) ([]model.NormalizedRecord, error) {
	f.calls = append(f.calls, week)
	return f.recs, f.err
}

type fakeOverrides struct {
	ovs []model.ManualOverride
	err error
}

func (f *fakeOverrides) ListActiveOverrides(_ context.Context, _ int) ([]model.ManualOverride, error) {
	return f.ovs, f.err
}

var now = time.Date(2025, 9, 10, 12, 0, 0, 0, time.UTC)

func rec(player string, source model.DataSource, conf float64) model.NormalizedRecord {
	return model.NormalizedRecord{
		PlayerID:       player,
		Season:         2025,
		Week:           3,
		TeamID:         "alabama",
		Position:       "QB",
		DepthChartRank: 1,
		StarterProb:    0.8,
		InjuryStatus:   model.InjuryActive,
		InjuryAsOf:     now,
		Source:         source,
		Confidence:     conf,
		AsOf:           now,
		RawDataHash:    string(source) + player,
	}
}

func newTestResolver(t *testing.T, prev PreviousWeekSource, ovs OverrideSource) *Resolver {
	t.Helper()
	r := New(prev, ovs, WithNow(func() time.Time { return now }))
	require.NoError(t, r.Initialize(context.Background(), 2025, 3))
	return r
}

func findResolution(t *testing.T, rr model.ResolvedRecord, field string) model.ConflictResolution {
	t.Helper()
	for _, cr := range rr.ResolutionLog {
		if cr.FieldName == field {
			return cr
		}
	}
	t.Fatalf("no resolution for %s", field)
	return model.ConflictResolution{}
}

func TestResolve_NoConflictPassThrough(t *testing.T) {
	r := newTestResolver(t, nil, nil)

	res, err := r.Resolve(context.Background(), []model.NormalizedRecord{rec("p1", model.SourceTeamNotes, 0.72)})
	require.NoError(t, err)
	require.Len(t, res.ResolvedRecords, 1)

	rr := res.ResolvedRecords[0]
	assert.Empty(t, rr.ResolutionLog)
	assert.Empty(t, rr.ManualOverridesApplied)
	assert.InDelta(t, 0.72, rr.FinalConfidence, 1e-9)
	assert.Equal(t, []model.DataSource{model.SourceTeamNotes}, rr.SourcesMerged)
	assert.Equal(t, 0, res.ConflictStats.TotalConflicts)
}

func TestResolve_PriorityBeatsConfidence(t *testing.T) {
	r := newTestResolver(t, nil, nil)

	notes := rec("p1", model.SourceTeamNotes, 0.7)
	notes.DepthChartRank = 1
	stats := rec("p1", model.SourceStatsInference, 0.95)
	stats.DepthChartRank = 2

	// Input order must not matter.
	for _, input := range [][]model.NormalizedRecord{{notes, stats}, {stats, notes}} {
		res, err := r.Resolve(context.Background(), input)
		require.NoError(t, err)
		require.Len(t, res.ResolvedRecords, 1)

		rr := res.ResolvedRecords[0]
		assert.Equal(t, 1, rr.DepthChartRank)
		cr := findResolution(t, rr, model.FieldDepthChartRank)
		assert.Equal(t, model.SourceTeamNotes, cr.WinningSource)
		assert.Equal(t, 2, cr.ConflictCount)
		require.Len(t, cr.AlternativeValues, 1)
		assert.Equal(t, model.SourceStatsInference, cr.AlternativeValues[0].Source)
		assert.Contains(t, cr.AlternativeValues[0].ReasonRejected, "Lower source priority")
		assert.Equal(t, 1, res.ConflictStats.TotalConflicts)
		assert.Equal(t, 1, res.ConflictStats.ResolvedConflicts)
	}
}

func TestResolve_ConfidenceStrategyForUsage(t *testing.T) {
	r := newTestResolver(t, nil, nil)

	notes := rec("p1", model.SourceTeamNotes, 0.7)
	notes.Usage.SnapShare1WK = 0.4
	stats := rec("p1", model.SourceStatsInference, 0.95)
	stats.Usage.SnapShare1WK = 0.82

	res, err := r.Resolve(context.Background(), []model.NormalizedRecord{notes, stats})
	require.NoError(t, err)
	rr := res.ResolvedRecords[0]

	assert.InDelta(t, 0.82, rr.Usage.SnapShare1WK, 1e-9)
	cr := findResolution(t, rr, model.FieldUsage1WSnapPct)
	assert.Equal(t, model.SourceStatsInference, cr.WinningSource)
	assert.Equal(t, model.SourceTeamNotes, rr.Source, "primary record stays the highest priority source")
	assert.ElementsMatch(t, []model.DataSource{model.SourceTeamNotes, model.SourceStatsInference}, rr.SourcesMerged)
}

func TestResolve_RecencyStrategy(t *testing.T) {
	r := newTestResolver(t, nil, nil)

	older := rec("p1", model.SourceTeamNotes, 0.9)
	older.AsOf = now.Add(-48 * time.Hour)
	older.InjuryAsOf = now.Add(-48 * time.Hour)
	newer := rec("p1", model.SourceVendorESPN, 0.6)
	newer.AsOf = now.Add(-time.Hour)
	newer.InjuryAsOf = now.Add(-time.Hour)

	res, err := r.Resolve(context.Background(), []model.NormalizedRecord{older, newer})
	require.NoError(t, err)
	rr := res.ResolvedRecords[0]

	assert.Equal(t, newer.InjuryAsOf, rr.InjuryAsOf)
	cr := findResolution(t, rr, model.FieldInjuryAsOf)
	assert.Equal(t, model.SourceVendorESPN, cr.WinningSource)
	assert.Contains(t, cr.AlternativeValues[0].ReasonRejected, "Older data")
}

func TestResolve_AgreeingSourcesCollapse(t *testing.T) {
	r := newTestResolver(t, nil, nil)

	a := rec("p1", model.SourceTeamNotes, 0.9)
	b := rec("p1", model.SourceVendorESPN, 0.8)
	b.StarterProb = 0.8004 // within tolerance
	c := rec("p1", model.SourceVendor247, 0.6)

	res, err := r.Resolve(context.Background(), []model.NormalizedRecord{a, b, c})
	require.NoError(t, err)
	rr := res.ResolvedRecords[0]

	assert.Empty(t, rr.ResolutionLog)
	assert.InDelta(t, 0.9, rr.FinalConfidence, 1e-9, "max of sources when nothing conflicts")
	assert.Equal(t, 0, res.ConflictStats.TotalConflicts)
}

func TestResolve_FillsFieldMissingFromPrimary(t *testing.T) {
	r := newTestResolver(t, nil, nil)

	notes := rec("p1", model.SourceTeamNotes, 0.9)
	espn := rec("p1", model.SourceVendorESPN, 0.8)
	espn.InjuryNote = "ankle, limited in practice"

	res, err := r.Resolve(context.Background(), []model.NormalizedRecord{notes, espn})
	require.NoError(t, err)
	rr := res.ResolvedRecords[0]

	assert.Equal(t, "ankle, limited in practice", rr.InjuryNote)
	assert.Empty(t, rr.ResolutionLog)
	assert.Contains(t, rr.SourcesMerged, model.SourceVendorESPN)
}

func TestResolve_FinalConfidenceClamped(t *testing.T) {
	r := newTestResolver(t, nil, nil)

	sources := []model.DataSource{
		model.SourceTeamNotes, model.SourceVendorESPN, model.SourceVendor247,
		model.SourceVendorOn3, model.SourceCFBDAPI, model.SourceStatsInference,
	}
	var group []model.NormalizedRecord
	for i, s := range sources {
		g := rec("p1", s, 0.99)
		g.Usage.TargetShare4WK = float64(i) / 10
		group = append(group, g)
	}

	res, err := r.Resolve(context.Background(), group)
	require.NoError(t, err)
	rr := res.ResolvedRecords[0]
	require.NotEmpty(t, rr.ResolutionLog)
	assert.LessOrEqual(t, rr.FinalConfidence, 1.0)
	assert.InDelta(t, 1.0, rr.FinalConfidence, 1e-9)
}

func TestFinalConfidence_DiversityBoost(t *testing.T) {
	group := []model.NormalizedRecord{
		rec("p1", model.SourceTeamNotes, 0.7),
		rec("p1", model.SourceStatsInference, 0.5),
	}
	log := []model.ConflictResolution{{Confidence: 0.7}, {Confidence: 0.5}}
	assert.InDelta(t, 0.62, finalConfidence(group, log), 1e-9)
}

func TestResolve_OverrideSupremacy(t *testing.T) {
	ovs := &fakeOverrides{ovs: []model.ManualOverride{{
		ID:            "ov-1",
		PlayerID:      "p1",
		FieldName:     model.FieldInjuryStatus,
		OverrideValue: `"OUT"`,
		Season:        2025,
		Week:          0,
		EffectiveFrom: now.Add(-time.Hour),
		IsActive:      true,
	}}}
	r := newTestResolver(t, nil, ovs)

	notes := rec("p1", model.SourceTeamNotes, 0.9)
	notes.InjuryStatus = model.InjuryActive
	espn := rec("p1", model.SourceVendorESPN, 0.9)
	espn.InjuryStatus = model.InjuryQuestionable

	res, err := r.Resolve(context.Background(), []model.NormalizedRecord{notes, espn})
	require.NoError(t, err)
	rr := res.ResolvedRecords[0]

	assert.Equal(t, model.InjuryOut, rr.InjuryStatus)
	assert.Equal(t, []string{model.FieldInjuryStatus}, rr.ManualOverridesApplied)
	cr := findResolution(t, rr, model.FieldInjuryStatus)
	assert.Equal(t, model.SourceManualOverride, cr.WinningSource)
	assert.Equal(t, "OUT", cr.FinalValue)
	assert.InDelta(t, 1.0, cr.Confidence, 1e-9)
	var superseded bool
	for _, alt := range cr.AlternativeValues {
		if alt.ReasonRejected == "Superseded by manual override" {
			superseded = true
			assert.Equal(t, model.SourceTeamNotes, alt.Source)
		}
	}
	assert.True(t, superseded)
	assert.Equal(t, model.SourceManualOverride, rr.SourcesMerged[0])
	assert.Equal(t, 1, res.ConflictStats.ManualOverridesApplied)
}

func TestResolve_OverrideOnSingleSource(t *testing.T) {
	ovs := &fakeOverrides{ovs: []model.ManualOverride{
		{ID: "a", PlayerID: "p1", FieldName: model.FieldDepthChartRank, OverrideValue: "2", Week: 3, EffectiveFrom: now.Add(-time.Hour), IsActive: true},
		{ID: "b", PlayerID: "p1", FieldName: model.FieldStarterProb, OverrideValue: "0.1", Week: 4, EffectiveFrom: now.Add(-time.Hour), IsActive: true},
		{ID: "c", PlayerID: "p1", FieldName: model.FieldInjuryNote, OverrideValue: "expired", EffectiveFrom: now.Add(-48 * time.Hour), ExpiresAt: ptr(now.Add(-time.Hour)), IsActive: true},
		{ID: "d", PlayerID: "p1", FieldName: model.FieldInjuryNote, OverrideValue: "future", EffectiveFrom: now.Add(time.Hour), IsActive: true},
	}}
	r := newTestResolver(t, nil, ovs)

	res, err := r.Resolve(context.Background(), []model.NormalizedRecord{rec("p1", model.SourceStatsInference, 0.6)})
	require.NoError(t, err)
	rr := res.ResolvedRecords[0]

	assert.Equal(t, 2, rr.DepthChartRank)
	assert.InDelta(t, 0.8, rr.StarterProb, 1e-9, "week 4 override does not apply to week 3")
	assert.Empty(t, rr.InjuryNote)
	assert.Equal(t, []string{model.FieldDepthChartRank}, rr.ManualOverridesApplied)
	assert.Empty(t, rr.ResolutionLog)
	assert.InDelta(t, 0.6, rr.FinalConfidence, 1e-9)
}

func TestResolve_BadOverrideFailsOnlyThatGroup(t *testing.T) {
	ovs := &fakeOverrides{ovs: []model.ManualOverride{{
		ID: "bad", PlayerID: "p1", FieldName: model.FieldStarterProb, OverrideValue: `"very likely"`,
		EffectiveFrom: now.Add(-time.Hour), IsActive: true,
	}}}
	r := newTestResolver(t, nil, ovs)

	res, err := r.Resolve(context.Background(), []model.NormalizedRecord{
		rec("p1", model.SourceTeamNotes, 0.9),
		rec("p2", model.SourceTeamNotes, 0.9),
	})
	require.NoError(t, err)
	require.Len(t, res.ResolvedRecords, 1)
	assert.Equal(t, "p2", res.ResolvedRecords[0].PlayerID)
	require.Len(t, res.Failures, 1)
	assert.Equal(t, "p1", res.Failures[0].PlayerID)
	assert.Contains(t, res.Failures[0].Error, "override bad")
}

func TestResolve_DiffAgainstPreviousWeek(t *testing.T) {
	prevRec := rec("p1", model.SourceTeamNotes, 0.9)
	prevRec.Week = 2
	prevRec.DepthChartRank = 2
	prev := &fakePrev{recs: []model.NormalizedRecord{prevRec}}
	r := newTestResolver(t, prev, nil)
	assert.Equal(t, []int{2}, prev.calls)

	cur := rec("p1", model.SourceTeamNotes, 0.9)
	cur.DepthChartRank = 1
	cur.InjuryAsOf = now.Add(time.Hour)

	res, err := r.Resolve(context.Background(), []model.NormalizedRecord{cur, rec("p9", model.SourceTeamNotes, 0.9)})
	require.NoError(t, err)

	var p1 []model.DiffLogEntry
	var created int
	for _, d := range res.DiffLog {
		if d.PlayerID == "p1" {
			p1 = append(p1, d)
		}
		if d.ChangeType == model.ChangeCreated {
			created++
			assert.Equal(t, "p9", d.PlayerID)
			assert.Equal(t, "_record", d.FieldName)
		}
	}
	require.Len(t, p1, 1)
	assert.Equal(t, model.FieldDepthChartRank, p1[0].FieldName)
	assert.Equal(t, model.ChangeUpdated, p1[0].ChangeType)
	assert.Equal(t, 2, p1[0].OldValue)
	assert.Equal(t, 1, p1[0].NewValue)
	assert.Contains(t, p1[0].Reasoning, "promotion")
	assert.Equal(t, 1, created)
}

func TestInitialize_WeekOneSkipsPreviousWeek(t *testing.T) {
	prev := &fakePrev{}
	r := New(prev, nil)
	require.NoError(t, r.Initialize(context.Background(), 2025, 1))
	assert.Empty(t, prev.calls)
}

func TestInitialize_PreviousWeekErrorIsTolerated(t *testing.T) {
	r := New(&fakePrev{err: errors.New("timeout")}, nil)
	require.NoError(t, r.Initialize(context.Background(), 2025, 5))
}

func TestInitialize_OverrideErrorIsReturned(t *testing.T) {
	r := New(nil, &fakeOverrides{err: errors.New("timeout")})
	err := r.Initialize(context.Background(), 2025, 5)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "load overrides")
}

func TestResolve_BeforeInitialize(t *testing.T) {
	_, err := New(nil, nil).Resolve(context.Background(), nil)
	require.Error(t, err)
}

func TestPickWinner_ManualOnly(t *testing.T) {
	cands := []candidate{
		{value: 1.0, source: model.SourceTeamNotes, confidence: 0.9},
		{value: 3.0, source: model.SourceManualOverride, confidence: 0.2},
	}
	assert.Equal(t, 1, pickWinner(StrategyManualOnly, cands))
	assert.Equal(t, 0, pickWinner(StrategyManualOnly, cands[:1]))

	noManual := []candidate{
		{value: 1.0, source: model.SourceStatsInference},
		{value: 2.0, source: model.SourceTeamNotes},
	}
	assert.Equal(t, 0, pickWinner(StrategyManualOnly, noManual), "falls back to the first candidate")
}

func TestPickWinner_PriorityTieUsesConfidence(t *testing.T) {
	cands := []candidate{
		{value: 1.0, source: model.SourceVendor247, confidence: 0.6},
		{value: 2.0, source: model.SourceVendorOn3, confidence: 0.8},
	}
	assert.Equal(t, 1, pickWinner(StrategyPriority, cands))
}

func TestDecodeOverrideValue(t *testing.T) {
	assert.Equal(t, 2.0, DecodeOverrideValue("2"))
	assert.Equal(t, "OUT", DecodeOverrideValue(`"OUT"`))
	assert.Equal(t, "OUT", DecodeOverrideValue("OUT"))
	assert.Equal(t, "1 2", DecodeOverrideValue("1 2"))
	assert.Equal(t, true, DecodeOverrideValue("true"))
}

func TestLoadStrategies(t *testing.T) {
	path := filepath.Join(t.TempDir(), "strategies.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
resolver:
  default: confidence
  fields:
    injury_status: recency
`), 0o644))

	table, err := LoadStrategies(path)
	require.NoError(t, err)
	assert.Equal(t, StrategyRecency, table.For(model.FieldInjuryStatus))
	assert.Equal(t, StrategyPriority, table.For(model.FieldDepthChartRank), "built-in entries survive")
	assert.Equal(t, StrategyConfidence, table.For("not_in_table"))
}

func TestLoadStrategies_Invalid(t *testing.T) {
	dir := t.TempDir()
	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("resolver:\n  fields:\n    injury_status: coinflip\n"), 0o644))
	_, err := LoadStrategies(bad)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown strategy")

	unknown := filepath.Join(dir, "unknown.yaml")
	require.NoError(t, os.WriteFile(unknown, []byte("resolver:\n  fields:\n    jersey: priority\n"), 0o644))
	_, err = LoadStrategies(unknown)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown field")

	_, err = LoadStrategies(filepath.Join(dir, "missing.yaml"))
	require.Error(t, err)
}

func TestStrategyTable_ZeroValue(t *testing.T) {
	var table StrategyTable
	assert.Equal(t, StrategyConfidence, table.For(model.FieldSnapShareProj))
	assert.Equal(t, StrategyPriority, table.For("anything_else"))
}

func ptr[T any](v T) *T { return &v }
