package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kpm34/college-football-fantasy-app-sub000/internal/db"
	"github.com/kpm34/college-football-fantasy-app-sub000/internal/model"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	st, err := NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func resolved(player string, week, rank int) model.ResolvedRecord {
	return model.ResolvedRecord{
		NormalizedRecord: model.NormalizedRecord{
			PlayerID:       player,
			Season:         2025,
			Week:           week,
			TeamID:         "alabama",
			Position:       "QB",
			DepthChartRank: rank,
			StarterProb:    0.75,
			InjuryStatus:   model.InjuryActive,
			Source:         model.SourceTeamNotes,
			Confidence:     0.9,
			AsOf:           time.Date(2025, 9, 1, 0, 0, 0, 0, time.UTC),
		},
		ManualOverridesApplied: []string{},
		FinalConfidence:        0.92,
		SourcesMerged:          []model.DataSource{model.SourceTeamNotes},
	}
}

func TestSQLite_Players(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	n, err := st.UpsertPlayers(ctx, []model.Player{
		{ID: "cp-2", Name: "Ryan Williams", TeamID: "alabama", Position: "WR"},
		{ID: "cp-1", Name: "Jalen Milroe", TeamID: "alabama", Position: "QB", Jersey: "4"},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	_, err = st.UpsertPlayers(ctx, []model.Player{{ID: "cp-1", Name: "Jalen Milroe", TeamID: "alabama", Position: "QB", Jersey: "5"}})
	require.NoError(t, err)

	players, err := st.ListPlayers(ctx)
	require.NoError(t, err)
	require.Len(t, players, 2)
	assert.Equal(t, "cp-1", players[0].ID)
	assert.Equal(t, "5", players[0].Jersey)
}

func TestSQLite_ResolvedRecords(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	res, err := st.UpsertResolvedRecords(ctx, []model.ResolvedRecord{resolved("p1", 3, 2), resolved("p2", 3, 1)})
	require.NoError(t, err)
	assert.Equal(t, db.UpsertResult{Inserted: 2}, res)

	res, err = st.UpsertResolvedRecords(ctx, []model.ResolvedRecord{resolved("p1", 3, 1), resolved("p3", 3, 1)})
	require.NoError(t, err)
	assert.Equal(t, db.UpsertResult{Inserted: 1, Updated: 1}, res)

	recs, err := st.ListResolvedRecords(ctx, 2025, 3)
	require.NoError(t, err)
	require.Len(t, recs, 3)
	assert.Equal(t, "p1", recs[0].PlayerID)
	assert.Equal(t, 1, recs[0].DepthChartRank)

	got, err := st.GetResolvedRecord(ctx, "p2", 2025, 3)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.InDelta(t, 0.92, got.FinalConfidence, 1e-9)
	assert.Equal(t, []model.DataSource{model.SourceTeamNotes}, got.SourcesMerged)

	missing, err := st.GetResolvedRecord(ctx, "p2", 2025, 4)
	require.NoError(t, err)
	assert.Nil(t, missing)

	empty, err := st.ListResolvedRecords(ctx, 2025, 2)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestSQLite_DiffLog(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	ts := time.Date(2025, 9, 10, 0, 0, 0, 0, time.UTC)

	n, err := st.InsertDiffLog(ctx, []model.DiffLogEntry{
		{PlayerID: "p1", Season: 2025, Week: 3, FieldName: model.FieldDepthChartRank, ChangeType: model.ChangeUpdated,
			OldValue: 2, NewValue: 1, Source: model.SourceTeamNotes, Confidence: 0.9, Timestamp: ts, Reasoning: "Depth chart promotion from 2 to 1"},
		{PlayerID: "p1", Season: 2025, Week: 2, FieldName: "_record", ChangeType: model.ChangeCreated,
			NewValue: 2, Source: model.SourceTeamNotes, Confidence: 0.9, Timestamp: ts},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	entries, err := st.ListDiffLog(ctx, "p1", 2025)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, model.ChangeCreated, entries[0].ChangeType)
	assert.Nil(t, entries[0].OldValue)
	assert.Equal(t, 2.0, entries[1].OldValue)
	assert.Equal(t, 1.0, entries[1].NewValue)
	assert.True(t, ts.Equal(entries[1].Timestamp))
}

func TestSQLite_Overrides(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	from := time.Date(2025, 9, 1, 0, 0, 0, 0, time.UTC)
	expires := from.Add(72 * time.Hour)

	active := &model.ManualOverride{PlayerID: "p1", FieldName: model.FieldInjuryStatus, OverrideValue: `"OUT"`,
		Season: 2025, EffectiveFrom: from, ExpiresAt: &expires, IsActive: true, CreatedBy: "ops"}
	require.NoError(t, st.CreateOverride(ctx, active))
	assert.NotEmpty(t, active.ID)

	pending := &model.ManualOverride{PlayerID: "p2", FieldName: model.FieldDepthChartRank, OverrideValue: "1",
		Season: 2025, Week: 3, EffectiveFrom: from, NeedsApproval: true, CreatedAt: from.Add(time.Hour)}
	require.NoError(t, st.CreateOverride(ctx, pending))

	other := &model.ManualOverride{PlayerID: "p3", FieldName: model.FieldInjuryNote, OverrideValue: `"ankle"`,
		Season: 2024, EffectiveFrom: from, IsActive: true}
	require.NoError(t, st.CreateOverride(ctx, other))

	got, err := st.GetOverride(ctx, active.ID)
	require.NoError(t, err)
	assert.Equal(t, `"OUT"`, got.OverrideValue)
	require.NotNil(t, got.ExpiresAt)
	assert.True(t, expires.Equal(*got.ExpiresAt))
	assert.True(t, got.IsActive)

	list, err := st.ListActiveOverrides(ctx, 2025)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, active.ID, list[0].ID)

	pendingList, err := st.ListOverrides(ctx, OverrideFilter{PendingOnly: true})
	require.NoError(t, err)
	require.Len(t, pendingList, 1)
	assert.Nil(t, pendingList[0].ExpiresAt)

	week := 3
	byWeek, err := st.ListOverrides(ctx, OverrideFilter{Season: 2025, Week: &week})
	require.NoError(t, err)
	require.Len(t, byWeek, 1)
	assert.Equal(t, "p2", byWeek[0].PlayerID)

	pending.IsActive, pending.NeedsApproval, pending.ApprovedBy = true, false, "lead"
	require.NoError(t, st.UpdateOverride(ctx, pending))
	list, err = st.ListActiveOverrides(ctx, 2025)
	require.NoError(t, err)
	assert.Len(t, list, 2)

	_, err = st.GetOverride(ctx, "missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "override not found")

	err = st.UpdateOverride(ctx, &model.ManualOverride{ID: "missing"})
	require.Error(t, err)
}

func TestSQLite_Executions(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	start := time.Date(2025, 9, 10, 12, 0, 0, 0, time.UTC)

	for i, id := range []string{"2025W3_a", "2025W3_b"} {
		require.NoError(t, st.LogExecutionStart(ctx, model.ExecutionRecord{
			ExecutionID: id,
			Season:      2025,
			Week:        3,
			Config:      model.IngestionConfig{Season: 2025, Week: 3, Adapters: []string{"espn"}},
			StartedAt:   start.Add(time.Duration(i) * time.Minute),
		}))
	}

	result := &model.IngestionResult{ExecutionID: "2025W3_a", Season: 2025, Week: 3, Success: true,
		StartedAt: start, CompletedAt: start.Add(30 * time.Second)}
	require.NoError(t, st.LogExecutionCompletion(ctx, "2025W3_a", result))

	execs, err := st.ListExecutions(ctx, ExecutionFilter{Season: 2025})
	require.NoError(t, err)
	require.Len(t, execs, 2)
	assert.Equal(t, "2025W3_b", execs[0].ExecutionID, "newest first")
	assert.Equal(t, model.ExecutionRunning, execs[0].Status)
	assert.Nil(t, execs[0].CompletedAt)
	assert.Nil(t, execs[0].Result)
	assert.Equal(t, []string{"espn"}, execs[0].Config.Adapters)

	assert.Equal(t, model.ExecutionSucceeded, execs[1].Status)
	require.NotNil(t, execs[1].Result)
	assert.True(t, execs[1].Result.Success)
	require.NotNil(t, execs[1].CompletedAt)

	ok, err := st.ListExecutions(ctx, ExecutionFilter{Status: model.ExecutionSucceeded})
	require.NoError(t, err)
	assert.Len(t, ok, 1)

	err = st.LogExecutionCompletion(ctx, "nope", result)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "execution not found")
}

func TestSQLite_Ping(t *testing.T) {
	st := newTestSQLiteStore(t)
	assert.NoError(t, st.Ping(context.Background()))
}
