package publish

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kpm34/college-football-fantasy-app-sub000/internal/db"
	"github.com/kpm34/college-football-fantasy-app-sub000/internal/model"
	"github.com/kpm34/college-football-fantasy-app-sub000/internal/store"
)

var fixedNow = time.Date(2025, 9, 10, 12, 0, 0, 0, time.UTC)

type fakeStore struct {
	batches   [][]model.ResolvedRecord
	diffs     []model.DiffLogEntry
	upsertErr error
	existing  map[string]bool
}

func (f *fakeStore) UpsertResolvedRecords(_ context.Context, recs []model.ResolvedRecord) (db.UpsertResult, error) {
	if f.upsertErr != nil {
		return db.UpsertResult{}, f.upsertErr
	}
	f.batches = append(f.batches, recs)
	var res db.UpsertResult
	for _, r := range recs {
		if f.existing[r.PlayerID] {
			res.Updated++
		} else {
			res.Inserted++
		}
	}
	return res, nil
}

func (f *fakeStore) InsertDiffLog(_ context.Context, entries []model.DiffLogEntry) (int, error) {
	f.diffs = append(f.diffs, entries...)
	return len(entries), nil
}

func record(player string, rank int, conf float64) model.ResolvedRecord {
	return model.ResolvedRecord{
		NormalizedRecord: model.NormalizedRecord{
			PlayerID: player, Season: 2025, Week: 3, TeamID: "alabama", Position: "QB",
			DepthChartRank: rank, StarterProb: 0.8, InjuryStatus: model.InjuryActive,
			Source: model.SourceTeamNotes, Confidence: conf,
		},
		ResolutionLog: []model.ConflictResolution{{
			FieldName: model.FieldDepthChartRank, WinningSource: model.SourceTeamNotes, FinalValue: float64(rank),
		}},
		FinalConfidence: conf,
		SourcesMerged:   []model.DataSource{model.SourceTeamNotes},
	}
}

func result(recs ...model.ResolvedRecord) *model.ResolutionResult {
	return &model.ResolutionResult{
		ResolvedRecords: recs,
		ConflictStats:   model.ConflictStats{TotalConflicts: len(recs), ResolvedConflicts: len(recs)},
		DiffLog: []model.DiffLogEntry{{
			PlayerID: "p1", Season: 2025, Week: 3, FieldName: model.FieldDepthChartRank,
			ChangeType: model.ChangeUpdated, OldValue: 2.0, NewValue: 1.0, Timestamp: fixedNow,
		}},
	}
}

func newTestPublisher(s Store, dir string) *Publisher {
	return New(s, dir,
		WithNow(func() time.Time { return fixedNow }),
		WithIDGenerator(func() string { return "abc123" }),
	)
}

func TestPublish_WritesAndSnapshots(t *testing.T) {
	fs := &fakeStore{existing: map[string]bool{"p2": true}}
	dir := t.TempDir()
	p := newTestPublisher(fs, dir)

	res, err := p.Publish(context.Background(), result(record("p1", 1, 0.9), record("p2", 2, 0.4), record("p3", 3, 0.8)), 2025, 3,
		Options{CreateSnapshot: true, BatchSize: 2})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, 2, res.RecordsCreated)
	assert.Equal(t, 1, res.RecordsUpdated)
	assert.Len(t, fs.batches, 2)
	assert.Len(t, fs.diffs, 1)
	assert.Equal(t, "20250910T120000Z_abc123", res.PublicationID)
	require.Len(t, res.Warnings, 1)
	assert.Contains(t, res.Warnings[0], "low confidence")

	want := filepath.Join(dir, "2025", "week-3", "2025W3_20250910T120000Z_abc123.json")
	assert.Equal(t, want, res.SnapshotPath)
	snap, err := ReadSnapshot(want)
	require.NoError(t, err)
	assert.Equal(t, 3, snap.TotalRecords)
	assert.Equal(t, SchemaVersion, snap.SchemaVersion)
	assert.Equal(t, []model.DataSource{model.SourceTeamNotes}, snap.DataSources)
	assert.Equal(t, 3, snap.Metadata.Resolution.ConflictsByField[model.FieldDepthChartRank])
	assert.Equal(t, 1, snap.Metadata.Diff.ChangeTypes["updated"])
}

func TestPublish_SnapshotsAreImmutable(t *testing.T) {
	dir := t.TempDir()
	p := newTestPublisher(&fakeStore{}, dir)
	ctx := context.Background()

	_, err := p.Publish(ctx, result(record("p1", 1, 0.9)), 2025, 3, Options{CreateSnapshot: true})
	require.NoError(t, err)
	res, err := p.Publish(ctx, result(record("p1", 2, 0.9)), 2025, 3, Options{CreateSnapshot: true})
	require.NoError(t, err)
	assert.False(t, res.Success)
	require.NotEmpty(t, res.Errors)
	assert.Contains(t, res.Errors[0], "already exists")

	snap, err := ReadSnapshot(res.SnapshotPath)
	require.NoError(t, err)
	assert.Equal(t, 1, snap.Records[0].DepthChartRank)
}

func TestPublish_DryRun(t *testing.T) {
	fs := &fakeStore{}
	dir := t.TempDir()
	res, err := newTestPublisher(fs, dir).Publish(context.Background(), result(record("p1", 1, 0.9)), 2025, 3,
		Options{DryRun: true, CreateSnapshot: true})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Empty(t, fs.batches)
	assert.Empty(t, fs.diffs)
	assert.NotEmpty(t, res.SnapshotPath)
	_, statErr := os.Stat(res.SnapshotPath)
	assert.True(t, os.IsNotExist(statErr))
}

func TestPublish_ValidationFailure(t *testing.T) {
	fs := &fakeStore{}
	bad := record("p1", 0, 0.9)
	bad.TeamID = ""
	res, err := newTestPublisher(fs, t.TempDir()).Publish(context.Background(), result(bad, record("p2", 1, 0.9)), 2025, 3, Options{})
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Empty(t, fs.batches, "nothing written when validation fails")
	assert.Contains(t, res.Errors, "Pre-publication validation failed: 2 critical errors")
}

func TestPublish_WrongWeekRejected(t *testing.T) {
	rec := record("p1", 1, 0.9)
	rec.Week = 2
	res, err := newTestPublisher(&fakeStore{}, t.TempDir()).Publish(context.Background(), result(rec), 2025, 3, Options{})
	require.NoError(t, err)
	assert.False(t, res.Success)
}

func TestPublish_StoreError(t *testing.T) {
	fs := &fakeStore{upsertErr: errors.New("connection refused")}
	res, err := newTestPublisher(fs, t.TempDir()).Publish(context.Background(), result(record("p1", 1, 0.9)), 2025, 3, Options{})
	require.Error(t, err)
	require.NotNil(t, res)
	assert.Equal(t, 1, res.RecordsFailed)
	assert.False(t, res.Success)
}

func TestPublish_NilResult(t *testing.T) {
	_, err := newTestPublisher(&fakeStore{}, t.TempDir()).Publish(context.Background(), nil, 2025, 3, Options{})
	assert.Error(t, err)
}

func TestPublish_SQLiteRoundTrip(t *testing.T) {
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "publish.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	ctx := context.Background()
	require.NoError(t, st.Migrate(ctx))

	p := newTestPublisher(st, t.TempDir())
	res, err := p.Publish(ctx, result(record("p1", 1, 0.9)), 2025, 3, Options{})
	require.NoError(t, err)
	assert.Equal(t, 1, res.RecordsCreated)

	res, err = p.Publish(ctx, result(record("p1", 2, 0.9)), 2025, 3, Options{})
	require.NoError(t, err)
	assert.Equal(t, 1, res.RecordsUpdated)

	got, err := st.GetResolvedRecord(ctx, "p1", 2025, 3)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 2, got.DepthChartRank)

	diffs, err := st.ListDiffLog(ctx, "p1", 2025)
	require.NoError(t, err)
	assert.Len(t, diffs, 2)
}
