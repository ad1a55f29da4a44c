package monitoring

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kpm34/college-football-fantasy-app-sub000/internal/model"
	"github.com/kpm34/college-football-fantasy-app-sub000/internal/resilience"
	"github.com/kpm34/college-football-fantasy-app-sub000/internal/store"
)

var fixedNow = time.Date(2025, 9, 10, 12, 0, 0, 0, time.UTC)

type mockExecs struct {
	execs []model.ExecutionRecord
	err   error
}

func (m *mockExecs) ListExecutions(_ context.Context, filter store.ExecutionFilter) ([]model.ExecutionRecord, error) {
	if m.err != nil {
		return nil, m.err
	}
	var out []model.ExecutionRecord
	for _, e := range m.execs {
		if filter.Status != "" && e.Status != filter.Status {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

type mockBreakers []resilience.BreakerStatus

func (m mockBreakers) Snapshot() []resilience.BreakerStatus { return m }

func execAt(status model.ExecutionStatus, age time.Duration, fetched int, durMS int64) model.ExecutionRecord {
	rec := model.ExecutionRecord{
		ExecutionID: "x",
		Status:      status,
		StartedAt:   fixedNow.Add(-age),
	}
	if status != model.ExecutionRunning {
		rec.Result = &model.IngestionResult{
			Success:     status == model.ExecutionSucceeded,
			Performance: model.PerformanceMetrics{TotalDurationMS: durMS},
		}
		rec.Result.Stages.Adapters.RecordsFetched = fetched
	}
	return rec
}

func newTestCollector(execs ExecutionLister, b BreakerSource) *Collector {
	c := NewCollector(execs, b)
	c.now = func() time.Time { return fixedNow }
	return c
}

func TestCollector_Collect(t *testing.T) {
	execs := &mockExecs{execs: []model.ExecutionRecord{
		execAt(model.ExecutionSucceeded, time.Hour, 100, 2000),
		execAt(model.ExecutionSucceeded, 2*time.Hour, 50, 1000),
		execAt(model.ExecutionFailed, 3*time.Hour, 0, 300),
		execAt(model.ExecutionRunning, time.Minute, 0, 0),
		execAt(model.ExecutionFailed, 48*time.Hour, 0, 0),
	}}
	breakers := mockBreakers{
		{Name: "espn", State: resilience.StateOpen, Failures: 5},
		{Name: "team_notes", State: resilience.StateClosed},
	}

	snap, err := newTestCollector(execs, breakers).Collect(context.Background(), 24)
	require.NoError(t, err)

	assert.Equal(t, 4, snap.RunsTotal)
	assert.Equal(t, 2, snap.RunsSucceeded)
	assert.Equal(t, 1, snap.RunsFailed)
	assert.Equal(t, 1, snap.RunsRunning)
	assert.InDelta(t, 1.0/3.0, snap.RunFailRate, 0.001)
	assert.InDelta(t, 50.0, snap.AvgRecordsFetched, 0.001)
	assert.InDelta(t, 1100.0, snap.AvgDurationMS, 0.001)
	assert.Equal(t, []string{"espn"}, snap.OpenBreakers)
	assert.Equal(t, 24, snap.LookbackHours)
	assert.Equal(t, fixedNow, snap.CollectedAt)
}

func TestCollector_Empty(t *testing.T) {
	snap, err := newTestCollector(&mockExecs{}, nil).Collect(context.Background(), 24)
	require.NoError(t, err)
	assert.Zero(t, snap.RunsTotal)
	assert.Zero(t, snap.RunFailRate)
	assert.Nil(t, snap.OpenBreakers)
}

func TestCollector_ListError(t *testing.T) {
	_, err := newTestCollector(&mockExecs{err: errors.New("db down")}, nil).Collect(context.Background(), 24)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "monitoring: list executions")
}
