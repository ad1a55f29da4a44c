// Package monitoring watches ingestion runs and posts webhook alerts when
// they fail or thresholds are breached.
package monitoring

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/kpm34/college-football-fantasy-app-sub000/internal/model"
	"github.com/kpm34/college-football-fantasy-app-sub000/internal/resilience"
	"github.com/kpm34/college-football-fantasy-app-sub000/internal/store"
)

// MetricsSnapshot holds a point-in-time view of ingestion health.
type MetricsSnapshot struct {
	// Run metrics (within lookback window).
	RunsTotal         int     `json:"runs_total"`
	RunsSucceeded     int     `json:"runs_succeeded"`
	RunsFailed        int     `json:"runs_failed"`
	RunsRunning       int     `json:"runs_running"`
	RunFailRate       float64 `json:"run_fail_rate"`
	AvgRecordsFetched float64 `json:"avg_records_fetched"`
	AvgDurationMS     float64 `json:"avg_duration_ms"`

	// Adapter circuits.
	OpenBreakers []string `json:"open_breakers,omitempty"`

	// Metadata.
	LookbackHours int       `json:"lookback_hours"`
	CollectedAt   time.Time `json:"collected_at"`
}

// ExecutionLister abstracts the execution log reads needed by the collector.
type ExecutionLister interface {
	ListExecutions(ctx context.Context, filter store.ExecutionFilter) ([]model.ExecutionRecord, error)
}

// BreakerSource reports adapter circuit states.
type BreakerSource interface {
	Snapshot() []resilience.BreakerStatus
}

// Collector gathers metrics from the execution log and breakers.
type Collector struct {
	execs    ExecutionLister
	breakers BreakerSource
	now      func() time.Time
}

// NewCollector creates a new metrics collector. breakers may be nil.
func NewCollector(execs ExecutionLister, breakers BreakerSource) *Collector {
	return &Collector{execs: execs, breakers: breakers, now: time.Now}
}

// collectLimit bounds the history read per collection.
const collectLimit = 5000

// Collect gathers a snapshot over the given lookback window.
func (c *Collector) Collect(ctx context.Context, lookbackHours int) (*MetricsSnapshot, error) {
	now := c.now().UTC()
	snap := &MetricsSnapshot{
		LookbackHours: lookbackHours,
		CollectedAt:   now,
	}
	cutoff := now.Add(-time.Duration(lookbackHours) * time.Hour)

	execs, err := c.execs.ListExecutions(ctx, store.ExecutionFilter{Limit: collectLimit})
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: list executions")
	}

	var fetched, duration float64
	var finished int
	for _, e := range execs {
		if e.StartedAt.Before(cutoff) {
			continue
		}
		snap.RunsTotal++
		switch e.Status {
		case model.ExecutionSucceeded:
			snap.RunsSucceeded++
		case model.ExecutionFailed:
			snap.RunsFailed++
		case model.ExecutionRunning:
			snap.RunsRunning++
		}
		if e.Result != nil {
			finished++
			fetched += float64(e.Result.Stages.Adapters.RecordsFetched)
			duration += float64(e.Result.Performance.TotalDurationMS)
		}
	}

	if done := snap.RunsSucceeded + snap.RunsFailed; done > 0 {
		snap.RunFailRate = float64(snap.RunsFailed) / float64(done)
	}
	if finished > 0 {
		snap.AvgRecordsFetched = fetched / float64(finished)
		snap.AvgDurationMS = duration / float64(finished)
	}

	if c.breakers != nil {
		for _, b := range c.breakers.Snapshot() {
			if b.State == resilience.StateOpen {
				snap.OpenBreakers = append(snap.OpenBreakers, b.Name)
			}
		}
	}
	return snap, nil
}
