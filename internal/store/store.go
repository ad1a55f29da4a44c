// Package store persists rosters, resolved depth charts, overrides, the
// diff audit log and ingestion executions.
package store

import (
	"context"

	"github.com/kpm34/college-football-fantasy-app-sub000/internal/db"
	"github.com/kpm34/college-football-fantasy-app-sub000/internal/model"
)

// OverrideFilter narrows ListOverrides. Zero fields match everything.
type OverrideFilter struct {
	PlayerID    string `json:"player_id,omitempty"`
	FieldName   string `json:"field_name,omitempty"`
	Season      int    `json:"season,omitempty"`
	Week        *int   `json:"week,omitempty"`
	ActiveOnly  bool   `json:"active_only,omitempty"`
	PendingOnly bool   `json:"pending_only,omitempty"`
	Limit       int    `json:"limit,omitempty"`
}

// ExecutionFilter narrows ListExecutions.
type ExecutionFilter struct {
	Season int                   `json:"season,omitempty"`
	Week   int                   `json:"week,omitempty"`
	Status model.ExecutionStatus `json:"status,omitempty"`
	Limit  int                   `json:"limit,omitempty"`
}

// Store defines the persistence interface for the ingestion pipeline.
type Store interface {
	// Roster
	ListPlayers(ctx context.Context) ([]model.Player, error)
	UpsertPlayers(ctx context.Context, players []model.Player) (int, error)

	// Resolved depth charts
	ListResolvedRecords(ctx context.Context, season, week int) ([]model.NormalizedRecord, error)
	GetResolvedRecord(ctx context.Context, playerID string, season, week int) (*model.ResolvedRecord, error)
	UpsertResolvedRecords(ctx context.Context, recs []model.ResolvedRecord) (db.UpsertResult, error)

	// Diff audit log
	InsertDiffLog(ctx context.Context, entries []model.DiffLogEntry) (int, error)
	ListDiffLog(ctx context.Context, playerID string, season int) ([]model.DiffLogEntry, error)

	// Manual overrides
	CreateOverride(ctx context.Context, o *model.ManualOverride) error
	GetOverride(ctx context.Context, id string) (*model.ManualOverride, error)
	UpdateOverride(ctx context.Context, o *model.ManualOverride) error
	ListOverrides(ctx context.Context, filter OverrideFilter) ([]model.ManualOverride, error)
	ListActiveOverrides(ctx context.Context, season int) ([]model.ManualOverride, error)

	// Executions
	LogExecutionStart(ctx context.Context, rec model.ExecutionRecord) error
	LogExecutionCompletion(ctx context.Context, executionID string, result *model.IngestionResult) error
	ListExecutions(ctx context.Context, filter ExecutionFilter) ([]model.ExecutionRecord, error)

	// Lifecycle
	Ping(ctx context.Context) error
	Migrate(ctx context.Context) error
	Close() error
}

const defaultListLimit = 100

func listLimit(n int) int {
	if n <= 0 {
		return defaultListLimit
	}
	return n
}

// executionStatus maps a finished run onto its history status.
func executionStatus(result *model.IngestionResult) model.ExecutionStatus {
	if result != nil && result.Success {
		return model.ExecutionSucceeded
	}
	return model.ExecutionFailed
}
