package model

import "time"

// Provenance is a free-form trace of how a raw record was derived.
type Provenance struct {
	Adapter   string            `json:"adapter,omitempty"`
	SourceURL string            `json:"source_url,omitempty"`
	Method    string            `json:"method,omitempty"`
	FetchedAt time.Time         `json:"fetched_at,omitempty"`
	Notes     map[string]string `json:"notes,omitempty"`
}

// RawDataRecord is one observation from one source, as emitted by an adapter.
// Data is source specific and never trusted to contain any particular key.
type RawDataRecord struct {
	Source     DataSource     `json:"source"`
	Timestamp  time.Time      `json:"timestamp"`
	Confidence float64        `json:"confidence"`
	Data       map[string]any `json:"data"`
	Provenance Provenance     `json:"provenance"`
}

// PlayerMatch is the identity matcher's answer for one lookup.
type PlayerMatch struct {
	CollegePlayerID string  `json:"college_player_id"`
	Confidence      float64 `json:"confidence"`
	MatchMethod     string  `json:"match_method,omitempty"`
}

// UsageTrends holds the recency-weighted usage shares computed upstream.
type UsageTrends struct {
	SnapShare1WK   float64 `json:"usage_1w_snap_pct"`
	SnapShare4WK   float64 `json:"usage_4w_snap_pct"`
	RouteShare1WK  float64 `json:"usage_1w_route_pct"`
	RouteShare4WK  float64 `json:"usage_4w_route_pct"`
	CarryShare1WK  float64 `json:"usage_1w_carry_share"`
	CarryShare4WK  float64 `json:"usage_4w_carry_share"`
	TargetShare1WK float64 `json:"usage_1w_target_share"`
	TargetShare4WK float64 `json:"usage_4w_target_share"`
}

// PriorSeason holds last season's share of team volume.
type PriorSeason struct {
	TargetShare float64 `json:"prior_season_target_share"`
	CarryShare  float64 `json:"prior_season_carry_share"`
	YardsShare  float64 `json:"prior_season_yards_share"`
	TDShare     float64 `json:"prior_season_td_share"`
}

// NormalizedRecord is the canonical per-player per-week shape.
type NormalizedRecord struct {
	PlayerID string `json:"player_id"`
	Season   int    `json:"season"`
	Week     int    `json:"week"`
	TeamID   string `json:"team_id"`
	Position string `json:"position"`

	DepthChartRank int     `json:"depth_chart_rank"`
	StarterProb    float64 `json:"starter_prob"`
	SnapShareProj  float64 `json:"snap_share_proj"`

	InjuryStatus InjuryStatus `json:"injury_status"`
	InjuryNote   string       `json:"injury_note,omitempty"`
	InjuryAsOf   time.Time    `json:"injury_as_of"`
	InjurySource string       `json:"injury_source,omitempty"`

	Usage UsageTrends `json:"usage"`
	Prior PriorSeason `json:"prior"`

	Source     DataSource `json:"source"`
	Confidence float64    `json:"confidence"`
	AsOf       time.Time  `json:"as_of"`

	NormalizationWarnings []string     `json:"normalization_warnings,omitempty"`
	PlayerMatch           *PlayerMatch `json:"player_match,omitempty"`
	RawDataHash           string       `json:"raw_data_hash"`
}

// Key returns the identity a record is grouped and stored under.
func (r *NormalizedRecord) Key() RecordKey {
	return RecordKey{PlayerID: r.PlayerID, Season: r.Season, Week: r.Week}
}

// RecordKey is the (player, season, week) identity of a record.
type RecordKey struct {
	PlayerID string
	Season   int
	Week     int
}

// Severity grades a validation finding.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// ValidationError describes one problem found while normalizing a record.
type ValidationError struct {
	RecordIndex int      `json:"record_index"`
	Field       string   `json:"field"`
	ErrorType   string   `json:"error_type"`
	Message     string   `json:"message"`
	Severity    Severity `json:"severity"`
}

// AlternativeValue is a candidate that lost a field resolution.
type AlternativeValue struct {
	Value          any        `json:"value"`
	Source         DataSource `json:"source"`
	Confidence     float64    `json:"confidence"`
	ReasonRejected string     `json:"reason_rejected"`
}

// ConflictResolution records how one contested field was decided.
type ConflictResolution struct {
	FieldName           string             `json:"field_name"`
	FinalValue          any                `json:"final_value"`
	WinningSource       DataSource         `json:"winning_source"`
	Confidence          float64            `json:"confidence"`
	ConflictCount       int                `json:"conflict_count"`
	AlternativeValues   []AlternativeValue `json:"alternative_values"`
	ResolutionReasoning string             `json:"resolution_reasoning"`
}

// ResolvedRecord is a NormalizedRecord after conflict resolution.
type ResolvedRecord struct {
	NormalizedRecord

	ResolutionLog          []ConflictResolution `json:"resolution_log"`
	ManualOverridesApplied []string             `json:"manual_overrides_applied"`
	FinalConfidence        float64              `json:"final_confidence"`
	SourcesMerged          []DataSource         `json:"sources_merged"`
}

// ChangeType classifies a diff log entry.
type ChangeType string

const (
	ChangeCreated  ChangeType = "created"
	ChangeUpdated  ChangeType = "updated"
	ChangeNoChange ChangeType = "no_change"
)

// DiffLogEntry is one audit row comparing a resolved field against last week.
type DiffLogEntry struct {
	PlayerID   string     `json:"player_id"`
	Season     int        `json:"season"`
	Week       int        `json:"week"`
	FieldName  string     `json:"field_name"`
	ChangeType ChangeType `json:"change_type"`
	OldValue   any        `json:"old_value,omitempty"`
	NewValue   any        `json:"new_value,omitempty"`
	Source     DataSource `json:"source"`
	Confidence float64    `json:"confidence"`
	Timestamp  time.Time  `json:"timestamp"`
	Reasoning  string     `json:"reasoning"`
}

// ConflictStats aggregates resolution counters for a batch.
type ConflictStats struct {
	TotalConflicts         int     `json:"total_conflicts"`
	ResolvedConflicts      int     `json:"resolved_conflicts"`
	ManualOverridesApplied int     `json:"manual_overrides_applied"`
	AvgConfidence          float64 `json:"avg_confidence"`
}

// GroupFailure reports a player group that could not be resolved.
type GroupFailure struct {
	PlayerID string `json:"player_id"`
	Season   int    `json:"season"`
	Week     int    `json:"week"`
	Error    string `json:"error"`
}

// ResolutionResult is the resolver's output for one batch.
type ResolutionResult struct {
	ResolvedRecords []ResolvedRecord `json:"resolved_records"`
	ConflictStats   ConflictStats    `json:"conflict_stats"`
	DiffLog         []DiffLogEntry   `json:"diff_log"`
	Failures        []GroupFailure   `json:"failures,omitempty"`
}

// PublishResult is the publisher's report for one batch.
type PublishResult struct {
	Success        bool     `json:"success"`
	RecordsCreated int      `json:"records_created"`
	RecordsUpdated int      `json:"records_updated"`
	RecordsFailed  int      `json:"records_failed"`
	PublicationID  string   `json:"publication_id"`
	SnapshotPath   string   `json:"snapshot_path,omitempty"`
	Errors         []string `json:"errors,omitempty"`
	Warnings       []string `json:"warnings,omitempty"`
}
