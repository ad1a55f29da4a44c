package model

import "time"

// StageStatus is the outcome of one pipeline stage.
type StageStatus string

const (
	StatusSuccess StageStatus = "success"
	StatusPartial StageStatus = "partial"
	StatusFailed  StageStatus = "failed"
	StatusSkipped StageStatus = "skipped"
	StatusPending StageStatus = "pending"
)

// Acceptable reports whether the status lets a run count as successful.
func (s StageStatus) Acceptable() bool {
	return s == StatusSuccess || s == StatusPartial || s == StatusSkipped
}

// Pipeline stage names.
const (
	StageAdapters      = "adapters"
	StageNormalization = "normalization"
	StageResolution    = "resolution"
	StagePublication   = "publication"
	StageOrchestrator  = "orchestrator"
)

// IngestionOptions toggles run behaviour.
type IngestionOptions struct {
	DryRun            bool `json:"dry_run" mapstructure:"dry_run"`
	SkipNormalization bool `json:"skip_normalization" mapstructure:"skip_normalization"`
	SkipResolution    bool `json:"skip_resolution" mapstructure:"skip_resolution"`
	SkipPublication   bool `json:"skip_publication" mapstructure:"skip_publication"`
	CreateSnapshot    bool `json:"create_snapshot" mapstructure:"create_snapshot"`
	ParallelAdapters  bool `json:"parallel_adapters" mapstructure:"parallel_adapters"`
	MaxRetries        int  `json:"max_retries" mapstructure:"max_retries"`
}

// IngestionConfig is the input to one run.
type IngestionConfig struct {
	Season   int              `json:"season"`
	Week     int              `json:"week"`
	Adapters []string         `json:"adapters"`
	Options  IngestionOptions `json:"options"`
}

// ErrorSeverity grades a run-level error.
type ErrorSeverity string

const (
	ErrorCritical ErrorSeverity = "critical"
	ErrorError    ErrorSeverity = "error"
	ErrorWarning  ErrorSeverity = "warning"
)

// IngestionError is one problem reported by a run.
type IngestionError struct {
	Stage     string        `json:"stage"`
	Component string        `json:"component"`
	Message   string        `json:"message"`
	Severity  ErrorSeverity `json:"severity"`
	Timestamp time.Time     `json:"timestamp"`
}

// AdapterStage summarizes the fetch stage.
type AdapterStage struct {
	Status         StageStatus `json:"status"`
	RecordsFetched int         `json:"records_fetched"`
	AdaptersRun    []string    `json:"adapters_run"`
	AdaptersFailed []string    `json:"adapters_failed"`
	DurationMS     int64       `json:"duration_ms"`
}

// NormalizationStage summarizes the normalization stage.
type NormalizationStage struct {
	Status            StageStatus `json:"status"`
	RecordsNormalized int         `json:"records_normalized"`
	MappingFailures   int         `json:"mapping_failures"`
	ValidationErrors  int         `json:"validation_errors"`
	DuplicateRecords  int         `json:"duplicate_records"`
	DurationMS        int64       `json:"duration_ms"`
}

// ResolutionStage summarizes the resolution stage.
type ResolutionStage struct {
	Status                 StageStatus `json:"status"`
	RecordsResolved        int         `json:"records_resolved"`
	ConflictsResolved      int         `json:"conflicts_resolved"`
	ManualOverridesApplied int         `json:"manual_overrides_applied"`
	GroupsFailed           int         `json:"groups_failed"`
	DurationMS             int64       `json:"duration_ms"`
}

// PublicationStage summarizes the publication stage.
type PublicationStage struct {
	Status           StageStatus `json:"status"`
	RecordsPublished int         `json:"records_published"`
	RecordsCreated   int         `json:"records_created"`
	RecordsUpdated   int         `json:"records_updated"`
	SnapshotCreated  bool        `json:"snapshot_created"`
	SnapshotPath     string      `json:"snapshot_path,omitempty"`
	DurationMS       int64       `json:"duration_ms"`
}

// Stages groups the per-stage summaries.
type Stages struct {
	Adapters      AdapterStage       `json:"adapters"`
	Normalization NormalizationStage `json:"normalization"`
	Resolution    ResolutionStage    `json:"resolution"`
	Publication   PublicationStage   `json:"publication"`
}

// PerformanceMetrics captures resource usage for a run.
type PerformanceMetrics struct {
	TotalDurationMS  int64   `json:"total_duration_ms"`
	PeakHeapMB       float64 `json:"peak_heap_mb"`
	Goroutines       int     `json:"goroutines"`
	RecordsPerSecond float64 `json:"records_per_second"`
}

// IngestionResult is the complete report of one run. It is always fully
// populated, even when the run fails.
type IngestionResult struct {
	ExecutionID string             `json:"execution_id"`
	Season      int                `json:"season"`
	Week        int                `json:"week"`
	Success     bool               `json:"success"`
	DryRun      bool               `json:"dry_run"`
	StartedAt   time.Time          `json:"started_at"`
	CompletedAt time.Time          `json:"completed_at"`
	Stages      Stages             `json:"stages"`
	Errors      []IngestionError   `json:"errors"`
	Warnings    []string           `json:"warnings"`
	Performance PerformanceMetrics `json:"performance_metrics"`
}

// HasCritical reports whether any error is critical.
func (r *IngestionResult) HasCritical() bool {
	for _, e := range r.Errors {
		if e.Severity == ErrorCritical {
			return true
		}
	}
	return false
}

// ExecutionStatus is the lifecycle state of a logged run.
type ExecutionStatus string

const (
	ExecutionRunning   ExecutionStatus = "running"
	ExecutionSucceeded ExecutionStatus = "succeeded"
	ExecutionFailed    ExecutionStatus = "failed"
)

// ExecutionRecord is one row in the execution log.
type ExecutionRecord struct {
	ExecutionID string           `json:"execution_id"`
	Season      int              `json:"season"`
	Week        int              `json:"week"`
	Status      ExecutionStatus  `json:"status"`
	Config      IngestionConfig  `json:"config"`
	Result      *IngestionResult `json:"result,omitempty"`
	StartedAt   time.Time        `json:"started_at"`
	CompletedAt *time.Time       `json:"completed_at,omitempty"`
}
