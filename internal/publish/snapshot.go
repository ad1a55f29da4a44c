package publish

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/rotisserie/eris"

	"github.com/kpm34/college-football-fantasy-app-sub000/internal/model"
)

// SchemaVersion is stamped on every snapshot.
const SchemaVersion = "1.0"

// Snapshot is the immutable on-disk record of one publication.
type Snapshot struct {
	SnapshotID    string                 `json:"snapshot_id"`
	Season        int                    `json:"season"`
	Week          int                    `json:"week"`
	CreatedAt     time.Time              `json:"created_at"`
	TotalRecords  int                    `json:"total_records"`
	DataSources   []model.DataSource     `json:"data_sources"`
	SchemaVersion string                 `json:"schema_version"`
	Records       []model.ResolvedRecord `json:"records"`
	Metadata      SnapshotMetadata       `json:"metadata"`
}

// SnapshotMetadata summarizes the publication.
type SnapshotMetadata struct {
	PublicationID string              `json:"publication_id"`
	ConflictStats model.ConflictStats `json:"conflict_stats"`
	Resolution    ResolutionSummary   `json:"resolution_log_summary"`
	Diff          DiffSummary         `json:"diff_log_summary"`
}

// ResolutionSummary counts resolved conflicts.
type ResolutionSummary struct {
	TotalConflicts   int            `json:"total_conflicts"`
	ConflictsByField map[string]int `json:"conflicts_by_field"`
	SourcesUsed      map[string]int `json:"sources_used"`
}

// DiffSummary counts diff log entries.
type DiffSummary struct {
	TotalChanges  int            `json:"total_changes"`
	ChangeTypes   map[string]int `json:"change_types"`
	FieldsChanged map[string]int `json:"fields_changed"`
}

// SnapshotPath returns where the snapshot for a publication is written.
func SnapshotPath(dir string, season, week int, publicationID string) string {
	id := fmt.Sprintf("%dW%d_%s", season, week, publicationID)
	return filepath.Join(dir, strconv.Itoa(season), fmt.Sprintf("week-%d", week), id+".json")
}

func buildSnapshot(res *model.ResolutionResult, season, week int, publicationID string, now time.Time) Snapshot {
	snap := Snapshot{
		SnapshotID:    fmt.Sprintf("%dW%d_%s", season, week, publicationID),
		Season:        season,
		Week:          week,
		CreatedAt:     now,
		TotalRecords:  len(res.ResolvedRecords),
		SchemaVersion: SchemaVersion,
		Records:       res.ResolvedRecords,
		Metadata: SnapshotMetadata{
			PublicationID: publicationID,
			ConflictStats: res.ConflictStats,
			Resolution: ResolutionSummary{
				ConflictsByField: map[string]int{},
				SourcesUsed:      map[string]int{},
			},
			Diff: DiffSummary{
				TotalChanges:  len(res.DiffLog),
				ChangeTypes:   map[string]int{},
				FieldsChanged: map[string]int{},
			},
		},
	}

	seen := map[model.DataSource]bool{}
	for _, r := range res.ResolvedRecords {
		if !seen[r.Source] {
			seen[r.Source] = true
			snap.DataSources = append(snap.DataSources, r.Source)
		}
		snap.Metadata.Resolution.TotalConflicts += len(r.ResolutionLog)
		for _, cr := range r.ResolutionLog {
			snap.Metadata.Resolution.ConflictsByField[cr.FieldName]++
			snap.Metadata.Resolution.SourcesUsed[string(cr.WinningSource)]++
		}
	}
	sort.Slice(snap.DataSources, func(i, j int) bool { return snap.DataSources[i] < snap.DataSources[j] })

	for _, e := range res.DiffLog {
		snap.Metadata.Diff.ChangeTypes[string(e.ChangeType)]++
		snap.Metadata.Diff.FieldsChanged[e.FieldName]++
	}
	return snap
}

// writeSnapshot writes the snapshot once; an existing file is never
// replaced. In a dry run only the path is computed.
func (p *Publisher) writeSnapshot(res *model.ResolutionResult, season, week int, publicationID string, now time.Time, dryRun bool) (string, error) {
	path := SnapshotPath(p.snapshotDir, season, week, publicationID)
	if dryRun {
		return path, nil
	}

	data, err := json.MarshalIndent(buildSnapshot(res, season, week, publicationID, now), "", "  ")
	if err != nil {
		return path, eris.Wrap(err, "publish: encode snapshot")
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return path, eris.Wrapf(err, "publish: create snapshot dir %s", dir)
	}

	tmp, err := os.CreateTemp(dir, ".snapshot-*")
	if err != nil {
		return path, eris.Wrap(err, "publish: create snapshot temp file")
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck
	if _, err := tmp.Write(data); err != nil {
		tmp.Close() //nolint:errcheck
		return path, eris.Wrap(err, "publish: write snapshot")
	}
	if err := tmp.Close(); err != nil {
		return path, eris.Wrap(err, "publish: close snapshot")
	}
	if _, err := os.Stat(path); err == nil {
		return path, eris.Errorf("publish: snapshot %s already exists", path)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return path, eris.Wrap(err, "publish: finalize snapshot")
	}
	return path, nil
}

// ReadSnapshot loads a snapshot written by a Publisher.
func ReadSnapshot(path string) (*Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "publish: read snapshot %s", path)
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, eris.Wrapf(err, "publish: decode snapshot %s", path)
	}
	return &snap, nil
}
