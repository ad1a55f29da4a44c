package normalize

import (
	"fmt"
	"hash/fnv"
	"math"
	"strconv"

	"github.com/kpm34/college-football-fantasy-app-sub000/internal/model"
)

// Bounds enforced on every normalized record.
const (
	MinDepthChartRank = 1
	MaxDepthChartRank = 10
	LowConfidence     = 0.3
)

// RawDataHash is the same-run dedup key over the semantically meaningful
// subset of a record.
func RawDataHash(r *model.NormalizedRecord) string {
	h := fnv.New64a()
	fmt.Fprintf(h, "%s|%d|%d|%d|%s|%s",
		r.PlayerID, r.Season, r.Week, r.DepthChartRank, r.InjuryStatus, r.Source)
	return strconv.FormatUint(h.Sum64(), 36)
}

// validateRecord returns every finding for r. Error severity entries reject
// the record; warnings do not.
func validateRecord(idx int, r *model.NormalizedRecord) []model.ValidationError {
	var errs []model.ValidationError
	add := func(field, typ, msg string, sev model.Severity) {
		errs = append(errs, model.ValidationError{
			RecordIndex: idx,
			Field:       field,
			ErrorType:   typ,
			Message:     msg,
			Severity:    sev,
		})
	}

	if r.PlayerID == "" {
		add("player_id", "missing_required", "player_id is required", model.SeverityError)
	}
	if r.TeamID == "" {
		add("team_id", "missing_required", "team_id is required", model.SeverityError)
	}
	if r.Position == "" {
		add("position", "missing_required", "position is required", model.SeverityError)
	}
	if r.DepthChartRank < MinDepthChartRank || r.DepthChartRank > MaxDepthChartRank {
		add(model.FieldDepthChartRank, "out_of_range",
			fmt.Sprintf("depth_chart_rank %d outside [%d,%d]", r.DepthChartRank, MinDepthChartRank, MaxDepthChartRank),
			model.SeverityError)
	}
	if math.IsNaN(r.StarterProb) || r.StarterProb < 0 || r.StarterProb > 1 {
		add(model.FieldStarterProb, "out_of_range",
			fmt.Sprintf("starter_prob %.3f outside [0,1]", r.StarterProb), model.SeverityError)
	}
	if r.Confidence < LowConfidence {
		add("confidence", "low_confidence",
			fmt.Sprintf("confidence %.2f below %.2f", r.Confidence, LowConfidence), model.SeverityWarning)
	}
	for _, f := range model.ResolvableFields {
		if f.Category != model.CategoryUsage || f.Kind != model.KindNumber {
			continue
		}
		v, _ := r.FieldValue(f.Name)
		if share := v.(float64); math.IsNaN(share) || share < 0 || share > 1 {
			add(f.Name, "out_of_range", fmt.Sprintf("%s %.3f outside [0,1]", f.Name, share), model.SeverityWarning)
		}
	}
	if r.InjuryStatus == model.InjuryOut && r.Usage.SnapShare1WK > 0.1 {
		add(model.FieldInjuryStatus, "inconsistent",
			fmt.Sprintf("player marked OUT but 1w snap share is %.1f%%", r.Usage.SnapShare1WK*100), model.SeverityWarning)
	}
	return errs
}

func hasError(errs []model.ValidationError) bool {
	for _, e := range errs {
		if e.Severity == model.SeverityError {
			return true
		}
	}
	return false
}
