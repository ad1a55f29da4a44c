package resolve

import (
	"fmt"

	"github.com/kpm34/college-football-fantasy-app-sub000/internal/model"
)

// recordField names the synthetic diff entry for a player with no baseline.
const recordField = "_record"

// diff compares rec against the previous week's record for the same
// player. Time-valued fields are observation metadata and are not diffed.
func (r *Resolver) diff(rec *model.ResolvedRecord) []model.DiffLogEntry {
	now := r.now()
	base := model.DiffLogEntry{
		PlayerID:   rec.PlayerID,
		Season:     rec.Season,
		Week:       rec.Week,
		Source:     rec.Source,
		Confidence: rec.FinalConfidence,
		Timestamp:  now,
	}

	prev, ok := r.previousWeek[rec.PlayerID]
	if !ok {
		e := base
		e.FieldName = recordField
		e.ChangeType = model.ChangeCreated
		e.NewValue = rec.DepthChartRank
		e.Reasoning = "New player record created"
		return []model.DiffLogEntry{e}
	}

	var out []model.DiffLogEntry
	for _, f := range model.ResolvableFields {
		if f.Kind == model.KindTime {
			continue
		}
		oldV, _ := prev.FieldValue(f.Name)
		newV, _ := rec.FieldValue(f.Name)
		if model.ValuesEqual(oldV, newV) {
			continue
		}
		e := base
		e.FieldName = f.Name
		e.ChangeType = model.ChangeUpdated
		e.OldValue = displayValue(f, oldV)
		e.NewValue = displayValue(f, newV)
		e.Reasoning = changeReasoning(f, e.OldValue, e.NewValue)
		out = append(out, e)
	}
	return out
}

// displayValue renders depth chart ranks as integers for the audit log.
func displayValue(f model.FieldSpec, v any) any {
	if f.Name == model.FieldDepthChartRank {
		if n, ok := v.(float64); ok {
			return int(n)
		}
	}
	return v
}

func changeReasoning(f model.FieldSpec, oldV, newV any) string {
	switch f.Category {
	case model.CategoryInjury:
		return fmt.Sprintf("Injury status changed from %v to %v", oldV, newV)
	case model.CategoryDepth:
		if f.Name == model.FieldDepthChartRank {
			o, _ := oldV.(int)
			n, _ := newV.(int)
			switch {
			case n < o:
				return fmt.Sprintf("Depth chart promotion from %d to %d", o, n)
			case n > o:
				return fmt.Sprintf("Depth chart demotion from %d to %d", o, n)
			}
		}
		return fmt.Sprintf("Depth projection changed from %v to %v", oldV, newV)
	case model.CategoryUsage:
		o, _ := oldV.(float64)
		n, _ := newV.(float64)
		return fmt.Sprintf("Usage %s changed from %.1f%% to %.1f%%", f.Name, o*100, n*100)
	default:
		return fmt.Sprintf("%s changed from %v to %v", f.Name, oldV, newV)
	}
}
