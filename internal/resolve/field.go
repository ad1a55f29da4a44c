package resolve

import (
	"fmt"
	"time"

	"github.com/kpm34/college-football-fantasy-app-sub000/internal/model"
)

// candidate is one distinct value offered for a field.
type candidate struct {
	value      any
	source     model.DataSource
	confidence float64
	asOf       time.Time
}

// collectCandidates returns the distinct values records offer for field.
// records must already be in resolution order; equal values collapse onto
// the first record that offered them.
func collectCandidates(records []model.NormalizedRecord, field string) []candidate {
	var out []candidate
	for i := range records {
		v, ok := records[i].FieldValue(field)
		if !ok {
			continue
		}
		dup := false
		for _, c := range out {
			if model.ValuesEqual(c.value, v) {
				dup = true
				break
			}
		}
		if dup {
			continue
		}
		out = append(out, candidate{
			value:      v,
			source:     records[i].Source,
			confidence: records[i].Confidence,
			asOf:       records[i].AsOf,
		})
	}
	return out
}

// pickWinner returns the index of the winning candidate. Ties keep the
// earliest candidate, which is the highest priority one.
func pickWinner(strategy Strategy, cands []candidate) int {
	best := 0
	for i := 1; i < len(cands); i++ {
		c, b := cands[i], cands[best]
		switch strategy {
		case StrategyConfidence:
			if c.confidence > b.confidence {
				best = i
			}
		case StrategyRecency:
			if c.asOf.After(b.asOf) {
				best = i
			}
		case StrategyManualOnly:
			if c.source == model.SourceManualOverride && b.source != model.SourceManualOverride {
				best = i
			}
		default:
			cp, bp := c.source.Priority(), b.source.Priority()
			if cp > bp || (cp == bp && c.confidence > b.confidence) {
				best = i
			}
		}
	}
	return best
}

// resolveField arbitrates a contested field. cands must hold at least two
// distinct values.
func resolveField(field string, strategy Strategy, cands []candidate) model.ConflictResolution {
	wi := pickWinner(strategy, cands)
	w := cands[wi]

	alts := make([]model.AlternativeValue, 0, len(cands)-1)
	for i, c := range cands {
		if i == wi {
			continue
		}
		alts = append(alts, model.AlternativeValue{
			Value:          c.value,
			Source:         c.source,
			Confidence:     c.confidence,
			ReasonRejected: rejectionReason(strategy, c, w),
		})
	}

	return model.ConflictResolution{
		FieldName:           field,
		FinalValue:          w.value,
		WinningSource:       w.source,
		Confidence:          w.confidence,
		ConflictCount:       len(cands),
		AlternativeValues:   alts,
		ResolutionReasoning: resolutionReasoning(strategy, w, len(cands)),
	}
}

func rejectionReason(strategy Strategy, lost, won candidate) string {
	switch strategy {
	case StrategyConfidence:
		return fmt.Sprintf("Lower confidence (%.2f < %.2f)", lost.confidence, won.confidence)
	case StrategyRecency:
		return fmt.Sprintf("Older data (%s before %s)", lost.asOf.Format(time.RFC3339), won.asOf.Format(time.RFC3339))
	case StrategyManualOnly:
		return "Not a manual override"
	default:
		if lost.source.Priority() == won.source.Priority() {
			return fmt.Sprintf("Lower confidence at equal priority (%.2f < %.2f)", lost.confidence, won.confidence)
		}
		return fmt.Sprintf("Lower source priority (%s %d < %s %d)",
			lost.source, lost.source.Priority(), won.source, won.source.Priority())
	}
}

func resolutionReasoning(strategy Strategy, won candidate, n int) string {
	switch strategy {
	case StrategyConfidence:
		return fmt.Sprintf("Won by confidence %.2f among %d values", won.confidence, n)
	case StrategyRecency:
		return fmt.Sprintf("Won by recency (as of %s) among %d values", won.asOf.Format(time.RFC3339), n)
	case StrategyManualOnly:
		if won.source == model.SourceManualOverride {
			return "Manual override value selected"
		}
		return fmt.Sprintf("No manual value; kept %s", won.source)
	default:
		return fmt.Sprintf("Won by source priority: %s (%d) among %d values", won.source, won.source.Priority(), n)
	}
}
