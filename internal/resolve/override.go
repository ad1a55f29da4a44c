package resolve

import (
	"encoding/json"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/kpm34/college-football-fantasy-app-sub000/internal/model"
)

// DecodeOverrideValue parses an override's stored value as JSON, falling
// back to the raw string when it is not valid JSON.
func DecodeOverrideValue(raw string) any {
	dec := json.NewDecoder(strings.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil || dec.More() {
		return raw
	}
	if n, ok := v.(json.Number); ok {
		if f, err := n.Float64(); err == nil {
			return f
		}
	}
	return v
}

// applyOverrides writes every active override for the record's player and
// week onto rec. Overrides are applied in creation order so the newest wins
// when two target the same field.
func (r *Resolver) applyOverrides(rec *model.ResolvedRecord) (int, error) {
	ovs := r.playerOvr[rec.PlayerID]
	if len(ovs) == 0 {
		return 0, nil
	}

	now := r.now()
	active := make([]model.ManualOverride, 0, len(ovs))
	for _, o := range ovs {
		if o.Active(now) && o.AppliesTo(rec.Week) && (o.Season == 0 || o.Season == rec.Season) {
			active = append(active, o)
		}
	}
	sort.SliceStable(active, func(i, j int) bool { return active[i].CreatedAt.Before(active[j].CreatedAt) })

	applied := 0
	for _, o := range active {
		spec, ok := model.LookupField(o.FieldName)
		if !ok {
			return applied, eris.Errorf("resolve: override %s targets unknown field %q", o.ID, o.FieldName)
		}
		value, err := model.CoerceFieldValue(spec, DecodeOverrideValue(o.OverrideValue))
		if err != nil {
			return applied, eris.Wrapf(err, "resolve: override %s", o.ID)
		}
		if err := rec.SetFieldValue(o.FieldName, value); err != nil {
			return applied, eris.Wrapf(err, "resolve: apply override %s", o.ID)
		}
		markOverridden(rec, o.FieldName, value)
		if !containsString(rec.ManualOverridesApplied, o.FieldName) {
			rec.ManualOverridesApplied = append(rec.ManualOverridesApplied, o.FieldName)
			applied++
		}
		r.log.Info("resolve: override applied",
			zap.String("player_id", rec.PlayerID),
			zap.String("field", o.FieldName),
			zap.String("override_id", o.ID),
		)
	}
	if applied > 0 && !containsSource(rec.SourcesMerged, model.SourceManualOverride) {
		rec.SourcesMerged = append([]model.DataSource{model.SourceManualOverride}, rec.SourcesMerged...)
	}
	return applied, nil
}

// markOverridden rewrites the field's resolution entry, if any, so the log
// names the override as the winner and demotes the strategy winner.
func markOverridden(rec *model.ResolvedRecord, field string, value any) {
	for i := range rec.ResolutionLog {
		cr := &rec.ResolutionLog[i]
		if cr.FieldName != field {
			continue
		}
		if cr.WinningSource != model.SourceManualOverride {
			cr.AlternativeValues = append(cr.AlternativeValues, model.AlternativeValue{
				Value:          cr.FinalValue,
				Source:         cr.WinningSource,
				Confidence:     cr.Confidence,
				ReasonRejected: "Superseded by manual override",
			})
		}
		cr.FinalValue = value
		cr.WinningSource = model.SourceManualOverride
		cr.Confidence = 1.0
		cr.ResolutionReasoning = "Manual override applied: " + describe(value)
		return
	}
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func containsSource(list []model.DataSource, s model.DataSource) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
