package model

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

// FieldKind is the value type of a resolvable field.
type FieldKind int

const (
	KindNumber FieldKind = iota
	KindString
	KindStatus
	KindTime
)

func (k FieldKind) String() string {
	switch k {
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindStatus:
		return "status"
	case KindTime:
		return "time"
	default:
		return "unknown"
	}
}

// FieldCategory groups fields for diff reasoning.
type FieldCategory string

const (
	CategoryDepth    FieldCategory = "depth"
	CategoryInjury   FieldCategory = "injury"
	CategoryUsage    FieldCategory = "usage"
	CategoryIdentity FieldCategory = "identity"
)

// FieldSpec describes one field that conflict resolution may arbitrate.
type FieldSpec struct {
	Name     string
	Kind     FieldKind
	Category FieldCategory
}

// Resolvable field names.
const (
	FieldDepthChartRank        = "depth_chart_rank"
	FieldStarterProb           = "starter_prob"
	FieldSnapShareProj         = "snap_share_proj"
	FieldPosition              = "position"
	FieldInjuryStatus          = "injury_status"
	FieldInjuryNote            = "injury_note"
	FieldInjuryAsOf            = "injury_as_of"
	FieldUsage1WSnapPct        = "usage_1w_snap_pct"
	FieldUsage4WSnapPct        = "usage_4w_snap_pct"
	FieldUsage1WRoutePct       = "usage_1w_route_pct"
	FieldUsage4WRoutePct       = "usage_4w_route_pct"
	FieldUsage1WCarryShare     = "usage_1w_carry_share"
	FieldUsage4WCarryShare     = "usage_4w_carry_share"
	FieldUsage1WTargetShare    = "usage_1w_target_share"
	FieldUsage4WTargetShare    = "usage_4w_target_share"
	FieldPriorSeasonTarget     = "prior_season_target_share"
	FieldPriorSeasonCarry      = "prior_season_carry_share"
	FieldPriorSeasonYards      = "prior_season_yards_share"
	FieldPriorSeasonTouchdowns = "prior_season_td_share"
)

// ResolvableFields lists every field that may be contested, in the order
// resolution and diffing walk them.
var ResolvableFields = []FieldSpec{
	{FieldDepthChartRank, KindNumber, CategoryDepth},
	{FieldStarterProb, KindNumber, CategoryDepth},
	{FieldSnapShareProj, KindNumber, CategoryUsage},
	{FieldPosition, KindString, CategoryIdentity},
	{FieldInjuryStatus, KindStatus, CategoryInjury},
	{FieldInjuryNote, KindString, CategoryInjury},
	{FieldInjuryAsOf, KindTime, CategoryInjury},
	{FieldUsage1WSnapPct, KindNumber, CategoryUsage},
	{FieldUsage4WSnapPct, KindNumber, CategoryUsage},
	{FieldUsage1WRoutePct, KindNumber, CategoryUsage},
	{FieldUsage4WRoutePct, KindNumber, CategoryUsage},
	{FieldUsage1WCarryShare, KindNumber, CategoryUsage},
	{FieldUsage4WCarryShare, KindNumber, CategoryUsage},
	{FieldUsage1WTargetShare, KindNumber, CategoryUsage},
	{FieldUsage4WTargetShare, KindNumber, CategoryUsage},
	{FieldPriorSeasonTarget, KindNumber, CategoryUsage},
	{FieldPriorSeasonCarry, KindNumber, CategoryUsage},
	{FieldPriorSeasonYards, KindNumber, CategoryUsage},
	{FieldPriorSeasonTouchdowns, KindNumber, CategoryUsage},
}

var fieldIndex = func() map[string]FieldSpec {
	m := make(map[string]FieldSpec, len(ResolvableFields))
	for _, f := range ResolvableFields {
		m[f.Name] = f
	}
	return m
}()

// LookupField returns the spec for a resolvable field name.
func LookupField(name string) (FieldSpec, bool) {
	f, ok := fieldIndex[name]
	return f, ok
}

// numberRef returns a pointer to the float-backed field name, or nil.
func (r *NormalizedRecord) numberRef(name string) *float64 {
	switch name {
	case FieldStarterProb:
		return &r.StarterProb
	case FieldSnapShareProj:
		return &r.SnapShareProj
	case FieldUsage1WSnapPct:
		return &r.Usage.SnapShare1WK
	case FieldUsage4WSnapPct:
		return &r.Usage.SnapShare4WK
	case FieldUsage1WRoutePct:
		return &r.Usage.RouteShare1WK
	case FieldUsage4WRoutePct:
		return &r.Usage.RouteShare4WK
	case FieldUsage1WCarryShare:
		return &r.Usage.CarryShare1WK
	case FieldUsage4WCarryShare:
		return &r.Usage.CarryShare4WK
	case FieldUsage1WTargetShare:
		return &r.Usage.TargetShare1WK
	case FieldUsage4WTargetShare:
		return &r.Usage.TargetShare4WK
	case FieldPriorSeasonTarget:
		return &r.Prior.TargetShare
	case FieldPriorSeasonCarry:
		return &r.Prior.CarryShare
	case FieldPriorSeasonYards:
		return &r.Prior.YardsShare
	case FieldPriorSeasonTouchdowns:
		return &r.Prior.TDShare
	}
	return nil
}

// FieldValue returns the value of a resolvable field and whether it is
// present. Numbers are always present (zero is a value); empty strings and
// zero times are not. Numeric values are returned as float64.
func (r *NormalizedRecord) FieldValue(name string) (any, bool) {
	switch name {
	case FieldDepthChartRank:
		return float64(r.DepthChartRank), true
	case FieldPosition:
		return r.Position, r.Position != ""
	case FieldInjuryStatus:
		return string(r.InjuryStatus), r.InjuryStatus != ""
	case FieldInjuryNote:
		return r.InjuryNote, r.InjuryNote != ""
	case FieldInjuryAsOf:
		return r.InjuryAsOf, !r.InjuryAsOf.IsZero()
	}
	if p := r.numberRef(name); p != nil {
		return *p, true
	}
	return nil, false
}

// SetFieldValue coerces v to the field's kind and assigns it.
func (r *NormalizedRecord) SetFieldValue(name string, v any) error {
	spec, ok := LookupField(name)
	if !ok {
		return eris.Errorf("model: unknown field %q", name)
	}
	cv, err := CoerceFieldValue(spec, v)
	if err != nil {
		return err
	}
	switch name {
	case FieldDepthChartRank:
		r.DepthChartRank = int(math.Round(cv.(float64)))
	case FieldPosition:
		r.Position = cv.(string)
	case FieldInjuryStatus:
		r.InjuryStatus = InjuryStatus(cv.(string))
	case FieldInjuryNote:
		r.InjuryNote = cv.(string)
	case FieldInjuryAsOf:
		r.InjuryAsOf = cv.(time.Time)
	default:
		*r.numberRef(name) = cv.(float64)
	}
	return nil
}

// CoerceFieldValue converts v into the canonical Go type for spec.Kind:
// float64, string, string (a valid InjuryStatus) or time.Time.
func CoerceFieldValue(spec FieldSpec, v any) (any, error) {
	switch spec.Kind {
	case KindNumber:
		f, ok := toFloat(v)
		if !ok {
			return nil, eris.Errorf("model: field %s expects a number, got %T", spec.Name, v)
		}
		return f, nil
	case KindString:
		s, ok := v.(string)
		if !ok {
			return nil, eris.Errorf("model: field %s expects a string, got %T", spec.Name, v)
		}
		return s, nil
	case KindStatus:
		s, ok := v.(string)
		if !ok {
			return nil, eris.Errorf("model: field %s expects a status, got %T", spec.Name, v)
		}
		st := InjuryStatus(strings.ToUpper(strings.TrimSpace(s)))
		if !st.Valid() {
			return nil, eris.Errorf("model: invalid injury status %q", s)
		}
		return string(st), nil
	case KindTime:
		switch t := v.(type) {
		case time.Time:
			return t, nil
		case string:
			parsed, err := time.Parse(time.RFC3339, t)
			if err != nil {
				return nil, eris.Wrapf(err, "model: field %s expects an RFC3339 time", spec.Name)
			}
			return parsed, nil
		}
		return nil, eris.Errorf("model: field %s expects a time, got %T", spec.Name, v)
	}
	return nil, eris.Errorf("model: field %s has unknown kind", spec.Name)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	}
	return 0, false
}

// NumericTolerance is the distance under which two numbers are equal.
const NumericTolerance = 1e-3

// ValuesEqual compares two field values. Numbers match within
// NumericTolerance, times by instant, everything else by string form.
func ValuesEqual(a, b any) bool {
	fa, aNum := toNumber(a)
	fb, bNum := toNumber(b)
	if aNum && bNum {
		return math.Abs(fa-fb) < NumericTolerance
	}
	if aNum != bNum {
		return false
	}
	if ta, ok := a.(time.Time); ok {
		if tb, ok := b.(time.Time); ok {
			return ta.Equal(tb)
		}
	}
	return fmt.Sprint(a) == fmt.Sprint(b)
}

// toNumber is toFloat without string parsing, so "2" and 2 stay distinct.
func toNumber(v any) (float64, bool) {
	if _, ok := v.(string); ok {
		return 0, false
	}
	return toFloat(v)
}
