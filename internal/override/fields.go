package override

import (
	"fmt"
	"math"
	"slices"
	"strings"

	"github.com/kpm34/college-football-fantasy-app-sub000/internal/model"
	"github.com/kpm34/college-football-fantasy-app-sub000/internal/normalize"
)

type valueType string

const (
	typeNumber valueType = "number"
	typeString valueType = "string"
	typeEnum   valueType = "enum"
)

// fieldRule constrains the values an override may set on one field.
type fieldRule struct {
	Type    valueType
	Min     float64
	Max     float64
	Integer bool
	Values  []string
}

var share = fieldRule{Type: typeNumber, Min: 0, Max: 1}

var supportedFields = map[string]fieldRule{
	model.FieldDepthChartRank: {Type: typeNumber, Min: 1, Max: 10, Integer: true},
	model.FieldStarterProb:    share,
	model.FieldSnapShareProj:  share,
	model.FieldPosition:       {Type: typeString},

	model.FieldInjuryStatus: {Type: typeEnum, Values: []string{"OUT", "QUESTIONABLE", "ACTIVE"}},
	model.FieldInjuryNote:   {Type: typeString},

	model.FieldUsage1WSnapPct:     share,
	model.FieldUsage4WSnapPct:     share,
	model.FieldUsage1WRoutePct:    share,
	model.FieldUsage4WRoutePct:    share,
	model.FieldUsage1WCarryShare:  share,
	model.FieldUsage4WCarryShare:  share,
	model.FieldUsage1WTargetShare: share,
	model.FieldUsage4WTargetShare: share,

	model.FieldPriorSeasonTarget:     share,
	model.FieldPriorSeasonCarry:      share,
	model.FieldPriorSeasonYards:      share,
	model.FieldPriorSeasonTouchdowns: share,
}

// approvalRequired lists fields whose overrides stay inactive until approved.
var approvalRequired = map[string]bool{
	model.FieldDepthChartRank: true,
	model.FieldStarterProb:    true,
	model.FieldInjuryStatus:   true,
}

// SupportedFields returns the overridable field names in sorted order.
func SupportedFields() []string {
	names := make([]string, 0, len(supportedFields))
	for n := range supportedFields {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}

// check validates v against the rule. It returns the canonical value or a
// message describing why v was refused.
func (r fieldRule) check(field string, v any) (any, string) {
	switch r.Type {
	case typeNumber:
		cv, err := model.CoerceFieldValue(model.FieldSpec{Name: field, Kind: model.KindNumber}, v)
		if err != nil {
			return nil, "Value must be a number"
		}
		n := cv.(float64)
		if math.IsNaN(n) || n < r.Min || n > r.Max {
			return nil, fmt.Sprintf("Value must be between %g and %g", r.Min, r.Max)
		}
		if r.Integer && n != math.Trunc(n) {
			return nil, "Value must be a whole number"
		}
		return n, ""
	case typeEnum:
		s, ok := v.(string)
		if ok {
			s = strings.ToUpper(strings.TrimSpace(s))
		}
		if !ok || !slices.Contains(r.Values, s) {
			return nil, "Value must be one of: " + strings.Join(r.Values, ", ")
		}
		return s, ""
	default:
		s, ok := v.(string)
		if !ok || strings.TrimSpace(s) == "" {
			return nil, "Value must be a non-empty string"
		}
		if field == model.FieldPosition {
			s = normalize.NormalizePosition(s)
		}
		return strings.TrimSpace(s), ""
	}
}
