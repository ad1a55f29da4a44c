package resolve

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/kpm34/college-football-fantasy-app-sub000/internal/model"
)

// Strategy selects the winner among disagreeing candidate values.
type Strategy string

const (
	StrategyPriority   Strategy = "priority"
	StrategyConfidence Strategy = "confidence"
	StrategyRecency    Strategy = "recency"
	StrategyManualOnly Strategy = "manual_only"
)

// Valid reports whether s is a known strategy.
func (s Strategy) Valid() bool {
	switch s {
	case StrategyPriority, StrategyConfidence, StrategyRecency, StrategyManualOnly:
		return true
	}
	return false
}

// defaultStrategies is the built-in field to strategy table.
var defaultStrategies = map[string]Strategy{
	model.FieldDepthChartRank:        StrategyPriority,
	model.FieldStarterProb:           StrategyPriority,
	model.FieldPosition:              StrategyPriority,
	model.FieldInjuryStatus:          StrategyPriority,
	model.FieldInjuryNote:            StrategyPriority,
	model.FieldInjuryAsOf:            StrategyRecency,
	model.FieldSnapShareProj:         StrategyConfidence,
	model.FieldUsage1WSnapPct:        StrategyConfidence,
	model.FieldUsage4WSnapPct:        StrategyConfidence,
	model.FieldUsage1WRoutePct:       StrategyConfidence,
	model.FieldUsage4WRoutePct:       StrategyConfidence,
	model.FieldUsage1WCarryShare:     StrategyConfidence,
	model.FieldUsage4WCarryShare:     StrategyConfidence,
	model.FieldUsage1WTargetShare:    StrategyConfidence,
	model.FieldUsage4WTargetShare:    StrategyConfidence,
	model.FieldPriorSeasonTarget:     StrategyConfidence,
	model.FieldPriorSeasonCarry:      StrategyConfidence,
	model.FieldPriorSeasonYards:      StrategyConfidence,
	model.FieldPriorSeasonTouchdowns: StrategyConfidence,
}

// StrategyTable maps field names to strategies. The zero value falls back
// to the built-in table and StrategyPriority.
type StrategyTable struct {
	Default Strategy            `yaml:"default"`
	Fields  map[string]Strategy `yaml:"fields"`
}

// DefaultStrategyTable returns the built-in table.
func DefaultStrategyTable() StrategyTable {
	fields := make(map[string]Strategy, len(defaultStrategies))
	for k, v := range defaultStrategies {
		fields[k] = v
	}
	return StrategyTable{Default: StrategyPriority, Fields: fields}
}

// For returns the strategy for field.
func (t StrategyTable) For(field string) Strategy {
	if s, ok := t.Fields[field]; ok {
		return s
	}
	if s, ok := defaultStrategies[field]; ok && t.Fields == nil {
		return s
	}
	if t.Default != "" {
		return t.Default
	}
	return StrategyPriority
}

// LoadStrategies reads per-field strategy overrides from a YAML file with a
// top-level "resolver" key and layers them over the built-in table.
func LoadStrategies(path string) (StrategyTable, error) {
	table := DefaultStrategyTable()

	data, err := os.ReadFile(path)
	if err != nil {
		return table, eris.Wrapf(err, "resolve: read strategy file %s", path)
	}

	var wrapper struct {
		Resolver StrategyTable `yaml:"resolver"`
	}
	if err := yaml.Unmarshal(data, &wrapper); err != nil {
		return table, eris.Wrap(err, "resolve: parse strategy file")
	}

	if d := wrapper.Resolver.Default; d != "" {
		if !d.Valid() {
			return table, eris.Errorf("resolve: unknown default strategy %q", d)
		}
		table.Default = d
	}
	for field, s := range wrapper.Resolver.Fields {
		if _, ok := model.LookupField(field); !ok {
			return table, eris.Errorf("resolve: strategy for unknown field %q", field)
		}
		if !s.Valid() {
			return table, eris.Errorf("resolve: unknown strategy %q for field %s", s, field)
		}
		table.Fields[field] = s
	}
	return table, nil
}
