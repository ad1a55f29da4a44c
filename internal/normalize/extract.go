package normalize

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Field-name fallback chains, tried in order.
var (
	nameKeys       = []string{"player_name", "playerName", "name"}
	teamKeys       = []string{"team_id", "team", "teamName", "school"}
	positionKeys   = []string{"position", "pos"}
	jerseyKeys     = []string{"jersey", "jerseyNumber", "number"}
	rankKeys       = []string{"depth_chart_rank", "depth_rank", "rank"}
	starterKeys    = []string{"starter_prob", "starter_probability"}
	snapProjKeys   = []string{"snap_share_proj", "projected_snap_share"}
	confidenceKeys = []string{"confidence", "parse_confidence", "statistical_confidence"}
	injuryKeys     = []string{"injury_status", "status", "injury"}
	injuryNoteKeys = []string{"injury_note", "injury_notes", "note"}
	asOfKeys       = []string{"as_of", "asOf", "timestamp"}
)

// lookup returns the first key of keys present in data with a non-empty value.
func lookup(data map[string]any, keys []string) (any, bool) {
	for _, k := range keys {
		v, ok := data[k]
		if !ok || v == nil {
			continue
		}
		if s, isStr := v.(string); isStr && strings.TrimSpace(s) == "" {
			continue
		}
		return v, true
	}
	return nil, false
}

// extractString returns the first present value under keys as a cleaned string.
func extractString(data map[string]any, keys ...string) string {
	v, ok := lookup(data, keys)
	if !ok {
		return ""
	}
	switch s := v.(type) {
	case string:
		return cleanString(s)
	case float64:
		if s == math.Trunc(s) {
			return strconv.FormatInt(int64(s), 10)
		}
	}
	return cleanString(fmt.Sprint(v))
}

// extractNumber walks keys in order and returns the first value that parses
// as a number, or def when none does. Strings ending in "%" are read as
// percentages.
func extractNumber(data map[string]any, def float64, keys ...string) float64 {
	for _, k := range keys {
		if f, ok := parseNumber(data[k]); ok {
			return f
		}
	}
	return def
}

func parseNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, !math.IsNaN(n) && !math.IsInf(n, 0)
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		s := strings.TrimSpace(n)
		pct := strings.HasSuffix(s, "%")
		s = strings.TrimSuffix(s, "%")
		f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return 0, false
		}
		if pct {
			f /= 100
		}
		return f, !math.IsNaN(f) && !math.IsInf(f, 0)
	}
	return 0, false
}

// extractTime returns the first value under keys that parses as a timestamp.
func extractTime(data map[string]any, keys ...string) (time.Time, bool) {
	for _, k := range keys {
		switch t := data[k].(type) {
		case time.Time:
			if !t.IsZero() {
				return t, true
			}
		case string:
			if parsed, ok := parseTime(t); ok {
				return parsed, true
			}
		}
	}
	return time.Time{}, false
}

var timeLayouts = []string{time.RFC3339Nano, time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"}

func parseTime(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
