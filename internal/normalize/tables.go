package normalize

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"

	"github.com/kpm34/college-football-fantasy-app-sub000/internal/model"
)

// teamAliases maps lowercase school names, mascots and abbreviations onto
// canonical team slugs.
var teamAliases = map[string]string{
	"alabama":         "alabama",
	"crimson tide":    "alabama",
	"bama":            "alabama",
	"georgia":         "georgia",
	"bulldogs":        "georgia",
	"uga":             "georgia",
	"lsu":             "lsu",
	"tigers":          "lsu",
	"florida":         "florida",
	"gators":          "florida",
	"miami":           "miami",
	"hurricanes":      "miami",
	"miami (fl)":      "miami",
	"clemson":         "clemson",
	"florida state":   "florida-state",
	"fsu":             "florida-state",
	"seminoles":       "florida-state",
	"north carolina":  "north-carolina",
	"unc":             "north-carolina",
	"tar heels":       "north-carolina",
	"michigan":        "michigan",
	"wolverines":      "michigan",
	"ohio state":      "ohio-state",
	"osu":             "ohio-state",
	"buckeyes":        "ohio-state",
	"penn state":      "penn-state",
	"psu":             "penn-state",
	"nittany lions":   "penn-state",
	"wisconsin":       "wisconsin",
	"badgers":         "wisconsin",
	"texas":           "texas",
	"longhorns":       "texas",
	"oklahoma":        "oklahoma",
	"sooners":         "oklahoma",
	"ou":              "oklahoma",
	"baylor":          "baylor",
	"bears":           "baylor",
	"tcu":             "tcu",
	"horned frogs":    "tcu",
	"texas christian": "tcu",
	"notre dame":      "notre-dame",
	"fighting irish":  "notre-dame",
	"usc":             "usc",
	"trojans":         "usc",
	"oregon":          "oregon",
	"ducks":           "oregon",
}

// positionSynonyms maps lowercase position spellings onto canonical codes.
var positionSynonyms = map[string]string{
	"qb":            "QB",
	"quarterback":   "QB",
	"rb":            "RB",
	"runningback":   "RB",
	"running back":  "RB",
	"hb":            "RB",
	"halfback":      "RB",
	"fb":            "RB",
	"fullback":      "RB",
	"wr":            "WR",
	"wide receiver": "WR",
	"receiver":      "WR",
	"te":            "TE",
	"tight end":     "TE",
	"k":             "K",
	"kicker":        "K",
	"pk":            "K",
	"place kicker":  "K",
}

// injurySynonyms maps uppercase status spellings onto the three canonical
// statuses. Unlisted values are treated as ACTIVE.
var injurySynonyms = map[string]model.InjuryStatus{
	"OUT":          model.InjuryOut,
	"INJURED":      model.InjuryOut,
	"SIDELINED":    model.InjuryOut,
	"IR":           model.InjuryOut,
	"SUSPENDED":    model.InjuryOut,
	"QUESTIONABLE": model.InjuryQuestionable,
	"DOUBTFUL":     model.InjuryQuestionable,
	"GTD":          model.InjuryQuestionable,
	"ACTIVE":       model.InjuryActive,
	"PROBABLE":     model.InjuryActive,
	"HEALTHY":      model.InjuryActive,
	"AVAILABLE":    model.InjuryActive,
}

// NormalizeTeam returns the canonical slug for a team name. Unknown teams
// are lowercased with spaces replaced by hyphens.
func NormalizeTeam(team string) string {
	key := strings.ToLower(cleanString(team))
	if key == "" {
		return ""
	}
	if slug, ok := teamAliases[key]; ok {
		return slug
	}
	return strings.Join(strings.Fields(key), "-")
}

// NormalizePosition returns the canonical position code. Unknown positions
// are uppercased.
func NormalizePosition(pos string) string {
	key := strings.ToLower(cleanString(pos))
	if code, ok := positionSynonyms[key]; ok {
		return code
	}
	return strings.ToUpper(key)
}

// NormalizeInjuryStatus maps a free-form status onto the canonical set.
func NormalizeInjuryStatus(status string) model.InjuryStatus {
	key := strings.ToUpper(strings.Join(strings.Fields(status), " "))
	if st, ok := injurySynonyms[key]; ok {
		return st
	}
	return model.InjuryActive
}

// cleanString composes to NFC, drops control characters and collapses runs
// of whitespace.
func cleanString(s string) string {
	s = norm.NFC.String(s)
	s = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) && !unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
	return strings.Join(strings.Fields(s), " ")
}
