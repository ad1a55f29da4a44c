package matcher

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	suffixRe     = regexp.MustCompile(`\b(jr|sr|ii|iii|iv|v)\b\.?`)
	nonWordRe    = regexp.MustCompile(`[^a-z0-9\s]`)
	multiSpaceRe = regexp.MustCompile(`\s+`)
)

// NormalizeName folds a player name for matching: diacritics removed,
// lowercased, generational suffixes and punctuation stripped, whitespace
// collapsed.
func NormalizeName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return ""
	}

	folded, _, err := transform.String(transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC), name)
	if err == nil {
		name = folded
	}
	name = strings.ToLower(name)
	name = strings.NewReplacer("-", " ", "'", "", "’", "").Replace(name)
	name = suffixRe.ReplaceAllString(name, "")
	name = nonWordRe.ReplaceAllString(name, "")
	name = multiSpaceRe.ReplaceAllString(name, " ")
	return strings.TrimSpace(name)
}

// nicknames pairs formal first names with their common short forms.
var nicknames = [][2]string{
	{"anthony", "tony"},
	{"william", "bill"},
	{"robert", "bob"},
	{"michael", "mike"},
	{"christopher", "chris"},
	{"matthew", "matt"},
	{"daniel", "dan"},
	{"david", "dave"},
	{"james", "jim"},
	{"richard", "rick"},
	{"joshua", "josh"},
	{"nicholas", "nick"},
}

// variationBoost credits nickname and initial variants of the same name.
func variationBoost(a, b string) float64 {
	fa, fb := firstToken(a), firstToken(b)
	for _, pair := range nicknames {
		if (fa == pair[0] && fb == pair[1]) || (fa == pair[1] && fb == pair[0]) {
			if rest(a) == rest(b) {
				return 0.2
			}
		}
	}
	if initialVariant(a, b) {
		return 0.15
	}
	return 0
}

func firstToken(s string) string {
	if i := strings.IndexByte(s, ' '); i >= 0 {
		return s[:i]
	}
	return s
}

func rest(s string) string {
	if i := strings.IndexByte(s, ' '); i >= 0 {
		return s[i+1:]
	}
	return ""
}

// initialVariant reports whether a and b agree token by token, allowing a
// single letter to stand for a full token ("j smith" vs "john smith").
func initialVariant(a, b string) bool {
	pa, pb := strings.Fields(a), strings.Fields(b)
	if len(pa) != len(pb) || len(pa) < 2 {
		return false
	}
	initials := 0
	for i := range pa {
		x, y := pa[i], pb[i]
		switch {
		case x == y:
		case len(x) == 1 && strings.HasPrefix(y, x), len(y) == 1 && strings.HasPrefix(x, y):
			initials++
		default:
			return false
		}
	}
	return initials > 0
}
