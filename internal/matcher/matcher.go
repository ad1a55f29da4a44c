// Package matcher maps source player names onto canonical roster IDs.
package matcher

import (
	"context"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/agext/levenshtein"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/kpm34/college-football-fantasy-app-sub000/internal/model"
	"github.com/kpm34/college-football-fantasy-app-sub000/internal/normalize"
)

// Scoring weights and cache limits.
const (
	nameWeight      = 0.6
	teamWeight      = 0.25
	positionWeight  = 0.1
	jerseyBonus     = 0.05
	jerseyPenalty   = 0.1
	CacheThreshold  = 0.7
	DefaultCacheTTL = 24 * time.Hour
	MaxCacheEntries = 10000
)

// RosterSource lists the canonical players a Matcher resolves against.
type RosterSource interface {
	ListPlayers(ctx context.Context) ([]model.Player, error)
}

type rosterEntry struct {
	id       string
	name     string
	team     string
	position string
	jersey   string
}

type cacheEntry struct {
	match    model.PlayerMatch
	lastUsed time.Time
	uses     int
}

// Stats summarizes matcher activity.
type Stats struct {
	Players     int     `json:"players"`
	CacheSize   int     `json:"cache_size"`
	CacheHits   int     `json:"cache_hits"`
	CacheMisses int     `json:"cache_misses"`
	AvgCached   float64 `json:"avg_cached_confidence"`
}

// Option configures a Matcher.
type Option func(*Matcher)

// WithNow injects the clock used for cache expiry.
func WithNow(fn func() time.Time) Option {
	return func(m *Matcher) { m.now = fn }
}

// WithCacheTTL sets how long an unused cached mapping stays valid.
func WithCacheTTL(d time.Duration) Option {
	return func(m *Matcher) { m.ttl = d }
}

// Matcher scores names against an in-memory roster. It is safe for
// concurrent use after Initialize.
type Matcher struct {
	src RosterSource
	ttl time.Duration
	now func() time.Time
	log *zap.Logger

	mu     sync.Mutex
	roster []rosterEntry
	cache  map[string]*cacheEntry
	hits   int
	misses int
}

// New creates a Matcher over src.
func New(src RosterSource, opts ...Option) *Matcher {
	m := &Matcher{
		src:   src,
		ttl:   DefaultCacheTTL,
		now:   time.Now,
		log:   zap.L().With(zap.String("component", "matcher")),
		cache: make(map[string]*cacheEntry),
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Initialize loads the roster. Calling it again reloads the roster and
// clears the mapping cache.
func (m *Matcher) Initialize(ctx context.Context) error {
	players, err := m.src.ListPlayers(ctx)
	if err != nil {
		return eris.Wrap(err, "matcher: load roster")
	}

	roster := make([]rosterEntry, 0, len(players))
	for _, p := range players {
		roster = append(roster, rosterEntry{
			id:       p.ID,
			name:     NormalizeName(p.Name),
			team:     normalize.NormalizeTeam(p.TeamID),
			position: normalize.NormalizePosition(p.Position),
			jersey:   p.Jersey,
		})
	}

	m.mu.Lock()
	m.roster = roster
	m.cache = make(map[string]*cacheEntry)
	m.hits, m.misses = 0, 0
	m.mu.Unlock()

	m.log.Info("matcher: roster loaded", zap.Int("players", len(roster)))
	return nil
}

// MapPlayer returns the best roster match for the given identity, or nil
// when the name is too short or the roster is empty. Matches at or above
// CacheThreshold are cached by (name, team, position, jersey).
func (m *Matcher) MapPlayer(ctx context.Context, name, team, position, jersey string) (*model.PlayerMatch, error) {
	if err := ctx.Err(); err != nil {
		return nil, eris.Wrap(err, "matcher: map player")
	}
	n := NormalizeName(name)
	if len([]rune(n)) < 2 {
		return nil, nil
	}
	t := normalize.NormalizeTeam(team)
	p := normalize.NormalizePosition(position)
	key := n + "|" + t + "|" + p + "|" + jersey

	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if c, ok := m.cache[key]; ok && now.Sub(c.lastUsed) < m.ttl {
		c.uses++
		c.lastUsed = now
		m.hits++
		match := c.match
		match.MatchMethod = "cache"
		return &match, nil
	}
	m.misses++

	var best *model.PlayerMatch
	for i := range m.roster {
		conf, method := score(n, t, p, jersey, &m.roster[i])
		if best == nil || conf > best.Confidence {
			best = &model.PlayerMatch{CollegePlayerID: m.roster[i].id, Confidence: conf, MatchMethod: method}
		}
	}
	if best == nil {
		return nil, nil
	}
	best.Confidence = math.Max(0, math.Min(1, best.Confidence))

	if best.Confidence >= CacheThreshold {
		m.cache[key] = &cacheEntry{match: *best, lastUsed: now, uses: 1}
	}
	return best, nil
}

// score weights name similarity, team, position and jersey agreement.
func score(name, team, position, jersey string, e *rosterEntry) (float64, string) {
	sim := nameSimilarity(name, e.name)
	conf := sim * nameWeight
	method := "fuzzy"
	if sim == 1 {
		method = "exact"
	}
	if team != "" && team == e.team {
		conf += teamWeight
	}
	if position != "" && position == e.position {
		conf += positionWeight
	}
	if jersey != "" && e.jersey != "" {
		if jersey == e.jersey {
			conf += jerseyBonus
		} else {
			conf -= jerseyPenalty
		}
	}
	return conf, method
}

func nameSimilarity(a, b string) float64 {
	if a == b {
		return 1
	}
	if a == "" || b == "" {
		return 0
	}
	return math.Min(1, levenshtein.Similarity(a, b, nil)+variationBoost(a, b))
}

// PruneCache drops mappings unused for longer than the TTL, then the least
// used entries until the cache fits MaxCacheEntries. It returns the number
// removed.
func (m *Matcher) PruneCache() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	pruned := 0
	for k, c := range m.cache {
		if now.Sub(c.lastUsed) > m.ttl {
			delete(m.cache, k)
			pruned++
		}
	}
	if over := len(m.cache) - MaxCacheEntries; over > 0 {
		keys := make([]string, 0, len(m.cache))
		for k := range m.cache {
			keys = append(keys, k)
		}
		sort.Slice(keys, func(i, j int) bool { return m.cache[keys[i]].uses < m.cache[keys[j]].uses })
		for _, k := range keys[:over] {
			delete(m.cache, k)
			pruned++
		}
	}
	if pruned > 0 {
		m.log.Debug("matcher: pruned cache", zap.Int("removed", pruned))
	}
	return pruned
}

// Stats returns a snapshot of roster and cache counters.
func (m *Matcher) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := Stats{Players: len(m.roster), CacheSize: len(m.cache), CacheHits: m.hits, CacheMisses: m.misses}
	if len(m.cache) > 0 {
		var sum float64
		for _, c := range m.cache {
			sum += c.match.Confidence
		}
		s.AvgCached = sum / float64(len(m.cache))
	}
	return s
}
