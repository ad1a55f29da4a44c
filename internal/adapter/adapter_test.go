package adapter

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kpm34/college-football-fantasy-app-sub000/internal/model"
	"github.com/kpm34/college-football-fantasy-app-sub000/internal/resilience"
)

type stubAdapter struct {
	name  string
	errs  []error
	calls int
	recs  []model.RawDataRecord
}

func (s *stubAdapter) Name() string { return s.name }

func (s *stubAdapter) Fetch(context.Context, int, int) ([]model.RawDataRecord, error) {
	s.calls++
	if len(s.errs) > 0 {
		err := s.errs[0]
		s.errs = s.errs[1:]
		if err != nil {
			return nil, err
		}
	}
	return s.recs, nil
}

func (s *stubAdapter) Ping(context.Context) error { return nil }

func TestRegistry(t *testing.T) {
	reg := NewRegistry(&stubAdapter{name: "espn"})
	require.NoError(t, reg.Register(&stubAdapter{name: "cfbd"}))
	require.Error(t, reg.Register(&stubAdapter{name: "espn"}))

	assert.Equal(t, []string{"cfbd", "espn"}, reg.Names())
	assert.Equal(t, 2, reg.Len())
	_, ok := reg.Get("espn")
	assert.True(t, ok)
	_, ok = reg.Get("on3")
	assert.False(t, ok)
}

func TestBuild(t *testing.T) {
	a, err := Build(FeedConfig{Name: "notes", Kind: "file", Path: "/tmp/x.json", Source: "team_notes"})
	require.NoError(t, err)
	assert.IsType(t, &FileAdapter{}, a)

	a, err = Build(FeedConfig{Name: "espn", Kind: "http", URL: "https://example.com/{season}/{week}"})
	require.NoError(t, err)
	assert.IsType(t, &HTTPAdapter{}, a)

	_, err = Build(FeedConfig{Name: "x", Kind: "ftp"})
	assert.Error(t, err)
	_, err = Build(FeedConfig{Kind: "file", Path: "a"})
	assert.Error(t, err)
	_, err = Build(FeedConfig{Name: "x", Kind: "http"})
	assert.Error(t, err)

	_, err = BuildRegistry([]FeedConfig{{Name: "a", Path: "p"}, {Name: "a", Path: "q"}})
	assert.Error(t, err)
}

func fastRetry() ResilientOptions {
	return ResilientOptions{Backoff: resilience.Backoff{Attempts: 3, Base: time.Millisecond, Max: time.Millisecond}}
}

func TestResilient_RetriesTransient(t *testing.T) {
	inner := &stubAdapter{
		name: "espn",
		errs: []error{resilience.HTTPError(503, errors.New("down"))},
		recs: []model.RawDataRecord{{Source: model.SourceVendorESPN}},
	}
	r := NewResilient(inner, nil, fastRetry())

	recs, err := r.Fetch(context.Background(), 2025, 3)
	require.NoError(t, err)
	assert.Len(t, recs, 1)
	assert.Equal(t, 2, inner.calls)
	assert.Equal(t, "espn", r.Name())
}

func TestResilient_PermanentErrorNotRetried(t *testing.T) {
	inner := &stubAdapter{name: "espn", errs: []error{resilience.NewFetchError(resilience.KindParsing, errors.New("bad"))}}
	r := NewResilient(inner, nil, fastRetry())

	_, err := r.Fetch(context.Background(), 2025, 3)
	require.Error(t, err)
	assert.Equal(t, 1, inner.calls)
}

func TestResilient_BreakerOpens(t *testing.T) {
	down := resilience.NewFetchError(resilience.KindValidation, errors.New("bad"))
	inner := &stubAdapter{name: "espn", errs: []error{down, down, down}}
	br := resilience.NewBreaker("espn", resilience.BreakerConfig{Threshold: 2, Cooldown: time.Hour})
	r := NewResilient(inner, br, fastRetry())

	for i := 0; i < 2; i++ {
		_, err := r.Fetch(context.Background(), 2025, 3)
		require.Error(t, err)
	}
	_, err := r.Fetch(context.Background(), 2025, 3)
	assert.ErrorIs(t, err, resilience.ErrCircuitOpen)
	assert.Equal(t, 2, inner.calls)
	assert.Equal(t, resilience.StateOpen, br.State())
}

func TestResilient_PerAttemptTimeout(t *testing.T) {
	slow := &slowAdapter{}
	r := NewResilient(slow, nil, ResilientOptions{
		Backoff: resilience.Backoff{Attempts: 2, Base: time.Millisecond},
		Timeout: 10 * time.Millisecond,
	})
	_, err := r.Fetch(context.Background(), 2025, 3)
	require.Error(t, err)
	assert.Equal(t, 2, slow.calls, "deadline exceeded is retried")
}

type slowAdapter struct{ calls int }

func (s *slowAdapter) Name() string { return "slow" }

func (s *slowAdapter) Fetch(ctx context.Context, _, _ int) ([]model.RawDataRecord, error) {
	s.calls++
	<-ctx.Done()
	return nil, ctx.Err()
}

func (s *slowAdapter) Ping(context.Context) error { return nil }
