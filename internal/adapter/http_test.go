package adapter

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/kpm34/college-football-fantasy-app-sub000/internal/model"
	"github.com/kpm34/college-football-fantasy-app-sub000/internal/resilience"
)

func newTestHTTP(url string) *HTTPAdapter {
	return NewHTTP(HTTPOptions{
		Name:       "espn",
		URL:        url,
		Source:     model.SourceVendorESPN,
		Confidence: 0.8,
		Headers:    map[string]string{"X-Api-Key": "k"},
		Timeout:    5 * time.Second,
		RatePerSec: 1000,
		Burst:      10,
	})
}

func TestHTTPAdapter_Fetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/depth/2025/3", r.URL.Path)
		assert.Equal(t, "k", r.Header.Get("X-Api-Key"))
		assert.Equal(t, "depthchart/1.0", r.Header.Get("User-Agent"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"name": "Jalen Milroe", "team": "alabama", "position": "QB", "depth_chart_rank": 1}]`))
	}))
	defer srv.Close()

	h := newTestHTTP(srv.URL + "/depth/{season}/{week}")
	recs, err := h.Fetch(context.Background(), 2025, 3)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, model.SourceVendorESPN, recs[0].Source)
	assert.Equal(t, srv.URL+"/depth/2025/3", recs[0].Provenance.SourceURL)
	assert.Equal(t, "http", recs[0].Provenance.Method)
}

func TestHTTPAdapter_StatusClassification(t *testing.T) {
	tests := []struct {
		status int
		want   resilience.ErrorKind
	}{
		{http.StatusTooManyRequests, resilience.KindRateLimit},
		{http.StatusBadGateway, resilience.KindNetwork},
		{http.StatusNotFound, resilience.KindValidation},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()

			_, err := newTestHTTP(srv.URL).Fetch(context.Background(), 2025, 1)
			require.Error(t, err)
			assert.Equal(t, tt.want, resilience.Classify(err))
		})
	}
}

func TestHTTPAdapter_RateLimitSlowsDown(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	h := newTestHTTP(srv.URL)
	_, err := h.Fetch(context.Background(), 2025, 1)
	require.Error(t, err)
	assert.Equal(t, rate.Limit(500), h.limiter.Limit())
}

func TestHTTPAdapter_RetriedThroughResilient(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if hits.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"records": [{"name": "Ryan Williams"}]}`))
	}))
	defer srv.Close()

	r := NewResilient(newTestHTTP(srv.URL), nil, fastRetry())
	recs, err := r.Fetch(context.Background(), 2025, 1)
	require.NoError(t, err)
	assert.Len(t, recs, 1)
	assert.Equal(t, int32(2), hits.Load())
}

func TestHTTPAdapter_BadBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`<html>`))
	}))
	defer srv.Close()

	_, err := newTestHTTP(srv.URL).Fetch(context.Background(), 2025, 1)
	require.Error(t, err)
	assert.Equal(t, resilience.KindParsing, resilience.Classify(err))
}

func TestHTTPAdapter_Ping(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodHead, r.Method)
		if r.URL.Path == "/down" {
			w.WriteHeader(http.StatusInternalServerError)
		}
	}))
	defer srv.Close()

	assert.NoError(t, newTestHTTP(srv.URL+"/depth/{season}").Ping(context.Background()))

	h := newTestHTTP(srv.URL)
	h.opts.HealthURL = srv.URL + "/down"
	assert.Error(t, h.Ping(context.Background()))
}

func TestAdaptiveLimiter(t *testing.T) {
	l := NewAdaptiveLimiter(10, 1)
	l.OnSuccess()
	assert.InDelta(t, 12, float64(l.Limit()), 1e-9)
	for i := 0; i < 10; i++ {
		l.OnSuccess()
	}
	assert.InDelta(t, 20, float64(l.Limit()), 1e-9)
	for i := 0; i < 10; i++ {
		l.OnRateLimit()
	}
	assert.InDelta(t, 2.5, float64(l.Limit()), 1e-9)
	require.NoError(t, l.Wait(context.Background()))
}
