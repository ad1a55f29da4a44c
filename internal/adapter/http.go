package adapter

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/kpm34/college-football-fantasy-app-sub000/internal/model"
	"github.com/kpm34/college-football-fantasy-app-sub000/internal/resilience"
)

// HTTPOptions configures an HTTPAdapter.
type HTTPOptions struct {
	Name string
	// URL may contain {season} and {week} placeholders.
	URL string
	// HealthURL is probed by Ping. Defaults to the root of URL.
	HealthURL  string
	Source     model.DataSource
	Confidence float64
	UserAgent  string
	Headers    map[string]string
	Timeout    time.Duration
	RatePerSec float64
	Burst      int
}

// HTTPAdapter pulls a JSON feed over HTTP under an adaptive rate limit.
// Retries are left to the Resilient wrapper; each Fetch is one request.
type HTTPAdapter struct {
	opts    HTTPOptions
	client  *http.Client
	limiter *AdaptiveLimiter
	now     func() time.Time
}

// NewHTTP creates an HTTPAdapter.
func NewHTTP(opts HTTPOptions) *HTTPAdapter {
	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "depthchart/1.0"
	}
	if opts.RatePerSec <= 0 {
		opts.RatePerSec = 2
	}
	if opts.Burst <= 0 {
		opts.Burst = 1
	}
	if opts.Source == "" {
		opts.Source = model.SourceUnknown
	}
	return &HTTPAdapter{
		opts: opts,
		client: &http.Client{
			Timeout: opts.Timeout,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 4,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		limiter: NewAdaptiveLimiter(rate.Limit(opts.RatePerSec), opts.Burst),
		now:     time.Now,
	}
}

// Name returns the configured adapter name.
func (h *HTTPAdapter) Name() string { return h.opts.Name }

// Fetch requests the feed for season and week.
func (h *HTTPAdapter) Fetch(ctx context.Context, season, week int) ([]model.RawDataRecord, error) {
	target := strings.NewReplacer(
		"{season}", strconv.Itoa(season),
		"{week}", strconv.Itoa(week),
	).Replace(h.opts.URL)

	resp, err := h.do(ctx, http.MethodGet, target)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode == http.StatusTooManyRequests {
		h.limiter.OnRateLimit()
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, resilience.HTTPError(resp.StatusCode, eris.Errorf("adapter: %s returned %d", h.opts.Name, resp.StatusCode))
	}
	h.limiter.OnSuccess()

	return decodeFeed(resp.Body, envelope{
		adapter:    h.opts.Name,
		source:     h.opts.Source,
		confidence: h.opts.Confidence,
		sourceURL:  target,
		method:     "http",
		fetchedAt:  h.now().UTC(),
	})
}

// Ping sends a HEAD request to the health URL. Any status below 500 counts
// as reachable.
func (h *HTTPAdapter) Ping(ctx context.Context) error {
	target := h.opts.HealthURL
	if target == "" {
		u, err := url.Parse(h.opts.URL)
		if err != nil {
			return eris.Wrap(err, "adapter: parse feed url")
		}
		target = u.Scheme + "://" + u.Host + "/"
	}
	resp, err := h.do(ctx, http.MethodHead, target)
	if err != nil {
		return err
	}
	_ = resp.Body.Close()
	if resp.StatusCode >= 500 {
		return resilience.HTTPError(resp.StatusCode, eris.Errorf("adapter: %s health returned %d", h.opts.Name, resp.StatusCode))
	}
	return nil
}

func (h *HTTPAdapter) do(ctx context.Context, method, target string) (*http.Response, error) {
	if err := h.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "adapter: rate limiter wait")
	}
	req, err := http.NewRequestWithContext(ctx, method, target, nil)
	if err != nil {
		return nil, resilience.NewFetchError(resilience.KindValidation, eris.Wrap(err, "adapter: create request"))
	}
	req.Header.Set("User-Agent", h.opts.UserAgent)
	req.Header.Set("Accept", "application/json")
	for k, v := range h.opts.Headers {
		req.Header.Set(k, v)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, resilience.NewFetchError(resilience.KindNetwork, eris.Wrapf(err, "adapter: %s %s", method, target))
	}
	return resp, nil
}
