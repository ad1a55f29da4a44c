package adapter

import (
	"github.com/rotisserie/eris"

	"github.com/kpm34/college-football-fantasy-app-sub000/internal/model"
)

// FeedConfig declares one configured feed.
type FeedConfig struct {
	Name       string            `mapstructure:"name"`
	Kind       string            `mapstructure:"kind"`
	Source     string            `mapstructure:"source"`
	Path       string            `mapstructure:"path"`
	URL        string            `mapstructure:"url"`
	HealthURL  string            `mapstructure:"health_url"`
	Headers    map[string]string `mapstructure:"headers"`
	RatePerSec float64           `mapstructure:"rate_per_sec"`
	Confidence float64           `mapstructure:"confidence"`
}

// Build constructs the adapter a feed declares.
func Build(fc FeedConfig) (Adapter, error) {
	if fc.Name == "" {
		return nil, eris.New("adapter: feed name is required")
	}
	src := model.ParseDataSource(fc.Source)
	switch fc.Kind {
	case "file", "":
		if fc.Path == "" {
			return nil, eris.Errorf("adapter: feed %s: path is required", fc.Name)
		}
		return NewFile(FileOptions{Name: fc.Name, Path: fc.Path, Source: src, Confidence: fc.Confidence}), nil
	case "http":
		if fc.URL == "" {
			return nil, eris.Errorf("adapter: feed %s: url is required", fc.Name)
		}
		return NewHTTP(HTTPOptions{
			Name:       fc.Name,
			URL:        fc.URL,
			HealthURL:  fc.HealthURL,
			Source:     src,
			Confidence: fc.Confidence,
			Headers:    fc.Headers,
			RatePerSec: fc.RatePerSec,
		}), nil
	}
	return nil, eris.Errorf("adapter: feed %s: unknown kind %q", fc.Name, fc.Kind)
}

// BuildRegistry builds every feed into a registry.
func BuildRegistry(feeds []FeedConfig) (*Registry, error) {
	reg := NewRegistry()
	for _, fc := range feeds {
		a, err := Build(fc)
		if err != nil {
			return nil, err
		}
		if err := reg.Register(a); err != nil {
			return nil, err
		}
	}
	return reg, nil
}
