package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/kpm34/college-football-fantasy-app-sub000/internal/adapter"
	"github.com/kpm34/college-football-fantasy-app-sub000/internal/model"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
	Ingest     IngestConfig     `yaml:"ingest" mapstructure:"ingest"`
	Matcher    MatcherConfig    `yaml:"matcher" mapstructure:"matcher"`
	Resolver   ResolverConfig   `yaml:"resolver" mapstructure:"resolver"`
	Adapters   AdaptersConfig   `yaml:"adapters" mapstructure:"adapters"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Monitoring MonitoringConfig `yaml:"monitoring" mapstructure:"monitoring"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// IngestConfig holds defaults for ingestion runs. Command-line flags
// override them per run.
type IngestConfig struct {
	Adapters           []string `yaml:"adapters" mapstructure:"adapters"`
	ParallelAdapters   bool     `yaml:"parallel_adapters" mapstructure:"parallel_adapters"`
	MaxRetries         int      `yaml:"max_retries" mapstructure:"max_retries"`
	AdapterTimeoutSecs int      `yaml:"adapter_timeout_secs" mapstructure:"adapter_timeout_secs"`
	CreateSnapshot     bool     `yaml:"create_snapshot" mapstructure:"create_snapshot"`
	SnapshotDir        string   `yaml:"snapshot_dir" mapstructure:"snapshot_dir"`
	DryRun             bool     `yaml:"dry_run" mapstructure:"dry_run"`
	BreakerThreshold   int      `yaml:"breaker_threshold" mapstructure:"breaker_threshold"`
	BreakerCooldownSec int      `yaml:"breaker_cooldown_secs" mapstructure:"breaker_cooldown_secs"`
}

// AdapterTimeout returns the per-attempt adapter deadline.
func (c IngestConfig) AdapterTimeout() time.Duration {
	return time.Duration(c.AdapterTimeoutSecs) * time.Second
}

// MatcherConfig tunes player identity matching.
type MatcherConfig struct {
	MinConfidence  float64 `yaml:"min_confidence" mapstructure:"min_confidence"`
	WarnConfidence float64 `yaml:"warn_confidence" mapstructure:"warn_confidence"`
	CacheTTLMins   int     `yaml:"cache_ttl_mins" mapstructure:"cache_ttl_mins"`
}

// ResolverConfig points at an optional strategy file.
type ResolverConfig struct {
	StrategyFile string `yaml:"strategy_file" mapstructure:"strategy_file"`
}

// AdaptersConfig lists the configured feeds.
type AdaptersConfig struct {
	Feeds []adapter.FeedConfig `yaml:"feeds" mapstructure:"feeds"`
}

// ServerConfig configures the HTTP trigger server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// MonitoringConfig configures run alerting.
type MonitoringConfig struct {
	WebhookURL           string  `yaml:"webhook_url" mapstructure:"webhook_url"`
	MinRecords           int     `yaml:"min_records" mapstructure:"min_records"`
	FailureRateThreshold float64 `yaml:"failure_rate_threshold" mapstructure:"failure_rate_threshold"`
	CheckIntervalSecs    int     `yaml:"check_interval_secs" mapstructure:"check_interval_secs"`
	LookbackWindowHours  int     `yaml:"lookback_window_hours" mapstructure:"lookback_window_hours"`
}

// Load reads configuration from ./config.yaml, if present, and environment.
func Load() (*Config, error) {
	return LoadFile("")
}

// LoadFile reads configuration from path and environment. An empty path
// falls back to an optional ./config.yaml; a named file must exist.
func LoadFile(path string) (*Config, error) {
	v := viper.New()

	// Config file
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
	}
	v.SetConfigType("yaml")

	// Environment
	v.SetEnvPrefix("DEPTHCHART")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "depthchart.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("ingest.parallel_adapters", true)
	v.SetDefault("ingest.max_retries", 3)
	v.SetDefault("ingest.adapter_timeout_secs", 30)
	v.SetDefault("ingest.create_snapshot", true)
	v.SetDefault("ingest.snapshot_dir", "snapshots")
	v.SetDefault("ingest.breaker_threshold", 5)
	v.SetDefault("ingest.breaker_cooldown_secs", 60)
	v.SetDefault("matcher.min_confidence", 0.5)
	v.SetDefault("matcher.warn_confidence", 0.8)
	v.SetDefault("matcher.cache_ttl_mins", 60)
	v.SetDefault("server.port", 8080)
	v.SetDefault("monitoring.min_records", 1)
	v.SetDefault("monitoring.failure_rate_threshold", 0.25)
	v.SetDefault("monitoring.check_interval_secs", 300)
	v.SetDefault("monitoring.lookback_window_hours", 24)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks the settings a command needs.
func (c *Config) Validate(mode string) error {
	var problems []string
	switch c.Store.Driver {
	case "sqlite", "postgres":
	default:
		problems = append(problems, fmt.Sprintf("store.driver must be sqlite or postgres, got %q", c.Store.Driver))
	}
	if c.Store.DatabaseURL == "" {
		problems = append(problems, "store.database_url is required")
	}
	if c.Matcher.MinConfidence < 0 || c.Matcher.MinConfidence > 1 {
		problems = append(problems, "matcher.min_confidence must be in [0,1]")
	}
	if c.Matcher.WarnConfidence < c.Matcher.MinConfidence {
		problems = append(problems, "matcher.warn_confidence must not be below matcher.min_confidence")
	}

	switch mode {
	case "run":
		if c.Ingest.MaxRetries < 0 {
			problems = append(problems, "ingest.max_retries must not be negative")
		}
		seen := make(map[string]bool, len(c.Adapters.Feeds))
		for i, f := range c.Adapters.Feeds {
			if f.Name == "" {
				problems = append(problems, fmt.Sprintf("adapters.feeds[%d].name is required", i))
				continue
			}
			if seen[f.Name] {
				problems = append(problems, fmt.Sprintf("adapters.feeds[%d]: duplicate name %q", i, f.Name))
			}
			seen[f.Name] = true
			if f.Source != "" && model.ParseDataSource(f.Source) == model.SourceUnknown {
				problems = append(problems, fmt.Sprintf("adapters.feeds[%d]: unknown source %q", i, f.Source))
			}
		}
	case "serve":
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			problems = append(problems, fmt.Sprintf("server.port must be 1-65535, got %d", c.Server.Port))
		}
	}

	if len(problems) > 0 {
		return eris.Errorf("config: invalid for %s: %s", mode, strings.Join(problems, "; "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
