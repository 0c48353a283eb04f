package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config captures everything logsift needs for one deployment. All values
// are passed explicitly into the components that need them; there is no
// process-wide configuration state.
type Config struct {
	Source  SourceConfig  `yaml:"source"`
	Engine  EngineConfig  `yaml:"engine"`
	History HistoryConfig `yaml:"history"`
	Slack   SlackConfig   `yaml:"slack"`
	Watch   WatchConfig   `yaml:"watch"`
	Logging LoggingConfig `yaml:"logging"`
}

// SourceConfig selects where records come from.
type SourceConfig struct {
	Type       string           `yaml:"type"` // "cloudwatch" or "file"
	Hours      int              `yaml:"hours"`
	CloudWatch CloudWatchConfig `yaml:"cloudwatch"`
	File       FileConfig       `yaml:"file"`
}

// CloudWatchConfig configures the Logs Insights source.
type CloudWatchConfig struct {
	Region        string        `yaml:"region"`
	Profile       string        `yaml:"profile"`
	LogGroups     []string      `yaml:"logGroups"`
	QueryPatterns []string      `yaml:"queryPatterns"`
	Limit         int           `yaml:"limit"`
	PollInterval  time.Duration `yaml:"pollInterval"`
}

// FileConfig configures the NDJSON file source.
type FileConfig struct {
	Path string `yaml:"path"`
}

// EngineConfig tunes classification.
type EngineConfig struct {
	IgnorePatterns []string `yaml:"ignorePatterns"`
	ScrubFields    []string `yaml:"scrubFields"`
	RetentionDays  int      `yaml:"retentionDays"`
}

// HistoryConfig selects and configures the signature history backend.
type HistoryConfig struct {
	Backend string       `yaml:"backend"` // "file" or "valkey"
	Path    string       `yaml:"path"`
	Key     string       `yaml:"key"`
	Valkey  ValkeyConfig `yaml:"valkey"`
}

// ValkeyConfig holds connection settings for the remote history backend and
// the run lock.
type ValkeyConfig struct {
	Addr         string        `yaml:"addr"`
	Username     string        `yaml:"username"`
	Password     string        `yaml:"password"`
	DB           int           `yaml:"db"`
	DialTimeout  time.Duration `yaml:"dialTimeout"`
	ReadTimeout  time.Duration `yaml:"readTimeout"`
	WriteTimeout time.Duration `yaml:"writeTimeout"`
	MaxRetries   int           `yaml:"maxRetries"`
	TLS          bool          `yaml:"tls"`
	LockTTL      time.Duration `yaml:"lockTTL"`
}

// SlackConfig controls webhook notification. The URL comes from the
// SLACK_WEBHOOK_URL environment variable and is never written to disk.
type SlackConfig struct {
	Enabled    bool   `yaml:"enabled"`
	WebhookURL string `yaml:"-"`
}

// WatchConfig controls interval mode.
type WatchConfig struct {
	Interval       time.Duration `yaml:"interval"`
	MetricsAddress string        `yaml:"metricsAddress"`
}

// LoggingConfig controls structured logging.
type LoggingConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// Load initialises Config from a YAML file and environment overrides.
// An empty path falls back to the LOGSIFT_CONFIG environment variable;
// running with no file at all is fine as long as flags/env fill the gaps.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("LOGSIFT_CONFIG")
	}

	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("config file %s not found: %w", path, err)
			}
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	return &cfg, nil
}

func defaultConfig() Config {
	return Config{
		Source: SourceConfig{
			Type:  "cloudwatch",
			Hours: 1,
			CloudWatch: CloudWatchConfig{
				Region:       "ap-northeast-2",
				Limit:        100,
				PollInterval: 500 * time.Millisecond,
			},
		},
		Engine: EngineConfig{
			RetentionDays: 30,
		},
		History: HistoryConfig{
			Backend: "file",
			Path:    "data/error-history.json",
			Valkey: ValkeyConfig{
				DialTimeout:  2 * time.Second,
				ReadTimeout:  500 * time.Millisecond,
				WriteTimeout: 500 * time.Millisecond,
				MaxRetries:   2,
				LockTTL:      10 * time.Minute,
			},
		},
		Watch: WatchConfig{
			Interval:       time.Hour,
			MetricsAddress: ":2112",
		},
		Logging: LoggingConfig{Level: "info", JSON: false},
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("LOGSIFT_SOURCE_TYPE"); v != "" {
		cfg.Source.Type = v
	}
	if v := os.Getenv("LOGSIFT_HOURS"); v != "" {
		if hours, err := strconv.Atoi(v); err == nil {
			cfg.Source.Hours = hours
		}
	}
	if v := os.Getenv("LOGSIFT_AWS_REGION"); v != "" {
		cfg.Source.CloudWatch.Region = v
	}
	if v := os.Getenv("LOGSIFT_AWS_PROFILE"); v != "" {
		cfg.Source.CloudWatch.Profile = v
	}
	if v := os.Getenv("LOGSIFT_LOG_GROUPS"); v != "" {
		cfg.Source.CloudWatch.LogGroups = splitList(v)
	}
	if v := os.Getenv("LOGSIFT_QUERY_PATTERNS"); v != "" {
		cfg.Source.CloudWatch.QueryPatterns = splitList(v)
	}
	if v := os.Getenv("LOGSIFT_RECORDS_FILE"); v != "" {
		cfg.Source.File.Path = v
	}
	if v := os.Getenv("LOGSIFT_IGNORE_PATTERNS"); v != "" {
		cfg.Engine.IgnorePatterns = splitList(v)
	}
	if v := os.Getenv("LOGSIFT_RETENTION_DAYS"); v != "" {
		if days, err := strconv.Atoi(v); err == nil {
			cfg.Engine.RetentionDays = days
		}
	}
	if v := os.Getenv("LOGSIFT_HISTORY_BACKEND"); v != "" {
		cfg.History.Backend = v
	}
	if v := os.Getenv("LOGSIFT_HISTORY_PATH"); v != "" {
		cfg.History.Path = v
	}
	if v := os.Getenv("LOGSIFT_VALKEY_ADDR"); v != "" {
		cfg.History.Valkey.Addr = v
	}
	if v := os.Getenv("LOGSIFT_VALKEY_USERNAME"); v != "" {
		cfg.History.Valkey.Username = v
	}
	if v := os.Getenv("LOGSIFT_VALKEY_PASSWORD"); v != "" {
		cfg.History.Valkey.Password = v
	}
	if v := os.Getenv("LOGSIFT_VALKEY_DB"); v != "" {
		if db, err := strconv.Atoi(v); err == nil {
			cfg.History.Valkey.DB = db
		}
	}
	if v := os.Getenv("LOGSIFT_VALKEY_TLS"); strings.EqualFold(v, "true") || v == "1" {
		cfg.History.Valkey.TLS = true
	}
	if v := os.Getenv("SLACK_WEBHOOK_URL"); v != "" {
		cfg.Slack.WebhookURL = v
	}
	if v := os.Getenv("LOGSIFT_WATCH_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Watch.Interval = d
		}
	}
	if v := os.Getenv("LOGSIFT_METRICS_ADDRESS"); v != "" {
		cfg.Watch.MetricsAddress = v
	}
	if v := os.Getenv("LOGSIFT_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("LOGSIFT_LOG_FORMAT"); v == "json" {
		cfg.Logging.JSON = true
	}
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
