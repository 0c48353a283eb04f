package config

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load without file: %v", err)
	}

	if cfg.Source.Type != "cloudwatch" || cfg.Source.Hours != 1 {
		t.Fatalf("bad source defaults: %+v", cfg.Source)
	}
	if cfg.Source.CloudWatch.Region != "ap-northeast-2" || cfg.Source.CloudWatch.Limit != 100 {
		t.Fatalf("bad cloudwatch defaults: %+v", cfg.Source.CloudWatch)
	}
	if cfg.Engine.RetentionDays != 30 {
		t.Fatalf("bad retention default: %d", cfg.Engine.RetentionDays)
	}
	if cfg.History.Backend != "file" || cfg.History.Path != "data/error-history.json" {
		t.Fatalf("bad history defaults: %+v", cfg.History)
	}
	if cfg.Watch.Interval != time.Hour || cfg.Watch.MetricsAddress != ":2112" {
		t.Fatalf("bad watch defaults: %+v", cfg.Watch)
	}
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := `
source:
  type: cloudwatch
  hours: 6
  cloudwatch:
    region: us-east-1
    logGroups:
      - /ecs/app/web
      - /ecs/app/worker
    limit: 500
engine:
  ignorePatterns:
    - KnownFlakyError
  retentionDays: 14
history:
  backend: valkey
  valkey:
    addr: localhost:6379
logging:
  level: debug
  json: true
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Source.Hours != 6 || cfg.Source.CloudWatch.Region != "us-east-1" {
		t.Fatalf("file values not applied: %+v", cfg.Source)
	}
	wantGroups := []string{"/ecs/app/web", "/ecs/app/worker"}
	if !reflect.DeepEqual(cfg.Source.CloudWatch.LogGroups, wantGroups) {
		t.Fatalf("bad log groups: %v", cfg.Source.CloudWatch.LogGroups)
	}
	if cfg.Engine.RetentionDays != 14 || len(cfg.Engine.IgnorePatterns) != 1 {
		t.Fatalf("bad engine config: %+v", cfg.Engine)
	}
	if cfg.History.Backend != "valkey" || cfg.History.Valkey.Addr != "localhost:6379" {
		t.Fatalf("bad history config: %+v", cfg.History)
	}
	// unset file fields keep their defaults
	if cfg.History.Valkey.LockTTL != 10*time.Minute {
		t.Fatalf("default lock TTL lost: %v", cfg.History.Valkey.LockTTL)
	}
	if !cfg.Logging.JSON || cfg.Logging.Level != "debug" {
		t.Fatalf("bad logging config: %+v", cfg.Logging)
	}
}

func TestLoadMissingFileErrors(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for explicit missing config file")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("LOGSIFT_HOURS", "12")
	t.Setenv("LOGSIFT_LOG_GROUPS", "/ecs/a, /ecs/b ,")
	t.Setenv("LOGSIFT_HISTORY_BACKEND", "valkey")
	t.Setenv("LOGSIFT_VALKEY_ADDR", "valkey.internal:6379")
	t.Setenv("SLACK_WEBHOOK_URL", "https://hooks.slack.com/services/T/B/X")
	t.Setenv("LOGSIFT_WATCH_INTERVAL", "30m")
	t.Setenv("LOGSIFT_LOG_FORMAT", "json")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Source.Hours != 12 {
		t.Fatalf("hours override lost: %d", cfg.Source.Hours)
	}
	if !reflect.DeepEqual(cfg.Source.CloudWatch.LogGroups, []string{"/ecs/a", "/ecs/b"}) {
		t.Fatalf("log group list not trimmed: %v", cfg.Source.CloudWatch.LogGroups)
	}
	if cfg.History.Backend != "valkey" || cfg.History.Valkey.Addr != "valkey.internal:6379" {
		t.Fatalf("valkey overrides lost: %+v", cfg.History)
	}
	if cfg.Slack.WebhookURL != "https://hooks.slack.com/services/T/B/X" {
		t.Fatalf("webhook override lost: %q", cfg.Slack.WebhookURL)
	}
	if cfg.Watch.Interval != 30*time.Minute {
		t.Fatalf("watch interval override lost: %v", cfg.Watch.Interval)
	}
	if !cfg.Logging.JSON {
		t.Fatal("log format override lost")
	}
}

func TestEnvOverridesIgnoreBadNumbers(t *testing.T) {
	t.Setenv("LOGSIFT_HOURS", "not-a-number")
	t.Setenv("LOGSIFT_RETENTION_DAYS", "also-bad")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Source.Hours != 1 || cfg.Engine.RetentionDays != 30 {
		t.Fatalf("bad numeric env must keep defaults: hours=%d retention=%d",
			cfg.Source.Hours, cfg.Engine.RetentionDays)
	}
}
