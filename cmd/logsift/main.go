package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/youngsu5582/logsift/internal/cache"
	"github.com/youngsu5582/logsift/internal/config"
	"github.com/youngsu5582/logsift/internal/engine"
	"github.com/youngsu5582/logsift/internal/history"
	"github.com/youngsu5582/logsift/internal/metrics"
	"github.com/youngsu5582/logsift/internal/models"
	"github.com/youngsu5582/logsift/internal/notify"
	"github.com/youngsu5582/logsift/internal/signature"
	"github.com/youngsu5582/logsift/internal/source"
	"github.com/youngsu5582/logsift/internal/utils"
)

func main() {
	var (
		configPath  string
		hours       int
		logGroups   string
		patterns    string
		historyPath string
		slackMode   bool
		watchMode   bool
	)
	flag.StringVar(&configPath, "config", "", "Path to configuration file")
	flag.IntVar(&hours, "hours", 0, "Look back this many hours (overrides config)")
	flag.StringVar(&logGroups, "log-groups", "", "Comma-separated CloudWatch log groups (overrides config)")
	flag.StringVar(&patterns, "patterns", "", "Comma-separated coarse error patterns (overrides config)")
	flag.StringVar(&historyPath, "history", "", "History file path (overrides config)")
	flag.BoolVar(&slackMode, "slack", false, "Send a Slack notification when errors need attention")
	flag.BoolVar(&watchMode, "watch", false, "Run on an interval and serve Prometheus metrics")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		slog.Error("failed to load config", slog.String("path", configPath), slog.Any("error", err))
		os.Exit(1)
	}
	applyFlagOverrides(cfg, hours, logGroups, patterns, historyPath)

	logger := utils.NewLogger(cfg.Logging.Level, cfg.Logging.JSON)

	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		logger.Error("failed to register metrics", slog.Any("error", err))
		os.Exit(1)
	}

	app, err := buildApp(cfg, logger, slackMode)
	if err != nil {
		logger.Error("startup failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer app.close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if !watchMode {
		if err := app.runOnce(ctx); err != nil {
			logger.Error("run failed", slog.Any("error", err))
			os.Exit(1)
		}
		return
	}

	app.watch(ctx, cfg.Watch, stop)
}

// app bundles the wired components for one process lifetime.
type app struct {
	logger    *slog.Logger
	cfg       *config.Config
	src       source.Source
	runner    *engine.Runner
	notifiers []notify.Notifier
	lock      *cache.Lock
	provider  cache.Provider
	latencies *utils.LatencyTracker
}

func buildApp(cfg *config.Config, logger *slog.Logger, slackMode bool) (*app, error) {
	// A bad ignore pattern must surface before anything is fetched.
	classifier, err := engine.NewClassifier(cfg.Engine.IgnorePatterns)
	if err != nil {
		return nil, err
	}

	extractor := signature.New(signature.WithScrubFields(cfg.Engine.ScrubFields...))

	var provider cache.Provider
	if cfg.History.Valkey.Addr != "" {
		provider, err = cache.NewValkey(cache.ValkeyConfig{
			Addr:         cfg.History.Valkey.Addr,
			Username:     cfg.History.Valkey.Username,
			Password:     cfg.History.Valkey.Password,
			DB:           cfg.History.Valkey.DB,
			DialTimeout:  cfg.History.Valkey.DialTimeout,
			ReadTimeout:  cfg.History.Valkey.ReadTimeout,
			WriteTimeout: cfg.History.Valkey.WriteTimeout,
			MaxRetries:   cfg.History.Valkey.MaxRetries,
			TLS:          cfg.History.Valkey.TLS,
		})
		if err != nil {
			return nil, err
		}
	}

	var store history.Store
	switch cfg.History.Backend {
	case "valkey":
		if provider == nil {
			return nil, errors.New("history backend is valkey but no valkey addr is configured")
		}
		store = history.NewValkeyStore(provider, cfg.History.Key, logger)
	case "file", "":
		store = history.NewFileStore(cfg.History.Path, logger)
	default:
		return nil, fmt.Errorf("unknown history backend %q", cfg.History.Backend)
	}

	runner := engine.NewRunner(logger, extractor, classifier, store, cfg.Engine.RetentionDays)

	var src source.Source
	switch cfg.Source.Type {
	case "file":
		src = source.NewFile(cfg.Source.File.Path, logger)
	case "cloudwatch", "":
		src, err = source.NewCloudWatch(context.Background(), source.CloudWatchConfig{
			Region:        cfg.Source.CloudWatch.Region,
			Profile:       cfg.Source.CloudWatch.Profile,
			LogGroups:     cfg.Source.CloudWatch.LogGroups,
			QueryPatterns: cfg.Source.CloudWatch.QueryPatterns,
			Limit:         cfg.Source.CloudWatch.Limit,
			PollInterval:  cfg.Source.CloudWatch.PollInterval,
		}, logger)
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unknown source type %q", cfg.Source.Type)
	}

	notifiers := []notify.Notifier{notify.NewConsole(os.Stdout)}
	if slackMode || cfg.Slack.Enabled {
		if cfg.Slack.WebhookURL == "" {
			return nil, errors.New("slack requested but SLACK_WEBHOOK_URL is not set")
		}
		notifiers = append(notifiers, notify.NewSlack(cfg.Slack.WebhookURL, cfg.Source.CloudWatch.Region))
	}

	var lock *cache.Lock
	if provider != nil {
		lock = cache.NewLock(provider, cache.DefaultLockKey, uuid.NewString(), cfg.History.Valkey.LockTTL)
	}

	return &app{
		logger:    logger,
		cfg:       cfg,
		src:       src,
		runner:    runner,
		notifiers: notifiers,
		lock:      lock,
		provider:  provider,
		latencies: utils.NewLatencyTracker(256),
	}, nil
}

func (a *app) close() {
	if a.provider != nil {
		a.provider.Close()
	}
}

// runOnce executes one fetch-classify-notify cycle. Notification failures
// are warnings; the run outcome is decided by fetch and persistence.
func (a *app) runOnce(ctx context.Context) error {
	if a.lock != nil {
		acquired, err := a.lock.Acquire(ctx)
		if err != nil {
			a.logger.Warn("run lock unavailable, continuing unlocked", slog.Any("error", err))
		} else if !acquired {
			a.logger.Info("another run holds the lock, skipping")
			return nil
		} else {
			defer func() {
				if err := a.lock.Release(context.WithoutCancel(ctx)); err != nil {
					a.logger.Warn("run lock release failed", slog.Any("error", err))
				}
			}()
		}
	}

	start := time.Now()
	window := models.LastHours(a.cfg.Source.Hours)

	records, err := a.src.Fetch(ctx, window)
	if err != nil {
		metrics.ObserveRun(time.Since(start), metrics.OutcomeError)
		return fmt.Errorf("fetch records: %w", err)
	}

	report, runErr := a.runner.Run(ctx, records, window, time.Now())
	// A save failure still yields a complete report; notify before deciding
	// the run outcome so the alert is not lost with the history write.
	for _, n := range a.notifiers {
		if err := n.Notify(ctx, report); err != nil {
			a.logger.Warn("notification failed", slog.Any("error", err))
		}
	}

	duration := time.Since(start)
	a.latencies.Observe(duration)
	metrics.ObserveReport(report)
	if runErr != nil {
		metrics.ObserveRun(duration, metrics.OutcomeError)
		return runErr
	}
	metrics.ObserveRun(duration, metrics.OutcomeSuccess)
	return nil
}

// watch repeats runOnce on the configured interval and serves /metrics until
// a shutdown signal arrives.
func (a *app) watch(ctx context.Context, cfg config.WatchConfig, stop func()) {
	var metricsServer *http.Server
	if cfg.MetricsAddress != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metricsServer = &http.Server{
			Addr:         cfg.MetricsAddress,
			Handler:      mux,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 15 * time.Second,
		}
		go func() {
			a.logger.Info("metrics server listening", slog.String("address", cfg.MetricsAddress))
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				a.logger.Error("metrics server exited", slog.Any("error", err))
				stop()
			}
		}()
	}

	a.logger.Info("watch mode started", slog.Duration("interval", cfg.Interval))
	ticker := time.NewTicker(cfg.Interval)
	defer ticker.Stop()

	runs := 0
	for {
		if err := a.runOnce(ctx); err != nil && ctx.Err() == nil {
			a.logger.Error("run failed", slog.Any("error", err))
		}
		runs++
		if runs%20 == 0 {
			a.logger.Info("run latency",
				slog.Duration("p95", a.latencies.Percentile(95)),
				slog.Int("samples", a.latencies.Count()))
		}

		select {
		case <-ctx.Done():
			a.logger.Info("shutdown signal received")
			if metricsServer != nil {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				if err := metricsServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
					a.logger.Warn("metrics server shutdown", slog.Any("error", err))
				}
				cancel()
			}
			a.logger.Info("logsift stopped")
			return
		case <-ticker.C:
		}
	}
}

func applyFlagOverrides(cfg *config.Config, hours int, logGroups, patterns, historyPath string) {
	if hours > 0 {
		cfg.Source.Hours = hours
	}
	if logGroups != "" {
		cfg.Source.CloudWatch.LogGroups = splitFlagList(logGroups)
	}
	if patterns != "" {
		cfg.Source.CloudWatch.QueryPatterns = splitFlagList(patterns)
	}
	if historyPath != "" {
		cfg.History.Path = historyPath
	}
}

func splitFlagList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
