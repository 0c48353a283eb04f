package source

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs"
	cwltypes "github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs/types"

	"github.com/youngsu5582/logsift/internal/models"
	"github.com/youngsu5582/logsift/internal/utils"
)

const (
	defaultQueryLimit   = 100
	defaultPollInterval = 500 * time.Millisecond
)

// DefaultQueryPatterns is the coarse pre-filter applied server-side when the
// configuration names none.
var DefaultQueryPatterns = []string{"ERROR", "Exception", "FATAL"}

// InsightsAPI is the slice of the CloudWatch Logs client the source uses.
type InsightsAPI interface {
	StartQuery(ctx context.Context, params *cloudwatchlogs.StartQueryInput, optFns ...func(*cloudwatchlogs.Options)) (*cloudwatchlogs.StartQueryOutput, error)
	GetQueryResults(ctx context.Context, params *cloudwatchlogs.GetQueryResultsInput, optFns ...func(*cloudwatchlogs.Options)) (*cloudwatchlogs.GetQueryResultsOutput, error)
}

// CloudWatchConfig selects the log groups and the server-side filter for one
// deployment.
type CloudWatchConfig struct {
	Region        string
	Profile       string
	LogGroups     []string
	QueryPatterns []string
	Limit         int
	PollInterval  time.Duration
}

// CloudWatch fetches records through Logs Insights: one query per log group,
// polled to completion. A missing log group is logged and skipped; one bad
// group never fails the whole fetch.
type CloudWatch struct {
	client InsightsAPI
	logger *slog.Logger
	cfg    CloudWatchConfig
}

// NewCloudWatch resolves AWS credentials for the configured region/profile
// and builds the source.
func NewCloudWatch(ctx context.Context, cfg CloudWatchConfig, logger *slog.Logger) (*CloudWatch, error) {
	if len(cfg.LogGroups) == 0 {
		return nil, errors.New("cloudwatch source requires at least one log group")
	}

	loadOpts := []func(*awsconfig.LoadOptions) error{}
	if cfg.Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(cfg.Region))
	}
	if cfg.Profile != "" {
		loadOpts = append(loadOpts, awsconfig.WithSharedConfigProfile(cfg.Profile))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, utils.NewAppError("source.cloudwatch", "load AWS configuration", err)
	}

	return NewCloudWatchWithClient(cloudwatchlogs.NewFromConfig(awsCfg), cfg, logger), nil
}

// NewCloudWatchWithClient builds the source around an existing client.
// Tests inject a fake InsightsAPI here.
func NewCloudWatchWithClient(client InsightsAPI, cfg CloudWatchConfig, logger *slog.Logger) *CloudWatch {
	if logger == nil {
		logger = slog.Default()
	}
	if len(cfg.QueryPatterns) == 0 {
		cfg.QueryPatterns = DefaultQueryPatterns
	}
	if cfg.Limit <= 0 {
		cfg.Limit = defaultQueryLimit
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	return &CloudWatch{client: client, logger: logger, cfg: cfg}
}

// Fetch runs the Insights query across every configured log group and
// concatenates the results. Each record's Source is its log group name.
func (c *CloudWatch) Fetch(ctx context.Context, window models.Window) ([]models.LogRecord, error) {
	query := c.buildQuery()
	var records []models.LogRecord

	for _, group := range c.cfg.LogGroups {
		groupRecords, err := c.queryGroup(ctx, group, query, window)
		if err != nil {
			var notFound *cwltypes.ResourceNotFoundException
			if errors.As(err, &notFound) {
				c.logger.Warn("log group not found, skipping", slog.String("log_group", group))
				continue
			}
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			c.logger.Warn("log group query failed, skipping",
				slog.String("log_group", group), slog.Any("error", err))
			continue
		}
		records = append(records, groupRecords...)
	}
	return records, nil
}

func (c *CloudWatch) buildQuery() string {
	filters := make([]string, 0, len(c.cfg.QueryPatterns))
	for _, p := range c.cfg.QueryPatterns {
		filters = append(filters, fmt.Sprintf("@message like /%s/", p))
	}
	return fmt.Sprintf(
		"fields @timestamp, @message, @logStream | filter %s | sort @timestamp desc | limit %d",
		strings.Join(filters, " or "), c.cfg.Limit)
}

func (c *CloudWatch) queryGroup(ctx context.Context, group, query string, window models.Window) ([]models.LogRecord, error) {
	started, err := c.client.StartQuery(ctx, &cloudwatchlogs.StartQueryInput{
		LogGroupName: aws.String(group),
		StartTime:    aws.Int64(window.Start.Unix()),
		EndTime:      aws.Int64(window.End.Unix()),
		QueryString:  aws.String(query),
	})
	if err != nil {
		return nil, err
	}

	results, err := c.awaitResults(ctx, started.QueryId)
	if err != nil {
		return nil, err
	}

	records := make([]models.LogRecord, 0, len(results))
	for _, row := range results {
		rec := models.LogRecord{Source: group}
		for _, field := range row {
			if field.Field == nil || field.Value == nil {
				continue
			}
			switch *field.Field {
			case "@timestamp":
				rec.Timestamp = *field.Value
			case "@message":
				rec.Message = *field.Value
			}
		}
		if rec.Message == "" {
			continue
		}
		records = append(records, rec)
	}
	return records, nil
}

func (c *CloudWatch) awaitResults(ctx context.Context, queryID *string) ([][]cwltypes.ResultField, error) {
	ticker := time.NewTicker(c.cfg.PollInterval)
	defer ticker.Stop()

	for {
		out, err := c.client.GetQueryResults(ctx, &cloudwatchlogs.GetQueryResultsInput{QueryId: queryID})
		if err != nil {
			return nil, err
		}
		switch out.Status {
		case cwltypes.QueryStatusComplete:
			return out.Results, nil
		case cwltypes.QueryStatusFailed, cwltypes.QueryStatusCancelled:
			return nil, fmt.Errorf("insights query ended with status %s", out.Status)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}
