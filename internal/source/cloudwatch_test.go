package source

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs"
	cwltypes "github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs/types"

	"github.com/youngsu5582/logsift/internal/models"
	"github.com/youngsu5582/logsift/internal/utils"
)

type fakeInsights struct {
	startErr    map[string]error
	results     map[string][][]cwltypes.ResultField
	pendingPoll int

	queries []string
}

func (f *fakeInsights) StartQuery(_ context.Context, params *cloudwatchlogs.StartQueryInput, _ ...func(*cloudwatchlogs.Options)) (*cloudwatchlogs.StartQueryOutput, error) {
	group := aws.ToString(params.LogGroupName)
	f.queries = append(f.queries, aws.ToString(params.QueryString))
	if err := f.startErr[group]; err != nil {
		return nil, err
	}
	return &cloudwatchlogs.StartQueryOutput{QueryId: aws.String(group)}, nil
}

func (f *fakeInsights) GetQueryResults(_ context.Context, params *cloudwatchlogs.GetQueryResultsInput, _ ...func(*cloudwatchlogs.Options)) (*cloudwatchlogs.GetQueryResultsOutput, error) {
	if f.pendingPoll > 0 {
		f.pendingPoll--
		return &cloudwatchlogs.GetQueryResultsOutput{Status: cwltypes.QueryStatusRunning}, nil
	}
	return &cloudwatchlogs.GetQueryResultsOutput{
		Status:  cwltypes.QueryStatusComplete,
		Results: f.results[aws.ToString(params.QueryId)],
	}, nil
}

func resultRow(timestamp, message string) []cwltypes.ResultField {
	return []cwltypes.ResultField{
		{Field: aws.String("@timestamp"), Value: aws.String(timestamp)},
		{Field: aws.String("@message"), Value: aws.String(message)},
	}
}

func testWindow() models.Window {
	return models.Window{
		Start: time.Date(2026, 8, 30, 9, 0, 0, 0, time.UTC),
		End:   time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC),
	}
}

func TestCloudWatchFetchTagsRecordsWithLogGroup(t *testing.T) {
	fake := &fakeInsights{
		results: map[string][][]cwltypes.ResultField{
			"/ecs/app/web": {
				resultRow("2026-08-30 09:10:00.000", "com.foo.NullPointerException: boom"),
			},
			"/ecs/app/worker": {
				resultRow("2026-08-30 09:20:00.000", "com.foo.SocketTimeoutException: Read timed out"),
			},
		},
	}
	src := NewCloudWatchWithClient(fake, CloudWatchConfig{
		LogGroups:    []string{"/ecs/app/web", "/ecs/app/worker"},
		PollInterval: time.Millisecond,
	}, utils.NewLogger("error", false))

	records, err := src.Fetch(context.Background(), testWindow())
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	if records[0].Source != "/ecs/app/web" || records[1].Source != "/ecs/app/worker" {
		t.Fatalf("records not tagged with their log group: %+v", records)
	}
}

func TestCloudWatchFetchSkipsMissingLogGroup(t *testing.T) {
	fake := &fakeInsights{
		startErr: map[string]error{
			"/ecs/app/gone": &cwltypes.ResourceNotFoundException{Message: aws.String("no such group")},
		},
		results: map[string][][]cwltypes.ResultField{
			"/ecs/app/web": {
				resultRow("2026-08-30 09:10:00.000", "RealError: kept"),
			},
		},
	}
	src := NewCloudWatchWithClient(fake, CloudWatchConfig{
		LogGroups:    []string{"/ecs/app/gone", "/ecs/app/web"},
		PollInterval: time.Millisecond,
	}, utils.NewLogger("error", false))

	records, err := src.Fetch(context.Background(), testWindow())
	if err != nil {
		t.Fatalf("missing group must not fail the fetch: %v", err)
	}
	if len(records) != 1 || records[0].Message != "RealError: kept" {
		t.Fatalf("expected the surviving group's record, got %+v", records)
	}
}

func TestCloudWatchFetchPollsUntilComplete(t *testing.T) {
	fake := &fakeInsights{
		pendingPoll: 2,
		results: map[string][][]cwltypes.ResultField{
			"/ecs/app/web": {
				resultRow("2026-08-30 09:10:00.000", "SlowQueryError: eventually done"),
			},
		},
	}
	src := NewCloudWatchWithClient(fake, CloudWatchConfig{
		LogGroups:    []string{"/ecs/app/web"},
		PollInterval: time.Millisecond,
	}, utils.NewLogger("error", false))

	records, err := src.Fetch(context.Background(), testWindow())
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 record after polling, got %d", len(records))
	}
}

func TestCloudWatchBuildQueryIncludesPatternsAndLimit(t *testing.T) {
	fake := &fakeInsights{}
	src := NewCloudWatchWithClient(fake, CloudWatchConfig{
		LogGroups:     []string{"/ecs/app/web"},
		QueryPatterns: []string{"ERROR", "FATAL"},
		Limit:         42,
		PollInterval:  time.Millisecond,
	}, utils.NewLogger("error", false))

	if _, err := src.Fetch(context.Background(), testWindow()); err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(fake.queries) != 1 {
		t.Fatalf("expected one query, got %d", len(fake.queries))
	}
	q := fake.queries[0]
	for _, want := range []string{"@message like /ERROR/", "@message like /FATAL/", "limit 42"} {
		if !strings.Contains(q, want) {
			t.Fatalf("query missing %q: %s", want, q)
		}
	}
}

func TestCloudWatchRequiresLogGroups(t *testing.T) {
	if _, err := NewCloudWatch(context.Background(), CloudWatchConfig{}, nil); err == nil {
		t.Fatal("expected error for empty log group list")
	}
}
