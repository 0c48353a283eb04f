package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/youngsu5582/logsift/internal/models"
	"github.com/youngsu5582/logsift/internal/utils"
)

const (
	slackAttentionLimit = 10
	slackNoiseLimit     = 4
	slackKeyDisplayLen  = 60
	slackTimeout        = 10 * time.Second
	slackMaxRetries     = 3
)

// Slack posts the report to an incoming-webhook URL as Block Kit blocks:
// a header, the attention list with new-marks, a noise context line, and a
// deep link into the CloudWatch console.
type Slack struct {
	webhookURL string
	region     string
	client     *http.Client
}

// NewSlack builds a Slack notifier for the given webhook.
func NewSlack(webhookURL, region string) *Slack {
	return &Slack{
		webhookURL: webhookURL,
		region:     region,
		client:     &http.Client{Timeout: slackTimeout},
	}
}

// Notify sends the report. An empty report (no patterns at all) sends nothing.
func (s *Slack) Notify(ctx context.Context, report models.Report) error {
	if len(report.Attention) == 0 && len(report.Noise) == 0 {
		return nil
	}

	payload, err := json.Marshal(map[string]any{"blocks": s.buildBlocks(report)})
	if err != nil {
		return fmt.Errorf("slack: marshal payload: %w", err)
	}
	return s.postWithRetry(ctx, payload)
}

func (s *Slack) buildBlocks(report models.Report) []map[string]any {
	headline := fmt.Sprintf("CloudWatch errors (%d need attention)", len(report.Attention))
	if len(report.Attention) == 0 {
		headline = fmt.Sprintf("CloudWatch: %d records, all ignorable", report.TotalRecords)
	}

	blocks := []map[string]any{
		{
			"type": "header",
			"text": map[string]any{"type": "plain_text", "text": headline, "emoji": true},
		},
	}

	if len(report.Attention) > 0 {
		lines := make([]string, 0, slackAttentionLimit+1)
		for i, g := range report.Attention {
			if i == slackAttentionLimit {
				lines = append(lines, fmt.Sprintf("_and %d more_", len(report.Attention)-slackAttentionLimit))
				break
			}
			mark := ""
			if report.IsNew(g.Signature) {
				mark = ":new: "
			}
			key := g.Signature
			if len(key) > slackKeyDisplayLen {
				key = utils.Truncate(key, slackKeyDisplayLen) + "..."
			}
			lines = append(lines, fmt.Sprintf("%s*%s* - %d (`%s`)", mark, key, g.Count, shortSources(g)))
		}
		blocks = append(blocks, map[string]any{
			"type": "section",
			"text": map[string]any{
				"type": "mrkdwn",
				"text": fmt.Sprintf("*Attention* (%d)\n%s", len(report.Attention), strings.Join(lines, "\n")),
			},
		})
	}

	if len(report.Noise) > 0 {
		names := make([]string, 0, slackNoiseLimit+1)
		for i, g := range report.Noise {
			if i == slackNoiseLimit {
				names = append(names, fmt.Sprintf("+%d more", len(report.Noise)-slackNoiseLimit))
				break
			}
			name, _, _ := strings.Cut(g.Signature, ":")
			names = append(names, name)
		}
		blocks = append(blocks, contextBlock(fmt.Sprintf("Ignored: %d patterns, %d records (%s)",
			len(report.Noise), report.NoiseCount(), strings.Join(names, ", "))))
	}

	if link := s.consoleLink(report); link != "" {
		blocks = append(blocks, contextBlock(fmt.Sprintf("<%s|Open CloudWatch console>", link)))
	}
	return blocks
}

// consoleLink deep-links the first contributing log group in the region's
// CloudWatch console.
func (s *Slack) consoleLink(report models.Report) string {
	if s.region == "" {
		return ""
	}
	groups := make([]string, 0)
	seen := make(map[string]struct{})
	collect := func(list []models.ClassifiedGroup) {
		for _, g := range list {
			for _, src := range g.SourceNames() {
				if _, ok := seen[src]; !ok {
					seen[src] = struct{}{}
					groups = append(groups, src)
				}
			}
		}
	}
	collect(report.Attention)
	collect(report.Noise)
	if len(groups) == 0 {
		return ""
	}
	sort.Strings(groups)

	// The console double-escapes slashes in log group names.
	escaped := strings.ReplaceAll(groups[0], "/", "$252F")
	return fmt.Sprintf(
		"https://%s.console.aws.amazon.com/cloudwatch/home?region=%s#logsV2:log-groups/log-group/%s",
		s.region, s.region, escaped)
}

func contextBlock(text string) map[string]any {
	return map[string]any{
		"type":     "context",
		"elements": []map[string]any{{"type": "mrkdwn", "text": text}},
	}
}

// postWithRetry POSTs the payload, retrying only on 5xx.
func (s *Slack) postWithRetry(ctx context.Context, payload []byte) error {
	var lastErr error
	for attempt := 0; attempt < slackMaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Duration(1<<(attempt-1)) * time.Second):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.webhookURL, bytes.NewReader(payload))
		if err != nil {
			return fmt.Errorf("slack: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := s.client.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("slack: %w", err)
			continue
		}
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return nil
		}
		lastErr = fmt.Errorf("slack: HTTP %d", resp.StatusCode)
		if resp.StatusCode < 500 {
			return lastErr
		}
	}
	return lastErr
}
