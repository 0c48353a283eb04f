// Package notify renders a run Report for humans. The engine itself never
// prints; whatever it returns lands here.
package notify

import (
	"context"
	"strings"

	"github.com/youngsu5582/logsift/internal/models"
)

// Notifier delivers one report. Implementations decide their own display
// limits and truncation.
type Notifier interface {
	Notify(ctx context.Context, report models.Report) error
}

// shortSource trims a log group path to its last segment:
// /ecs/my-app/production/web -> web.
func shortSource(source string) string {
	trimmed := strings.TrimRight(source, "/")
	if idx := strings.LastIndexByte(trimmed, '/'); idx >= 0 {
		return trimmed[idx+1:]
	}
	return trimmed
}

// shortSources renders the aggregate's contributing sources as one string.
func shortSources(g models.ClassifiedGroup) string {
	names := g.SourceNames()
	for i, n := range names {
		names[i] = shortSource(n)
	}
	return strings.Join(names, ", ")
}

// lastSeenClock extracts HH:MM out of an ISO-8601 timestamp string.
func lastSeenClock(ts string) string {
	if len(ts) >= 16 {
		return ts[11:16]
	}
	return ts
}
