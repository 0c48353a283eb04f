package notify

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/youngsu5582/logsift/internal/models"
)

// noiseDigestLimit caps how many noise signatures the one-line digest names.
const noiseDigestLimit = 5

// Console renders the report as plain text. Attention groups get one block
// each; noise collapses into a single digest line.
type Console struct {
	w io.Writer
}

// NewConsole builds a console notifier writing to w.
func NewConsole(w io.Writer) *Console {
	return &Console{w: w}
}

// Notify writes the full analysis.
func (c *Console) Notify(_ context.Context, report models.Report) error {
	divider := strings.Repeat("-", 50)
	patterns := len(report.Attention) + len(report.Noise)

	fmt.Fprintln(c.w, divider)
	fmt.Fprintln(c.w, "error analysis")
	fmt.Fprintln(c.w, divider)
	fmt.Fprintf(c.w, "last %dh | %d records -> %d patterns (%d attention, %d noise)\n",
		report.Window.Hours(), report.TotalRecords, patterns,
		len(report.Attention), len(report.Noise))

	if len(report.Attention) == 0 {
		fmt.Fprintln(c.w, "\nno errors need attention")
	} else {
		fmt.Fprintf(c.w, "\nattention (%d)\n", len(report.Attention))
		for _, g := range report.Attention {
			mark := ""
			if report.IsNew(g.Signature) {
				mark = "[new] "
			}
			fmt.Fprintf(c.w, "  %s%s (%d)\n", mark, g.Signature, g.Count)
			fmt.Fprintf(c.w, "      %s | last: %s\n", shortSources(g), lastSeenClock(g.LastSeen))
		}
	}

	if len(report.Noise) > 0 {
		fmt.Fprintf(c.w, "\nignored (%d patterns, %d records)\n", len(report.Noise), report.NoiseCount())
		fmt.Fprintf(c.w, "  %s\n", noiseDigest(report.Noise))
	}

	fmt.Fprintln(c.w, divider)
	return nil
}

// noiseDigest names the top noise signatures by class name with counts, e.g.
// "SocketTimeoutException(12), EOFException(3), +2 more".
func noiseDigest(noise []models.ClassifiedGroup) string {
	parts := make([]string, 0, noiseDigestLimit)
	for i, g := range noise {
		if i == noiseDigestLimit {
			break
		}
		name, _, _ := strings.Cut(g.Signature, ":")
		parts = append(parts, fmt.Sprintf("%s(%d)", name, g.Count))
	}
	if rest := len(noise) - noiseDigestLimit; rest > 0 {
		parts = append(parts, fmt.Sprintf("+%d more", rest))
	}
	return strings.Join(parts, ", ")
}
