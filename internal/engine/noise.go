package engine

import (
	"fmt"
	"regexp"
	"sort"

	"github.com/youngsu5582/logsift/internal/models"
)

// builtinNoisePatterns cover failure shapes that recur in any networked
// deployment and are rarely actionable on their own. Custom patterns extend
// this list; they cannot reorder it or un-ignore a built-in match.
var builtinNoisePatterns = []string{
	// Network / external API
	`SocketTimeoutException`,
	`ConnectTimeoutException`,
	`HttpHostConnectException`,
	`ConnectionRefused`,
	`UnknownHostException`,
	`NoRouteToHostException`,
	`SSLHandshakeException`,
	`SocketException`,
	// Client disconnection
	`ClientAbortException`,
	`Broken pipe`,
	`Connection reset by peer`,
	`EOFException`,
	// Rate limiting / throttling
	`TooManyRequestsException`,
	`ThrottlingException`,
	`RateLimitException`,
}

// Classifier partitions signature aggregates into attention and noise.
type Classifier struct {
	patterns []*regexp.Regexp
}

// NewClassifier compiles the combined pattern list (built-ins first, then
// caller-supplied). A custom pattern that fails to compile is reported here,
// before any records are processed, so a bad configuration never partially
// classifies a batch.
func NewClassifier(customPatterns []string) (*Classifier, error) {
	combined := append(append([]string(nil), builtinNoisePatterns...), customPatterns...)

	compiled := make([]*regexp.Regexp, 0, len(combined))
	for _, p := range combined {
		re, err := regexp.Compile(`(?i)` + p)
		if err != nil {
			return nil, fmt.Errorf("compile noise pattern %q: %w", p, err)
		}
		compiled = append(compiled, re)
	}
	return &Classifier{patterns: compiled}, nil
}

// Classify splits the aggregates: a signature matching any pattern is noise,
// everything else needs attention. Both lists are ordered by count
// descending with signature ascending as the tiebreak, so identical input
// always yields identical output.
func (c *Classifier) Classify(groups map[string]*models.SignatureAggregate) (attention, noise []models.ClassifiedGroup) {
	for _, agg := range groups {
		g := models.ClassifiedGroup{SignatureAggregate: *agg, IsNoise: c.isNoise(agg.Signature)}
		if g.IsNoise {
			noise = append(noise, g)
		} else {
			attention = append(attention, g)
		}
	}

	sortGroups(attention)
	sortGroups(noise)
	return attention, noise
}

func (c *Classifier) isNoise(sig string) bool {
	for _, re := range c.patterns {
		if re.MatchString(sig) {
			return true
		}
	}
	return false
}

func sortGroups(groups []models.ClassifiedGroup) {
	sort.Slice(groups, func(i, j int) bool {
		if groups[i].Count != groups[j].Count {
			return groups[i].Count > groups[j].Count
		}
		return groups[i].Signature < groups[j].Signature
	})
}
