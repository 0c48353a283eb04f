package models

import (
	"sort"
	"time"
)

// SignatureAggregate accumulates every record that normalized to one
// signature within a single run. Sample is pinned to the first record seen
// and never overwritten.
type SignatureAggregate struct {
	Signature string
	Count     int
	Sources   map[string]struct{}
	LastSeen  string
	Sample    string
}

// AddSource records the originating log group/stream for the aggregate.
func (a *SignatureAggregate) AddSource(source string) {
	if source == "" {
		return
	}
	if a.Sources == nil {
		a.Sources = make(map[string]struct{})
	}
	a.Sources[source] = struct{}{}
}

// SourceNames returns the contributing sources in sorted order.
func (a *SignatureAggregate) SourceNames() []string {
	names := make([]string, 0, len(a.Sources))
	for s := range a.Sources {
		names = append(names, s)
	}
	sort.Strings(names)
	return names
}

// ClassifiedGroup is an aggregate after noise classification.
type ClassifiedGroup struct {
	SignatureAggregate
	IsNoise bool
}

// Report is the outcome of one run, handed to notifiers. Attention and Noise
// are ordered by count descending, signature ascending.
type Report struct {
	RunID         string
	GeneratedAt   time.Time
	Window        Window
	TotalRecords  int
	Attention     []ClassifiedGroup
	Noise         []ClassifiedGroup
	NewSignatures map[string]struct{}
}

// IsNew reports whether the signature first appeared in this run.
func (r Report) IsNew(signature string) bool {
	_, ok := r.NewSignatures[signature]
	return ok
}

// NoiseCount sums raw record counts across all noise groups.
func (r Report) NoiseCount() int {
	total := 0
	for _, g := range r.Noise {
		total += g.Count
	}
	return total
}
