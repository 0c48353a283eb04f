// Package history tracks signature lifecycle across runs: when a pattern was
// first seen, when it last appeared, and how many times in total. The whole
// map is loaded at the start of a run, mutated in memory, and rewritten on
// save; there is no partial persistence.
package history

import (
	"context"
	"time"

	"github.com/youngsu5582/logsift/internal/models"
)

// DayFormat is the date-only layout used for first/last-seen fields.
const DayFormat = "2006-01-02"

// DefaultRetentionDays is how long a signature may go unseen before its
// entry is purged.
const DefaultRetentionDays = 30

// Entry is the persisted lifecycle of one signature. Field names are part of
// the on-disk contract; existing history files must keep round-tripping.
type Entry struct {
	FirstSeen  string `json:"first_seen"`
	LastSeen   string `json:"last_seen"`
	TotalCount int    `json:"total_count"`
}

// Map is the full persisted state, keyed by signature.
type Map map[string]Entry

// Store persists a history Map between runs. Load recovers missing or
// corrupt state as an empty map (first run is a normal cold start); it
// returns an error only when the backend itself is unreachable.
type Store interface {
	Load(ctx context.Context) (Map, error)
	Save(ctx context.Context, h Map) error
}

// Update folds this run's classified groups into the history and returns the
// set of signatures seen for the first time. TotalCount accumulates across
// the signature's lifetime; it only restarts after the entry expires and the
// pattern later resurfaces, which deliberately re-flags it as new.
func Update(h Map, groups []models.ClassifiedGroup, today time.Time) map[string]struct{} {
	day := today.Format(DayFormat)
	newSignatures := make(map[string]struct{})

	for _, g := range groups {
		entry, ok := h[g.Signature]
		if !ok {
			entry = Entry{FirstSeen: day, LastSeen: day}
			newSignatures[g.Signature] = struct{}{}
		}
		entry.LastSeen = day
		entry.TotalCount += g.Count
		h[g.Signature] = entry
	}

	return newSignatures
}

// Expire removes entries whose last-seen date is strictly older than
// today - retentionDays. An entry exactly at the boundary is retained. Must
// run after Update so signatures from the current run survive the pass.
func Expire(h Map, today time.Time, retentionDays int) {
	if retentionDays <= 0 {
		retentionDays = DefaultRetentionDays
	}
	cutoff := today.AddDate(0, 0, -retentionDays).Format(DayFormat)

	for sig, entry := range h {
		if entry.LastSeen < cutoff {
			delete(h, sig)
		}
	}
}
