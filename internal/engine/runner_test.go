package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/youngsu5582/logsift/internal/history"
	"github.com/youngsu5582/logsift/internal/models"
	"github.com/youngsu5582/logsift/internal/utils"
)

type fakeStore struct {
	state   history.Map
	loadErr error
	saveErr error
	saved   history.Map
}

func (f *fakeStore) Load(ctx context.Context) (history.Map, error) {
	if f.loadErr != nil {
		return nil, f.loadErr
	}
	out := history.Map{}
	for sig, e := range f.state {
		out[sig] = e
	}
	return out, nil
}

func (f *fakeStore) Save(ctx context.Context, h history.Map) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	f.saved = h
	return nil
}

func newTestRunner(t *testing.T, store history.Store) *Runner {
	t.Helper()
	classifier, err := NewClassifier(nil)
	if err != nil {
		t.Fatalf("classifier: %v", err)
	}
	return NewRunner(utils.NewLogger("error", false), nil, classifier, store, 30)
}

func TestRunnerFirstSightingIsNew(t *testing.T) {
	store := &fakeStore{state: history.Map{}}
	r := newTestRunner(t, store)
	today := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)

	records := []models.LogRecord{
		{Timestamp: "2026-08-30 11:00:00", Message: "com.foo.NullPointerException: boom", Source: "/ecs/app/web"},
	}

	report, err := r.Run(context.Background(), records, models.LastHours(1), today)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	sig := "NullPointerException: boom"
	if _, ok := report.NewSignatures[sig]; !ok {
		t.Fatalf("expected %q flagged as new, got %v", sig, report.NewSignatures)
	}
	entry, ok := store.saved[sig]
	if !ok {
		t.Fatal("signature not persisted")
	}
	if entry.FirstSeen != "2026-08-30" || entry.TotalCount != 1 {
		t.Fatalf("bad entry: %+v", entry)
	}
}

func TestRunnerKnownSignatureIsNotNew(t *testing.T) {
	store := &fakeStore{state: history.Map{
		"NullPointerException: boom": {FirstSeen: "2026-08-01", LastSeen: "2026-08-29", TotalCount: 7},
	}}
	r := newTestRunner(t, store)
	today := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)

	records := []models.LogRecord{
		{Timestamp: "2026-08-30 11:00:00", Message: "com.foo.NullPointerException: boom", Source: "/ecs/app/web"},
		{Timestamp: "2026-08-30 11:05:00", Message: "com.foo.NullPointerException: boom", Source: "/ecs/app/web"},
	}

	report, err := r.Run(context.Background(), records, models.LastHours(1), today)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(report.NewSignatures) != 0 {
		t.Fatalf("known signature wrongly flagged new: %v", report.NewSignatures)
	}
	entry := store.saved["NullPointerException: boom"]
	if entry.FirstSeen != "2026-08-01" {
		t.Fatalf("first-seen must be preserved, got %q", entry.FirstSeen)
	}
	if entry.LastSeen != "2026-08-30" {
		t.Fatalf("last-seen not advanced, got %q", entry.LastSeen)
	}
	if entry.TotalCount != 9 {
		t.Fatalf("total count must accumulate, got %d", entry.TotalCount)
	}
}

func TestRunnerExpiresStaleEntries(t *testing.T) {
	store := &fakeStore{state: history.Map{
		"OldError: gone":       {FirstSeen: "2026-06-01", LastSeen: "2026-07-20", TotalCount: 3},
		"BoundaryError: stays": {FirstSeen: "2026-07-31", LastSeen: "2026-07-31", TotalCount: 1},
	}}
	r := newTestRunner(t, store)
	today := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)

	if _, err := r.Run(context.Background(), nil, models.LastHours(1), today); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, ok := store.saved["OldError: gone"]; ok {
		t.Fatal("stale entry survived expiry")
	}
	// last seen exactly retentionDays ago is kept
	if _, ok := store.saved["BoundaryError: stays"]; !ok {
		t.Fatal("boundary entry must be retained")
	}
}

func TestRunnerLoadFailureIsColdStart(t *testing.T) {
	store := &fakeStore{loadErr: errors.New("backend down")}
	r := newTestRunner(t, store)
	today := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)

	records := []models.LogRecord{
		{Timestamp: "2026-08-30 11:00:00", Message: "com.foo.NullPointerException: boom", Source: "/ecs/app/web"},
	}

	report, err := r.Run(context.Background(), records, models.LastHours(1), today)
	if err != nil {
		t.Fatalf("load failure must not fail the run: %v", err)
	}
	if len(report.NewSignatures) != 1 {
		t.Fatalf("cold start should flag everything new, got %v", report.NewSignatures)
	}
}

func TestRunnerSaveFailureStillReturnsReport(t *testing.T) {
	store := &fakeStore{state: history.Map{}, saveErr: errors.New("disk full")}
	r := newTestRunner(t, store)
	today := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)

	records := []models.LogRecord{
		{Timestamp: "2026-08-30 11:00:00", Message: "com.foo.NullPointerException: boom", Source: "/ecs/app/web"},
	}

	report, err := r.Run(context.Background(), records, models.LastHours(1), today)
	if err == nil {
		t.Fatal("expected save error")
	}
	if report.TotalRecords != 1 || len(report.Attention) != 1 {
		t.Fatalf("report must be complete despite save failure: %+v", report)
	}
}
