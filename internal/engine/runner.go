// Package engine implements the batch classification flow: group records by
// signature, split attention from noise, and reconcile the result against
// the persistent signature history.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/youngsu5582/logsift/internal/history"
	"github.com/youngsu5582/logsift/internal/models"
	"github.com/youngsu5582/logsift/internal/signature"
)

// Runner sequences one batch through the engine. It is the only component
// with side effects (history persistence), so tests inject a fake Store here.
type Runner struct {
	logger        *slog.Logger
	grouper       *Grouper
	classifier    *Classifier
	store         history.Store
	retentionDays int
}

// NewRunner wires the engine together. A nil extractor gets the default rule
// table; retentionDays <= 0 selects the default window.
func NewRunner(logger *slog.Logger, extractor *signature.Extractor, classifier *Classifier, store history.Store, retentionDays int) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	if retentionDays <= 0 {
		retentionDays = history.DefaultRetentionDays
	}
	return &Runner{
		logger:        logger,
		grouper:       NewGrouper(extractor),
		classifier:    classifier,
		store:         store,
		retentionDays: retentionDays,
	}
}

// Run processes one fetched batch to completion: group, classify, update and
// expire history, save. A history load failure degrades to a cold start; a
// save failure is returned as the run error, but the Report alongside it is
// complete and valid, so notification can still proceed at the cost of
// losing new-signature tracking for this run.
func (r *Runner) Run(ctx context.Context, records []models.LogRecord, window models.Window, today time.Time) (models.Report, error) {
	groups := r.grouper.Group(records)
	attention, noise := r.classifier.Classify(groups)

	hist, err := r.store.Load(ctx)
	if err != nil {
		r.logger.Warn("history unavailable, treating as first run", slog.Any("error", err))
		hist = history.Map{}
	}

	classified := make([]models.ClassifiedGroup, 0, len(attention)+len(noise))
	classified = append(classified, attention...)
	classified = append(classified, noise...)

	newSignatures := history.Update(hist, classified, today)
	history.Expire(hist, today, r.retentionDays)

	report := models.Report{
		RunID:         uuid.NewString(),
		GeneratedAt:   time.Now().UTC(),
		Window:        window,
		TotalRecords:  len(records),
		Attention:     attention,
		Noise:         noise,
		NewSignatures: newSignatures,
	}

	r.logger.Info("run classified",
		slog.String("run_id", report.RunID),
		slog.Int("records", report.TotalRecords),
		slog.Int("attention", len(attention)),
		slog.Int("noise", len(noise)),
		slog.Int("new", len(newSignatures)))

	if err := r.store.Save(ctx, hist); err != nil {
		return report, fmt.Errorf("persist history: %w", err)
	}
	return report, nil
}
