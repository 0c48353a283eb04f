package engine

import (
	"github.com/youngsu5582/logsift/internal/models"
	"github.com/youngsu5582/logsift/internal/signature"
	"github.com/youngsu5582/logsift/internal/utils"
)

// sampleLen bounds the raw sample kept per aggregate for notifier display.
const sampleLen = 200

// Grouper folds a batch of records into per-signature aggregates.
type Grouper struct {
	extractor *signature.Extractor
}

// NewGrouper constructs a Grouper around the given extractor. A nil extractor
// gets the default rule table.
func NewGrouper(extractor *signature.Extractor) *Grouper {
	if extractor == nil {
		extractor = signature.New()
	}
	return &Grouper{extractor: extractor}
}

// Group maps each record to its signature and upserts the aggregate. Records
// without a signature (empty messages, stack-trace continuations) are
// skipped; a malformed record never aborts the batch.
func (g *Grouper) Group(records []models.LogRecord) map[string]*models.SignatureAggregate {
	groups := make(map[string]*models.SignatureAggregate)

	for _, rec := range records {
		sig, ok := g.extractor.Extract(rec.Message)
		if !ok {
			continue
		}

		agg, exists := groups[sig]
		if !exists {
			agg = &models.SignatureAggregate{Signature: sig, Sample: utils.Truncate(rec.Message, sampleLen)}
			groups[sig] = agg
		}

		agg.Count++
		agg.AddSource(rec.Source)
		// Sortable string timestamps: lexicographic order is chronological.
		if rec.Timestamp > agg.LastSeen {
			agg.LastSeen = rec.Timestamp
		}
	}

	return groups
}
