// Package source fetches the raw record batch the engine operates on. The
// engine never talks to a log backend directly; callers pick a Source and
// hand its output over.
package source

import (
	"context"

	"github.com/youngsu5582/logsift/internal/models"
)

// Source retrieves one bounded batch of error-ish log records for a time
// window. Implementations pre-filter by coarse error patterns; any finer
// classification belongs to the engine.
type Source interface {
	Fetch(ctx context.Context, window models.Window) ([]models.LogRecord, error)
}
