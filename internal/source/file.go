package source

import (
	"bufio"
	"context"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/valyala/fastjson"

	"github.com/youngsu5582/logsift/internal/models"
	"github.com/youngsu5582/logsift/internal/utils"
)

// File reads records from an NDJSON file, one {timestamp, message, source}
// object per line. Used for local runs and as the fixture source in tests.
// Records outside the window are dropped here since there is no server-side
// filter to do it.
type File struct {
	path   string
	logger *slog.Logger
}

// NewFile builds a file source for the given path.
func NewFile(path string, logger *slog.Logger) *File {
	if logger == nil {
		logger = slog.Default()
	}
	return &File{path: path, logger: logger}
}

// Fetch parses the file. Malformed lines are counted and skipped, not fatal.
func (f *File) Fetch(ctx context.Context, window models.Window) ([]models.LogRecord, error) {
	file, err := os.Open(f.path)
	if err != nil {
		return nil, utils.NewAppError("source.file", "open records file", err)
	}
	defer file.Close()

	var (
		parser    fastjson.Parser
		records   []models.LogRecord
		malformed int
	)

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		v, err := parser.Parse(line)
		if err != nil {
			malformed++
			continue
		}
		rec := models.LogRecord{
			Timestamp: string(v.GetStringBytes("timestamp")),
			Message:   string(v.GetStringBytes("message")),
			Source:    string(v.GetStringBytes("source")),
		}
		if rec.Message == "" {
			malformed++
			continue
		}
		if ts, err := time.Parse(time.RFC3339, rec.Timestamp); err == nil {
			if ts.Before(window.Start) || ts.After(window.End) {
				continue
			}
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, utils.NewAppError("source.file", "scan records file", err)
	}

	if malformed > 0 {
		f.logger.Warn("skipped malformed record lines",
			slog.String("path", f.path), slog.Int("count", malformed))
	}
	return records, nil
}
