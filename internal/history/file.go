package history

import (
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/youngsu5582/logsift/internal/utils"
)

// FileStore keeps the history map in a single JSON file. Save writes to a
// temp file in the same directory and renames it into place so a crashed run
// never leaves a torn file for the next one. It does not provide
// cross-process locking; overlapping runs must be prevented by the caller.
type FileStore struct {
	path   string
	logger *slog.Logger
}

// NewFileStore builds a store around the given path.
func NewFileStore(path string, logger *slog.Logger) *FileStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &FileStore{path: path, logger: logger}
}

// Load reads the persisted map. A missing file is a cold start; a corrupt
// file is logged and also treated as a cold start rather than failing the run.
func (s *FileStore) Load(_ context.Context) (Map, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Map{}, nil
		}
		return Map{}, utils.NewAppError("history.load", "read history file", err)
	}

	h := Map{}
	if err := json.Unmarshal(data, &h); err != nil {
		s.logger.Warn("history file corrupt, starting cold",
			slog.String("path", s.path), slog.Any("error", err))
		return Map{}, nil
	}
	return h, nil
}

// Save atomically replaces the history file with the full map.
func (s *FileStore) Save(_ context.Context, h Map) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return utils.NewAppError("history.save", "create history directory", err)
	}

	data, err := json.MarshalIndent(h, "", "  ")
	if err != nil {
		return utils.NewAppError("history.save", "encode history", err)
	}

	tmp, err := os.CreateTemp(dir, ".history-*.json")
	if err != nil {
		return utils.NewAppError("history.save", "create temp file", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return utils.NewAppError("history.save", "write temp file", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return utils.NewAppError("history.save", "close temp file", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return utils.NewAppError("history.save", "replace history file", err)
	}
	return nil
}
