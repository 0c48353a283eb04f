package history

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/youngsu5582/logsift/internal/cache"
	"github.com/youngsu5582/logsift/internal/utils"
)

// DefaultValkeyKey is where ValkeyStore keeps the serialized map.
const DefaultValkeyKey = "logsift:history"

// ValkeyStore keeps the whole history map as one JSON value under a single
// key. SET is atomic on the server side, which gives the same
// replace-not-append semantics as the file store. Entries never expire
// server-side; retention is handled by Expire like every other backend.
type ValkeyStore struct {
	provider cache.Provider
	key      string
	logger   *slog.Logger
}

// NewValkeyStore builds a store over the given cache provider. An empty key
// selects DefaultValkeyKey.
func NewValkeyStore(provider cache.Provider, key string, logger *slog.Logger) *ValkeyStore {
	if key == "" {
		key = DefaultValkeyKey
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ValkeyStore{provider: provider, key: key, logger: logger}
}

// Load fetches and decodes the map. A missing key is a cold start; an
// undecodable value is logged and treated the same way. Connectivity
// failures surface as errors so the caller can decide.
func (s *ValkeyStore) Load(ctx context.Context) (Map, error) {
	data, err := s.provider.Get(ctx, s.key)
	if err != nil {
		if errors.Is(err, cache.ErrMiss) {
			return Map{}, nil
		}
		return Map{}, utils.NewAppError("history.load", "fetch from valkey", err)
	}

	h := Map{}
	if err := json.Unmarshal(data, &h); err != nil {
		s.logger.Warn("valkey history corrupt, starting cold",
			slog.String("key", s.key), slog.Any("error", err))
		return Map{}, nil
	}
	return h, nil
}

// Save replaces the stored map in one SET.
func (s *ValkeyStore) Save(ctx context.Context, h Map) error {
	data, err := json.Marshal(h)
	if err != nil {
		return utils.NewAppError("history.save", "encode history", err)
	}
	if err := s.provider.Set(ctx, s.key, data, 0); err != nil {
		return utils.NewAppError("history.save", "store in valkey", err)
	}
	return nil
}
