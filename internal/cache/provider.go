// Package cache provides the minimal key-value operations logsift needs from
// a Valkey/Redis-compatible server: the remote history backend and the
// cross-process run lock.
package cache

import (
	"context"
	"errors"
	"time"
)

// Provider is the subset of key-value operations used by the tool.
type Provider interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)
	Del(ctx context.Context, key string) error
	Close() error
}

// ErrMiss signals that a key was not found.
var ErrMiss = errors.New("cache: key not found")
