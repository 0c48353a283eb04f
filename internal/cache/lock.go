package cache

import (
	"context"
	"errors"
	"time"
)

// DefaultLockKey is the key guarding concurrent runs against one history store.
const DefaultLockKey = "logsift:run-lock"

// Lock is a best-effort cross-process run lock built on SET NX. The history
// store itself only guarantees atomic replacement, not mutual exclusion, so
// overlapping scheduled runs must be fenced by the invoker; this is that
// fence.
type Lock struct {
	provider Provider
	key      string
	token    string
	ttl      time.Duration
}

// NewLock creates a lock with the given owner token. The TTL bounds how long
// a crashed run can block its successors.
func NewLock(provider Provider, key, token string, ttl time.Duration) *Lock {
	if key == "" {
		key = DefaultLockKey
	}
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &Lock{provider: provider, key: key, token: token, ttl: ttl}
}

// Acquire attempts to take the lock. It reports false when another run holds it.
func (l *Lock) Acquire(ctx context.Context) (bool, error) {
	return l.provider.SetNX(ctx, l.key, []byte(l.token), l.ttl)
}

// Release drops the lock only while this run still owns it. If the TTL
// expired mid-run a successor may hold the key under its own token, and that
// fence must survive. The GET/DEL pair is not atomic: the key can change
// hands between the two commands, but the window is one round trip against a
// TTL measured in minutes.
func (l *Lock) Release(ctx context.Context) error {
	current, err := l.provider.Get(ctx, l.key)
	if err != nil {
		if errors.Is(err, ErrMiss) {
			return nil
		}
		return err
	}
	if string(current) != l.token {
		return nil
	}
	return l.provider.Del(ctx, l.key)
}
