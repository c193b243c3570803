// Package session holds the two kinds of per-user state the bot keeps:
// session tokens in an expiring cache, and conversation steps in memory.
package session

import (
	"context"
	"errors"
	"time"
)

// ErrCacheUnavailable wraps every failure of the backing store.
var ErrCacheUnavailable = errors.New("session cache unavailable")

// Cache stores one session token per user with a time-to-live.
// A present entry was valid when written; the portal may have expired it since.
type Cache interface {
	// Get returns the cached token, or ok=false when none is stored
	Get(ctx context.Context, user int64) (token string, ok bool, err error)

	// SetWithExpiry stores token for user, replacing any previous entry
	SetWithExpiry(ctx context.Context, user int64, token string, ttl time.Duration) error

	// Delete removes the entry; deleting a missing entry is not an error
	Delete(ctx context.Context, user int64) error
}
