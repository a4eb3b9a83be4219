package ports

import (
	"context"
	"time"
)

// RevocationStore is a TTL key-value denylist. Entries expire on their own;
// there is no delete.
type RevocationStore interface {
	// Put writes or overwrites an entry. ttl must be positive.
	Put(ctx context.Context, key, marker string, ttl time.Duration) error
	// Get returns the marker stored under key and whether it was found.
	Get(ctx context.Context, key string) (string, bool, error)
	// PutIfAbsent writes the entry only when key is not present and reports
	// whether this call created it.
	PutIfAbsent(ctx context.Context, key, marker string, ttl time.Duration) (bool, error)
}
