// Package swrcache provides the versioned cache stores the mutation layer
// writes through. Entries carry a monotonically increasing version so an
// optimistic write and its rollback can be paired with compare-and-swap
// instead of assuming FIFO resolution, and a stale flag the external
// revalidation engine observes.
package swrcache

import "context"

// Entry is one cached value with its bookkeeping.
type Entry struct {
	Value   any   `json:"value" firestore:"value"`
	Version int64 `json:"version" firestore:"version"`
	Stale   bool  `json:"stale" firestore:"stale"`
}

// Store is the cache collaborator contract. Keys are canonical strings (see
// cachekey.Key.Canonical). Writes bump the entry version; CompareAndSwap and
// CompareAndDelete only act when the current version matches, so a newer
// unrelated write is never clobbered by a stale rollback.
type Store interface {
	// Read returns the current entry and whether the key is present.
	Read(ctx context.Context, key string) (Entry, bool, error)

	// Write stores a fresh value, clears the stale flag, and returns the
	// entry that was written, including its new version.
	Write(ctx context.Context, key string, value any) (Entry, error)

	// CompareAndSwap replaces the value only if the entry's current version
	// equals expect. It reports whether the swap happened.
	CompareAndSwap(ctx context.Context, key string, expect int64, value any) (bool, error)

	// CompareAndDelete removes the entry only if its current version equals
	// expect. It reports whether the delete happened.
	CompareAndDelete(ctx context.Context, key string, expect int64) (bool, error)

	// Invalidate marks the entry stale without touching its value or
	// version. Missing keys are a no-op.
	Invalidate(ctx context.Context, key string) error

	Close() error
}
