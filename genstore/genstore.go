// Package genstore keeps a generation counter per cache-store key.
//
// doccache snapshots a key's generation before loading it from the backend
// and writes the result through only if the generation is unchanged.
// DeleteFromCacheByID bumps it, so a load that raced with a delete never
// repopulates the evicted entry.
//
// A key that was never bumped is at generation 0. Stores may forget old
// generations (retention, TTL); a forgotten generation reads as 0 again.
package genstore

import "context"

// GenStore abstracts where generations live.
// Local (default) keeps them in-process; Redis shares them between replicas
// that share a cache store.
type GenStore interface {
	// Snapshot returns the current generation of storageKey.
	Snapshot(ctx context.Context, storageKey string) (uint64, error)
	// Bump atomically increments and returns the new generation.
	Bump(ctx context.Context, storageKey string) (uint64, error)
	// Close releases resources (no-op ok).
	Close(context.Context) error
}
