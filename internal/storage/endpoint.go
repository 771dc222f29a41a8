// Package storage declares the external storage endpoint contract: the
// per-replica get/put/has_key/delete surface the mediator dispatches to.
// The mediator depends only on this interface, never on a concrete
// engine, so replicas can be local, networked, or a test double.
package storage

import (
	"context"

	"dynamokv/internal/partition"
	"dynamokv/internal/vclock"
)

// Endpoint is addressed by the pair (partition, node); the implementation
// resolves that to wherever the data actually lives (in-process map,
// network RPC, etc).
type Endpoint interface {
	// Get returns the versioned value for key on the given replica.
	// Returns errs.ErrNotFound (kind errs.KindNotFound) if absent.
	Get(ctx context.Context, p partition.ID, node string, key string) (vclock.VersionedValue, error)

	// Put writes value under clock, returning the replica's error kind on
	// failure.
	Put(ctx context.Context, p partition.ID, node string, key string, clock vclock.VC, value []byte) error

	// HasKey reports whether key is present (and not a tombstone) on the
	// given replica.
	HasKey(ctx context.Context, p partition.ID, node string, key string) (bool, error)

	// Delete soft-deletes key on the given replica, honoring whatever
	// deadline ctx carries (the delete deadline is enforced by the
	// mediator, not here).
	Delete(ctx context.Context, p partition.ID, node string, key string) error
}
