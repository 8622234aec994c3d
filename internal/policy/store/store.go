// Package store persists policy snapshots. History is append-only: versions
// are per-key monotonic and deletion is not supported.
package store

import (
	"context"

	"immigo/internal/policy"
)

// SnapshotStore is the versioned snapshot history for all tracked policy keys.
type SnapshotStore interface {
	// Append writes a new version for key only if fields differ from the
	// current latest snapshot (field-wise equality). When they are identical
	// it returns the existing latest and created=false, so identical
	// re-fetches never churn versions.
	Append(ctx context.Context, key policy.Key, fields policy.Fields) (snap policy.Snapshot, created bool, err error)

	// Latest returns the newest snapshot for key.
	// Returns sentinel.ErrNotFound for an unknown key.
	Latest(ctx context.Context, key policy.Key) (policy.Snapshot, error)

	// At returns the snapshot for key at an exact version.
	// Returns sentinel.ErrNotFound for an unknown key or version.
	At(ctx context.Context, key policy.Key, version int64) (policy.Snapshot, error)

	// Keys lists every key that has at least one snapshot. The orchestrator
	// sweeps this set on every scheduled trigger.
	Keys(ctx context.Context) ([]policy.Key, error)
}
