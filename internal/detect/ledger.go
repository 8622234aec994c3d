package detect

import (
	"context"
	"time"

	"immigo/internal/policy"
)

// Transition records that the pipeline fully processed the change from one
// snapshot version to the next for a policy key. Propagation re-runs consult
// this ledger so a transition is only ever acted on once.
type Transition struct {
	Key         policy.Key `json:"key"`
	FromVersion int64      `json:"from_version"`
	ToVersion   int64      `json:"to_version"`
	ProcessedAt time.Time  `json:"processed_at"`
}

// Ledger is the processed-transitions record. Marking is only done after
// propagation succeeds; a failed run leaves the transition unmarked so the
// next sweep retries it.
type Ledger interface {
	// Seen reports whether the transition was already fully processed.
	Seen(ctx context.Context, key policy.Key, fromVersion, toVersion int64) (bool, error)

	// Mark records a fully processed transition. Marking the same transition
	// twice is a no-op.
	Mark(ctx context.Context, t Transition) error
}
