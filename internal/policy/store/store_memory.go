package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"immigo/internal/policy"
	"immigo/pkg/platform/sentinel"
	"immigo/pkg/requestcontext"
)

// InMemoryStore keeps the full snapshot history in memory. Development and
// test default; use PostgresStore for anything shared.
type InMemoryStore struct {
	mu        sync.RWMutex
	snapshots map[policy.Key][]policy.Snapshot
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{snapshots: make(map[policy.Key][]policy.Snapshot)}
}

func (s *InMemoryStore) Append(ctx context.Context, key policy.Key, fields policy.Fields) (policy.Snapshot, bool, error) {
	if key.IsNil() {
		return policy.Snapshot{}, false, fmt.Errorf("append snapshot: key is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	history := s.snapshots[key]
	if n := len(history); n > 0 && history[n-1].Fields.Equal(fields) {
		return history[n-1], false, nil
	}

	snap := policy.Snapshot{
		Key:        key,
		Version:    nextVersion(history),
		CapturedAt: requestcontext.Now(ctx),
		Fields:     fields.Clone(),
	}
	s.snapshots[key] = append(history, snap)
	return snap, true, nil
}

func (s *InMemoryStore) Latest(_ context.Context, key policy.Key) (policy.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	history := s.snapshots[key]
	if len(history) == 0 {
		return policy.Snapshot{}, fmt.Errorf("latest snapshot for %s: %w", key, sentinel.ErrNotFound)
	}
	return history[len(history)-1], nil
}

func (s *InMemoryStore) At(_ context.Context, key policy.Key, version int64) (policy.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, snap := range s.snapshots[key] {
		if snap.Version == version {
			return snap, nil
		}
	}
	return policy.Snapshot{}, fmt.Errorf("snapshot %s@%d: %w", key, version, sentinel.ErrNotFound)
}

func (s *InMemoryStore) Keys(_ context.Context) ([]policy.Key, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]policy.Key, 0, len(s.snapshots))
	for key := range s.snapshots {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].String() < keys[j].String() })
	return keys, nil
}

// nextVersion continues the per-key sequence. History is append-only, so the
// last entry always carries the highest version.
func nextVersion(history []policy.Snapshot) int64 {
	if len(history) == 0 {
		return 1
	}
	return history[len(history)-1].Version + 1
}
