package detect

import (
	"context"
	"fmt"
	"sync"

	"immigo/internal/policy"
)

type transitionKey struct {
	key  policy.Key
	from int64
	to   int64
}

// InMemoryLedger keeps processed transitions in memory.
type InMemoryLedger struct {
	mu   sync.RWMutex
	seen map[transitionKey]Transition
}

func NewInMemoryLedger() *InMemoryLedger {
	return &InMemoryLedger{seen: make(map[transitionKey]Transition)}
}

func (l *InMemoryLedger) Seen(_ context.Context, key policy.Key, fromVersion, toVersion int64) (bool, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	_, ok := l.seen[transitionKey{key: key, from: fromVersion, to: toVersion}]
	return ok, nil
}

func (l *InMemoryLedger) Mark(_ context.Context, t Transition) error {
	if t.Key.IsNil() {
		return fmt.Errorf("mark transition: policy key is required")
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	tk := transitionKey{key: t.Key, from: t.FromVersion, to: t.ToVersion}
	if _, ok := l.seen[tk]; ok {
		return nil
	}
	l.seen[tk] = t
	return nil
}
