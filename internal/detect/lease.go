package detect

import (
	"context"
	"sync"
	"time"

	"immigo/internal/policy"
)

// Lease serializes pipeline runs per policy key. A holder gets an opaque
// token; Release only succeeds with the matching token, so an expired lease
// reclaimed by another runner is never released out from under it. The TTL
// bounds how long a crashed run can block a key.
type Lease interface {
	// Acquire tries to take the lease for key. held=false means another run
	// owns it; callers treat that as "already in progress" and back off.
	Acquire(ctx context.Context, key policy.Key, ttl time.Duration) (token string, held bool, err error)

	// Release gives the lease back. Releasing with a stale token is a no-op.
	Release(ctx context.Context, key policy.Key, token string) error
}

type memoryLease struct {
	token   string
	expires time.Time
}

// InMemoryLease is the single-process lease used in dev mode and tests.
type InMemoryLease struct {
	mu     sync.Mutex
	leases map[policy.Key]memoryLease
	now    func() time.Time
}

func NewInMemoryLease() *InMemoryLease {
	return &InMemoryLease{
		leases: make(map[policy.Key]memoryLease),
		now:    time.Now,
	}
}

func (l *InMemoryLease) Acquire(_ context.Context, key policy.Key, ttl time.Duration) (string, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if cur, ok := l.leases[key]; ok && now.Before(cur.expires) {
		return "", false, nil
	}
	token := newLeaseToken()
	l.leases[key] = memoryLease{token: token, expires: now.Add(ttl)}
	return token, true, nil
}

func (l *InMemoryLease) Release(_ context.Context, key policy.Key, token string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if cur, ok := l.leases[key]; ok && cur.token == token {
		delete(l.leases, key)
	}
	return nil
}
