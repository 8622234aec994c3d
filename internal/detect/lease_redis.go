package detect

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"immigo/internal/platform/redis"
	"immigo/internal/policy"
)

// releaseScript deletes the lease key only when the caller still owns it, so
// a runner whose lease expired mid-flight cannot release a successor's lease.
var releaseScript = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLease coordinates per-key runs across processes via SET NX with a TTL.
type RedisLease struct {
	client *redis.Client
}

func NewRedisLease(client *redis.Client) *RedisLease {
	return &RedisLease{client: client}
}

func (l *RedisLease) Acquire(ctx context.Context, key policy.Key, ttl time.Duration) (string, bool, error) {
	token := newLeaseToken()
	held, err := l.client.SetNX(ctx, leaseKey(key), token, ttl).Result()
	if err != nil {
		return "", false, fmt.Errorf("acquire lease for %s: %w", key, err)
	}
	if !held {
		return "", false, nil
	}
	return token, true, nil
}

func (l *RedisLease) Release(ctx context.Context, key policy.Key, token string) error {
	if err := releaseScript.Run(ctx, l.client, []string{leaseKey(key)}, token).Err(); err != nil {
		return fmt.Errorf("release lease for %s: %w", key, err)
	}
	return nil
}

func leaseKey(key policy.Key) string {
	return "immigo:detect:lease:" + key.String()
}

func newLeaseToken() string {
	return uuid.NewString()
}
