package locking

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// releaseScript deletes the key only if the caller still owns it.
var releaseScript = redis.NewScript(`
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("del", KEYS[1])
	else
		return 0
	end
`)

// RedisLocker implements Locker with SET NX PX, for deployments running more
// than one fund process against shared storage.
type RedisLocker struct {
	client *redis.Client
	prefix string
	log    zerolog.Logger
}

// NewRedisLocker creates a locker on client. Keys are "<prefix>lock:<name>".
func NewRedisLocker(client *redis.Client, prefix string, log zerolog.Logger) *RedisLocker {
	return &RedisLocker{
		client: client,
		prefix: prefix,
		log:    log.With().Str("component", "redis_locker").Logger(),
	}
}

// NewRedisClient parses a redis:// URL.
func NewRedisClient(url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
	}
	return redis.NewClient(opts), nil
}

// Acquire takes the named lease or returns ErrLockHeld.
func (l *RedisLocker) Acquire(ctx context.Context, name string, ttl time.Duration) (Lease, error) {
	key := fmt.Sprintf("%slock:%s", l.prefix, name)
	token := uuid.NewString()

	ok, err := l.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire lock %s: %w", name, err)
	}
	if !ok {
		return nil, fmt.Errorf("%s: %w", name, ErrLockHeld)
	}

	l.log.Debug().Str("lock", name).Dur("ttl", ttl).Msg("Lock acquired")
	return &redisLease{client: l.client, key: key, token: token}, nil
}

type redisLease struct {
	client *redis.Client
	key    string
	token  string
}

func (r *redisLease) Release(ctx context.Context) error {
	n, err := releaseScript.Run(ctx, r.client, []string{r.key}, r.token).Int()
	if err != nil {
		return fmt.Errorf("release lock %s: %w", r.key, err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", r.key, ErrLockLost)
	}
	return nil
}
