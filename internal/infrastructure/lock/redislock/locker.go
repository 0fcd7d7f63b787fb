package redislock

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/kirillkom/case-intake/internal/core/domain"
)

const (
	defaultTTL           = 30 * time.Second
	defaultRetryInterval = 50 * time.Millisecond
	releaseTimeout       = 5 * time.Second
)

// releaseScript deletes the key only while it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

type Options struct {
	Prefix        string
	TTL           time.Duration
	RetryInterval time.Duration
	Logger        *slog.Logger
}

// Locker is a per-key lease in Redis for workers sharing one database. The
// TTL bounds how long a crashed holder can block others.
type Locker struct {
	client        redis.UniversalClient
	prefix        string
	ttl           time.Duration
	retryInterval time.Duration
	logger        *slog.Logger
}

func New(client redis.UniversalClient, options Options) *Locker {
	if options.Prefix == "" {
		options.Prefix = "case-intake:lock:"
	}
	if options.TTL <= 0 {
		options.TTL = defaultTTL
	}
	if options.RetryInterval <= 0 {
		options.RetryInterval = defaultRetryInterval
	}
	if options.Logger == nil {
		options.Logger = slog.Default()
	}
	return &Locker{
		client:        client,
		prefix:        options.Prefix,
		ttl:           options.TTL,
		retryInterval: options.RetryInterval,
		logger:        options.Logger,
	}
}

func (l *Locker) Lock(ctx context.Context, key string) (func(), error) {
	redisKey := l.prefix + key
	token := uuid.NewString()

	for {
		ok, err := l.client.SetNX(ctx, redisKey, token, l.ttl).Result()
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			return nil, domain.WrapError(domain.ErrTemporary, "acquire lock "+key, err)
		}
		if ok {
			return l.unlockFunc(redisKey, token), nil
		}

		timer := time.NewTimer(l.retryInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
}

// unlockFunc releases the lease at most once, however many goroutines call it.
func (l *Locker) unlockFunc(redisKey, token string) func() {
	var once sync.Once
	return func() {
		once.Do(func() { l.release(redisKey, token) })
	}
}

func (l *Locker) release(redisKey, token string) {
	ctx, cancel := context.WithTimeout(context.Background(), releaseTimeout)
	defer cancel()
	n, err := releaseScript.Run(ctx, l.client, []string{redisKey}, token).Int()
	if err != nil && !errors.Is(err, redis.Nil) {
		l.logger.Warn("lock_release_failed", "key", redisKey, "error", err)
		return
	}
	if n == 0 {
		l.logger.Warn("lock_lease_lost", "key", redisKey, "ttl", l.ttl.String())
	}
}

func (l *Locker) Ping(ctx context.Context) error {
	if err := l.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}
