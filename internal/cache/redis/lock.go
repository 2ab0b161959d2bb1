package redis

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"liquidityDesk/internal/model"
)

// unlockLua deletes the key only while it still holds the caller's token.
const unlockLua = `
if redis.call('GET', KEYS[1]) == ARGV[1] then
    return redis.call('DEL', KEYS[1])
end
return 0
`

const unlockTimeout = 5 * time.Second

// FlowLock keeps two processes from driving the same position at once.
type FlowLock struct {
	rdb      *redis.Client
	unlockSc *redis.Script
	logger   *zap.Logger
}

func NewFlowLock(c *Client, logger *zap.Logger) *FlowLock {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FlowLock{
		rdb:      c.rdb,
		unlockSc: redis.NewScript(unlockLua),
		logger:   logger,
	}
}

func lockKey(key string) string {
	return "lock:" + key
}

// Acquire takes key for ttl. The returned release func may be called more
// than once. A held key fails with model.ErrLockHeld.
func (l *FlowLock) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	token := uuid.NewString()
	lk := lockKey(key)

	ok, err := l.rdb.SetNX(ctx, lk, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: acquire lock %s: %w", key, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", model.ErrLockHeld, key)
	}
	l.logger.Debug("flow lock acquired", zap.String("key", key), zap.Duration("ttl", ttl))

	var once sync.Once
	release := func() {
		once.Do(func() {
			// The caller's context may already be cancelled.
			unlockCtx, cancel := context.WithTimeout(context.Background(), unlockTimeout)
			defer cancel()
			if err := l.unlockSc.Run(unlockCtx, l.rdb, []string{lk}, token).Err(); err != nil {
				l.logger.Warn("flow lock release failed", zap.String("key", key), zap.Error(err))
			}
		})
	}
	return release, nil
}
