package services

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/phonginreallife/oncall-notifier/internal/logger"
)

// CycleLock guards the ingestion cycle across processes
type CycleLock interface {
	// TryAcquire never blocks. When ok is true the caller must call release.
	TryAcquire(ctx context.Context) (release func(), ok bool, err error)
}

// releaseScript deletes the key only while it still holds our token, so a
// lease that expired and was taken by another instance is left alone.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisCycleLock is a lease in Redis shared by every notifier instance
type RedisCycleLock struct {
	client *redis.Client
	key    string
	ttl    time.Duration
	logger *zap.Logger
}

func NewRedisCycleLock(client *redis.Client, key string, ttl time.Duration, log *zap.Logger) *RedisCycleLock {
	if key == "" {
		key = "oncall-notifier:cycle-lock"
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &RedisCycleLock{client: client, key: key, ttl: ttl, logger: logger.OrNop(log)}
}

func (l *RedisCycleLock) TryAcquire(ctx context.Context) (func(), bool, error) {
	token := uuid.New().String()
	ok, err := l.client.SetNX(ctx, l.key, token, l.ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("failed to acquire cycle lock: %w", err)
	}
	if !ok {
		return nil, false, nil
	}

	release := func() {
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := releaseScript.Run(releaseCtx, l.client, []string{l.key}, token).Err(); err != nil && err != redis.Nil {
			l.logger.Warn("Failed to release cycle lock", zap.String("key", l.key), zap.Error(err))
		}
	}
	return release, true, nil
}
