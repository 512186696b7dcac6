package lock

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// ErrLockHeld is returned when another operation already holds the
// dictionary's lock.
var ErrLockHeld = errors.New("dictionary is locked by another operation")

// DictionaryLocker serializes mutating operations (import, undo, redo) per
// dictionary. Reads do not take the lock.
type DictionaryLocker interface {
	// Acquire takes the advisory lock for the dictionary and returns a
	// release function. Fails fast with ErrLockHeld when contended.
	Acquire(ctx context.Context, dictionaryCode string) (release func(), err error)
}

type redisLocker struct {
	client *redis.Client
	logger *zap.Logger
	ttl    time.Duration
}

func NewRedisLocker(client *redis.Client, logger *zap.Logger, ttl time.Duration) DictionaryLocker {
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}
	return &redisLocker{client: client, logger: logger, ttl: ttl}
}

// releaseScript deletes the lock key only when it still holds our token, so
// an expired lock re-acquired by someone else is never released by us.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

func (l *redisLocker) Acquire(ctx context.Context, dictionaryCode string) (func(), error) {
	key := "dictionary:lock:" + dictionaryCode
	token := uuid.NewString()

	ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrLockHeld
	}

	l.logger.Debug("acquired dictionary lock",
		zap.String("dictionary_code", dictionaryCode))

	release := func() {
		// Release must survive request cancellation.
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := releaseScript.Run(ctx, l.client, []string{key}, token).Err(); err != nil {
			l.logger.Warn("failed to release dictionary lock",
				zap.String("dictionary_code", dictionaryCode),
				zap.Error(err))
		}
	}
	return release, nil
}

// NoopLocker is used in tests and single-instance setups without redis.
type NoopLocker struct{}

func (NoopLocker) Acquire(ctx context.Context, dictionaryCode string) (func(), error) {
	return func() {}, nil
}
