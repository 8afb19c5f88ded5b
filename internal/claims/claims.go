// Package claims marks a queue row as in flight so concurrent invocations do
// not publish it twice. A claim is a Redis key with a TTL; it is released by
// the holder or expires on its own if the holder dies.
package claims

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const keyPrefix = "autoposter:claim:"

// releaseScript deletes the key only when it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

type Locker struct {
	rdb      redis.Cmdable
	ttl      time.Duration
	logger   zerolog.Logger
	newToken func() string
}

func NewLocker(rdb redis.Cmdable, ttl time.Duration, logger zerolog.Logger) *Locker {
	return &Locker{
		rdb:      rdb,
		ttl:      ttl,
		logger:   logger.With().Str("component", "claims").Logger(),
		newToken: func() string { return uuid.NewString() },
	}
}

// Claim tries to take key. ok is false when another invocation holds it.
func (l *Locker) Claim(ctx context.Context, key string) (release func(context.Context), ok bool, err error) {
	const op = "claims.Claim"

	token := l.newToken()
	full := keyPrefix + key
	ok, err = l.rdb.SetNX(ctx, full, token, l.ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("%s: %v", op, err)
	}
	if !ok {
		return nil, false, nil
	}

	release = func(ctx context.Context) {
		if err := releaseScript.Run(ctx, l.rdb, []string{full}, token).Err(); err != nil {
			l.logger.Warn().Err(err).Str("key", full).Msg("claim release failed, it will expire")
		}
	}
	return release, true, nil
}
