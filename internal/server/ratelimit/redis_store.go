package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// hitScript admits a request if the window counter is below ARGV[1]. The
// window is created with a PEXPIRE of ARGV[2] milliseconds on first hit and
// disappears on its own, so Redis both expires and evicts idle keys.
//
// Returns {admitted, count, pttl}.
var hitScript = redis.NewScript(`
local current = tonumber(redis.call('GET', KEYS[1]) or '0')
local max = tonumber(ARGV[1])
if current >= max then
  return {0, current, redis.call('PTTL', KEYS[1])}
end
current = redis.call('INCR', KEYS[1])
if current == 1 then
  redis.call('PEXPIRE', KEYS[1], ARGV[2])
end
return {1, current, redis.call('PTTL', KEYS[1])}
`)

// RedisStore keeps windows in Redis so that several server instances share
// one quota.
type RedisStore struct {
	client    redis.Scripter
	keyPrefix string
	now       func() time.Time
}

// NewRedisStore returns a store using client. Keys are written as
// <keyPrefix><scope>:<key>.
func NewRedisStore(client redis.Scripter, keyPrefix string) *RedisStore {
	return &RedisStore{client: client, keyPrefix: keyPrefix, now: time.Now}
}

// NewRedisClient parses a redis:// URL and verifies the connection.
func NewRedisClient(ctx context.Context, redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return client, nil
}

// Hit implements Store.
func (s *RedisStore) Hit(ctx context.Context, scope, key string, max int, window time.Duration) (Window, bool, error) {
	redisKey := s.keyPrefix + scope + ":" + key

	res, err := hitScript.Run(ctx, s.client, []string{redisKey}, max, window.Milliseconds()).Int64Slice()
	if err != nil {
		return Window{}, false, fmt.Errorf("redis hit: %w", err)
	}
	if len(res) != 3 {
		return Window{}, false, fmt.Errorf("redis hit: unexpected reply %v", res)
	}

	admitted, count, pttl := res[0] == 1, res[1], res[2]

	// A missing TTL (-1/-2) means the key raced with its own expiry; treat
	// the window as just opened.
	remaining := window
	if pttl >= 0 {
		remaining = time.Duration(pttl) * time.Millisecond
	}
	start := s.now().Add(remaining - window)

	return Window{Count: int(count), Start: start}, admitted, nil
}
