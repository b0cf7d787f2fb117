package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "marketplace:rl:"

var fixedWindowScript = redis.NewScript(`
local current = redis.call("INCR", KEYS[1])
if current == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[2])
end

local ttl = redis.call("PTTL", KEYS[1])
if ttl < 0 then
  ttl = tonumber(ARGV[2])
end

if current > tonumber(ARGV[1]) then
  return {0, ttl}
end
return {1, ttl}
`)

type RedisRepo struct {
	client *redis.Client
}

func New(ctx context.Context, addr, pass string, db int) (*RedisRepo, error) {
	const op = "storage.redis.New"

	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     pass,
		DB:           db,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
		MinIdleConns: 2,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return NewWithClient(client), nil
}

func NewWithClient(client *redis.Client) *RedisRepo {
	return &RedisRepo{client: client}
}

// Allow counts one hit for key inside a fixed window and reports whether the
// hit is within limit. retryAfter is the time left in the current window.
func (r *RedisRepo) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, time.Duration, error) {
	const op = "storage.redis.Allow"

	windowMS := window.Milliseconds()
	if windowMS <= 0 {
		return false, 0, fmt.Errorf("%s: invalid window %s", op, window)
	}

	res, err := fixedWindowScript.Run(ctx, r.client, []string{keyPrefix + key}, limit, windowMS).Int64Slice()
	if err != nil {
		return false, 0, fmt.Errorf("%s: %w", op, err)
	}
	if len(res) != 2 {
		return false, 0, fmt.Errorf("%s: unexpected reply %v", op, res)
	}

	retryAfter := time.Duration(res[1]) * time.Millisecond
	if retryAfter < 0 {
		retryAfter = 0
	}

	return res[0] == 1, retryAfter, nil
}

func (r *RedisRepo) Close() {
	r.client.Close()
}
