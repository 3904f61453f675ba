package presence

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// DefaultRedisKey is the hash holding per-user connection counts.
const DefaultRedisKey = "messenger:presence"

// decrScript decrements a counter and removes the field once it reaches zero.
// Returns the remaining count, or -1 when the field was absent.
var decrScript = redis.NewScript(`
local v = redis.call("HGET", KEYS[1], ARGV[1])
if not v then
  return -1
end
local n = redis.call("HINCRBY", KEYS[1], ARGV[1], -1)
if n <= 0 then
  redis.call("HDEL", KEYS[1], ARGV[1])
  return 0
end
return n
`)

// Redis shares connection counts between server instances.
type Redis struct {
	client *redis.Client
	key    string
}

// NewRedis parses url, pings the server and returns a tracker using DefaultRedisKey.
func NewRedis(ctx context.Context, url string) (*Redis, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("redis: parse url: %w", err)
	}
	c := redis.NewClient(opt)
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := c.Ping(pingCtx).Err(); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("redis: ping: %w", err)
	}
	return &Redis{client: c, key: DefaultRedisKey}, nil
}

// NewRedisWithClient wraps an existing client and hash key.
func NewRedisWithClient(c *redis.Client, key string) *Redis {
	if key == "" {
		key = DefaultRedisKey
	}
	return &Redis{client: c, key: key}
}

func (r *Redis) field(userID int64) string {
	return strconv.FormatInt(userID, 10)
}

func (r *Redis) Connect(ctx context.Context, userID int64) (bool, error) {
	n, err := r.client.HIncrBy(ctx, r.key, r.field(userID), 1).Result()
	if err != nil {
		return false, fmt.Errorf("redis: connect: %w", err)
	}
	return n == 1, nil
}

func (r *Redis) Disconnect(ctx context.Context, userID int64) (bool, error) {
	n, err := decrScript.Run(ctx, r.client, []string{r.key}, r.field(userID)).Int64()
	if err != nil {
		return false, fmt.Errorf("redis: disconnect: %w", err)
	}
	return n == 0, nil
}

func (r *Redis) IsOnline(ctx context.Context, userID int64) (bool, error) {
	n, err := r.client.HGet(ctx, r.key, r.field(userID)).Int64()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("redis: is online: %w", err)
	}
	return n > 0, nil
}

// Close closes the underlying client.
func (r *Redis) Close() error {
	return r.client.Close()
}

var _ Tracker = (*Redis)(nil)
