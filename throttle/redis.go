package throttle

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// The script mirrors Policy.Apply. Times are unix milliseconds.
var checkAndRecordScript = redis.NewScript(`
local key = KEYS[1]
local now_ms = tonumber(ARGV[1])
local window_ms = tonumber(ARGV[2])
local max_attempts = tonumber(ARGV[3])
local cooldown_ms = tonumber(ARGV[4])

local state = redis.call('HMGET', key, 'ws', 'cnt', 'cd')
local ws = tonumber(state[1])
local cnt = tonumber(state[2])
local cd = tonumber(state[3]) or 0
if ws == nil or cnt == nil then
  ws = now_ms
  cnt = 0
  cd = 0
end

local allowed = 1
local retry_ms = 0
if cd > 0 and now_ms < cd then
  cnt = cnt + 1
  allowed = 0
  retry_ms = cd - now_ms
else
  if cd > 0 then
    ws = now_ms
    cnt = 0
    cd = 0
  end
  if now_ms - ws > window_ms then
    ws = now_ms
    cnt = 0
  end
  cnt = cnt + 1
  if cnt > max_attempts then
    if cooldown_ms > 0 then
      cd = now_ms + cooldown_ms
    else
      cd = ws + window_ms
    end
    allowed = 0
    retry_ms = cd - now_ms
  end
end

redis.call('HSET', key, 'ws', ws, 'cnt', cnt, 'cd', cd)
local expires = ws + window_ms
if cd > expires then expires = cd end
local ttl = expires - now_ms
if ttl < 1000 then ttl = 1000 end
redis.call('PEXPIRE', key, ttl)

return { allowed, retry_ms, cnt }
`)

// RedisStore shares throttle state between instances. The Lua script runs
// atomically on the server so concurrent attempts cannot both pass a boundary.
type RedisStore struct {
	client redis.Scripter
	prefix string
}

var _ Store = (*RedisStore)(nil)

func NewRedisStore(client redis.Scripter, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "throttle"
	}
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) CheckAndRecord(ctx context.Context, scopeKey string, p Policy, now time.Time) (Decision, error) {
	args := []any{
		now.UnixMilli(),
		p.Window.Milliseconds(),
		p.MaxAttempts,
		p.Cooldown.Milliseconds(),
	}
	vals, err := checkAndRecordScript.Run(ctx, s.client, []string{s.prefix + ":" + scopeKey}, args...).Int64Slice()
	if err != nil {
		return Decision{}, fmt.Errorf("redis throttle script: %w", err)
	}
	if len(vals) != 3 {
		return Decision{}, fmt.Errorf("redis throttle script: unexpected result %v", vals)
	}

	d := Decision{Allowed: vals[0] == 1, Count: int(vals[2])}
	if !d.Allowed {
		d.RetryAfter = ceilSeconds(time.Duration(vals[1]) * time.Millisecond)
	}
	return d, nil
}
