package throttle

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/digibank/digibank/internal/infra"
)

// Timestamps are stored as unix milliseconds. The caller's clock is passed in
// so every instance agrees on the lock deadline that was written.

// Slots live in the same hash as 'pending' and 'pending_until'. A slot whose
// deadline passed is treated as released.

var admitScript = redis.NewScript(`
local now = tonumber(ARGV[1])
local limit = tonumber(ARGV[2])
local lockout = tonumber(ARGV[3])
local slot = tonumber(ARGV[4])
local h = redis.call('HMGET', KEYS[1], 'lock_until', 'failures', 'last_failure_at', 'pending', 'pending_until')
local lock = tonumber(h[1] or '0')
local failures = tonumber(h[2] or '0')
local last = tonumber(h[3] or '0')
local pending = tonumber(h[4] or '0')
local pendingUntil = tonumber(h[5] or '0')
if lock > 0 then
  if now < lock then
    return {1, lock}
  end
  redis.call('DEL', KEYS[1])
  failures = 0
  pending = 0
elseif failures > 0 and now - last >= lockout then
  redis.call('HDEL', KEYS[1], 'failures', 'first_failure_at', 'last_failure_at')
  failures = 0
end
if pending > 0 and now >= pendingUntil then
  pending = 0
end
if failures + pending >= limit then
  return {2, 0}
end
redis.call('HSET', KEYS[1], 'pending', pending + 1, 'pending_until', ARGV[5])
local ttl = redis.call('PTTL', KEYS[1])
if ttl < slot then
  redis.call('PEXPIRE', KEYS[1], slot)
end
return {0, 0}
`)

var failureScript = redis.NewScript(`
local now = tonumber(ARGV[1])
local limit = tonumber(ARGV[2])
local lockout = tonumber(ARGV[3])
local h = redis.call('HMGET', KEYS[1], 'lock_until', 'last_failure_at', 'pending', 'pending_until')
local lock = tonumber(h[1] or '0')
local last = tonumber(h[2] or '0')
local pending = tonumber(h[3] or '0')
local pendingUntil = tonumber(h[4] or '0')
if pending > 0 and now >= pendingUntil then
  pending = 0
end
if pending > 0 then
  pending = pending - 1
end
if pending > 0 then
  redis.call('HSET', KEYS[1], 'pending', pending)
else
  redis.call('HDEL', KEYS[1], 'pending', 'pending_until')
end
if lock > 0 and now < lock then
  local held = redis.call('HMGET', KEYS[1], 'failures', 'first_failure_at', 'last_failure_at')
  return {tonumber(held[1] or '0'), lock, tonumber(held[2] or '0'), tonumber(held[3] or '0'), pending}
end
if lock > 0 or (last > 0 and now - last >= lockout) then
  redis.call('HDEL', KEYS[1], 'failures', 'first_failure_at', 'last_failure_at', 'lock_until')
end
local failures = redis.call('HINCRBY', KEYS[1], 'failures', 1)
if failures == 1 then
  redis.call('HSET', KEYS[1], 'first_failure_at', ARGV[1])
end
redis.call('HSET', KEYS[1], 'last_failure_at', ARGV[1])
lock = 0
if failures >= limit then
  lock = tonumber(ARGV[4])
  redis.call('HSET', KEYS[1], 'lock_until', ARGV[4])
end
redis.call('PEXPIRE', KEYS[1], lockout)
local first = tonumber(redis.call('HGET', KEYS[1], 'first_failure_at'))
return {failures, lock, first, now, pending}
`)

var releaseScript = redis.NewScript(`
local now = tonumber(ARGV[1])
local h = redis.call('HMGET', KEYS[1], 'pending', 'pending_until')
local pending = tonumber(h[1] or '0')
local pendingUntil = tonumber(h[2] or '0')
if pending > 0 and now >= pendingUntil then
  pending = 0
end
if pending > 0 then
  pending = pending - 1
end
if pending > 0 then
  redis.call('HSET', KEYS[1], 'pending', pending)
else
  redis.call('HDEL', KEYS[1], 'pending', 'pending_until')
end
return pending
`)

// RedisThrottle keeps one hash per identity. Every mutation is a single Lua
// script, so concurrent attempts from any number of instances never observe a
// stale failure count.
type RedisThrottle struct {
	client *redis.Client
	policy Policy
}

// NewRedis builds a throttle sharing state through Redis.
func NewRedis(client *redis.Client, policy Policy) *RedisThrottle {
	return &RedisThrottle{client: client, policy: policy.withDefaults()}
}

func (r *RedisThrottle) key(identity string) string {
	return r.policy.KeyPrefix + Normalize(identity)
}

func (r *RedisThrottle) Admit(ctx context.Context, identity string) error {
	ctx, cancel := infra.WithStoreTimeout(ctx, r.policy.Timeout)
	defer cancel()

	now := r.policy.Now()
	args := []any{
		now.UnixMilli(),
		r.policy.MaxAttempts,
		r.policy.Lockout.Milliseconds(),
		r.policy.SlotTTL.Milliseconds(),
		now.Add(r.policy.SlotTTL).UnixMilli(),
	}
	res, err := admitScript.Run(ctx, r.client, []string{r.key(identity)}, args...).Int64Slice()
	if err != nil {
		return fmt.Errorf("admit: %w", infra.Unavailable(err))
	}
	if len(res) != 2 {
		return fmt.Errorf("admit: unexpected reply %v", res)
	}
	switch res[0] {
	case 0:
		return nil
	case 1:
		return lockedError(fromMillis(res[1]), now)
	default:
		return ErrBusy
	}
}

func (r *RedisThrottle) RecordFailure(ctx context.Context, identity string) (State, error) {
	ctx, cancel := infra.WithStoreTimeout(ctx, r.policy.Timeout)
	defer cancel()

	now := r.policy.Now()
	lockUntil := now.Add(r.policy.Lockout)
	args := []any{now.UnixMilli(), r.policy.MaxAttempts, r.policy.Lockout.Milliseconds(), lockUntil.UnixMilli()}
	res, err := failureScript.Run(ctx, r.client, []string{r.key(identity)}, args...).Int64Slice()
	if err != nil {
		return State{}, fmt.Errorf("record failure: %w", infra.Unavailable(err))
	}
	if len(res) != 5 {
		return State{}, fmt.Errorf("record failure: unexpected reply %v", res)
	}

	return State{
		Failures:       int(res[0]),
		Pending:        int(res[4]),
		LockUntil:      fromMillis(res[1]),
		FirstFailureAt: fromMillis(res[2]),
		LastFailureAt:  fromMillis(res[3]),
	}, nil
}

func (r *RedisThrottle) RecordSuccess(ctx context.Context, identity string) error {
	ctx, cancel := infra.WithStoreTimeout(ctx, r.policy.Timeout)
	defer cancel()

	if err := r.client.Del(ctx, r.key(identity)).Err(); err != nil {
		return fmt.Errorf("record success: %w", infra.Unavailable(err))
	}
	return nil
}

func (r *RedisThrottle) Release(ctx context.Context, identity string) error {
	ctx, cancel := infra.WithStoreTimeout(ctx, r.policy.Timeout)
	defer cancel()

	err := releaseScript.Run(ctx, r.client, []string{r.key(identity)}, r.policy.Now().UnixMilli()).Err()
	if err != nil {
		return fmt.Errorf("release: %w", infra.Unavailable(err))
	}
	return nil
}

func (r *RedisThrottle) State(ctx context.Context, identity string) (State, error) {
	ctx, cancel := infra.WithStoreTimeout(ctx, r.policy.Timeout)
	defer cancel()

	fields, err := r.client.HGetAll(ctx, r.key(identity)).Result()
	if err != nil {
		return State{}, fmt.Errorf("load state: %w", infra.Unavailable(err))
	}

	var st State
	for field, dst := range map[string]*int{
		"failures": &st.Failures,
		"pending":  &st.Pending,
	} {
		v, ok := fields[field]
		if !ok {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return State{}, fmt.Errorf("load state: %s: %w", field, err)
		}
		*dst = n
	}
	for field, dst := range map[string]*time.Time{
		"first_failure_at": &st.FirstFailureAt,
		"last_failure_at":  &st.LastFailureAt,
		"lock_until":       &st.LockUntil,
	} {
		v, ok := fields[field]
		if !ok {
			continue
		}
		ms, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return State{}, fmt.Errorf("load state: %s: %w", field, err)
		}
		*dst = fromMillis(ms)
	}
	return st, nil
}

func fromMillis(ms int64) time.Time {
	if ms <= 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}
