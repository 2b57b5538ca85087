// Package ratelimit implements the Rate Limiter (C1): a token-bucket
// primitive evaluated atomically on the shared KV store, spec.md §4.5,
// following the same Cmdable-wrapping constructor shape as the rest of the
// Redis-backed packages. An in-process golang.org/x/time/rate.Limiter
// cannot serve this role because the bucket must be shared across the
// coordinator and every worker process (spec.md §1), so the algorithm runs
// server-side as a Lua script instead.
package ratelimit

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// script implements spec.md §4.5's algorithm atomically per invocation:
//  1. read server wall-clock (seconds);
//  2. load (tokens, last-request) from the hash at key;
//  3. if absent, initialize tokens = maxTokens-1, last-request = now,
//     set TTL = keyExpiry, return ALLOW (1);
//  4. otherwise elapsed = now - last-request;
//     newTokens = min(maxTokens, tokens + elapsed*refillRate);
//  5. if newTokens > 0, persist (newTokens-1, now) and return ALLOW (1),
//     else return DENY (0).
const script = `
local key = KEYS[1]
local maxTokens = tonumber(ARGV[1])
local refillRate = tonumber(ARGV[2])
local keyExpiry = tonumber(ARGV[3])

local now = tonumber(redis.call('TIME')[1])

local bucket = redis.call('HMGET', key, 'tokens', 'last_request')
local tokens = bucket[1]
local lastRequest = bucket[2]

if tokens == false then
  redis.call('HSET', key, 'tokens', maxTokens - 1, 'last_request', now)
  redis.call('EXPIRE', key, keyExpiry)
  return 1
end

tokens = tonumber(tokens)
lastRequest = tonumber(lastRequest)

local elapsed = now - lastRequest
local newTokens = math.min(maxTokens, tokens + elapsed * refillRate)

if newTokens > 0 then
  redis.call('HSET', key, 'tokens', newTokens - 1, 'last_request', now)
  redis.call('EXPIRE', key, keyExpiry)
  return 1
end

return 0
`

// Limiter is the Redis-backed shared token-bucket rate limiter.
type Limiter struct {
	client redis.Scripter
	sha    string
}

// New wraps a redis.Scripter (satisfied by *redis.Client) as a Limiter.
// The script is loaded lazily on first Allow call.
func New(client redis.Scripter) *Limiter {
	return &Limiter{client: client}
}

// Params bundles the per-bucket script parameters spec.md §4.5 describes
// as "baked into each script variant" — here passed as EVALSHA ARGV so one
// script serves every bucket.
type Params struct {
	// Key names the bucket, e.g. "ratelimit:whatsapp-gateway".
	Key string
	// MaxTokens is the bucket capacity.
	MaxTokens int
	// RefillRate is tokens added per second.
	RefillRate float64
	// KeyExpiry is the TTL, in seconds, applied to the bucket hash.
	KeyExpiry int
}

// Allow evaluates the token bucket for p.Key and reports ALLOW (true) or
// DENY (false). A DENY is advisory, not a fatal error — spec.md §4.5:
// "a DENY means retry after a short delay".
func (l *Limiter) Allow(ctx context.Context, p Params) (bool, error) {
	if l.sha == "" {
		sha, err := l.client.ScriptLoad(ctx, script).Result()
		if err != nil {
			return false, fmt.Errorf("load rate limit script: %w", err)
		}
		l.sha = sha
	}

	res, err := l.client.EvalSha(ctx, l.sha, []string{p.Key}, p.MaxTokens, p.RefillRate, p.KeyExpiry).Result()
	if err != nil {
		// NOSCRIPT can happen after a Redis restart flushes the script
		// cache; reload the script, re-cache the SHA, and retry EVALSHA once.
		if isNoScript(err) {
			sha, loadErr := l.client.ScriptLoad(ctx, script).Result()
			if loadErr != nil {
				return false, fmt.Errorf("reload rate limit script: %w", loadErr)
			}
			l.sha = sha
			res, err = l.client.EvalSha(ctx, l.sha, []string{p.Key}, p.MaxTokens, p.RefillRate, p.KeyExpiry).Result()
		}
		if err != nil {
			return false, fmt.Errorf("eval rate limit script: %w", err)
		}
	}

	n, ok := res.(int64)
	if !ok {
		return false, fmt.Errorf("unexpected rate limit script result type %T", res)
	}
	return n == 1, nil
}

func isNoScript(err error) bool {
	return err != nil && len(err.Error()) >= 8 && err.Error()[:8] == "NOSCRIPT"
}
