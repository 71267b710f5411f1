package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// fixedWindowScript admits a hit only while the window has room. Rejected hits
// are not counted, so a client hammering a full window does not push its own
// reset further out.
//
// KEYS[1] window key, ARGV[1] window in ms, ARGV[2] limit.
// Returns {allowed (0|1), hits in window, ms until reset}.
var fixedWindowScript = redis.NewScript(`
local window = tonumber(ARGV[1])
local limit = tonumber(ARGV[2])
local hits = tonumber(redis.call("GET", KEYS[1]) or "0")
local allowed = 0
if hits < limit then
  hits = redis.call("INCR", KEYS[1])
  allowed = 1
end
local ttl = redis.call("PTTL", KEYS[1])
if ttl < 0 then
  redis.call("PEXPIRE", KEYS[1], window)
  ttl = window
end
return {allowed, hits, ttl}
`)

// RateLimitPolicy is one throttle: at most Limit hits per Window for each
// subject in Scope.
type RateLimitPolicy struct {
	Scope  string
	Limit  int
	Window time.Duration
}

// Enabled reports whether the policy throttles anything.
func (p RateLimitPolicy) Enabled() bool {
	return p.Limit > 0 && p.Window > 0 && strings.TrimSpace(p.Scope) != ""
}

// RateLimitDecision is the outcome of one hit.
type RateLimitDecision struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
}

var allowAll = RateLimitDecision{Allowed: true}

// RateLimiter decides whether a subject may make another request under policy.
type RateLimiter interface {
	Allow(ctx context.Context, policy RateLimitPolicy, subject string) (RateLimitDecision, error)
}

// RedisRateLimiter shares credential throttles across replicas. It is separate
// from PIN lockout, which lives in the credential store.
type RedisRateLimiter struct {
	client redis.UniversalClient
	prefix string
}

func NewRedisRateLimiter(client redis.UniversalClient, prefix string) *RedisRateLimiter {
	prefix = strings.TrimSuffix(strings.TrimSpace(prefix), ":")
	if prefix == "" {
		prefix = "bizcompass:rate_limit"
	}
	return &RedisRateLimiter{client: client, prefix: prefix}
}

// Allow records a hit for subject when the window has room. Disabled policies,
// blank subjects and a nil limiter always allow.
func (r *RedisRateLimiter) Allow(ctx context.Context, policy RateLimitPolicy, subject string) (RateLimitDecision, error) {
	subject = strings.ToLower(strings.TrimSpace(subject))
	if r == nil || r.client == nil || !policy.Enabled() || subject == "" {
		return allowAll, nil
	}

	window := policy.Window
	if window < time.Second {
		window = time.Second
	}
	key := r.prefix + ":" + strings.TrimSpace(policy.Scope) + ":" + subject

	values, err := fixedWindowScript.Run(ctx, r.client, []string{key}, window.Milliseconds(), policy.Limit).Int64Slice()
	if err != nil {
		return RateLimitDecision{}, fmt.Errorf("rate limit %s: %w", policy.Scope, err)
	}
	if len(values) != 3 {
		return RateLimitDecision{}, fmt.Errorf("rate limit %s: unexpected reply length %d", policy.Scope, len(values))
	}

	allowed, hits, ttl := values[0] == 1, int(values[1]), time.Duration(values[2])*time.Millisecond
	decision := RateLimitDecision{Allowed: allowed, Remaining: policy.Limit - hits}
	if decision.Remaining < 0 {
		decision.Remaining = 0
	}
	if !allowed {
		// Round up so clients never retry into the same window.
		decision.RetryAfter = ttl.Truncate(time.Second)
		if decision.RetryAfter < ttl || decision.RetryAfter == 0 {
			decision.RetryAfter += time.Second
		}
	}
	return decision, nil
}
