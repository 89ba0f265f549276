package webauth

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// RateLimiter throttles failed logins per client IP with a Redis fixed
// window. A nil limiter admits everything, so deployments without Redis run
// unchanged.
type RateLimiter struct {
	redis      *redis.Client
	maxAttempt int
	window     time.Duration
}

// NewRateLimiter creates a limiter allowing maxAttempt failed logins per IP
// within the window.
func NewRateLimiter(rdb *redis.Client, maxAttempt int, window time.Duration) *RateLimiter {
	if maxAttempt <= 0 {
		maxAttempt = 10
	}
	if window <= 0 {
		window = 15 * time.Minute
	}
	return &RateLimiter{
		redis:      rdb,
		maxAttempt: maxAttempt,
		window:     window,
	}
}

// RateLimitResult reports whether an attempt is admitted.
type RateLimitResult struct {
	Allowed   bool
	Remaining int
	RetryAt   time.Time
}

// Check reports whether the IP may attempt a login.
func (rl *RateLimiter) Check(ctx context.Context, ip string) (*RateLimitResult, error) {
	if rl == nil || rl.redis == nil {
		return &RateLimitResult{Allowed: true, Remaining: 1}, nil
	}

	key := rateKey(ip)
	count, err := rl.redis.Get(ctx, key).Int()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("checking rate limit: %w", err)
	}

	if count >= rl.maxAttempt {
		ttl, err := rl.redis.TTL(ctx, key).Result()
		if err != nil {
			return nil, fmt.Errorf("reading rate limit ttl: %w", err)
		}
		return &RateLimitResult{Allowed: false, RetryAt: time.Now().Add(ttl)}, nil
	}

	return &RateLimitResult{Allowed: true, Remaining: rl.maxAttempt - count}, nil
}

// Record counts a failed attempt against the IP's window.
func (rl *RateLimiter) Record(ctx context.Context, ip string) error {
	if rl == nil || rl.redis == nil {
		return nil
	}

	key := rateKey(ip)
	pipe := rl.redis.Pipeline()
	pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, rl.window)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("recording failed login: %w", err)
	}
	return nil
}

// Reset clears the IP's counter after a successful login.
func (rl *RateLimiter) Reset(ctx context.Context, ip string) error {
	if rl == nil || rl.redis == nil {
		return nil
	}
	return rl.redis.Del(ctx, rateKey(ip)).Err()
}

func rateKey(ip string) string {
	return fmt.Sprintf("login_ratelimit:%s", ip)
}

// clientIP returns the caller's address for rate limiting, preferring the
// forwarding headers set by the ingress proxy.
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		parts := strings.SplitN(xff, ",", 2)
		if ip := strings.TrimSpace(parts[0]); ip != "" {
			return ip
		}
	}
	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
		return xri
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
