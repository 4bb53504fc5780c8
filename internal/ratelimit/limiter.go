package ratelimit

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/Skotchmaster/scenario_manager/pkg/logging"
)

const keyPrefix = "ratelimit:"

// Limiter is a fixed-window counter shared by every instance through Redis.
type Limiter struct {
	client *redis.Client
	limit  int64
	window time.Duration
}

func New(client *redis.Client, limit int, window time.Duration) *Limiter {
	return &Limiter{client: client, limit: int64(limit), window: window}
}

// Open connects to url (redis://...) and pings it.
func Open(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

type Decision struct {
	Allowed   bool
	Remaining int64
	// ResetIn is how long until the current window ends.
	ResetIn time.Duration
}

// Allow counts one hit for key and reports whether it is within the limit.
func (l *Limiter) Allow(ctx context.Context, key string) (Decision, error) {
	k := keyPrefix + key

	var (
		incr *redis.IntCmd
		ttl  *redis.DurationCmd
	)
	_, err := l.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, k)
		pipe.ExpireNX(ctx, k, l.window)
		ttl = pipe.PTTL(ctx, k)
		return nil
	})
	if err != nil {
		return Decision{Allowed: true, Remaining: l.limit}, fmt.Errorf("rate limit %s: %w", key, err)
	}

	count := incr.Val()
	d := Decision{
		Allowed:   count <= l.limit,
		Remaining: max(l.limit-count, 0),
		ResetIn:   ttl.Val(),
	}
	if d.ResetIn <= 0 || d.ResetIn > l.window {
		d.ResetIn = l.window
	}
	return d, nil
}

// Middleware limits requests per client IP under scope. Redis errors let the
// request through. The client IP comes from the echo instance's IPExtractor.
func (l *Limiter) Middleware(scope string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx := c.Request().Context()
			ip := c.RealIP()
			d, err := l.Allow(ctx, scope+":"+ip)
			if err != nil {
				logging.FromContext(ctx).Warn("rate_limit_unavailable", "scope", scope, "error", err)
				return next(c)
			}

			c.Response().Header().Set("X-RateLimit-Limit", strconv.FormatInt(l.limit, 10))
			c.Response().Header().Set("X-RateLimit-Remaining", strconv.FormatInt(d.Remaining, 10))
			if !d.Allowed {
				c.Response().Header().Set("Retry-After", strconv.FormatInt(retryAfterSeconds(d.ResetIn), 10))
				logging.FromContext(ctx).Warn("rate_limited", "status", 429, "scope", scope, "ip", ip)
				return echo.NewHTTPError(http.StatusTooManyRequests, "too many requests")
			}
			return next(c)
		}
	}
}

// retryAfterSeconds rounds up so a client never retries inside the window.
func retryAfterSeconds(d time.Duration) int64 {
	s := int64((d + time.Second - 1) / time.Second)
	return max(s, 1)
}

func (l *Limiter) Close() error {
	return l.client.Close()
}
