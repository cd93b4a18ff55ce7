package middleware

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
)

// RateLimitConfig tunes the per-client token bucket.
type RateLimitConfig struct {
	RequestsPerSecond float64
	BurstSize         int
}

func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{RequestsPerSecond: 100, BurstSize: 200}
}

type client struct {
	tokens float64
	seen   time.Time
}

// limiter is a continuously refilling token bucket keyed by client address.
type limiter struct {
	mu      sync.Mutex
	cfg     RateLimitConfig
	clients map[string]*client
}

// take spends one token for addr, refilling first from the elapsed time since
// the last request. It reports whether the request may proceed and how many
// whole tokens remain.
func (l *limiter) take(addr string, now time.Time) (bool, int) {
	l.mu.Lock()
	defer l.mu.Unlock()

	cl, ok := l.clients[addr]
	if !ok {
		cl = &client{tokens: float64(l.cfg.BurstSize), seen: now}
		l.clients[addr] = cl
	} else {
		cl.tokens += now.Sub(cl.seen).Seconds() * l.cfg.RequestsPerSecond
		if cl.tokens > float64(l.cfg.BurstSize) {
			cl.tokens = float64(l.cfg.BurstSize)
		}
		cl.seen = now
	}

	if cl.tokens < 1 {
		return false, 0
	}
	cl.tokens--
	return true, int(math.Floor(cl.tokens))
}

// RateLimit rejects clients that exceed the configured request rate with a
// 429, carrying Retry-After and X-RateLimit headers.
func RateLimit(cfg RateLimitConfig) echo.MiddlewareFunc {
	l := &limiter{cfg: cfg, clients: map[string]*client{}}
	limit := strconv.Itoa(cfg.BurstSize)
	retryAfter := strconv.Itoa(int(math.Ceil(1 / cfg.RequestsPerSecond)))

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ok, remaining := l.take(c.RealIP(), time.Now())
			c.Response().Header().Set("X-RateLimit-Limit", limit)
			c.Response().Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
			if !ok {
				c.Response().Header().Set("Retry-After", retryAfter)
				return echo.NewHTTPError(http.StatusTooManyRequests, "rate limit exceeded")
			}
			return next(c)
		}
	}
}
