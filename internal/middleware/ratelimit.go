package middleware

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/AnshRaj112/mystery-message-backend/pkg/clientip"
	"github.com/AnshRaj112/mystery-message-backend/pkg/logger"
)

const (
	// RateLimitKeyPrefix is the Redis key prefix for rate limiting
	RateLimitKeyPrefix = "ratelimit:"
	// BlockedIPKeyPrefix is the Redis key prefix for blocked IPs
	BlockedIPKeyPrefix = "blocked_ip:"
)

// RateLimitConfig sets a fixed window of Max requests per Window for one scope.
// Exceeding it blocks the IP for BlockFor.
type RateLimitConfig struct {
	Scope      string
	Window     time.Duration
	Max        int
	BlockFor   time.Duration
	TrustProxy bool
}

// RateLimiter counts requests per IP in Redis, so limits hold across instances.
// Redis failures let the request through.
type RateLimiter struct {
	client *redis.Client
	cfg    RateLimitConfig
	now    func() time.Time
}

func NewRateLimiter(client *redis.Client, cfg RateLimitConfig) *RateLimiter {
	return &RateLimiter{client: client, cfg: cfg, now: time.Now}
}

func (l *RateLimiter) counterKey(ip string) string {
	return RateLimitKeyPrefix + l.cfg.Scope + ":" + ip
}

func (l *RateLimiter) blockedKey(ip string) string {
	return BlockedIPKeyPrefix + l.cfg.Scope + ":" + ip
}

// Hit records one request from ip and returns how many remain in the window.
// allowed is false when ip is blocked or just went over the limit.
func (l *RateLimiter) Hit(ctx context.Context, ip string) (allowed bool, remaining int, err error) {
	blocked, err := l.client.Exists(ctx, l.blockedKey(ip)).Result()
	if err != nil {
		return true, l.cfg.Max, err
	}
	if blocked > 0 {
		return false, 0, nil
	}

	// The first hit opens the window; later hits leave its expiry alone.
	key := l.counterKey(ip)
	pipe := l.client.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.ExpireNX(ctx, key, l.cfg.Window)
	if _, err := pipe.Exec(ctx); err != nil {
		return true, l.cfg.Max, err
	}

	count := int(incr.Val())
	if count > l.cfg.Max {
		if l.cfg.BlockFor > 0 {
			if err := l.client.Set(ctx, l.blockedKey(ip), "1", l.cfg.BlockFor).Err(); err != nil {
				return false, 0, err
			}
		}
		return false, 0, nil
	}
	return true, l.cfg.Max - count, nil
}

// Middleware enforces the limit and sets the X-RateLimit-* headers.
func (l *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		ip := clientip.RealClientIP(r, l.cfg.TrustProxy)

		allowed, remaining, err := l.Hit(ctx, ip)
		if err != nil {
			logger.Log(ctx).Warn(ctx, "rate limiter unavailable",
				zap.String("scope", l.cfg.Scope), zap.Error(err))
			if allowed {
				next.ServeHTTP(w, r)
				return
			}
		}
		if !allowed {
			writeErrorBody(w, http.StatusTooManyRequests, errorBody{
				Message:    "Too many requests. Please try again later.",
				RetryAfter: int(l.cfg.Window.Seconds()),
			})
			return
		}

		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(l.cfg.Max))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(l.now().Add(l.cfg.Window).Unix(), 10))
		next.ServeHTTP(w, r)
	})
}
