// Package ratelimit implements request rate limiting backed by Redis or memory.
package ratelimit

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/store/memory"
	sredis "github.com/ulule/limiter/v3/drivers/store/redis"
	"go.uber.org/zap"

	"github.com/opensync/docrelay/internal/config"
	"github.com/opensync/docrelay/internal/logging"
	"github.com/opensync/docrelay/internal/metrics"
)

// RateLimiter holds the rate limiter instances used by the REST surface and gateway.
type RateLimiter struct {
	rooms *limiter.Limiter
	wsIP  *limiter.Limiter
	store limiter.Store
}

// NewRateLimiter builds a RateLimiter, using a Redis-backed store when
// redisClient is non-nil and a process-local memory store otherwise.
func NewRateLimiter(cfg *config.Config, redisClient *redis.Client) (*RateLimiter, error) {
	roomsRate, err := limiter.NewRateFromFormatted(cfg.RateLimitRooms)
	if err != nil {
		return nil, fmt.Errorf("invalid rooms rate: %w", err)
	}
	wsIPRate, err := limiter.NewRateFromFormatted(cfg.RateLimitWsIP)
	if err != nil {
		return nil, fmt.Errorf("invalid ws ip rate: %w", err)
	}

	var store limiter.Store
	if redisClient != nil {
		s, err := sredis.NewStoreWithOptions(redisClient, limiter.StoreOptions{
			Prefix: "docrelay:limiter:",
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create redis store: %w", err)
		}
		store = s
		logging.Info(context.Background(), "rate limiter using Redis store")
	} else {
		store = memory.NewStore()
		logging.Warn(context.Background(), "rate limiter using memory store (no REDIS_ADDR set)")
	}

	return &RateLimiter{
		rooms: limiter.New(store, roomsRate),
		wsIP:  limiter.New(store, wsIPRate),
		store: store,
	}, nil
}

// RoomsMiddleware enforces the `/rooms*` per-IP rate limit and sets the
// standard X-RateLimit-* headers.
func (rl *RateLimiter) RoomsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		key := c.ClientIP()

		lctx, err := rl.rooms.Get(ctx, key)
		if err != nil {
			logging.Error(ctx, "rate limiter store failed", zap.Error(err))
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.FormatInt(lctx.Limit, 10))
		c.Header("X-RateLimit-Remaining", strconv.FormatInt(lctx.Remaining, 10))
		c.Header("X-RateLimit-Reset", strconv.FormatInt(lctx.Reset, 10))

		if lctx.Reached {
			metrics.RateLimitExceeded.WithLabelValues(c.FullPath()).Inc()
			retryAfter := lctx.Reset - time.Now().Unix()
			c.Header("Retry-After", strconv.FormatInt(retryAfter, 10))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":       "too many requests",
				"retry_after": lctx.Reset,
			})
			return
		}

		metrics.RateLimitRequests.WithLabelValues(c.FullPath()).Inc()
		c.Next()
	}
}

// CheckWebSocket enforces the per-IP WebSocket connect rate limit. Returns
// true if the connection should proceed. Fails open on store errors.
func (rl *RateLimiter) CheckWebSocket(ctx context.Context, ip string) bool {
	lctx, err := rl.wsIP.Get(ctx, ip)
	if err != nil {
		logging.Error(ctx, "ws rate limiter store failed")
		return true
	}
	if lctx.Reached {
		metrics.RateLimitExceeded.WithLabelValues("ws_connect").Inc()
		return false
	}
	return true
}
