package middlewares

import (
	"fmt"
	"net/http"
	"time"

	"github.com/DataGeek404/micro-finance-app-sub001/notify"
	"github.com/DataGeek404/micro-finance-app-sub001/utils"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

// RateLimiter is a fixed-window counter per caller kept in Redis.
type RateLimiter struct {
	client *redis.Client
	limit  int64
	window time.Duration
}

func NewRateLimiter(client *redis.Client, limit int64, window time.Duration) *RateLimiter {
	return &RateLimiter{
		client: client,
		limit:  limit,
		window: window,
	}
}

// signed-in users are counted per user, everyone else per IP
func (rl *RateLimiter) key(c *gin.Context) string {
	if id, ok := utils.GetUserIdFromContext(c.Request.Context()); ok && id != "" {
		return "ratelimit:user:" + id
	}
	return "ratelimit:ip:" + c.ClientIP()
}

func (rl *RateLimiter) RateLimitMiddleware(c *gin.Context) {
	if rl.client == nil {
		c.Next()
		return
	}
	ctx := c.Request.Context()
	key := rl.key(c)

	count, err := rl.client.Incr(ctx, key).Result()
	if err != nil {
		_ = c.Error(err)
		c.Next()
		return
	}
	if count == 1 {
		if err := rl.client.Expire(ctx, key, rl.window).Err(); err != nil {
			_ = c.Error(err)
		}
	}

	if count > rl.limit {
		c.Header("Retry-After", fmt.Sprintf("%d", int(rl.window.Seconds())))
		c.AbortWithStatusJSON(http.StatusTooManyRequests, notify.Wrap(nil, notify.Warning(
			"Too many requests",
			fmt.Sprintf("Rate limit exceeded. Try again in %d seconds", int(rl.window.Seconds())),
		)))
		return
	}
	c.Next()
}
