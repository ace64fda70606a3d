package middleware

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"tidebase/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// tokenBucketScript implements a token bucket per client in Redis.
// ARGV: rate, capacity, now, requested. Returns { allowed, remaining }.
var tokenBucketScript = redis.NewScript(`
local tokens_key = KEYS[1]
local ts_key = KEYS[2]
local rate = tonumber(ARGV[1])
local capacity = tonumber(ARGV[2])
local now = tonumber(ARGV[3])
local requested = tonumber(ARGV[4])

local ttl = math.ceil(capacity / rate * 2)

local tokens = tonumber(redis.call("get", tokens_key))
if tokens == nil then tokens = capacity end
local last_ts = tonumber(redis.call("get", ts_key))
if last_ts == nil then last_ts = now end

tokens = math.min(capacity, tokens + math.max(0, now - last_ts) * rate)

local allowed = 0
if tokens >= requested then
    allowed = 1
    tokens = tokens - requested
    redis.call("set", tokens_key, tokens, "EX", ttl)
    redis.call("set", ts_key, now, "EX", ttl)
end

return { allowed, tokens }
`)

// localLimiters is the in-process fallback used while Redis is unreachable.
var localLimiters sync.Map

func localLimiter(ip string, r rate.Limit, burst int) *rate.Limiter {
	if val, ok := localLimiters.Load(ip); ok {
		return val.(*rate.Limiter)
	}
	l := rate.NewLimiter(r, burst)
	actual, _ := localLimiters.LoadOrStore(ip, l)
	return actual.(*rate.Limiter)
}

// RateLimitMiddleware throttles write traffic per client IP through Redis,
// failing open to a local limiter when Redis is down. Protecting the endpoint
// matters here: a burst of writes can keep a scale-to-zero database from ever
// suspending.
func RateLimitMiddleware(rdb *redis.Client, requestsPerSecond int) gin.HandlerFunc {
	if requestsPerSecond <= 0 {
		requestsPerSecond = 5
	}
	burst := requestsPerSecond

	return func(c *gin.Context) {
		ip := c.ClientIP()
		keys := []string{"ratelimit:" + ip + ":tokens", "ratelimit:" + ip + ":ts"}
		now := float64(time.Now().UnixMicro()) / 1e6

		ctx, cancel := context.WithTimeout(c.Request.Context(), 100*time.Millisecond)
		defer cancel()

		result, err := tokenBucketScript.Run(ctx, rdb, keys,
			float64(requestsPerSecond), float64(burst), now, 1).Result()
		if err != nil {
			logger.Warn("redis rate limit unavailable, using local fallback",
				zap.Error(err), zap.String("ip", ip))
			c.Header("X-RateLimit-Limit", fmt.Sprintf("%d", requestsPerSecond))
			if !localLimiter(ip, rate.Limit(requestsPerSecond), burst).Allow() {
				c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "too many requests"})
				return
			}
			c.Next()
			return
		}

		res, ok := result.([]any)
		if !ok || len(res) != 2 {
			logger.Error("unexpected rate limit script response", zap.Any("response", result))
			c.Next()
			return
		}

		allowed, _ := res[0].(int64)
		remaining, _ := res[1].(int64)
		c.Header("X-RateLimit-Limit", fmt.Sprintf("%d", requestsPerSecond))
		c.Header("X-RateLimit-Remaining", fmt.Sprintf("%d", remaining))

		if allowed != 1 {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "too many requests"})
			return
		}
		c.Next()
	}
}
