package api

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mautops/casework-gin/internal/auth"
	"golang.org/x/time/rate"
)

// limiterIdleTTL 调用方空闲多久后回收其限流器
const limiterIdleTTL = 10 * time.Minute

// callerLimiter 单个调用方的限流器
type callerLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// callerLimiters 按调用方划分的限流器集合
type callerLimiters struct {
	mu        sync.Mutex
	limit     rate.Limit
	burst     int
	limiters  map[string]*callerLimiter
	lastSweep time.Time
}

// allow 判断调用方此刻是否放行,并顺带回收空闲的限流器
func (l *callerLimiters) allow(key string, now time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if now.Sub(l.lastSweep) > limiterIdleTTL {
		for k, v := range l.limiters {
			if now.Sub(v.lastSeen) > limiterIdleTTL {
				delete(l.limiters, k)
			}
		}
		l.lastSweep = now
	}

	entry, ok := l.limiters[key]
	if !ok {
		entry = &callerLimiter{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.limiters[key] = entry
	}
	entry.lastSeen = now
	return entry.limiter.AllowN(now, 1)
}

// callerKey 已认证请求按用户限流,否则按客户端 IP
func callerKey(c *gin.Context) string {
	if actor := auth.CurrentActor(c); actor != nil {
		return "user:" + actor.UserID
	}
	return "ip:" + c.ClientIP()
}

// RateLimitMiddleware 按调用方限流,rps <= 0 时不限流
// 注册在认证中间件之后时按用户限流
func RateLimitMiddleware(rps float64, burst int) gin.HandlerFunc {
	if rps <= 0 {
		return func(c *gin.Context) { c.Next() }
	}
	if burst < 1 {
		burst = 1
	}
	limiters := &callerLimiters{
		limit:     rate.Limit(rps),
		burst:     burst,
		limiters:  make(map[string]*callerLimiter),
		lastSweep: time.Now(),
	}

	return func(c *gin.Context) {
		if !limiters.allow(callerKey(c), time.Now()) {
			c.Header("Retry-After", "1")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, ErrorResponse{
				Code:    http.StatusTooManyRequests,
				Message: "too many requests",
			})
			return
		}
		c.Next()
	}
}
