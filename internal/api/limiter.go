package api

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// ipLimiterEntry 包含限流器和最后访问时间
type ipLimiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// IPLimiter 基于 IP 的速率限制器（token bucket）
// 用于 POST /api/trigger，防止外部请求把巡检频率打满、被状态页封禁
type IPLimiter struct {
	mu        sync.Mutex
	limiters  map[string]*ipLimiterEntry
	rateVal   rate.Limit
	burst     int
	ttl       time.Duration
	lastSweep time.Time
	now       func() time.Time
}

// NewIPLimiter 创建 IP 速率限制器
// perMinute: 每个 IP 每分钟允许的请求数；burst: 突发容量
func NewIPLimiter(perMinute int, burst int) *IPLimiter {
	return &IPLimiter{
		limiters: make(map[string]*ipLimiterEntry),
		rateVal:  rate.Limit(float64(perMinute) / 60.0),
		burst:    burst,
		ttl:      5 * time.Minute, // 5 分钟未使用则回收
		now:      time.Now,
	}
}

// Allow 检查来自给定 IP 的请求是否被允许
func (l *IPLimiter) Allow(ip string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if now.Sub(l.lastSweep) > l.ttl {
		l.sweepLocked(now)
	}

	entry, ok := l.limiters[ip]
	if !ok {
		entry = &ipLimiterEntry{limiter: rate.NewLimiter(l.rateVal, l.burst)}
		l.limiters[ip] = entry
	}
	entry.lastSeen = now
	return entry.limiter.AllowN(now, 1)
}

// sweepLocked 回收长时间未使用的限流器（调用方需持有 l.mu）
func (l *IPLimiter) sweepLocked(now time.Time) {
	for ip, entry := range l.limiters {
		if now.Sub(entry.lastSeen) > l.ttl {
			delete(l.limiters, ip)
		}
	}
	l.lastSweep = now
}

// Count 返回当前跟踪的 IP 数量
func (l *IPLimiter) Count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.limiters)
}

// Middleware 超出限流时返回 429
func (l *IPLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !l.Allow(c.ClientIP()) {
			c.Header("Retry-After", "60")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "请求过于频繁，请稍后再试"})
			return
		}
		c.Next()
	}
}
