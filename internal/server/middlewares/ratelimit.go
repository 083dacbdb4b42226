package middlewares

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"

	"hize/membership/internal/store"
	"hize/membership/pkg/errorx"
	"hize/membership/pkg/ginx"
	"hize/membership/pkg/logger"
)

const msgTooManyRequests = "Too many requests, please try again later"

// WindowLimiter 固定窗口限流，计数保存在共享存储中，多个 API 实例共用同一配额
type WindowLimiter struct {
	st       store.Store
	requests int64
	window   time.Duration
	now      func() time.Time
}

// LimiterOption WindowLimiter 可选参数
type LimiterOption func(*WindowLimiter)

// WithLimiterClock 替换时钟，测试用
func WithLimiterClock(now func() time.Time) LimiterOption {
	return func(l *WindowLimiter) {
		l.now = now
	}
}

// NewWindowLimiter 每个窗口最多 requests 次，requests 或 window 非正时不限流（返回 nil）
func NewWindowLimiter(st store.Store, requests int, window time.Duration, opts ...LimiterOption) *WindowLimiter {
	if requests <= 0 || window <= 0 {
		return nil
	}
	l := &WindowLimiter{
		st:       st,
		requests: int64(requests),
		window:   window,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Allow 当前窗口计数加一，超过配额返回 false
func (l *WindowLimiter) Allow(ctx context.Context) (bool, error) {
	if l == nil {
		return true, nil
	}
	start := l.now().Truncate(l.window)
	n, err := l.st.Incr(ctx, store.RateLimitKey(start.Unix()), l.window)
	if err != nil {
		return true, err
	}
	return n <= l.requests, nil
}

// RateLimit 整体请求限流，不区分会员号或来源
// 计数失败时放行，由后续存储访问返回 503
func RateLimit(limiter *WindowLimiter, log logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		allowed, err := limiter.Allow(ctx)
		if err != nil {
			log.Warnf(ctx, "[RateLimit] Counter unavailable, letting request through: %v", err)
		}
		if !allowed {
			ginx.AbortWithError(c, errorx.New(errorx.TooManyRequests, msgTooManyRequests))
			return
		}
		c.Next()
	}
}
