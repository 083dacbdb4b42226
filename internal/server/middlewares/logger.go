package middlewares

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"hize/membership/pkg/logger"
)

const HeaderRequestID = "X-Request-ID"

// Logger 请求日志，注入 request_id
func Logger(log logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		requestID := c.GetHeader(HeaderRequestID)
		if requestID == "" {
			requestID = uuid.New().String()
		}
		c.Header(HeaderRequestID, requestID)
		c.Request = c.Request.WithContext(logger.WithRequestID(c.Request.Context(), requestID))

		c.Next()

		ctx := c.Request.Context()
		status := c.Writer.Status()
		switch {
		case status >= 500:
			log.Errorf(ctx, "[HTTP] %s %s -> %d (%v)", c.Request.Method, c.Request.URL.Path, status, time.Since(start))
		case status >= 400:
			log.Warnf(ctx, "[HTTP] %s %s -> %d (%v)", c.Request.Method, c.Request.URL.Path, status, time.Since(start))
		default:
			log.Infof(ctx, "[HTTP] %s %s -> %d (%v)", c.Request.Method, c.Request.URL.Path, status, time.Since(start))
		}
	}
}
