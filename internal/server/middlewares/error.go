package middlewares

import (
	"github.com/gin-gonic/gin"

	"hize/membership/pkg/ginx"
	"hize/membership/pkg/logger"
)

// ErrorHandler 统一错误处理中间件
// 捕获 panic 以及 handler 通过 c.Error 挂载但未输出的错误
func ErrorHandler(log logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				log.Errorf(c.Request.Context(), "[HTTP] panic recovered: %v", r)
				if !c.Writer.Written() {
					ginx.InternalError(c)
				}
				c.Abort()
			}
		}()

		c.Next()

		if len(c.Errors) > 0 && !c.Writer.Written() {
			err := c.Errors.Last().Err
			log.Errorf(c.Request.Context(), "[HTTP] unhandled error: %v", err)
			ginx.Error(c, err)
		}
	}
}
