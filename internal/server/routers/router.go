package routers

import (
	"net/http"
	"reflect"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"hize/membership/internal/server/handlers/membership"
	"hize/membership/internal/server/middlewares"
	"hize/membership/pkg/ginx"
	"hize/membership/pkg/logger"
)

// Options 路由参数
type Options struct {
	AllowedOrigins []string
	Limiter        *middlewares.WindowLimiter // nil 表示不限流
}

var registerOnce sync.Once

// useJSONFieldNames 校验错误信息使用 json 字段名（memberId 而不是 MemberID）
func useJSONFieldNames() {
	registerOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		v.RegisterTagNameFunc(func(field reflect.StructField) string {
			name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
			if name == "-" || name == "" {
				return field.Name
			}
			return name
		})
	})
}

// SetupRoutes 配置所有路由，使用 Route Group 分类
func SetupRoutes(h *membership.Handler, opts Options, log logger.Logger) *gin.Engine {
	useJSONFieldNames()

	r := gin.New()

	r.Use(middlewares.Logger(log))
	r.Use(middlewares.ErrorHandler(log))
	r.Use(middlewares.CORS(opts.AllowedOrigins))

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, ginx.ErrorBody{Error: "Not found"})
	})

	api := r.Group("/api")
	api.Use(middlewares.RateLimit(opts.Limiter, log))
	{
		api.POST("/check", h.Check)
		api.GET("/status/:jobId", h.Status)
		api.GET("/health", h.Health)

		// 前端代理路径
		proxy := api.Group("/ieee-validate")
		{
			proxy.POST("/check", h.Check)
			proxy.GET("/status", h.Status)
		}
	}

	return r
}
