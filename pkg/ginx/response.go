package ginx

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"hize/membership/pkg/errorx"
)

const (
	msgServiceUnavailable = "Service temporarily unavailable"
	msgInternal           = "Internal server error"
)

// ErrorBody 统一错误响应
// 503 额外带 message，404 额外带 status
type ErrorBody struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
	Status  string `json:"status,omitempty"`
}

// Success 成功响应（200）
func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, data)
}

// Error 按错误分类输出状态码和响应体，不泄露内部细节
func Error(c *gin.Context, err error) {
	kind := errorx.KindOf(err)
	status := kind.HTTPStatus()

	switch kind {
	case errorx.ServiceUnavailable:
		c.JSON(status, ErrorBody{Error: msgServiceUnavailable, Message: errorx.MessageOf(err)})
	case errorx.NotFound:
		c.JSON(status, ErrorBody{Error: errorx.MessageOf(err), Status: "not_found"})
	case errorx.Internal:
		c.JSON(status, ErrorBody{Error: msgInternal})
	default:
		c.JSON(status, ErrorBody{Error: errorx.MessageOf(err)})
	}
}

// AbortWithError 中间件中使用，终止后续处理
func AbortWithError(c *gin.Context, err error) {
	Error(c, err)
	c.Abort()
}

// BadRequest 400 错误
func BadRequest(c *gin.Context, message string) {
	Error(c, errorx.New(errorx.InvalidInput, message))
}

// BadRequestWithValidation 400 错误，取第一个字段错误
func BadRequestWithValidation(c *gin.Context, err error) {
	var validationErrs validator.ValidationErrors
	if errors.As(err, &validationErrs) && len(validationErrs) > 0 {
		BadRequest(c, getValidationErrorMessage(validationErrs[0]))
		return
	}
	BadRequest(c, "invalid request body")
}

// InternalError 500 错误
func InternalError(c *gin.Context) {
	Error(c, errorx.New(errorx.Internal, msgInternal))
}

// getValidationErrorMessage 根据验证错误类型返回友好的错误消息
func getValidationErrorMessage(fieldErr validator.FieldError) string {
	switch fieldErr.Tag() {
	case "required":
		return fieldErr.Field() + " is required"
	case "max":
		return fieldErr.Field() + " must be at most " + fieldErr.Param() + " characters"
	default:
		return fieldErr.Field() + " is invalid"
	}
}
