package errorx

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind 错误分类
type Kind int

const (
	// Internal 未预期的错误，对外只返回通用信息
	Internal Kind = iota
	// InvalidInput 缺少或为空的必填字段，不重试
	InvalidInput
	// NotFound job 不存在且没有对应的缓存结果
	NotFound
	// ServiceUnavailable 存储不可达，调用方稍后重试
	ServiceUnavailable
	// ValidationFailed 上游校验失败，只记录在 job 上
	ValidationFailed
	// TooManyRequests 触发限流
	TooManyRequests
)

func (k Kind) String() string {
	switch k {
	case InvalidInput:
		return "InvalidInput"
	case NotFound:
		return "NotFound"
	case ServiceUnavailable:
		return "ServiceUnavailable"
	case ValidationFailed:
		return "ValidationFailed"
	case TooManyRequests:
		return "TooManyRequests"
	default:
		return "Internal"
	}
}

// HTTPStatus 错误分类对应的 HTTP 状态码
func (k Kind) HTTPStatus() int {
	switch k {
	case InvalidInput:
		return http.StatusBadRequest
	case NotFound:
		return http.StatusNotFound
	case ServiceUnavailable:
		return http.StatusServiceUnavailable
	case TooManyRequests:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// Error 业务错误结构
type Error struct {
	Kind      Kind
	Message   string
	Retryable bool
	cause     error
}

// Error 实现 error 接口
func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.cause)
	}
	return e.Message
}

// Unwrap 支持 errors.Is / errors.As
func (e *Error) Unwrap() error {
	return e.cause
}

// New 创建业务错误
func New(kind Kind, message string) *Error {
	return &Error{
		Kind:      kind,
		Message:   message,
		Retryable: kind == ServiceUnavailable,
	}
}

// Wrap 包装底层错误
func Wrap(kind Kind, err error, message string) *Error {
	e := New(kind, message)
	e.cause = err
	return e
}

// KindOf 提取错误分类，非 *Error 一律视为 Internal
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Internal
}

// MessageOf 返回可以对外展示的信息
func MessageOf(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Kind != Internal {
		return e.Message
	}
	return "Internal server error"
}
