package membership

import (
	"context"

	"hize/membership/internal/coordinator"
)

// Service 提交 / 轮询能力，由 coordinator.Coordinator 实现
type Service interface {
	Submit(ctx context.Context, memberID string) (*coordinator.SubmitResponse, error)
	PollStatus(ctx context.Context, jobID string) (*coordinator.StatusResponse, error)
	Health(ctx context.Context) *coordinator.HealthResponse
}

// Handler 会员校验 HTTP 处理器
type Handler struct {
	svc Service
}

// NewHandler 创建处理器实例
func NewHandler(svc Service) *Handler {
	return &Handler{svc: svc}
}

// CheckRequest POST /api/check 请求体
type CheckRequest struct {
	MemberID string `json:"memberId" binding:"required"`
}
