package membership

import (
	"github.com/gin-gonic/gin"

	"hize/membership/pkg/ginx"
)

// Status 查询任务状态
// GET /api/status/:jobId，兼容 GET /api/ieee-validate/status?jobId=
func (h *Handler) Status(c *gin.Context) {
	jobID := c.Param("jobId")
	if jobID == "" {
		jobID = c.Query("jobId")
	}

	resp, err := h.svc.PollStatus(c.Request.Context(), jobID)
	if err != nil {
		ginx.Error(c, err)
		return
	}
	ginx.Success(c, resp)
}

// Health 存储连通性
// GET /api/health
func (h *Handler) Health(c *gin.Context) {
	ginx.Success(c, h.svc.Health(c.Request.Context()))
}
