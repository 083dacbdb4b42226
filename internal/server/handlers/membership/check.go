package membership

import (
	"github.com/gin-gonic/gin"

	"hize/membership/pkg/ginx"
)

// Check 提交会员校验
// POST /api/check
func (h *Handler) Check(c *gin.Context) {
	var req CheckRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		ginx.BadRequestWithValidation(c, err)
		return
	}

	resp, err := h.svc.Submit(c.Request.Context(), req.MemberID)
	if err != nil {
		ginx.Error(c, err)
		return
	}
	ginx.Success(c, resp)
}
