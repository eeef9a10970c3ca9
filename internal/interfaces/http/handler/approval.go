package handler

import (
	"github.com/gin-gonic/gin"

	approvalapp "github.com/receiving/backend/internal/application/approval"
)

// ApprovalHandler handles approval decision endpoints
type ApprovalHandler struct {
	BaseHandler
	approvalService *approvalapp.ApprovalService
}

// NewApprovalHandler creates a new ApprovalHandler
func NewApprovalHandler(approvalService *approvalapp.ApprovalService) *ApprovalHandler {
	return &ApprovalHandler{approvalService: approvalService}
}

// Decide applies an approve/reject decision to a published delivery.
// Repeat signals are acknowledged no-ops returning the resolved state.
func (h *ApprovalHandler) Decide(c *gin.Context) {
	var req approvalapp.DecideRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	resp, err := h.approvalService.Decide(c.Request.Context(), req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, resp)
}

// Get returns the approval for one delivery key
func (h *ApprovalHandler) Get(c *gin.Context) {
	key := c.Query("key")
	if key == "" {
		h.BadRequest(c, "key query parameter is required")
		return
	}
	resp, err := h.approvalService.GetByDeliveryKey(c.Request.Context(), key)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, resp)
}

// RegisterRoutes registers approval routes
func (h *ApprovalHandler) RegisterRoutes(rg *gin.RouterGroup) {
	approvals := rg.Group("/approvals")
	approvals.GET("", h.Get)
	approvals.POST("/decisions", h.Decide)
}
