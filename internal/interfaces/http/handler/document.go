package handler

import (
	"github.com/gin-gonic/gin"

	receivingapp "github.com/receiving/backend/internal/application/receiving"
)

// DocumentHandler handles document submission endpoints
type DocumentHandler struct {
	BaseHandler
	ingestService *receivingapp.IngestService
}

// NewDocumentHandler creates a new DocumentHandler
func NewDocumentHandler(ingestService *receivingapp.IngestService) *DocumentHandler {
	return &DocumentHandler{ingestService: ingestService}
}

// Submit records one parsed source document against its delivery key.
// The response reports only what was recorded; reconciliation runs
// asynchronously once both documents are present.
func (h *DocumentHandler) Submit(c *gin.Context) {
	var req receivingapp.SubmitDocumentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	resp, err := h.ingestService.SubmitDocument(c.Request.Context(), req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, resp)
}

// RegisterRoutes registers document routes
func (h *DocumentHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/documents", h.Submit)
}
