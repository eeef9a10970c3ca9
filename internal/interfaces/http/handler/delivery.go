package handler

import (
	"github.com/gin-gonic/gin"

	receivingapp "github.com/receiving/backend/internal/application/receiving"
	"github.com/receiving/backend/internal/domain/receiving"
	"github.com/receiving/backend/internal/domain/shared"
	"github.com/receiving/backend/internal/interfaces/http/dto"
)

// DeliveryHandler handles delivery read and retry endpoints.
// Delivery keys contain path-escaped slashes, so single-delivery
// lookups take the key as a query parameter rather than a path segment.
type DeliveryHandler struct {
	BaseHandler
	ingestService  *receivingapp.IngestService
	reconciliation *receivingapp.ReconciliationService
}

// NewDeliveryHandler creates a new DeliveryHandler
func NewDeliveryHandler(ingestService *receivingapp.IngestService, reconciliation *receivingapp.ReconciliationService) *DeliveryHandler {
	return &DeliveryHandler{
		ingestService:  ingestService,
		reconciliation: reconciliation,
	}
}

// List returns deliveries, filterable by store, vendor, date and status
func (h *DeliveryHandler) List(c *gin.Context) {
	listReq := dto.DefaultListRequest()
	if err := c.ShouldBindQuery(&listReq); err != nil {
		h.BadRequest(c, err.Error())
		return
	}
	if listReq.Page == 0 {
		listReq.Page = 1
	}
	if listReq.PageSize == 0 {
		listReq.PageSize = 20
	}

	filter := shared.Filter{
		Page:     listReq.Page,
		PageSize: listReq.PageSize,
		OrderBy:  listReq.OrderBy,
		OrderDir: listReq.OrderDir,
		Filters:  make(map[string]interface{}),
	}
	for _, name := range []string{"store", "vendor", "delivery_date"} {
		if v := c.Query(name); v != "" {
			filter.Filters[name] = v
		}
	}

	var (
		deliveries []receivingapp.DeliveryResponse
		err        error
	)
	if status := c.Query("status"); status != "" {
		deliveries, err = h.ingestService.ListDeliveriesByStatus(c.Request.Context(), receiving.DeliveryStatus(status), filter)
	} else {
		deliveries, err = h.ingestService.ListDeliveries(c.Request.Context(), filter)
	}
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, deliveries)
}

// Get returns one delivery by its canonical key
func (h *DeliveryHandler) Get(c *gin.Context) {
	key := c.Query("key")
	if key == "" {
		h.BadRequest(c, "key query parameter is required")
		return
	}
	delivery, err := h.ingestService.GetDelivery(c.Request.Context(), key)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, delivery)
}

// Records returns the canonical records of one delivery in invoice order
func (h *DeliveryHandler) Records(c *gin.Context) {
	key := c.Query("key")
	if key == "" {
		h.BadRequest(c, "key query parameter is required")
		return
	}
	records, err := h.ingestService.GetRecords(c.Request.Context(), key)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, records)
}

// ReconcileRequest triggers a manual reconciliation retry
type ReconcileRequest struct {
	DeliveryKey string `json:"delivery_key" binding:"required"`
}

// Reconcile retries the join for a delivery whose previous run failed.
// A run already in progress yields a conflict.
func (h *DeliveryHandler) Reconcile(c *gin.Context) {
	var req ReconcileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, err.Error())
		return
	}
	if err := h.reconciliation.Reconcile(c.Request.Context(), req.DeliveryKey); err != nil {
		h.HandleError(c, err)
		return
	}
	delivery, err := h.ingestService.GetDelivery(c.Request.Context(), req.DeliveryKey)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, delivery)
}

// RegisterRoutes registers delivery routes
func (h *DeliveryHandler) RegisterRoutes(rg *gin.RouterGroup) {
	deliveries := rg.Group("/deliveries")
	deliveries.GET("", h.List)
	deliveries.GET("/detail", h.Get)
	deliveries.GET("/records", h.Records)
	deliveries.POST("/reconcile", h.Reconcile)
}
