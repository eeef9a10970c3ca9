package handler

import (
	"github.com/gin-gonic/gin"

	catalogapp "github.com/receiving/backend/internal/application/catalog"
)

// maxCatalogUploadBytes bounds catalog CSV uploads
const maxCatalogUploadBytes = 10 << 20

// CatalogHandler handles vendor catalog endpoints
type CatalogHandler struct {
	BaseHandler
	catalogService *catalogapp.CatalogService
}

// NewCatalogHandler creates a new CatalogHandler
func NewCatalogHandler(catalogService *catalogapp.CatalogService) *CatalogHandler {
	return &CatalogHandler{catalogService: catalogService}
}

// Import replaces a vendor's catalog with the rows of an uploaded CSV
func (h *CatalogHandler) Import(c *gin.Context) {
	vendor := c.Param("vendor")
	if vendor == "" {
		h.BadRequest(c, "vendor is required")
		return
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		h.BadRequest(c, "file upload is required")
		return
	}
	if fileHeader.Size > maxCatalogUploadBytes {
		h.BadRequest(c, "file exceeds maximum allowed size")
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		h.BadRequest(c, "failed to open uploaded file")
		return
	}
	defer file.Close()

	result, err := h.catalogService.ImportCSV(c.Request.Context(), vendor, file)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, result)
}

// Get returns a vendor's catalog entries
func (h *CatalogHandler) Get(c *gin.Context) {
	vendor := c.Param("vendor")
	entries, err := h.catalogService.GetVendorCatalog(c.Request.Context(), vendor)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, entries)
}

// RegisterRoutes registers catalog routes
func (h *CatalogHandler) RegisterRoutes(rg *gin.RouterGroup) {
	catalogs := rg.Group("/catalogs")
	catalogs.GET("/:vendor", h.Get)
	catalogs.POST("/:vendor/import", h.Import)
}
