package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/wardenlabs/warden/internal/services"
)

type CatalogHandler struct {
	service *services.CatalogService
}

func NewCatalogHandler(service *services.CatalogService) *CatalogHandler {
	return &CatalogHandler{service: service}
}

// List returns every known catalog plus the active selection. An empty
// active list means all catalogs apply.
func (h *CatalogHandler) List(c *gin.Context) {
	catalogs, err := h.service.Catalogs()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list catalogs"})
		return
	}
	active, err := h.service.ActiveCatalogs(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load active catalogs"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"catalogs": catalogs, "active": active})
}

type activeCatalogsRequest struct {
	Active []string `json:"active"`
}

func (h *CatalogHandler) SetActive(c *gin.Context) {
	var req activeCatalogsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid catalog selection"})
		return
	}
	if err := h.service.SetActiveCatalogs(req.Active); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to store catalog selection"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"active": req.Active})
}

// Import re-reads the catalog seed directory into the rule table.
func (h *CatalogHandler) Import(c *gin.Context) {
	n, err := h.service.ImportAll(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Catalog import failed: " + err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"imported": n})
}
