package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/wardenlabs/warden/internal/models"
	"github.com/wardenlabs/warden/internal/services"
)

type RuleHandler struct {
	service *services.RuleService
}

func NewRuleHandler(service *services.RuleService) *RuleHandler {
	return &RuleHandler{service: service}
}

func (h *RuleHandler) List(c *gin.Context) {
	rules, err := h.service.List()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list rules"})
		return
	}
	c.JSON(http.StatusOK, rules)
}

func (h *RuleHandler) Get(c *gin.Context) {
	rule, err := h.service.GetByKey(c.Param("key"))
	if err != nil {
		if errors.Is(err, services.ErrNoRules) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Rule not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load rule"})
		return
	}
	c.JSON(http.StatusOK, rule)
}

func (h *RuleHandler) Create(c *gin.Context) {
	var rule models.Rule
	if err := c.ShouldBindJSON(&rule); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid rule payload"})
		return
	}
	if err := h.service.Create(c.Request.Context(), &rule); err != nil {
		if errors.Is(err, services.ErrSchemaInvalid) {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create rule"})
		return
	}
	c.JSON(http.StatusCreated, rule)
}

func (h *RuleHandler) Update(c *gin.Context) {
	existing, err := h.service.GetByKey(c.Param("key"))
	if err != nil {
		if errors.Is(err, services.ErrNoRules) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Rule not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load rule"})
		return
	}

	var rule models.Rule
	if err := c.ShouldBindJSON(&rule); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid rule payload"})
		return
	}
	rule.ID = existing.ID
	rule.Key = existing.Key

	override := c.Query("override") == "true"
	if err := h.service.Update(c.Request.Context(), &rule, override); err != nil {
		switch {
		case errors.Is(err, services.ErrLifecycleLocked):
			c.JSON(http.StatusConflict, gin.H{"error": "Rule is lifecycle-locked; pass override=true to edit"})
		case errors.Is(err, services.ErrSchemaInvalid):
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update rule"})
		}
		return
	}
	c.JSON(http.StatusOK, rule)
}

func (h *RuleHandler) SetEnabled(enabled bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.Param("key")
		if err := h.service.SetEnabled(c.Request.Context(), key, enabled); err != nil {
			if errors.Is(err, services.ErrNoRules) {
				c.JSON(http.StatusNotFound, gin.H{"error": "Rule not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to toggle rule"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"key": key, "enabled": enabled})
	}
}

func (h *RuleHandler) Delete(c *gin.Context) {
	if err := h.service.Delete(c.Request.Context(), c.Param("key")); err != nil {
		if errors.Is(err, services.ErrNoRules) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Rule not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete rule"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Rule deleted"})
}
