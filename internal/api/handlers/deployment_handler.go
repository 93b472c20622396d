package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/wardenlabs/warden/internal/models"
	"github.com/wardenlabs/warden/internal/orchestrate"
	"github.com/wardenlabs/warden/internal/services"
)

type DeploymentHandler struct {
	orch      *orchestrate.Orchestrator
	rebuilder *orchestrate.Rebuilder
	rules     *services.RuleService
}

func NewDeploymentHandler(orch *orchestrate.Orchestrator, rebuilder *orchestrate.Rebuilder, rules *services.RuleService) *DeploymentHandler {
	return &DeploymentHandler{orch: orch, rebuilder: rebuilder, rules: rules}
}

type deployRequest struct {
	RuleKey string `json:"rule_key" binding:"required"`
	Profile string `json:"profile"`
}

func validProfile(p string) bool {
	switch p {
	case "", models.ProfileAutoDetect, models.ProfileMaximum, models.ProfileConservative:
		return true
	}
	return false
}

// Deploy pushes one rule to the platforms its profile selects.
func (h *DeploymentHandler) Deploy(c *gin.Context) {
	var req deployRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "rule_key required"})
		return
	}
	if !validProfile(req.Profile) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown deployment profile"})
		return
	}
	rule, err := h.rules.GetByKey(req.RuleKey)
	if err != nil {
		if errors.Is(err, services.ErrNoRules) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Rule not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load rule"})
		return
	}
	result, err := h.orch.Deploy(c.Request.Context(), rule, req.Profile)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Deployment failed: " + err.Error()})
		return
	}
	status := http.StatusOK
	if !result.AllSucceeded() {
		status = http.StatusMultiStatus
	}
	c.JSON(status, result)
}

// Rollback removes a rule's regions from every platform artifact.
func (h *DeploymentHandler) Rollback(c *gin.Context) {
	rule, err := h.rules.GetByKey(c.Param("key"))
	if err != nil {
		if errors.Is(err, services.ErrNoRules) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Rule not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load rule"})
		return
	}
	result, err := h.orch.Rollback(c.Request.Context(), rule)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Rollback failed: " + err.Error()})
		return
	}
	c.JSON(http.StatusOK, result)
}

// Rebuild regenerates every managed artifact from the database. Scope to
// one platform with ?platform=.
func (h *DeploymentHandler) Rebuild(c *gin.Context) {
	var err error
	if platform := c.Query("platform"); platform != "" {
		err = h.rebuilder.RebuildPlatform(c.Request.Context(), platform)
	} else {
		err = h.rebuilder.RebuildAll(c.Request.Context())
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Rebuild failed: " + err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Rebuild complete"})
}

// Verify compares database intent against on-disk artifact state.
func (h *DeploymentHandler) Verify(c *gin.Context) {
	rule, err := h.rules.GetByKey(c.Param("key"))
	if err != nil {
		if errors.Is(err, services.ErrNoRules) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Rule not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load rule"})
		return
	}
	status, err := h.orch.Verify(c.Request.Context(), rule)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Verification failed: " + err.Error()})
		return
	}
	c.JSON(http.StatusOK, status)
}

// History lists recent deployment records, newest first.
func (h *DeploymentHandler) History(c *gin.Context) {
	limit := 50
	if raw := c.Query("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}
	records, err := h.orch.History(limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load history"})
		return
	}
	c.JSON(http.StatusOK, records)
}
