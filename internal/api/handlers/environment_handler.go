package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/wardenlabs/warden/internal/orchestrate"
)

type EnvironmentHandler struct {
	orch *orchestrate.Orchestrator
}

func NewEnvironmentHandler(orch *orchestrate.Orchestrator) *EnvironmentHandler {
	return &EnvironmentHandler{orch: orch}
}

// Detect returns the environment profile. Pass force=1 to bypass the
// persisted cache and rerun the probe cascade.
func (h *EnvironmentHandler) Detect(c *gin.Context) {
	force := c.Query("force") == "1" || c.Query("force") == "true"
	profile, err := h.orch.DetectEnvironment(c.Request.Context(), force, c.GetHeader)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Environment detection failed"})
		return
	}
	c.JSON(http.StatusOK, profile)
}
