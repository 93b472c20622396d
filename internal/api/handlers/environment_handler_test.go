package handlers

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wardenlabs/warden/internal/deploy"
	"github.com/wardenlabs/warden/internal/detect"
	"github.com/wardenlabs/warden/internal/models"
	"github.com/wardenlabs/warden/internal/orchestrate"
	"github.com/wardenlabs/warden/internal/translate"
)

func TestEnvironmentDetect(t *testing.T) {
	gin.SetMode(gin.TestMode)
	db := OpenTestDB(t)
	require.NoError(t, db.AutoMigrate(&models.Setting{}, &models.DeploymentRecord{}))

	orch := orchestrate.New(db, apacheOnlyDetector{}, translate.New(), deploy.NewRegistry(), nil)
	h := NewEnvironmentHandler(orch)

	r := gin.New()
	r.GET("/environment", h.Detect)

	req := httptest.NewRequest(http.MethodGet, "/environment?force=1", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), models.PlatformApache)
	assert.Contains(t, w.Body.String(), "optimal_platform")
}

func TestEnvironmentDetectSeesEdgeProxyHeaders(t *testing.T) {
	gin.SetMode(gin.TestMode)
	db := OpenTestDB(t)
	require.NoError(t, db.AutoMigrate(&models.Setting{}, &models.DeploymentRecord{}))

	detector := detect.New(detect.Environment{
		SiteRoot:  t.TempDir(),
		EnvLookup: func(string) bool { return false },
		LookPath:  func(string) bool { return false },
	}, nil)
	orch := orchestrate.New(db, detector, translate.New(), deploy.NewRegistry(), nil)

	r := gin.New()
	r.GET("/environment", NewEnvironmentHandler(orch).Detect)

	// Edge-proxy fingerprints only exist on the triggering request, so
	// the handler has to hand its headers to the cascade.
	req := httptest.NewRequest(http.MethodGet, "/environment?force=1", nil)
	req.Header.Set("CF-Ray", "8abc123-SJC")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"optimal_platform":"`+models.PlatformCloudflare+`"`)
}
