package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/wardenlabs/warden/internal/deploy"
	"github.com/wardenlabs/warden/internal/detect"
	"github.com/wardenlabs/warden/internal/models"
	"github.com/wardenlabs/warden/internal/orchestrate"
	"github.com/wardenlabs/warden/internal/services"
	"github.com/wardenlabs/warden/internal/translate"
)

type apacheOnlyDetector struct{}

func (apacheOnlyDetector) Detect(ctx context.Context, force bool) (*detect.Profile, error) {
	return &detect.Profile{
		Capabilities: map[string][]string{
			models.PlatformApache:  {"rewrite"},
			models.PlatformRuntime: {"constants"},
		},
		OptimalPlatform: models.PlatformApache,
	}, nil
}

func (d apacheOnlyDetector) DetectWithHeaders(ctx context.Context, force bool, _ func(name string) string) (*detect.Profile, error) {
	return d.Detect(ctx, force)
}

func deploymentTestRouter(t *testing.T) (*gin.Engine, *gorm.DB, string) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "wp-config.php"),
		[]byte("<?php\n/* That's all, stop editing! */\n"), 0644))

	db := OpenTestDB(t)
	require.NoError(t, db.AutoMigrate(&models.Rule{}, &models.Setting{}, &models.DeploymentRecord{}))

	registry := deploy.NewRegistry(
		deploy.NewApacheDeployer(root, "uploads", false),
		deploy.NewRuntimeDeployer(filepath.Join(root, "wp-config.php"), false),
	)
	orch := orchestrate.New(db, apacheOnlyDetector{}, translate.New(), registry, nil)

	settings := services.NewSettingsService(db)
	catalogs := services.NewCatalogService(db, t.TempDir(), settings)
	rebuilder := orchestrate.NewRebuilder(catalogs, registry, orch)
	rules := services.NewRuleService(db, rebuilder)

	h := NewDeploymentHandler(orch, rebuilder, rules)
	r := gin.New()
	r.POST("/deploy", h.Deploy)
	r.POST("/rollback/:key", h.Rollback)
	r.POST("/rebuild", h.Rebuild)
	r.GET("/verify/:key", h.Verify)
	r.GET("/deployments", h.History)
	return r, db, root
}

func seedDeployableRule(t *testing.T, db *gorm.DB) {
	t.Helper()
	rule := models.Rule{
		Key:      "hide-readme",
		Title:    "Hide readme",
		Driver:   "htaccess",
		Target:   "root",
		Status:   models.StatusRelease,
		Enabled:  true,
		Mappings: `{"hide_readme":"Options -Indexes"}`,
	}
	require.NoError(t, db.Create(&rule).Error)
}

func TestDeployWritesArtifactAndHistory(t *testing.T) {
	r, db, root := deploymentTestRouter(t)
	seedDeployableRule(t, db)

	w := postJSON(r, http.MethodPost, "/deploy", map[string]string{"rule_key": "hide-readme"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	content, err := os.ReadFile(filepath.Join(root, ".htaccess"))
	require.NoError(t, err)
	assert.Contains(t, string(content), "BEGIN WARDEN PROTECTION: hide-readme")
	assert.Contains(t, string(content), "Options -Indexes")

	req := httptest.NewRequest(http.MethodGet, "/deployments", nil)
	w2 := httptest.NewRecorder()
	r.ServeHTTP(w2, req)
	require.Equal(t, http.StatusOK, w2.Code)
	assert.Contains(t, w2.Body.String(), "hide-readme")
}

func TestDeployRejectsUnknownRuleAndProfile(t *testing.T) {
	r, _, _ := deploymentTestRouter(t)

	w := postJSON(r, http.MethodPost, "/deploy", map[string]string{"rule_key": "ghost"})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w2 := postJSON(r, http.MethodPost, "/deploy", map[string]string{
		"rule_key": "ghost", "profile": "nonsense",
	})
	assert.Equal(t, http.StatusBadRequest, w2.Code)
}

func TestVerifyReportsSyncState(t *testing.T) {
	r, db, _ := deploymentTestRouter(t)
	seedDeployableRule(t, db)

	// Before any deploy the enabled rule is missing from disk.
	req := httptest.NewRequest(http.MethodGet, "/verify/hide-readme", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "out_of_sync")

	w2 := postJSON(r, http.MethodPost, "/rebuild", nil)
	require.Equal(t, http.StatusOK, w2.Code, w2.Body.String())

	w3 := httptest.NewRecorder()
	r.ServeHTTP(w3, httptest.NewRequest(http.MethodGet, "/verify/hide-readme", nil))
	require.Equal(t, http.StatusOK, w3.Code)
	assert.Contains(t, w3.Body.String(), "in_sync")
	assert.False(t, strings.Contains(w3.Body.String(), "out_of_sync"))
}

func TestRollbackRemovesRegions(t *testing.T) {
	r, db, root := deploymentTestRouter(t)
	seedDeployableRule(t, db)

	w := postJSON(r, http.MethodPost, "/deploy", map[string]string{"rule_key": "hide-readme"})
	require.Equal(t, http.StatusOK, w.Code)

	w2 := postJSON(r, http.MethodPost, "/rollback/hide-readme", nil)
	require.Equal(t, http.StatusOK, w2.Code, w2.Body.String())

	content, err := os.ReadFile(filepath.Join(root, ".htaccess"))
	require.NoError(t, err)
	assert.NotContains(t, string(content), "hide-readme")
}
