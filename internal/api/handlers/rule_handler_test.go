package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/wardenlabs/warden/internal/models"
	"github.com/wardenlabs/warden/internal/services"
)

type noopDispatcher struct{}

func (noopDispatcher) RebuildAll(ctx context.Context) error { return nil }

func ruleRouter(t *testing.T) (*gin.Engine, *gorm.DB) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	db := OpenTestDB(t)
	require.NoError(t, db.AutoMigrate(&models.Rule{}, &models.Setting{}, &models.Notification{}, &models.DeploymentRecord{}))

	h := NewRuleHandler(services.NewRuleService(db, noopDispatcher{}))
	r := gin.New()
	r.GET("/rules", h.List)
	r.POST("/rules", h.Create)
	r.GET("/rules/:key", h.Get)
	r.PUT("/rules/:key", h.Update)
	r.DELETE("/rules/:key", h.Delete)
	r.POST("/rules/:key/enable", h.SetEnabled(true))
	r.POST("/rules/:key/disable", h.SetEnabled(false))
	return r, db
}

func postJSON(r *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	encoded, _ := json.Marshal(body)
	req := httptest.NewRequest(method, path, bytes.NewReader(encoded))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRuleCreateAndGet(t *testing.T) {
	r, _ := ruleRouter(t)

	w := postJSON(r, http.MethodPost, "/rules", map[string]interface{}{
		"key":      "hide-readme",
		"title":    "Hide readme",
		"driver":   "htaccess",
		"target":   "root",
		"enabled":  true,
		"mappings": `{"hide_readme":"Options -Indexes"}`,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	req := httptest.NewRequest(http.MethodGet, "/rules/hide-readme", nil)
	w2 := httptest.NewRecorder()
	r.ServeHTTP(w2, req)
	assert.Equal(t, http.StatusOK, w2.Code)
	assert.Contains(t, w2.Body.String(), "hide-readme")
}

func TestRuleCreateRejectsBadSchema(t *testing.T) {
	r, _ := ruleRouter(t)

	w := postJSON(r, http.MethodPost, "/rules", map[string]interface{}{
		"title":  "no key",
		"driver": "htaccess",
	})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestRuleGetMissingReturns404(t *testing.T) {
	r, _ := ruleRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/rules/ghost", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRuleUpdateLifecycleLocked(t *testing.T) {
	r, db := ruleRouter(t)

	rule := models.Rule{
		Key:     "locked-rule",
		Title:   "Locked",
		Driver:  "htaccess",
		Status:  models.StatusRelease,
		Enabled: true,
	}
	require.NoError(t, db.Create(&rule).Error)

	w := postJSON(r, http.MethodPut, "/rules/locked-rule", map[string]interface{}{
		"key":      "locked-rule",
		"title":    "Locked",
		"driver":   "htaccess",
		"status":   models.StatusRelease,
		"mappings": `{"changed":"Options -Indexes"}`,
	})
	assert.Equal(t, http.StatusConflict, w.Code)

	w2 := postJSON(r, http.MethodPut, "/rules/locked-rule?override=true", map[string]interface{}{
		"key":      "locked-rule",
		"title":    "Locked",
		"driver":   "htaccess",
		"status":   models.StatusRelease,
		"mappings": `{"changed":"Options -Indexes"}`,
	})
	assert.Equal(t, http.StatusOK, w2.Code, w2.Body.String())
}

func TestRuleToggleAndDelete(t *testing.T) {
	r, db := ruleRouter(t)

	rule := models.Rule{Key: "toggle-me", Title: "Toggle", Driver: "htaccess"}
	require.NoError(t, db.Create(&rule).Error)

	w := postJSON(r, http.MethodPost, "/rules/toggle-me/enable", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var stored models.Rule
	require.NoError(t, db.Where("key = ?", "toggle-me").First(&stored).Error)
	assert.True(t, stored.Enabled)

	w2 := postJSON(r, http.MethodDelete, "/rules/toggle-me", nil)
	require.Equal(t, http.StatusOK, w2.Code)

	err := db.Where("key = ?", "toggle-me").First(&stored).Error
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}
