package handlers

import (
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wardenlabs/warden/internal/models"
	"github.com/wardenlabs/warden/internal/services"
)

func authTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	db := OpenTestDB(t)
	require.NoError(t, db.AutoMigrate(&models.Setting{}))

	h := NewAuthHandler(services.NewAuthService(services.NewSettingsService(db), "test-secret"))
	r := gin.New()
	r.POST("/auth/setup", h.Setup)
	r.POST("/auth/login", h.Login)
	return r
}

func TestAuthSetupThenLogin(t *testing.T) {
	r := authTestRouter(t)

	w := postJSON(r, http.MethodPost, "/auth/setup", map[string]string{"password": "hunter22"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w2 := postJSON(r, http.MethodPost, "/auth/setup", map[string]string{"password": "other"})
	assert.Equal(t, http.StatusConflict, w2.Code)

	w3 := postJSON(r, http.MethodPost, "/auth/login", map[string]string{"password": "hunter22"})
	require.Equal(t, http.StatusOK, w3.Code)
	assert.Contains(t, w3.Body.String(), "token")

	w4 := postJSON(r, http.MethodPost, "/auth/login", map[string]string{"password": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, w4.Code)
}

func TestAuthLoginRequiresPassword(t *testing.T) {
	r := authTestRouter(t)

	w := postJSON(r, http.MethodPost, "/auth/login", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
