package handlers

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wardenlabs/warden/internal/models"
	"github.com/wardenlabs/warden/internal/services"
)

func notificationTestRouter(t *testing.T) (*gin.Engine, *services.NotificationService) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	db := OpenTestDB(t)
	require.NoError(t, db.AutoMigrate(&models.Notification{}))

	svc := services.NewNotificationService(db, "")
	h := NewNotificationHandler(svc)
	r := gin.New()
	r.GET("/notifications", h.List)
	r.POST("/notifications/:id/read", h.MarkAsRead)
	r.POST("/notifications/read-all", h.MarkAllAsRead)
	return r, svc
}

func TestNotificationListAndRead(t *testing.T) {
	r, svc := notificationTestRouter(t)

	created, err := svc.Create(models.NotificationTypeError, "block-xmlrpc", "Deploy failed", "details")
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/notifications?unread=true", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Deploy failed")

	w2 := postJSON(r, http.MethodPost, "/notifications/"+created.ID+"/read", nil)
	require.Equal(t, http.StatusOK, w2.Code)

	req3 := httptest.NewRequest(http.MethodGet, "/notifications?unread=true", nil)
	w3 := httptest.NewRecorder()
	r.ServeHTTP(w3, req3)
	assert.NotContains(t, w3.Body.String(), "Deploy failed")
}
