package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/wardenlabs/warden/internal/services"
)

type AuthHandler struct {
	service *services.AuthService
}

func NewAuthHandler(service *services.AuthService) *AuthHandler {
	return &AuthHandler{service: service}
}

type credentialsRequest struct {
	Password string `json:"password" binding:"required"`
}

// Setup stores the admin credential. Only allowed once; afterwards the
// password changes through the authenticated route.
func (h *AuthHandler) Setup(c *gin.Context) {
	if h.service.HasPassword() {
		c.JSON(http.StatusConflict, gin.H{"error": "Admin credential already configured"})
		return
	}
	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Password required"})
		return
	}
	if err := h.service.SetPassword(req.Password); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to store credential"})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "Admin credential configured"})
}

func (h *AuthHandler) Login(c *gin.Context) {
	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Password required"})
		return
	}
	token, err := h.service.Login(req.Password)
	if err != nil {
		if errors.Is(err, services.ErrInvalidCredentials) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Login failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": token})
}

// ChangePassword replaces the stored credential for the authenticated admin.
func (h *AuthHandler) ChangePassword(c *gin.Context) {
	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Password required"})
		return
	}
	if err := h.service.SetPassword(req.Password); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to store credential"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Password updated"})
}
