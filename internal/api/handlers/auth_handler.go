// server/internal/api/handlers/auth_handler.go
package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"safezone-api-server/internal/auth"
	"safezone-api-server/internal/store"
	"safezone-api-server/pkg/e"
)

type AuthHandler struct {
	Users  store.UserRepository
	Tokens *auth.Tokens
	Logger *slog.Logger
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	user, err := h.Users.FindByEmail(c.Request.Context(), req.Email)
	if err != nil {
		if errors.Is(err, e.ErrNotFound) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid email or password"})
			return
		}
		writeError(c, h.Logger, err)
		return
	}

	if user.Status != "active" || !auth.CheckPasswordHash(req.Password, user.Password) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid email or password"})
		return
	}

	token, expiresAt, err := h.Tokens.Generate(user.Email, user.Role)
	if err != nil {
		writeError(c, h.Logger, err)
		return
	}

	h.Logger.Info("user logged in", slog.String("email", user.Email), slog.String("role", user.Role))
	c.JSON(http.StatusOK, gin.H{
		"token":     token,
		"expiresAt": expiresAt,
		"user":      user,
	})
}
