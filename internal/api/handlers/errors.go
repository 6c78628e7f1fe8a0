// server/internal/api/handlers/errors.go
package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"safezone-api-server/pkg/e"
)

// writeError maps the error taxonomy onto HTTP status codes. It is the only
// place handlers translate errors.
func writeError(c *gin.Context, logger *slog.Logger, err error) {
	var verr *e.ValidationError
	switch {
	case errors.As(err, &verr):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Validation failed", "errors": verr.Fields})
	case errors.Is(err, e.ErrInvalidArgument):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, e.ErrUnauthorized):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication is required"})
	case errors.Is(err, e.ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": "You do not have permission to access this resource"})
	case errors.Is(err, e.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Safe zone not found"})
	case errors.Is(err, e.ErrStorageUnavailable), errors.Is(err, context.DeadlineExceeded):
		logger.Error("storage unavailable", slog.String("path", c.FullPath()), slog.Any("error", err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Service temporarily unavailable"})
	default:
		logger.Error("request failed", slog.String("path", c.FullPath()), slog.Any("error", err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
	}
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": msg})
}
