package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"safezone-api-server/internal/locsearch"
)

// LocationSearcher is satisfied by *locsearch.Client.
type LocationSearcher interface {
	Search(ctx context.Context, q string) ([]locsearch.Place, error)
}

type LocationHandler struct {
	Search LocationSearcher
	Logger *slog.Logger
}

// SearchLocations handles GET /locations/search?q=.
func (h *LocationHandler) SearchLocations(c *gin.Context) {
	places, err := h.Search.Search(c.Request.Context(), c.Query("q"))
	if err != nil {
		writeError(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": places, "count": len(places)})
}
