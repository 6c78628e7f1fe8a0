// server/internal/api/handlers/safezone_handler.go
package handlers

import (
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"safezone-api-server/internal/geo"
	"safezone-api-server/internal/models"
	"safezone-api-server/internal/safezone"
)

const maxPhotoBytes = 10 << 20

type SafeZoneHandler struct {
	Service *safezone.Service
	Logger  *slog.Logger
}

// parseCenter reads lat/lng. Both or neither must be present.
func parseCenter(c *gin.Context) (*geo.Point, error) {
	latStr, lngStr := c.Query("lat"), c.Query("lng")
	if latStr == "" && lngStr == "" {
		return nil, nil
	}
	if latStr == "" || lngStr == "" {
		return nil, fmt.Errorf("lat and lng must be given together")
	}
	lat, err := strconv.ParseFloat(latStr, 64)
	if err != nil || !finite(lat) {
		return nil, fmt.Errorf("lat must be a number")
	}
	lng, err := strconv.ParseFloat(lngStr, 64)
	if err != nil || !finite(lng) {
		return nil, fmt.Errorf("lng must be a number")
	}
	return &geo.Point{Lat: lat, Lng: lng}, nil
}

func queryFloat(c *gin.Context, key string) (float64, error) {
	s := c.Query(key)
	if s == "" {
		return 0, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || !finite(f) {
		return 0, fmt.Errorf("%s must be a number", key)
	}
	return f, nil
}

// finite rejects the NaN and Inf spellings ParseFloat accepts.
func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

func queryInt(c *gin.Context, key string) (*int, error) {
	s := c.Query(key)
	if s == "" {
		return nil, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return nil, fmt.Errorf("%s must be an integer", key)
	}
	return &n, nil
}

func derefInt(p *int) int {
	if p == nil {
		return 0
	}
	return *p
}

// Search handles GET /safezones.
func (h *SafeZoneHandler) Search(c *gin.Context) {
	center, err := parseCenter(c)
	if err != nil {
		badRequest(c, err.Error())
		return
	}
	maxDistance, err := queryFloat(c, "maxDistance")
	if err != nil {
		badRequest(c, err.Error())
		return
	}
	minCapacity, err := queryInt(c, "minCapacity")
	if err != nil {
		badRequest(c, err.Error())
		return
	}
	page, err := queryInt(c, "page")
	if err != nil {
		badRequest(c, err.Error())
		return
	}
	limit, err := queryInt(c, "limit")
	if err != nil {
		badRequest(c, err.Error())
		return
	}

	q := safezone.Query{
		Center:        center,
		MaxDistanceKm: maxDistance,
		Type:          models.SafeZoneType(c.Query("type")),
		Status:        models.SafeZoneStatus(c.Query("status")),
		District:      c.Query("district"),
		Province:      c.Query("province"),
		MinCapacity:   minCapacity,
		Amenities:     c.Query("amenities"),
		SortBy:        safezone.SortKey(c.Query("sortBy")),
		Page:          derefInt(page),
		Limit:         derefInt(limit),
	}

	result, err := h.Service.Search(c.Request.Context(), q)
	if err != nil {
		writeError(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// Nearest handles GET /safezones/nearest.
func (h *SafeZoneHandler) Nearest(c *gin.Context) {
	center, err := parseCenter(c)
	if err != nil {
		badRequest(c, err.Error())
		return
	}
	maxDistance, err := queryFloat(c, "maxDistance")
	if err != nil {
		badRequest(c, err.Error())
		return
	}
	limit, err := queryInt(c, "limit")
	if err != nil {
		badRequest(c, err.Error())
		return
	}

	zones, err := h.Service.FindNearest(c.Request.Context(), safezone.NearestQuery{
		Center:        center,
		MaxDistanceKm: maxDistance,
		Limit:         derefInt(limit),
	})
	if err != nil {
		writeError(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": zones, "count": len(zones)})
}

func (h *SafeZoneHandler) Stats(c *gin.Context) {
	stats, err := h.Service.Stats(c.Request.Context())
	if err != nil {
		writeError(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (h *SafeZoneHandler) Get(c *gin.Context) {
	center, err := parseCenter(c)
	if err != nil {
		badRequest(c, err.Error())
		return
	}
	zone, err := h.Service.Get(c.Request.Context(), c.Param("id"), center)
	if err != nil {
		writeError(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusOK, zone)
}

func (h *SafeZoneHandler) Create(c *gin.Context) {
	var req models.SafeZone
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body: "+err.Error())
		return
	}

	zone, err := h.Service.Create(c.Request.Context(), &req)
	if err != nil {
		writeError(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusCreated, zone)
}

func (h *SafeZoneHandler) Update(c *gin.Context) {
	var patch models.SafeZonePatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		badRequest(c, "Invalid request body: "+err.Error())
		return
	}

	zone, err := h.Service.Update(c.Request.Context(), c.Param("id"), patch)
	if err != nil {
		writeError(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusOK, zone)
}

func (h *SafeZoneHandler) Delete(c *gin.Context) {
	if err := h.Service.Delete(c.Request.Context(), c.Param("id")); err != nil {
		writeError(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Safe zone deactivated successfully"})
}

type capacityRequest struct {
	Current *int `json:"current"`
}

// SetCapacity handles PATCH /safezones/:id/capacity.
func (h *SafeZoneHandler) SetCapacity(c *gin.Context) {
	var req capacityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "current must be a number")
		return
	}

	zone, err := h.Service.SetOccupancy(c.Request.Context(), c.Param("id"), req.Current)
	if err != nil {
		writeError(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusOK, zone)
}

// UploadPhoto handles POST /safezones/:id/photos with a multipart "photo" file.
func (h *SafeZoneHandler) UploadPhoto(c *gin.Context) {
	fileHeader, err := c.FormFile("photo")
	if err != nil {
		badRequest(c, "photo file is required")
		return
	}
	if fileHeader.Size > maxPhotoBytes {
		badRequest(c, "photo must be at most 10MB")
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		badRequest(c, "could not read photo")
		return
	}
	defer file.Close()

	zone, err := h.Service.AddPhoto(c.Request.Context(), c.Param("id"), safezone.PhotoUpload{
		FileName:    fileHeader.Filename,
		ContentType: fileHeader.Header.Get("Content-Type"),
		Body:        file,
	})
	if err != nil {
		writeError(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusCreated, zone)
}
