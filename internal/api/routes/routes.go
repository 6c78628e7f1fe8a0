// server/internal/api/routes/routes.go
package routes

import (
	"log/slog"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"safezone-api-server/config"
	"safezone-api-server/internal/api/handlers"
	"safezone-api-server/internal/api/middleware"
	"safezone-api-server/internal/auth"
	"safezone-api-server/internal/metrics"
	"safezone-api-server/internal/safezone"
	"safezone-api-server/internal/socket"
	"safezone-api-server/internal/store"
)

// Dependencies are the components the router wires into handlers.
type Dependencies struct {
	Config      config.Config
	Logger      *slog.Logger
	Service     *safezone.Service
	Users       store.UserRepository
	Tokens      *auth.Tokens
	Authorizer  auth.Authorizer
	Hub         *socket.Hub
	Locations   handlers.LocationSearcher
	RateLimiter *middleware.RateLimiter
}

// SetupRouter builds the gin engine with every route under /api/v1.
func SetupRouter(deps Dependencies) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.AccessLog(deps.Logger))
	router.Use(cors.New(cors.Config{
		AllowOrigins:     deps.Config.CORS.AllowOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}))

	safeZoneHandler := &handlers.SafeZoneHandler{Service: deps.Service, Logger: deps.Logger}
	authHandler := &handlers.AuthHandler{Users: deps.Users, Tokens: deps.Tokens, Logger: deps.Logger}
	healthHandler := &handlers.HealthHandler{Storage: deps.Service}
	webSocketHandler := &handlers.WebSocketHandler{Hub: deps.Hub, Logger: deps.Logger}

	apiV1 := router.Group("/api/v1")
	{
		apiV1.GET("/ws", webSocketHandler.ServeWs)
		apiV1.GET("/health", healthHandler.Health)
		apiV1.GET("/metrics", gin.WrapH(metrics.Handler()))

		authRoutes := apiV1.Group("/auth")
		{
			authRoutes.POST("/login", authHandler.Login)
		}

		// Public reads.
		public := apiV1.Group("/safezones")
		if deps.RateLimiter != nil {
			public.Use(deps.RateLimiter.Middleware())
		}
		{
			public.GET("", safeZoneHandler.Search)
			public.GET("/nearest", safeZoneHandler.Nearest)
			public.GET("/stats", safeZoneHandler.Stats)
			public.GET("/:id", safeZoneHandler.Get)
		}

		if deps.Locations != nil {
			locationHandler := &handlers.LocationHandler{Search: deps.Locations, Logger: deps.Logger}
			locations := apiV1.Group("/locations")
			if deps.RateLimiter != nil {
				locations.Use(deps.RateLimiter.Middleware())
			}
			locations.GET("/search", locationHandler.SearchLocations)
		}

		// Mutations require a token; each route checks its own operation.
		admin := apiV1.Group("/safezones")
		admin.Use(middleware.Authenticate(deps.Tokens))
		{
			admin.POST("", middleware.Authorize(deps.Authorizer, auth.OpCreate), safeZoneHandler.Create)
			admin.PUT("/:id", middleware.Authorize(deps.Authorizer, auth.OpUpdate), safeZoneHandler.Update)
			admin.DELETE("/:id", middleware.Authorize(deps.Authorizer, auth.OpDelete), safeZoneHandler.Delete)
			admin.PATCH("/:id/capacity", middleware.Authorize(deps.Authorizer, auth.OpSetOccupancy), safeZoneHandler.SetCapacity)
			admin.POST("/:id/photos", middleware.Authorize(deps.Authorizer, auth.OpUploadPhoto), safeZoneHandler.UploadPhoto)
		}
	}

	return router
}
