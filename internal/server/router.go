package server

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/yungbote/biologidex-backend/internal/handlers"
	"github.com/yungbote/biologidex-backend/internal/middleware"
)

type RouterConfig struct {
	ServiceName    string
	AllowedOrigins []string

	AuthMiddleware *middleware.AuthMiddleware
	AuthHandler    *handlers.AuthHandler
	UserHandler    *handlers.UserHandler
	ImageHandler   *handlers.ImageHandler
	VisionHandler  *handlers.VisionHandler
	DexHandler     *handlers.DexHandler
	GraphHandler   *handlers.GraphHandler
	SocialHandler  *handlers.SocialHandler
	ImportHandler  *handlers.ImportHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.Default()
	router.Use(otelgin.Middleware(cfg.ServiceName))

	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"http://localhost:3000"}
	}
	router.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type", "X-Requested-With"},
		AllowCredentials: true,
	}))

	router.GET("/healthcheck", handlers.HealthCheck)

	api := router.Group("/api/v1")

	auth := api.Group("/auth")
	{
		auth.POST("/register", cfg.AuthHandler.Register)
		auth.POST("/login", cfg.AuthHandler.Login)
		auth.POST("/refresh", cfg.AuthHandler.Refresh)
		auth.POST("/logout", cfg.AuthHandler.Logout)
	}

	protected := api.Group("")
	protected.Use(cfg.AuthMiddleware.RequireAuth())
	{
		protected.GET("/users/me", cfg.UserHandler.GetMe)
		protected.POST("/users/me/regenerate_friend_code", cfg.UserHandler.RegenerateFriendCode)

		protected.POST("/images/convert", cfg.ImageHandler.Convert)
		protected.GET("/images/convert/:id/download", cfg.ImageHandler.Download)

		protected.POST("/vision/jobs", cfg.VisionHandler.Submit)
		protected.GET("/vision/jobs", cfg.VisionHandler.List)
		protected.GET("/vision/jobs/:id", cfg.VisionHandler.Get)
		protected.POST("/vision/jobs/:id/select_animal", cfg.VisionHandler.SelectAnimal)
		protected.POST("/vision/jobs/:id/retry", cfg.VisionHandler.Retry)

		protected.POST("/dex/entries", cfg.DexHandler.Create)
		protected.GET("/dex/entries", cfg.DexHandler.List)
		protected.GET("/dex/entries/sync_entries", cfg.DexHandler.SyncEntries)
		protected.GET("/dex/entries/friends_overview", cfg.DexHandler.FriendsOverview)
		protected.GET("/dex/entries/:id", cfg.DexHandler.Get)
		protected.PATCH("/dex/entries/:id", cfg.DexHandler.Update)
		protected.DELETE("/dex/entries/:id", cfg.DexHandler.Delete)

		protected.GET("/graph/tree", cfg.GraphHandler.GetTree)
		protected.GET("/graph/tree/chunk/:x/:y", cfg.GraphHandler.GetChunk)
		protected.POST("/graph/tree/invalidate", cfg.GraphHandler.Invalidate)

		protected.GET("/social/friends", cfg.SocialHandler.List)
		protected.POST("/social/friends/request", cfg.SocialHandler.Request)
		protected.POST("/social/friends/:id/respond", cfg.SocialHandler.Respond)
		protected.DELETE("/social/friends/:id", cfg.SocialHandler.Remove)
	}

	admin := api.Group("/admin")
	admin.Use(cfg.AuthMiddleware.RequireAuth(), cfg.AuthMiddleware.RequireAdmin())
	{
		admin.POST("/imports", cfg.ImportHandler.Start)
		admin.GET("/imports/:id", cfg.ImportHandler.Get)
	}

	return router
}
