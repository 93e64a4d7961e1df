package app

import (
	"github.com/gin-gonic/gin"

	"github.com/yungbote/biologidex-backend/internal/server"
)

func wireRouter(cfg Config, handlers Handlers, middleware Middleware) *gin.Engine {
	return server.NewRouter(server.RouterConfig{
		ServiceName:    cfg.ServiceName,
		AllowedOrigins: cfg.AllowedOrigins,
		AuthMiddleware: middleware.Auth,
		AuthHandler:    handlers.Auth,
		UserHandler:    handlers.User,
		ImageHandler:   handlers.Image,
		VisionHandler:  handlers.Vision,
		DexHandler:     handlers.Dex,
		GraphHandler:   handlers.Graph,
		SocialHandler:  handlers.Social,
		ImportHandler:  handlers.Import,
	})
}
