package app

import (
	"github.com/yungbote/biologidex-backend/internal/handlers"
	"github.com/yungbote/biologidex-backend/internal/pkg/logger"
)

type Handlers struct {
	Auth   *handlers.AuthHandler
	User   *handlers.UserHandler
	Image  *handlers.ImageHandler
	Vision *handlers.VisionHandler
	Dex    *handlers.DexHandler
	Graph  *handlers.GraphHandler
	Social *handlers.SocialHandler
	Import *handlers.ImportHandler
}

func wireHandlers(log *logger.Logger, services Services, clients Clients) Handlers {
	log.Info("Wiring handlers...")
	return Handlers{
		Auth:   handlers.NewAuthHandler(services.Auth),
		User:   handlers.NewUserHandler(services.User, services.Social),
		Image:  handlers.NewImageHandler(services.Conversion),
		Vision: handlers.NewVisionHandler(services.Vision, clients.Bucket),
		Dex:    handlers.NewDexHandler(services.Dex, clients.Bucket),
		Graph:  handlers.NewGraphHandler(services.Tree),
		Social: handlers.NewSocialHandler(services.Social),
		Import: handlers.NewImportHandler(services.Importer),
	}
}
