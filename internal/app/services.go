package app

import (
	"gorm.io/gorm"

	"github.com/yungbote/biologidex-backend/internal/pkg/logger"
	"github.com/yungbote/biologidex-backend/internal/services"
)

type Services struct {
	Auth       services.AuthService
	User       services.UserService
	Social     services.SocialService
	Conversion services.ConversionService
	Animal     services.AnimalService
	Reconciler services.ReconcilerService
	Vision     services.VisionService
	Dex        services.DexService
	Tree       services.TreeService
	Importer   services.ImporterService
}

func wireServices(db *gorm.DB, log *logger.Logger, cfg Config, repos Repos, clients Clients) Services {
	log.Info("Wiring services...")

	authService := services.NewAuthService(
		db, log,
		repos.User,
		repos.UserToken,
		cfg.JWTSecretKey,
		cfg.AccessTokenTTL,
		cfg.RefreshTokenTTL,
	)

	userService := services.NewUserService(db, log, repos.User, repos.DexEntry)
	socialService := services.NewSocialService(db, log, repos.User, repos.Friendship)

	conversionService := services.NewConversionService(db, log, repos.ImageConversion, clients.Bucket)
	animalService := services.NewAnimalService(db, log, repos.Animal)
	reconcilerService := services.NewReconcilerService(db, log, repos.Taxon, repos.CommonName, repos.NameRelation, clients.Cache)

	visionService := services.NewVisionService(
		db, log,
		repos.AnalysisJob,
		conversionService,
		reconcilerService,
		animalService,
		clients.Vision,
		clients.Bucket,
	)

	dexService := services.NewDexService(
		db, log,
		repos.DexEntry,
		repos.Animal,
		repos.Friendship,
		conversionService,
		clients.Cache,
		clients.Bucket,
	)

	treeService := services.NewTreeService(
		db, log,
		repos.DexEntry,
		repos.Animal,
		repos.Friendship,
		repos.User,
		clients.Cache,
	)

	importerService := services.NewImporterService(
		db, log,
		clients.Checklistbank,
		repos.DataSource,
		repos.ImportJob,
		repos.RawTaxonRow,
		repos.Taxon,
		repos.CommonName,
		repos.NameRelation,
	)

	return Services{
		Auth:       authService,
		User:       userService,
		Social:     socialService,
		Conversion: conversionService,
		Animal:     animalService,
		Reconciler: reconcilerService,
		Vision:     visionService,
		Dex:        dexService,
		Tree:       treeService,
		Importer:   importerService,
	}
}
