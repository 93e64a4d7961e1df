package app

import (
	"gorm.io/gorm"

	"github.com/yungbote/biologidex-backend/internal/pkg/logger"
	"github.com/yungbote/biologidex-backend/internal/repos"
)

type Repos struct {
	User            repos.UserRepo
	UserToken       repos.UserTokenRepo
	Friendship      repos.FriendshipRepo
	ImageConversion repos.ImageConversionRepo
	AnalysisJob     repos.AnalysisJobRepo
	Animal          repos.AnimalRepo
	DexEntry        repos.DexEntryRepo
	DataSource      repos.DataSourceRepo
	ImportJob       repos.ImportJobRepo
	RawTaxonRow     repos.RawTaxonRowRepo
	Taxon           repos.TaxonRepo
	CommonName      repos.CommonNameRepo
	NameRelation    repos.NameRelationRepo
}

func wireRepos(db *gorm.DB, log *logger.Logger) Repos {
	log.Info("Wiring repos...")
	return Repos{
		User:            repos.NewUserRepo(db, log),
		UserToken:       repos.NewUserTokenRepo(db, log),
		Friendship:      repos.NewFriendshipRepo(db, log),
		ImageConversion: repos.NewImageConversionRepo(db, log),
		AnalysisJob:     repos.NewAnalysisJobRepo(db, log),
		Animal:          repos.NewAnimalRepo(db, log),
		DexEntry:        repos.NewDexEntryRepo(db, log),
		DataSource:      repos.NewDataSourceRepo(db, log),
		ImportJob:       repos.NewImportJobRepo(db, log),
		RawTaxonRow:     repos.NewRawTaxonRowRepo(db, log),
		Taxon:           repos.NewTaxonRepo(db, log),
		CommonName:      repos.NewCommonNameRepo(db, log),
		NameRelation:    repos.NewNameRelationRepo(db, log),
	}
}
