package db

import (
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/yungbote/biologidex-backend/internal/pkg/logger"
	"github.com/yungbote/biologidex-backend/internal/types"
	"github.com/yungbote/biologidex-backend/internal/utils"
)

type PostgresService struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewPostgresService(log *logger.Logger) (*PostgresService, error) {
	serviceLog := log.With("service", "PostgresService")

	postgresHost := utils.GetEnv("POSTGRES_HOST", "localhost", log)
	postgresPort := utils.GetEnv("POSTGRES_PORT", "5432", log)
	postgresUser := utils.GetEnv("POSTGRES_USER", "postgres", log)
	postgresPassword := utils.GetEnv("POSTGRES_PASSWORD", "", log)
	postgresName := utils.GetEnv("POSTGRES_NAME", "biologidex", log)

	dsn := fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable", postgresUser, postgresPassword, postgresHost, postgresPort, postgresName)

	log.Info("Connecting to Postgres...")
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		log.Error("Failed to connect to Postgres", "error", err)
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}

	if err := db.Exec(`CREATE EXTENSION IF NOT EXISTS "uuid-ossp";`).Error; err != nil {
		log.Error("Failed to enable uuid-ossp extension", "error", err)
		return nil, fmt.Errorf("enable uuid-ossp extension: %w", err)
	}

	return &PostgresService{db: db, log: serviceLog}, nil
}

func (s *PostgresService) AutoMigrateAll() error {
	s.log.Info("Auto migrating postgres tables...")
	err := s.db.AutoMigrate(
		&types.User{},
		&types.UserToken{},
		&types.Friendship{},
		&types.ImageConversion{},
		&types.AnalysisJob{},
		&types.Animal{},
		&types.DexEntry{},
		&types.DataSource{},
		&types.Taxon{},
		&types.CommonName{},
		&types.NameRelation{},
		&types.ImportJob{},
		&types.RawTaxonRow{},
	)
	if err != nil {
		s.log.Error("Auto migration failed for postgres tables", "error", err)
		return err
	}
	s.log.Info("Configuring foreign key relationships for postgres tables...")
	constraints := []struct {
		name string
		sql  string
	}{
		{
			name: "fk_user_token_user_id",
			sql: `ALTER TABLE "user_token"
				ADD CONSTRAINT "fk_user_token_user_id"
				FOREIGN KEY ("user_id") REFERENCES "user"("id")
				ON DELETE CASCADE`,
		},
		{
			name: "fk_image_conversion_user_id",
			sql: `ALTER TABLE "image_conversion"
				ADD CONSTRAINT "fk_image_conversion_user_id"
				FOREIGN KEY ("user_id") REFERENCES "user"("id")
				ON DELETE CASCADE`,
		},
		{
			name: "fk_analysis_job_user_id",
			sql: `ALTER TABLE "analysis_job"
				ADD CONSTRAINT "fk_analysis_job_user_id"
				FOREIGN KEY ("user_id") REFERENCES "user"("id")
				ON DELETE CASCADE`,
		},
		{
			name: "fk_dex_entry_owner_id",
			sql: `ALTER TABLE "dex_entry"
				ADD CONSTRAINT "fk_dex_entry_owner_id"
				FOREIGN KEY ("owner_id") REFERENCES "user"("id")
				ON DELETE CASCADE`,
		},
		{
			name: "fk_dex_entry_animal_id",
			sql: `ALTER TABLE "dex_entry"
				ADD CONSTRAINT "fk_dex_entry_animal_id"
				FOREIGN KEY ("animal_id") REFERENCES "animal"("id")
				ON DELETE RESTRICT`,
		},
		{
			name: "fk_friendship_from_user_id",
			sql: `ALTER TABLE "friendship"
				ADD CONSTRAINT "fk_friendship_from_user_id"
				FOREIGN KEY ("from_user_id") REFERENCES "user"("id")
				ON DELETE CASCADE`,
		},
		{
			name: "fk_friendship_to_user_id",
			sql: `ALTER TABLE "friendship"
				ADD CONSTRAINT "fk_friendship_to_user_id"
				FOREIGN KEY ("to_user_id") REFERENCES "user"("id")
				ON DELETE CASCADE`,
		},
		{
			name: "fk_taxon_source_id",
			sql: `ALTER TABLE "taxon"
				ADD CONSTRAINT "fk_taxon_source_id"
				FOREIGN KEY ("source_id") REFERENCES "data_source"("id")
				ON DELETE CASCADE`,
		},
		{
			name: "fk_common_name_taxon_id",
			sql: `ALTER TABLE "common_name"
				ADD CONSTRAINT "fk_common_name_taxon_id"
				FOREIGN KEY ("taxon_id") REFERENCES "taxon"("id")
				ON DELETE CASCADE`,
		},
		{
			name: "fk_raw_taxon_row_import_job_id",
			sql: `ALTER TABLE "raw_taxon_row"
				ADD CONSTRAINT "fk_raw_taxon_row_import_job_id"
				FOREIGN KEY ("import_job_id") REFERENCES "import_job"("id")
				ON DELETE CASCADE`,
		},
	}
	for _, c := range constraints {
		var exists bool
		if err := s.db.Raw(
			`SELECT EXISTS (SELECT 1 FROM pg_constraint WHERE conname = ?)`, c.name,
		).Scan(&exists).Error; err != nil {
			return fmt.Errorf("check constraint %s: %w", c.name, err)
		}
		if exists {
			continue
		}
		if err := s.db.Exec(c.sql).Error; err != nil {
			return fmt.Errorf("add %s: %w", c.name, err)
		}
	}
	return nil
}

func (s *PostgresService) DB() *gorm.DB {
	return s.db
}
