package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/cheggaaa/pb/v3"
	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"github.com/yungbote/biologidex-backend/internal/clients/checklistbank"
	"github.com/yungbote/biologidex-backend/internal/db"
	"github.com/yungbote/biologidex-backend/internal/pkg/logger"
	"github.com/yungbote/biologidex-backend/internal/repos"
	"github.com/yungbote/biologidex-backend/internal/services"
	"github.com/yungbote/biologidex-backend/internal/types"
)

func main() {
	source := flag.String("source", "col", "data source code to import")
	dataset := flag.Int("dataset", 0, "pinned ChecklistBank dataset key (0 uses the latest release)")
	workDir := flag.String("work-dir", "", "directory for downloaded archives")
	keepArchive := flag.Bool("keep-archive", false, "keep the downloaded archive after a successful import")
	flag.Parse()

	logMode := os.Getenv("LOG_MODE")
	if logMode == "" {
		logMode = "production"
	}
	log, err := logger.New(logMode)
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	if *workDir != "" {
		if err := os.Setenv("IMPORT_WORK_DIR", *workDir); err != nil {
			log.Fatal("Could not set work dir", "error", err)
		}
	}

	pg, err := db.NewPostgresService(log)
	if err != nil {
		log.Fatal("Postgres init failed", "error", err)
	}
	if err := pg.AutoMigrateAll(); err != nil {
		log.Fatal("Postgres auto migration failed", "error", err)
	}
	theDB := pg.DB()

	sourceRepo := repos.NewDataSourceRepo(theDB, log)
	jobRepo := repos.NewImportJobRepo(theDB, log)
	rawRepo := repos.NewRawTaxonRowRepo(theDB, log)
	taxonRepo := repos.NewTaxonRepo(theDB, log)
	commonRepo := repos.NewCommonNameRepo(theDB, log)
	relationRepo := repos.NewNameRelationRepo(theDB, log)

	importer := services.NewImporterService(
		theDB,
		log,
		checklistbank.NewClient(log),
		sourceRepo,
		jobRepo,
		rawRepo,
		taxonRepo,
		commonRepo,
		relationRepo,
	)

	ctx := context.Background()
	job, err := importer.StartImport(ctx, *source, *dataset)
	if err != nil {
		log.Fatal("Could not start import", "error", err)
	}
	fmt.Printf("Import job %s started for source %q\n", job.ID, *source)

	done := make(chan error, 1)
	go func() { done <- importer.Run(ctx, job) }()

	trackProgress(ctx, importer, job.ID, done)

	final, err := importer.Get(ctx, job.ID)
	if err != nil {
		log.Fatal("Could not read final job state", "error", err)
	}
	if final.Status != types.ImportStatusCompleted {
		log.Fatal("Import failed", "status", final.Status, "error", final.ErrorMessage)
	}

	if !*keepArchive && final.FilePath != "" {
		_ = os.Remove(final.FilePath)
		_ = os.RemoveAll(archiveExtractDir(final.FilePath))
	}

	fmt.Printf(
		"Import completed: %s rows staged, %s imported, %s failed\n",
		humanize.Comma(final.RecordsTotal),
		humanize.Comma(final.RecordsImported),
		humanize.Comma(final.RecordsFailed),
	)
}

// trackProgress polls the job row and renders a bar once the staging
// pass has established a row total.
func trackProgress(ctx context.Context, importer services.ImporterService, jobID uuid.UUID, done <-chan error) {
	var bar *pb.ProgressBar
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()
	defer func() {
		if bar != nil {
			bar.Finish()
		}
	}()

	for {
		select {
		case err := <-done:
			if err != nil {
				fmt.Printf("Import run ended with error: %v\n", err)
			}
			return
		case <-ticker.C:
			job, err := importer.Get(ctx, jobID)
			if err != nil {
				continue
			}
			if job.RecordsTotal > 0 && bar == nil {
				bar = pb.Full.Start64(job.RecordsTotal)
				bar.Set("prefix", "Importing taxa: ")
				bar.Set(pb.CleanOnFinish, true)
			}
			if bar != nil {
				bar.SetCurrent(job.RecordsImported + job.RecordsFailed)
			}
		}
	}
}

func archiveExtractDir(archivePath string) string {
	base := archivePath[:len(archivePath)-len(filepath.Ext(archivePath))]
	return base + "_extracted"
}
