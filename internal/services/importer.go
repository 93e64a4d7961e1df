package services

import (
	"archive/zip"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/yungbote/biologidex-backend/internal/clients/checklistbank"
	"github.com/yungbote/biologidex-backend/internal/pkg/logger"
	"github.com/yungbote/biologidex-backend/internal/repos"
	"github.com/yungbote/biologidex-backend/internal/types"
)

const (
	importMaxRetries   = 3
	importBackoffBase  = 5 * time.Minute
	importStaleRunning = 10 * time.Minute

	stagingBatchSize   = 5000
	normalizeBatchSize = 1000
	maxStagedErrors    = 20
)

// ImportBackoff returns the delay before retry n (5m, 15m, 45m).
func ImportBackoff(retryCount int) time.Duration {
	d := importBackoffBase
	for i := 0; i < retryCount; i++ {
		d *= 3
	}
	return d
}

var (
	ErrImportAlreadyRunning = fmt.Errorf("an import is already running for this source")
	ErrNoReleaseAvailable   = fmt.Errorf("no release with a downloadable export is available")
	ErrArchiveInvalid       = fmt.Errorf("archive is missing required files")
	ErrImportJobNotFound    = fmt.Errorf("import job not found")
)

// sourceDefaults seeds the data_source row when a code is imported for
// the first time. Lower priority wins in the matcher.
var sourceDefaults = map[string]struct {
	name     string
	priority int
}{
	"col": {name: "Catalogue of Life", priority: 1},
}

var importStatusMap = map[string]string{
	"accepted":               types.TaxonStatusAccepted,
	"provisionally accepted": types.TaxonStatusProvisional,
	"synonym":                types.TaxonStatusSynonym,
	"ambiguous synonym":      types.TaxonStatusAmbiguous,
	"misapplied":             types.TaxonStatusMisapplied,
}

var nomenclaturalCodeMap = map[string]string{
	"botanical":  "icn",
	"zoological": "iczn",
	"virus":      "ictv",
	"bacterial":  "icnp",
}

var knownEnvironments = map[string]string{
	"marine":      "marine",
	"terrestrial": "terrestrial",
	"freshwater":  "freshwater",
	"brackish":    "marine",
}

// importMetadata is persisted on the job so a resumed run does not have
// to repeat discovery.
type importMetadata struct {
	DatasetKey int    `json:"dataset_key"`
	Title      string `json:"title,omitempty"`
	Created    string `json:"created,omitempty"`
}

type colMetadata struct {
	Title   string `yaml:"title"`
	Version string `yaml:"version"`
	Issued  string `yaml:"issued"`
}

type ImporterService interface {
	// StartImport enqueues an import for the source. datasetKey pins a
	// specific release; zero means discover the latest.
	StartImport(ctx context.Context, sourceCode string, datasetKey int) (*types.ImportJob, error)
	Get(ctx context.Context, id uuid.UUID) (*types.ImportJob, error)
	// ClaimNext locks the next runnable job for this worker, or nil.
	ClaimNext(ctx context.Context) (*types.ImportJob, error)
	// Run drives the job through its pipeline, re-entering at the
	// persisted status. Errors mark the job failed with a retry backoff.
	Run(ctx context.Context, job *types.ImportJob) error
	Heartbeat(ctx context.Context, id uuid.UUID) error
}

type importerService struct {
	db           *gorm.DB
	log          *logger.Logger
	cb           checklistbank.Client
	sourceRepo   repos.DataSourceRepo
	jobRepo      repos.ImportJobRepo
	rawRepo      repos.RawTaxonRowRepo
	taxonRepo    repos.TaxonRepo
	commonRepo   repos.CommonNameRepo
	relationRepo repos.NameRelationRepo
	workDir      string
}

func NewImporterService(
	db *gorm.DB,
	log *logger.Logger,
	cb checklistbank.Client,
	sourceRepo repos.DataSourceRepo,
	jobRepo repos.ImportJobRepo,
	rawRepo repos.RawTaxonRowRepo,
	taxonRepo repos.TaxonRepo,
	commonRepo repos.CommonNameRepo,
	relationRepo repos.NameRelationRepo,
) ImporterService {
	workDir := strings.TrimSpace(os.Getenv("IMPORT_WORK_DIR"))
	if workDir == "" {
		workDir = filepath.Join(os.TempDir(), "biologidex-imports")
	}
	return &importerService{
		db:           db,
		log:          log.With("service", "ImporterService"),
		cb:           cb,
		sourceRepo:   sourceRepo,
		jobRepo:      jobRepo,
		rawRepo:      rawRepo,
		taxonRepo:    taxonRepo,
		commonRepo:   commonRepo,
		relationRepo: relationRepo,
		workDir:      workDir,
	}
}

func (s *importerService) StartImport(ctx context.Context, sourceCode string, datasetKey int) (*types.ImportJob, error) {
	code := strings.ToLower(strings.TrimSpace(sourceCode))
	defaults, ok := sourceDefaults[code]
	if !ok {
		defaults.name = strings.ToUpper(code)
		defaults.priority = 100
	}

	var job *types.ImportJob
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		source, err := s.sourceRepo.GetOrCreate(ctx, tx, code, defaults.name, defaults.priority)
		if err != nil {
			return err
		}
		active, err := s.jobRepo.GetActiveBySource(ctx, tx, source.ID)
		if err != nil {
			return err
		}
		if active != nil {
			return ErrImportAlreadyRunning
		}

		job = &types.ImportJob{
			ID:       uuid.New(),
			SourceID: source.ID,
			Status:   types.ImportStatusPending,
		}
		if datasetKey > 0 {
			meta, mErr := json.Marshal(importMetadata{DatasetKey: datasetKey})
			if mErr != nil {
				return mErr
			}
			job.Metadata = datatypes.JSON(meta)
		}
		_, cErr := s.jobRepo.Create(ctx, tx, job)
		return cErr
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("import enqueued", "job_id", job.ID, "source", code, "dataset_key", datasetKey)
	return job, nil
}

func (s *importerService) Get(ctx context.Context, id uuid.UUID) (*types.ImportJob, error) {
	job, err := s.jobRepo.GetByID(ctx, nil, id)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, ErrImportJobNotFound
	}
	return job, nil
}

func (s *importerService) ClaimNext(ctx context.Context) (*types.ImportJob, error) {
	return s.jobRepo.ClaimNextRunnable(ctx, nil, importMaxRetries, importStaleRunning)
}

func (s *importerService) Heartbeat(ctx context.Context, id uuid.UUID) error {
	return s.jobRepo.Heartbeat(ctx, nil, id)
}

func (s *importerService) Run(ctx context.Context, job *types.ImportJob) error {
	if job.Status == types.ImportStatusFailed {
		// A retried job re-enters at the top of the pipeline. Staged rows
		// and upserted taxa are idempotent across runs.
		if err := s.transition(ctx, job, types.ImportStatusPending); err != nil {
			return err
		}
	}

	if err := s.runPipeline(ctx, job); err != nil {
		return s.fail(ctx, job, err)
	}
	return nil
}

func (s *importerService) runPipeline(ctx context.Context, job *types.ImportJob) error {
	if job.Status == types.ImportStatusPending {
		if err := s.discover(ctx, job); err != nil {
			return err
		}
		if err := s.transition(ctx, job, types.ImportStatusDownloading); err != nil {
			return err
		}
	}
	if job.Status == types.ImportStatusDownloading {
		if err := s.download(ctx, job); err != nil {
			return err
		}
		if err := s.transition(ctx, job, types.ImportStatusValidating); err != nil {
			return err
		}
	}
	if job.Status == types.ImportStatusValidating {
		if err := s.validateArchive(ctx, job); err != nil {
			return err
		}
		if err := s.transition(ctx, job, types.ImportStatusProcessing); err != nil {
			return err
		}
	}
	if job.Status == types.ImportStatusProcessing {
		if err := s.stageRows(ctx, job); err != nil {
			return err
		}
		if err := s.transition(ctx, job, types.ImportStatusImporting); err != nil {
			return err
		}
	}
	if job.Status == types.ImportStatusImporting {
		if err := s.normalize(ctx, job); err != nil {
			return err
		}
		if err := s.activate(ctx, job); err != nil {
			return err
		}
		now := time.Now()
		if err := s.jobRepo.UpdateFields(ctx, nil, job.ID, map[string]interface{}{
			"status":       types.ImportStatusCompleted,
			"completed_at": now,
		}); err != nil {
			return err
		}
		job.Status = types.ImportStatusCompleted
		job.CompletedAt = &now
		s.log.Info("import completed",
			"job_id", job.ID,
			"records_total", job.RecordsTotal,
			"records_imported", job.RecordsImported,
			"records_failed", job.RecordsFailed)
	}
	return nil
}

func (s *importerService) transition(ctx context.Context, job *types.ImportJob, status string) error {
	if err := s.jobRepo.UpdateFields(ctx, nil, job.ID, map[string]interface{}{
		"status": status,
	}); err != nil {
		return err
	}
	job.Status = status
	s.log.Info("import stage", "job_id", job.ID, "status", status)
	return nil
}

func (s *importerService) fail(ctx context.Context, job *types.ImportJob, cause error) error {
	retryCount := job.RetryCount + 1
	nextAttempt := time.Now().Add(ImportBackoff(job.RetryCount))
	updates := map[string]interface{}{
		"status":        types.ImportStatusFailed,
		"error_message": cause.Error(),
		"retry_count":   retryCount,
	}
	if retryCount < importMaxRetries {
		updates["next_attempt_at"] = nextAttempt
	} else {
		updates["next_attempt_at"] = nil
	}
	if err := s.jobRepo.UpdateFields(ctx, nil, job.ID, updates); err != nil {
		s.log.Error("persist import failure", "job_id", job.ID, "error", err)
	}
	job.Status = types.ImportStatusFailed
	job.RetryCount = retryCount
	s.log.Error("import failed",
		"job_id", job.ID,
		"retry_count", retryCount,
		"error", cause)
	return cause
}

func (s *importerService) metadata(job *types.ImportJob) importMetadata {
	var meta importMetadata
	if len(job.Metadata) > 0 {
		_ = json.Unmarshal(job.Metadata, &meta)
	}
	return meta
}

func (s *importerService) discover(ctx context.Context, job *types.ImportJob) error {
	meta := s.metadata(job)

	var ds *checklistbank.Dataset
	var err error
	if meta.DatasetKey > 0 {
		ds, err = s.cb.GetDataset(ctx, meta.DatasetKey)
	} else {
		ds, err = s.cb.LatestRelease(ctx)
	}
	if err != nil {
		return err
	}
	if ds == nil {
		return ErrNoReleaseAvailable
	}

	meta.DatasetKey = ds.Key
	meta.Title = ds.Title
	meta.Created = ds.Created
	raw, err := json.Marshal(meta)
	if err != nil {
		return err
	}
	version := ds.Version
	if version == "" {
		version = strconv.Itoa(ds.Key)
	}
	if err := s.jobRepo.UpdateFields(ctx, nil, job.ID, map[string]interface{}{
		"version":  version,
		"metadata": datatypes.JSON(raw),
	}); err != nil {
		return err
	}
	job.Version = version
	job.Metadata = datatypes.JSON(raw)
	s.log.Info("release discovered", "job_id", job.ID, "dataset_key", ds.Key, "version", version)
	return nil
}

func (s *importerService) archivePath(job *types.ImportJob) string {
	meta := s.metadata(job)
	return filepath.Join(s.workDir, fmt.Sprintf("col_%d.zip", meta.DatasetKey))
}

func (s *importerService) extractDir(job *types.ImportJob) string {
	return strings.TrimSuffix(s.archivePath(job), ".zip") + "_extracted"
}

func (s *importerService) download(ctx context.Context, job *types.ImportJob) error {
	meta := s.metadata(job)
	if meta.DatasetKey == 0 {
		return fmt.Errorf("job %s has no dataset key", job.ID)
	}
	if err := os.MkdirAll(s.workDir, 0o755); err != nil {
		return err
	}

	dest := s.archivePath(job)
	var lastLogged int64
	err := s.cb.DownloadArchive(ctx, meta.DatasetKey, dest, func(written int64) {
		if written-lastLogged >= 100*1024*1024 {
			lastLogged = written
			s.log.Info("download progress", "job_id", job.ID, "written_mb", written/(1024*1024))
		}
	})
	if err != nil {
		return err
	}

	info, err := os.Stat(dest)
	if err != nil {
		return err
	}
	if err := s.jobRepo.UpdateFields(ctx, nil, job.ID, map[string]interface{}{
		"file_path": dest,
		"file_size": info.Size(),
	}); err != nil {
		return err
	}
	job.FilePath = dest
	job.FileSize = info.Size()
	s.log.Info("download complete", "job_id", job.ID, "file_size_mb", info.Size()/(1024*1024))
	return nil
}

func (s *importerService) validateArchive(ctx context.Context, job *types.ImportJob) error {
	archive := job.FilePath
	if archive == "" {
		archive = s.archivePath(job)
	}
	extractDir := s.extractDir(job)

	// Reuse a previous extraction when it already has the main table.
	if _, err := os.Stat(filepath.Join(extractDir, "NameUsage.tsv")); err != nil {
		if err := s.extract(archive, extractDir); err != nil {
			return err
		}
	}

	for _, required := range []string{"metadata.yaml", "NameUsage.tsv"} {
		if _, err := os.Stat(filepath.Join(extractDir, required)); err != nil {
			return fmt.Errorf("%w: %s", ErrArchiveInvalid, required)
		}
	}

	// metadata.yaml can carry a better version label than the registry.
	if raw, err := os.ReadFile(filepath.Join(extractDir, "metadata.yaml")); err == nil {
		var meta colMetadata
		if yErr := yaml.Unmarshal(raw, &meta); yErr == nil && meta.Version != "" && job.Version == "" {
			if uErr := s.jobRepo.UpdateFields(ctx, nil, job.ID, map[string]interface{}{
				"version": meta.Version,
			}); uErr == nil {
				job.Version = meta.Version
			}
		}
	}
	return nil
}

func (s *importerService) extract(archive, dest string) error {
	reader, err := zip.OpenReader(archive)
	if err != nil {
		return fmt.Errorf("open archive: %w", err)
	}
	defer reader.Close()

	if err := os.MkdirAll(dest, 0o755); err != nil {
		return err
	}
	for _, f := range reader.File {
		name := filepath.Clean(f.Name)
		if strings.HasPrefix(name, "..") || filepath.IsAbs(name) {
			continue
		}
		target := filepath.Join(dest, name)
		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return err
			}
			continue
		}
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return err
		}
		src, err := f.Open()
		if err != nil {
			return err
		}
		dst, err := os.Create(target)
		if err != nil {
			src.Close()
			return err
		}
		_, err = io.Copy(dst, src)
		src.Close()
		if cErr := dst.Close(); err == nil {
			err = cErr
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// tsvTable wraps a ColDP TSV file. Headers carry a "col:" prefix which is
// stripped for lookup.
type tsvTable struct {
	file *os.File
	r    *csv.Reader
	idx  map[string]int
}

func openTSV(path string) (*tsvTable, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	r := csv.NewReader(f)
	r.Comma = '\t'
	r.LazyQuotes = true
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("read header of %s: %w", filepath.Base(path), err)
	}
	idx := make(map[string]int, len(header))
	for i, col := range header {
		idx[strings.TrimPrefix(strings.TrimSpace(col), "col:")] = i
	}
	return &tsvTable{file: f, r: r, idx: idx}, nil
}

func (t *tsvTable) get(record []string, col string) string {
	i, ok := t.idx[col]
	if !ok || i >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[i])
}

func (t *tsvTable) Close() error {
	return t.file.Close()
}

func (s *importerService) stageRows(ctx context.Context, job *types.ImportJob) error {
	table, err := openTSV(filepath.Join(s.extractDir(job), "NameUsage.tsv"))
	if err != nil {
		return err
	}
	defer table.Close()

	var (
		read    int64
		failed  int64
		errMsgs []string
		batch   []*types.RawTaxonRow
	)

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		n, msgs, bErr := s.rawRepo.BulkInsert(ctx, nil, batch, stagingBatchSize)
		if bErr != nil {
			return bErr
		}
		failed += n
		for _, m := range msgs {
			if len(errMsgs) < maxStagedErrors {
				errMsgs = append(errMsgs, m)
			}
		}
		batch = batch[:0]
		return nil
	}

	for {
		record, rErr := table.r.Read()
		if rErr == io.EOF {
			break
		}
		if rErr != nil {
			failed++
			if len(errMsgs) < maxStagedErrors {
				errMsgs = append(errMsgs, rErr.Error())
			}
			continue
		}
		read++

		row := s.rawRowFromRecord(job, table, record)
		if row.SourceTaxonID == "" || row.ScientificName == "" {
			failed++
			continue
		}
		batch = append(batch, row)
		if len(batch) >= stagingBatchSize {
			if err := flush(); err != nil {
				return err
			}
			if read%50000 == 0 {
				s.log.Info("staging progress", "job_id", job.ID, "records_read", read)
			}
		}
	}
	if err := flush(); err != nil {
		return err
	}

	updates := map[string]interface{}{
		"records_total":  read,
		"records_failed": failed,
	}
	if len(errMsgs) > 0 {
		if raw, mErr := json.Marshal(errMsgs); mErr == nil {
			updates["error_log"] = datatypes.JSON(raw)
		}
	}
	if err := s.jobRepo.UpdateFields(ctx, nil, job.ID, updates); err != nil {
		return err
	}
	job.RecordsTotal = read
	job.RecordsFailed = failed
	s.log.Info("staging complete", "job_id", job.ID, "records_read", read, "records_failed", failed)
	return nil
}

func (s *importerService) rawRowFromRecord(job *types.ImportJob, table *tsvTable, record []string) *types.RawTaxonRow {
	genus := table.get(record, "genericName")
	if genus == "" {
		genus = table.get(record, "genus")
	}
	row := &types.RawTaxonRow{
		ID:                   uuid.New(),
		ImportJobID:          job.ID,
		SourceTaxonID:        table.get(record, "ID"),
		ScientificName:       table.get(record, "scientificName"),
		Authorship:           table.get(record, "authorship"),
		Rank:                 table.get(record, "rank"),
		Status:               table.get(record, "status"),
		ParentSourceID:       table.get(record, "parentID"),
		Kingdom:              table.get(record, "kingdom"),
		Phylum:               table.get(record, "phylum"),
		Class:                table.get(record, "class"),
		TaxonomicOrder:       table.get(record, "order"),
		Family:               table.get(record, "family"),
		Genus:                genus,
		SpecificEpithet:      table.get(record, "specificEpithet"),
		InfraspecificEpithet: table.get(record, "infraspecificEpithet"),
		NomenclaturalCode:    table.get(record, "code"),
		Environment:          table.get(record, "environment"),
		Extinct:              table.get(record, "extinct"),
		Link:                 table.get(record, "link"),
	}

	extras := map[string]string{}
	for _, col := range []string{"subfamily", "tribe", "subgenus", "species", "subspecies", "variety", "form"} {
		if v := table.get(record, col); v != "" {
			extras[col] = v
		}
	}
	if len(extras) > 0 {
		if raw, err := json.Marshal(extras); err == nil {
			row.Extras = datatypes.JSON(raw)
		}
	}
	return row
}

func (s *importerService) normalize(ctx context.Context, job *types.ImportJob) error {
	ids, err := s.rawRepo.SnapshotUnprocessedIDs(ctx, nil, job.ID)
	if err != nil {
		return err
	}
	s.log.Info("normalization started", "job_id", job.ID, "unprocessed", len(ids))

	var imported, failed int64
	for start := 0; start < len(ids); start += normalizeBatchSize {
		end := start + normalizeBatchSize
		if end > len(ids) {
			end = len(ids)
		}
		rows, gErr := s.rawRepo.GetByIDs(ctx, nil, ids[start:end])
		if gErr != nil {
			return gErr
		}
		for _, row := range rows {
			if uErr := s.upsertTaxon(ctx, job, row); uErr != nil {
				failed++
				if mErr := s.rawRepo.MarkProcessed(ctx, nil, row.ID, uErr.Error()); mErr != nil {
					return mErr
				}
				continue
			}
			imported++
			if mErr := s.rawRepo.MarkProcessed(ctx, nil, row.ID, ""); mErr != nil {
				return mErr
			}
		}
		if uErr := s.jobRepo.UpdateFields(ctx, nil, job.ID, map[string]interface{}{
			"records_imported": gorm.Expr("records_imported + ?", imported),
			"records_failed":   gorm.Expr("records_failed + ?", failed),
		}); uErr != nil {
			return uErr
		}
		job.RecordsImported += imported
		job.RecordsFailed += failed
		imported, failed = 0, 0
	}

	if err := s.linkHierarchy(ctx, job, ids); err != nil {
		return err
	}

	// Vernacular names and name relations touch disjoint tables.
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.importCommonNames(gctx, job) })
	g.Go(func() error { return s.importNameRelations(gctx, job) })
	return g.Wait()
}

func (s *importerService) upsertTaxon(ctx context.Context, job *types.ImportJob, row *types.RawTaxonRow) error {
	taxon := &types.Taxon{
		SourceID:             job.SourceID,
		SourceTaxonID:        row.SourceTaxonID,
		ScientificName:       row.ScientificName,
		Authorship:           row.Authorship,
		Rank:                 strings.ToLower(row.Rank),
		Kingdom:              row.Kingdom,
		Phylum:               row.Phylum,
		Class:                row.Class,
		TaxonomicOrder:       row.TaxonomicOrder,
		Family:               row.Family,
		GenericName:          row.Genus,
		SpecificEpithet:      row.SpecificEpithet,
		InfraspecificEpithet: row.InfraspecificEpithet,
		Status:               mapTaxonStatus(row.Status),
		Extinct:              strings.EqualFold(row.Extinct, "true"),
		NomenclaturalCode:    mapNomenclaturalCode(row.NomenclaturalCode),
		SourceURL:            row.Link,
		CompletenessScore:    completenessScore(row),
	}
	if taxon.SourceURL == "" {
		taxon.SourceURL = fmt.Sprintf("https://www.catalogueoflife.org/data/taxon/%s", row.SourceTaxonID)
	}
	if envs := parseEnvironments(row.Environment); len(envs) > 0 {
		raw, err := json.Marshal(envs)
		if err != nil {
			return err
		}
		taxon.Environment = datatypes.JSON(raw)
	}
	_, err := s.taxonRepo.Upsert(ctx, nil, taxon)
	return err
}

func mapTaxonStatus(raw string) string {
	if mapped, ok := importStatusMap[strings.ToLower(strings.TrimSpace(raw))]; ok {
		return mapped
	}
	return types.TaxonStatusDoubtful
}

func mapNomenclaturalCode(raw string) string {
	return nomenclaturalCodeMap[strings.ToLower(strings.TrimSpace(raw))]
}

func parseEnvironments(raw string) []string {
	if raw == "" {
		return nil
	}
	var out []string
	seen := map[string]bool{}
	for _, part := range strings.Split(raw, ",") {
		mapped, ok := knownEnvironments[strings.ToLower(strings.TrimSpace(part))]
		if !ok || seen[mapped] {
			continue
		}
		seen[mapped] = true
		out = append(out, mapped)
	}
	return out
}

func completenessScore(row *types.RawTaxonRow) float64 {
	fields := []string{row.Kingdom, row.Phylum, row.Class, row.TaxonomicOrder, row.Family, row.Genus}
	filled := 0
	for _, f := range fields {
		if f != "" {
			filled++
		}
	}
	return float64(filled) / float64(len(fields))
}

// linkHierarchy wires parent_id for every newly normalized taxon, and
// accepted_name_id for synonyms. In ColDP a synonym's parentID points at
// its accepted name.
func (s *importerService) linkHierarchy(ctx context.Context, job *types.ImportJob, ids []uuid.UUID) error {
	for start := 0; start < len(ids); start += normalizeBatchSize {
		end := start + normalizeBatchSize
		if end > len(ids) {
			end = len(ids)
		}
		rows, err := s.rawRepo.GetByIDs(ctx, nil, ids[start:end])
		if err != nil {
			return err
		}

		sourceIDs := make([]string, 0, len(rows)*2)
		for _, row := range rows {
			sourceIDs = append(sourceIDs, row.SourceTaxonID)
			if row.ParentSourceID != "" {
				sourceIDs = append(sourceIDs, row.ParentSourceID)
			}
		}
		idMap, err := s.taxonRepo.MapSourceRowIDs(ctx, nil, job.SourceID, sourceIDs)
		if err != nil {
			return err
		}

		for _, row := range rows {
			taxonID, ok := idMap[row.SourceTaxonID]
			if !ok || row.ParentSourceID == "" {
				continue
			}
			parentID, ok := idMap[row.ParentSourceID]
			if !ok {
				continue
			}
			updates := map[string]interface{}{"parent_id": parentID}
			if mapTaxonStatus(row.Status) == types.TaxonStatusSynonym {
				updates["accepted_name_id"] = parentID
			}
			if err := s.taxonRepo.UpdateFields(ctx, nil, taxonID, updates); err != nil {
				s.log.Warn("link taxon hierarchy", "taxon_id", taxonID, "error", err)
			}
		}
	}
	return nil
}

func (s *importerService) importCommonNames(ctx context.Context, job *types.ImportJob) error {
	path := filepath.Join(s.extractDir(job), "VernacularName.tsv")
	if _, err := os.Stat(path); err != nil {
		return nil
	}
	table, err := openTSV(path)
	if err != nil {
		return err
	}
	defer table.Close()

	var (
		inserted int64
		skipped  int64
		batch    []*types.CommonName
		pending  []struct {
			sourceTaxonID string
			name          *types.CommonName
		}
	)

	flush := func() error {
		if len(pending) == 0 {
			return nil
		}
		sourceIDs := make([]string, 0, len(pending))
		for _, p := range pending {
			sourceIDs = append(sourceIDs, p.sourceTaxonID)
		}
		idMap, mErr := s.taxonRepo.MapSourceRowIDs(ctx, nil, job.SourceID, sourceIDs)
		if mErr != nil {
			return mErr
		}
		batch = batch[:0]
		for _, p := range pending {
			taxonID, ok := idMap[p.sourceTaxonID]
			if !ok {
				skipped++
				continue
			}
			p.name.TaxonID = taxonID
			batch = append(batch, p.name)
		}
		pending = pending[:0]
		if len(batch) == 0 {
			return nil
		}
		if bErr := s.commonRepo.BulkInsert(ctx, nil, batch, normalizeBatchSize); bErr != nil {
			return bErr
		}
		inserted += int64(len(batch))
		return nil
	}

	for {
		record, rErr := table.r.Read()
		if rErr == io.EOF {
			break
		}
		if rErr != nil {
			skipped++
			continue
		}
		sourceTaxonID := table.get(record, "taxonID")
		name := table.get(record, "name")
		if sourceTaxonID == "" || name == "" {
			skipped++
			continue
		}
		pending = append(pending, struct {
			sourceTaxonID string
			name          *types.CommonName
		}{
			sourceTaxonID: sourceTaxonID,
			name: &types.CommonName{
				ID:          uuid.New(),
				Name:        name,
				Language:    table.get(record, "language"),
				Country:     table.get(record, "country"),
				IsPreferred: strings.EqualFold(table.get(record, "preferred"), "true"),
			},
		})
		if len(pending) >= normalizeBatchSize {
			if err := flush(); err != nil {
				return err
			}
		}
	}
	if err := flush(); err != nil {
		return err
	}
	s.log.Info("common names imported", "job_id", job.ID, "inserted", inserted, "skipped", skipped)
	return nil
}

func (s *importerService) importNameRelations(ctx context.Context, job *types.ImportJob) error {
	path := filepath.Join(s.extractDir(job), "NameRelation.tsv")
	if _, err := os.Stat(path); err != nil {
		return nil
	}
	table, err := openTSV(path)
	if err != nil {
		return err
	}
	defer table.Close()

	var (
		inserted int64
		skipped  int64
		pending  []struct {
			fromID       string
			toID         string
			relationType string
		}
	)

	flush := func() error {
		if len(pending) == 0 {
			return nil
		}
		sourceIDs := make([]string, 0, len(pending)*2)
		for _, p := range pending {
			sourceIDs = append(sourceIDs, p.fromID, p.toID)
		}
		idMap, mErr := s.taxonRepo.MapSourceRowIDs(ctx, nil, job.SourceID, sourceIDs)
		if mErr != nil {
			return mErr
		}
		batch := make([]*types.NameRelation, 0, len(pending))
		for _, p := range pending {
			fromID, fromOK := idMap[p.fromID]
			toID, toOK := idMap[p.toID]
			if !fromOK || !toOK {
				skipped++
				continue
			}
			batch = append(batch, &types.NameRelation{
				ID:             uuid.New(),
				TaxonID:        fromID,
				RelatedTaxonID: toID,
				Type:           p.relationType,
			})
		}
		pending = pending[:0]
		if len(batch) == 0 {
			return nil
		}
		if bErr := s.relationRepo.BulkInsert(ctx, nil, batch, normalizeBatchSize); bErr != nil {
			return bErr
		}
		inserted += int64(len(batch))
		return nil
	}

	for {
		record, rErr := table.r.Read()
		if rErr == io.EOF {
			break
		}
		if rErr != nil {
			skipped++
			continue
		}
		fromID := table.get(record, "nameID")
		toID := table.get(record, "relatedNameID")
		relationType := strings.ToLower(table.get(record, "type"))
		if fromID == "" || toID == "" || relationType == "" {
			skipped++
			continue
		}
		pending = append(pending, struct {
			fromID       string
			toID         string
			relationType string
		}{fromID: fromID, toID: toID, relationType: relationType})
		if len(pending) >= normalizeBatchSize {
			if err := flush(); err != nil {
				return err
			}
		}
	}
	if err := flush(); err != nil {
		return err
	}
	s.log.Info("name relations imported", "job_id", job.ID, "inserted", inserted, "skipped", skipped)
	return nil
}

// activate flips the source live so the matcher starts seeing the new
// corpus, and records the imported version.
func (s *importerService) activate(ctx context.Context, job *types.ImportJob) error {
	count, err := s.taxonRepo.Count(ctx, nil)
	if err != nil {
		return err
	}
	if err := s.sourceRepo.UpdateFields(ctx, nil, job.SourceID, map[string]interface{}{
		"is_active":        true,
		"imported_version": job.Version,
		"updated_at":       time.Now(),
	}); err != nil {
		return err
	}
	s.log.Info("source activated", "job_id", job.ID, "source_id", job.SourceID, "taxa", count)
	return nil
}
