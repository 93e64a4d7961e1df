package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const (
	ImportStatusPending     = "pending"
	ImportStatusDownloading = "downloading"
	ImportStatusProcessing  = "processing"
	ImportStatusValidating  = "validating"
	ImportStatusImporting   = "importing"
	ImportStatusCompleted   = "completed"
	ImportStatusFailed      = "failed"
	ImportStatusCancelled   = "cancelled"
)

type ImportJob struct {
	ID              uuid.UUID      `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	SourceID        uuid.UUID      `gorm:"type:uuid;not null;index;column:source_id" json:"source_id"`
	Version         string         `gorm:"column:version" json:"version"`
	Status          string         `gorm:"not null;default:'pending';index;column:status" json:"status"`
	RecordsTotal    int64          `gorm:"not null;default:0;column:records_total" json:"records_total"`
	RecordsImported int64          `gorm:"not null;default:0;column:records_imported" json:"records_imported"`
	RecordsFailed   int64          `gorm:"not null;default:0;column:records_failed" json:"records_failed"`
	ErrorLog        datatypes.JSON `gorm:"column:error_log" json:"error_log,omitempty"`
	Metadata        datatypes.JSON `gorm:"column:metadata" json:"metadata,omitempty"`
	FilePath        string         `gorm:"column:file_path" json:"file_path"`
	FileSize        int64          `gorm:"column:file_size" json:"file_size"`
	ErrorMessage    string         `gorm:"column:error_message" json:"error_message,omitempty"`
	RetryCount      int            `gorm:"not null;default:0;column:retry_count" json:"retry_count"`
	LockedAt        *time.Time     `gorm:"column:locked_at" json:"-"`
	HeartbeatAt     *time.Time     `gorm:"column:heartbeat_at" json:"-"`
	NextAttemptAt   *time.Time     `gorm:"index;column:next_attempt_at" json:"-"`
	CompletedAt     *time.Time     `gorm:"column:completed_at" json:"completed_at,omitempty"`
	CreatedAt       time.Time      `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt       time.Time      `gorm:"not null;default:now()" json:"updated_at"`
}

func (ImportJob) TableName() string {
	return "import_job"
}

// RawTaxonRow is one verbatim staging row from NameUsage.tsv. Every row is
// retained regardless of status; normalization marks it processed.
type RawTaxonRow struct {
	ID                   uuid.UUID      `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	ImportJobID          uuid.UUID      `gorm:"type:uuid;not null;index;column:import_job_id" json:"import_job_id"`
	SourceTaxonID        string         `gorm:"not null;index;column:source_taxon_id" json:"source_taxon_id"`
	ScientificName       string         `gorm:"column:scientific_name" json:"scientific_name"`
	Authorship           string         `gorm:"column:authorship" json:"authorship"`
	Rank                 string         `gorm:"column:rank" json:"rank"`
	Status               string         `gorm:"column:status" json:"status"`
	ParentSourceID       string         `gorm:"index;column:parent_source_id" json:"parent_source_id"`
	Kingdom              string         `gorm:"column:kingdom" json:"kingdom"`
	Phylum               string         `gorm:"column:phylum" json:"phylum"`
	Class                string         `gorm:"column:class" json:"class"`
	TaxonomicOrder       string         `gorm:"column:taxonomic_order" json:"order"`
	Family               string         `gorm:"column:family" json:"family"`
	Genus                string         `gorm:"column:genus" json:"genus"`
	SpecificEpithet      string         `gorm:"column:specific_epithet" json:"specific_epithet"`
	InfraspecificEpithet string         `gorm:"column:infraspecific_epithet" json:"infraspecific_epithet"`
	NomenclaturalCode    string         `gorm:"column:nomenclatural_code" json:"nomenclatural_code"`
	Environment          string         `gorm:"column:environment" json:"environment"`
	Extinct              string         `gorm:"column:extinct" json:"extinct"`
	Link                 string         `gorm:"column:link" json:"link"`
	Extras               datatypes.JSON `gorm:"column:extras" json:"extras,omitempty"`
	IsProcessed          bool           `gorm:"not null;default:false;index;column:is_processed" json:"is_processed"`
	ProcessingErrors     string         `gorm:"column:processing_errors" json:"processing_errors,omitempty"`
	CreatedAt            time.Time      `gorm:"not null;default:now()" json:"created_at"`
}

func (RawTaxonRow) TableName() string {
	return "raw_taxon_row"
}
