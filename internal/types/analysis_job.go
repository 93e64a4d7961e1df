package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const (
	JobStatusPending    = "pending"
	JobStatusProcessing = "processing"
	JobStatusCompleted  = "completed"
	JobStatusFailed     = "failed"
)

// DetectedAnimal is one entity parsed out of the vision prediction.
// The slice is stored on the job as jsonb, ordered as predicted.
type DetectedAnimal struct {
	ScientificName string     `json:"scientific_name"`
	CommonName     string     `json:"common_name"`
	Confidence     float64    `json:"confidence"`
	AnimalID       *uuid.UUID `json:"animal_id"`
	IsNew          bool       `json:"is_new"`
}

type AnalysisJob struct {
	ID                   uuid.UUID      `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	UserID               uuid.UUID      `gorm:"type:uuid;not null;index;column:user_id" json:"user_id"`
	ConversionID         *uuid.UUID     `gorm:"type:uuid;index;column:conversion_id" json:"conversion_id,omitempty"`
	OriginalBucketKey    string         `gorm:"column:original_bucket_key" json:"-"`
	ProcessedBucketKey   string         `gorm:"column:processed_bucket_key" json:"-"`
	Status               string         `gorm:"not null;default:'pending';index;column:status" json:"status"`
	CVMethod             string         `gorm:"not null;default:'openai';column:cv_method" json:"cv_method"`
	ModelName            string         `gorm:"column:model_name" json:"model_name"`
	DetailLevel          string         `gorm:"column:detail_level" json:"detail_level"`
	PostTransformations  datatypes.JSON `gorm:"column:post_transformations" json:"post_conversion_transformations,omitempty"`
	RawResponse          datatypes.JSON `gorm:"column:raw_response" json:"-"`
	ParsedPrediction     string         `gorm:"column:parsed_prediction" json:"parsed_prediction"`
	DetectedAnimals      datatypes.JSON `gorm:"column:detected_animals" json:"detected_animals"`
	SelectedIndex        *int           `gorm:"column:selected_index" json:"selected_animal_index,omitempty"`
	IdentifiedAnimalID   *uuid.UUID     `gorm:"type:uuid;column:identified_animal_id" json:"identified_animal_id,omitempty"`
	CostUSD              float64        `gorm:"column:cost_usd" json:"cost_usd"`
	ProcessingTimeSecs   float64        `gorm:"column:processing_time_secs" json:"processing_time"`
	InputTokens          int            `gorm:"column:input_tokens" json:"input_tokens"`
	OutputTokens         int            `gorm:"column:output_tokens" json:"output_tokens"`
	RetryCount           int            `gorm:"not null;default:0;column:retry_count" json:"retry_count"`
	ErrorMessage         string         `gorm:"column:error_message" json:"error_message,omitempty"`
	LockedAt             *time.Time     `gorm:"column:locked_at" json:"-"`
	HeartbeatAt          *time.Time     `gorm:"column:heartbeat_at" json:"-"`
	NextAttemptAt        *time.Time     `gorm:"index;column:next_attempt_at" json:"-"`
	CompletedAt          *time.Time     `gorm:"column:completed_at" json:"completed_at,omitempty"`
	CreatedAt            time.Time      `gorm:"not null;default:now();index" json:"created_at"`
	UpdatedAt            time.Time      `gorm:"not null;default:now()" json:"updated_at"`
}

func (AnalysisJob) TableName() string {
	return "analysis_job"
}
