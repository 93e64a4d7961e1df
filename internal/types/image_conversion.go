package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// ImageConversion holds a normalized upload until a vision job binds it.
// Unbound rows are reaped after expiry.
type ImageConversion struct {
	ID                 uuid.UUID      `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	UserID             uuid.UUID      `gorm:"type:uuid;not null;index;column:user_id" json:"user_id"`
	OriginalBucketKey  string         `gorm:"not null;column:original_bucket_key" json:"-"`
	ConvertedBucketKey string         `gorm:"not null;column:converted_bucket_key" json:"-"`
	OriginalFormat     string         `gorm:"column:original_format" json:"original_format"`
	OriginalWidth      int            `gorm:"column:original_width" json:"original_width"`
	OriginalHeight     int            `gorm:"column:original_height" json:"original_height"`
	ConvertedWidth     int            `gorm:"column:converted_width" json:"converted_width"`
	ConvertedHeight    int            `gorm:"column:converted_height" json:"converted_height"`
	FileSize           int64          `gorm:"column:file_size" json:"file_size"`
	Transformations    datatypes.JSON `gorm:"column:transformations" json:"transformations_applied"`
	Checksum           string         `gorm:"size:64;column:checksum" json:"checksum"`
	Bound              bool           `gorm:"not null;default:false;index;column:bound" json:"bound"`
	ExpiresAt          time.Time      `gorm:"not null;index;column:expires_at" json:"expires_at"`
	CreatedAt          time.Time      `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt          time.Time      `gorm:"not null;default:now()" json:"updated_at"`
}

func (ImageConversion) TableName() string {
	return "image_conversion"
}
