package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const (
	VisibilityPrivate = "private"
	VisibilityFriends = "friends"
	VisibilityPublic  = "public"
)

// DexEntry is a single observation in a user's catalog.
type DexEntry struct {
	ID                uuid.UUID      `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	OwnerID           uuid.UUID      `gorm:"type:uuid;not null;index;uniqueIndex:ux_dex_owner_animal_date;column:owner_id" json:"owner_id"`
	AnimalID          uuid.UUID      `gorm:"type:uuid;not null;index;uniqueIndex:ux_dex_owner_animal_date;column:animal_id" json:"animal_id"`
	SourceVisionJobID *uuid.UUID     `gorm:"type:uuid;column:source_vision_job_id" json:"source_vision_job_id,omitempty"`
	OriginalImageKey  string         `gorm:"column:original_image_key" json:"-"`
	ProcessedImageKey string         `gorm:"column:processed_image_key" json:"-"`
	ImageChecksum     string         `gorm:"size:64;column:image_checksum" json:"image_checksum"`
	ImageUpdatedAt    *time.Time     `gorm:"column:image_updated_at" json:"image_updated_at,omitempty"`
	Latitude          *float64       `gorm:"column:latitude" json:"latitude,omitempty"`
	Longitude         *float64       `gorm:"column:longitude" json:"longitude,omitempty"`
	LocationName      string         `gorm:"column:location_name" json:"location_name"`
	Notes             string         `gorm:"column:notes" json:"notes"`
	Customizations    datatypes.JSON `gorm:"column:customizations" json:"customizations,omitempty"`
	CatchDate         time.Time      `gorm:"not null;uniqueIndex:ux_dex_owner_animal_date;column:catch_date" json:"catch_date"`
	Visibility        string         `gorm:"not null;default:'private';column:visibility" json:"visibility"`
	IsFavorite        bool           `gorm:"not null;default:false;column:is_favorite" json:"is_favorite"`
	CreatedAt         time.Time      `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt         time.Time      `gorm:"not null;default:now();index" json:"updated_at"`
}

func (DexEntry) TableName() string {
	return "dex_entry"
}
