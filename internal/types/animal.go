package types

import (
	"time"

	"github.com/google/uuid"
)

// Animal is the catalog's species-level record, unique by scientific name.
// CreationIndex is the "dex number": assigned max+1 at insert, dense at
// insert time, recompacted only by the administrative renumber.
type Animal struct {
	ID                   uuid.UUID  `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	ScientificName       string     `gorm:"uniqueIndex;not null;column:scientific_name" json:"scientific_name"`
	CommonName           string     `gorm:"column:common_name" json:"common_name"`
	Kingdom              string     `gorm:"column:kingdom" json:"kingdom"`
	Phylum               string     `gorm:"column:phylum" json:"phylum"`
	Class                string     `gorm:"column:class" json:"class"`
	TaxonomicOrder       string     `gorm:"column:taxonomic_order" json:"order"`
	Family               string     `gorm:"column:family" json:"family"`
	Genus                string     `gorm:"column:genus" json:"genus"`
	Species              string     `gorm:"column:species" json:"species"`
	CreationIndex        int        `gorm:"uniqueIndex;not null;column:creation_index" json:"creation_index"`
	CreatedByUserID      *uuid.UUID `gorm:"type:uuid;column:created_by_user_id" json:"created_by_user_id,omitempty"`
	Verified             bool       `gorm:"not null;default:false;column:verified" json:"verified"`
	VerificationMethod   string     `gorm:"column:verification_method" json:"verification_method"`
	TaxonomyID           *uuid.UUID `gorm:"type:uuid;column:taxonomy_id" json:"taxonomy_id,omitempty"`
	TaxonomyConfidence   float64    `gorm:"column:taxonomy_confidence" json:"taxonomy_confidence"`
	CreatedAt            time.Time  `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt            time.Time  `gorm:"not null;default:now()" json:"updated_at"`
}

func (Animal) TableName() string {
	return "animal"
}
