package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const (
	TaxonStatusAccepted    = "accepted"
	TaxonStatusProvisional = "provisional"
	TaxonStatusSynonym     = "synonym"
	TaxonStatusAmbiguous   = "ambiguous"
	TaxonStatusMisapplied  = "misapplied"
	TaxonStatusDoubtful    = "doubtful"
)

// DataSource is one imported reference dataset (e.g. Catalogue of Life).
// Lower priority wins when the matcher ranks candidates across sources.
type DataSource struct {
	ID              uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	Code            string    `gorm:"uniqueIndex;not null;column:code" json:"code"`
	Name            string    `gorm:"not null;column:name" json:"name"`
	Priority        int       `gorm:"not null;default:100;column:priority" json:"priority"`
	IsActive        bool      `gorm:"not null;default:false;column:is_active" json:"is_active"`
	ImportedVersion string    `gorm:"column:imported_version" json:"imported_version"`
	CreatedAt       time.Time `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt       time.Time `gorm:"not null;default:now()" json:"updated_at"`
}

func (DataSource) TableName() string {
	return "data_source"
}

// Taxon is a normalized row of the reference corpus.
type Taxon struct {
	ID                   uuid.UUID      `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	SourceID             uuid.UUID      `gorm:"type:uuid;not null;index;uniqueIndex:ux_taxon_source_row;column:source_id" json:"source_id"`
	SourceTaxonID        string         `gorm:"not null;uniqueIndex:ux_taxon_source_row;column:source_taxon_id" json:"source_taxon_id"`
	ScientificName       string         `gorm:"not null;index;column:scientific_name" json:"scientific_name"`
	Authorship           string         `gorm:"column:authorship" json:"authorship"`
	Rank                 string         `gorm:"index;column:rank" json:"rank"`
	Kingdom              string         `gorm:"column:kingdom" json:"kingdom"`
	Phylum               string         `gorm:"column:phylum" json:"phylum"`
	Class                string         `gorm:"column:class" json:"class"`
	TaxonomicOrder       string         `gorm:"column:taxonomic_order" json:"order"`
	Family               string         `gorm:"column:family" json:"family"`
	GenericName          string         `gorm:"index:ix_taxon_binomial;column:generic_name" json:"generic_name"`
	SpecificEpithet      string         `gorm:"index:ix_taxon_binomial;column:specific_epithet" json:"specific_epithet"`
	InfraspecificEpithet string         `gorm:"column:infraspecific_epithet" json:"infraspecific_epithet"`
	Status               string         `gorm:"not null;index;column:status" json:"status"`
	Extinct              bool           `gorm:"not null;default:false;column:extinct" json:"extinct"`
	Environment          datatypes.JSON `gorm:"column:environment" json:"environment,omitempty"`
	NomenclaturalCode    string         `gorm:"column:nomenclatural_code" json:"nomenclatural_code"`
	ParentID             *uuid.UUID     `gorm:"type:uuid;index;column:parent_id" json:"parent_id,omitempty"`
	AcceptedNameID       *uuid.UUID     `gorm:"type:uuid;index;column:accepted_name_id" json:"accepted_name_id,omitempty"`
	SourceURL            string         `gorm:"column:source_url" json:"source_url"`
	CompletenessScore    float64        `gorm:"not null;default:0;column:completeness_score" json:"completeness_score"`
	ConfidenceScore      float64        `gorm:"not null;default:0;column:confidence_score" json:"confidence_score"`
	CreatedAt            time.Time      `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt            time.Time      `gorm:"not null;default:now()" json:"updated_at"`
}

func (Taxon) TableName() string {
	return "taxon"
}

type CommonName struct {
	ID          uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	TaxonID     uuid.UUID `gorm:"type:uuid;not null;index;uniqueIndex:ux_common_name;column:taxon_id" json:"taxon_id"`
	Name        string    `gorm:"not null;index;uniqueIndex:ux_common_name;column:name" json:"name"`
	Language    string    `gorm:"uniqueIndex:ux_common_name;column:language" json:"language"`
	Country     string    `gorm:"uniqueIndex:ux_common_name;column:country" json:"country"`
	IsPreferred bool      `gorm:"not null;default:false;column:is_preferred" json:"is_preferred"`
	CreatedAt   time.Time `gorm:"not null;default:now()" json:"created_at"`
}

func (CommonName) TableName() string {
	return "common_name"
}

// NameRelation links two taxa of the same source (spelling correction,
// basionym, homotypic synonym, ...). Fallback path for synonym resolution
// when accepted_name_id is null.
type NameRelation struct {
	ID             uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	TaxonID        uuid.UUID `gorm:"type:uuid;not null;index;column:taxon_id" json:"taxon_id"`
	RelatedTaxonID uuid.UUID `gorm:"type:uuid;not null;index;column:related_taxon_id" json:"related_taxon_id"`
	Type           string    `gorm:"not null;column:type" json:"type"`
	CreatedAt      time.Time `gorm:"not null;default:now()" json:"created_at"`
}

func (NameRelation) TableName() string {
	return "name_relation"
}
