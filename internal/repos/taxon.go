package repos

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/yungbote/biologidex-backend/internal/pkg/logger"
	"github.com/yungbote/biologidex-backend/internal/types"
)

// matchableStatuses is the status scope every matcher stage applies.
var matchableStatuses = []string{
	types.TaxonStatusAccepted,
	types.TaxonStatusProvisional,
	types.TaxonStatusSynonym,
}

type TaxonRepo interface {
	GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Taxon, error)
	MapSourceRowIDs(ctx context.Context, tx *gorm.DB, sourceID uuid.UUID, sourceTaxonIDs []string) (map[string]uuid.UUID, error)
	Upsert(ctx context.Context, tx *gorm.DB, taxon *types.Taxon) (*types.Taxon, error)
	UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, updates map[string]interface{}) error
	Count(ctx context.Context, tx *gorm.DB) (int64, error)

	// Matcher stages. All restrict to matchable statuses and rank candidates
	// by source priority (asc), completeness (desc), confidence (desc).
	FindExactFields(ctx context.Context, tx *gorm.DB, genus, species, subspecies, sourceCode string) ([]*types.Taxon, error)
	FindByScientificName(ctx context.Context, tx *gorm.DB, name, sourceCode string) ([]*types.Taxon, error)
	FindFuzzyFields(ctx context.Context, tx *gorm.DB, genus, species, sourceCode string) ([]*types.Taxon, error)
	FindByScientificNameContains(ctx context.Context, tx *gorm.DB, name, sourceCode string, limit int) ([]*types.Taxon, error)
	FindAcceptedByScientificName(ctx context.Context, tx *gorm.DB, name string) (*types.Taxon, error)
}

type taxonRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewTaxonRepo(db *gorm.DB, baseLog *logger.Logger) TaxonRepo {
	return &taxonRepo{db: db, log: baseLog.With("repo", "TaxonRepo")}
}

func (r *taxonRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Taxon, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil, nil
	}
	var taxon types.Taxon
	err := transaction.WithContext(ctx).
		Where("id = ?", id).
		Limit(1).
		Find(&taxon).Error
	if err != nil {
		return nil, err
	}
	if taxon.ID == uuid.Nil {
		return nil, nil
	}
	return &taxon, nil
}

func (r *taxonRepo) MapSourceRowIDs(ctx context.Context, tx *gorm.DB, sourceID uuid.UUID, sourceTaxonIDs []string) (map[string]uuid.UUID, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	out := make(map[string]uuid.UUID, len(sourceTaxonIDs))
	if len(sourceTaxonIDs) == 0 {
		return out, nil
	}
	var rows []struct {
		ID            uuid.UUID `gorm:"column:id"`
		SourceTaxonID string    `gorm:"column:source_taxon_id"`
	}
	if err := transaction.WithContext(ctx).
		Model(&types.Taxon{}).
		Select("id, source_taxon_id").
		Where("source_id = ? AND source_taxon_id IN ?", sourceID, sourceTaxonIDs).
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	for _, row := range rows {
		out[row.SourceTaxonID] = row.ID
	}
	return out, nil
}

func (r *taxonRepo) Upsert(ctx context.Context, tx *gorm.DB, taxon *types.Taxon) (*types.Taxon, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if taxon == nil {
		return nil, nil
	}
	err := transaction.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "source_id"}, {Name: "source_taxon_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"scientific_name", "authorship", "rank",
				"kingdom", "phylum", "class", "taxonomic_order", "family",
				"generic_name", "specific_epithet", "infraspecific_epithet",
				"status", "extinct", "environment", "nomenclatural_code",
				"source_url", "completeness_score", "confidence_score", "updated_at",
			}),
		}).
		Create(taxon).Error
	if err != nil {
		return nil, err
	}
	return taxon, nil
}

func (r *taxonRepo) UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, updates map[string]interface{}) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil || len(updates) == 0 {
		return nil
	}
	return transaction.WithContext(ctx).
		Model(&types.Taxon{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *taxonRepo) Count(ctx context.Context, tx *gorm.DB) (int64, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var count int64
	if err := transaction.WithContext(ctx).
		Model(&types.Taxon{}).
		Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// scopedQuery applies the matcher's status scope, optional source filter,
// and the cross-source candidate ordering.
func (r *taxonRepo) scopedQuery(ctx context.Context, transaction *gorm.DB, sourceCode string) *gorm.DB {
	q := transaction.WithContext(ctx).
		Model(&types.Taxon{}).
		Joins(`JOIN "data_source" ON "data_source"."id" = "taxon"."source_id"`).
		Where(`"taxon"."status" IN ?`, matchableStatuses).
		Where(`"data_source"."is_active" = true`)
	if sourceCode != "" {
		q = q.Where(`"data_source"."code" = ?`, sourceCode)
	}
	return q.Order(`"data_source"."priority" ASC, "taxon"."completeness_score" DESC, "taxon"."confidence_score" DESC`)
}

func (r *taxonRepo) FindExactFields(ctx context.Context, tx *gorm.DB, genus, species, subspecies, sourceCode string) ([]*types.Taxon, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	q := r.scopedQuery(ctx, transaction, sourceCode).
		Where(`LOWER("taxon"."generic_name") = LOWER(?) AND LOWER("taxon"."specific_epithet") = LOWER(?)`, genus, species)
	if subspecies != "" {
		q = q.Where(`LOWER("taxon"."infraspecific_epithet") = LOWER(?)`, subspecies)
	} else {
		q = q.Where(`("taxon"."infraspecific_epithet" IS NULL OR "taxon"."infraspecific_epithet" = '')`)
	}
	var out []*types.Taxon
	if err := q.Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *taxonRepo) FindByScientificName(ctx context.Context, tx *gorm.DB, name, sourceCode string) ([]*types.Taxon, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.Taxon
	err := r.scopedQuery(ctx, transaction, sourceCode).
		Where(`LOWER("taxon"."scientific_name") = LOWER(?)`, name).
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *taxonRepo) FindFuzzyFields(ctx context.Context, tx *gorm.DB, genus, species, sourceCode string) ([]*types.Taxon, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.Taxon
	err := r.scopedQuery(ctx, transaction, sourceCode).
		Where(`LOWER("taxon"."generic_name") = LOWER(?) AND LOWER("taxon"."specific_epithet") = LOWER(?)`, genus, species).
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *taxonRepo) FindByScientificNameContains(ctx context.Context, tx *gorm.DB, name, sourceCode string, limit int) ([]*types.Taxon, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if limit <= 0 {
		limit = 10
	}
	var out []*types.Taxon
	err := r.scopedQuery(ctx, transaction, sourceCode).
		Where(`"taxon"."scientific_name" ILIKE ?`, "%"+name+"%").
		Limit(limit).
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *taxonRepo) FindAcceptedByScientificName(ctx context.Context, tx *gorm.DB, name string) (*types.Taxon, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var taxon types.Taxon
	err := transaction.WithContext(ctx).
		Where("LOWER(scientific_name) = LOWER(?) AND status = ?", name, types.TaxonStatusAccepted).
		Order("completeness_score DESC, confidence_score DESC").
		Limit(1).
		Find(&taxon).Error
	if err != nil {
		return nil, err
	}
	if taxon.ID == uuid.Nil {
		return nil, nil
	}
	return &taxon, nil
}
