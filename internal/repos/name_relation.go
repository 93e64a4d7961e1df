package repos

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/yungbote/biologidex-backend/internal/pkg/logger"
	"github.com/yungbote/biologidex-backend/internal/types"
)

type NameRelationRepo interface {
	BulkInsert(ctx context.Context, tx *gorm.DB, relations []*types.NameRelation, batchSize int) error
	// FindRelatedAccepted walks relations of the given types from the taxon
	// to accepted taxa, best candidate first.
	FindRelatedAccepted(ctx context.Context, tx *gorm.DB, taxonID uuid.UUID, relationTypes []string) (*types.Taxon, error)
}

type nameRelationRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewNameRelationRepo(db *gorm.DB, baseLog *logger.Logger) NameRelationRepo {
	return &nameRelationRepo{db: db, log: baseLog.With("repo", "NameRelationRepo")}
}

func (r *nameRelationRepo) BulkInsert(ctx context.Context, tx *gorm.DB, relations []*types.NameRelation, batchSize int) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if len(relations) == 0 {
		return nil
	}
	if batchSize <= 0 {
		batchSize = 1000
	}
	return transaction.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		CreateInBatches(relations, batchSize).Error
}

func (r *nameRelationRepo) FindRelatedAccepted(ctx context.Context, tx *gorm.DB, taxonID uuid.UUID, relationTypes []string) (*types.Taxon, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if taxonID == uuid.Nil || len(relationTypes) == 0 {
		return nil, nil
	}
	var taxon types.Taxon
	err := transaction.WithContext(ctx).
		Model(&types.Taxon{}).
		Joins(`JOIN "name_relation" ON "name_relation"."related_taxon_id" = "taxon"."id"`).
		Where(`"name_relation"."taxon_id" = ? AND "name_relation"."type" IN ?`, taxonID, relationTypes).
		Where(`"taxon"."status" = ?`, types.TaxonStatusAccepted).
		Order(`"taxon"."completeness_score" DESC, "taxon"."confidence_score" DESC`).
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
