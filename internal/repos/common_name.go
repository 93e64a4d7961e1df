package repos

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/yungbote/biologidex-backend/internal/pkg/logger"
	"github.com/yungbote/biologidex-backend/internal/types"
)

type CommonNameRepo interface {
	BulkInsert(ctx context.Context, tx *gorm.DB, names []*types.CommonName, batchSize int) error
	// FindTaxaByName resolves matcher-scoped taxa whose vernacular name
	// matches exactly (case-insensitive).
	FindTaxaByName(ctx context.Context, tx *gorm.DB, name, sourceCode string) ([]*types.Taxon, error)
	FindTaxaByNameContains(ctx context.Context, tx *gorm.DB, name, sourceCode string, limit int) ([]*types.Taxon, error)
}

type commonNameRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewCommonNameRepo(db *gorm.DB, baseLog *logger.Logger) CommonNameRepo {
	return &commonNameRepo{db: db, log: baseLog.With("repo", "CommonNameRepo")}
}

func (r *commonNameRepo) BulkInsert(ctx context.Context, tx *gorm.DB, names []*types.CommonName, batchSize int) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if len(names) == 0 {
		return nil
	}
	if batchSize <= 0 {
		batchSize = 1000
	}
	return transaction.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		CreateInBatches(names, batchSize).Error
}

func (r *commonNameRepo) taxaByNameQuery(ctx context.Context, transaction *gorm.DB, sourceCode string) *gorm.DB {
	q := transaction.WithContext(ctx).
		Model(&types.Taxon{}).
		Joins(`JOIN "common_name" ON "common_name"."taxon_id" = "taxon"."id"`).
		Joins(`JOIN "data_source" ON "data_source"."id" = "taxon"."source_id"`).
		Where(`"taxon"."status" IN ?`, matchableStatuses).
		Where(`"data_source"."is_active" = true`)
	if sourceCode != "" {
		q = q.Where(`"data_source"."code" = ?`, sourceCode)
	}
	return q.Order(`"data_source"."priority" ASC, "taxon"."completeness_score" DESC, "taxon"."confidence_score" DESC`)
}

func (r *commonNameRepo) FindTaxaByName(ctx context.Context, tx *gorm.DB, name, sourceCode string) ([]*types.Taxon, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.Taxon
	err := r.taxaByNameQuery(ctx, transaction, sourceCode).
		Where(`LOWER("common_name"."name") = LOWER(?)`, name).
		Distinct(`"taxon".*, "data_source"."priority"`).
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *commonNameRepo) FindTaxaByNameContains(ctx context.Context, tx *gorm.DB, name, sourceCode string, limit int) ([]*types.Taxon, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if limit <= 0 {
		limit = 10
	}
	var out []*types.Taxon
	err := r.taxaByNameQuery(ctx, transaction, sourceCode).
		Where(`"common_name"."name" ILIKE ?`, "%"+name+"%").
		Distinct(`"taxon".*, "data_source"."priority"`).
		Limit(limit).
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}
