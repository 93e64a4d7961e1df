package repos

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/biologidex-backend/internal/pkg/logger"
	"github.com/yungbote/biologidex-backend/internal/types"
)

type DataSourceRepo interface {
	GetOrCreate(ctx context.Context, tx *gorm.DB, code, name string, priority int) (*types.DataSource, error)
	UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, updates map[string]interface{}) error
}

type dataSourceRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewDataSourceRepo(db *gorm.DB, baseLog *logger.Logger) DataSourceRepo {
	return &dataSourceRepo{db: db, log: baseLog.With("repo", "DataSourceRepo")}
}

func (r *dataSourceRepo) getByCode(ctx context.Context, transaction *gorm.DB, code string) (*types.DataSource, error) {
	if code == "" {
		return nil, nil
	}
	var source types.DataSource
	err := transaction.WithContext(ctx).
		Where("code = ?", code).
		Limit(1).
		Find(&source).Error
	if err != nil {
		return nil, err
	}
	if source.ID == uuid.Nil {
		return nil, nil
	}
	return &source, nil
}

func (r *dataSourceRepo) GetOrCreate(ctx context.Context, tx *gorm.DB, code, name string, priority int) (*types.DataSource, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	existing, err := r.getByCode(ctx, transaction, code)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}
	source := &types.DataSource{Code: code, Name: name, Priority: priority}
	if err := transaction.WithContext(ctx).Create(source).Error; err != nil {
		return nil, err
	}
	return source, nil
}

func (r *dataSourceRepo) UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, updates map[string]interface{}) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil || len(updates) == 0 {
		return nil
	}
	return transaction.WithContext(ctx).
		Model(&types.DataSource{}).
		Where("id = ?", id).
		Updates(updates).Error
}
