package repos

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/yungbote/biologidex-backend/internal/pkg/logger"
	"github.com/yungbote/biologidex-backend/internal/types"
)

type ImageConversionRepo interface {
	Create(ctx context.Context, tx *gorm.DB, conv *types.ImageConversion) (*types.ImageConversion, error)
	GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.ImageConversion, error)
	// Bind marks a conversion as referenced by a job. It locks the row so a
	// concurrent reap cannot delete it mid-bind. The row is bound only when
	// it belongs to ownerID and has not expired; otherwise it is returned
	// unchanged so the caller can tell why the claim failed. Returns nil
	// when the row no longer exists.
	Bind(ctx context.Context, tx *gorm.DB, id, ownerID uuid.UUID) (*types.ImageConversion, error)
	// ReapExpired deletes unbound rows past expiry, plus unbound rows older
	// than the hard age cutoff. Returns the deleted rows so the caller can
	// remove their bucket objects.
	ReapExpired(ctx context.Context, tx *gorm.DB, hardAge time.Duration) ([]*types.ImageConversion, error)
}

type imageConversionRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewImageConversionRepo(db *gorm.DB, baseLog *logger.Logger) ImageConversionRepo {
	return &imageConversionRepo{db: db, log: baseLog.With("repo", "ImageConversionRepo")}
}

func (r *imageConversionRepo) Create(ctx context.Context, tx *gorm.DB, conv *types.ImageConversion) (*types.ImageConversion, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if conv == nil {
		return nil, nil
	}
	if err := transaction.WithContext(ctx).Create(conv).Error; err != nil {
		return nil, err
	}
	return conv, nil
}

func (r *imageConversionRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.ImageConversion, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil, nil
	}
	var conv types.ImageConversion
	err := transaction.WithContext(ctx).
		Where("id = ?", id).
		Limit(1).
		Find(&conv).Error
	if err != nil {
		return nil, err
	}
	if conv.ID == uuid.Nil {
		return nil, nil
	}
	return &conv, nil
}

func (r *imageConversionRepo) Bind(ctx context.Context, tx *gorm.DB, id, ownerID uuid.UUID) (*types.ImageConversion, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var bound *types.ImageConversion
	err := transaction.WithContext(ctx).Transaction(func(txx *gorm.DB) error {
		var conv types.ImageConversion
		qErr := txx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", id).
			Limit(1).
			Find(&conv).Error
		if qErr != nil {
			return qErr
		}
		if conv.ID == uuid.Nil {
			return nil
		}
		now := time.Now()
		if !conv.Bound && conv.UserID == ownerID && now.Before(conv.ExpiresAt) {
			if uErr := txx.Model(&types.ImageConversion{}).
				Where("id = ?", conv.ID).
				Updates(map[string]interface{}{"bound": true, "updated_at": now}).Error; uErr != nil {
				return uErr
			}
			conv.Bound = true
		}
		bound = &conv
		return nil
	})
	if err != nil {
		return nil, err
	}
	return bound, nil
}

func (r *imageConversionRepo) ReapExpired(ctx context.Context, tx *gorm.DB, hardAge time.Duration) ([]*types.ImageConversion, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	now := time.Now()
	ageCutoff := now.Add(-hardAge)
	var reaped []*types.ImageConversion
	err := transaction.WithContext(ctx).Transaction(func(txx *gorm.DB) error {
		var rows []*types.ImageConversion
		qErr := txx.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
			Where("bound = false AND (expires_at < ? OR created_at < ?)", now, ageCutoff).
			Find(&rows).Error
		if qErr != nil {
			return qErr
		}
		if len(rows) == 0 {
			return nil
		}
		ids := make([]uuid.UUID, 0, len(rows))
		for _, row := range rows {
			ids = append(ids, row.ID)
		}
		if dErr := txx.Where("id IN ?", ids).Delete(&types.ImageConversion{}).Error; dErr != nil {
			return dErr
		}
		reaped = rows
		return nil
	})
	if err != nil {
		return nil, err
	}
	return reaped, nil
}
