package repos

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/yungbote/biologidex-backend/internal/pkg/logger"
	"github.com/yungbote/biologidex-backend/internal/types"
)

// activeImportStatuses are the states that make a source's import exclusive.
var activeImportStatuses = []string{
	types.ImportStatusPending,
	types.ImportStatusDownloading,
	types.ImportStatusProcessing,
	types.ImportStatusValidating,
	types.ImportStatusImporting,
}

type ImportJobRepo interface {
	Create(ctx context.Context, tx *gorm.DB, job *types.ImportJob) (*types.ImportJob, error)
	GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.ImportJob, error)
	GetActiveBySource(ctx context.Context, tx *gorm.DB, sourceID uuid.UUID) (*types.ImportJob, error)
	UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, updates map[string]interface{}) error
	ClaimNextRunnable(ctx context.Context, tx *gorm.DB, maxAttempts int, staleRunning time.Duration) (*types.ImportJob, error)
	Heartbeat(ctx context.Context, tx *gorm.DB, id uuid.UUID) error
}

type importJobRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewImportJobRepo(db *gorm.DB, baseLog *logger.Logger) ImportJobRepo {
	return &importJobRepo{db: db, log: baseLog.With("repo", "ImportJobRepo")}
}

func (r *importJobRepo) Create(ctx context.Context, tx *gorm.DB, job *types.ImportJob) (*types.ImportJob, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if job == nil {
		return nil, nil
	}
	if err := transaction.WithContext(ctx).Create(job).Error; err != nil {
		return nil, err
	}
	return job, nil
}

func (r *importJobRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.ImportJob, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil, nil
	}
	var job types.ImportJob
	err := transaction.WithContext(ctx).
		Where("id = ?", id).
		Limit(1).
		Find(&job).Error
	if err != nil {
		return nil, err
	}
	if job.ID == uuid.Nil {
		return nil, nil
	}
	return &job, nil
}

func (r *importJobRepo) GetActiveBySource(ctx context.Context, tx *gorm.DB, sourceID uuid.UUID) (*types.ImportJob, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var job types.ImportJob
	err := transaction.WithContext(ctx).
		Where("source_id = ? AND status IN ?", sourceID, activeImportStatuses).
		Order("created_at DESC").
		Limit(1).
		Find(&job).Error
	if err != nil {
		return nil, err
	}
	if job.ID == uuid.Nil {
		return nil, nil
	}
	return &job, nil
}

func (r *importJobRepo) UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, updates map[string]interface{}) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil
	}
	if updates == nil {
		updates = map[string]interface{}{}
	}
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now()
	}
	return transaction.WithContext(ctx).
		Model(&types.ImportJob{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *importJobRepo) ClaimNextRunnable(ctx context.Context, tx *gorm.DB, maxAttempts int, staleRunning time.Duration) (*types.ImportJob, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	now := time.Now()
	staleCutoff := now.Add(-staleRunning)
	var claimed *types.ImportJob
	err := transaction.WithContext(ctx).Transaction(func(txx *gorm.DB) error {
		var job types.ImportJob
		q := txx.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
			Where(`
				(
					status = ?
					AND (next_attempt_at IS NULL OR next_attempt_at <= ?)
				)
				OR (
					status = ?
					AND retry_count < ?
					AND next_attempt_at IS NOT NULL
					AND next_attempt_at <= ?
				)
				OR (
					status IN ?
					AND heartbeat_at IS NOT NULL
					AND heartbeat_at < ?
				)
			`, types.ImportStatusPending, now,
				types.ImportStatusFailed, maxAttempts, now,
				[]string{types.ImportStatusDownloading, types.ImportStatusProcessing, types.ImportStatusValidating, types.ImportStatusImporting}, staleCutoff).
			Order("created_at ASC")
		qErr := q.First(&job).Error
		if errors.Is(qErr, gorm.ErrRecordNotFound) {
			return nil
		}
		if qErr != nil {
			return qErr
		}
		uErr := txx.Model(&types.ImportJob{}).
			Where("id = ?", job.ID).
			Updates(map[string]interface{}{
				"locked_at":    now,
				"heartbeat_at": now,
				"updated_at":   now,
			}).Error
		if uErr != nil {
			return uErr
		}
		claimed = &job
		return nil
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

func (r *importJobRepo) Heartbeat(ctx context.Context, tx *gorm.DB, id uuid.UUID) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil
	}
	now := time.Now()
	return transaction.WithContext(ctx).
		Model(&types.ImportJob{}).
		Where("id = ? AND status IN ?", id, activeImportStatuses).
		Updates(map[string]interface{}{
			"heartbeat_at": now,
			"updated_at":   now,
		}).Error
}
