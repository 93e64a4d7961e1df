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

type AnalysisJobRepo interface {
	Create(ctx context.Context, tx *gorm.DB, job *types.AnalysisJob) (*types.AnalysisJob, error)
	GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.AnalysisJob, error)
	ListByUser(ctx context.Context, tx *gorm.DB, userID uuid.UUID, status string, limit int) ([]*types.AnalysisJob, error)
	UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, updates map[string]interface{}) error
	// ClaimNextRunnable picks up a pending job whose next attempt is due, or
	// a processing job whose heartbeat went stale, locking with SKIP LOCKED
	// so concurrent workers never double-claim.
	ClaimNextRunnable(ctx context.Context, tx *gorm.DB, staleRunning time.Duration) (*types.AnalysisJob, error)
	Heartbeat(ctx context.Context, tx *gorm.DB, id uuid.UUID) error
}

type analysisJobRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewAnalysisJobRepo(db *gorm.DB, baseLog *logger.Logger) AnalysisJobRepo {
	return &analysisJobRepo{db: db, log: baseLog.With("repo", "AnalysisJobRepo")}
}

func (r *analysisJobRepo) Create(ctx context.Context, tx *gorm.DB, job *types.AnalysisJob) (*types.AnalysisJob, error) {
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

func (r *analysisJobRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.AnalysisJob, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil, nil
	}
	var job types.AnalysisJob
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

func (r *analysisJobRepo) ListByUser(ctx context.Context, tx *gorm.DB, userID uuid.UUID, status string, limit int) ([]*types.AnalysisJob, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	q := transaction.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC")
	if status != "" {
		q = q.Where("status = ?", status)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	var jobs []*types.AnalysisJob
	if err := q.Find(&jobs).Error; err != nil {
		return nil, err
	}
	return jobs, nil
}

func (r *analysisJobRepo) UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, updates map[string]interface{}) error {
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
		Model(&types.AnalysisJob{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *analysisJobRepo) ClaimNextRunnable(ctx context.Context, tx *gorm.DB, staleRunning time.Duration) (*types.AnalysisJob, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	now := time.Now()
	staleCutoff := now.Add(-staleRunning)
	var claimed *types.AnalysisJob
	err := transaction.WithContext(ctx).Transaction(func(txx *gorm.DB) error {
		var job types.AnalysisJob
		q := txx.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
			Where(`
				(
					status = ?
					AND (next_attempt_at IS NULL OR next_attempt_at <= ?)
				)
				OR (
					status = ?
					AND heartbeat_at IS NOT NULL
					AND heartbeat_at < ?
				)
			`, types.JobStatusPending, now, types.JobStatusProcessing, staleCutoff).
			Order("created_at ASC")
		qErr := q.First(&job).Error
		if errors.Is(qErr, gorm.ErrRecordNotFound) {
			return nil
		}
		if qErr != nil {
			return qErr
		}
		uErr := txx.Model(&types.AnalysisJob{}).
			Where("id = ?", job.ID).
			Updates(map[string]interface{}{
				"status":       types.JobStatusProcessing,
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

func (r *analysisJobRepo) Heartbeat(ctx context.Context, tx *gorm.DB, id uuid.UUID) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil
	}
	now := time.Now()
	return transaction.WithContext(ctx).
		Model(&types.AnalysisJob{}).
		Where("id = ? AND status = ?", id, types.JobStatusProcessing).
		Updates(map[string]interface{}{
			"heartbeat_at": now,
			"updated_at":   now,
		}).Error
}
