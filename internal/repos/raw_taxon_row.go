package repos

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/biologidex-backend/internal/pkg/logger"
	"github.com/yungbote/biologidex-backend/internal/types"
)

type RawTaxonRowRepo interface {
	// BulkInsert writes staged rows in batches; when a batch fails it falls
	// back to single-row inserts so one bad record does not sink the batch.
	// Returns the number of rows that could not be inserted.
	BulkInsert(ctx context.Context, tx *gorm.DB, rows []*types.RawTaxonRow, batchSize int) (int64, []string, error)
	// SnapshotUnprocessedIDs materializes the work set before normalization
	// mutates is_processed. Iterating a live filter would skip rows.
	SnapshotUnprocessedIDs(ctx context.Context, tx *gorm.DB, importJobID uuid.UUID) ([]uuid.UUID, error)
	GetByIDs(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) ([]*types.RawTaxonRow, error)
	MarkProcessed(ctx context.Context, tx *gorm.DB, id uuid.UUID, processingError string) error
}

type rawTaxonRowRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewRawTaxonRowRepo(db *gorm.DB, baseLog *logger.Logger) RawTaxonRowRepo {
	return &rawTaxonRowRepo{db: db, log: baseLog.With("repo", "RawTaxonRowRepo")}
}

func (r *rawTaxonRowRepo) BulkInsert(ctx context.Context, tx *gorm.DB, rows []*types.RawTaxonRow, batchSize int) (int64, []string, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if len(rows) == 0 {
		return 0, nil, nil
	}
	if batchSize <= 0 {
		batchSize = 5000
	}
	var failed int64
	var errMsgs []string
	for start := 0; start < len(rows); start += batchSize {
		end := start + batchSize
		if end > len(rows) {
			end = len(rows)
		}
		batch := rows[start:end]
		if err := transaction.WithContext(ctx).Create(&batch).Error; err == nil {
			continue
		}
		// Batch failed: isolate the bad rows one by one.
		for _, row := range batch {
			if err := transaction.WithContext(ctx).Create(row).Error; err != nil {
				failed++
				if len(errMsgs) < 20 {
					errMsgs = append(errMsgs, err.Error())
				}
			}
		}
	}
	return failed, errMsgs, nil
}

func (r *rawTaxonRowRepo) SnapshotUnprocessedIDs(ctx context.Context, tx *gorm.DB, importJobID uuid.UUID) ([]uuid.UUID, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var ids []uuid.UUID
	if err := transaction.WithContext(ctx).
		Model(&types.RawTaxonRow{}).
		Where("import_job_id = ? AND is_processed = false", importJobID).
		Order("created_at ASC").
		Pluck("id", &ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}

func (r *rawTaxonRowRepo) GetByIDs(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) ([]*types.RawTaxonRow, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.RawTaxonRow
	if len(ids) == 0 {
		return out, nil
	}
	if err := transaction.WithContext(ctx).
		Where("id IN ?", ids).
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *rawTaxonRowRepo) MarkProcessed(ctx context.Context, tx *gorm.DB, id uuid.UUID, processingError string) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	updates := map[string]interface{}{"is_processed": true}
	if processingError != "" {
		updates["processing_errors"] = processingError
	}
	return transaction.WithContext(ctx).
		Model(&types.RawTaxonRow{}).
		Where("id = ?", id).
		Updates(updates).Error
}
