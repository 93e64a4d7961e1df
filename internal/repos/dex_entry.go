package repos

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/biologidex-backend/internal/pkg/logger"
	"github.com/yungbote/biologidex-backend/internal/types"
)

// ScopedCapture is one (owner, animal) aggregate inside a tree scope.
type ScopedCapture struct {
	AnimalID   uuid.UUID `gorm:"column:animal_id"`
	OwnerID    uuid.UUID `gorm:"column:owner_id"`
	Captures   int64     `gorm:"column:captures"`
	FirstCatch time.Time `gorm:"column:first_catch"`
}

type DexEntryRepo interface {
	Create(ctx context.Context, tx *gorm.DB, entry *types.DexEntry) (*types.DexEntry, error)
	GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.DexEntry, error)
	UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, updates map[string]interface{}) error
	Delete(ctx context.Context, tx *gorm.DB, id uuid.UUID) error
	ListByOwner(ctx context.Context, tx *gorm.DB, ownerID uuid.UUID, favoritesOnly bool) ([]*types.DexEntry, error)
	ListUpdatedSince(ctx context.Context, tx *gorm.DB, ownerID uuid.UUID, since time.Time) ([]*types.DexEntry, error)
	// ListVisibleTo returns entries owned by any of ownerIDs that the
	// requester may read: own rows, public rows, and friends rows when the
	// owner is in friendIDs.
	ListVisibleTo(ctx context.Context, tx *gorm.DB, requester uuid.UUID, ownerIDs, friendIDs []uuid.UUID) ([]*types.DexEntry, error)
	ExistsForOwnerAnimalDate(ctx context.Context, tx *gorm.DB, ownerID, animalID uuid.UUID, catchDate time.Time) (bool, error)
	ScopedCaptures(ctx context.Context, tx *gorm.DB, userIDs []uuid.UUID) ([]*ScopedCapture, error)
	ScopedCapturesGlobal(ctx context.Context, tx *gorm.DB) ([]*ScopedCapture, error)
	CountByOwner(ctx context.Context, tx *gorm.DB, ownerID uuid.UUID) (int64, error)
	DistinctAnimalCountByOwner(ctx context.Context, tx *gorm.DB, ownerID uuid.UUID) (int64, error)
	LastCatchDateByOwner(ctx context.Context, tx *gorm.DB, ownerID uuid.UUID) (*time.Time, error)
}

type dexEntryRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewDexEntryRepo(db *gorm.DB, baseLog *logger.Logger) DexEntryRepo {
	return &dexEntryRepo{db: db, log: baseLog.With("repo", "DexEntryRepo")}
}

func (r *dexEntryRepo) Create(ctx context.Context, tx *gorm.DB, entry *types.DexEntry) (*types.DexEntry, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if entry == nil {
		return nil, nil
	}
	if err := transaction.WithContext(ctx).Create(entry).Error; err != nil {
		return nil, err
	}
	return entry, nil
}

func (r *dexEntryRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.DexEntry, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil, nil
	}
	var entry types.DexEntry
	err := transaction.WithContext(ctx).
		Where("id = ?", id).
		Limit(1).
		Find(&entry).Error
	if err != nil {
		return nil, err
	}
	if entry.ID == uuid.Nil {
		return nil, nil
	}
	return &entry, nil
}

func (r *dexEntryRepo) UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, updates map[string]interface{}) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil || len(updates) == 0 {
		return nil
	}
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now()
	}
	return transaction.WithContext(ctx).
		Model(&types.DexEntry{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *dexEntryRepo) Delete(ctx context.Context, tx *gorm.DB, id uuid.UUID) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(ctx).
		Where("id = ?", id).
		Delete(&types.DexEntry{}).Error
}

func (r *dexEntryRepo) ListByOwner(ctx context.Context, tx *gorm.DB, ownerID uuid.UUID, favoritesOnly bool) ([]*types.DexEntry, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	q := transaction.WithContext(ctx).
		Where("owner_id = ?", ownerID).
		Order("catch_date DESC")
	if favoritesOnly {
		q = q.Where("is_favorite = true")
	}
	var out []*types.DexEntry
	if err := q.Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *dexEntryRepo) ListUpdatedSince(ctx context.Context, tx *gorm.DB, ownerID uuid.UUID, since time.Time) ([]*types.DexEntry, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	q := transaction.WithContext(ctx).
		Where("owner_id = ?", ownerID).
		Order("updated_at ASC")
	if !since.IsZero() {
		q = q.Where("updated_at > ?", since)
	}
	var out []*types.DexEntry
	if err := q.Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *dexEntryRepo) ListVisibleTo(ctx context.Context, tx *gorm.DB, requester uuid.UUID, ownerIDs, friendIDs []uuid.UUID) ([]*types.DexEntry, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if len(ownerIDs) == 0 {
		return []*types.DexEntry{}, nil
	}
	q := transaction.WithContext(ctx).
		Where("owner_id IN ?", ownerIDs)
	if len(friendIDs) > 0 {
		q = q.Where(
			"owner_id = ? OR visibility = ? OR (visibility = ? AND owner_id IN ?)",
			requester, types.VisibilityPublic, types.VisibilityFriends, friendIDs,
		)
	} else {
		q = q.Where("owner_id = ? OR visibility = ?", requester, types.VisibilityPublic)
	}
	var out []*types.DexEntry
	if err := q.Order("catch_date DESC").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *dexEntryRepo) ExistsForOwnerAnimalDate(ctx context.Context, tx *gorm.DB, ownerID, animalID uuid.UUID, catchDate time.Time) (bool, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var count int64
	if err := transaction.WithContext(ctx).
		Model(&types.DexEntry{}).
		Where("owner_id = ? AND animal_id = ? AND catch_date = ?", ownerID, animalID, catchDate).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

const scopedCapturesSelect = `owner_id, animal_id, COUNT(*) AS captures, MIN(catch_date) AS first_catch`

func (r *dexEntryRepo) ScopedCaptures(ctx context.Context, tx *gorm.DB, userIDs []uuid.UUID) ([]*ScopedCapture, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if len(userIDs) == 0 {
		return []*ScopedCapture{}, nil
	}
	var out []*ScopedCapture
	if err := transaction.WithContext(ctx).
		Model(&types.DexEntry{}).
		Select(scopedCapturesSelect).
		Where("owner_id IN ?", userIDs).
		Group("owner_id, animal_id").
		Scan(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *dexEntryRepo) ScopedCapturesGlobal(ctx context.Context, tx *gorm.DB) ([]*ScopedCapture, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*ScopedCapture
	if err := transaction.WithContext(ctx).
		Model(&types.DexEntry{}).
		Select(scopedCapturesSelect).
		Group("owner_id, animal_id").
		Scan(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *dexEntryRepo) CountByOwner(ctx context.Context, tx *gorm.DB, ownerID uuid.UUID) (int64, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var count int64
	if err := transaction.WithContext(ctx).
		Model(&types.DexEntry{}).
		Where("owner_id = ?", ownerID).
		Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

func (r *dexEntryRepo) DistinctAnimalCountByOwner(ctx context.Context, tx *gorm.DB, ownerID uuid.UUID) (int64, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var count int64
	if err := transaction.WithContext(ctx).
		Model(&types.DexEntry{}).
		Where("owner_id = ?", ownerID).
		Distinct("animal_id").
		Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

func (r *dexEntryRepo) LastCatchDateByOwner(ctx context.Context, tx *gorm.DB, ownerID uuid.UUID) (*time.Time, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var entry types.DexEntry
	err := transaction.WithContext(ctx).
		Where("owner_id = ?", ownerID).
		Order("catch_date DESC").
		Limit(1).
		Find(&entry).Error
	if err != nil {
		return nil, err
	}
	if entry.ID == uuid.Nil {
		return nil, nil
	}
	return &entry.CatchDate, nil
}
