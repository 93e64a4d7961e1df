package repos

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/biologidex-backend/internal/pkg/logger"
	"github.com/yungbote/biologidex-backend/internal/types"
)

type AnimalRepo interface {
	Create(ctx context.Context, tx *gorm.DB, animal *types.Animal) (*types.Animal, error)
	GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Animal, error)
	GetByIDs(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) ([]*types.Animal, error)
	GetByScientificName(ctx context.Context, tx *gorm.DB, name string) (*types.Animal, error)
	MaxCreationIndex(ctx context.Context, tx *gorm.DB) (int, error)
	UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, updates map[string]interface{}) error
	ListOrderedForRenumber(ctx context.Context, tx *gorm.DB) ([]*types.Animal, error)
	Count(ctx context.Context, tx *gorm.DB) (int64, error)
}

type animalRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewAnimalRepo(db *gorm.DB, baseLog *logger.Logger) AnimalRepo {
	return &animalRepo{db: db, log: baseLog.With("repo", "AnimalRepo")}
}

func (r *animalRepo) Create(ctx context.Context, tx *gorm.DB, animal *types.Animal) (*types.Animal, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if animal == nil {
		return nil, nil
	}
	if err := transaction.WithContext(ctx).Create(animal).Error; err != nil {
		return nil, err
	}
	return animal, nil
}

func (r *animalRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Animal, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil, nil
	}
	var animal types.Animal
	err := transaction.WithContext(ctx).
		Where("id = ?", id).
		Limit(1).
		Find(&animal).Error
	if err != nil {
		return nil, err
	}
	if animal.ID == uuid.Nil {
		return nil, nil
	}
	return &animal, nil
}

func (r *animalRepo) GetByIDs(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) ([]*types.Animal, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.Animal
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

func (r *animalRepo) GetByScientificName(ctx context.Context, tx *gorm.DB, name string) (*types.Animal, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if name == "" {
		return nil, nil
	}
	var animal types.Animal
	err := transaction.WithContext(ctx).
		Where("LOWER(scientific_name) = LOWER(?)", name).
		Limit(1).
		Find(&animal).Error
	if err != nil {
		return nil, err
	}
	if animal.ID == uuid.Nil {
		return nil, nil
	}
	return &animal, nil
}

func (r *animalRepo) MaxCreationIndex(ctx context.Context, tx *gorm.DB) (int, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var max *int
	if err := transaction.WithContext(ctx).
		Model(&types.Animal{}).
		Select("MAX(creation_index)").
		Scan(&max).Error; err != nil {
		return 0, err
	}
	if max == nil {
		return 0, nil
	}
	return *max, nil
}

func (r *animalRepo) UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, updates map[string]interface{}) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil || len(updates) == 0 {
		return nil
	}
	return transaction.WithContext(ctx).
		Model(&types.Animal{}).
		Where("id = ?", id).
		Updates(updates).Error
}

// ListOrderedForRenumber returns every animal in the order the renumber
// assigns final indices: existing index first, insert time as tiebreak.
func (r *animalRepo) ListOrderedForRenumber(ctx context.Context, tx *gorm.DB) ([]*types.Animal, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.Animal
	if err := transaction.WithContext(ctx).
		Order("creation_index ASC, created_at ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *animalRepo) Count(ctx context.Context, tx *gorm.DB) (int64, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var count int64
	if err := transaction.WithContext(ctx).
		Model(&types.Animal{}).
		Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}
