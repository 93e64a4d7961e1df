package repos

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/biologidex-backend/internal/pkg/logger"
	"github.com/yungbote/biologidex-backend/internal/types"
)

type FriendshipRepo interface {
	Create(ctx context.Context, tx *gorm.DB, friendship *types.Friendship) (*types.Friendship, error)
	GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Friendship, error)
	GetPair(ctx context.Context, tx *gorm.DB, a, b uuid.UUID) (*types.Friendship, error)
	ListForUser(ctx context.Context, tx *gorm.DB, userID uuid.UUID) ([]*types.Friendship, error)
	UpdateStatus(ctx context.Context, tx *gorm.DB, id uuid.UUID, status string) error
	Delete(ctx context.Context, tx *gorm.DB, id uuid.UUID) error
	GetAcceptedFriendIDs(ctx context.Context, tx *gorm.DB, userID uuid.UUID) ([]uuid.UUID, error)
	IsAcceptedFriend(ctx context.Context, tx *gorm.DB, a, b uuid.UUID) (bool, error)
}

type friendshipRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewFriendshipRepo(db *gorm.DB, baseLog *logger.Logger) FriendshipRepo {
	return &friendshipRepo{db: db, log: baseLog.With("repo", "FriendshipRepo")}
}

func (r *friendshipRepo) Create(ctx context.Context, tx *gorm.DB, friendship *types.Friendship) (*types.Friendship, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if friendship == nil {
		return nil, nil
	}
	if err := transaction.WithContext(ctx).Create(friendship).Error; err != nil {
		return nil, err
	}
	return friendship, nil
}

func (r *friendshipRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Friendship, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var row types.Friendship
	err := transaction.WithContext(ctx).
		Where("id = ?", id).
		Limit(1).
		Find(&row).Error
	if err != nil {
		return nil, err
	}
	if row.ID == uuid.Nil {
		return nil, nil
	}
	return &row, nil
}

// GetPair returns the friendship row between two users regardless of
// direction.
func (r *friendshipRepo) GetPair(ctx context.Context, tx *gorm.DB, a, b uuid.UUID) (*types.Friendship, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var row types.Friendship
	err := transaction.WithContext(ctx).
		Where("(from_user_id = ? AND to_user_id = ?) OR (from_user_id = ? AND to_user_id = ?)", a, b, b, a).
		Limit(1).
		Find(&row).Error
	if err != nil {
		return nil, err
	}
	if row.ID == uuid.Nil {
		return nil, nil
	}
	return &row, nil
}

func (r *friendshipRepo) ListForUser(ctx context.Context, tx *gorm.DB, userID uuid.UUID) ([]*types.Friendship, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var rows []*types.Friendship
	if err := transaction.WithContext(ctx).
		Where("from_user_id = ? OR to_user_id = ?", userID, userID).
		Order("created_at DESC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *friendshipRepo) UpdateStatus(ctx context.Context, tx *gorm.DB, id uuid.UUID, status string) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(ctx).
		Model(&types.Friendship{}).
		Where("id = ?", id).
		Update("status", status).Error
}

func (r *friendshipRepo) Delete(ctx context.Context, tx *gorm.DB, id uuid.UUID) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(ctx).
		Where("id = ?", id).
		Delete(&types.Friendship{}).Error
}

// GetAcceptedFriendIDs is the union of accepted rows sent and received.
func (r *friendshipRepo) GetAcceptedFriendIDs(ctx context.Context, tx *gorm.DB, userID uuid.UUID) ([]uuid.UUID, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var sent []uuid.UUID
	if err := transaction.WithContext(ctx).
		Model(&types.Friendship{}).
		Where("from_user_id = ? AND status = ?", userID, types.FriendshipAccepted).
		Pluck("to_user_id", &sent).Error; err != nil {
		return nil, err
	}
	var received []uuid.UUID
	if err := transaction.WithContext(ctx).
		Model(&types.Friendship{}).
		Where("to_user_id = ? AND status = ?", userID, types.FriendshipAccepted).
		Pluck("from_user_id", &received).Error; err != nil {
		return nil, err
	}
	seen := make(map[uuid.UUID]bool, len(sent)+len(received))
	out := make([]uuid.UUID, 0, len(sent)+len(received))
	for _, id := range append(sent, received...) {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out, nil
}

func (r *friendshipRepo) IsAcceptedFriend(ctx context.Context, tx *gorm.DB, a, b uuid.UUID) (bool, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var count int64
	if err := transaction.WithContext(ctx).
		Model(&types.Friendship{}).
		Where("status = ? AND ((from_user_id = ? AND to_user_id = ?) OR (from_user_id = ? AND to_user_id = ?))",
			types.FriendshipAccepted, a, b, b, a).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}
