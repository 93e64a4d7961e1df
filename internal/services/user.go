package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/biologidex-backend/internal/pkg/logger"
	"github.com/yungbote/biologidex-backend/internal/repos"
	"github.com/yungbote/biologidex-backend/internal/types"
)

var ErrUserNotFound = fmt.Errorf("user not found")

// Profile is the authenticated user's own view, with catalog stats
// computed on read instead of maintained by entry-write hooks.
type Profile struct {
	*types.User
	EntryCount          int64      `json:"entry_count"`
	DistinctAnimalCount int64      `json:"distinct_animal_count"`
	LastCatchDate       *time.Time `json:"last_catch_date,omitempty"`
}

type UserService interface {
	GetMe(ctx context.Context, userID uuid.UUID) (*Profile, error)
}

type userService struct {
	db        *gorm.DB
	log       *logger.Logger
	userRepo  repos.UserRepo
	entryRepo repos.DexEntryRepo
}

func NewUserService(db *gorm.DB, log *logger.Logger, userRepo repos.UserRepo, entryRepo repos.DexEntryRepo) UserService {
	return &userService{
		db:        db,
		log:       log.With("service", "UserService"),
		userRepo:  userRepo,
		entryRepo: entryRepo,
	}
}

func (us *userService) GetMe(ctx context.Context, userID uuid.UUID) (*Profile, error) {
	user, err := us.userRepo.GetByID(ctx, nil, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrUserNotFound
	}
	entries, err := us.entryRepo.CountByOwner(ctx, nil, userID)
	if err != nil {
		return nil, err
	}
	animals, err := us.entryRepo.DistinctAnimalCountByOwner(ctx, nil, userID)
	if err != nil {
		return nil, err
	}
	lastCatch, err := us.entryRepo.LastCatchDateByOwner(ctx, nil, userID)
	if err != nil {
		return nil, err
	}
	return &Profile{
		User:                user,
		EntryCount:          entries,
		DistinctAnimalCount: animals,
		LastCatchDate:       lastCatch,
	}, nil
}
