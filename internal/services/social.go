package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/biologidex-backend/internal/pkg/logger"
	"github.com/yungbote/biologidex-backend/internal/repos"
	"github.com/yungbote/biologidex-backend/internal/types"
	"github.com/yungbote/biologidex-backend/internal/utils"
)

var (
	ErrFriendCodeUnknown   = fmt.Errorf("no user with that friend code")
	ErrSelfFriendship      = fmt.Errorf("cannot send a friend request to yourself")
	ErrFriendshipExists    = fmt.Errorf("a friendship or pending request already exists")
	ErrFriendshipNotFound  = fmt.Errorf("friendship not found")
	ErrNotRequestRecipient = fmt.Errorf("only the recipient can respond to a request")
)

// FriendView is a friendship joined with the other user's public info.
type FriendView struct {
	FriendshipID uuid.UUID `json:"friendship_id"`
	UserID       uuid.UUID `json:"user_id"`
	Username     string    `json:"username"`
	FriendCode   string    `json:"friend_code"`
	Status       string    `json:"status"`
	// Incoming is true when the other user sent the request.
	Incoming bool `json:"incoming"`
}

type SocialService interface {
	RequestByFriendCode(ctx context.Context, fromUserID uuid.UUID, friendCode string) (*types.Friendship, error)
	Respond(ctx context.Context, userID, friendshipID uuid.UUID, accept bool) (*types.Friendship, error)
	List(ctx context.Context, userID uuid.UUID) ([]*FriendView, error)
	Remove(ctx context.Context, userID, friendshipID uuid.UUID) error
	AcceptedFriendIDs(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error)
	RegenerateFriendCode(ctx context.Context, userID uuid.UUID) (string, error)
}

type socialService struct {
	db         *gorm.DB
	log        *logger.Logger
	userRepo   repos.UserRepo
	friendRepo repos.FriendshipRepo
}

func NewSocialService(
	db *gorm.DB,
	log *logger.Logger,
	userRepo repos.UserRepo,
	friendRepo repos.FriendshipRepo,
) SocialService {
	return &socialService{
		db:         db,
		log:        log.With("service", "SocialService"),
		userRepo:   userRepo,
		friendRepo: friendRepo,
	}
}

func (ss *socialService) RequestByFriendCode(ctx context.Context, fromUserID uuid.UUID, friendCode string) (*types.Friendship, error) {
	target, err := ss.userRepo.GetByFriendCode(ctx, nil, friendCode)
	if err != nil {
		return nil, err
	}
	if target == nil {
		return nil, ErrFriendCodeUnknown
	}
	if target.ID == fromUserID {
		return nil, ErrSelfFriendship
	}

	var friendship *types.Friendship
	err = ss.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		existing, gErr := ss.friendRepo.GetPair(ctx, tx, fromUserID, target.ID)
		if gErr != nil {
			return gErr
		}
		if existing != nil {
			if existing.Status == types.FriendshipRejected {
				// A rejected pair may try again; reuse the row.
				if uErr := ss.friendRepo.UpdateStatus(ctx, tx, existing.ID, types.FriendshipPending); uErr != nil {
					return uErr
				}
				existing.Status = types.FriendshipPending
				friendship = existing
				return nil
			}
			return ErrFriendshipExists
		}

		friendship = &types.Friendship{
			ID:         uuid.New(),
			FromUserID: fromUserID,
			ToUserID:   target.ID,
			Status:     types.FriendshipPending,
		}
		_, cErr := ss.friendRepo.Create(ctx, tx, friendship)
		return cErr
	})
	if err != nil {
		return nil, err
	}

	ss.log.Info("friend request sent", "from", fromUserID, "to", target.ID)
	return friendship, nil
}

func (ss *socialService) Respond(ctx context.Context, userID, friendshipID uuid.UUID, accept bool) (*types.Friendship, error) {
	friendship, err := ss.friendRepo.GetByID(ctx, nil, friendshipID)
	if err != nil {
		return nil, err
	}
	if friendship == nil {
		return nil, ErrFriendshipNotFound
	}
	if friendship.ToUserID != userID {
		return nil, ErrNotRequestRecipient
	}
	if friendship.Status != types.FriendshipPending {
		return nil, fmt.Errorf("request already %s", friendship.Status)
	}

	status := types.FriendshipRejected
	if accept {
		status = types.FriendshipAccepted
	}
	if err := ss.friendRepo.UpdateStatus(ctx, nil, friendshipID, status); err != nil {
		return nil, err
	}
	friendship.Status = status
	ss.log.Info("friend request answered", "friendship_id", friendshipID, "status", status)
	return friendship, nil
}

func (ss *socialService) List(ctx context.Context, userID uuid.UUID) ([]*FriendView, error) {
	friendships, err := ss.friendRepo.ListForUser(ctx, nil, userID)
	if err != nil {
		return nil, err
	}

	otherIDs := make([]uuid.UUID, 0, len(friendships))
	for _, f := range friendships {
		if f.FromUserID == userID {
			otherIDs = append(otherIDs, f.ToUserID)
		} else {
			otherIDs = append(otherIDs, f.FromUserID)
		}
	}
	users, err := ss.userRepo.GetByIDs(ctx, nil, otherIDs)
	if err != nil {
		return nil, err
	}
	byID := make(map[uuid.UUID]*types.User, len(users))
	for _, u := range users {
		byID[u.ID] = u
	}

	views := make([]*FriendView, 0, len(friendships))
	for _, f := range friendships {
		otherID := f.ToUserID
		incoming := false
		if f.FromUserID != userID {
			otherID = f.FromUserID
			incoming = true
		}
		other := byID[otherID]
		if other == nil {
			continue
		}
		views = append(views, &FriendView{
			FriendshipID: f.ID,
			UserID:       other.ID,
			Username:     other.Username,
			FriendCode:   other.FriendCode,
			Status:       f.Status,
			Incoming:     incoming,
		})
	}
	return views, nil
}

func (ss *socialService) Remove(ctx context.Context, userID, friendshipID uuid.UUID) error {
	friendship, err := ss.friendRepo.GetByID(ctx, nil, friendshipID)
	if err != nil {
		return err
	}
	if friendship == nil {
		return ErrFriendshipNotFound
	}
	if friendship.FromUserID != userID && friendship.ToUserID != userID {
		return ErrFriendshipNotFound
	}
	if err := ss.friendRepo.Delete(ctx, nil, friendshipID); err != nil {
		return err
	}
	ss.log.Info("friendship removed", "friendship_id", friendshipID, "by", userID)
	return nil
}

func (ss *socialService) AcceptedFriendIDs(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error) {
	return ss.friendRepo.GetAcceptedFriendIDs(ctx, nil, userID)
}

func (ss *socialService) RegenerateFriendCode(ctx context.Context, userID uuid.UUID) (string, error) {
	var code string
	err := ss.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for i := 0; i < 10; i++ {
			candidate, gErr := utils.GenerateFriendCode()
			if gErr != nil {
				return gErr
			}
			exists, eErr := ss.userRepo.FriendCodeExists(ctx, tx, candidate)
			if eErr != nil {
				return eErr
			}
			if !exists {
				code = candidate
				return ss.userRepo.UpdateFriendCode(ctx, tx, userID, candidate)
			}
		}
		return fmt.Errorf("could not generate a unique friend code")
	})
	if err != nil {
		return "", err
	}
	ss.log.Info("friend code regenerated", "user_id", userID)
	return code, nil
}
