package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/yungbote/biologidex-backend/internal/clients/gcp"
	"github.com/yungbote/biologidex-backend/internal/clients/redis"
	"github.com/yungbote/biologidex-backend/internal/pkg/logger"
	"github.com/yungbote/biologidex-backend/internal/repos"
	"github.com/yungbote/biologidex-backend/internal/types"
)

var (
	ErrEntryNotFound  = fmt.Errorf("dex entry not found")
	ErrEntryNotOwned  = fmt.Errorf("dex entry belongs to another user")
	ErrDuplicateCatch = fmt.Errorf("an entry for this animal and catch date already exists")
	ErrAnimalUnknown  = fmt.Errorf("animal not found")
)

type RecordEntryRequest struct {
	AnimalID          uuid.UUID
	SourceVisionJobID *uuid.UUID
	ConversionID      *uuid.UUID
	Latitude          *float64
	Longitude         *float64
	LocationName      string
	Notes             string
	Customizations    json.RawMessage
	Visibility        string
	CatchDate         *time.Time
}

type UpdateEntryRequest struct {
	LocationName   *string
	Notes          *string
	Customizations json.RawMessage
	Visibility     *string
	IsFavorite     *bool
	CatchDate      *time.Time
}

type DexService interface {
	Record(ctx context.Context, ownerID uuid.UUID, req RecordEntryRequest) (*types.DexEntry, error)
	Get(ctx context.Context, requesterID, entryID uuid.UUID) (*types.DexEntry, error)
	Update(ctx context.Context, ownerID, entryID uuid.UUID, req UpdateEntryRequest) (*types.DexEntry, error)
	Delete(ctx context.Context, ownerID, entryID uuid.UUID) error
	ListOwn(ctx context.Context, ownerID uuid.UUID, favoritesOnly bool) ([]*types.DexEntry, error)
	// SyncEntries returns entries changed since last sync, or the full
	// cached catalog when since is nil.
	SyncEntries(ctx context.Context, ownerID uuid.UUID, since *time.Time) ([]*types.DexEntry, error)
	// FriendsOverview lists entries of accepted friends visible to the
	// requester.
	FriendsOverview(ctx context.Context, requesterID uuid.UUID) ([]*types.DexEntry, error)
}

type dexService struct {
	db          *gorm.DB
	log         *logger.Logger
	entryRepo   repos.DexEntryRepo
	animalRepo  repos.AnimalRepo
	friendRepo  repos.FriendshipRepo
	conversions ConversionService
	cache       redis.CacheClient
	bucket      gcp.BucketService
}

func NewDexService(
	db *gorm.DB,
	log *logger.Logger,
	entryRepo repos.DexEntryRepo,
	animalRepo repos.AnimalRepo,
	friendRepo repos.FriendshipRepo,
	conversions ConversionService,
	cache redis.CacheClient,
	bucket gcp.BucketService,
) DexService {
	return &dexService{
		db:          db,
		log:         log.With("service", "DexService"),
		entryRepo:   entryRepo,
		animalRepo:  animalRepo,
		friendRepo:  friendRepo,
		conversions: conversions,
		cache:       cache,
		bucket:      bucket,
	}
}

func (ds *dexService) Record(ctx context.Context, ownerID uuid.UUID, req RecordEntryRequest) (*types.DexEntry, error) {
	animal, err := ds.animalRepo.GetByID(ctx, nil, req.AnimalID)
	if err != nil {
		return nil, err
	}
	if animal == nil {
		return nil, ErrAnimalUnknown
	}

	catchDate := time.Now()
	if req.CatchDate != nil {
		catchDate = *req.CatchDate
	}
	visibility := req.Visibility
	if visibility == "" {
		visibility = types.VisibilityPrivate
	}

	entry := &types.DexEntry{
		ID:                uuid.New(),
		OwnerID:           ownerID,
		AnimalID:          req.AnimalID,
		SourceVisionJobID: req.SourceVisionJobID,
		Latitude:          req.Latitude,
		Longitude:         req.Longitude,
		LocationName:      req.LocationName,
		Notes:             req.Notes,
		CatchDate:         catchDate,
		Visibility:        visibility,
	}
	if len(req.Customizations) > 0 {
		entry.Customizations = datatypes.JSON(req.Customizations)
	}

	err = ds.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		exists, eErr := ds.entryRepo.ExistsForOwnerAnimalDate(ctx, tx, ownerID, req.AnimalID, catchDate)
		if eErr != nil {
			return eErr
		}
		if exists {
			return ErrDuplicateCatch
		}

		if req.ConversionID != nil {
			conversion, cErr := ds.conversions.Claim(ctx, tx, ownerID, *req.ConversionID)
			if cErr != nil {
				return cErr
			}
			now := time.Now()
			entry.OriginalImageKey = conversion.OriginalBucketKey
			entry.ProcessedImageKey = conversion.ConvertedBucketKey
			entry.ImageChecksum = conversion.Checksum
			entry.ImageUpdatedAt = &now
		}

		_, cErr := ds.entryRepo.Create(ctx, tx, entry)
		return cErr
	})
	if err != nil {
		if errors.Is(err, ErrDuplicateCatch) {
			return nil, err
		}
		return nil, fmt.Errorf("record entry: %w", err)
	}

	ds.invalidateAfterChange(ctx, ownerID)
	ds.log.Info("dex entry recorded", "entry_id", entry.ID, "owner_id", ownerID, "animal_id", req.AnimalID)
	return entry, nil
}

func (ds *dexService) Get(ctx context.Context, requesterID, entryID uuid.UUID) (*types.DexEntry, error) {
	entry, err := ds.entryRepo.GetByID(ctx, nil, entryID)
	if err != nil {
		return nil, err
	}
	if entry == nil {
		return nil, ErrEntryNotFound
	}
	visible, err := ds.entryVisibleTo(ctx, entry, requesterID)
	if err != nil {
		return nil, err
	}
	if !visible {
		return nil, ErrEntryNotFound
	}
	return entry, nil
}

// entryVisibleTo applies the visibility rule: owner always, public to
// anyone, friends to accepted friends of the owner.
func (ds *dexService) entryVisibleTo(ctx context.Context, entry *types.DexEntry, requesterID uuid.UUID) (bool, error) {
	if entry.OwnerID == requesterID {
		return true, nil
	}
	switch entry.Visibility {
	case types.VisibilityPublic:
		return true, nil
	case types.VisibilityFriends:
		return ds.friendRepo.IsAcceptedFriend(ctx, nil, entry.OwnerID, requesterID)
	default:
		return false, nil
	}
}

func (ds *dexService) Update(ctx context.Context, ownerID, entryID uuid.UUID, req UpdateEntryRequest) (*types.DexEntry, error) {
	entry, err := ds.ownedEntry(ctx, ownerID, entryID)
	if err != nil {
		return nil, err
	}

	updates := map[string]interface{}{}
	if req.LocationName != nil {
		updates["location_name"] = *req.LocationName
	}
	if req.Notes != nil {
		updates["notes"] = *req.Notes
	}
	if len(req.Customizations) > 0 {
		updates["customizations"] = datatypes.JSON(req.Customizations)
	}
	if req.Visibility != nil {
		switch *req.Visibility {
		case types.VisibilityPrivate, types.VisibilityFriends, types.VisibilityPublic:
		default:
			return nil, fmt.Errorf("invalid visibility %q", *req.Visibility)
		}
		updates["visibility"] = *req.Visibility
	}
	if req.IsFavorite != nil {
		updates["is_favorite"] = *req.IsFavorite
	}
	if req.CatchDate != nil {
		exists, eErr := ds.entryRepo.ExistsForOwnerAnimalDate(ctx, nil, ownerID, entry.AnimalID, *req.CatchDate)
		if eErr != nil {
			return nil, eErr
		}
		if exists && !req.CatchDate.Equal(entry.CatchDate) {
			return nil, ErrDuplicateCatch
		}
		updates["catch_date"] = *req.CatchDate
	}
	if len(updates) == 0 {
		return entry, nil
	}

	if err := ds.entryRepo.UpdateFields(ctx, nil, entryID, updates); err != nil {
		return nil, err
	}
	ds.invalidateAfterChange(ctx, ownerID)
	return ds.entryRepo.GetByID(ctx, nil, entryID)
}

func (ds *dexService) Delete(ctx context.Context, ownerID, entryID uuid.UUID) error {
	entry, err := ds.ownedEntry(ctx, ownerID, entryID)
	if err != nil {
		return err
	}
	if err := ds.entryRepo.Delete(ctx, nil, entryID); err != nil {
		return err
	}
	// The entry image may be shared with the source conversion row;
	// deleting the object is safe because bound conversions are never
	// reaped and the entry owned the binding.
	if entry.ProcessedImageKey != "" {
		if dErr := ds.bucket.DeleteFile(ctx, entry.ProcessedImageKey); dErr != nil {
			ds.log.Warn("delete entry image failed", "key", entry.ProcessedImageKey, "error", dErr)
		}
	}
	ds.invalidateAfterChange(ctx, ownerID)
	ds.log.Info("dex entry deleted", "entry_id", entryID, "owner_id", ownerID)
	return nil
}

func (ds *dexService) ownedEntry(ctx context.Context, ownerID, entryID uuid.UUID) (*types.DexEntry, error) {
	entry, err := ds.entryRepo.GetByID(ctx, nil, entryID)
	if err != nil {
		return nil, err
	}
	if entry == nil {
		return nil, ErrEntryNotFound
	}
	if entry.OwnerID != ownerID {
		return nil, ErrEntryNotOwned
	}
	return entry, nil
}

func (ds *dexService) ListOwn(ctx context.Context, ownerID uuid.UUID, favoritesOnly bool) ([]*types.DexEntry, error) {
	return ds.entryRepo.ListByOwner(ctx, nil, ownerID, favoritesOnly)
}

func (ds *dexService) SyncEntries(ctx context.Context, ownerID uuid.UUID, since *time.Time) ([]*types.DexEntry, error) {
	if since != nil {
		return ds.entryRepo.ListUpdatedSince(ctx, nil, ownerID, *since)
	}

	cacheKey := redis.DexUserAllKey(ownerID)
	var cached []*types.DexEntry
	if err := ds.cache.Get(ctx, cacheKey, &cached); err == nil {
		return cached, nil
	} else if !errors.Is(err, redis.ErrCacheMiss) {
		ds.log.Warn("dex cache read failed", "key", cacheKey, "error", err)
	}

	entries, err := ds.entryRepo.ListByOwner(ctx, nil, ownerID, false)
	if err != nil {
		return nil, err
	}
	if err := ds.cache.Set(ctx, cacheKey, entries, redis.DexUserTTL); err != nil {
		ds.log.Warn("dex cache write failed", "key", cacheKey, "error", err)
	}
	return entries, nil
}

func (ds *dexService) FriendsOverview(ctx context.Context, requesterID uuid.UUID) ([]*types.DexEntry, error) {
	cacheKey := redis.DexFriendsOverviewKey(requesterID)
	var cached []*types.DexEntry
	if err := ds.cache.Get(ctx, cacheKey, &cached); err == nil {
		return cached, nil
	} else if !errors.Is(err, redis.ErrCacheMiss) {
		ds.log.Warn("overview cache read failed", "key", cacheKey, "error", err)
	}

	friendIDs, err := ds.friendRepo.GetAcceptedFriendIDs(ctx, nil, requesterID)
	if err != nil {
		return nil, err
	}
	entries, err := ds.entryRepo.ListVisibleTo(ctx, nil, requesterID, friendIDs, friendIDs)
	if err != nil {
		return nil, err
	}
	if err := ds.cache.Set(ctx, cacheKey, entries, redis.DexOverviewTTL); err != nil {
		ds.log.Warn("overview cache write failed", "key", cacheKey, "error", err)
	}
	return entries, nil
}

// invalidateAfterChange drops every cache a changed catalog can feed:
// the owner's trees and dex listings, each accepted friend's trees and
// overview, and the shared global tree. Tree keys are prefixes (chunks
// hang off them); dex keys are exact.
func (ds *dexService) invalidateAfterChange(ctx context.Context, ownerID uuid.UUID) {
	prefixes := []string{
		redis.TreeUserPrefix(TreeModePersonal, ownerID),
		redis.TreeUserPrefix(TreeModeFriends, ownerID),
		redis.TreeGlobalKey(),
	}
	keys := []string{
		redis.DexUserAllKey(ownerID),
		redis.DexFriendsOverviewKey(ownerID),
	}
	friendIDs, err := ds.friendRepo.GetAcceptedFriendIDs(ctx, nil, ownerID)
	if err != nil {
		ds.log.Warn("invalidate: friend lookup failed", "owner_id", ownerID, "error", err)
	}
	// A friend's personal tree only shows their own entries, so just
	// their friends-mode tree and overview go stale.
	for _, friendID := range friendIDs {
		prefixes = append(prefixes, redis.TreeUserPrefix(TreeModeFriends, friendID))
		keys = append(keys, redis.DexFriendsOverviewKey(friendID))
	}
	if err := ds.cache.Delete(ctx, keys...); err != nil {
		ds.log.Warn("invalidate dex keys failed", "error", err)
	}
	for _, prefix := range prefixes {
		if err := ds.cache.DeleteByPrefix(ctx, prefix); err != nil {
			ds.log.Warn("invalidate failed", "prefix", prefix, "error", err)
		}
	}
}
