package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/yungbote/biologidex-backend/internal/clients/gcp"
	"github.com/yungbote/biologidex-backend/internal/imaging"
	"github.com/yungbote/biologidex-backend/internal/pkg/logger"
	"github.com/yungbote/biologidex-backend/internal/repos"
	"github.com/yungbote/biologidex-backend/internal/types"
)

const (
	// ConversionTTL is how long an unbound conversion stays claimable.
	ConversionTTL = 30 * time.Minute
	// conversionHardAge reaps unbound conversions regardless of expiry,
	// catching rows whose expiry updates were lost.
	conversionHardAge = time.Hour
)

var (
	ErrConversionGone       = fmt.Errorf("conversion expired or not found")
	ErrConversionNotOwned   = fmt.Errorf("conversion belongs to another user")
	ErrConversionUnbindable = fmt.Errorf("conversion expired")
)

type ConversionService interface {
	Create(ctx context.Context, userID uuid.UUID, data []byte, opts imaging.Options) (*types.ImageConversion, error)
	Get(ctx context.Context, userID, conversionID uuid.UUID) (*types.ImageConversion, error)
	DownloadPNG(ctx context.Context, userID, conversionID uuid.UUID) ([]byte, error)
	// Claim marks the conversion bound for job or dex use. It is
	// idempotent and fails with ErrConversionGone once reaped, or
	// ErrConversionUnbindable past the expiry.
	Claim(ctx context.Context, tx *gorm.DB, userID, conversionID uuid.UUID) (*types.ImageConversion, error)
	ReapExpired(ctx context.Context) (int, error)
	SignedDownloadURL(conversion *types.ImageConversion) (string, error)
}

type conversionService struct {
	db       *gorm.DB
	log      *logger.Logger
	convRepo repos.ImageConversionRepo
	bucket   gcp.BucketService
}

func NewConversionService(
	db *gorm.DB,
	log *logger.Logger,
	convRepo repos.ImageConversionRepo,
	bucket gcp.BucketService,
) ConversionService {
	return &conversionService{
		db:       db,
		log:      log.With("service", "ConversionService"),
		convRepo: convRepo,
		bucket:   bucket,
	}
}

func originalKey(id uuid.UUID, format string) string {
	return fmt.Sprintf("conversions/%s/original.%s", id, format)
}

func convertedKey(id uuid.UUID) string {
	return fmt.Sprintf("conversions/%s/converted.png", id)
}

func (cs *conversionService) Create(ctx context.Context, userID uuid.UUID, data []byte, opts imaging.Options) (*types.ImageConversion, error) {
	result, err := imaging.Normalize(data, opts)
	if err != nil {
		return nil, err
	}

	id := uuid.New()
	origKey := originalKey(id, result.OriginalFormat)
	convKey := convertedKey(id)

	if err := cs.bucket.UploadBytes(ctx, origKey, data); err != nil {
		return nil, fmt.Errorf("upload original: %w", err)
	}
	if err := cs.bucket.UploadBytes(ctx, convKey, result.PNG); err != nil {
		return nil, fmt.Errorf("upload converted: %w", err)
	}

	transformations, err := json.Marshal(result.Transformations)
	if err != nil {
		return nil, err
	}

	conversion := &types.ImageConversion{
		ID:                 id,
		UserID:             userID,
		OriginalBucketKey:  origKey,
		ConvertedBucketKey: convKey,
		OriginalFormat:     result.OriginalFormat,
		OriginalWidth:      result.OriginalWidth,
		OriginalHeight:     result.OriginalHeight,
		ConvertedWidth:     result.Width,
		ConvertedHeight:    result.Height,
		FileSize:           int64(len(result.PNG)),
		Transformations:    datatypes.JSON(transformations),
		Checksum:           result.Checksum,
		ExpiresAt:          time.Now().Add(ConversionTTL),
	}
	if _, err := cs.convRepo.Create(ctx, nil, conversion); err != nil {
		// Best effort cleanup; the reaper catches stragglers.
		_ = cs.bucket.DeleteFile(ctx, origKey)
		_ = cs.bucket.DeleteFile(ctx, convKey)
		return nil, fmt.Errorf("create conversion: %w", err)
	}

	cs.log.Info("conversion created",
		"conversion_id", id,
		"user_id", userID,
		"format", result.OriginalFormat,
		"size", humanize.Bytes(uint64(len(result.PNG))),
		"resized", result.WasResized,
		"converted", result.WasConverted,
		"exif_tags", len(result.EXIF))
	return conversion, nil
}

func (cs *conversionService) Get(ctx context.Context, userID, conversionID uuid.UUID) (*types.ImageConversion, error) {
	conversion, err := cs.convRepo.GetByID(ctx, nil, conversionID)
	if err != nil {
		return nil, err
	}
	if conversion == nil {
		return nil, ErrConversionGone
	}
	if conversion.UserID != userID {
		return nil, ErrConversionNotOwned
	}
	if !conversion.Bound && time.Now().After(conversion.ExpiresAt) {
		return nil, ErrConversionGone
	}
	return conversion, nil
}

func (cs *conversionService) DownloadPNG(ctx context.Context, userID, conversionID uuid.UUID) ([]byte, error) {
	conversion, err := cs.Get(ctx, userID, conversionID)
	if err != nil {
		return nil, err
	}
	return cs.bucket.DownloadBytes(ctx, conversion.ConvertedBucketKey)
}

func (cs *conversionService) Claim(ctx context.Context, tx *gorm.DB, userID, conversionID uuid.UUID) (*types.ImageConversion, error) {
	conversion, err := cs.convRepo.Bind(ctx, tx, conversionID, userID)
	if err != nil {
		return nil, err
	}
	if conversion == nil {
		return nil, ErrConversionGone
	}
	if conversion.UserID != userID {
		return nil, ErrConversionNotOwned
	}
	// Bind declines expired rows, so an unbound row here means the
	// conversion aged out before the claim.
	if !conversion.Bound {
		return nil, ErrConversionUnbindable
	}
	return conversion, nil
}

// ReapExpired deletes expired unbound conversions: rows first, then
// their bucket objects.
func (cs *conversionService) ReapExpired(ctx context.Context) (int, error) {
	reaped, err := cs.convRepo.ReapExpired(ctx, nil, conversionHardAge)
	if err != nil {
		return 0, err
	}
	for _, conversion := range reaped {
		if dErr := cs.bucket.DeleteFile(ctx, conversion.OriginalBucketKey); dErr != nil {
			cs.log.Warn("reap: delete original failed", "key", conversion.OriginalBucketKey, "error", dErr)
		}
		if dErr := cs.bucket.DeleteFile(ctx, conversion.ConvertedBucketKey); dErr != nil {
			cs.log.Warn("reap: delete converted failed", "key", conversion.ConvertedBucketKey, "error", dErr)
		}
	}
	if len(reaped) > 0 {
		cs.log.Info("reaped expired conversions", "count", len(reaped))
	}
	return len(reaped), nil
}

func (cs *conversionService) SignedDownloadURL(conversion *types.ImageConversion) (string, error) {
	return cs.bucket.SignedURL(conversion.ConvertedBucketKey, 15*time.Minute)
}
