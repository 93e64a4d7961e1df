package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yungbote/biologidex-backend/internal/clients/gcp"
	"github.com/yungbote/biologidex-backend/internal/middleware"
	"github.com/yungbote/biologidex-backend/internal/services"
	"github.com/yungbote/biologidex-backend/internal/types"
)

type DexHandler struct {
	dexService services.DexService
	bucket     gcp.BucketService
}

func NewDexHandler(dexService services.DexService, bucket gcp.BucketService) *DexHandler {
	return &DexHandler{dexService: dexService, bucket: bucket}
}

// entryView decorates an entry with a signed image URL for client-side
// diffing alongside image_checksum and image_updated_at.
func (dh *DexHandler) entryView(entry *types.DexEntry) gin.H {
	view := gin.H{"entry": entry}
	if entry.ProcessedImageKey != "" {
		if url, err := dh.bucket.SignedURL(entry.ProcessedImageKey, 15*time.Minute); err == nil {
			view["dex_compatible_url"] = url
		}
	}
	return view
}

func (dh *DexHandler) entryViews(entries []*types.DexEntry) []gin.H {
	views := make([]gin.H, 0, len(entries))
	for _, entry := range entries {
		views = append(views, dh.entryView(entry))
	}
	return views
}

func (dh *DexHandler) Create(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		RespondError(c, http.StatusUnauthorized, CodeUnauthorized, errors.New("not authenticated"))
		return
	}
	var req struct {
		AnimalID          uuid.UUID       `json:"animal_id"`
		SourceVisionJobID *uuid.UUID      `json:"source_vision_job_id"`
		ConversionID      *uuid.UUID      `json:"conversion_id"`
		Latitude          *float64        `json:"latitude"`
		Longitude         *float64        `json:"longitude"`
		LocationName      string          `json:"location_name"`
		Notes             string          `json:"notes"`
		Customizations    json.RawMessage `json:"customizations"`
		Visibility        string          `json:"visibility"`
		CatchDate         *time.Time      `json:"catch_date"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, CodeValidation, errors.New("invalid request body"))
		return
	}
	if req.AnimalID == uuid.Nil {
		RespondError(c, http.StatusBadRequest, CodeValidation, errors.New("animal_id is required"))
		return
	}

	entry, err := dh.dexService.Record(c.Request.Context(), userID, services.RecordEntryRequest{
		AnimalID:          req.AnimalID,
		SourceVisionJobID: req.SourceVisionJobID,
		ConversionID:      req.ConversionID,
		Latitude:          req.Latitude,
		Longitude:         req.Longitude,
		LocationName:      req.LocationName,
		Notes:             req.Notes,
		Customizations:    req.Customizations,
		Visibility:        req.Visibility,
		CatchDate:         req.CatchDate,
	})
	if err != nil {
		switch {
		case errors.Is(err, services.ErrDuplicateCatch):
			RespondError(c, http.StatusConflict, CodeConflict, err)
		case errors.Is(err, services.ErrAnimalUnknown):
			RespondError(c, http.StatusNotFound, CodeNotFound, err)
		case errors.Is(err, services.ErrConversionGone):
			RespondError(c, http.StatusGone, CodeGone, err)
		case errors.Is(err, services.ErrConversionNotOwned):
			RespondError(c, http.StatusForbidden, CodeForbidden, err)
		default:
			RespondError(c, http.StatusBadRequest, CodeValidation, err)
		}
		return
	}
	c.JSON(http.StatusCreated, dh.entryView(entry))
}

func (dh *DexHandler) List(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		RespondError(c, http.StatusUnauthorized, CodeUnauthorized, errors.New("not authenticated"))
		return
	}
	favoritesOnly := c.Query("favorites") == "true"
	entries, err := dh.dexService.ListOwn(c.Request.Context(), userID, favoritesOnly)
	if err != nil {
		RespondError(c, http.StatusInternalServerError, CodeInternal, err)
		return
	}
	RespondOK(c, gin.H{"entries": dh.entryViews(entries)})
}

func (dh *DexHandler) SyncEntries(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		RespondError(c, http.StatusUnauthorized, CodeUnauthorized, errors.New("not authenticated"))
		return
	}
	var since *time.Time
	if raw := c.Query("last_sync"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			RespondError(c, http.StatusBadRequest, CodeValidation, errors.New("last_sync must be ISO 8601"))
			return
		}
		since = &parsed
	}
	entries, err := dh.dexService.SyncEntries(c.Request.Context(), userID, since)
	if err != nil {
		RespondError(c, http.StatusInternalServerError, CodeInternal, err)
		return
	}
	RespondOK(c, gin.H{"entries": dh.entryViews(entries), "synced_at": time.Now()})
}

func (dh *DexHandler) FriendsOverview(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		RespondError(c, http.StatusUnauthorized, CodeUnauthorized, errors.New("not authenticated"))
		return
	}
	entries, err := dh.dexService.FriendsOverview(c.Request.Context(), userID)
	if err != nil {
		RespondError(c, http.StatusInternalServerError, CodeInternal, err)
		return
	}
	RespondOK(c, gin.H{"entries": dh.entryViews(entries)})
}

func (dh *DexHandler) Get(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		RespondError(c, http.StatusUnauthorized, CodeUnauthorized, errors.New("not authenticated"))
		return
	}
	entryID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, CodeValidation, errors.New("invalid entry id"))
		return
	}
	entry, err := dh.dexService.Get(c.Request.Context(), userID, entryID)
	if err != nil {
		dh.respondEntryError(c, err)
		return
	}
	RespondOK(c, dh.entryView(entry))
}

func (dh *DexHandler) Update(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		RespondError(c, http.StatusUnauthorized, CodeUnauthorized, errors.New("not authenticated"))
		return
	}
	entryID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, CodeValidation, errors.New("invalid entry id"))
		return
	}
	var req struct {
		LocationName   *string         `json:"location_name"`
		Notes          *string         `json:"notes"`
		Customizations json.RawMessage `json:"customizations"`
		Visibility     *string         `json:"visibility"`
		IsFavorite     *bool           `json:"is_favorite"`
		CatchDate      *time.Time      `json:"catch_date"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, CodeValidation, errors.New("invalid request body"))
		return
	}

	entry, err := dh.dexService.Update(c.Request.Context(), userID, entryID, services.UpdateEntryRequest{
		LocationName:   req.LocationName,
		Notes:          req.Notes,
		Customizations: req.Customizations,
		Visibility:     req.Visibility,
		IsFavorite:     req.IsFavorite,
		CatchDate:      req.CatchDate,
	})
	if err != nil {
		if errors.Is(err, services.ErrDuplicateCatch) {
			RespondError(c, http.StatusConflict, CodeConflict, err)
			return
		}
		dh.respondEntryError(c, err)
		return
	}
	RespondOK(c, dh.entryView(entry))
}

func (dh *DexHandler) Delete(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		RespondError(c, http.StatusUnauthorized, CodeUnauthorized, errors.New("not authenticated"))
		return
	}
	entryID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, CodeValidation, errors.New("invalid entry id"))
		return
	}
	if err := dh.dexService.Delete(c.Request.Context(), userID, entryID); err != nil {
		dh.respondEntryError(c, err)
		return
	}
	RespondOK(c, gin.H{"deleted": true})
}

func (dh *DexHandler) respondEntryError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, services.ErrEntryNotFound):
		RespondError(c, http.StatusNotFound, CodeNotFound, err)
	case errors.Is(err, services.ErrEntryNotOwned):
		RespondError(c, http.StatusForbidden, CodeForbidden, err)
	default:
		RespondError(c, http.StatusBadRequest, CodeValidation, err)
	}
}
