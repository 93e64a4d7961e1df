package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yungbote/biologidex-backend/internal/imaging"
	"github.com/yungbote/biologidex-backend/internal/middleware"
	"github.com/yungbote/biologidex-backend/internal/services"
)

type ImageHandler struct {
	conversions services.ConversionService
}

func NewImageHandler(conversions services.ConversionService) *ImageHandler {
	return &ImageHandler{conversions: conversions}
}

func (ih *ImageHandler) Convert(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		RespondError(c, http.StatusUnauthorized, CodeUnauthorized, errors.New("not authenticated"))
		return
	}

	file, _, err := c.Request.FormFile("image")
	if err != nil {
		RespondError(c, http.StatusBadRequest, CodeValidation, errors.New("missing image field"))
		return
	}
	defer file.Close()
	data, err := io.ReadAll(io.LimitReader(file, imaging.MaxUploadBytes+1))
	if err != nil {
		RespondError(c, http.StatusBadRequest, CodeValidation, err)
		return
	}

	var opts imaging.Options
	if raw := c.PostForm("transformations"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &opts); err != nil {
			RespondError(c, http.StatusBadRequest, CodeValidation, errors.New("invalid transformations JSON"))
			return
		}
	}

	conversion, err := ih.conversions.Create(c.Request.Context(), userID, data, opts)
	if err != nil {
		if errors.Is(err, imaging.ErrTooLarge) {
			RespondError(c, http.StatusRequestEntityTooLarge, CodeUnsupportedMedia, err)
			return
		}
		if errors.Is(err, imaging.ErrUnsupportedFormat) {
			RespondError(c, http.StatusUnsupportedMediaType, CodeUnsupportedMedia, err)
			return
		}
		if errors.Is(err, imaging.ErrInvalidTransform) {
			RespondError(c, http.StatusBadRequest, CodeInvalidTransform, err)
			return
		}
		RespondError(c, http.StatusBadRequest, CodeValidation, err)
		return
	}

	downloadURL, err := ih.conversions.SignedDownloadURL(conversion)
	if err != nil {
		downloadURL = ""
	}
	c.JSON(http.StatusCreated, gin.H{
		"id":           conversion.ID,
		"download_url": downloadURL,
		"metadata": gin.H{
			"original_format":         conversion.OriginalFormat,
			"original_size":           []int{conversion.OriginalWidth, conversion.OriginalHeight},
			"converted_size":          []int{conversion.ConvertedWidth, conversion.ConvertedHeight},
			"transformations_applied": conversion.Transformations,
			"checksum":                conversion.Checksum,
		},
		"created_at": conversion.CreatedAt,
		"expires_at": conversion.ExpiresAt,
	})
}

func (ih *ImageHandler) Download(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		RespondError(c, http.StatusUnauthorized, CodeUnauthorized, errors.New("not authenticated"))
		return
	}
	conversionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, CodeValidation, errors.New("invalid conversion id"))
		return
	}

	png, err := ih.conversions.DownloadPNG(c.Request.Context(), userID, conversionID)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrConversionGone):
			RespondError(c, http.StatusGone, CodeGone, err)
		case errors.Is(err, services.ErrConversionNotOwned):
			RespondError(c, http.StatusForbidden, CodeForbidden, err)
		default:
			RespondError(c, http.StatusInternalServerError, CodeInternal, err)
		}
		return
	}
	c.Data(http.StatusOK, "image/png", png)
}
