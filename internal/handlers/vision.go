package handlers

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yungbote/biologidex-backend/internal/clients/gcp"
	"github.com/yungbote/biologidex-backend/internal/imaging"
	"github.com/yungbote/biologidex-backend/internal/middleware"
	"github.com/yungbote/biologidex-backend/internal/services"
	"github.com/yungbote/biologidex-backend/internal/types"
)

type VisionHandler struct {
	visionService services.VisionService
	bucket        gcp.BucketService
}

func NewVisionHandler(visionService services.VisionService, bucket gcp.BucketService) *VisionHandler {
	return &VisionHandler{visionService: visionService, bucket: bucket}
}

// jobView decorates a job with a signed URL for its normalized image.
func (vh *VisionHandler) jobView(job *types.AnalysisJob) gin.H {
	view := gin.H{"job": job}
	if job.ProcessedBucketKey != "" {
		if url, err := vh.bucket.SignedURL(job.ProcessedBucketKey, 15*time.Minute); err == nil {
			view["dex_compatible_url"] = url
		}
	}
	return view
}

func (vh *VisionHandler) Submit(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		RespondError(c, http.StatusUnauthorized, CodeUnauthorized, errors.New("not authenticated"))
		return
	}
	var req struct {
		ConversionID        *uuid.UUID       `json:"conversion_id"`
		Image               string           `json:"image"`
		PostTransformations *imaging.Options `json:"post_conversion_transformations"`
		CVMethod            string           `json:"cv_method"`
		ModelName           string           `json:"model_name"`
		DetailLevel         string           `json:"detail_level"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, CodeValidation, errors.New("invalid request body"))
		return
	}

	var imageBytes []byte
	if req.Image != "" {
		decoded, err := base64.StdEncoding.DecodeString(req.Image)
		if err != nil {
			RespondError(c, http.StatusBadRequest, CodeValidation, errors.New("image must be base64 encoded"))
			return
		}
		imageBytes = decoded
	}

	job, err := vh.visionService.Submit(c.Request.Context(), userID, services.SubmitJobRequest{
		ConversionID:        req.ConversionID,
		ImageBytes:          imageBytes,
		PostTransformations: req.PostTransformations,
		CVMethod:            req.CVMethod,
		Model:               req.ModelName,
		Detail:              req.DetailLevel,
	})
	if err != nil {
		switch {
		case errors.Is(err, services.ErrSubmitImageChoice):
			RespondError(c, http.StatusBadRequest, CodeValidation, err)
		case errors.Is(err, services.ErrConversionUnbindable):
			RespondError(c, http.StatusBadRequest, CodeValidation, err)
		case errors.Is(err, services.ErrConversionGone):
			RespondError(c, http.StatusGone, CodeGone, err)
		case errors.Is(err, services.ErrConversionNotOwned):
			RespondError(c, http.StatusForbidden, CodeForbidden, err)
		default:
			RespondError(c, http.StatusInternalServerError, CodeInternal, err)
		}
		return
	}
	c.JSON(http.StatusCreated, vh.jobView(job))
}

func (vh *VisionHandler) Get(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		RespondError(c, http.StatusUnauthorized, CodeUnauthorized, errors.New("not authenticated"))
		return
	}
	jobID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, CodeValidation, errors.New("invalid job id"))
		return
	}
	job, err := vh.visionService.Get(c.Request.Context(), userID, jobID)
	if err != nil {
		vh.respondJobError(c, err)
		return
	}
	RespondOK(c, vh.jobView(job))
}

func (vh *VisionHandler) List(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		RespondError(c, http.StatusUnauthorized, CodeUnauthorized, errors.New("not authenticated"))
		return
	}
	limit := 50
	if raw := c.Query("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	jobs, err := vh.visionService.List(c.Request.Context(), userID, c.Query("status"), limit)
	if err != nil {
		RespondError(c, http.StatusInternalServerError, CodeInternal, err)
		return
	}
	RespondOK(c, gin.H{"jobs": jobs})
}

func (vh *VisionHandler) SelectAnimal(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		RespondError(c, http.StatusUnauthorized, CodeUnauthorized, errors.New("not authenticated"))
		return
	}
	jobID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, CodeValidation, errors.New("invalid job id"))
		return
	}
	var req struct {
		AnimalIndex *int       `json:"animal_index"`
		AnimalID    *uuid.UUID `json:"animal_id"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, CodeValidation, errors.New("invalid request body"))
		return
	}

	index := -1
	switch {
	case req.AnimalIndex != nil:
		index = *req.AnimalIndex
	case req.AnimalID != nil:
		// Resolve the id against the job's detection ordering.
		job, gErr := vh.visionService.Get(c.Request.Context(), userID, jobID)
		if gErr != nil {
			vh.respondJobError(c, gErr)
			return
		}
		detections, dErr := decodeDetections(job)
		if dErr != nil {
			RespondError(c, http.StatusInternalServerError, CodeInternal, dErr)
			return
		}
		for i, d := range detections {
			if d.AnimalID != nil && *d.AnimalID == *req.AnimalID {
				index = i
				break
			}
		}
		if index < 0 {
			RespondError(c, http.StatusBadRequest, CodeValidation, errors.New("animal_id is not among the job's detections"))
			return
		}
	default:
		RespondError(c, http.StatusBadRequest, CodeValidation, errors.New("animal_index or animal_id is required"))
		return
	}

	job, err := vh.visionService.SelectAnimal(c.Request.Context(), userID, jobID, index)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrNoDetections), errors.Is(err, services.ErrSelectionOutOfRange):
			RespondError(c, http.StatusBadRequest, CodeValidation, err)
		default:
			vh.respondJobError(c, err)
		}
		return
	}
	RespondOK(c, vh.jobView(job))
}

func (vh *VisionHandler) Retry(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		RespondError(c, http.StatusUnauthorized, CodeUnauthorized, errors.New("not authenticated"))
		return
	}
	jobID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, CodeValidation, errors.New("invalid job id"))
		return
	}
	job, err := vh.visionService.Retry(c.Request.Context(), userID, jobID)
	if err != nil {
		if errors.Is(err, services.ErrJobNotFailed) {
			RespondError(c, http.StatusConflict, CodeConflict, err)
			return
		}
		vh.respondJobError(c, err)
		return
	}
	RespondOK(c, vh.jobView(job))
}

func (vh *VisionHandler) respondJobError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, services.ErrJobNotFound):
		RespondError(c, http.StatusNotFound, CodeNotFound, err)
	case errors.Is(err, services.ErrJobNotOwned):
		RespondError(c, http.StatusForbidden, CodeForbidden, err)
	default:
		RespondError(c, http.StatusInternalServerError, CodeInternal, err)
	}
}

func decodeDetections(job *types.AnalysisJob) ([]types.DetectedAnimal, error) {
	var detections []types.DetectedAnimal
	if len(job.DetectedAnimals) == 0 {
		return detections, nil
	}
	if err := json.Unmarshal(job.DetectedAnimals, &detections); err != nil {
		return nil, err
	}
	return detections, nil
}
