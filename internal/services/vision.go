package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/yungbote/biologidex-backend/internal/clients/gcp"
	"github.com/yungbote/biologidex-backend/internal/clients/openai"
	"github.com/yungbote/biologidex-backend/internal/cv"
	"github.com/yungbote/biologidex-backend/internal/imaging"
	"github.com/yungbote/biologidex-backend/internal/pkg/logger"
	"github.com/yungbote/biologidex-backend/internal/repos"
	"github.com/yungbote/biologidex-backend/internal/types"
)

const (
	// visionMaxRetries bounds transient-error reruns of a job.
	visionMaxRetries = 3
	// visionBackoffBase seeds the 60s * 2^retry_count schedule.
	visionBackoffBase = time.Minute
	// visionStaleRunning is how long a processing job may go without a
	// heartbeat before another worker may reclaim it.
	visionStaleRunning = 5 * time.Minute
)

var (
	ErrJobNotFound         = fmt.Errorf("analysis job not found")
	ErrJobNotOwned         = fmt.Errorf("analysis job belongs to another user")
	ErrJobNotFailed        = fmt.Errorf("only failed jobs can be retried")
	ErrNoDetections        = fmt.Errorf("job has no detected animals")
	ErrSelectionOutOfRange = fmt.Errorf("animal selection index out of range")
	ErrSubmitImageChoice   = fmt.Errorf("provide exactly one of conversion_id or image")
)

// VisionBackoff computes the delay before retry attempt n (the value of
// retry_count after incrementing).
func VisionBackoff(retryCount int) time.Duration {
	return visionBackoffBase * time.Duration(1<<uint(retryCount))
}

type SubmitJobRequest struct {
	ConversionID        *uuid.UUID
	ImageBytes          []byte
	PostTransformations *imaging.Options
	CVMethod            string
	Model               string
	Detail              string
}

type VisionService interface {
	Submit(ctx context.Context, userID uuid.UUID, req SubmitJobRequest) (*types.AnalysisJob, error)
	Get(ctx context.Context, userID, jobID uuid.UUID) (*types.AnalysisJob, error)
	List(ctx context.Context, userID uuid.UUID, status string, limit int) ([]*types.AnalysisJob, error)
	SelectAnimal(ctx context.Context, userID, jobID uuid.UUID, index int) (*types.AnalysisJob, error)
	Retry(ctx context.Context, userID, jobID uuid.UUID) (*types.AnalysisJob, error)

	// ClaimNext pulls the next runnable job for a worker, or nil.
	ClaimNext(ctx context.Context) (*types.AnalysisJob, error)
	// ExecutePass runs one worker pass over a claimed job.
	ExecutePass(ctx context.Context, job *types.AnalysisJob) error
	Heartbeat(ctx context.Context, jobID uuid.UUID) error
}

type visionService struct {
	db          *gorm.DB
	log         *logger.Logger
	jobRepo     repos.AnalysisJobRepo
	conversions ConversionService
	reconciler  ReconcilerService
	animals     AnimalService
	visionAPI   openai.VisionClient
	bucket      gcp.BucketService
}

func NewVisionService(
	db *gorm.DB,
	log *logger.Logger,
	jobRepo repos.AnalysisJobRepo,
	conversions ConversionService,
	reconciler ReconcilerService,
	animals AnimalService,
	visionAPI openai.VisionClient,
	bucket gcp.BucketService,
) VisionService {
	return &visionService{
		db:          db,
		log:         log.With("service", "VisionService"),
		jobRepo:     jobRepo,
		conversions: conversions,
		reconciler:  reconciler,
		animals:     animals,
		visionAPI:   visionAPI,
		bucket:      bucket,
	}
}

func jobOriginalKey(id uuid.UUID) string  { return fmt.Sprintf("jobs/%s/original", id) }
func jobProcessedKey(id uuid.UUID) string { return fmt.Sprintf("jobs/%s/image.png", id) }

func (vs *visionService) Submit(ctx context.Context, userID uuid.UUID, req SubmitJobRequest) (*types.AnalysisJob, error) {
	hasConversion := req.ConversionID != nil
	hasImage := len(req.ImageBytes) > 0
	if hasConversion == hasImage {
		return nil, ErrSubmitImageChoice
	}

	job := &types.AnalysisJob{
		ID:          uuid.New(),
		UserID:      userID,
		Status:      types.JobStatusPending,
		CVMethod:    defaultString(req.CVMethod, "openai"),
		ModelName:   defaultString(req.Model, vs.visionAPI.DefaultModel()),
		DetailLevel: defaultString(req.Detail, "auto"),
	}
	if req.PostTransformations != nil {
		raw, err := json.Marshal(req.PostTransformations)
		if err != nil {
			return nil, err
		}
		job.PostTransformations = datatypes.JSON(raw)
	}

	if hasImage {
		// Legacy path: raw bytes are stashed as-is and normalized by the
		// worker with the requested post transformations.
		if err := vs.bucket.UploadBytes(ctx, jobOriginalKey(job.ID), req.ImageBytes); err != nil {
			return nil, fmt.Errorf("upload job image: %w", err)
		}
		job.OriginalBucketKey = jobOriginalKey(job.ID)
	}

	err := vs.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if hasConversion {
			conversion, cErr := vs.conversions.Claim(ctx, tx, userID, *req.ConversionID)
			if cErr != nil {
				return cErr
			}
			// The job takes its own copy of the normalized PNG so the
			// conversion objects can age out without orphaning the job.
			if cErr := vs.bucket.CopyObject(ctx, conversion.ConvertedBucketKey, jobProcessedKey(job.ID)); cErr != nil {
				return fmt.Errorf("copy converted image: %w", cErr)
			}
			job.ConversionID = &conversion.ID
			job.ProcessedBucketKey = jobProcessedKey(job.ID)
		}
		_, cErr := vs.jobRepo.Create(ctx, tx, job)
		return cErr
	})
	if err != nil {
		return nil, err
	}

	// The worker loop picks the job up after commit; creating it in
	// pending state is the scheduling act.
	vs.log.Info("analysis job submitted", "job_id", job.ID, "user_id", userID, "model", job.ModelName)
	return job, nil
}

func defaultString(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

func (vs *visionService) Get(ctx context.Context, userID, jobID uuid.UUID) (*types.AnalysisJob, error) {
	job, err := vs.jobRepo.GetByID(ctx, nil, jobID)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, ErrJobNotFound
	}
	if job.UserID != userID {
		return nil, ErrJobNotOwned
	}
	return job, nil
}

func (vs *visionService) List(ctx context.Context, userID uuid.UUID, status string, limit int) ([]*types.AnalysisJob, error) {
	return vs.jobRepo.ListByUser(ctx, nil, userID, status, limit)
}

func (vs *visionService) ClaimNext(ctx context.Context) (*types.AnalysisJob, error) {
	return vs.jobRepo.ClaimNextRunnable(ctx, nil, visionStaleRunning)
}

func (vs *visionService) Heartbeat(ctx context.Context, jobID uuid.UUID) error {
	return vs.jobRepo.Heartbeat(ctx, nil, jobID)
}

// ExecutePass runs the full identification pipeline for one claimed
// job. Transient vision errors reschedule with exponential backoff;
// everything else fails the job.
func (vs *visionService) ExecutePass(ctx context.Context, job *types.AnalysisJob) error {
	imageBytes, err := vs.loadProcessedImage(ctx, job)
	if err != nil {
		return vs.fail(ctx, job, err)
	}

	identifyResult, err := vs.visionAPI.Identify(ctx, openai.IdentifyRequest{
		ImageBytes: imageBytes,
		Mime:       "image/png",
		Model:      job.ModelName,
		Detail:     job.DetailLevel,
	})
	if err != nil {
		if openai.IsTransient(err) && job.RetryCount < visionMaxRetries {
			return vs.reschedule(ctx, job, err)
		}
		return vs.fail(ctx, job, err)
	}

	detections, dropped := cv.ParseResponse(identifyResult.Prediction)
	for _, entry := range dropped {
		vs.log.Warn("unparseable prediction entry", "job_id", job.ID, "entry", entry)
	}
	detected, firstAnimalID := vs.resolveDetections(ctx, job, detections)

	detectedJSON, err := json.Marshal(detected)
	if err != nil {
		return vs.fail(ctx, job, err)
	}

	now := time.Now()
	updates := map[string]interface{}{
		"status":               types.JobStatusCompleted,
		"parsed_prediction":    identifyResult.Prediction,
		"detected_animals":     datatypes.JSON(detectedJSON),
		"raw_response":         datatypes.JSON(identifyResult.Raw),
		"cost_usd":             identifyResult.CostUSD,
		"processing_time_secs": identifyResult.ProcessingTime,
		"input_tokens":         identifyResult.InputTokens,
		"output_tokens":        identifyResult.OutputTokens,
		"error_message":        "",
		"completed_at":         &now,
	}
	if firstAnimalID != nil {
		updates["identified_animal_id"] = firstAnimalID
	}
	if err := vs.jobRepo.UpdateFields(ctx, nil, job.ID, updates); err != nil {
		return err
	}

	vs.log.Info("analysis job completed",
		"job_id", job.ID,
		"detections", len(detected),
		"cost_usd", identifyResult.CostUSD)
	return nil
}

// loadProcessedImage returns the normalized PNG, running the legacy
// raw-image path through the normalization pipeline on first need.
func (vs *visionService) loadProcessedImage(ctx context.Context, job *types.AnalysisJob) ([]byte, error) {
	if job.ProcessedBucketKey != "" {
		return vs.bucket.DownloadBytes(ctx, job.ProcessedBucketKey)
	}
	if job.OriginalBucketKey == "" {
		return nil, fmt.Errorf("job has no image attached")
	}

	raw, err := vs.bucket.DownloadBytes(ctx, job.OriginalBucketKey)
	if err != nil {
		return nil, err
	}

	var opts imaging.Options
	if len(job.PostTransformations) > 0 {
		if err := json.Unmarshal(job.PostTransformations, &opts); err != nil {
			return nil, fmt.Errorf("decode post transformations: %w", err)
		}
	}
	result, err := imaging.Normalize(raw, opts)
	if err != nil {
		return nil, err
	}

	key := jobProcessedKey(job.ID)
	if err := vs.bucket.UploadBytes(ctx, key, result.PNG); err != nil {
		return nil, err
	}
	if err := vs.jobRepo.UpdateFields(ctx, nil, job.ID, map[string]interface{}{
		"processed_bucket_key": key,
	}); err != nil {
		return nil, err
	}
	job.ProcessedBucketKey = key
	return result.PNG, nil
}

// resolveDetections reconciles each parsed entity and upserts canonical
// animals. Reconciliation failures degrade to unverified animals rather
// than failing the completed vision call.
func (vs *visionService) resolveDetections(ctx context.Context, job *types.AnalysisJob, detections []cv.Detection) ([]types.DetectedAnimal, *uuid.UUID) {
	detected := make([]types.DetectedAnimal, 0, len(detections))
	var firstAnimalID *uuid.UUID

	for _, d := range detections {
		entry := types.DetectedAnimal{
			ScientificName: d.ScientificName,
			CommonName:     d.CommonName,
			Confidence:     d.Confidence,
		}

		input := reconcileInputFromDetection(d)
		result, err := vs.reconciler.Reconcile(ctx, input)
		if err != nil {
			vs.log.Warn("reconciliation failed", "job_id", job.ID, "name", d.ScientificName, "error", err)
		}

		var animal *types.Animal
		var created bool
		if result != nil && result.Taxon != nil {
			animal, created, err = vs.animals.UpsertFromTaxon(ctx, result.Taxon, d.CommonName, d.Confidence, job.UserID)
		} else {
			animal, created, err = vs.animals.UpsertUnverified(ctx, d.ScientificName, d.CommonName, d.Confidence, job.UserID)
		}
		if err != nil {
			vs.log.Warn("animal upsert failed", "job_id", job.ID, "name", d.ScientificName, "error", err)
		} else if animal != nil {
			entry.AnimalID = &animal.ID
			entry.IsNew = created
			if firstAnimalID == nil {
				firstAnimalID = &animal.ID
			}
		}
		detected = append(detected, entry)
	}
	return detected, firstAnimalID
}

func reconcileInputFromDetection(d cv.Detection) ReconcileInput {
	input := ReconcileInput{CommonName: d.CommonName, CVConfidence: d.Confidence}
	fields := strings.Fields(d.ScientificName)
	if len(fields) > 0 {
		input.Genus = fields[0]
	}
	if len(fields) > 1 {
		input.Species = fields[1]
	}
	if len(fields) > 2 {
		input.Subspecies = fields[2]
	}
	return input
}

func (vs *visionService) reschedule(ctx context.Context, job *types.AnalysisJob, cause error) error {
	retryCount := job.RetryCount + 1
	nextAttempt := time.Now().Add(VisionBackoff(retryCount))
	vs.log.Warn("transient vision error, rescheduling",
		"job_id", job.ID,
		"retry_count", retryCount,
		"next_attempt_at", nextAttempt,
		"error", cause)
	return vs.jobRepo.UpdateFields(ctx, nil, job.ID, map[string]interface{}{
		"status":          types.JobStatusPending,
		"retry_count":     retryCount,
		"next_attempt_at": &nextAttempt,
		"error_message":   cause.Error(),
	})
}

func (vs *visionService) fail(ctx context.Context, job *types.AnalysisJob, cause error) error {
	vs.log.Error("analysis job failed", "job_id", job.ID, "error", cause)
	now := time.Now()
	return vs.jobRepo.UpdateFields(ctx, nil, job.ID, map[string]interface{}{
		"status":        types.JobStatusFailed,
		"error_message": cause.Error(),
		"completed_at":  &now,
	})
}

// SelectAnimal is idempotent: re-selecting the same index succeeds and
// leaves the job unchanged.
func (vs *visionService) SelectAnimal(ctx context.Context, userID, jobID uuid.UUID, index int) (*types.AnalysisJob, error) {
	job, err := vs.Get(ctx, userID, jobID)
	if err != nil {
		return nil, err
	}

	var detected []types.DetectedAnimal
	if len(job.DetectedAnimals) > 0 {
		if err := json.Unmarshal(job.DetectedAnimals, &detected); err != nil {
			return nil, fmt.Errorf("decode detected animals: %w", err)
		}
	}
	if len(detected) == 0 {
		return nil, ErrNoDetections
	}
	if index < 0 || index >= len(detected) {
		return nil, ErrSelectionOutOfRange
	}

	updates := map[string]interface{}{"selected_index": index}
	if detected[index].AnimalID != nil {
		updates["identified_animal_id"] = detected[index].AnimalID
	}
	if err := vs.jobRepo.UpdateFields(ctx, nil, job.ID, updates); err != nil {
		return nil, err
	}
	return vs.Get(ctx, userID, jobID)
}

// Retry requeues a failed job. retry_count survives so the backoff
// history is preserved.
func (vs *visionService) Retry(ctx context.Context, userID, jobID uuid.UUID) (*types.AnalysisJob, error) {
	job, err := vs.Get(ctx, userID, jobID)
	if err != nil {
		return nil, err
	}
	if job.Status != types.JobStatusFailed {
		return nil, ErrJobNotFailed
	}
	if err := vs.jobRepo.UpdateFields(ctx, nil, job.ID, map[string]interface{}{
		"status":          types.JobStatusPending,
		"error_message":   "",
		"next_attempt_at": nil,
		"completed_at":    nil,
	}); err != nil {
		return nil, err
	}
	return vs.Get(ctx, userID, jobID)
}
