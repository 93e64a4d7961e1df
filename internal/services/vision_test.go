package services

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/yungbote/biologidex-backend/internal/cv"
	"github.com/yungbote/biologidex-backend/internal/types"
)

func TestVisionBackoff(t *testing.T) {
	cases := []struct {
		retry int
		want  time.Duration
	}{
		{0, time.Minute},
		{1, 2 * time.Minute},
		{2, 4 * time.Minute},
	}
	for _, c := range cases {
		if got := VisionBackoff(c.retry); got != c.want {
			t.Fatalf("VisionBackoff(%d) = %v, want %v", c.retry, got, c.want)
		}
	}
}

func TestDefaultString(t *testing.T) {
	if got := defaultString("", "fallback"); got != "fallback" {
		t.Fatalf("empty value: got %q", got)
	}
	if got := defaultString("set", "fallback"); got != "set" {
		t.Fatalf("set value: got %q", got)
	}
}

func TestReconcileInputFromDetection(t *testing.T) {
	d := cv.Detection{ScientificName: "Canis lupus familiaris", CommonName: "dog", Confidence: 0.92}
	input := reconcileInputFromDetection(d)
	if input.Genus != "Canis" || input.Species != "lupus" || input.Subspecies != "familiaris" {
		t.Fatalf("split = %q/%q/%q", input.Genus, input.Species, input.Subspecies)
	}
	if input.CommonName != "dog" || input.CVConfidence != 0.92 {
		t.Fatalf("carried fields = %q/%v", input.CommonName, input.CVConfidence)
	}
}

func TestReconcileInputFromDetection_PartialNames(t *testing.T) {
	input := reconcileInputFromDetection(cv.Detection{ScientificName: "Canis"})
	if input.Genus != "Canis" || input.Species != "" || input.Subspecies != "" {
		t.Fatalf("genus-only split = %q/%q/%q", input.Genus, input.Species, input.Subspecies)
	}

	input = reconcileInputFromDetection(cv.Detection{})
	if input.Genus != "" || input.Species != "" {
		t.Fatalf("empty name split = %q/%q", input.Genus, input.Species)
	}
}

func TestVisionGet_Ownership(t *testing.T) {
	owner := uuid.New()
	job := &types.AnalysisJob{ID: uuid.New(), UserID: owner, Status: types.JobStatusCompleted}
	svc := &visionService{jobRepo: newFakeJobRepo(job)}

	if _, err := svc.Get(context.Background(), owner, job.ID); err != nil {
		t.Fatalf("owner get: %v", err)
	}
	if _, err := svc.Get(context.Background(), uuid.New(), job.ID); !errors.Is(err, ErrJobNotOwned) {
		t.Fatalf("foreign get: err = %v, want ErrJobNotOwned", err)
	}
	if _, err := svc.Get(context.Background(), owner, uuid.New()); !errors.Is(err, ErrJobNotFound) {
		t.Fatalf("missing get: err = %v, want ErrJobNotFound", err)
	}
}

func detectedAnimalsJSON(t *testing.T, detected []types.DetectedAnimal) datatypes.JSON {
	t.Helper()
	raw, err := json.Marshal(detected)
	if err != nil {
		t.Fatalf("marshal detections: %v", err)
	}
	return datatypes.JSON(raw)
}

func TestSelectAnimal_Validation(t *testing.T) {
	owner := uuid.New()
	empty := &types.AnalysisJob{ID: uuid.New(), UserID: owner, Status: types.JobStatusCompleted}
	svc := &visionService{jobRepo: newFakeJobRepo(empty)}

	if _, err := svc.SelectAnimal(context.Background(), owner, empty.ID, 0); !errors.Is(err, ErrNoDetections) {
		t.Fatalf("no detections: err = %v, want ErrNoDetections", err)
	}

	job := &types.AnalysisJob{
		ID:     uuid.New(),
		UserID: owner,
		Status: types.JobStatusCompleted,
		DetectedAnimals: detectedAnimalsJSON(t, []types.DetectedAnimal{
			{ScientificName: "Panthera leo"},
			{ScientificName: "Panthera onca"},
		}),
	}
	svc = &visionService{jobRepo: newFakeJobRepo(job)}

	for _, index := range []int{-1, 2} {
		if _, err := svc.SelectAnimal(context.Background(), owner, job.ID, index); !errors.Is(err, ErrSelectionOutOfRange) {
			t.Fatalf("index %d: err = %v, want ErrSelectionOutOfRange", index, err)
		}
	}
}

func TestSelectAnimal_RecordsSelection(t *testing.T) {
	owner := uuid.New()
	animalID := uuid.New()
	job := &types.AnalysisJob{
		ID:     uuid.New(),
		UserID: owner,
		Status: types.JobStatusCompleted,
		DetectedAnimals: detectedAnimalsJSON(t, []types.DetectedAnimal{
			{ScientificName: "Panthera leo"},
			{ScientificName: "Panthera onca", AnimalID: &animalID},
		}),
	}
	repo := newFakeJobRepo(job)
	svc := &visionService{jobRepo: repo}

	got, err := svc.SelectAnimal(context.Background(), owner, job.ID, 1)
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if got.SelectedIndex == nil || *got.SelectedIndex != 1 {
		t.Fatalf("selected index = %v, want 1", got.SelectedIndex)
	}
	if got.IdentifiedAnimalID == nil || *got.IdentifiedAnimalID != animalID {
		t.Fatalf("identified animal = %v, want %s", got.IdentifiedAnimalID, animalID)
	}
}

func TestSelectAnimal_Idempotent(t *testing.T) {
	owner := uuid.New()
	job := &types.AnalysisJob{
		ID:     uuid.New(),
		UserID: owner,
		Status: types.JobStatusCompleted,
		DetectedAnimals: detectedAnimalsJSON(t, []types.DetectedAnimal{
			{ScientificName: "Panthera leo"},
		}),
	}
	svc := &visionService{jobRepo: newFakeJobRepo(job)}

	for i := 0; i < 2; i++ {
		got, err := svc.SelectAnimal(context.Background(), owner, job.ID, 0)
		if err != nil {
			t.Fatalf("select pass %d: %v", i, err)
		}
		if got.SelectedIndex == nil || *got.SelectedIndex != 0 {
			t.Fatalf("pass %d selected index = %v, want 0", i, got.SelectedIndex)
		}
	}
}

func TestRetry_OnlyFailedJobs(t *testing.T) {
	owner := uuid.New()
	pending := &types.AnalysisJob{ID: uuid.New(), UserID: owner, Status: types.JobStatusPending}
	svc := &visionService{jobRepo: newFakeJobRepo(pending)}

	if _, err := svc.Retry(context.Background(), owner, pending.ID); !errors.Is(err, ErrJobNotFailed) {
		t.Fatalf("pending retry: err = %v, want ErrJobNotFailed", err)
	}
}

func TestRetry_RequeuesFailedJob(t *testing.T) {
	owner := uuid.New()
	failed := &types.AnalysisJob{
		ID:           uuid.New(),
		UserID:       owner,
		Status:       types.JobStatusFailed,
		ErrorMessage: "vision call failed",
		RetryCount:   2,
	}
	repo := newFakeJobRepo(failed)
	svc := &visionService{jobRepo: repo}

	got, err := svc.Retry(context.Background(), owner, failed.ID)
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if got.Status != types.JobStatusPending {
		t.Fatalf("status = %q, want pending", got.Status)
	}
	if got.ErrorMessage != "" {
		t.Fatalf("error message not cleared: %q", got.ErrorMessage)
	}
	if got.RetryCount != 2 {
		t.Fatalf("retry count = %d, want preserved 2", got.RetryCount)
	}
	if v, ok := repo.updates["next_attempt_at"]; !ok || v != nil {
		t.Fatalf("next_attempt_at update = %v, want explicit nil", v)
	}
}

type fakeJobRepo struct {
	jobs    map[uuid.UUID]*types.AnalysisJob
	updates map[string]interface{}
}

func newFakeJobRepo(jobs ...*types.AnalysisJob) *fakeJobRepo {
	m := make(map[uuid.UUID]*types.AnalysisJob, len(jobs))
	for _, j := range jobs {
		m[j.ID] = j
	}
	return &fakeJobRepo{jobs: m}
}

func (f *fakeJobRepo) Create(_ context.Context, _ *gorm.DB, job *types.AnalysisJob) (*types.AnalysisJob, error) {
	f.jobs[job.ID] = job
	return job, nil
}

func (f *fakeJobRepo) GetByID(_ context.Context, _ *gorm.DB, id uuid.UUID) (*types.AnalysisJob, error) {
	return f.jobs[id], nil
}

func (f *fakeJobRepo) ListByUser(_ context.Context, _ *gorm.DB, _ uuid.UUID, _ string, _ int) ([]*types.AnalysisJob, error) {
	return nil, nil
}

func (f *fakeJobRepo) UpdateFields(_ context.Context, _ *gorm.DB, id uuid.UUID, updates map[string]interface{}) error {
	f.updates = updates
	job, ok := f.jobs[id]
	if !ok {
		return nil
	}
	if v, ok := updates["status"].(string); ok {
		job.Status = v
	}
	if v, ok := updates["error_message"].(string); ok {
		job.ErrorMessage = v
	}
	if v, ok := updates["selected_index"].(int); ok {
		idx := v
		job.SelectedIndex = &idx
	}
	if v, ok := updates["identified_animal_id"].(*uuid.UUID); ok {
		job.IdentifiedAnimalID = v
	}
	return nil
}

func (f *fakeJobRepo) ClaimNextRunnable(_ context.Context, _ *gorm.DB, _ time.Duration) (*types.AnalysisJob, error) {
	return nil, nil
}

func (f *fakeJobRepo) Heartbeat(_ context.Context, _ *gorm.DB, _ uuid.UUID) error {
	return nil
}
