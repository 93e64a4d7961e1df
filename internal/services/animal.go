package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/biologidex-backend/internal/pkg/logger"
	"github.com/yungbote/biologidex-backend/internal/repos"
	"github.com/yungbote/biologidex-backend/internal/types"
)

// creationIndexRetries bounds the insert loop under creation_index
// contention.
const creationIndexRetries = 5

type AnimalService interface {
	// UpsertFromTaxon finds or creates the canonical animal for a
	// reconciled reference taxon. Returns the animal and whether it was
	// created.
	UpsertFromTaxon(ctx context.Context, taxon *types.Taxon, commonName string, cvConfidence float64, createdBy uuid.UUID) (*types.Animal, bool, error)
	// UpsertUnverified creates or finds an animal for an identification
	// the reconciler could not map onto the reference corpus.
	UpsertUnverified(ctx context.Context, scientificName, commonName string, cvConfidence float64, createdBy uuid.UUID) (*types.Animal, bool, error)
	Get(ctx context.Context, id uuid.UUID) (*types.Animal, error)
	// RecompactCreationIndices renumbers animals 1..n in creation order,
	// closing gaps left by deletes. Administrative.
	RecompactCreationIndices(ctx context.Context) (int, error)
}

type animalService struct {
	db         *gorm.DB
	log        *logger.Logger
	animalRepo repos.AnimalRepo
}

func NewAnimalService(db *gorm.DB, log *logger.Logger, animalRepo repos.AnimalRepo) AnimalService {
	return &animalService{
		db:         db,
		log:        log.With("service", "AnimalService"),
		animalRepo: animalRepo,
	}
}

func (s *animalService) UpsertFromTaxon(ctx context.Context, taxon *types.Taxon, commonName string, cvConfidence float64, createdBy uuid.UUID) (*types.Animal, bool, error) {
	if commonName == "" {
		commonName = taxon.ScientificName
	}
	confidence := cvConfidence
	if taxon.ConfidenceScore > confidence {
		confidence = taxon.ConfidenceScore
	}

	existing, err := s.animalRepo.GetByScientificName(ctx, nil, taxon.ScientificName)
	if err != nil {
		return nil, false, err
	}
	if existing != nil {
		// Re-identifications refresh the hierarchy and upgrade unverified
		// records to verified ones.
		if confidence < existing.TaxonomyConfidence {
			confidence = existing.TaxonomyConfidence
		}
		updates := map[string]interface{}{
			"common_name":         commonName,
			"kingdom":             taxon.Kingdom,
			"phylum":              taxon.Phylum,
			"class":               taxon.Class,
			"taxonomic_order":     taxon.TaxonomicOrder,
			"family":              taxon.Family,
			"genus":               taxon.GenericName,
			"species":             taxon.SpecificEpithet,
			"verified":            true,
			"verification_method": "taxonomy",
			"taxonomy_id":         taxon.ID,
			"taxonomy_confidence": confidence,
		}
		if err := s.animalRepo.UpdateFields(ctx, nil, existing.ID, updates); err != nil {
			return nil, false, err
		}
		refreshed, gErr := s.animalRepo.GetByID(ctx, nil, existing.ID)
		if gErr != nil {
			return nil, false, gErr
		}
		return refreshed, false, nil
	}

	animal := &types.Animal{
		ScientificName:     taxon.ScientificName,
		CommonName:         commonName,
		Kingdom:            taxon.Kingdom,
		Phylum:             taxon.Phylum,
		Class:              taxon.Class,
		TaxonomicOrder:     taxon.TaxonomicOrder,
		Family:             taxon.Family,
		Genus:              taxon.GenericName,
		Species:            taxon.SpecificEpithet,
		CreatedByUserID:    &createdBy,
		Verified:           true,
		VerificationMethod: "taxonomy",
		TaxonomyID:         &taxon.ID,
		TaxonomyConfidence: confidence,
	}
	created, err := s.insertWithCreationIndex(ctx, animal)
	if err != nil {
		return nil, false, err
	}
	return created, true, nil
}

func (s *animalService) UpsertUnverified(ctx context.Context, scientificName, commonName string, cvConfidence float64, createdBy uuid.UUID) (*types.Animal, bool, error) {
	existing, err := s.animalRepo.GetByScientificName(ctx, nil, scientificName)
	if err != nil {
		return nil, false, err
	}
	if existing != nil {
		return existing, false, nil
	}

	fields := strings.Fields(scientificName)
	animal := &types.Animal{
		ScientificName:     scientificName,
		CommonName:         commonName,
		CreatedByUserID:    &createdBy,
		Verified:           false,
		VerificationMethod: "cv",
		TaxonomyConfidence: cvConfidence,
	}
	if len(fields) > 0 {
		animal.Genus = fields[0]
	}
	if len(fields) > 1 {
		animal.Species = fields[1]
	}
	created, err := s.insertWithCreationIndex(ctx, animal)
	if err != nil {
		return nil, false, err
	}
	return created, true, nil
}

// insertWithCreationIndex assigns creation_index = max+1 inside a
// transaction and retries when a concurrent insert steals the index or
// the scientific name unique constraint fires.
func (s *animalService) insertWithCreationIndex(ctx context.Context, animal *types.Animal) (*types.Animal, error) {
	var lastErr error
	for attempt := 0; attempt < creationIndexRetries; attempt++ {
		err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			maxIdx, mErr := s.animalRepo.MaxCreationIndex(ctx, tx)
			if mErr != nil {
				return mErr
			}
			animal.ID = uuid.New()
			animal.CreationIndex = maxIdx + 1
			_, cErr := s.animalRepo.Create(ctx, tx, animal)
			return cErr
		})
		if err == nil {
			s.log.Info("animal created",
				"animal_id", animal.ID,
				"scientific_name", animal.ScientificName,
				"creation_index", animal.CreationIndex)
			return animal, nil
		}
		lastErr = err
		if !strings.Contains(err.Error(), "duplicate") && !strings.Contains(err.Error(), "unique") {
			return nil, err
		}
		// A concurrent insert may have won the scientific name race.
		existing, gErr := s.animalRepo.GetByScientificName(ctx, nil, animal.ScientificName)
		if gErr != nil {
			return nil, gErr
		}
		if existing != nil {
			return existing, nil
		}
	}
	return nil, fmt.Errorf("insert animal after %d attempts: %w", creationIndexRetries, lastErr)
}

func (s *animalService) Get(ctx context.Context, id uuid.UUID) (*types.Animal, error) {
	return s.animalRepo.GetByID(ctx, nil, id)
}

// RecompactCreationIndices renumbers in two phases. Phase one parks
// every row on a negative index so the unique constraint cannot collide
// mid-renumber; phase two assigns the final dense sequence.
func (s *animalService) RecompactCreationIndices(ctx context.Context) (int, error) {
	var count int
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		animals, err := s.animalRepo.ListOrderedForRenumber(ctx, tx)
		if err != nil {
			return err
		}
		for i, animal := range animals {
			if err := s.animalRepo.UpdateFields(ctx, tx, animal.ID, map[string]interface{}{
				"creation_index": -(i + 1),
			}); err != nil {
				return err
			}
		}
		for i, animal := range animals {
			if err := s.animalRepo.UpdateFields(ctx, tx, animal.ID, map[string]interface{}{
				"creation_index": i + 1,
			}); err != nil {
				return err
			}
		}
		count = len(animals)
		return nil
	})
	if err != nil {
		return 0, err
	}
	s.log.Info("creation indices recompacted", "count", count)
	return count, nil
}
