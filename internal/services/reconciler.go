package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/yungbote/biologidex-backend/internal/clients/redis"
	"github.com/yungbote/biologidex-backend/internal/pkg/logger"
	"github.com/yungbote/biologidex-backend/internal/repos"
	"github.com/yungbote/biologidex-backend/internal/taxonomy"
	"github.com/yungbote/biologidex-backend/internal/types"
)

// synonymRelationTypes are the name-relation kinds that may point a
// synonym at its accepted taxon.
var synonymRelationTypes = []string{"spelling correction", "basionym", "homotypic synonym"}

// maxSynonymDepth bounds accepted-name chain walks. Malformed imports
// can produce cycles.
const maxSynonymDepth = 64

const fuzzyNameLimit = 10

// ReconcileInput is one parsed CV identification.
type ReconcileInput struct {
	Genus        string
	Species      string
	Subspecies   string
	CommonName   string
	CVConfidence float64
	SourceCode   string
}

// ReconcileResult reports the matched reference taxon, if any, and how
// it was found.
type ReconcileResult struct {
	Taxon   *types.Taxon `json:"taxon"`
	Stage   string       `json:"stage"`
	Message string       `json:"message"`
}

type ReconcilerService interface {
	Reconcile(ctx context.Context, input ReconcileInput) (*ReconcileResult, error)
}

type reconcilerService struct {
	db           *gorm.DB
	log          *logger.Logger
	taxonRepo    repos.TaxonRepo
	commonRepo   repos.CommonNameRepo
	relationRepo repos.NameRelationRepo
	cache        redis.CacheClient
	parser       *taxonomy.Parser
}

func NewReconcilerService(
	db *gorm.DB,
	log *logger.Logger,
	taxonRepo repos.TaxonRepo,
	commonRepo repos.CommonNameRepo,
	relationRepo repos.NameRelationRepo,
	cache redis.CacheClient,
) ReconcilerService {
	return &reconcilerService{
		db:           db,
		log:          log.With("service", "ReconcilerService"),
		taxonRepo:    taxonRepo,
		commonRepo:   commonRepo,
		relationRepo: relationRepo,
		cache:        cache,
		parser:       taxonomy.NewParser(),
	}
}

func (rs *reconcilerService) Reconcile(ctx context.Context, input ReconcileInput) (*ReconcileResult, error) {
	name := input.Genus + " " + input.Species
	if input.Subspecies != "" {
		name += " " + input.Subspecies
	}
	normalized := taxonomy.NormalizeScientificName(name)
	cacheKey := redis.TaxonomyKey(normalized, input.SourceCode)

	var cached ReconcileResult
	if err := rs.cache.Get(ctx, cacheKey, &cached); err == nil {
		return &cached, nil
	} else if !errors.Is(err, redis.ErrCacheMiss) {
		rs.log.Warn("taxonomy cache read failed", "key", cacheKey, "error", err)
	}

	result, err := rs.match(ctx, input, normalized)
	if err != nil {
		return nil, err
	}

	if result.Taxon != nil {
		resolved, msg, rErr := rs.resolveSynonym(ctx, result.Taxon)
		if rErr != nil {
			return nil, rErr
		}
		result.Taxon = resolved
		if msg != "" {
			result.Message = strings.TrimSpace(result.Message + " " + msg)
		}
		if fErr := rs.repairFields(ctx, result.Taxon); fErr != nil {
			rs.log.Warn("field repair failed", "taxon_id", result.Taxon.ID, "error", fErr)
		}
	}

	if err := rs.cache.Set(ctx, cacheKey, result, redis.TaxonomyTTL); err != nil {
		rs.log.Warn("taxonomy cache write failed", "key", cacheKey, "error", err)
	}
	return result, nil
}

func (rs *reconcilerService) match(ctx context.Context, input ReconcileInput, normalized string) (*ReconcileResult, error) {
	// Stage 1: exact fields.
	taxa, err := rs.taxonRepo.FindExactFields(ctx, nil, input.Genus, input.Species, input.Subspecies, input.SourceCode)
	if err != nil {
		return nil, err
	}
	if len(taxa) > 0 {
		return &ReconcileResult{Taxon: taxa[0], Stage: "exact_fields", Message: "exact field match"}, nil
	}

	// Stage 2: exact scientific name.
	taxa, err = rs.taxonRepo.FindByScientificName(ctx, nil, normalized, input.SourceCode)
	if err != nil {
		return nil, err
	}
	if len(taxa) > 0 {
		return &ReconcileResult{Taxon: taxa[0], Stage: "exact_name", Message: "exact scientific name match"}, nil
	}

	// Stage 3: exact common name.
	if input.CommonName != "" {
		taxa, err = rs.commonRepo.FindTaxaByName(ctx, nil, input.CommonName, input.SourceCode)
		if err != nil {
			return nil, err
		}
		if len(taxa) > 0 {
			return &ReconcileResult{Taxon: taxa[0], Stage: "exact_common_name", Message: "exact common name match"}, nil
		}
	}

	// Stage 4: fuzzy fields, bucketed by subspecies affinity.
	taxa, err = rs.taxonRepo.FindFuzzyFields(ctx, nil, input.Genus, input.Species, input.SourceCode)
	if err != nil {
		return nil, err
	}
	if picked := pickBySubspecies(taxa, input.Subspecies); picked != nil {
		return &ReconcileResult{Taxon: picked, Stage: "fuzzy_fields", Message: "fuzzy field match"}, nil
	}

	// Stage 5: fuzzy scientific name.
	taxa, err = rs.taxonRepo.FindByScientificNameContains(ctx, nil, normalized, input.SourceCode, fuzzyNameLimit)
	if err != nil {
		return nil, err
	}
	if len(taxa) > 0 {
		return &ReconcileResult{Taxon: taxa[0], Stage: "fuzzy_name", Message: "fuzzy scientific name match"}, nil
	}

	// Stage 6: fuzzy common name.
	if input.CommonName != "" {
		taxa, err = rs.commonRepo.FindTaxaByNameContains(ctx, nil, input.CommonName, input.SourceCode, fuzzyNameLimit)
		if err != nil {
			return nil, err
		}
		if len(taxa) > 0 {
			return &ReconcileResult{Taxon: taxa[0], Stage: "fuzzy_common_name", Message: "fuzzy common name match"}, nil
		}
	}

	return &ReconcileResult{Stage: "none", Message: fmt.Sprintf("no taxon found for %q", normalized)}, nil
}

// pickBySubspecies keeps the first non-empty bucket: exact subspecies
// match, containment match, then rows without a subspecies. With no
// requested subspecies the first candidate wins as-is.
func pickBySubspecies(taxa []*types.Taxon, subspecies string) *types.Taxon {
	if len(taxa) == 0 {
		return nil
	}
	if subspecies == "" {
		return taxa[0]
	}

	sub := strings.ToLower(subspecies)
	var exact, containment, bare []*types.Taxon
	for _, t := range taxa {
		infra := strings.ToLower(t.InfraspecificEpithet)
		switch {
		case infra == sub:
			exact = append(exact, t)
		case infra != "" && (strings.Contains(infra, sub) || strings.Contains(sub, infra)):
			containment = append(containment, t)
		case infra == "":
			bare = append(bare, t)
		}
	}
	for _, bucket := range [][]*types.Taxon{exact, containment, bare} {
		if len(bucket) > 0 {
			return bucket[0]
		}
	}
	return nil
}

// resolveSynonym walks a synonym to its accepted taxon: accepted_name
// chain first, then name relations, then a binomial contraction of a
// trinomial name. An unresolvable synonym is kept.
func (rs *reconcilerService) resolveSynonym(ctx context.Context, taxon *types.Taxon) (*types.Taxon, string, error) {
	if taxon.Status != types.TaxonStatusSynonym {
		return taxon, "", nil
	}

	current := taxon
	for depth := 0; current.AcceptedNameID != nil; depth++ {
		if depth >= maxSynonymDepth {
			return nil, "", fmt.Errorf("accepted-name chain exceeds depth %d at taxon %s", maxSynonymDepth, current.ID)
		}
		next, err := rs.taxonRepo.GetByID(ctx, nil, *current.AcceptedNameID)
		if err != nil {
			return nil, "", err
		}
		if next == nil {
			break
		}
		current = next
		if current.Status != types.TaxonStatusSynonym {
			return current, "resolved via accepted name", nil
		}
	}

	related, err := rs.relationRepo.FindRelatedAccepted(ctx, nil, taxon.ID, synonymRelationTypes)
	if err != nil {
		return nil, "", err
	}
	if related != nil {
		return related, "resolved via name relation", nil
	}

	parts := strings.Fields(taxon.ScientificName)
	if len(parts) >= 3 {
		contracted := parts[0] + " " + parts[len(parts)-1]
		accepted, aErr := rs.taxonRepo.FindAcceptedByScientificName(ctx, nil, contracted)
		if aErr != nil {
			return nil, "", aErr
		}
		if accepted != nil {
			return accepted, "resolved via binomial contraction", nil
		}
	}

	return taxon, "synonym could not be resolved to an accepted taxon", nil
}

// repairFields backfills empty epithet columns from the scientific name
// and persists the repair.
func (rs *reconcilerService) repairFields(ctx context.Context, taxon *types.Taxon) error {
	if taxon.GenericName != "" && taxon.SpecificEpithet != "" {
		return nil
	}

	parts := rs.parser.Parse(taxon.ScientificName)
	if !parts.Parsed {
		return nil
	}

	updates := map[string]interface{}{}
	if taxon.GenericName == "" && parts.Genus != "" {
		taxon.GenericName = parts.Genus
		updates["generic_name"] = parts.Genus
	}
	if taxon.SpecificEpithet == "" && parts.Species != "" {
		taxon.SpecificEpithet = parts.Species
		updates["specific_epithet"] = parts.Species
	}
	if taxon.InfraspecificEpithet == "" && parts.Subspecies != "" {
		taxon.InfraspecificEpithet = parts.Subspecies
		updates["infraspecific_epithet"] = parts.Subspecies
	}
	if len(updates) == 0 {
		return nil
	}
	return rs.taxonRepo.UpdateFields(ctx, nil, taxon.ID, updates)
}
