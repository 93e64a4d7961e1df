package services

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/biologidex-backend/internal/clients/redis"
	"github.com/yungbote/biologidex-backend/internal/pkg/logger"
	"github.com/yungbote/biologidex-backend/internal/taxonomy"
	"github.com/yungbote/biologidex-backend/internal/types"
)

func taxonWithInfra(infra string) *types.Taxon {
	return &types.Taxon{
		ScientificName:       "Canis lupus " + infra,
		GenericName:          "Canis",
		SpecificEpithet:      "lupus",
		InfraspecificEpithet: infra,
	}
}

func TestPickBySubspecies_NoRequest(t *testing.T) {
	taxa := []*types.Taxon{taxonWithInfra("familiaris"), taxonWithInfra("")}
	if got := pickBySubspecies(taxa, ""); got != taxa[0] {
		t.Fatal("without a requested subspecies the first candidate should win")
	}
}

func TestPickBySubspecies_ExactBeatsContainment(t *testing.T) {
	containment := taxonWithInfra("familiaris major")
	exact := taxonWithInfra("familiaris")
	bare := taxonWithInfra("")
	taxa := []*types.Taxon{containment, bare, exact}

	if got := pickBySubspecies(taxa, "familiaris"); got != exact {
		t.Fatalf("picked %q, want exact bucket", got.InfraspecificEpithet)
	}
}

func TestPickBySubspecies_FallsBackToContainment(t *testing.T) {
	containment := taxonWithInfra("familiaris major")
	bare := taxonWithInfra("")
	taxa := []*types.Taxon{bare, containment}

	if got := pickBySubspecies(taxa, "familiaris"); got != containment {
		t.Fatalf("picked %q, want containment bucket", got.InfraspecificEpithet)
	}
}

func TestPickBySubspecies_FallsBackToBare(t *testing.T) {
	bare := taxonWithInfra("")
	other := taxonWithInfra("arctos")
	taxa := []*types.Taxon{other, bare}

	if got := pickBySubspecies(taxa, "familiaris"); got != bare {
		t.Fatalf("picked %q, want bare bucket", got.InfraspecificEpithet)
	}
}

func TestPickBySubspecies_NoBucketMatches(t *testing.T) {
	taxa := []*types.Taxon{taxonWithInfra("arctos")}
	if got := pickBySubspecies(taxa, "familiaris"); got != nil {
		t.Fatalf("picked %q, want nil", got.InfraspecificEpithet)
	}
}

func TestPickBySubspecies_Empty(t *testing.T) {
	if pickBySubspecies(nil, "familiaris") != nil {
		t.Fatal("empty candidate set should yield nil")
	}
}

func acceptedTaxon(name string) *types.Taxon {
	taxon := &types.Taxon{
		ID:             uuid.New(),
		ScientificName: name,
		Status:         types.TaxonStatusAccepted,
	}
	fields := strings.Fields(name)
	if len(fields) > 0 {
		taxon.GenericName = fields[0]
	}
	if len(fields) > 1 {
		taxon.SpecificEpithet = fields[1]
	}
	if len(fields) > 2 {
		taxon.InfraspecificEpithet = fields[2]
	}
	return taxon
}

func newTestReconciler(t *testing.T, taxa *fakeTaxonRepo, common *fakeCommonNameRepo, relations *fakeNameRelationRepo, cache *fakeCache) *reconcilerService {
	t.Helper()
	log, err := logger.New("test")
	if err != nil {
		t.Fatalf("logger.New: %v", err)
	}
	return &reconcilerService{
		log:          log,
		taxonRepo:    taxa,
		commonRepo:   common,
		relationRepo: relations,
		cache:        cache,
		parser:       taxonomy.NewParser(),
	}
}

func TestReconcile_ExactFieldsWins(t *testing.T) {
	want := acceptedTaxon("Panthera leo")
	taxa := &fakeTaxonRepo{exactFields: []*types.Taxon{want}}
	cache := newFakeCache()
	rs := newTestReconciler(t, taxa, &fakeCommonNameRepo{}, &fakeNameRelationRepo{}, cache)

	result, err := rs.Reconcile(context.Background(), ReconcileInput{Genus: "Panthera", Species: "leo"})
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if result.Stage != "exact_fields" {
		t.Fatalf("stage = %q, want exact_fields", result.Stage)
	}
	if result.Taxon == nil || result.Taxon.ID != want.ID {
		t.Fatalf("taxon mismatch: got %+v", result.Taxon)
	}
	if taxa.byNameCalls != 0 {
		t.Fatalf("later stages ran: byNameCalls=%d", taxa.byNameCalls)
	}
	if cache.sets != 1 {
		t.Fatalf("cache sets = %d, want 1", cache.sets)
	}
}

func TestReconcile_FallsThroughToExactName(t *testing.T) {
	want := acceptedTaxon("Panthera leo")
	taxa := &fakeTaxonRepo{byName: []*types.Taxon{want}}
	rs := newTestReconciler(t, taxa, &fakeCommonNameRepo{}, &fakeNameRelationRepo{}, newFakeCache())

	result, err := rs.Reconcile(context.Background(), ReconcileInput{Genus: "Panthera", Species: "leo"})
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if result.Stage != "exact_name" {
		t.Fatalf("stage = %q, want exact_name", result.Stage)
	}
	if taxa.exactCalls != 1 {
		t.Fatalf("exactCalls = %d, want 1", taxa.exactCalls)
	}
}

func TestReconcile_CommonNameStageNeedsName(t *testing.T) {
	common := &fakeCommonNameRepo{byName: []*types.Taxon{acceptedTaxon("Panthera leo")}}
	rs := newTestReconciler(t, &fakeTaxonRepo{}, common, &fakeNameRelationRepo{}, newFakeCache())

	result, err := rs.Reconcile(context.Background(), ReconcileInput{Genus: "Panthera", Species: "leo"})
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if common.byNameCalls != 0 {
		t.Fatal("common-name stage ran without a common name")
	}
	if result.Stage != "none" {
		t.Fatalf("stage = %q, want none", result.Stage)
	}
	if !strings.Contains(result.Message, "Panthera leo") {
		t.Fatalf("message = %q, want the normalized name", result.Message)
	}
}

func TestReconcile_CommonNameMatch(t *testing.T) {
	want := acceptedTaxon("Panthera leo")
	common := &fakeCommonNameRepo{byName: []*types.Taxon{want}}
	rs := newTestReconciler(t, &fakeTaxonRepo{}, common, &fakeNameRelationRepo{}, newFakeCache())

	result, err := rs.Reconcile(context.Background(), ReconcileInput{Genus: "Panthera", Species: "leo", CommonName: "lion"})
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if result.Stage != "exact_common_name" {
		t.Fatalf("stage = %q, want exact_common_name", result.Stage)
	}
	if result.Taxon.ID != want.ID {
		t.Fatal("taxon mismatch")
	}
}

func TestReconcile_CacheHitSkipsMatch(t *testing.T) {
	cached := &ReconcileResult{Taxon: acceptedTaxon("Panthera leo"), Stage: "exact_name", Message: "exact scientific name match"}
	cache := newFakeCache()
	key := redis.TaxonomyKey(taxonomy.NormalizeScientificName("Panthera leo"), "COL")
	raw, err := json.Marshal(cached)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	cache.store[key] = raw

	taxa := &fakeTaxonRepo{}
	rs := newTestReconciler(t, taxa, &fakeCommonNameRepo{}, &fakeNameRelationRepo{}, cache)

	result, err := rs.Reconcile(context.Background(), ReconcileInput{Genus: "Panthera", Species: "leo", SourceCode: "COL"})
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if taxa.exactCalls != 0 {
		t.Fatal("cache hit should not reach the matcher")
	}
	if result.Stage != "exact_name" || result.Taxon == nil || result.Taxon.ID != cached.Taxon.ID {
		t.Fatalf("cached result not returned: %+v", result)
	}
}

func TestReconcile_SynonymFollowsAcceptedName(t *testing.T) {
	accepted := acceptedTaxon("Panthera leo")
	synonym := acceptedTaxon("Felis leo")
	synonym.Status = types.TaxonStatusSynonym
	synonym.AcceptedNameID = &accepted.ID

	taxa := &fakeTaxonRepo{
		byName: []*types.Taxon{synonym},
		byID:   map[uuid.UUID]*types.Taxon{accepted.ID: accepted},
	}
	rs := newTestReconciler(t, taxa, &fakeCommonNameRepo{}, &fakeNameRelationRepo{}, newFakeCache())

	result, err := rs.Reconcile(context.Background(), ReconcileInput{Genus: "Felis", Species: "leo"})
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if result.Taxon.ID != accepted.ID {
		t.Fatalf("taxon = %q, want the accepted name", result.Taxon.ScientificName)
	}
	if !strings.Contains(result.Message, "resolved via accepted name") {
		t.Fatalf("message = %q", result.Message)
	}
}

func TestResolveSynonym_NameRelationFallback(t *testing.T) {
	accepted := acceptedTaxon("Panthera leo")
	synonym := acceptedTaxon("Felis leo")
	synonym.Status = types.TaxonStatusSynonym

	relations := &fakeNameRelationRepo{related: accepted}
	rs := newTestReconciler(t, &fakeTaxonRepo{}, &fakeCommonNameRepo{}, relations, newFakeCache())

	got, msg, err := rs.resolveSynonym(context.Background(), synonym)
	if err != nil {
		t.Fatalf("resolveSynonym: %v", err)
	}
	if got.ID != accepted.ID {
		t.Fatalf("taxon = %q, want the related accepted name", got.ScientificName)
	}
	if msg != "resolved via name relation" {
		t.Fatalf("message = %q", msg)
	}
}

func TestResolveSynonym_BinomialContraction(t *testing.T) {
	accepted := acceptedTaxon("Canis familiaris")
	synonym := acceptedTaxon("Canis lupus familiaris")
	synonym.Status = types.TaxonStatusSynonym

	taxa := &fakeTaxonRepo{acceptedNames: map[string]*types.Taxon{"Canis familiaris": accepted}}
	rs := newTestReconciler(t, taxa, &fakeCommonNameRepo{}, &fakeNameRelationRepo{}, newFakeCache())

	got, msg, err := rs.resolveSynonym(context.Background(), synonym)
	if err != nil {
		t.Fatalf("resolveSynonym: %v", err)
	}
	if taxa.lastAcceptedQuery != "Canis familiaris" {
		t.Fatalf("contracted lookup = %q, want genus + last epithet", taxa.lastAcceptedQuery)
	}
	if got.ID != accepted.ID {
		t.Fatalf("taxon = %q, want the contracted binomial", got.ScientificName)
	}
	if msg != "resolved via binomial contraction" {
		t.Fatalf("message = %q", msg)
	}
}

func TestResolveSynonym_KeepsUnresolvable(t *testing.T) {
	synonym := acceptedTaxon("Felis leo")
	synonym.Status = types.TaxonStatusSynonym

	rs := newTestReconciler(t, &fakeTaxonRepo{}, &fakeCommonNameRepo{}, &fakeNameRelationRepo{}, newFakeCache())

	got, msg, err := rs.resolveSynonym(context.Background(), synonym)
	if err != nil {
		t.Fatalf("resolveSynonym: %v", err)
	}
	if got != synonym {
		t.Fatal("unresolvable synonym should be kept")
	}
	if msg == "" {
		t.Fatal("expected an explanatory message")
	}
}

func TestResolveSynonym_BoundsChainDepth(t *testing.T) {
	a := acceptedTaxon("Felis leo")
	b := acceptedTaxon("Felis leonis")
	a.Status = types.TaxonStatusSynonym
	b.Status = types.TaxonStatusSynonym
	a.AcceptedNameID = &b.ID
	b.AcceptedNameID = &a.ID

	taxa := &fakeTaxonRepo{byID: map[uuid.UUID]*types.Taxon{a.ID: a, b.ID: b}}
	rs := newTestReconciler(t, taxa, &fakeCommonNameRepo{}, &fakeNameRelationRepo{}, newFakeCache())

	if _, _, err := rs.resolveSynonym(context.Background(), a); err == nil {
		t.Fatal("cyclic accepted-name chain should error out")
	}
}

func TestRepairFields_BackfillsEpithets(t *testing.T) {
	taxa := &fakeTaxonRepo{}
	rs := newTestReconciler(t, taxa, &fakeCommonNameRepo{}, &fakeNameRelationRepo{}, newFakeCache())
	taxon := &types.Taxon{ID: uuid.New(), ScientificName: "Canis lupus", Status: types.TaxonStatusAccepted}

	if err := rs.repairFields(context.Background(), taxon); err != nil {
		t.Fatalf("repairFields: %v", err)
	}
	if taxon.GenericName != "Canis" || taxon.SpecificEpithet != "lupus" {
		t.Fatalf("fields = %q/%q, want Canis/lupus", taxon.GenericName, taxon.SpecificEpithet)
	}
	if taxa.updates["generic_name"] != "Canis" || taxa.updates["specific_epithet"] != "lupus" {
		t.Fatalf("persisted updates = %v", taxa.updates)
	}
}

type fakeTaxonRepo struct {
	exactFields   []*types.Taxon
	byName        []*types.Taxon
	fuzzyFields   []*types.Taxon
	nameContains  []*types.Taxon
	byID          map[uuid.UUID]*types.Taxon
	acceptedNames map[string]*types.Taxon

	exactCalls        int
	byNameCalls       int
	updates           map[string]interface{}
	lastAcceptedQuery string
}

func (f *fakeTaxonRepo) GetByID(_ context.Context, _ *gorm.DB, id uuid.UUID) (*types.Taxon, error) {
	return f.byID[id], nil
}

func (f *fakeTaxonRepo) MapSourceRowIDs(_ context.Context, _ *gorm.DB, _ uuid.UUID, _ []string) (map[string]uuid.UUID, error) {
	return nil, nil
}

func (f *fakeTaxonRepo) Upsert(_ context.Context, _ *gorm.DB, taxon *types.Taxon) (*types.Taxon, error) {
	return taxon, nil
}

func (f *fakeTaxonRepo) UpdateFields(_ context.Context, _ *gorm.DB, _ uuid.UUID, updates map[string]interface{}) error {
	f.updates = updates
	return nil
}

func (f *fakeTaxonRepo) Count(_ context.Context, _ *gorm.DB) (int64, error) {
	return 0, nil
}

func (f *fakeTaxonRepo) FindExactFields(_ context.Context, _ *gorm.DB, _, _, _, _ string) ([]*types.Taxon, error) {
	f.exactCalls++
	return f.exactFields, nil
}

func (f *fakeTaxonRepo) FindByScientificName(_ context.Context, _ *gorm.DB, _, _ string) ([]*types.Taxon, error) {
	f.byNameCalls++
	return f.byName, nil
}

func (f *fakeTaxonRepo) FindFuzzyFields(_ context.Context, _ *gorm.DB, _, _, _ string) ([]*types.Taxon, error) {
	return f.fuzzyFields, nil
}

func (f *fakeTaxonRepo) FindByScientificNameContains(_ context.Context, _ *gorm.DB, _, _ string, _ int) ([]*types.Taxon, error) {
	return f.nameContains, nil
}

func (f *fakeTaxonRepo) FindAcceptedByScientificName(_ context.Context, _ *gorm.DB, name string) (*types.Taxon, error) {
	f.lastAcceptedQuery = name
	return f.acceptedNames[name], nil
}

type fakeCommonNameRepo struct {
	byName       []*types.Taxon
	nameContains []*types.Taxon
	byNameCalls  int
}

func (f *fakeCommonNameRepo) BulkInsert(_ context.Context, _ *gorm.DB, _ []*types.CommonName, _ int) error {
	return nil
}

func (f *fakeCommonNameRepo) FindTaxaByName(_ context.Context, _ *gorm.DB, _, _ string) ([]*types.Taxon, error) {
	f.byNameCalls++
	return f.byName, nil
}

func (f *fakeCommonNameRepo) FindTaxaByNameContains(_ context.Context, _ *gorm.DB, _, _ string, _ int) ([]*types.Taxon, error) {
	return f.nameContains, nil
}

type fakeNameRelationRepo struct {
	related *types.Taxon
}

func (f *fakeNameRelationRepo) BulkInsert(_ context.Context, _ *gorm.DB, _ []*types.NameRelation, _ int) error {
	return nil
}

func (f *fakeNameRelationRepo) FindRelatedAccepted(_ context.Context, _ *gorm.DB, _ uuid.UUID, _ []string) (*types.Taxon, error) {
	return f.related, nil
}

type fakeCache struct {
	store map[string][]byte
	sets  int
}

func newFakeCache() *fakeCache {
	return &fakeCache{store: map[string][]byte{}}
}

func (f *fakeCache) Get(_ context.Context, key string, out any) error {
	raw, ok := f.store[key]
	if !ok {
		return redis.ErrCacheMiss
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(raw, out)
}

func (f *fakeCache) Set(_ context.Context, key string, value any, _ time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	f.store[key] = raw
	f.sets++
	return nil
}

func (f *fakeCache) Delete(_ context.Context, keys ...string) error {
	for _, k := range keys {
		delete(f.store, k)
	}
	return nil
}

func (f *fakeCache) DeleteByPrefix(_ context.Context, _ string) error {
	return nil
}

func (f *fakeCache) Close() error {
	return nil
}
