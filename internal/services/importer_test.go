package services

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/yungbote/biologidex-backend/internal/types"
)

func TestImportBackoff(t *testing.T) {
	cases := []struct {
		retry int
		want  time.Duration
	}{
		{0, 5 * time.Minute},
		{1, 15 * time.Minute},
		{2, 45 * time.Minute},
	}
	for _, c := range cases {
		if got := ImportBackoff(c.retry); got != c.want {
			t.Fatalf("ImportBackoff(%d) = %v, want %v", c.retry, got, c.want)
		}
	}
}

func TestMapTaxonStatus(t *testing.T) {
	cases := map[string]string{
		"accepted":               types.TaxonStatusAccepted,
		"Provisionally Accepted": types.TaxonStatusProvisional,
		"synonym":                types.TaxonStatusSynonym,
		"ambiguous synonym":      types.TaxonStatusAmbiguous,
		"misapplied":             types.TaxonStatusMisapplied,
		"something else":         types.TaxonStatusDoubtful,
		"":                       types.TaxonStatusDoubtful,
	}
	for raw, want := range cases {
		if got := mapTaxonStatus(raw); got != want {
			t.Fatalf("mapTaxonStatus(%q) = %q, want %q", raw, got, want)
		}
	}
}

func TestMapNomenclaturalCode(t *testing.T) {
	if got := mapNomenclaturalCode("zoological"); got != "iczn" {
		t.Fatalf("zoological mapped to %q", got)
	}
	if got := mapNomenclaturalCode("Botanical"); got != "icn" {
		t.Fatalf("botanical mapped to %q", got)
	}
	if got := mapNomenclaturalCode("unknown"); got != "" {
		t.Fatalf("unknown code mapped to %q, want empty", got)
	}
}

func TestParseEnvironments(t *testing.T) {
	got := parseEnvironments("brackish, marine, terrestrial")
	want := []string{"marine", "terrestrial"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
	if parseEnvironments("") != nil {
		t.Fatal("empty input should yield nil")
	}
	if parseEnvironments("subterranean") != nil {
		t.Fatal("unknown environment should be dropped")
	}
}

func TestCompletenessScore(t *testing.T) {
	full := &types.RawTaxonRow{
		Kingdom:        "Animalia",
		Phylum:         "Chordata",
		Class:          "Mammalia",
		TaxonomicOrder: "Carnivora",
		Family:         "Canidae",
		Genus:          "Vulpes",
	}
	if got := completenessScore(full); got != 1.0 {
		t.Fatalf("full row scored %v, want 1.0", got)
	}
	half := &types.RawTaxonRow{Kingdom: "Animalia", Phylum: "Chordata", Genus: "Vulpes"}
	if got := completenessScore(half); got != 0.5 {
		t.Fatalf("half row scored %v, want 0.5", got)
	}
	if got := completenessScore(&types.RawTaxonRow{}); got != 0 {
		t.Fatalf("empty row scored %v, want 0", got)
	}
}

func TestOpenTSV_StripsColPrefix(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "NameUsage.tsv")
	content := "col:ID\tcol:scientificName\tcol:rank\n" +
		"ABC1\tVulpes vulpes\tspecies\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	table, err := openTSV(path)
	if err != nil {
		t.Fatalf("openTSV: %v", err)
	}
	defer table.Close()

	record, err := table.r.Read()
	if err != nil {
		t.Fatalf("read record: %v", err)
	}
	if got := table.get(record, "ID"); got != "ABC1" {
		t.Fatalf("ID = %q", got)
	}
	if got := table.get(record, "scientificName"); got != "Vulpes vulpes" {
		t.Fatalf("scientificName = %q", got)
	}
	if got := table.get(record, "missing"); got != "" {
		t.Fatalf("missing column = %q, want empty", got)
	}
}

func TestOpenTSV_LargeField(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "big.tsv")
	big := make([]byte, 256*1024)
	for i := range big {
		big[i] = 'x'
	}
	content := "col:ID\tcol:remarks\nR1\t" + string(big) + "\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	table, err := openTSV(path)
	if err != nil {
		t.Fatalf("openTSV: %v", err)
	}
	defer table.Close()

	record, err := table.r.Read()
	if err != nil {
		t.Fatalf("read record: %v", err)
	}
	if got := len(table.get(record, "remarks")); got != len(big) {
		t.Fatalf("remarks length = %d, want %d", got, len(big))
	}
}
