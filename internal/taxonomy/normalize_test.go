package taxonomy

import "testing"

func TestNormalizeScientificName(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"panthera leo", "Panthera leo"},
		{"PANTHERA LEO", "Panthera leo"},
		{"  Panthera   leo  ", "Panthera leo"},
		{"Panthera sp.", "Panthera"},
		{"Panthera spp.", "Panthera"},
		{"Canis cf. lupus", "Canis lupus"},
		{"Panthera tigris ALTAICA", "Panthera tigris altaica"},
		{"", ""},
	}
	for _, c := range cases {
		if got := NormalizeScientificName(c.in); got != c.want {
			t.Fatalf("NormalizeScientificName(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestParser_Parse(t *testing.T) {
	p := NewParser()

	parts := p.Parse("Panthera leo (Linnaeus, 1758)")
	if !parts.Parsed {
		t.Fatal("expected name to parse")
	}
	if parts.Genus != "Panthera" || parts.Species != "leo" {
		t.Fatalf("epithets = %q %q", parts.Genus, parts.Species)
	}
	if parts.Subspecies != "" {
		t.Fatalf("unexpected subspecies %q", parts.Subspecies)
	}
	if parts.Canonical != "Panthera leo" {
		t.Fatalf("canonical = %q", parts.Canonical)
	}
}

func TestParser_Trinomial(t *testing.T) {
	p := NewParser()
	parts := p.Parse("Panthera tigris altaica Temminck, 1844")
	if parts.Genus != "Panthera" || parts.Species != "tigris" || parts.Subspecies != "altaica" {
		t.Fatalf("epithets = %q %q %q", parts.Genus, parts.Species, parts.Subspecies)
	}
}

func TestParser_Unparseable(t *testing.T) {
	p := NewParser()
	parts := p.Parse("not really a name 123")
	if parts.Parsed {
		t.Fatalf("expected parse failure, got %+v", parts)
	}
}
