package cv

import "testing"

func TestParseResponse_SingleAnimal(t *testing.T) {
	got, dropped := ParseResponse("Panthera, leo (Lion)")
	if len(got) != 1 {
		t.Fatalf("detections = %d, want 1", len(got))
	}
	if len(dropped) != 0 {
		t.Fatalf("dropped = %v, want none", dropped)
	}
	if got[0].ScientificName != "Panthera leo" {
		t.Fatalf("scientific name = %q", got[0].ScientificName)
	}
	if got[0].CommonName != "Lion" {
		t.Fatalf("common name = %q", got[0].CommonName)
	}
	if got[0].Confidence != 0.9 {
		t.Fatalf("confidence = %v, want 0.9", got[0].Confidence)
	}
}

func TestParseResponse_MultipleAnimals(t *testing.T) {
	got, _ := ParseResponse("Panthera, leo (Lion) | Equus, quagga (Plains Zebra) | Struthio, camelus (Ostrich)")
	if len(got) != 3 {
		t.Fatalf("detections = %d, want 3", len(got))
	}
	wantConf := []float64{0.9, 0.8, 0.7}
	for i, d := range got {
		if diff := d.Confidence - wantConf[i]; diff > 1e-9 || diff < -1e-9 {
			t.Fatalf("detection %d confidence = %v, want %v", i, d.Confidence, wantConf[i])
		}
	}
	if got[1].ScientificName != "Equus quagga" {
		t.Fatalf("second name = %q", got[1].ScientificName)
	}
}

func TestParseResponse_Subspecies(t *testing.T) {
	got, _ := ParseResponse("Panthera, tigris altaica (Siberian Tiger)")
	if len(got) != 1 {
		t.Fatalf("detections = %d, want 1", len(got))
	}
	if got[0].ScientificName != "Panthera tigris altaica" {
		t.Fatalf("scientific name = %q", got[0].ScientificName)
	}
}

func TestParseResponse_NoAnimalsSentinel(t *testing.T) {
	for _, raw := range []string{
		"NO ANIMALS FOUND",
		"no animals found",
		"**NO ANIMALS FOUND**",
		"  No Animals Found  ",
	} {
		got, dropped := ParseResponse(raw)
		if len(got) != 0 {
			t.Fatalf("ParseResponse(%q) = %v, want empty", raw, got)
		}
		if len(dropped) != 0 {
			t.Fatalf("ParseResponse(%q) dropped = %v, want none", raw, dropped)
		}
	}
}

func TestParseResponse_MarkdownStripped(t *testing.T) {
	got, _ := ParseResponse("*Canis, lupus* (Gray Wolf)")
	if len(got) != 1 || got[0].ScientificName != "Canis lupus" {
		t.Fatalf("got %v", got)
	}
}

func TestParseResponse_SkipsUnparseableEntries(t *testing.T) {
	got, dropped := ParseResponse("some freeform text | Canis, lupus (Wolf)")
	if len(got) != 1 {
		t.Fatalf("detections = %d, want 1", len(got))
	}
	if got[0].Confidence != 0.9 {
		t.Fatalf("confidence = %v, want 0.9 for first parsed entry", got[0].Confidence)
	}
	if len(dropped) != 1 || dropped[0] != "some freeform text" {
		t.Fatalf("dropped = %v, want the freeform entry", dropped)
	}
}

func TestParseResponse_EmptyAndWhitespace(t *testing.T) {
	if got, _ := ParseResponse(""); got != nil {
		t.Fatalf("empty input should return nil, got %v", got)
	}
	if got, _ := ParseResponse("   "); got != nil {
		t.Fatalf("whitespace input should return nil, got %v", got)
	}
}

func TestParseResponse_ConfidenceFloor(t *testing.T) {
	raw := "Aa, aa | Bb, bb | Cc, cc | Dd, dd | Ee, ee | Ff, ff | Gg, gg | Hh, hh | Ii, ii | Jj, jj | Kk, kk"
	got, _ := ParseResponse(raw)
	if len(got) != 11 {
		t.Fatalf("detections = %d, want 11", len(got))
	}
	if got[10].Confidence != 0 {
		t.Fatalf("11th confidence = %v, want 0 floor", got[10].Confidence)
	}
	if got[9].Confidence > 1e-9 {
		t.Fatalf("10th confidence = %v, want ~0", got[9].Confidence)
	}
}
