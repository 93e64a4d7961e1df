package openai

import (
	"math"
	"testing"
)

func TestCost_KnownModel(t *testing.T) {
	// gpt-4o: 0.0025 in / 0.01 out per 1K tokens.
	got := Cost("gpt-4o", 1000, 500)
	want := 0.0025 + 0.005
	if math.Abs(got-want) > 1e-9 {
		t.Fatalf("cost = %v, want %v", got, want)
	}
}

func TestCost_UnknownModelFallsBack(t *testing.T) {
	known := Cost("gpt-4o", 2000, 100)
	unknown := Cost("some-future-model", 2000, 100)
	if math.Abs(known-unknown) > 1e-12 {
		t.Fatalf("unknown model cost %v should equal gpt-4o cost %v", unknown, known)
	}
}

func TestCost_CaseInsensitiveModelName(t *testing.T) {
	a := Cost("GPT-5-Mini", 1000, 1000)
	b := Cost("gpt-5-mini", 1000, 1000)
	if a != b {
		t.Fatalf("model lookup should be case-insensitive: %v != %v", a, b)
	}
}

func TestUsesCompletionTokenCap(t *testing.T) {
	for _, m := range []string{"gpt-5", "gpt-5-mini", "o1-preview", "o3", "o4-mini"} {
		if !usesCompletionTokenCap(m) {
			t.Fatalf("expected %s to take max_completion_tokens", m)
		}
	}
	for _, m := range []string{"gpt-4o", "gpt-4.1", "gpt-4-turbo"} {
		if usesCompletionTokenCap(m) {
			t.Fatalf("expected %s to take max_tokens", m)
		}
	}
}
