package utils

import (
	"strings"
	"testing"
)

func TestGenerateFriendCode_Format(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		code, err := GenerateFriendCode()
		if err != nil {
			t.Fatalf("generate: %v", err)
		}
		if len(code) != FriendCodeLength {
			t.Fatalf("unexpected length %d for %q", len(code), code)
		}
		for _, r := range code {
			if !strings.ContainsRune(friendCodeAlphabet, r) {
				t.Fatalf("character %q outside alphabet in %q", r, code)
			}
		}
		seen[code] = true
	}
	if len(seen) < 2 {
		t.Fatalf("expected varied codes, got %d distinct", len(seen))
	}
}
