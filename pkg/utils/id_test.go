package utils

import (
	"strings"
	"testing"
)

func TestGenerateSessionID(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := GenerateSessionID()
		if !strings.HasPrefix(id, "sess-") {
			t.Fatalf("Expected sess- prefix, got %s", id)
		}
		if seen[id] {
			t.Fatalf("Duplicate session ID %s", id)
		}
		seen[id] = true
	}
}

func TestGenerateFitID(t *testing.T) {
	id := GenerateFitID()
	if !strings.HasPrefix(id, "fit-") {
		t.Errorf("Expected fit- prefix, got %s", id)
	}
	if len(id) != len("fit-20060102-150405-")+8 {
		t.Errorf("Unexpected fit ID length: %s", id)
	}
}
