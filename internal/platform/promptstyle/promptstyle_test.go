package promptstyle

import (
	"strings"
	"testing"
)

func TestApplySystemIdempotent(t *testing.T) {
	once := ApplySystem("Write a scene.", "text")
	if !strings.HasSuffix(once, "Write a scene.") || !strings.HasPrefix(once, marker) {
		t.Fatalf("unexpected prompt: %q", once)
	}
	if twice := ApplySystem(once, "text"); twice != once {
		t.Fatalf("second application changed the prompt")
	}
	if ApplySystem("  ", "json") != "" {
		t.Fatalf("blank system should stay blank")
	}
	if !strings.Contains(ApplySystem("x", "json"), "single JSON object") {
		t.Fatalf("json mode guidance missing")
	}
}
