package errors

import (
	"context"
	"fmt"
	"strings"
	"testing"
)

func TestKindOf(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{ErrQueueFull, KindQueueFull},
		{fmt.Errorf("submit: %w", ErrUnknownKind), KindUnknownKind},
		{Wrap(ErrExtractionFailed, fmt.Errorf("bad json")), KindExtractionFailed},
		{fmt.Errorf("call: %w", context.DeadlineExceeded), KindTimeout},
		{fmt.Errorf("boom"), KindInternal},
	}
	for _, tc := range cases {
		if got := KindOf(tc.err); got != tc.want {
			t.Fatalf("KindOf(%v)=%q want %q", tc.err, got, tc.want)
		}
	}
}

func TestNewDetailRedactsSecrets(t *testing.T) {
	d := NewDetail("generate", fmt.Errorf("upstream rejected api_key=sk-abcdefghijklmnop: %w", ErrTransientLLM))
	if d.Kind != KindTransientLLM {
		t.Fatalf("kind=%q", d.Kind)
	}
	if strings.Contains(d.Message, "sk-abcdefghijklmnop") {
		t.Fatalf("secret leaked into detail: %q", d.Message)
	}
	if d.Stage != "generate" {
		t.Fatalf("stage=%q", d.Stage)
	}
}

func TestWrapKeepsOriginalMessage(t *testing.T) {
	err := Wrap(ErrDependencyMissing, fmt.Errorf("ocr adapter not configured"))
	if !Is(err, ErrDependencyMissing) {
		t.Fatalf("expected sentinel in chain")
	}
	if !strings.Contains(err.Error(), "ocr adapter not configured") {
		t.Fatalf("message lost: %q", err.Error())
	}
	if IsTransient(err) {
		t.Fatalf("dependency missing is not transient")
	}
}
