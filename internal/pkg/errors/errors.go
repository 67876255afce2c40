package errors

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/yungbote/qalam-backend/internal/platform/logger"
)

var (
	// ErrNotFound is a generic sentinel for missing resources.
	ErrNotFound = errors.New("not found")
	// ErrInvalidArgument is a generic sentinel for invalid input.
	ErrInvalidArgument = errors.New("invalid argument")

	ErrUnknownKind           = errors.New("unknown task kind")
	ErrQueueFull             = errors.New("queue full")
	ErrUnsupportedSourceKind = errors.New("unsupported source kind")
	ErrEmptySource           = errors.New("empty source")
	ErrExtractionFailed      = errors.New("extraction failed")
	ErrDependencyMissing     = errors.New("dependency missing")
	ErrCancellationRequested = errors.New("cancellation requested")
	ErrTransientLLM          = errors.New("transient llm error")
	ErrTransientNetwork      = errors.New("transient network error")
)

const (
	KindNotFound              = "not_found"
	KindInvalidArgument       = "invalid_argument"
	KindUnknownKind           = "unknown_kind"
	KindQueueFull             = "queue_full"
	KindUnsupportedSourceKind = "unsupported_source_kind"
	KindEmptySource           = "empty_source"
	KindExtractionFailed      = "extraction_failed"
	KindDependencyMissing     = "dependency_missing"
	KindCancellationRequested = "cancellation_requested"
	KindTransientLLM          = "transient_llm"
	KindTransientNetwork      = "transient_network"
	KindTimeout               = "timeout"
	KindInternal              = "internal"
)

var kindTable = []struct {
	err  error
	kind string
}{
	{ErrNotFound, KindNotFound},
	{ErrInvalidArgument, KindInvalidArgument},
	{ErrUnknownKind, KindUnknownKind},
	{ErrQueueFull, KindQueueFull},
	{ErrUnsupportedSourceKind, KindUnsupportedSourceKind},
	{ErrEmptySource, KindEmptySource},
	{ErrExtractionFailed, KindExtractionFailed},
	{ErrDependencyMissing, KindDependencyMissing},
	{ErrCancellationRequested, KindCancellationRequested},
	{ErrTransientLLM, KindTransientLLM},
	{ErrTransientNetwork, KindTransientNetwork},
	{context.DeadlineExceeded, KindTimeout},
}

// KindOf returns the stable kind string of the first taxonomy error found in err's chain.
func KindOf(err error) string {
	if err == nil {
		return ""
	}
	for _, k := range kindTable {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return KindInternal
}

// IsTransient reports whether err should be retried inside a handler.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransientLLM) || errors.Is(err, ErrTransientNetwork)
}

// Detail is the structured error persisted on a failed task.
type Detail struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
	Stage   string `json:"stage,omitempty"`
}

func NewDetail(stage string, err error) Detail {
	if err == nil {
		return Detail{}
	}
	return Detail{
		Kind:    KindOf(err),
		Message: logger.RedactMessage(strings.TrimSpace(err.Error())),
		Stage:   stage,
	}
}

func (d Detail) Error() string {
	if d.Kind == "" {
		return d.Message
	}
	return fmt.Sprintf("%s: %s", d.Kind, d.Message)
}

// Wrap annotates err with a taxonomy sentinel so KindOf sees it while the original
// message stays intact.
func Wrap(sentinel error, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sentinel) {
		return err
	}
	return &wrapped{sentinel: sentinel, err: err}
}

type wrapped struct {
	sentinel error
	err      error
}

func (w *wrapped) Error() string   { return w.sentinel.Error() + ": " + w.err.Error() }
func (w *wrapped) Unwrap() []error { return []error{w.sentinel, w.err} }

// Re-exports so callers importing this package under its own name still reach the stdlib helpers.
var (
	Is  = errors.Is
	As  = errors.As
	New = errors.New
)
