package apierr

import (
	"fmt"
	"net/http"

	apperrors "github.com/yungbote/qalam-backend/internal/pkg/errors"
)

type Error struct {
	Status int
	Code   string
	Err    error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	if e.Code != "" {
		return e.Code
	}
	if e.Status != 0 {
		return fmt.Sprintf("api error (%d)", e.Status)
	}
	return "api error"
}

func (e *Error) Unwrap() error { return e.Err }

func New(status int, code string, err error) *Error {
	return &Error{Status: status, Code: code, Err: err}
}

// FromError maps the error taxonomy onto HTTP semantics. QueueFull becomes 503 so
// upstream can retry.
func FromError(err error) *Error {
	if err == nil {
		return nil
	}
	var ae *Error
	if apperrors.As(err, &ae) {
		return ae
	}
	kind := apperrors.KindOf(err)
	switch kind {
	case apperrors.KindNotFound:
		return New(http.StatusNotFound, kind, err)
	case apperrors.KindInvalidArgument, apperrors.KindUnknownKind,
		apperrors.KindUnsupportedSourceKind, apperrors.KindEmptySource:
		return New(http.StatusBadRequest, kind, err)
	case apperrors.KindQueueFull:
		return New(http.StatusServiceUnavailable, kind, err)
	case apperrors.KindDependencyMissing:
		return New(http.StatusFailedDependency, kind, err)
	case apperrors.KindTimeout:
		return New(http.StatusGatewayTimeout, kind, err)
	default:
		return New(http.StatusInternalServerError, apperrors.KindInternal, err)
	}
}
