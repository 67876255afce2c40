package gcp

import (
	"context"
	"os"
	"strings"
	"time"

	"google.golang.org/api/option"

	"github.com/yungbote/qalam-backend/internal/pkg/httpx"
)

func ClientOptionsFromEnv() []option.ClientOption {
	creds := strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS_JSON"))
	if creds == "" {
		creds = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}
	if creds == "" {
		return nil
	}
	if strings.HasPrefix(creds, "{") {
		return []option.ClientOption{option.WithCredentialsJSON([]byte(creds))}
	}
	return []option.ClientOption{option.WithCredentialsFile(creds)}
}

// LanguageCode turns a short hint ("ar", "en") into the BCP-47 code the speech and video
// APIs expect. Full codes pass through.
func LanguageCode(hint string) string {
	h := strings.TrimSpace(hint)
	switch strings.ToLower(h) {
	case "":
		return "ar-SA"
	case "ar":
		return "ar-SA"
	case "en":
		return "en-US"
	}
	return h
}

func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(strings.ReplaceAll(s, "\u00a0", " ")), " ")
}

// retry runs fn until it succeeds, returns a non-retryable error, or maxRetries is spent.
func retry[T any](ctx context.Context, maxRetries int, fn func() (T, error)) (T, error) {
	var zero T
	backoff := 750 * time.Millisecond
	var last error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, err
		}
		out, err := fn()
		if err == nil {
			return out, nil
		}
		last = err
		if !httpx.IsRetryableError(err) || attempt == maxRetries {
			break
		}
		if err := httpx.Sleep(ctx, httpx.JitterSleep(backoff)); err != nil {
			return zero, err
		}
		backoff *= 2
		if backoff > 10*time.Second {
			backoff = 10 * time.Second
		}
	}
	return zero, last
}
