package pdfmd

import (
	"context"
	"strings"

	"github.com/yungbote/qalam-backend/internal/platform/logger"
)

// Extractor converts PDF bytes to Markdown.
type Extractor interface {
	Convert(ctx context.Context, data []byte) (string, error)
}

// LayoutExtractor adapts Converter to Extractor. Unreadable documents come back as an
// error report, never as an error.
type LayoutExtractor struct {
	Converter *Converter
}

func NewLayoutExtractor(log *logger.Logger) *LayoutExtractor {
	return &LayoutExtractor{Converter: NewConverter(log)}
}

func (e *LayoutExtractor) Convert(ctx context.Context, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return e.Converter.Convert(data), nil
}

// FallbackExtractor tries Primary (a hosted document service) and falls back to the
// layout converter when Primary is unset, fails, or returns nothing.
type FallbackExtractor struct {
	Primary  Extractor
	Fallback Extractor
	log      *logger.Logger
}

func NewFallbackExtractor(log *logger.Logger, primary Extractor) *FallbackExtractor {
	if log == nil {
		log = logger.NewNop()
	}
	return &FallbackExtractor{
		Primary:  primary,
		Fallback: NewLayoutExtractor(log),
		log:      log.With("component", "PDFExtractor"),
	}
}

func (e *FallbackExtractor) Convert(ctx context.Context, data []byte) (string, error) {
	if e.Primary != nil {
		md, err := e.Primary.Convert(ctx, data)
		switch {
		case err == nil && strings.TrimSpace(md) != "":
			return md, nil
		case ctx.Err() != nil:
			return "", ctx.Err()
		case err != nil:
			e.log.Warn("primary pdf extractor failed; using layout fallback", "error", err)
		default:
			e.log.Debug("primary pdf extractor returned no text; using layout fallback")
		}
	}
	return e.Fallback.Convert(ctx, data)
}
