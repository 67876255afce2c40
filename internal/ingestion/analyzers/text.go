package analyzers

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/yungbote/qalam-backend/internal/ingestion/mdchunk"
	apperrors "github.com/yungbote/qalam-backend/internal/pkg/errors"
)

// analyzeText passes the whole document through as one chunk with no header path.
func (r *Registry) analyzeText(ctx context.Context, in Input, res *Result) error {
	data, err := r.load(ctx, in)
	if err != nil {
		return err
	}
	if !utf8.Valid(data) {
		data = []byte(strings.ToValidUTF8(string(data), "\uFFFD"))
	}
	body := strings.TrimSpace(strings.TrimPrefix(string(data), "\uFEFF"))
	if body == "" {
		return apperrors.ErrEmptySource
	}
	res.Chunks = []mdchunk.Chunk{{Text: body, Headers: []string{}, SourceType: in.Kind}}
	return nil
}
