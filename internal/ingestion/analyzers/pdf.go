package analyzers

import (
	"context"
	"fmt"

	"github.com/yungbote/qalam-backend/internal/ingestion/mdchunk"
	"github.com/yungbote/qalam-backend/internal/ingestion/pdfmd"
)

func (r *Registry) analyzePDF(ctx context.Context, in Input, res *Result) error {
	if r.PDF == nil {
		return missing("pdf extractor")
	}
	data, err := r.load(ctx, in)
	if err != nil {
		return err
	}
	md, err := r.PDF.Convert(ctx, data)
	if err != nil {
		return fmt.Errorf("convert pdf: %w", err)
	}
	if pdfmd.IsErrorReport(md) {
		// Unreadable PDFs produce an empty extraction, not a failed source.
		res.warn(md)
		res.Chunks = []mdchunk.Chunk{}
		return nil
	}
	res.Chunks = mdchunk.Collect(md, in.Kind)
	if len(res.Chunks) == 0 {
		res.warn("no text found in document")
	}
	return nil
}
