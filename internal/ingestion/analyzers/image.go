package analyzers

import (
	"context"
	"fmt"
)

func (r *Registry) analyzeImage(ctx context.Context, in Input, res *Result) error {
	if r.OCR == nil {
		return missing("OCR adapter")
	}
	data, err := r.load(ctx, in)
	if err != nil {
		return err
	}
	text, err := r.OCR.OCR(ctx, data, r.LanguageHint)
	if err != nil {
		return fmt.Errorf("ocr: %w", err)
	}
	res.OCRText = text

	if r.Vision == nil {
		return nil
	}
	va, err := r.Vision.Analyze(ctx, data)
	if err != nil {
		res.warn("visual analysis failed: " + err.Error())
		return nil
	}
	res.VisualAnalysis = va
	return nil
}
