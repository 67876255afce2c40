package gcp

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	vision "cloud.google.com/go/vision/v2/apiv1"
	visionpb "cloud.google.com/go/vision/v2/apiv1/visionpb"

	"github.com/yungbote/qalam-backend/internal/platform/logger"
)

type Vision interface {
	OCR(ctx context.Context, img []byte, languageHint string) (string, error)
	Analyze(ctx context.Context, img []byte) (*VisualAnalysis, error)
	Close() error
}

type Label struct {
	Description string  `json:"description"`
	Score       float64 `json:"score"`
}

type VisualAnalysis struct {
	Labels    []Label  `json:"labels,omitempty"`
	Landmarks []string `json:"landmarks,omitempty"`
	Faces     int      `json:"faces"`
}

type visionService struct {
	log        *logger.Logger
	client     *vision.ImageAnnotatorClient
	maxRetries int
}

func NewVision(log *logger.Logger) (Vision, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	c, err := vision.NewImageAnnotatorClient(context.Background(), ClientOptionsFromEnv()...)
	if err != nil {
		return nil, fmt.Errorf("vision client: %w", err)
	}
	return &visionService{log: log.With("service", "gcp.Vision"), client: c, maxRetries: 3}, nil
}

func (s *visionService) Close() error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Close()
}

func (s *visionService) annotate(ctx context.Context, req *visionpb.AnnotateImageRequest) (*visionpb.AnnotateImageResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, 60*time.Second)
	defer cancel()
	br := &visionpb.BatchAnnotateImagesRequest{Requests: []*visionpb.AnnotateImageRequest{req}}
	resp, err := retry(ctx, s.maxRetries, func() (*visionpb.BatchAnnotateImagesResponse, error) {
		return s.client.BatchAnnotateImages(ctx, br)
	})
	if err != nil {
		return nil, fmt.Errorf("vision BatchAnnotateImages: %w", err)
	}
	if resp == nil || len(resp.Responses) == 0 || resp.Responses[0] == nil {
		return &visionpb.AnnotateImageResponse{}, nil
	}
	r0 := resp.Responses[0]
	if r0.Error != nil && r0.Error.Message != "" {
		return nil, fmt.Errorf("vision annotate error: %s", r0.Error.Message)
	}
	return r0, nil
}

func (s *visionService) OCR(ctx context.Context, img []byte, languageHint string) (string, error) {
	if len(img) == 0 {
		return "", nil
	}
	req := &visionpb.AnnotateImageRequest{
		Image:    &visionpb.Image{Content: img},
		Features: []*visionpb.Feature{{Type: visionpb.Feature_DOCUMENT_TEXT_DETECTION}},
	}
	if hint := strings.TrimSpace(languageHint); hint != "" {
		req.ImageContext = &visionpb.ImageContext{LanguageHints: []string{hint, "en"}}
	}
	r0, err := s.annotate(ctx, req)
	if err != nil {
		return "", err
	}
	if r0.FullTextAnnotation == nil {
		return "", nil
	}
	// Line structure is kept.
	lines := strings.Split(r0.FullTextAnnotation.Text, "\n")
	out := make([]string, 0, len(lines))
	for _, l := range lines {
		if l = collapseWhitespace(l); l != "" {
			out = append(out, l)
		}
	}
	return strings.Join(out, "\n"), nil
}

func (s *visionService) Analyze(ctx context.Context, img []byte) (*VisualAnalysis, error) {
	if len(img) == 0 {
		return &VisualAnalysis{}, nil
	}
	r0, err := s.annotate(ctx, &visionpb.AnnotateImageRequest{
		Image: &visionpb.Image{Content: img},
		Features: []*visionpb.Feature{
			{Type: visionpb.Feature_LABEL_DETECTION, MaxResults: 10},
			{Type: visionpb.Feature_LANDMARK_DETECTION, MaxResults: 5},
			{Type: visionpb.Feature_FACE_DETECTION, MaxResults: 20},
		},
	})
	if err != nil {
		return nil, err
	}
	out := &VisualAnalysis{Faces: len(r0.FaceAnnotations)}
	for _, l := range r0.LabelAnnotations {
		if l == nil || l.Description == "" {
			continue
		}
		out.Labels = append(out.Labels, Label{Description: l.Description, Score: float64(l.Score)})
	}
	sort.SliceStable(out.Labels, func(i, j int) bool { return out.Labels[i].Score > out.Labels[j].Score })
	for _, l := range r0.LandmarkAnnotations {
		if l != nil && l.Description != "" {
			out.Landmarks = append(out.Landmarks, l.Description)
		}
	}
	return out, nil
}
