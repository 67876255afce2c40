package gcp

import (
	"context"
	"fmt"
	"strings"
	"time"

	videointelligence "cloud.google.com/go/videointelligence/apiv1"
	vipb "cloud.google.com/go/videointelligence/apiv1/videointelligencepb"

	"github.com/yungbote/qalam-backend/internal/platform/logger"
)

// Shot is one continuous camera shot, in seconds from the start of the video.
type Shot struct {
	StartSec float64 `json:"start_sec"`
	EndSec   float64 `json:"end_sec"`
}

func (s Shot) Midpoint() float64 { return s.StartSec + (s.EndSec-s.StartSec)/2 }

type Video interface {
	// DetectShots accepts either raw bytes or a gs:// uri; the uri wins when both are set.
	DetectShots(ctx context.Context, content []byte, gcsURI string) ([]Shot, error)
	Close() error
}

type videoService struct {
	log        *logger.Logger
	client     *videointelligence.Client
	maxRetries int
}

func NewVideo(log *logger.Logger) (Video, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	c, err := videointelligence.NewClient(context.Background(), ClientOptionsFromEnv()...)
	if err != nil {
		return nil, fmt.Errorf("videointelligence client: %w", err)
	}
	return &videoService{log: log.With("service", "gcp.Video"), client: c, maxRetries: 3}, nil
}

func (s *videoService) Close() error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Close()
}

func (s *videoService) DetectShots(ctx context.Context, content []byte, gcsURI string) ([]Shot, error) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Minute)
	defer cancel()

	req := &vipb.AnnotateVideoRequest{Features: []vipb.Feature{vipb.Feature_SHOT_CHANGE_DETECTION}}
	switch {
	case strings.HasPrefix(gcsURI, "gs://"):
		req.InputUri = gcsURI
	case len(content) > 0:
		req.InputContent = content
	default:
		return nil, fmt.Errorf("videointelligence: no input")
	}

	resp, err := retry(ctx, s.maxRetries, func() (*vipb.AnnotateVideoResponse, error) {
		op, err := s.client.AnnotateVideo(ctx, req)
		if err != nil {
			return nil, err
		}
		return op.Wait(ctx)
	})
	if err != nil {
		return nil, fmt.Errorf("videointelligence AnnotateVideo: %w", err)
	}
	if resp == nil || len(resp.AnnotationResults) == 0 || resp.AnnotationResults[0] == nil {
		return nil, nil
	}
	out := make([]Shot, 0, len(resp.AnnotationResults[0].ShotAnnotations))
	for _, sh := range resp.AnnotationResults[0].ShotAnnotations {
		if sh == nil {
			continue
		}
		out = append(out, Shot{StartSec: durToSec(sh.StartTimeOffset), EndSec: durToSec(sh.EndTimeOffset)})
	}
	s.log.Debug("shots detected", "count", len(out))
	return out, nil
}
