package analyzers

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/yungbote/qalam-backend/internal/platform/gcp"
	"github.com/yungbote/qalam-backend/internal/platform/localmedia"
)

// analyzeVideo pulls the audio track, transcribes it and samples key frames. Frame sampling
// prefers shot midpoints from the shot detector and falls back to even spacing.
func (r *Registry) analyzeVideo(ctx context.Context, in Input, res *Result) error {
	if r.Media == nil {
		return missing("media transcoder (ffmpeg)")
	}
	if r.Speech == nil {
		return missing("speech-to-text adapter")
	}
	if err := r.Media.AssertReady(ctx); err != nil {
		return missing("media transcoder (" + err.Error() + ")")
	}
	data, err := r.load(ctx, in)
	if err != nil {
		return err
	}
	dir, videoPath, cleanup, err := r.stage(in, data)
	if err != nil {
		return err
	}
	defer cleanup()

	audioPath, err := r.Media.ExtractAudio(ctx, videoPath, filepath.Join(dir, "audio.flac"), localmedia.AudioExtractOptions{
		SampleRateHz: 16000,
		Channels:     1,
		Format:       "flac",
	})
	if err != nil {
		return fmt.Errorf("extract audio track: %w", err)
	}
	audio, err := os.ReadFile(audioPath)
	if err != nil {
		return fmt.Errorf("read audio track: %w", err)
	}
	sr, err := r.Speech.Transcribe(ctx, audio, "audio/flac", r.LanguageHint)
	if err != nil {
		return fmt.Errorf("transcribe video audio: %w", err)
	}
	if sr != nil {
		res.Transcript = sr.Text
		res.Segments = sr.Segments
	}
	if strings.TrimSpace(res.Transcript) == "" {
		res.warn("transcript is empty")
	}

	n := r.KeyFrames
	if n <= 0 {
		n = defaultKeyFrames
	}
	var timestamps []float64
	if r.Shots != nil {
		gcsURI := ""
		content := data
		if strings.HasPrefix(in.Path, "gs://") {
			gcsURI, content = in.Path, nil
		}
		shots, err := r.Shots.DetectShots(ctx, content, gcsURI)
		if err != nil {
			res.warn("shot detection failed: " + err.Error())
		} else {
			timestamps = ShotTimestamps(shots, n)
		}
	}
	frames, err := r.Media.ExtractFrames(ctx, videoPath, filepath.Join(dir, "frames"), timestamps, n)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		res.warn("key frame extraction failed: " + err.Error())
	}
	res.KeyFramesCount = len(frames)
	return nil
}

// ShotTimestamps picks up to n shot midpoints spread evenly over the shot list.
func ShotTimestamps(shots []gcp.Shot, n int) []float64 {
	if len(shots) == 0 || n <= 0 {
		return nil
	}
	if len(shots) <= n {
		out := make([]float64, 0, len(shots))
		for _, s := range shots {
			out = append(out, s.Midpoint())
		}
		return out
	}
	out := make([]float64, 0, n)
	step := float64(len(shots)) / float64(n)
	for i := 0; i < n; i++ {
		out = append(out, shots[int(float64(i)*step)].Midpoint())
	}
	return out
}
