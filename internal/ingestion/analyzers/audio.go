package analyzers

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/yungbote/qalam-backend/internal/platform/localmedia"
)

func (r *Registry) analyzeAudio(ctx context.Context, in Input, res *Result) error {
	if r.Speech == nil {
		return missing("speech-to-text adapter")
	}
	data, err := r.load(ctx, in)
	if err != nil {
		return err
	}

	audio, mime := data, in.MimeType
	if r.Media != nil && r.Media.AssertReady(ctx) == nil {
		dir, p, cleanup, err := r.stage(in, data)
		if err != nil {
			return err
		}
		defer cleanup()

		props := &AudioProperties{}
		if mp, err := r.Media.Probe(ctx, p); err != nil {
			res.warn("probe failed: " + err.Error())
		} else {
			props.DurationSeconds = mp.DurationSeconds
			props.SampleRate = mp.SampleRate
			props.Channels = mp.Channels
		}
		if mv, err := r.Media.MeanVolume(ctx, p); err != nil {
			res.warn("loudness analysis failed: " + err.Error())
		} else {
			props.Loudness = &mv
		}
		res.AudioProperties = props

		// Normalize to 16 kHz mono FLAC, which the recognizer accepts for every input format.
		if out, err := r.Media.ExtractAudio(ctx, p, filepath.Join(dir, "audio.flac"), localmedia.AudioExtractOptions{
			SampleRateHz: 16000,
			Channels:     1,
			Format:       "flac",
		}); err != nil {
			res.warn("transcode failed, sending original audio: " + err.Error())
		} else if b, err := os.ReadFile(out); err == nil {
			audio, mime = b, "audio/flac"
		}
	} else {
		res.warn("media tools unavailable; audio properties not computed")
	}

	sr, err := r.Speech.Transcribe(ctx, audio, mime, r.LanguageHint)
	if err != nil {
		return fmt.Errorf("transcribe audio: %w", err)
	}
	if sr != nil {
		res.Transcript = sr.Text
		res.Segments = sr.Segments
	}
	if strings.TrimSpace(res.Transcript) == "" {
		res.warn("transcript is empty")
	}
	return nil
}
