package localmedia

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/yungbote/qalam-backend/internal/platform/envutil"
	"github.com/yungbote/qalam-backend/internal/platform/logger"
)

// Tools wraps ffmpeg and ffprobe. Both binaries must be on PATH in the worker runtime.
// Calls are synchronous and belong in task handlers, not request handlers.
type Tools interface {
	AssertReady(ctx context.Context) error
	WorkDir(prefix string) (string, func(), error)

	ExtractAudio(ctx context.Context, videoPath, outPath string, opts AudioExtractOptions) (string, error)
	// ExtractFrames grabs one frame per timestamp; with no timestamps it samples count frames
	// evenly across the duration.
	ExtractFrames(ctx context.Context, videoPath, outDir string, timestamps []float64, count int) ([]string, error)
	Probe(ctx context.Context, path string) (*MediaProperties, error)
	MeanVolume(ctx context.Context, path string) (float64, error)
}

type AudioExtractOptions struct {
	SampleRateHz int
	Channels     int
	Format       string // "wav" or "flac"
}

type MediaProperties struct {
	DurationSeconds float64 `json:"duration_seconds"`
	SampleRate      int     `json:"sample_rate"`
	Channels        int     `json:"channels"`
	HasVideo        bool    `json:"has_video"`
}

type tools struct {
	log *logger.Logger

	ffmpegPath  string
	ffprobePath string
	workRoot    string

	defaultTimeout time.Duration
}

func New(log *logger.Logger) Tools {
	return &tools{
		log:            log.With("service", "MediaTools"),
		ffmpegPath:     envutil.String("FFMPEG_PATH", "ffmpeg"),
		ffprobePath:    envutil.String("FFPROBE_PATH", "ffprobe"),
		workRoot:       envutil.String("MEDIA_WORK_ROOT", filepath.Join(os.TempDir(), "qalam-media")),
		defaultTimeout: envutil.Seconds("MEDIA_TOOL_TIMEOUT_SECONDS", 10*time.Minute),
	}
}

func (m *tools) AssertReady(ctx context.Context) error {
	for _, bin := range []string{m.ffmpegPath, m.ffprobePath} {
		if _, err := exec.LookPath(bin); err != nil {
			return fmt.Errorf("missing required binary %q in PATH: %w", bin, err)
		}
	}
	if err := os.MkdirAll(m.workRoot, 0o755); err != nil {
		return fmt.Errorf("create workRoot: %w", err)
	}
	return nil
}

func (m *tools) WorkDir(prefix string) (string, func(), error) {
	if err := os.MkdirAll(m.workRoot, 0o755); err != nil {
		return "", func() {}, fmt.Errorf("mkdir workRoot: %w", err)
	}
	dir, err := os.MkdirTemp(m.workRoot, prefix+"-")
	if err != nil {
		return "", func() {}, fmt.Errorf("mkdir work dir: %w", err)
	}
	return dir, func() { _ = os.RemoveAll(dir) }, nil
}

func (m *tools) ExtractAudio(ctx context.Context, videoPath, outPath string, opts AudioExtractOptions) (string, error) {
	if err := m.AssertReady(ctx); err != nil {
		return "", err
	}
	if videoPath == "" || outPath == "" {
		return "", fmt.Errorf("videoPath and outPath required")
	}
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return "", fmt.Errorf("mkdir outPath dir: %w", err)
	}
	sr := opts.SampleRateHz
	if sr <= 0 {
		sr = 16000
	}
	ch := opts.Channels
	if ch <= 0 {
		ch = 1
	}
	format := strings.ToLower(strings.TrimSpace(opts.Format))
	if format == "" {
		format = "flac"
	}
	if format != "wav" && format != "flac" {
		return "", fmt.Errorf("unsupported audio format: %s", format)
	}

	ctx, cancel := context.WithTimeout(ctx, m.defaultTimeout)
	defer cancel()
	args := []string{"-y", "-i", videoPath, "-vn", "-ac", strconv.Itoa(ch), "-ar", strconv.Itoa(sr), "-f", format, outPath}
	out, err := exec.CommandContext(ctx, m.ffmpegPath, args...).CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("ffmpeg extract audio failed: %w; out=%s", err, tail(out))
	}
	if _, err := os.Stat(outPath); err != nil {
		return "", fmt.Errorf("audio output missing at %s", outPath)
	}
	return outPath, nil
}

func (m *tools) ExtractFrames(ctx context.Context, videoPath, outDir string, timestamps []float64, count int) ([]string, error) {
	if err := m.AssertReady(ctx); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, fmt.Errorf("mkdir outDir: %w", err)
	}
	if len(timestamps) == 0 {
		props, err := m.Probe(ctx, videoPath)
		if err != nil {
			return nil, err
		}
		timestamps = EvenTimestamps(props.DurationSeconds, count)
	}

	frames := make([]string, 0, len(timestamps))
	for i, ts := range timestamps {
		if err := ctx.Err(); err != nil {
			return frames, err
		}
		out := filepath.Join(outDir, fmt.Sprintf("frame_%06d.jpg", i+1))
		cctx, cancel := context.WithTimeout(ctx, time.Minute)
		args := []string{"-y", "-ss", strconv.FormatFloat(ts, 'f', 3, 64), "-i", videoPath, "-frames:v", "1", "-q:v", "3", out}
		b, err := exec.CommandContext(cctx, m.ffmpegPath, args...).CombinedOutput()
		cancel()
		if err != nil {
			m.log.Warn("frame extraction failed", "ts", ts, "error", err, "out", tail(b))
			continue
		}
		frames = append(frames, out)
	}
	sort.Strings(frames)
	if len(frames) == 0 && len(timestamps) > 0 {
		return nil, fmt.Errorf("no frames produced by ffmpeg")
	}
	return frames, nil
}

type ffprobeOutput struct {
	Streams []struct {
		CodecType  string `json:"codec_type"`
		SampleRate string `json:"sample_rate"`
		Channels   int    `json:"channels"`
	} `json:"streams"`
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
}

func (m *tools) Probe(ctx context.Context, path string) (*MediaProperties, error) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	out, err := exec.CommandContext(ctx, m.ffprobePath,
		"-v", "error", "-print_format", "json", "-show_format", "-show_streams", path,
	).Output()
	if err != nil {
		return nil, fmt.Errorf("ffprobe failed: %w", err)
	}
	return ParseProbe(out)
}

func ParseProbe(raw []byte) (*MediaProperties, error) {
	var p ffprobeOutput
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("parse ffprobe output: %w", err)
	}
	props := &MediaProperties{}
	props.DurationSeconds, _ = strconv.ParseFloat(strings.TrimSpace(p.Format.Duration), 64)
	for _, s := range p.Streams {
		switch s.CodecType {
		case "audio":
			if props.SampleRate == 0 {
				props.SampleRate, _ = strconv.Atoi(s.SampleRate)
				props.Channels = s.Channels
			}
		case "video":
			props.HasVideo = true
		}
	}
	return props, nil
}

var meanVolumeRE = regexp.MustCompile(`mean_volume:\s*(-?\d+(?:\.\d+)?) dB`)

// MeanVolume runs the volumedetect filter and returns mean loudness in dBFS.
func (m *tools) MeanVolume(ctx context.Context, path string) (float64, error) {
	ctx, cancel := context.WithTimeout(ctx, m.defaultTimeout)
	defer cancel()
	out, err := exec.CommandContext(ctx, m.ffmpegPath, "-hide_banner", "-nostats", "-i", path, "-af", "volumedetect", "-vn", "-f", "null", "-").CombinedOutput()
	if err != nil {
		return 0, fmt.Errorf("ffmpeg volumedetect failed: %w; out=%s", err, tail(out))
	}
	return ParseMeanVolume(string(out))
}

func ParseMeanVolume(out string) (float64, error) {
	m := meanVolumeRE.FindStringSubmatch(out)
	if m == nil {
		return 0, fmt.Errorf("mean_volume not found")
	}
	return strconv.ParseFloat(m[1], 64)
}

// EvenTimestamps spreads n sample points across (0, duration), avoiding the first and last frame.
func EvenTimestamps(duration float64, n int) []float64 {
	if n <= 0 || duration <= 0 {
		return nil
	}
	out := make([]float64, n)
	step := duration / float64(n+1)
	for i := range out {
		out[i] = step * float64(i+1)
	}
	return out
}

func tail(b []byte) string {
	const max = 2000
	if len(b) > max {
		return string(b[len(b)-max:])
	}
	return string(b)
}
