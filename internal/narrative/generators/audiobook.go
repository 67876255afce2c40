package generators

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	types "github.com/yungbote/qalam-backend/internal/domain"
	apperrors "github.com/yungbote/qalam-backend/internal/pkg/errors"
	"github.com/yungbote/qalam-backend/internal/platform/logger"
)

const (
	NarratorKey        = "narrator"
	DefaultVoice       = "alloy"
	maxSegmentRunes    = 4000
	audioChapterKeyFmt = "audiobook/%s/chapter-%03d.mp3"
)

// BlobPutter is the write half of the blob store.
type BlobPutter interface {
	Put(ctx context.Context, projectID uuid.UUID, key string, data []byte) (string, error)
}

// VoiceMap maps character names to voices. The "narrator" key voices everything else.
type VoiceMap map[string]string

func (v VoiceMap) Narrator() string {
	if s := strings.TrimSpace(v[NarratorKey]); s != "" {
		return s
	}
	return DefaultVoice
}

func (v VoiceMap) voiceFor(speaker string) (string, bool) {
	speaker = strings.TrimSpace(speaker)
	for name, voice := range v {
		if name == NarratorKey || strings.TrimSpace(voice) == "" {
			continue
		}
		if strings.EqualFold(strings.TrimSpace(name), speaker) {
			return voice, true
		}
	}
	return "", false
}

type Segment struct {
	Voice string
	Text  string
}

type AudioChapter struct {
	Number   int    `json:"number"`
	Title    string `json:"title"`
	Path     string `json:"path"`
	Segments int    `json:"segments"`
	Bytes    int    `json:"bytes"`
}

type Audiobook struct {
	Voices   VoiceMap       `json:"voices"`
	Chapters []AudioChapter `json:"chapters"`
}

// PayloadRefs lists the stored audio paths in chapter order.
func (a *Audiobook) PayloadRefs() []string {
	out := make([]string, 0, len(a.Chapters))
	for _, c := range a.Chapters {
		out = append(out, c.Path)
	}
	return out
}

var (
	entityTag   = regexp.MustCompile(`</?entity\b[^>]*>`)
	speakerLine = regexp.MustCompile(`^\s*([^:：\n]{1,40})[:：]\s*(.+)$`)
	sentenceEnd = regexp.MustCompile(`[.!?؟。]\s+`)
)

/*
Segments splits chapter text into speech requests. A paragraph opening with "Name:" where
Name is in the voice map is read by that character's voice; everything else goes to the
narrator. Adjacent paragraphs with the same voice are merged up to the per-request limit.
*/
func Segments(text string, voices VoiceMap) []Segment {
	text = entityTag.ReplaceAllString(text, "")
	var out []Segment
	add := func(voice, s string) {
		s = strings.TrimSpace(s)
		if s == "" {
			return
		}
		for _, piece := range splitRunes(s, maxSegmentRunes) {
			if n := len(out); n > 0 && out[n-1].Voice == voice &&
				utf8.RuneCountInString(out[n-1].Text)+2+utf8.RuneCountInString(piece) <= maxSegmentRunes {
				out[n-1].Text += "\n\n" + piece
				continue
			}
			out = append(out, Segment{Voice: voice, Text: piece})
		}
	}
	for _, para := range strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n\n") {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		if m := speakerLine.FindStringSubmatch(para); m != nil {
			if v, ok := voices.voiceFor(m[1]); ok {
				add(v, m[2])
				continue
			}
		}
		add(voices.Narrator(), para)
	}
	return out
}

// splitRunes cuts s into pieces of at most max runes, preferring sentence ends.
func splitRunes(s string, max int) []string {
	var out []string
	for utf8.RuneCountInString(s) > max {
		cut := byteOffset(s, max)
		head := s[:cut]
		if locs := sentenceEnd.FindAllStringIndex(head, -1); len(locs) > 0 {
			if end := locs[len(locs)-1][1]; end > len(head)/2 {
				cut = end
			}
		} else if i := strings.LastIndexAny(head, " \n"); i > len(head)/2 {
			cut = i + 1
		}
		out = append(out, strings.TrimSpace(s[:cut]))
		s = strings.TrimSpace(s[cut:])
	}
	if s != "" {
		out = append(out, s)
	}
	return out
}

func byteOffset(s string, runes int) int {
	i := 0
	for pos := range s {
		if i == runes {
			return pos
		}
		i++
	}
	return len(s)
}

type AudiobookGenerator struct {
	speaker Speaker
	blobs   BlobPutter
	log     *logger.Logger
}

func NewAudiobookGenerator(log *logger.Logger, speaker Speaker, blobs BlobPutter) *AudiobookGenerator {
	if log == nil {
		log = logger.NewNop()
	}
	return &AudiobookGenerator{speaker: speaker, blobs: blobs, log: log.With("component", "AudiobookGenerator")}
}

// Generate synthesizes every non-empty chapter and stores one mp3 per chapter under runKey.
// onChapter is called after each chapter with (done, total) and may abort the run.
func (g *AudiobookGenerator) Generate(ctx context.Context, projectID uuid.UUID, runKey string, chapters []*types.Chapter, voices VoiceMap, onChapter func(done, total int) error) (*Audiobook, error) {
	if g.speaker == nil || g.blobs == nil {
		return nil, fmt.Errorf("%w: audiobook generation needs a speech provider and a blob store", apperrors.ErrDependencyMissing)
	}
	if voices == nil {
		voices = VoiceMap{}
	}
	book := &Audiobook{Voices: voices, Chapters: []AudioChapter{}}
	total := len(chapters)
	for i, ch := range chapters {
		if ch == nil {
			continue
		}
		segs := Segments(ch.Content, voices)
		if len(segs) == 0 {
			continue
		}
		var audio []byte
		for _, s := range segs {
			b, err := g.speaker.Speech(ctx, s.Text, s.Voice)
			if err != nil {
				return nil, fmt.Errorf("chapter %d: %w", i+1, err)
			}
			audio = append(audio, b...)
		}
		path, err := g.blobs.Put(ctx, projectID, fmt.Sprintf(audioChapterKeyFmt, runKey, i+1), audio)
		if err != nil {
			return nil, fmt.Errorf("store chapter %d audio: %w", i+1, err)
		}
		book.Chapters = append(book.Chapters, AudioChapter{
			Number:   i + 1,
			Title:    ch.Title,
			Path:     path,
			Segments: len(segs),
			Bytes:    len(audio),
		})
		if onChapter != nil {
			if err := onChapter(i+1, total); err != nil {
				return nil, err
			}
		}
	}
	if len(book.Chapters) == 0 {
		return nil, fmt.Errorf("%w: project has no chapter text to narrate", apperrors.ErrInvalidArgument)
	}
	g.log.Info("audiobook generated", "chapters", len(book.Chapters))
	return book, nil
}
