package extractor

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	apperrors "github.com/yungbote/qalam-backend/internal/pkg/errors"
)

var (
	fenceRe   = regexp.MustCompile("(?s)^```[a-zA-Z]*\\s*\\n?(.*?)\\n?```$")
	salvageRe = regexp.MustCompile(`(?s)\{.*\}`)
)

// Parse decodes an LLM reply into an Extraction. Code fences are stripped; if the reply is
// not JSON on its own, the outermost {...} span is tried before giving up.
func Parse(reply string) (*Extraction, error) {
	s := strings.TrimSpace(reply)
	if m := fenceRe.FindStringSubmatch(s); m != nil {
		s = strings.TrimSpace(m[1])
	}
	var obj map[string]any
	if err := json.Unmarshal([]byte(s), &obj); err == nil && obj != nil {
		return fromObject(obj), nil
	}
	if span := salvageRe.FindString(s); span != "" {
		if err := json.Unmarshal([]byte(span), &obj); err == nil && obj != nil {
			return fromObject(obj), nil
		}
	}
	return nil, apperrors.Wrap(apperrors.ErrExtractionFailed, fmt.Errorf("reply is not a JSON object"))
}

func fromObject(obj map[string]any) *Extraction {
	ex := Empty()
	ex.Title = str(pick(obj, "title"))
	ex.Themes = strList(pick(obj, "themes"))

	for _, m := range objList(pick(obj, "characters")) {
		name := str(pick(m, "name"))
		if name == "" {
			continue
		}
		ex.Characters = append(ex.Characters, Character{
			Name:        name,
			Description: str(pick(m, "description")),
			Role:        str(pick(m, "role")),
		})
	}
	for _, m := range objList(pick(obj, "events")) {
		title := str(pick(m, "title", "name"))
		if title == "" {
			continue
		}
		ex.Events = append(ex.Events, Event{
			Title:            title,
			Description:      str(pick(m, "description")),
			TimelinePosition: str(pick(m, "timelinePosition", "timeline_position", "date", "when")),
		})
	}
	for _, m := range objList(pick(obj, "places", "locations")) {
		name := str(pick(m, "name"))
		if name == "" {
			continue
		}
		ex.Places = append(ex.Places, Place{
			Name:         name,
			Description:  str(pick(m, "description")),
			Significance: str(pick(m, "significance")),
		})
	}
	for _, m := range objList(pick(obj, "claims")) {
		content := str(pick(m, "content", "claim", "text"))
		if content == "" {
			continue
		}
		ex.Claims = append(ex.Claims, Claim{
			Content:     content,
			Source:      str(pick(m, "source")),
			Reliability: reliability(pick(m, "reliability", "reliabilityScore", "reliability_score")),
			Evidence:    str(pick(m, "evidence")),
		})
	}
	return ex
}

func pick(m map[string]any, keys ...string) any {
	for _, k := range keys {
		if v, ok := m[k]; ok && v != nil {
			return v
		}
	}
	return nil
}

func str(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case json.Number:
		return t.String()
	case bool:
		return strconv.FormatBool(t)
	default:
		return ""
	}
}

func strList(v any) []string {
	out := []string{}
	switch t := v.(type) {
	case []any:
		for _, x := range t {
			if s := str(x); s != "" {
				out = append(out, s)
			}
		}
	case string:
		for _, s := range strings.Split(t, ",") {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
	}
	return out
}

func objList(v any) []map[string]any {
	arr, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]map[string]any, 0, len(arr))
	for _, x := range arr {
		switch t := x.(type) {
		case map[string]any:
			out = append(out, t)
		case string:
			// Bare strings are treated as names / titles / content.
			if s := strings.TrimSpace(t); s != "" {
				out = append(out, map[string]any{"name": s, "title": s, "content": s})
			}
		}
	}
	return out
}

// reliability accepts 0..1 or a 0..100 percentage, as a number or a string.
func reliability(v any) *float64 {
	var f float64
	switch t := v.(type) {
	case float64:
		f = t
	case json.Number:
		x, err := t.Float64()
		if err != nil {
			return nil
		}
		f = x
	case string:
		s := strings.TrimSuffix(strings.TrimSpace(t), "%")
		x, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return nil
		}
		f = x
	default:
		return nil
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	if f > 1 {
		f = f / 100
	}
	if f < 0 {
		f = 0
	}
	if f > 1 {
		f = 1
	}
	return &f
}
