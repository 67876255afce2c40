/*
Package generators turns a project's UKB into narrative outputs: scenes, episode plans,
the linked live novel, movie treatments, interactive maps and audiobooks.

Generators are plain functions over their inputs plus an LLM; task handlers in
internal/jobs/pipeline load state, call them, and persist the Artifact.
*/
package generators

import (
	"context"
	"encoding/json"
	"strconv"

	types "github.com/yungbote/qalam-backend/internal/domain"
)

type LLM interface {
	GenerateText(ctx context.Context, system string, user string) (string, error)
	GenerateJSON(ctx context.Context, system string, user string, schemaName string, schema map[string]any) (map[string]any, error)
}

// Speaker synthesizes speech and returns encoded audio (mp3).
type Speaker interface {
	Speech(ctx context.Context, text string, voice string) ([]byte, error)
}

// TimelineEventIDs returns the snapshot's event ids in timeline order. Events the timeline
// does not list follow in stored order.
func TimelineEventIDs(snap *types.UKBSnapshot) []string {
	if snap == nil || snap.UKB == nil {
		return nil
	}
	var events []*types.KnowledgeEntity
	for _, e := range snap.ByKind(types.EntityEvent) {
		if e.ProjectID == snap.UKB.ProjectID {
			events = append(events, e)
		}
	}
	known := make(map[string]bool, len(events))
	for _, e := range events {
		known[e.ID.String()] = true
	}
	var out []string
	seen := map[string]bool{}
	if len(snap.UKB.Timeline) > 0 {
		var tl []types.TimelineEntry
		if err := json.Unmarshal(snap.UKB.Timeline, &tl); err == nil {
			for _, t := range tl {
				if known[t.EventID] && !seen[t.EventID] {
					seen[t.EventID] = true
					out = append(out, t.EventID)
				}
			}
		}
	}
	for _, e := range events {
		if id := e.ID.String(); !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}

// asString reads a loosely typed JSON value as text.
func asString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return ""
		}
		return string(b)
	}
}

func asStrings(v any) []string {
	switch t := v.(type) {
	case nil:
		return []string{}
	case string:
		if t == "" {
			return []string{}
		}
		return []string{t}
	case []any:
		out := make([]string, 0, len(t))
		for _, it := range t {
			if m, ok := it.(map[string]any); ok {
				if s := firstString(m, "name", "title", "description"); s != "" {
					out = append(out, s)
				}
				continue
			}
			if s := asString(it); s != "" {
				out = append(out, s)
			}
		}
		return out
	}
	return []string{}
}

func firstString(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if s := asString(m[k]); s != "" {
			return s
		}
	}
	return ""
}
