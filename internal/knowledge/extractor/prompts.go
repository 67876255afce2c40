package extractor

import "fmt"

const systemPrompt = `You extract narrative knowledge from source material for a storytelling assistant.
Sources may be Arabic, English, or mixed; keep names in the language and spelling used by the source.
Return only a JSON object with these keys:
  title: short title for the material
  themes: list of short theme phrases
  characters: list of {name, description, role}
  events: list of {title, description, timelinePosition}; timelinePosition is a date, year, or ordinal when known, otherwise ""
  places: list of {name, description, significance}
  claims: list of {content, source, reliability, evidence}; reliability is a number between 0 and 1
Use empty lists when nothing applies. Do not invent facts that the material does not support.`

func userPrompt(text string) string {
	return fmt.Sprintf("Material:\n\n%s\n\nReturn the JSON object now.", text)
}

// Schema is the JSON schema used for structured output.
func Schema() map[string]any {
	str := map[string]any{"type": "string"}
	obj := func(fields ...string) map[string]any {
		props := map[string]any{}
		for _, f := range fields {
			props[f] = str
		}
		return map[string]any{
			"type":                 "object",
			"properties":           props,
			"required":             fields,
			"additionalProperties": false,
		}
	}
	claim := obj("content", "source", "evidence")
	claim["properties"].(map[string]any)["reliability"] = map[string]any{"type": "number"}
	claim["required"] = []string{"content", "source", "evidence", "reliability"}
	list := func(item map[string]any) map[string]any {
		return map[string]any{"type": "array", "items": item}
	}
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"title":      str,
			"themes":     list(str),
			"characters": list(obj("name", "description", "role")),
			"events":     list(obj("title", "description", "timelinePosition")),
			"places":     list(obj("name", "description", "significance")),
			"claims":     list(claim),
		},
		"required":             []string{"title", "themes", "characters", "events", "places", "claims"},
		"additionalProperties": false,
	}
}
