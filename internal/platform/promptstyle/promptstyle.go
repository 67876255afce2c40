package promptstyle

import "strings"

const marker = "QALAM_PROMPT_STYLE_V1"

// ApplySystem prepends the house guidance block to a system prompt. Applying it twice is a no-op.
// mode is "json" for structured output and anything else for prose.
func ApplySystem(system string, mode string) string {
	base := strings.TrimSpace(system)
	if base == "" || strings.Contains(base, marker) {
		return base
	}
	mode = strings.ToLower(strings.TrimSpace(mode))

	var b strings.Builder
	b.WriteString(marker)
	b.WriteString("\nYou assist authors of Arabic long-form fiction built from witness material.")
	b.WriteString("\nFollow the system and user instructions precisely.")
	b.WriteString("\nUse the provided knowledge as grounding; never invent characters or places that are not given.")
	if mode == "json" {
		b.WriteString("\nReturn a single JSON object and nothing else: no code fences, no commentary.")
	} else {
		b.WriteString("\nReturn only the requested text, without preamble or notes.")
	}
	b.WriteString("\n---\n")
	b.WriteString(base)
	return b.String()
}
