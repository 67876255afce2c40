package prompts

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"text/template"

	"gopkg.in/yaml.v3"
)

const templatesEnv = "PROMPT_TEMPLATES_YAML"

//go:embed templates.yaml
var templatesFS embed.FS

type yamlTemplates struct {
	Version int                   `yaml:"version"`
	Targets map[string]yamlTarget `yaml:"targets"`
}

type yamlTarget struct {
	Mode     string        `yaml:"mode"`
	System   string        `yaml:"system"`
	Sections []yamlSection `yaml:"sections"`
	Output   string        `yaml:"output"`
}

type yamlSection struct {
	Name string   `yaml:"name"`
	When []string `yaml:"when"`
	Text string   `yaml:"text"`
}

type section struct {
	name string
	when []string
	tmpl *template.Template
}

type targetTemplate struct {
	mode     string
	system   string
	sections []section
	output   string
}

// predicates are the conditions a section's "when" list may name. All listed predicates must
// hold for the section to render.
var predicates = map[string]func(*Context) bool{
	"has_characters":      func(c *Context) bool { return len(c.Characters) > 0 },
	"has_setting":         func(c *Context) bool { return c.Setting != nil },
	"has_places":          func(c *Context) bool { return len(c.Places) > 0 },
	"has_events":          func(c *Context) bool { return len(c.Events) > 0 },
	"has_themes":          func(c *Context) bool { return len(c.Themes) > 0 },
	"has_steering":        func(c *Context) bool { return len(c.Steering) > 0 },
	"has_conflict":        func(c *Context) bool { return strings.TrimSpace(c.Request.Conflict) != "" },
	"has_emotional_tone":  func(c *Context) bool { return strings.TrimSpace(c.Request.EmotionalTone) != "" },
	"has_explicit_length": func(c *Context) bool { return strings.TrimSpace(c.Request.Length) != "" },
	"has_material":        func(c *Context) bool { return strings.TrimSpace(c.Request.Material) != "" },
	"has_style_notes":     func(c *Context) bool { return strings.TrimSpace(c.Request.StyleNotes) != "" },
}

var funcs = template.FuncMap{"join": strings.Join}

var (
	loadOnce  sync.Once
	loaded    map[Target]*targetTemplate
	loadedErr error
)

func defaultTemplates() (map[Target]*targetTemplate, error) {
	loadOnce.Do(func() {
		var data []byte
		data, loadedErr = readTemplates()
		if loadedErr != nil {
			return
		}
		loaded, loadedErr = parseTemplates(data)
	})
	return loaded, loadedErr
}

func readTemplates() ([]byte, error) {
	if path := strings.TrimSpace(os.Getenv(templatesEnv)); path != "" {
		return os.ReadFile(path)
	}
	return templatesFS.ReadFile("templates.yaml")
}

func parseTemplates(data []byte) (map[Target]*targetTemplate, error) {
	var spec yamlTemplates
	if err := yaml.Unmarshal(data, &spec); err != nil {
		return nil, fmt.Errorf("prompt templates: %w", err)
	}
	if len(spec.Targets) == 0 {
		return nil, errors.New("prompt templates: no targets defined")
	}
	out := make(map[Target]*targetTemplate, len(spec.Targets))
	for name, t := range spec.Targets {
		name = strings.TrimSpace(name)
		if name == "" {
			return nil, errors.New("prompt templates: target name is required")
		}
		if strings.TrimSpace(t.Output) == "" {
			return nil, fmt.Errorf("prompt templates: target %s has no output instruction", name)
		}
		tt := &targetTemplate{
			mode:   strings.TrimSpace(t.Mode),
			system: strings.TrimSpace(t.System),
			output: strings.TrimSpace(t.Output),
		}
		seen := map[string]bool{}
		for _, s := range t.Sections {
			if s.Name == "" {
				return nil, fmt.Errorf("prompt templates: target %s: section name is required", name)
			}
			if seen[s.Name] {
				return nil, fmt.Errorf("prompt templates: target %s: duplicate section %s", name, s.Name)
			}
			seen[s.Name] = true
			for _, w := range s.When {
				if _, ok := predicates[w]; !ok {
					return nil, fmt.Errorf("prompt templates: target %s section %s: unknown predicate %q", name, s.Name, w)
				}
			}
			tmpl, err := template.New(name + "." + s.Name).Funcs(funcs).Option("missingkey=zero").Parse(s.Text)
			if err != nil {
				return nil, fmt.Errorf("prompt templates: target %s section %s: %w", name, s.Name, err)
			}
			tt.sections = append(tt.sections, section{name: s.Name, when: s.When, tmpl: tmpl})
		}
		out[Target(name)] = tt
	}
	return out, nil
}

func (s section) applies(c *Context) bool {
	for _, w := range s.when {
		if !predicates[w](c) {
			return false
		}
	}
	return true
}

func (s section) render(c *Context) (string, error) {
	var buf bytes.Buffer
	if err := s.tmpl.Execute(&buf, c); err != nil {
		return "", err
	}
	return strings.TrimSpace(buf.String()), nil
}
