package mdchunk

import (
	"iter"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// Chunk is one paragraph of text with the headings it sits under, outermost first.
type Chunk struct {
	Text       string   `json:"text"`
	Headers    []string `json:"headers"`
	SourceType string   `json:"source_type"`
}

// Breadcrumb renders the header path as "A > B", or "" at top level.
func (c Chunk) Breadcrumb() string {
	return strings.Join(c.Headers, " > ")
}

var md = goldmark.New()

type heading struct {
	level int
	text  string
}

/*
Chunks parses markdown and lazily yields one Chunk per paragraph.
  - A heading pops every open heading of the same or deeper level, then becomes the
    innermost entry of the header path.
  - Each chunk carries its own copy of the path.
  - Whitespace-only paragraphs are skipped.
  - Code blocks and raw HTML are not chunked. Tables are plain paragraphs.
*/
func Chunks(markdown, sourceType string) iter.Seq[Chunk] {
	return func(yield func(Chunk) bool) {
		if strings.TrimSpace(markdown) == "" {
			return
		}
		src := []byte(markdown)
		doc := md.Parser().Parse(text.NewReader(src))

		var stack []heading
		_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
			if !entering {
				return ast.WalkContinue, nil
			}
			switch node := n.(type) {
			case *ast.Heading:
				for len(stack) > 0 && stack[len(stack)-1].level >= node.Level {
					stack = stack[:len(stack)-1]
				}
				stack = append(stack, heading{level: node.Level, text: strings.TrimSpace(inlineText(node, src))})
				return ast.WalkSkipChildren, nil
			case *ast.Paragraph, *ast.TextBlock:
				body := strings.TrimSpace(inlineText(node, src))
				if body == "" {
					return ast.WalkSkipChildren, nil
				}
				headers := make([]string, len(stack))
				for i, h := range stack {
					headers[i] = h.text
				}
				if !yield(Chunk{Text: body, Headers: headers, SourceType: sourceType}) {
					return ast.WalkStop, nil
				}
				return ast.WalkSkipChildren, nil
			case *ast.FencedCodeBlock, *ast.CodeBlock, *ast.HTMLBlock:
				return ast.WalkSkipChildren, nil
			}
			return ast.WalkContinue, nil
		})
	}
}

// Collect materializes Chunks.
func Collect(markdown, sourceType string) []Chunk {
	out := make([]Chunk, 0)
	for c := range Chunks(markdown, sourceType) {
		out = append(out, c)
	}
	return out
}

func inlineText(n ast.Node, src []byte) string {
	var b strings.Builder
	writeInline(&b, n, src)
	return b.String()
}

func writeInline(b *strings.Builder, n ast.Node, src []byte) {
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		switch t := c.(type) {
		case *ast.Text:
			b.Write(t.Segment.Value(src))
			if t.SoftLineBreak() || t.HardLineBreak() {
				b.WriteByte('\n')
			}
		case *ast.String:
			b.Write(t.Value)
		case *ast.AutoLink:
			b.Write(t.URL(src))
		case *ast.RawHTML:
			continue
		default:
			writeInline(b, c, src)
		}
	}
}
