package pdfmd

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/yungbote/qalam-backend/internal/platform/gcp"
	"github.com/yungbote/qalam-backend/internal/platform/logger"
)

const errorHeading = "# PDF Processing Error"

// Glyph is one positioned run of text in PDF user space (origin bottom-left).
type Glyph struct {
	X, Y float64
	W    float64
	Size float64
	S    string
}

// Box is an axis-aligned rectangle painted on the page (cell borders, rules).
type Box struct {
	MinX, MinY, MaxX, MaxY float64
}

// Page is the layout model of one PDF page.
type Page struct {
	Number int
	Glyphs []Glyph
	Boxes  []Box
}

/*
Converter turns PDF bytes into Markdown using only the page layout:
  - tables come from ruled grids (lines strategy) and are emitted first on each page
  - remaining glyphs are grouped into lines and paragraphs
  - pages are separated by the page-break comment

Convert never fails. Broken input yields a short "# PDF Processing Error" report.
*/
type Converter struct {
	log *logger.Logger
	// Tolerance is the distance in points under which two rule positions are the same line.
	Tolerance float64
}

func NewConverter(log *logger.Logger) *Converter {
	if log == nil {
		log = logger.NewNop()
	}
	return &Converter{log: log.With("component", "PDFLayoutConverter"), Tolerance: 3}
}

func (c *Converter) Convert(data []byte) string {
	md, err := c.convert(data)
	if err != nil {
		c.log.Warn("pdf layout conversion failed", "error", err, "bytes", len(data))
		return ErrorReport(err)
	}
	return md
}

// ErrorReport formats the fallback document returned for unreadable PDFs.
func ErrorReport(err error) string {
	msg := "unknown error"
	if err != nil {
		msg = strings.TrimSpace(err.Error())
	}
	return errorHeading + "\n\n" + msg
}

// IsErrorReport reports whether md is an error report rather than extracted content.
func IsErrorReport(md string) bool {
	return strings.HasPrefix(strings.TrimSpace(md), errorHeading)
}

func (c *Converter) convert(data []byte) (md string, err error) {
	// The pdf package panics on malformed content streams.
	defer func() {
		if r := recover(); r != nil {
			md = ""
			err = fmt.Errorf("malformed PDF: %v", r)
		}
	}()
	pages, err := LoadPages(data)
	if err != nil {
		return "", err
	}
	out := make([]string, 0, len(pages))
	for _, p := range pages {
		out = append(out, c.RenderPage(p))
	}
	return strings.Join(out, "\n\n"+gcp.PageBreak+"\n\n"), nil
}

// LoadPages parses data into layout pages. It may panic on corrupt content streams;
// Convert recovers from that.
func LoadPages(data []byte) ([]Page, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, fmt.Errorf("empty document")
	}
	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, err
	}
	n := r.NumPage()
	if n <= 0 {
		return nil, fmt.Errorf("document has no pages")
	}
	pages := make([]Page, 0, n)
	for i := 1; i <= n; i++ {
		p := r.Page(i)
		if p.V.IsNull() {
			pages = append(pages, Page{Number: i})
			continue
		}
		content := p.Content()
		page := Page{Number: i}
		for _, t := range content.Text {
			if t.S == "" || t.S == "\n" || t.S == "\r" {
				continue
			}
			page.Glyphs = append(page.Glyphs, Glyph{X: t.X, Y: t.Y, W: t.W, Size: t.FontSize, S: t.S})
		}
		for _, rc := range content.Rect {
			page.Boxes = append(page.Boxes, normBox(rc.Min.X, rc.Min.Y, rc.Max.X, rc.Max.Y))
		}
		pages = append(pages, page)
	}
	return pages, nil
}

// RenderPage renders tables first, then paragraph blocks, separated by blank lines.
// A page without content renders as "".
func (c *Converter) RenderPage(p Page) string {
	tables := detectTables(p.Boxes, c.tolerance())
	var blocks []string
	used := make([]bool, len(p.Glyphs))
	for _, t := range tables {
		rows := t.fill(p.Glyphs, used)
		if !hasText(rows) {
			continue
		}
		if md := gcp.RenderTable(rows); md != "" {
			blocks = append(blocks, md)
		}
	}
	rest := make([]Glyph, 0, len(p.Glyphs))
	for i, g := range p.Glyphs {
		if used[i] {
			continue
		}
		inside := false
		for _, t := range tables {
			if t.contains(g, c.tolerance()) {
				inside = true
				break
			}
		}
		if !inside {
			rest = append(rest, g)
		}
	}
	blocks = append(blocks, paragraphs(rest)...)
	return strings.Join(blocks, "\n\n")
}

func (c *Converter) tolerance() float64 {
	if c == nil || c.Tolerance <= 0 {
		return 3
	}
	return c.Tolerance
}

func normBox(x0, y0, x1, y1 float64) Box {
	if x1 < x0 {
		x0, x1 = x1, x0
	}
	if y1 < y0 {
		y0, y1 = y1, y0
	}
	return Box{MinX: x0, MinY: y0, MaxX: x1, MaxY: y1}
}

func hasText(rows [][]string) bool {
	for _, r := range rows {
		for _, c := range r {
			if strings.TrimSpace(c) != "" {
				return true
			}
		}
	}
	return false
}
