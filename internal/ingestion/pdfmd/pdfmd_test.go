package pdfmd

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/yungbote/qalam-backend/internal/platform/gcp"
)

// buildPDF writes a minimal uncompressed PDF with one page per content stream.
func buildPDF(contents ...string) []byte {
	var objs []string
	objs = append(objs, "<< /Type /Catalog /Pages 2 0 R >>")
	kids := make([]string, 0, len(contents))
	for i := range contents {
		kids = append(kids, fmt.Sprintf("%d 0 R", 4+2*i))
	}
	objs = append(objs, fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", strings.Join(kids, " "), len(contents)))
	objs = append(objs, "<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica >>")
	for i, c := range contents {
		objs = append(objs, fmt.Sprintf("<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Resources << /Font << /F1 3 0 R >> >> /Contents %d 0 R >>", 5+2*i))
		objs = append(objs, fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(c), c))
	}

	var b strings.Builder
	b.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objs))
	for i, o := range objs {
		offsets[i] = b.Len()
		fmt.Fprintf(&b, "%d 0 obj\n%s\nendobj\n", i+1, o)
	}
	xref := b.Len()
	fmt.Fprintf(&b, "xref\n0 %d\n0000000000 65535 f \n", len(objs)+1)
	for _, off := range offsets {
		fmt.Fprintf(&b, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&b, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objs)+1, xref)
	return []byte(b.String())
}

const tableStream = `72 700 100 20 re S
172 700 100 20 re S
72 680 100 20 re S
172 680 100 20 re S
BT /F1 12 Tf 80 706 Td (H1) Tj ET
BT /F1 12 Tf 180 706 Td (H2) Tj ET
BT /F1 12 Tf 80 686 Td (v1) Tj ET
BT /F1 12 Tf 180 686 Td (v2) Tj ET`

func TestConvertTwoByTwoTable(t *testing.T) {
	md := NewConverter(nil).Convert(buildPDF(tableStream))
	want := []string{"| H1 | H2 |", "| --- | --- |", "| v1 | v2 |"}
	lines := strings.Split(md, "\n")
	pos := 0
	for _, l := range lines {
		if pos < len(want) && strings.TrimSpace(l) == want[pos] {
			pos++
		}
	}
	if pos != len(want) {
		t.Fatalf("table lines missing or out of order in:\n%s", md)
	}
	if strings.Contains(md, gcp.PageBreak) {
		t.Fatalf("single page must not contain a page break:\n%s", md)
	}
	if strings.Count(md, "H1") != 1 {
		t.Fatalf("table text leaked into paragraphs:\n%s", md)
	}
}

func TestConvertPageBreakBetweenPages(t *testing.T) {
	p1 := "BT /F1 12 Tf 72 700 Td (first) Tj ET"
	p2 := "BT /F1 12 Tf 72 700 Td (second) Tj ET"
	md := NewConverter(nil).Convert(buildPDF(p1, p2))
	parts := strings.Split(md, gcp.PageBreak)
	if len(parts) != 2 {
		t.Fatalf("expected exactly one page break, got:\n%s", md)
	}
	if strings.TrimSpace(parts[0]) != "first" || strings.TrimSpace(parts[1]) != "second" {
		t.Fatalf("unexpected page contents: %q", parts)
	}
}

func TestConvertGarbageYieldsErrorReport(t *testing.T) {
	for _, in := range [][]byte{nil, []byte("   "), []byte("definitely not a pdf document, just some bytes")} {
		md := NewConverter(nil).Convert(in)
		if !strings.HasPrefix(md, "# PDF Processing Error") {
			t.Fatalf("expected error report for %q, got %q", in, md)
		}
		if !IsErrorReport(md) {
			t.Fatalf("IsErrorReport(%q)=false", md)
		}
	}
}

func TestRenderPageParagraphs(t *testing.T) {
	word := func(x, y float64, s string) Glyph {
		return Glyph{X: x, Y: y, W: float64(len(s)) * 6, Size: 12, S: s}
	}
	p := Page{Glyphs: []Glyph{
		word(72, 700, "Hello"), word(110, 700, "world"),
		word(72, 686, "again"),
		word(72, 672, "still"),
		word(72, 630, "Next"), word(104, 630, "block"),
		word(72, 616, "ends"),
	}}
	got := NewConverter(nil).RenderPage(p)
	want := "Hello world again still\n\nNext block ends"
	if got != want {
		t.Fatalf("RenderPage=%q want %q", got, want)
	}
}

func TestRenderPageArabicLineIsRightToLeft(t *testing.T) {
	p := Page{Glyphs: []Glyph{
		{X: 100, Y: 700, W: 8, Size: 12, S: "م"},
		{X: 120, Y: 700, W: 8, Size: 12, S: "س"},
		{X: 110, Y: 700, W: 8, Size: 12, S: "ل"},
	}}
	if got := NewConverter(nil).RenderPage(p); got != "سلم" {
		t.Fatalf("RenderPage=%q want %q", got, "سلم")
	}
}

func TestRenderPageEmptyCellsAndPipes(t *testing.T) {
	p := Page{
		Boxes: []Box{
			{MinX: 0, MinY: 80, MaxX: 50, MaxY: 100},
			{MinX: 50, MinY: 80, MaxX: 100, MaxY: 100},
			{MinX: 0, MinY: 60, MaxX: 50, MaxY: 80},
			{MinX: 50, MinY: 60, MaxX: 100, MaxY: 80},
		},
		Glyphs: []Glyph{
			{X: 5, Y: 86, W: 10, Size: 10, S: "a|b"},
			{X: 55, Y: 86, W: 10, Size: 10, S: "c"},
			{X: 5, Y: 66, W: 10, Size: 10, S: "d"},
		},
	}
	got := NewConverter(nil).RenderPage(p)
	want := "| a\\|b | c |\n| --- | --- |\n| d |  |"
	if got != want {
		t.Fatalf("RenderPage=%q want %q", got, want)
	}
}

func TestSingleBoxIsNotATable(t *testing.T) {
	p := Page{
		Boxes:  []Box{{MinX: 0, MinY: 0, MaxX: 300, MaxY: 300}},
		Glyphs: []Glyph{{X: 10, Y: 100, W: 20, Size: 12, S: "framed"}},
	}
	if got := NewConverter(nil).RenderPage(p); got != "framed" {
		t.Fatalf("RenderPage=%q want plain paragraph", got)
	}
}

type stubExtractor struct {
	md  string
	err error
}

func (s stubExtractor) Convert(ctx context.Context, data []byte) (string, error) { return s.md, s.err }

func TestFallbackExtractor(t *testing.T) {
	ctx := context.Background()
	pdfBytes := buildPDF(tableStream)

	ok := NewFallbackExtractor(nil, stubExtractor{md: "# from primary"})
	if md, err := ok.Convert(ctx, pdfBytes); err != nil || md != "# from primary" {
		t.Fatalf("primary result not used: %q %v", md, err)
	}

	failing := NewFallbackExtractor(nil, stubExtractor{err: errors.New("quota exceeded")})
	md, err := failing.Convert(ctx, pdfBytes)
	if err != nil {
		t.Fatalf("fallback returned error: %v", err)
	}
	if !strings.Contains(md, "| H1 | H2 |") {
		t.Fatalf("fallback did not use layout converter: %q", md)
	}

	none := NewFallbackExtractor(nil, nil)
	if md, err := none.Convert(ctx, []byte("garbage")); err != nil || !IsErrorReport(md) {
		t.Fatalf("expected error report without error, got %q %v", md, err)
	}
}
