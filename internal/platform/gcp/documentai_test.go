package gcp

import (
	"strings"
	"testing"

	"cloud.google.com/go/documentai/apiv1/documentaipb"
)

func anchor(start, end int64) *documentaipb.Document_TextAnchor {
	return &documentaipb.Document_TextAnchor{
		TextSegments: []*documentaipb.Document_TextAnchor_TextSegment{{StartIndex: start, EndIndex: end}},
	}
}

func cell(start, end int64) *documentaipb.Document_Page_Table_TableCell {
	return &documentaipb.Document_Page_Table_TableCell{Layout: &documentaipb.Document_Page_Layout{TextAnchor: anchor(start, end)}}
}

func TestDocumentMarkdownTablesThenParagraphs(t *testing.T) {
	text := "H1H2v1v2\nIntro text\n"
	doc := &documentaipb.Document{
		Text: text,
		Pages: []*documentaipb.Document_Page{
			{
				PageNumber: 1,
				Tables: []*documentaipb.Document_Page_Table{{
					Layout:     &documentaipb.Document_Page_Layout{TextAnchor: anchor(0, 8)},
					HeaderRows: []*documentaipb.Document_Page_Table_TableRow{{Cells: []*documentaipb.Document_Page_Table_TableCell{cell(0, 2), cell(2, 4)}}},
					BodyRows:   []*documentaipb.Document_Page_Table_TableRow{{Cells: []*documentaipb.Document_Page_Table_TableCell{cell(4, 6), cell(6, 8)}}},
				}},
				Paragraphs: []*documentaipb.Document_Page_Paragraph{
					{Layout: &documentaipb.Document_Page_Layout{TextAnchor: anchor(0, 8)}},
					{Layout: &documentaipb.Document_Page_Layout{TextAnchor: anchor(9, 19)}},
				},
			},
			{PageNumber: 2},
		},
	}
	md := DocumentMarkdown(doc)
	want := "| H1 | H2 |\n| --- | --- |\n| v1 | v2 |\n\nIntro text\n\n" + PageBreak + "\n\n"
	if md != want {
		t.Fatalf("markdown mismatch:\n%q\nwant\n%q", md, want)
	}
	if strings.Count(md, "H1H2") != 0 {
		t.Fatalf("table text leaked into paragraphs")
	}
}

func TestRenderTableEscapesAndPads(t *testing.T) {
	got := RenderTable([][]string{{"a|b", "c"}, {"d"}})
	want := "| a\\|b | c |\n| --- | --- |\n| d |  |"
	if got != want {
		t.Fatalf("got %q want %q", got, want)
	}
	if RenderTable(nil) != "" {
		t.Fatalf("empty rows should render nothing")
	}
}

func TestLanguageCode(t *testing.T) {
	cases := map[string]string{"": "ar-SA", "ar": "ar-SA", "EN": "en-US", "fr-FR": "fr-FR"}
	for in, want := range cases {
		if got := LanguageCode(in); got != want {
			t.Fatalf("LanguageCode(%q)=%q want %q", in, got, want)
		}
	}
}
