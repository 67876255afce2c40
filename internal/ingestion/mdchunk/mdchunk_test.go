package mdchunk

import (
	"reflect"
	"testing"
)

func TestCollect(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want []Chunk
	}{
		{
			name: "single h1",
			in:   "# Chapter 1\n\nThis is paragraph one.",
			want: []Chunk{{Text: "This is paragraph one.", Headers: []string{"Chapter 1"}, SourceType: "pdf"}},
		},
		{
			name: "nested headings",
			in:   "# A\nfoo\n\n## B\nbar",
			want: []Chunk{
				{Text: "foo", Headers: []string{"A"}, SourceType: "pdf"},
				{Text: "bar", Headers: []string{"A", "B"}, SourceType: "pdf"},
			},
		},
		{
			name: "sibling does not bleed",
			in:   "# A\n\n## B\n\nb\n\n## C\n\nc\n\n# D\n\nd",
			want: []Chunk{
				{Text: "b", Headers: []string{"A", "B"}, SourceType: "pdf"},
				{Text: "c", Headers: []string{"A", "C"}, SourceType: "pdf"},
				{Text: "d", Headers: []string{"D"}, SourceType: "pdf"},
			},
		},
		{
			name: "skipped level",
			in:   "### deep\n\nx\n\n# top\n\ny",
			want: []Chunk{
				{Text: "x", Headers: []string{"deep"}, SourceType: "pdf"},
				{Text: "y", Headers: []string{"top"}, SourceType: "pdf"},
			},
		},
		{
			name: "no headings",
			in:   "plain text",
			want: []Chunk{{Text: "plain text", Headers: []string{}, SourceType: "pdf"}},
		},
		{
			name: "arabic",
			in:   "# الفصل الأول\n\nقال يوسف.",
			want: []Chunk{{Text: "قال يوسف.", Headers: []string{"الفصل الأول"}, SourceType: "pdf"}},
		},
	}
	for _, tc := range cases {
		got := Collect(tc.in, "pdf")
		if !reflect.DeepEqual(got, tc.want) {
			t.Fatalf("%s: got %#v want %#v", tc.name, got, tc.want)
		}
	}
}

func TestCollectWhitespaceOnly(t *testing.T) {
	for _, in := range []string{"", "   ", "\n\n\t\n", "# Only a heading\n\n## And another"} {
		if got := Collect(in, "text"); len(got) != 0 {
			t.Fatalf("Collect(%q) = %#v, want none", in, got)
		}
	}
}

func TestChunksAreLazy(t *testing.T) {
	n := 0
	for range Chunks("a\n\nb\n\nc", "text") {
		n++
		if n == 2 {
			break
		}
	}
	if n != 2 {
		t.Fatalf("expected early stop after 2 chunks, got %d", n)
	}
}

func TestHeaderPathIsCopied(t *testing.T) {
	got := Collect("# A\n\none\n\ntwo", "text")
	if len(got) != 2 {
		t.Fatalf("got %d chunks", len(got))
	}
	got[0].Headers[0] = "mutated"
	if got[1].Headers[0] != "A" {
		t.Fatalf("header slices share backing storage")
	}
}

func TestBreadcrumb(t *testing.T) {
	if b := (Chunk{Headers: []string{"A", "B"}}).Breadcrumb(); b != "A > B" {
		t.Fatalf("Breadcrumb=%q", b)
	}
}
