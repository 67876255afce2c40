package pdfmd

import (
	"sort"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

type line struct {
	baseline float64
	size     float64
	glyphs   []Glyph
}

// buildLines groups glyphs sharing a baseline. Lines come back top to bottom.
func buildLines(glyphs []Glyph) []line {
	if len(glyphs) == 0 {
		return nil
	}
	sorted := append([]Glyph(nil), glyphs...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Y > sorted[j].Y })

	var lines []line
	for _, g := range sorted {
		if n := len(lines); n > 0 {
			cur := &lines[n-1]
			if abs(cur.baseline-g.Y) <= baselineTolerance(cur.size, g.Size) {
				cur.glyphs = append(cur.glyphs, g)
				if g.Size > cur.size {
					cur.size = g.Size
				}
				continue
			}
		}
		lines = append(lines, line{baseline: g.Y, size: g.Size, glyphs: []Glyph{g}})
	}
	return lines
}

func baselineTolerance(a, b float64) float64 {
	s := a
	if b > s {
		s = b
	}
	t := s * 0.5
	if t < 1 {
		t = 1
	}
	return t
}

// text orders glyphs in reading order and joins them, inserting a space where the
// horizontal gap is wider than a quarter of the font size. Predominantly Arabic lines
// are read right to left.
func (ln line) text() string {
	if len(ln.glyphs) == 0 {
		return ""
	}
	gs := append([]Glyph(nil), ln.glyphs...)
	rtl := isRTL(gs)
	sort.SliceStable(gs, func(i, j int) bool {
		if rtl {
			return gs[i].X > gs[j].X
		}
		return gs[i].X < gs[j].X
	})

	var b strings.Builder
	var prev *Glyph
	for i := range gs {
		g := gs[i]
		if strings.TrimSpace(g.S) == "" {
			if b.Len() > 0 && !strings.HasSuffix(b.String(), " ") {
				b.WriteByte(' ')
			}
			continue
		}
		if prev != nil && !strings.HasSuffix(b.String(), " ") {
			var gap float64
			if rtl {
				gap = prev.X - (g.X + g.W)
			} else {
				gap = g.X - (prev.X + prev.W)
			}
			size := g.Size
			if size <= 0 {
				size = ln.size
			}
			if gap > size*0.25 {
				b.WriteByte(' ')
			}
		}
		b.WriteString(g.S)
		prev = &gs[i]
	}
	return strings.TrimSpace(norm.NFKC.String(b.String()))
}

func isRTL(gs []Glyph) bool {
	var rtl, ltr int
	for _, g := range gs {
		for _, r := range g.S {
			switch {
			case unicode.In(r, unicode.Arabic, unicode.Hebrew):
				rtl++
			case unicode.IsLetter(r):
				ltr++
			}
		}
	}
	return rtl > ltr
}

/*
paragraphs groups lines into blocks. A new paragraph starts when the distance between
consecutive baselines exceeds 1.5x the page's median line spacing.
*/
func paragraphs(glyphs []Glyph) []string {
	lines := buildLines(glyphs)
	if len(lines) == 0 {
		return nil
	}
	spacing := medianSpacing(lines)

	var out []string
	var cur []string
	flush := func() {
		if len(cur) == 0 {
			return
		}
		if p := strings.TrimSpace(strings.Join(cur, " ")); p != "" {
			out = append(out, p)
		}
		cur = nil
	}
	for i, ln := range lines {
		if i > 0 && lines[i-1].baseline-ln.baseline > spacing*1.5 {
			flush()
		}
		if t := ln.text(); t != "" {
			cur = append(cur, t)
		}
	}
	flush()
	return out
}

func medianSpacing(lines []line) float64 {
	var gaps []float64
	for i := 1; i < len(lines); i++ {
		if d := lines[i-1].baseline - lines[i].baseline; d > 0 {
			gaps = append(gaps, d)
		}
	}
	if len(gaps) == 0 {
		size := lines[0].size
		if size <= 0 {
			size = 12
		}
		return size * 1.2
	}
	sort.Float64s(gaps)
	return gaps[len(gaps)/2]
}
