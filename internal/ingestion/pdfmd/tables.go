package pdfmd

import (
	"sort"
	"strings"
)

// Boxes thinner than this are treated as a single ruling line.
const ruleThickness = 2.0

type segment struct {
	horizontal bool
	pos        float64
	from, to   float64
}

type grid struct {
	xs []float64 // ascending
	ys []float64 // descending, top of page first
}

// segmentsOf explodes painted boxes into ruling segments. A thin box is one rule; any
// other box contributes its four edges.
func segmentsOf(boxes []Box) []segment {
	var out []segment
	for _, b := range boxes {
		w := b.MaxX - b.MinX
		h := b.MaxY - b.MinY
		switch {
		case w <= ruleThickness && h <= ruleThickness:
			continue
		case h <= ruleThickness:
			out = append(out, segment{horizontal: true, pos: (b.MinY + b.MaxY) / 2, from: b.MinX, to: b.MaxX})
		case w <= ruleThickness:
			out = append(out, segment{horizontal: false, pos: (b.MinX + b.MaxX) / 2, from: b.MinY, to: b.MaxY})
		default:
			out = append(out,
				segment{horizontal: true, pos: b.MinY, from: b.MinX, to: b.MaxX},
				segment{horizontal: true, pos: b.MaxY, from: b.MinX, to: b.MaxX},
				segment{horizontal: false, pos: b.MinX, from: b.MinY, to: b.MaxY},
				segment{horizontal: false, pos: b.MaxX, from: b.MinY, to: b.MaxY},
			)
		}
	}
	return out
}

func (a segment) touches(b segment, tol float64) bool {
	if a.horizontal == b.horizontal {
		if abs(a.pos-b.pos) > tol {
			return false
		}
		return a.from <= b.to+tol && b.from <= a.to+tol
	}
	h, v := a, b
	if !h.horizontal {
		h, v = b, a
	}
	return v.pos >= h.from-tol && v.pos <= h.to+tol && h.pos >= v.from-tol && h.pos <= v.to+tol
}

/*
detectTables groups ruling segments into connected components and turns every component
with at least two rows or two columns of cells into a grid. A lone rectangle (one cell) is
a frame, not a table. Grids are returned top of page first.
*/
func detectTables(boxes []Box, tol float64) []grid {
	segs := segmentsOf(boxes)
	if len(segs) == 0 {
		return nil
	}
	parent := make([]int, len(segs))
	for i := range parent {
		parent[i] = i
	}
	var find func(int) int
	find = func(i int) int {
		for parent[i] != i {
			parent[i] = parent[parent[i]]
			i = parent[i]
		}
		return i
	}
	for i := range segs {
		for j := i + 1; j < len(segs); j++ {
			if segs[i].touches(segs[j], tol) {
				if ri, rj := find(i), find(j); ri != rj {
					parent[ri] = rj
				}
			}
		}
	}
	groups := map[int][]segment{}
	var order []int
	for i, s := range segs {
		root := find(i)
		if _, ok := groups[root]; !ok {
			order = append(order, root)
		}
		groups[root] = append(groups[root], s)
	}

	var out []grid
	for _, root := range order {
		var xs, ys []float64
		for _, s := range groups[root] {
			if s.horizontal {
				ys = append(ys, s.pos)
			} else {
				xs = append(xs, s.pos)
			}
		}
		xs = cluster(xs, tol)
		ys = cluster(ys, tol)
		if len(xs) < 2 || len(ys) < 2 {
			continue
		}
		if (len(xs)-1)*(len(ys)-1) < 2 {
			continue
		}
		sort.Sort(sort.Reverse(sort.Float64Slice(ys)))
		out = append(out, grid{xs: xs, ys: ys})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].ys[0] > out[j].ys[0] })
	return out
}

// cluster merges sorted values closer than tol and returns the cluster means, ascending.
func cluster(vals []float64, tol float64) []float64 {
	if len(vals) == 0 {
		return nil
	}
	sorted := append([]float64(nil), vals...)
	sort.Float64s(sorted)
	var out []float64
	sum, n := sorted[0], 1
	last := sorted[0]
	for _, v := range sorted[1:] {
		if v-last <= tol {
			sum += v
			n++
		} else {
			out = append(out, sum/float64(n))
			sum, n = v, 1
		}
		last = v
	}
	return append(out, sum/float64(n))
}

func (g grid) contains(gl Glyph, tol float64) bool {
	x, y := center(gl)
	return x >= g.xs[0]-tol && x <= g.xs[len(g.xs)-1]+tol &&
		y <= g.ys[0]+tol && y >= g.ys[len(g.ys)-1]-tol
}

// fill assigns unused glyphs to cells by their center point and marks them used.
func (g grid) fill(glyphs []Glyph, used []bool) [][]string {
	rows := len(g.ys) - 1
	cols := len(g.xs) - 1
	buckets := make([][][]Glyph, rows)
	for r := range buckets {
		buckets[r] = make([][]Glyph, cols)
	}
	for i, gl := range glyphs {
		if used[i] {
			continue
		}
		x, y := center(gl)
		r := -1
		for k := 0; k < rows; k++ {
			if y <= g.ys[k] && y >= g.ys[k+1] {
				r = k
				break
			}
		}
		c := -1
		for k := 0; k < cols; k++ {
			if x >= g.xs[k] && x <= g.xs[k+1] {
				c = k
				break
			}
		}
		if r < 0 || c < 0 {
			continue
		}
		buckets[r][c] = append(buckets[r][c], gl)
		used[i] = true
	}
	out := make([][]string, rows)
	for r := range buckets {
		out[r] = make([]string, cols)
		for c := range buckets[r] {
			lines := buildLines(buckets[r][c])
			parts := make([]string, 0, len(lines))
			for _, ln := range lines {
				if t := ln.text(); t != "" {
					parts = append(parts, t)
				}
			}
			out[r][c] = strings.Join(parts, " ")
		}
	}
	return out
}

// center approximates the middle of the glyph box; Y is the baseline.
func center(g Glyph) (float64, float64) {
	return g.X + g.W/2, g.Y + g.Size*0.3
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
