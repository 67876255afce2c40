package correlator

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	types "github.com/yungbote/qalam-backend/internal/domain"
)

var (
	ordinalRe = regexp.MustCompile(`(?i)^(?:#|no\.?\s*|step\s*|part\s*|chapter\s*|day\s*|episode\s*)?(\d{1,3})(?:st|nd|rd|th|\.)?$`)
	eraRe     = regexp.MustCompile(`(?i)\s*(?:ce|ad|a\.d\.)$`)

	dateLayouts = []string{
		time.RFC3339,
		"2006-01-02",
		"2006/01/02",
		"2006-01",
		"January 2, 2006",
		"2 January 2006",
		"Jan 2, 2006",
		"January 2006",
		"2006",
	}
)

const (
	rankOrdinal = iota
	rankDate
)

type position struct {
	rank    int
	ordinal int
	at      time.Time
}

// parsePosition reads an event's timeline position as a date or a small ordinal. Arabic-Indic
// digits are accepted.
func parsePosition(raw string) (position, bool) {
	s := strings.TrimSpace(asciiDigits(raw))
	if s == "" {
		return position{}, false
	}
	dateText := eraRe.ReplaceAllString(s, "")
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, dateText); err == nil {
			return position{rank: rankDate, at: t.UTC()}, true
		}
	}
	if m := ordinalRe.FindStringSubmatch(s); m != nil {
		n, err := strconv.Atoi(m[1])
		if err == nil {
			return position{rank: rankOrdinal, ordinal: n}, true
		}
	}
	return position{}, false
}

func asciiDigits(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= '٠' && r <= '٩':
			return '0' + (r - '٠')
		case r >= '۰' && r <= '۹':
			return '0' + (r - '۰')
		}
		return r
	}, s)
}

/*
buildTimeline orders events with parseable positions first: ordinals ascending, then dates
ascending. Ties go to the earlier source, then to input order. Events with no parseable
position follow in input order.
*/
func buildTimeline(clusters []*cluster) []types.TimelineEntry {
	type item struct {
		entry types.TimelineEntry
		pos   position
		order int
		seq   int
	}
	var parsed, rest []item
	for i, cl := range clusters {
		if cl.kind != types.EntityEvent {
			continue
		}
		e := cl.entity
		it := item{
			entry: types.TimelineEntry{EventID: e.ID.String(), Title: e.Name, Position: e.TimelinePosition},
			order: cl.members[0].sourceOrder,
			seq:   i,
		}
		p, ok := parsePosition(e.TimelinePosition)
		if !ok {
			rest = append(rest, it)
			continue
		}
		it.pos = p
		it.entry.Parsed = true
		switch p.rank {
		case rankDate:
			it.entry.Timestamp = p.at.Format(time.RFC3339)
		case rankOrdinal:
			n := p.ordinal
			it.entry.Ordinal = &n
		}
		parsed = append(parsed, it)
	}
	sort.SliceStable(parsed, func(i, j int) bool {
		a, b := parsed[i], parsed[j]
		if a.pos.rank != b.pos.rank {
			return a.pos.rank < b.pos.rank
		}
		if a.pos.rank == rankOrdinal && a.pos.ordinal != b.pos.ordinal {
			return a.pos.ordinal < b.pos.ordinal
		}
		if a.pos.rank == rankDate && !a.pos.at.Equal(b.pos.at) {
			return a.pos.at.Before(b.pos.at)
		}
		if a.order != b.order {
			return a.order < b.order
		}
		return a.seq < b.seq
	})
	out := make([]types.TimelineEntry, 0, len(parsed)+len(rest))
	for _, it := range parsed {
		out = append(out, it.entry)
	}
	for _, it := range rest {
		out = append(out, it.entry)
	}
	return out
}
