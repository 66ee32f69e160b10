// Package temporal extracts duration and due-date phrases from Arabic chat
// text. Matching runs on a normalized view of the input; matched spans are
// mapped back to the original so residual text keeps its spelling.
package temporal

import (
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

const tatweel = 'ـ'

// Normalize folds text for matching: compatibility decomposition, drops
// diacritics and tatweel, unifies alef and yeh variants, maps Arabic-Indic
// digits to ASCII and lowercases Latin letters.
func Normalize(s string) string {
	return newFolded(s).norm
}

// folded is a normalized view of a string with a byte map back to it.
type folded struct {
	orig  string
	norm  string
	start []int
	end   []int
}

func newFolded(s string) *folded {
	f := &folded{orig: s}
	var b strings.Builder
	b.Grow(len(s))

	for i := 0; i < len(s); {
		r, size := utf8.DecodeRuneInString(s[i:])
		out := foldRune(r)
		for j := 0; j < len(out); j++ {
			f.start = append(f.start, i)
			f.end = append(f.end, i+size)
		}
		b.WriteString(out)
		i += size
	}

	f.norm = b.String()
	return f
}

func foldRune(r rune) string {
	if r < utf8.RuneSelf {
		if 'A' <= r && r <= 'Z' {
			r += 'a' - 'A'
		}
		return string(r)
	}
	if dropRune(r) {
		return ""
	}
	if m, ok := mapLetter(r); ok {
		return string(m)
	}

	decomposed := norm.NFKD.String(string(r))
	var b strings.Builder
	for _, d := range decomposed {
		if dropRune(d) {
			continue
		}
		if m, ok := mapLetter(d); ok {
			d = m
		}
		b.WriteRune(d)
	}
	return b.String()
}

func dropRune(r rune) bool {
	return r == tatweel || unicode.Is(unicode.Mn, r)
}

func mapLetter(r rune) (rune, bool) {
	switch {
	case r == 'أ' || r == 'إ' || r == 'آ' || r == 'ٱ':
		return 'ا', true
	case r == 'ى':
		return 'ي', true
	case r >= '٠' && r <= '٩':
		return '0' + (r - '٠'), true
	case r >= '۰' && r <= '۹':
		return '0' + (r - '۰'), true
	}
	return 0, false
}

// origSpan maps a [ns, ne) byte span of the normalized text to the original,
// swallowing diacritics that trail the last matched letter.
func (f *folded) origSpan(ns, ne int) span {
	if ns >= ne || ne > len(f.start) {
		return span{}
	}
	s, e := f.start[ns], f.end[ne-1]
	for e < len(f.orig) {
		r, size := utf8.DecodeRuneInString(f.orig[e:])
		if !dropRune(r) {
			break
		}
		e += size
	}
	return span{start: s, end: e}
}

type span struct {
	start, end int
}

func (s span) empty() bool { return s.end <= s.start }

// removeSpans cuts spans out of s (rightmost first so offsets stay valid)
// and collapses whitespace.
func removeSpans(s string, spans []span) string {
	live := make([]span, 0, len(spans))
	for _, sp := range spans {
		if !sp.empty() {
			live = append(live, sp)
		}
	}
	if len(live) == 0 {
		return collapse(s)
	}

	sort.Slice(live, func(i, j int) bool { return live[i].start < live[j].start })
	merged := []span{live[0]}
	for _, sp := range live[1:] {
		last := &merged[len(merged)-1]
		if sp.start <= last.end {
			if sp.end > last.end {
				last.end = sp.end
			}
			continue
		}
		merged = append(merged, sp)
	}

	out := s
	for i := len(merged) - 1; i >= 0; i-- {
		sp := merged[i]
		out = out[:sp.start] + " " + out[sp.end:]
	}
	return collapse(out)
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
