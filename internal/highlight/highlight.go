// Package highlight marks filter matches in rendered alert text.
package highlight

import (
	"html/template"
	"sort"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const dateLayout = "2006-01-02"

type span struct{ start, end int }

// fold lower-cases r and strips its combining marks, so "Á" folds to "a".
func fold(r rune) []rune {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, string(r))
	if err != nil {
		out = string(r)
	}
	return []rune(strings.ToLower(out))
}

// Keywords escapes text and wraps every case- and accent-insensitive occurrence of
// each whitespace separated term of query in <mark>.
func Keywords(text, query string) template.HTML {
	terms := strings.Fields(query)
	if len(terms) == 0 || text == "" {
		return template.HTML(template.HTMLEscapeString(text))
	}

	src := []rune(text)
	var folded []rune
	var owner []int // folded index -> source rune index
	for i, r := range src {
		for _, f := range fold(r) {
			folded = append(folded, f)
			owner = append(owner, i)
		}
	}

	var spans []span
	for _, term := range terms {
		var needle []rune
		for _, r := range term {
			needle = append(needle, fold(r)...)
		}
		if len(needle) == 0 {
			continue
		}
		for i := 0; i+len(needle) <= len(folded); i++ {
			if equalRunes(folded[i:i+len(needle)], needle) {
				spans = append(spans, span{start: owner[i], end: owner[i+len(needle)-1] + 1})
			}
		}
	}
	if len(spans) == 0 {
		return template.HTML(template.HTMLEscapeString(text))
	}

	spans = merge(spans)
	var b strings.Builder
	pos := 0
	for _, s := range spans {
		b.WriteString(template.HTMLEscapeString(string(src[pos:s.start])))
		b.WriteString("<mark>")
		b.WriteString(template.HTMLEscapeString(string(src[s.start:s.end])))
		b.WriteString("</mark>")
		pos = s.end
	}
	b.WriteString(template.HTMLEscapeString(string(src[pos:])))
	return template.HTML(b.String())
}

func equalRunes(a, b []rune) bool {
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func merge(spans []span) []span {
	sort.Slice(spans, func(i, j int) bool { return spans[i].start < spans[j].start })
	out := spans[:1]
	for _, s := range spans[1:] {
		last := &out[len(out)-1]
		if s.start <= last.end {
			if s.end > last.end {
				last.end = s.end
			}
			continue
		}
		out = append(out, s)
	}
	return out
}

// InRange reports whether value lies in the inclusive [desde, hasta] day range.
// Empty or unparseable bounds are open.
func InRange(value, desde, hasta string) bool {
	t, ok := parse(value)
	if !ok {
		return false
	}
	day := t.Format(dateLayout)
	if from, ok := parse(desde); ok && day < from.Format(dateLayout) {
		return false
	}
	if to, ok := parse(hasta); ok && day > to.Format(dateLayout) {
		return false
	}
	return true
}

func parse(v string) (time.Time, bool) {
	v = strings.TrimSpace(v)
	if v == "" {
		return time.Time{}, false
	}
	if t, err := time.Parse(dateLayout, v); err == nil {
		return t, true
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, true
	}
	return time.Time{}, false
}
