package server

import (
	"fmt"
	"html"
	"sort"
	"strings"

	"github.com/microcosm-cc/bluemonday"

	"kuner/internal/ner"
)

// highlightPolicy keeps only the markup HighlightHTML itself emits.
var highlightPolicy = func() *bluemonday.Policy {
	p := bluemonday.NewPolicy()
	p.AllowElements("mark", "br")
	p.AllowAttrs("class", "title").OnElements("mark")
	return p
}()

// HighlightHTML renders text with entity spans wrapped in <mark> elements.
// Overlapping spans are resolved in favor of the earlier one.
func HighlightHTML(text string, entities []ner.Entity) string {
	sorted := make([]ner.Entity, len(entities))
	copy(sorted, entities)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Start < sorted[j].Start })

	var b strings.Builder
	pos := 0
	for _, e := range sorted {
		if e.Start < pos || e.End > len(text) || e.Start > e.End {
			continue
		}
		writeEscaped(&b, text[pos:e.Start])
		fmt.Fprintf(&b, `<mark class="ent ent-%s" title="%s %.2f">`,
			strings.ToLower(e.Label), html.EscapeString(e.Label), e.Score)
		writeEscaped(&b, text[e.Start:e.End])
		b.WriteString("</mark>")
		pos = e.End
	}
	writeEscaped(&b, text[pos:])

	return highlightPolicy.Sanitize(b.String())
}

func writeEscaped(b *strings.Builder, s string) {
	escaped := html.EscapeString(s)
	b.WriteString(strings.ReplaceAll(escaped, "\n", "<br>"))
}
