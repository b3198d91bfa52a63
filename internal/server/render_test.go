package server

import (
	"strings"
	"testing"

	"kuner/internal/ner"
)

func TestHighlightHTML_WrapsSpans(t *testing.T) {
	text := "Hejar li Hewlêr dijî."
	out := HighlightHTML(text, []ner.Entity{
		{Text: "Hejar", Label: "PER", Score: 0.97, Start: 0, End: 5},
		{Text: "Hewlêr", Label: "LOC", Score: 0.93, Start: 9, End: 16},
	})
	if !strings.Contains(out, `<mark class="ent ent-per" title="PER 0.97">Hejar</mark>`) {
		t.Fatalf("missing PER mark: %s", out)
	}
	if !strings.Contains(out, `<mark class="ent ent-loc"`) {
		t.Fatalf("missing LOC mark: %s", out)
	}
	if !strings.HasSuffix(out, " dijî.") {
		t.Fatalf("trailing text lost: %s", out)
	}
}

func TestHighlightHTML_EscapesInput(t *testing.T) {
	text := `<script>alert(1)</script> Hejar`
	out := HighlightHTML(text, []ner.Entity{
		{Text: "Hejar", Label: "PER", Score: 0.9, Start: 26, End: 31},
	})
	if strings.Contains(out, "<script>") {
		t.Fatalf("unescaped input: %s", out)
	}
	if !strings.Contains(out, "Hejar</mark>") {
		t.Fatalf("entity lost: %s", out)
	}
}

func TestHighlightHTML_NoEntities(t *testing.T) {
	out := HighlightHTML("tu çawa yî?", nil)
	if strings.Contains(out, "<mark") {
		t.Fatalf("unexpected markup: %s", out)
	}
	if !strings.Contains(out, "tu çawa yî?") {
		t.Fatalf("text lost: %s", out)
	}
}

func TestHighlightHTML_IgnoresOutOfBoundsSpans(t *testing.T) {
	out := HighlightHTML("abc", []ner.Entity{{Text: "zzz", Label: "PER", Score: 0.9, Start: 1, End: 99}})
	if strings.Contains(out, "<mark") {
		t.Fatalf("out-of-bounds span rendered: %s", out)
	}
}

func TestHighlightHTML_Newlines(t *testing.T) {
	out := HighlightHTML("a\nb", nil)
	if !strings.Contains(out, "<br") {
		t.Fatalf("newline not rendered: %s", out)
	}
}
