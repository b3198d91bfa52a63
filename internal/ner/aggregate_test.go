package ner

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestMergeBIO(t *testing.T) {
	words := []Word{
		{Text: "Emanuel", Start: 0, End: 7},
		{Text: "Macron", Start: 8, End: 14},
		{Text: "Parîs", Start: 18, End: 24},
	}
	labels := []string{"B-PER", "I-PER", "B-LOC"}
	scores := []float64{0.9, 0.8, 0.95}
	spans := mergeBIO(words, labels, scores)
	if len(spans) != 2 {
		t.Fatalf("expected 2 spans, got %d", len(spans))
	}
	if spans[0].Start != 0 || spans[0].End != 14 || spans[0].Type != "PER" {
		t.Fatalf("unexpected span %#v", spans[0])
	}
	if got, want := spans[0].Score, 0.85; got < want-1e-9 || got > want+1e-9 {
		t.Fatalf("expected averaged score %v, got %v", want, got)
	}
}

func TestMergeBIO_AdjacentEntities(t *testing.T) {
	words := []Word{
		{Text: "Hewlêr", Start: 0, End: 7},
		{Text: "Dihok", Start: 8, End: 13},
	}
	// B- B- of the same type must not merge
	spans := mergeBIO(words, []string{"B-LOC", "B-LOC"}, []float64{0.9, 0.9})
	if len(spans) != 2 {
		t.Fatalf("expected 2 spans, got %+v", spans)
	}
}

func TestMergeBIO_DanglingInside(t *testing.T) {
	words := []Word{{Text: "Kurdistan", Start: 0, End: 9}}
	// I- without a preceding B- still opens a span, matching the
	// aggregation of the upstream pipeline
	spans := mergeBIO(words, []string{"I-LOC"}, []float64{0.9})
	if len(spans) != 1 || spans[0].Type != "LOC" {
		t.Fatalf("unexpected spans %+v", spans)
	}
}

func TestNormalizeLabel(t *testing.T) {
	cases := map[string]string{
		"PER":    "PER",
		"PERSON": "PER",
		"GPE":    "LOC",
		"LOC":    "LOC",
		"ORG":    "ORG",
		"MISC":   "MISC",
	}
	for in, want := range cases {
		if got := normalizeLabel(in); got != want {
			t.Errorf("normalizeLabel(%q)=%q, want %q", in, got, want)
		}
	}
}

func TestFilterEntities_Threshold(t *testing.T) {
	in := []Entity{
		{Text: "Hejar", Label: "PER", Score: 0.95, Start: 0, End: 5},
		{Text: "Amed", Label: "LOC", Score: 0.40, Start: 10, End: 14},
	}
	out := filterEntities(in, 0.85)
	if len(out) != 1 || out[0].Text != "Hejar" {
		t.Fatalf("unexpected entities %+v", out)
	}
}

func TestFilterEntities_TrimsPunctuation(t *testing.T) {
	in := []Entity{{Text: `"Hewlêr".`, Label: "LOC", Score: 0.9, Start: 4, End: 14}}
	out := filterEntities(in, 0.85)
	if len(out) != 1 {
		t.Fatalf("expected 1 entity, got %+v", out)
	}
	want := Entity{Text: "Hewlêr", Label: "LOC", Score: 0.9, Start: 5, End: 12}
	if diff := cmp.Diff(want, out[0]); diff != "" {
		t.Fatalf("trimmed entity (-want +got):\n%s", diff)
	}
}

func TestFilterEntities_DropsPunctuationOnly(t *testing.T) {
	in := []Entity{{Text: `"..."`, Label: "PER", Score: 0.99, Start: 0, End: 5}}
	if out := filterEntities(in, 0.85); len(out) != 0 {
		t.Fatalf("expected punctuation-only span dropped, got %+v", out)
	}
}

func TestWordsToEntities_TextSlicing(t *testing.T) {
	text := "Ez li Hewlêr dijîm"
	words := splitWordsWithOffsets(text)
	labels := []string{"O", "O", "B-LOC", "O"}
	scores := []float64{0, 0, 0.97, 0}
	out := wordsToEntities(text, words, labels, scores)
	if len(out) != 1 || out[0].Text != "Hewlêr" {
		t.Fatalf("unexpected entities %+v", out)
	}
	if out[0].Text != text[out[0].Start:out[0].End] {
		t.Fatal("entity text must equal the input slice at its offsets")
	}
}
