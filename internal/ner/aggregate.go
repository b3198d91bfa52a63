package ner

import (
	"math"
	"strings"
)

// wordsToEntities merges word-level BIO predictions into entity spans.
// labels and scores are indexed per word.
func wordsToEntities(text string, words []Word, labels []string, scores []float64) []Entity {
	spans := mergeBIO(words, labels, scores)
	out := make([]Entity, 0, len(spans))
	for _, s := range spans {
		out = append(out, Entity{
			Text:  text[s.Start:s.End],
			Label: normalizeLabel(s.Type),
			Score: s.Score,
			Start: s.Start,
			End:   s.End,
		})
	}
	return out
}

// normalizeLabel maps model tag variants onto the canonical PER/LOC/ORG set.
func normalizeLabel(t string) string {
	switch strings.ToUpper(t) {
	case "PER", "PERSON":
		return "PER"
	case "LOC", "GPE":
		return "LOC"
	case "ORG":
		return "ORG"
	default:
		return strings.ToUpper(t)
	}
}

type bioSpan struct {
	Type       string
	Start, End int
	Score      float64
}

func mergeBIO(words []Word, labels []string, scores []float64) []bioSpan {
	out := make([]bioSpan, 0)
	var cur *bioSpan
	curCount := 0.0
	for i := range words {
		label := labels[i]
		score := scores[i]
		if label == "O" || label == "" {
			if cur != nil {
				cur.Score = cur.Score / math.Max(1, curCount)
				out = append(out, *cur)
				cur = nil
				curCount = 0
			}
			continue
		}
		parts := strings.SplitN(label, "-", 2)
		if len(parts) != 2 {
			continue
		}
		prefix, typ := parts[0], parts[1]
		if prefix != "I" && prefix != "B" {
			continue
		}
		if prefix == "B" || cur == nil || cur.Type != typ {
			if cur != nil {
				cur.Score = cur.Score / math.Max(1, curCount)
				out = append(out, *cur)
			}
			cur = &bioSpan{Type: typ, Start: words[i].Start, End: words[i].End, Score: score}
			curCount = 1
			continue
		}
		cur.End = words[i].End
		cur.Score += score
		curCount++
	}
	if cur != nil {
		cur.Score = cur.Score / math.Max(1, curCount)
		out = append(out, *cur)
	}
	return out
}

const surroundingPunct = `.,!?"'()`

// filterEntities applies the demo's presentation rules: keep spans at or
// above minScore, trim surrounding punctuation from the surface text while
// keeping offsets in sync, and drop spans that are empty or punctuation-only
// after trimming.
func filterEntities(entities []Entity, minScore float64) []Entity {
	out := make([]Entity, 0, len(entities))
	for _, e := range entities {
		if e.Score < minScore {
			continue
		}
		trimmed, start, end := trimPunct(e.Text, e.Start)
		if trimmed == "" || allPunct(trimmed) {
			continue
		}
		e.Text = trimmed
		e.Start = start
		e.End = end
		out = append(out, e)
	}
	return out
}

func trimPunct(s string, start int) (string, int, int) {
	leading := len(s) - len(strings.TrimLeft(s, surroundingPunct+" "))
	trimmed := strings.Trim(s, surroundingPunct+" ")
	return trimmed, start + leading, start + leading + len(trimmed)
}

func allPunct(s string) bool {
	for _, r := range s {
		if !strings.ContainsRune(surroundingPunct, r) {
			return false
		}
	}
	return true
}
