package ner

import (
	"encoding/json"
	"fmt"
	"os"
	"unicode"
	"unicode/utf8"
)

// Word is one whitespace/punctuation-delimited word with byte offsets into
// the original input.
type Word struct {
	Text       string
	Start, End int
}

// Encoding is the model-ready form of one input string. TokenToWord maps
// each position of InputIDs back to an index in Words, with -1 for the
// <s> and </s> specials.
type Encoding struct {
	InputIDs      []int64
	AttentionMask []int64
	TokenToWord   []int
	Words         []Word
}

const spWordBoundary = "▁" // "▁", SentencePiece word-start marker

// SentencePieceTokenizer implements the unigram model used by XLM-RoBERTa,
// loaded from a HuggingFace tokenizer.json. Each word is segmented
// independently with a Viterbi pass over the piece vocabulary.
type SentencePieceTokenizer struct {
	pieces      map[string]pieceEntry
	unkID       int
	bosID       int
	eosID       int
	unkScore    float64
	maxPieceLen int
	maxSeqLen   int
}

type pieceEntry struct {
	id    int
	score float64
}

type tokenizerJSON struct {
	Model struct {
		Type  string               `json:"type"`
		UnkID *int                 `json:"unk_id"`
		Vocab [][2]json.RawMessage `json:"vocab"`
	} `json:"model"`
}

func NewSentencePieceTokenizer(tokenizerPath string, maxSeqLen int) (*SentencePieceTokenizer, error) {
	raw, err := os.ReadFile(tokenizerPath)
	if err != nil {
		return nil, err
	}
	return parseSentencePieceTokenizer(raw, maxSeqLen)
}

func parseSentencePieceTokenizer(raw []byte, maxSeqLen int) (*SentencePieceTokenizer, error) {
	var cfg tokenizerJSON
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("parse tokenizer.json: %w", err)
	}
	if cfg.Model.Type != "" && cfg.Model.Type != "Unigram" {
		return nil, fmt.Errorf("unsupported tokenizer model %q, want Unigram", cfg.Model.Type)
	}
	if len(cfg.Model.Vocab) == 0 {
		return nil, fmt.Errorf("tokenizer.json model.vocab is empty")
	}
	if maxSeqLen <= 0 {
		maxSeqLen = 256
	}

	t := &SentencePieceTokenizer{
		pieces:    make(map[string]pieceEntry, len(cfg.Model.Vocab)),
		maxSeqLen: maxSeqLen,
		unkID:     -1,
		bosID:     -1,
		eosID:     -1,
	}
	minScore := 0.0
	for id, pair := range cfg.Model.Vocab {
		var piece string
		var score float64
		if err := json.Unmarshal(pair[0], &piece); err != nil {
			return nil, fmt.Errorf("vocab entry %d: %w", id, err)
		}
		if err := json.Unmarshal(pair[1], &score); err != nil {
			return nil, fmt.Errorf("vocab entry %d score: %w", id, err)
		}
		t.pieces[piece] = pieceEntry{id: id, score: score}
		if score < minScore {
			minScore = score
		}
		if n := utf8.RuneCountInString(piece); n > t.maxPieceLen {
			t.maxPieceLen = n
		}
		switch piece {
		case "<s>":
			t.bosID = id
		case "</s>":
			t.eosID = id
		case "<unk>":
			t.unkID = id
		}
	}
	if t.unkID < 0 && cfg.Model.UnkID != nil {
		t.unkID = *cfg.Model.UnkID
	}
	if t.unkID < 0 {
		return nil, fmt.Errorf("tokenizer vocab is missing <unk>")
	}
	if t.bosID < 0 || t.eosID < 0 {
		return nil, fmt.Errorf("tokenizer vocab is missing <s> or </s>")
	}
	// Unknown characters score below every real piece so Viterbi only
	// falls back to <unk> when nothing else matches.
	t.unkScore = minScore - 10
	return t, nil
}

func (t *SentencePieceTokenizer) Encode(text string) *Encoding {
	words := splitWordsWithOffsets(text)
	enc := &Encoding{
		InputIDs:      []int64{int64(t.bosID)},
		AttentionMask: []int64{1},
		TokenToWord:   []int{-1},
		Words:         words,
	}
	for wi, word := range words {
		for _, id := range t.segment(spWordBoundary + word.Text) {
			if len(enc.InputIDs) >= t.maxSeqLen-1 {
				break
			}
			enc.InputIDs = append(enc.InputIDs, int64(id))
			enc.AttentionMask = append(enc.AttentionMask, 1)
			enc.TokenToWord = append(enc.TokenToWord, wi)
		}
		if len(enc.InputIDs) >= t.maxSeqLen-1 {
			break
		}
	}
	enc.InputIDs = append(enc.InputIDs, int64(t.eosID))
	enc.AttentionMask = append(enc.AttentionMask, 1)
	enc.TokenToWord = append(enc.TokenToWord, -1)
	return enc
}

// segment finds the best-scoring split of word into vocabulary pieces.
// Single runes absent from the vocabulary map to <unk>, so segmentation
// never fails.
func (t *SentencePieceTokenizer) segment(word string) []int {
	runes := []rune(word)
	n := len(runes)
	if n == 0 {
		return nil
	}

	const negInf = -1e18
	bestScore := make([]float64, n+1)
	bestLen := make([]int, n+1)
	bestID := make([]int, n+1)
	for i := 1; i <= n; i++ {
		bestScore[i] = negInf
	}

	for end := 1; end <= n; end++ {
		maxLen := t.maxPieceLen
		if maxLen > end {
			maxLen = end
		}
		for l := 1; l <= maxLen; l++ {
			start := end - l
			if bestScore[start] == negInf {
				continue
			}
			piece := string(runes[start:end])
			entry, ok := t.pieces[piece]
			id, score := entry.id, entry.score
			if !ok {
				if l != 1 {
					continue
				}
				id, score = t.unkID, t.unkScore
			}
			if s := bestScore[start] + score; s > bestScore[end] {
				bestScore[end] = s
				bestLen[end] = l
				bestID[end] = id
			}
		}
	}

	ids := make([]int, 0, n)
	for pos := n; pos > 0; pos -= bestLen[pos] {
		ids = append(ids, bestID[pos])
	}
	for i, j := 0, len(ids)-1; i < j; i, j = i+1, j-1 {
		ids[i], ids[j] = ids[j], ids[i]
	}
	return ids
}

func splitWordsWithOffsets(text string) []Word {
	words := make([]Word, 0)
	start := -1
	for i, r := range text {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if start < 0 {
				start = i
			}
			continue
		}
		if start >= 0 {
			words = append(words, Word{Text: text[start:i], Start: start, End: i})
			start = -1
		}
	}
	if start >= 0 {
		words = append(words, Word{Text: text[start:], Start: start, End: len(text)})
	}
	return words
}
