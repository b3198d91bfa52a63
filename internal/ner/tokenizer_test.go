package ner

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

const specialsVocab = `["<s>",0],["<pad>",0],["</s>",0],["<unk>",0]`

func TestSplitWordsWithOffsets(t *testing.T) {
	words := splitWordsWithOffsets("Navê min Hejar e.")
	if len(words) != 4 {
		t.Fatalf("expected 4 words, got %d: %+v", len(words), words)
	}
	want := Word{Text: "Hejar", Start: 10, End: 15}
	if diff := cmp.Diff(want, words[2]); diff != "" {
		t.Fatalf("unexpected word (-want +got):\n%s", diff)
	}
	// ê is two bytes; offsets are byte offsets
	if words[0].Text != "Navê" || words[0].End != 5 {
		t.Fatalf("unexpected first word %+v", words[0])
	}
}

func TestSplitWordsWithOffsets_Empty(t *testing.T) {
	if words := splitWordsWithOffsets("  ... "); len(words) != 0 {
		t.Fatalf("expected no words, got %+v", words)
	}
}

func TestTokenizer_SegmentPrefersBestScore(t *testing.T) {
	tok := mustTokenizer(t, `{"model":{"type":"Unigram","vocab":[`+specialsVocab+
		`,["▁ab",-1.0],["▁a",-2.0],["b",-2.5],["▁",-3.0],["a",-3.0]]}}`)
	ids := tok.segment("▁ab")
	if len(ids) != 1 {
		t.Fatalf("expected single piece, got %v", ids)
	}
	if piece := tok.pieces["▁ab"]; ids[0] != piece.id {
		t.Fatalf("expected piece %d, got %d", piece.id, ids[0])
	}
}

func TestTokenizer_SegmentFallsBackToUnk(t *testing.T) {
	tok := mustTokenizer(t, `{"model":{"type":"Unigram","vocab":[`+specialsVocab+`,["▁",-1.0]]}}`)
	ids := tok.segment("▁xy")
	// ▁ matches, x and y do not
	if len(ids) != 3 || ids[1] != tok.unkID || ids[2] != tok.unkID {
		t.Fatalf("unexpected ids %v (unk=%d)", ids, tok.unkID)
	}
}

func TestTokenizer_EncodeSpecialsAndMapping(t *testing.T) {
	tok := mustTokenizer(t, `{"model":{"type":"Unigram","vocab":[`+specialsVocab+
		`,["▁Hejar",-1.0],["▁li",-1.0]]}}`)
	enc := tok.Encode("Hejar li")
	if len(enc.InputIDs) != 4 {
		t.Fatalf("expected <s> + 2 pieces + </s>, got %v", enc.InputIDs)
	}
	if enc.InputIDs[0] != int64(tok.bosID) || enc.InputIDs[3] != int64(tok.eosID) {
		t.Fatalf("missing specials: %v", enc.InputIDs)
	}
	wantMap := []int{-1, 0, 1, -1}
	if diff := cmp.Diff(wantMap, enc.TokenToWord); diff != "" {
		t.Fatalf("token/word mapping (-want +got):\n%s", diff)
	}
	for _, m := range enc.AttentionMask {
		if m != 1 {
			t.Fatalf("attention mask should be all ones: %v", enc.AttentionMask)
		}
	}
}

func TestTokenizer_Truncation(t *testing.T) {
	tok, err := parseSentencePieceTokenizer([]byte(`{"model":{"type":"Unigram","vocab":[`+specialsVocab+
		`,["▁a",-1.0]]}}`), 5)
	if err != nil {
		t.Fatal(err)
	}
	enc := tok.Encode("a a a a a a a a")
	if len(enc.InputIDs) > 5 {
		t.Fatalf("sequence exceeds max length: %d", len(enc.InputIDs))
	}
	if enc.InputIDs[len(enc.InputIDs)-1] != int64(tok.eosID) {
		t.Fatal("truncated sequence must still end with </s>")
	}
}

func TestTokenizer_RejectsWordPiece(t *testing.T) {
	_, err := parseSentencePieceTokenizer([]byte(`{"model":{"type":"WordPiece","vocab":[`+specialsVocab+`]}}`), 0)
	if err == nil {
		t.Fatal("expected error for non-unigram model")
	}
}

func TestTokenizer_MissingSpecials(t *testing.T) {
	_, err := parseSentencePieceTokenizer([]byte(`{"model":{"type":"Unigram","vocab":[["a",-1.0]]}}`), 0)
	if err == nil {
		t.Fatal("expected error for missing specials")
	}
}

func mustTokenizer(t *testing.T, raw string) *SentencePieceTokenizer {
	t.Helper()
	tok, err := parseSentencePieceTokenizer([]byte(raw), 0)
	if err != nil {
		t.Fatal(err)
	}
	return tok
}
