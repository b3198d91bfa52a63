package ner

import "context"

// Entity is one recognized span in the input text. Start and End are byte
// offsets into the original string; Score is the averaged model confidence
// over the span's tokens, in [0,1].
type Entity struct {
	Text  string  `json:"text"`
	Label string  `json:"label"`
	Score float64 `json:"score"`
	Start int     `json:"start"`
	End   int     `json:"end"`
}

type Recognizer interface {
	Recognize(ctx context.Context, text string) ([]Entity, error)
}
