package ner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"
)

var ErrModelUnavailable = errors.New("ner model unavailable")

type Config struct {
	ModelDir string
	MaxBytes int
	MinScore float64
	SeqLen   int
}

// Timing breaks a Recognize call into its stages.
type Timing struct {
	Tokenize time.Duration
	Infer    time.Duration
	Total    time.Duration
}

// Pipeline bundles tokenizer, label map and ONNX session for one model.
// Loading is deferred to the first Recognize call and done once; a load
// failure is cached and reported as ErrModelUnavailable thereafter.
type Pipeline struct {
	cfg     Config
	once    sync.Once
	loadErr error

	labels    []string
	tokenizer *SentencePieceTokenizer
	session   inferSession
}

func NewPipeline(cfg Config) *Pipeline {
	if cfg.MaxBytes == 0 {
		cfg.MaxBytes = 32 * 1024
	}
	if cfg.MinScore == 0 {
		cfg.MinScore = 0.85
	}
	if cfg.SeqLen == 0 {
		cfg.SeqLen = 256
	}
	return &Pipeline{cfg: cfg}
}

func (p *Pipeline) init() error {
	p.once.Do(func() {
		if p.session != nil {
			return
		}
		modelPath := filepath.Join(p.cfg.ModelDir, "model.onnx")
		if _, err := os.Stat(modelPath); err != nil {
			p.loadErr = fmt.Errorf("model missing: %w", err)
			return
		}
		labels, err := loadLabels(filepath.Join(p.cfg.ModelDir, "labels.json"))
		if err != nil {
			p.loadErr = fmt.Errorf("load labels: %w", err)
			return
		}
		tokenizer, err := NewSentencePieceTokenizer(filepath.Join(p.cfg.ModelDir, "tokenizer.json"), p.cfg.SeqLen)
		if err != nil {
			p.loadErr = fmt.Errorf("load tokenizer: %w", err)
			return
		}
		session, err := createSession(p.cfg.ModelDir, p.cfg.SeqLen, len(labels))
		if err != nil {
			p.loadErr = fmt.Errorf("create session: %w", err)
			return
		}
		p.labels = labels
		p.tokenizer = tokenizer
		p.session = session
	})
	return p.loadErr
}

func (p *Pipeline) Recognize(ctx context.Context, text string) ([]Entity, error) {
	entities, _, err := p.RecognizeTimed(ctx, text)
	return entities, err
}

func (p *Pipeline) RecognizeTimed(ctx context.Context, text string) ([]Entity, Timing, error) {
	var timing Timing
	if len(text) == 0 || len(text) > p.cfg.MaxBytes {
		return nil, timing, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, timing, err
	}
	if err := p.init(); err != nil {
		return nil, timing, fmt.Errorf("%w: %v", ErrModelUnavailable, err)
	}

	start := time.Now()
	enc := p.tokenizer.Encode(text)
	timing.Tokenize = time.Since(start)
	if len(enc.Words) == 0 {
		timing.Total = time.Since(start)
		return nil, timing, nil
	}

	startInf := time.Now()
	logits, err := p.session.Run(ctx, enc.InputIDs, enc.AttentionMask)
	if err != nil {
		return nil, timing, err
	}
	timing.Infer = time.Since(startInf)
	if len(logits) < len(enc.InputIDs) {
		return nil, timing, fmt.Errorf("model returned %d logit rows for %d tokens", len(logits), len(enc.InputIDs))
	}

	// Word-level prediction from the first sub-token of each word; words
	// lost to truncation stay "O".
	wordLabels := make([]string, len(enc.Words))
	wordScores := make([]float64, len(enc.Words))
	for i := range wordLabels {
		wordLabels[i] = "O"
	}
	seen := make([]bool, len(enc.Words))
	for ti, wi := range enc.TokenToWord {
		if wi < 0 || seen[wi] {
			continue
		}
		seen[wi] = true
		probs := softmax(logits[ti])
		best := 0
		for j, pr := range probs {
			if pr > probs[best] {
				best = j
			}
		}
		wordLabels[wi] = p.labelName(best)
		wordScores[wi] = probs[best]
	}

	entities := filterEntities(wordsToEntities(text, enc.Words, wordLabels, wordScores), p.cfg.MinScore)
	timing.Total = time.Since(start)
	return entities, timing, nil
}

// Close releases the ONNX session if one was created.
func (p *Pipeline) Close() error {
	if p.session != nil {
		return p.session.Close()
	}
	return nil
}

func (p *Pipeline) labelName(idx int) string {
	if idx < 0 || idx >= len(p.labels) {
		return "O"
	}
	return p.labels[idx]
}

// loadLabels accepts either a JSON array of tag names or an index-keyed
// object, the two id2label shapes seen in the wild.
func loadLabels(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var arr []string
	if err := json.Unmarshal(data, &arr); err == nil && len(arr) > 0 {
		return arr, nil
	}

	var m map[string]string
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	if len(m) == 0 {
		return nil, fmt.Errorf("labels.json is empty")
	}

	out := make([]string, len(m))
	for k, v := range m {
		idx, convErr := strconv.Atoi(k)
		if convErr != nil {
			return nil, fmt.Errorf("invalid label index %q: %w", k, convErr)
		}
		if idx < 0 || idx >= len(m) {
			return nil, fmt.Errorf("label index %d out of range", idx)
		}
		out[idx] = v
	}
	return out, nil
}

func softmax(logits []float32) []float64 {
	if len(logits) == 0 {
		return nil
	}
	max := logits[0]
	for _, l := range logits[1:] {
		if l > max {
			max = l
		}
	}
	sum := 0.0
	out := make([]float64, len(logits))
	for i, l := range logits {
		out[i] = math.Exp(float64(l - max))
		sum += out[i]
	}
	for i := range out {
		out[i] /= sum
	}
	return out
}
