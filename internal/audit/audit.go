package audit

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Entry records one analyze request. The input text itself is never
// logged, only its size and the aggregate outcome.
type Entry struct {
	Timestamp  string         `json:"timestamp"`
	TextBytes  int            `json:"text_bytes"`
	Entities   int            `json:"entities"`
	ByLabel    map[string]int `json:"by_label,omitempty"`
	TokenizeMs float64        `json:"tokenize_ms,omitempty"`
	InferMs    float64        `json:"infer_ms,omitempty"`
	TotalMs    float64        `json:"total_ms,omitempty"`
	Status     string         `json:"status"` // ok | error | unavailable
	Error      string         `json:"error,omitempty"`
}

type Logger interface {
	Log(entry Entry) error
}

// JSONLLogger appends one JSON object per line. Safe for concurrent use.
type JSONLLogger struct {
	path string
	mu   sync.Mutex
}

func NewJSONLLogger(path string) (*JSONLLogger, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("create request log: %w", err)
	}
	_ = f.Close()
	return &JSONLLogger{path: path}, nil
}

func (l *JSONLLogger) Log(entry Entry) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry.Timestamp = time.Now().UTC().Format(time.RFC3339Nano)

	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open request log: %w", err)
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	if err := enc.Encode(entry); err != nil {
		return fmt.Errorf("write request log: %w", err)
	}
	return nil
}

// NopLogger discards entries, for tests and the one-shot CLI path.
type NopLogger struct{}

func (NopLogger) Log(Entry) error { return nil }
