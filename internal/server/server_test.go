package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"kuner/internal/audit"
	"kuner/internal/config"
	"kuner/internal/models"
	"kuner/internal/ner"
)

type fakeAnalyzer struct {
	entities []ner.Entity
	err      error
}

func (f *fakeAnalyzer) RecognizeTimed(ctx context.Context, text string) ([]ner.Entity, ner.Timing, error) {
	return f.entities, ner.Timing{Tokenize: time.Millisecond, Infer: 5 * time.Millisecond, Total: 6 * time.Millisecond}, f.err
}

func newTestServer(t *testing.T, analyzer Analyzer) *Server {
	t.Helper()
	cfg := &config.Config{
		Server:  config.ServerConfig{Addr: ":0"},
		Model:   config.ModelConfig{Name: "ku-ner-xlmr", SeqLen: 256, MaxBytes: 32 * 1024, MinScore: 0.85},
		Logging: config.LoggingConfig{RequestLog: filepath.Join(t.TempDir(), "requests.log")},
	}
	reg, err := models.LoadEmbeddedRegistry()
	if err != nil {
		t.Fatal(err)
	}
	logger, err := audit.NewJSONLLogger(cfg.Logging.RequestLog)
	if err != nil {
		t.Fatal(err)
	}
	s, err := New(Options{
		Config:      cfg,
		Registry:    reg,
		ModelsRoot:  t.TempDir(),
		Logger:      logger,
		NewAnalyzer: func() Analyzer { return analyzer },
	})
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func doJSON(t *testing.T, s *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)
	return w
}

func TestAnalyze_HappyPath(t *testing.T) {
	text := "Hejar li Hewlêr dijî."
	s := newTestServer(t, &fakeAnalyzer{entities: []ner.Entity{
		{Text: "Hejar", Label: "PER", Score: 0.97, Start: 0, End: 5},
		{Text: "Hewlêr", Label: "LOC", Score: 0.93, Start: 9, End: 16},
	}})

	w := doJSON(t, s, http.MethodPost, "/api/analyze", analyzeRequest{Text: text})
	if w.Code != http.StatusOK {
		t.Fatalf("status %d: %s", w.Code, w.Body.String())
	}
	var resp analyzeResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Entities) != 2 {
		t.Fatalf("entities %+v", resp.Entities)
	}
	if !strings.Contains(resp.HTML, `<mark class="ent ent-per"`) || !strings.Contains(resp.HTML, "Hejar") {
		t.Fatalf("highlight markup missing: %s", resp.HTML)
	}
	if resp.InferMs <= 0 || resp.TotalMs <= 0 {
		t.Fatalf("timings %+v", resp)
	}
}

func TestAnalyze_LogsRequest(t *testing.T) {
	s := newTestServer(t, &fakeAnalyzer{entities: []ner.Entity{
		{Text: "Hejar", Label: "PER", Score: 0.97, Start: 0, End: 5},
	}})
	doJSON(t, s, http.MethodPost, "/api/analyze", analyzeRequest{Text: "Hejar"})

	entries, err := audit.ParseFile(s.opts.Config.Logging.RequestLog)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Status != "ok" || entries[0].ByLabel["PER"] != 1 {
		t.Fatalf("log entries %+v", entries)
	}
}

func TestAnalyze_EmptyText(t *testing.T) {
	s := newTestServer(t, &fakeAnalyzer{})
	w := doJSON(t, s, http.MethodPost, "/api/analyze", analyzeRequest{Text: "   "})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status %d", w.Code)
	}
}

func TestAnalyze_BadBody(t *testing.T) {
	s := newTestServer(t, &fakeAnalyzer{})
	req := httptest.NewRequest(http.MethodPost, "/api/analyze", strings.NewReader("{"))
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status %d", w.Code)
	}
}

func TestAnalyze_ModelUnavailable(t *testing.T) {
	s := newTestServer(t, &fakeAnalyzer{err: ner.ErrModelUnavailable})
	w := doJSON(t, s, http.MethodPost, "/api/analyze", analyzeRequest{Text: "Hejar"})
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("status %d: %s", w.Code, w.Body.String())
	}

	entries, err := audit.ParseFile(s.opts.Config.Logging.RequestLog)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Status != "unavailable" {
		t.Fatalf("log entries %+v", entries)
	}
}

func TestAnalyze_NoEntities(t *testing.T) {
	s := newTestServer(t, &fakeAnalyzer{})
	w := doJSON(t, s, http.MethodPost, "/api/analyze", analyzeRequest{Text: "tu"})
	if w.Code != http.StatusOK {
		t.Fatalf("status %d", w.Code)
	}
	var resp analyzeResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Entities == nil || len(resp.Entities) != 0 {
		t.Fatalf("expected empty entity list, got %+v", resp.Entities)
	}
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, &fakeAnalyzer{})
	w := doJSON(t, s, http.MethodGet, "/api/health", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status %d", w.Code)
	}
	var resp map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp["status"] != "ok" {
		t.Fatalf("health %+v", resp)
	}
	if resp["installed"] != false {
		t.Fatal("model should not be installed in a fresh temp root")
	}
}

func TestModel_Status(t *testing.T) {
	s := newTestServer(t, &fakeAnalyzer{})
	w := doJSON(t, s, http.MethodGet, "/api/model", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status %d", w.Code)
	}
	var resp map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp["installed"] != false {
		t.Fatalf("model status %+v", resp)
	}
	model, ok := resp["model"].(map[string]any)
	if !ok || model["name"] != "ku-ner-xlmr" {
		t.Fatalf("model spec %+v", resp["model"])
	}
}

func TestModelDownload_AlreadyInstalled(t *testing.T) {
	s := newTestServer(t, &fakeAnalyzer{})
	dir := models.ModelInstallPath(s.opts.ModelsRoot, "ku-ner-xlmr")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	for _, f := range []string{"model.onnx", "labels.json", "tokenizer.json"} {
		if err := os.WriteFile(filepath.Join(dir, f), []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	w := doJSON(t, s, http.MethodPost, "/api/model/download", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status %d: %s", w.Code, w.Body.String())
	}
}

func TestStats(t *testing.T) {
	s := newTestServer(t, &fakeAnalyzer{entities: []ner.Entity{
		{Text: "Hejar", Label: "PER", Score: 0.97, Start: 0, End: 5},
	}})
	doJSON(t, s, http.MethodPost, "/api/analyze", analyzeRequest{Text: "Hejar"})

	w := doJSON(t, s, http.MethodGet, "/api/stats", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status %d", w.Code)
	}
	var resp map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	reqs, ok := resp["requests"].(map[string]any)
	if !ok || reqs["total"] != float64(1) {
		t.Fatalf("stats %+v", resp)
	}
}

func TestIndexPage(t *testing.T) {
	s := newTestServer(t, &fakeAnalyzer{})
	w := doJSON(t, s, http.MethodGet, "/", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status %d", w.Code)
	}
	body := w.Body.String()
	if !strings.Contains(body, "Kurdish NER") || !strings.Contains(body, "Navê min Hejar e") {
		t.Fatalf("unexpected page: %.200s", body)
	}
}
