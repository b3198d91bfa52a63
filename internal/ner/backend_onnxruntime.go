//go:build onnxruntime

package ner

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

func createSession(modelDir string, seqLen, numLabels int) (inferSession, error) {
	backend := strings.ToLower(strings.TrimSpace(os.Getenv("KUNER_ONNX_BACKEND")))
	if backend == "python" {
		return newPythonSession(modelDir), nil
	}
	return newNativeSession(modelDir, seqLen, numLabels)
}

// nativeSession drives onnxruntime through its shared library with
// fixed-shape tensors allocated once. The runtime session is not
// thread-safe with shared tensors, so Run holds a mutex; the demo serves
// one inference at a time anyway.
type nativeSession struct {
	session       *ort.AdvancedSession
	inputIDs      *ort.Tensor[int64]
	attentionMask *ort.Tensor[int64]
	output        *ort.Tensor[float32]
	seqLen        int
	numLabels     int

	mu sync.Mutex
}

func newNativeSession(modelDir string, seqLen, numLabels int) (*nativeSession, error) {
	libPath := resolveSharedLibraryPath(modelDir)
	if libPath == "" {
		return nil, fmt.Errorf("onnxruntime shared library not found; set ONNXRUNTIME_SHARED_LIBRARY_PATH or install the runtime")
	}
	ort.SetSharedLibraryPath(libPath)
	if !ort.IsInitialized() {
		if err := ort.InitializeEnvironment(); err != nil {
			return nil, fmt.Errorf("initialize onnxruntime: %w", err)
		}
	}

	modelPath := filepath.Join(modelDir, "model.onnx")
	inputShape := ort.NewShape(1, int64(seqLen))
	inputIDs, err := ort.NewEmptyTensor[int64](inputShape)
	if err != nil {
		return nil, fmt.Errorf("allocate input_ids tensor: %w", err)
	}
	attnMask, err := ort.NewEmptyTensor[int64](inputShape)
	if err != nil {
		return nil, fmt.Errorf("allocate attention_mask tensor: %w", err)
	}
	output, err := ort.NewEmptyTensor[float32](ort.NewShape(1, int64(seqLen), int64(numLabels)))
	if err != nil {
		return nil, fmt.Errorf("allocate logits tensor: %w", err)
	}

	session, err := ort.NewAdvancedSession(
		modelPath,
		[]string{"input_ids", "attention_mask"},
		[]string{"logits"},
		[]ort.Value{inputIDs, attnMask},
		[]ort.Value{output},
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("create onnx session: %w", err)
	}

	return &nativeSession{
		session:       session,
		inputIDs:      inputIDs,
		attentionMask: attnMask,
		output:        output,
		seqLen:        seqLen,
		numLabels:     numLabels,
	}, nil
}

func (s *nativeSession) Run(ctx context.Context, inputIDs, attentionMask []int64) ([][]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(inputIDs) > s.seqLen {
		inputIDs = inputIDs[:s.seqLen]
		attentionMask = attentionMask[:s.seqLen]
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ids := s.inputIDs.GetData()
	mask := s.attentionMask.GetData()
	for i := range ids {
		ids[i] = 0
		mask[i] = 0
	}
	copy(ids, inputIDs)
	copy(mask, attentionMask)

	if err := s.session.Run(); err != nil {
		return nil, fmt.Errorf("onnx run: %w", err)
	}

	raw := s.output.GetData()
	logits := make([][]float32, len(inputIDs))
	for i := range logits {
		row := make([]float32, s.numLabels)
		copy(row, raw[i*s.numLabels:(i+1)*s.numLabels])
		logits[i] = row
	}
	return logits, nil
}

func (s *nativeSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session != nil {
		s.session.Destroy()
		s.session = nil
	}
	return nil
}

// resolveSharedLibraryPath locates a platform onnxruntime shared library.
// ONNXRUNTIME_SHARED_LIBRARY_PATH wins; otherwise probe common locations,
// including the model directory itself.
func resolveSharedLibraryPath(modelDir string) string {
	if env := strings.TrimSpace(os.Getenv("ONNXRUNTIME_SHARED_LIBRARY_PATH")); env != "" {
		return env
	}

	names := []string{
		"libonnxruntime.dylib",
		"onnxruntime.dylib",
		"libonnxruntime.so",
		"onnxruntime.so",
		"onnxruntime.dll",
	}
	dirs := []string{
		modelDir,
		filepath.Join(modelDir, "lib"),
		".",
		"/opt/homebrew/lib",
		"/usr/local/lib",
		"/usr/lib",
	}

	for _, dir := range dirs {
		for _, name := range names {
			candidate := filepath.Join(dir, name)
			if _, err := os.Stat(candidate); err == nil {
				return candidate
			}
		}
	}
	return ""
}
