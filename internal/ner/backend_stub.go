//go:build !onnxruntime

package ner

import (
	"fmt"
	"os"
	"strings"
)

func createSession(modelDir string, seqLen, numLabels int) (inferSession, error) {
	backend := strings.ToLower(strings.TrimSpace(os.Getenv("KUNER_ONNX_BACKEND")))
	if backend == "native" {
		return nil, fmt.Errorf("native ONNX backend requires build tag 'onnxruntime'")
	}
	return newPythonSession(modelDir), nil
}
