package models

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

//go:embed registry.json
var embeddedRegistry []byte

// Registry lists the model bundles this build knows how to install.
type Registry struct {
	Version string      `json:"version"`
	Models  []ModelSpec `json:"models"`
}

type Accuracy struct {
	F1Score   float64 `json:"f1_score"`
	Benchmark string  `json:"benchmark"`
}

type ModelSpec struct {
	Name         string   `json:"name"`
	DisplayName  string   `json:"display_name"`
	Version      string   `json:"version"`
	Language     string   `json:"language"`
	URL          string   `json:"url"`
	Checksum     string   `json:"checksum"`
	SizeBytes    int64    `json:"size_bytes"`
	EntityTypes  []string `json:"entity_types"`
	Description  string   `json:"description"`
	Architecture string   `json:"architecture"`
	Accuracy     Accuracy `json:"accuracy"`
	License      string   `json:"license"`
}

// DefaultModelName is the bundle the demo loads unless configured otherwise.
const DefaultModelName = "ku-ner-xlmr"

// bundleFiles are required in every installed model directory.
var bundleFiles = []string{"model.onnx", "labels.json", "tokenizer.json"}

func LoadEmbeddedRegistry() (Registry, error) {
	return parseRegistry(embeddedRegistry)
}

func parseRegistry(data []byte) (Registry, error) {
	var reg Registry
	if err := json.Unmarshal(data, &reg); err != nil {
		return Registry{}, fmt.Errorf("parse model registry: %w", err)
	}
	sort.Slice(reg.Models, func(i, j int) bool { return reg.Models[i].Name < reg.Models[j].Name })
	return reg, nil
}

func (r Registry) Find(name string) (ModelSpec, bool) {
	for _, m := range r.Models {
		if m.Name == name {
			return m, true
		}
	}
	return ModelSpec{}, false
}

func DefaultModelsRoot() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".kuner", "models"), nil
}

func ModelInstallPath(root string, name string) string {
	return filepath.Join(root, name)
}

func IsInstalled(root string, model ModelSpec) bool {
	return BundleComplete(ModelInstallPath(root, model.Name))
}

// BundleComplete reports whether dir holds every required bundle file.
func BundleComplete(dir string) bool {
	for _, f := range bundleFiles {
		if _, err := os.Stat(filepath.Join(dir, f)); err != nil {
			return false
		}
	}
	return true
}
