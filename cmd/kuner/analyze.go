package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"kuner/internal/models"
	"kuner/internal/ner"
)

func analyzeCommand(args []string) error {
	fs := flag.NewFlagSet("analyze", flag.ExitOnError)
	modelDir := fs.String("model-dir", "", "model bundle directory (defaults to the installed demo model)")
	minScore := fs.Float64("min-score", 0, "confidence cutoff, overrides config")
	asJSON := fs.Bool("json", false, "emit entities as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}

	text := strings.Join(fs.Args(), " ")
	if strings.TrimSpace(text) == "" {
		// no argument: read from stdin so `echo ... | kuner analyze` works
		raw, err := io.ReadAll(os.Stdin)
		if err != nil {
			return err
		}
		text = string(raw)
	}
	if strings.TrimSpace(text) == "" {
		return fmt.Errorf("no text to analyze")
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	dir := cfg.Model.Dir
	if *modelDir != "" {
		dir = *modelDir
	}
	if dir == "" {
		root, err := models.DefaultModelsRoot()
		if err != nil {
			return err
		}
		dir = models.ModelInstallPath(root, cfg.Model.Name)
	}
	score := cfg.Model.MinScore
	if *minScore > 0 {
		score = *minScore
	}

	pipeline := ner.NewPipeline(ner.Config{
		ModelDir: dir,
		MaxBytes: cfg.Model.MaxBytes,
		MinScore: score,
		SeqLen:   cfg.Model.SeqLen,
	})
	defer pipeline.Close()

	entities, err := pipeline.Recognize(context.Background(), text)
	if err != nil {
		return err
	}

	if *asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if entities == nil {
			entities = []ner.Entity{}
		}
		return enc.Encode(entities)
	}

	if len(entities) == 0 {
		fmt.Println("No high-confidence entities detected.")
		return nil
	}
	for _, e := range entities {
		fmt.Printf("• %s → %s (score: %.2f)\n", e.Text, e.Label, e.Score)
	}
	return nil
}
