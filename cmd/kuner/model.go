package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"kuner/internal/models"
)

func modelCommand(args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: kuner model [list|download|info|remove|verify]")
	}
	registry, err := models.LoadEmbeddedRegistry()
	if err != nil {
		return err
	}
	root, err := models.DefaultModelsRoot()
	if err != nil {
		return err
	}
	sub := args[0]
	subArgs := args[1:]
	switch sub {
	case "list":
		return modelList(registry, root)
	case "info":
		return modelInfo(registry, root, nameArg(subArgs))
	case "download":
		return modelDownload(registry, root, nameArg(subArgs))
	case "remove":
		return modelRemove(registry, root, nameArg(subArgs))
	case "verify":
		return modelVerify(registry, root, nameArg(subArgs))
	default:
		return fmt.Errorf("unknown model subcommand %q", sub)
	}
}

// nameArg defaults to the demo model so `kuner model download` just works.
func nameArg(args []string) string {
	if len(args) > 0 {
		return args[0]
	}
	return models.DefaultModelName
}

func modelList(registry models.Registry, root string) error {
	fmt.Println("Available Models")
	fmt.Println(strings.Repeat("-", 80))
	fmt.Printf("%-14s %-6s %-8s %-14s %-20s\n", "NAME", "LANG", "SIZE", "STATUS", "TYPES")
	fmt.Println(strings.Repeat("-", 80))
	for _, m := range registry.Models {
		status := "not installed"
		if models.IsInstalled(root, m) {
			status = "installed"
		}
		fmt.Printf("%-14s %-6s %-8s %-14s %-20s\n", m.Name, m.Language, humanBytes(m.SizeBytes), status, strings.Join(m.EntityTypes, ", "))
	}
	fmt.Println(strings.Repeat("-", 80))
	fmt.Println("\nTip: Use 'kuner model download' to install the demo model")
	return nil
}

func modelInfo(registry models.Registry, root, name string) error {
	m, ok := registry.Find(name)
	if !ok {
		return fmt.Errorf("model %q not found", name)
	}
	status := "Not installed"
	if models.IsInstalled(root, m) {
		status = "Installed"
	}
	fmt.Printf("Model: %s\n", m.Name)
	fmt.Println(strings.Repeat("-", 40))
	fmt.Printf("Status:         %s\n", status)
	fmt.Printf("Display name:   %s\n", m.DisplayName)
	fmt.Printf("Version:        %s\n", m.Version)
	fmt.Printf("Language:       %s\n", m.Language)
	fmt.Printf("Architecture:   %s\n", m.Architecture)
	fmt.Printf("Entity types:   %s\n", strings.Join(m.EntityTypes, ", "))
	fmt.Printf("Size:           %s\n", humanBytes(m.SizeBytes))
	fmt.Printf("F1 score:       %.2f (%s)\n", m.Accuracy.F1Score, m.Accuracy.Benchmark)
	fmt.Printf("License:        %s\n", m.License)
	fmt.Printf("Location:       %s\n", models.ModelInstallPath(root, m.Name))
	if m.Description != "" {
		fmt.Printf("\n%s\n", m.Description)
	}
	return nil
}

func modelDownload(registry models.Registry, root, name string) error {
	m, ok := registry.Find(name)
	if !ok {
		return fmt.Errorf("model %q not found", name)
	}
	if models.IsInstalled(root, m) {
		fmt.Printf("%s is already installed\n", m.Name)
		return nil
	}
	fmt.Printf("Downloading %s (%s)...\n", m.Name, humanBytes(m.SizeBytes))

	d := models.NewDownloader()
	lastLine := 0
	err := d.DownloadAndInstall(context.Background(), m, root, func(p models.Progress) {
		line := fmt.Sprintf("\r%s / %s  %.1f MB/s  ETA %s",
			humanBytes(p.Downloaded), humanBytes(p.Total), p.SpeedMBps, p.ETA.Round(time.Second))
		fmt.Print(line + strings.Repeat(" ", max(0, lastLine-len(line))))
		lastLine = len(line)
	})
	fmt.Println()
	if err != nil {
		return err
	}
	fmt.Printf("Installed %s to %s\n", m.Name, models.ModelInstallPath(root, m.Name))
	return nil
}

func modelRemove(registry models.Registry, root, name string) error {
	m, ok := registry.Find(name)
	if !ok {
		return fmt.Errorf("model %q not found", name)
	}
	path := models.ModelInstallPath(root, m.Name)
	if !models.IsInstalled(root, m) {
		fmt.Printf("%s is not installed\n", m.Name)
		return nil
	}
	fmt.Printf("Remove %s? [y/N] ", path)
	reader := bufio.NewReader(os.Stdin)
	answer, _ := reader.ReadString('\n')
	if strings.ToLower(strings.TrimSpace(answer)) != "y" {
		fmt.Println("Aborted")
		return nil
	}
	return os.RemoveAll(path)
}

func modelVerify(registry models.Registry, root, name string) error {
	m, ok := registry.Find(name)
	if !ok {
		return fmt.Errorf("model %q not found", name)
	}
	if !models.IsInstalled(root, m) {
		return fmt.Errorf("%s is not installed", m.Name)
	}
	marker, err := os.ReadFile(filepath.Join(models.ModelInstallPath(root, m.Name), ".checksum"))
	if err != nil {
		return fmt.Errorf("read checksum marker: %w", err)
	}
	if strings.TrimSpace(string(marker)) != m.Checksum {
		return fmt.Errorf("checksum marker does not match registry: bundle may be stale, re-download with 'kuner model download'")
	}
	fmt.Printf("%s OK\n", m.Name)
	return nil
}

func humanBytes(n int64) string {
	switch {
	case n >= 1<<30:
		return fmt.Sprintf("%.1fGB", float64(n)/(1<<30))
	case n >= 1<<20:
		return fmt.Sprintf("%.0fMB", float64(n)/(1<<20))
	case n >= 1<<10:
		return fmt.Sprintf("%.0fKB", float64(n)/(1<<10))
	default:
		return fmt.Sprintf("%dB", n)
	}
}
