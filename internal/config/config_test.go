package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Addr != ":8080" {
		t.Fatalf("addr %q", cfg.Server.Addr)
	}
	if cfg.Model.Name != "ku-ner-xlmr" || cfg.Model.MinScore != 0.85 || cfg.Model.SeqLen != 256 {
		t.Fatalf("model defaults %+v", cfg.Model)
	}
	if !strings.HasSuffix(cfg.Logging.RequestLog, "requests.log") || strings.HasPrefix(cfg.Logging.RequestLog, "~") {
		t.Fatalf("request log not expanded: %q", cfg.Logging.RequestLog)
	}
}

func TestLoad_FileAndDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := "server:\n  addr: \":9999\"\nmodel:\n  min_score: 0.5\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Addr != ":9999" {
		t.Fatalf("addr %q", cfg.Server.Addr)
	}
	if cfg.Model.MinScore != 0.5 {
		t.Fatalf("min_score %v", cfg.Model.MinScore)
	}
	// untouched fields fall back to defaults
	if cfg.Model.SeqLen != 256 {
		t.Fatalf("seq_len %d", cfg.Model.SeqLen)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("KUNER_ADDR", ":7070")
	t.Setenv("KUNER_MIN_SCORE", "0.9")
	t.Setenv("KUNER_MODEL_DIR", "/tmp/bundle")
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Addr != ":7070" || cfg.Model.MinScore != 0.9 || cfg.Model.Dir != "/tmp/bundle" {
		t.Fatalf("env overrides not applied: %+v", cfg)
	}
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
		ok     bool
	}{
		{"defaults", func(c *Config) {}, true},
		{"bad min_score", func(c *Config) { c.Model.MinScore = 1.5 }, false},
		{"negative seq_len", func(c *Config) { c.Model.SeqLen = -1 }, false},
		{"bad protocol", func(c *Config) { c.Telemetry.Protocol = "udp" }, false},
		{"http protocol", func(c *Config) { c.Telemetry.Protocol = "http" }, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := defaultConfig()
			applyDefaults(cfg)
			tc.mutate(cfg)
			err := cfg.Validate()
			if tc.ok && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !tc.ok && err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("server: [bad"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected parse error")
	}
}
