package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds kuner configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Model     ModelConfig     `yaml:"model"`
	Logging   LoggingConfig   `yaml:"logging"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

type ServerConfig struct {
	Addr string `yaml:"addr"` // HTTP listen address, e.g. ":8080"
}

type ModelConfig struct {
	Name     string  `yaml:"name"`      // registry name, default ku-ner-xlmr
	Dir      string  `yaml:"dir"`       // explicit bundle dir; overrides Name lookup
	SeqLen   int     `yaml:"seq_len"`   // tokenizer/session sequence length
	MaxBytes int     `yaml:"max_bytes"` // inputs above this are skipped
	MinScore float64 `yaml:"min_score"` // confidence cutoff for displayed spans
}

type LoggingConfig struct {
	RequestLog string `yaml:"request_log"`
}

type TelemetryConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Endpoint string `yaml:"endpoint"`
	Protocol string `yaml:"protocol"` // grpc | http
}

func ConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".kuner", "config.yaml"), nil
}

// Load reads configuration from a YAML file, then applies environment
// overrides (a .env file is honored when present). A missing file yields
// the default config and no error.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := defaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	} else if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	applyDefaults(cfg)
	applyEnv(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{Addr: ":8080"},
		Model: ModelConfig{
			Name:     "ku-ner-xlmr",
			SeqLen:   256,
			MaxBytes: 32 * 1024,
			MinScore: 0.85,
		},
		Logging:   LoggingConfig{RequestLog: "~/.kuner/requests.log"},
		Telemetry: TelemetryConfig{Protocol: "grpc"},
	}
}

func applyDefaults(cfg *Config) {
	def := defaultConfig()
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = def.Server.Addr
	}
	if cfg.Model.Name == "" {
		cfg.Model.Name = def.Model.Name
	}
	if cfg.Model.SeqLen == 0 {
		cfg.Model.SeqLen = def.Model.SeqLen
	}
	if cfg.Model.MaxBytes == 0 {
		cfg.Model.MaxBytes = def.Model.MaxBytes
	}
	if cfg.Model.MinScore == 0 {
		cfg.Model.MinScore = def.Model.MinScore
	}
	if cfg.Logging.RequestLog == "" {
		cfg.Logging.RequestLog = def.Logging.RequestLog
	}
	if cfg.Telemetry.Protocol == "" {
		cfg.Telemetry.Protocol = def.Telemetry.Protocol
	}
	cfg.Logging.RequestLog = expandHome(cfg.Logging.RequestLog)
	cfg.Model.Dir = expandHome(cfg.Model.Dir)
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("KUNER_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
	if v := os.Getenv("KUNER_MODEL"); v != "" {
		cfg.Model.Name = v
	}
	if v := os.Getenv("KUNER_MODEL_DIR"); v != "" {
		cfg.Model.Dir = expandHome(v)
	}
	if v := os.Getenv("KUNER_MIN_SCORE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Model.MinScore = f
		}
	}
	if v := os.Getenv("KUNER_REQUEST_LOG"); v != "" {
		cfg.Logging.RequestLog = expandHome(v)
	}
	if v := os.Getenv("KUNER_OTLP_ENDPOINT"); v != "" {
		cfg.Telemetry.Enabled = true
		cfg.Telemetry.Endpoint = v
	}
}

func (c *Config) Validate() error {
	if c.Model.MinScore < 0 || c.Model.MinScore > 1 {
		return fmt.Errorf("model.min_score %v outside [0,1]", c.Model.MinScore)
	}
	if c.Model.SeqLen <= 0 {
		return fmt.Errorf("model.seq_len must be positive, got %d", c.Model.SeqLen)
	}
	if c.Model.MaxBytes <= 0 {
		return fmt.Errorf("model.max_bytes must be positive, got %d", c.Model.MaxBytes)
	}
	switch strings.ToLower(c.Telemetry.Protocol) {
	case "", "grpc", "http":
	default:
		return fmt.Errorf("telemetry.protocol must be grpc or http, got %q", c.Telemetry.Protocol)
	}
	return nil
}

func EnsureConfigDir(path string) error {
	return os.MkdirAll(filepath.Dir(path), 0o755)
}

func expandHome(p string) string {
	if !strings.HasPrefix(p, "~/") {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	return filepath.Join(home, p[2:])
}
