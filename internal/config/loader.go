package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	json "github.com/goccy/go-json"
	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"llamad/internal/llamaserver"
	"llamad/pkg/types"
)

// Config holds runtime parameters for the daemon.
// Zero values mean "unspecified" and are replaced by Default values.
type Config struct {
	// Addr is the diagnostics HTTP listen address.
	Addr string `json:"addr" yaml:"addr" toml:"addr"`
	// LlamaBin is the llama-server binary; empty means discover via PATH.
	LlamaBin string `json:"llama_bin" yaml:"llama_bin" toml:"llama_bin"`
	// Model is a GGUF path or a name under ModelsDir.
	Model     string `json:"model" yaml:"model" toml:"model"`
	ModelsDir string `json:"models_dir" yaml:"models_dir" toml:"models_dir"`
	// LogLevel is a zerolog level string (debug, info, warn, error).
	LogLevel string `json:"log_level" yaml:"log_level" toml:"log_level"`
	Verbose  bool   `json:"verbose" yaml:"verbose" toml:"verbose"`
	// StartupTimeoutSecs bounds waiting for the child's health check.
	StartupTimeoutSecs int `json:"startup_timeout_secs" yaml:"startup_timeout_secs" toml:"startup_timeout_secs"`

	Launch     llamaserver.LaunchConfig `json:"launch" yaml:"launch" toml:"launch"`
	Generation types.GenerationConfig   `json:"generation" yaml:"generation" toml:"generation"`
}

// Default returns the configuration used when no file is supplied.
func Default() Config {
	return Config{
		Addr:               ":8090",
		ModelsDir:          "~/models/llm",
		LogLevel:           "info",
		StartupTimeoutSecs: 120,
		Launch:             llamaserver.DefaultLaunchConfig(),
		Generation:         types.DefaultGenerationConfig(),
	}
}

// Load reads a configuration file based on its extension, applied on top of
// Default. Supports: .yaml/.yml, .json, .toml
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, fmt.Errorf("empty config path")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	case ".json":
		if err := json.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	case ".toml":
		if err := toml.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	default:
		return cfg, fmt.Errorf("unsupported config extension: %s", ext)
	}
	return cfg, nil
}
