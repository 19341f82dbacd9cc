package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const defaultPath = "config.yaml"

// Loader reads configuration from a YAML file, layered over Defaults,
// with a handful of environment overrides on top.
type Loader struct {
	path      string
	useDotEnv bool
}

func NewLoader() *Loader {
	return &Loader{
		path:      defaultPath,
		useDotEnv: true,
	}
}

// WithPath overrides the configuration file location.
func (l *Loader) WithPath(path string) *Loader {
	if path != "" {
		l.path = path
	}
	return l
}

// WithDotEnv toggles loading variables from a .env file before reading config.
func (l *Loader) WithDotEnv(enabled bool) *Loader {
	l.useDotEnv = enabled
	return l
}

// Result captures the loaded configuration and its origin path.
type Result struct {
	Config *Config
	Path   string
}

// Load builds the effective configuration. A missing file is not an
// error: defaults plus environment overrides still apply.
func (l *Loader) Load() (*Result, error) {
	if l.useDotEnv {
		_ = godotenv.Load()
	}

	cfg := Defaults()

	path := l.path
	if env := os.Getenv("FEELINK_CONFIG"); env != "" {
		path = env
	}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	case os.IsNotExist(err):
		path = ""
	default:
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	applyEnvOverrides(cfg)

	if cfg.Backend.BaseURL == "" {
		return nil, fmt.Errorf("backend base_url is required (set backend.base_url or FEELINK_BASE_URL)")
	}

	return &Result{Config: cfg, Path: path}, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("FEELINK_BASE_URL"); v != "" {
		cfg.Backend.BaseURL = v
	}
	if v := os.Getenv("FEELINK_DEVICE_TOKEN"); v != "" {
		cfg.Device.Token = v
	}
	if v := os.Getenv("FEELINK_ASR_WS_URL"); v != "" {
		cfg.Speech.WSURL = v
	}
	if v := os.Getenv("FEELINK_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
}
