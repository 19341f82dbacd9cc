package config

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration that unmarshals from YAML strings like
// "1.5s" as well as plain integers (interpreted as milliseconds).
type Duration time.Duration

func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var asString string
	if err := node.Decode(&asString); err == nil {
		parsed, err := time.ParseDuration(asString)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", asString, err)
		}
		*d = Duration(parsed)
		return nil
	}

	var asMillis int64
	if err := node.Decode(&asMillis); err != nil {
		return fmt.Errorf("invalid duration value: %w", err)
	}
	*d = Duration(time.Duration(asMillis) * time.Millisecond)
	return nil
}

type Config struct {
	Backend  BackendConfig  `yaml:"backend"`
	Log      LogConfig      `yaml:"log"`
	Push     PushConfig     `yaml:"push"`
	Speech   SpeechConfig   `yaml:"speech"`
	Announce AnnounceConfig `yaml:"announce"`
	Device   DeviceConfig   `yaml:"device"`
	Storage  StorageConfig  `yaml:"storage"`
}

// BackendConfig describes the analysis backend endpoint.
type BackendConfig struct {
	BaseURL         string   `yaml:"base_url"`
	RequestTimeout  Duration `yaml:"request_timeout"`
	ReplyTimeout    Duration `yaml:"reply_timeout"`
	AppName         string   `yaml:"app_name"`
	DefaultQuestion string   `yaml:"default_question"`
}

type LogConfig struct {
	Level string `yaml:"log_level"`
	Dir   string `yaml:"log_dir"`
	File  string `yaml:"log_file"`
}

// PushConfig configures the local webhook bridge that stands in for the
// platform push transport during development and testing.
type PushConfig struct {
	Enabled bool   `yaml:"enabled"`
	IP      string `yaml:"ip"`
	Port    int    `yaml:"port"`
}

type SpeechConfig struct {
	WSURL          string   `yaml:"ws_url"`
	Language       string   `yaml:"language"`
	SampleRate     int      `yaml:"sample_rate"`
	SilenceTimeout Duration `yaml:"silence_timeout"`
}

type AnnounceConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Voice     string `yaml:"voice"`
	OutputDir string `yaml:"output_dir"`
	KeepFiles bool   `yaml:"keep_files"`
}

type DeviceConfig struct {
	Platform string   `yaml:"platform"`
	Token    string   `yaml:"token"`
	Tags     []string `yaml:"tags"`
}

type StorageConfig struct {
	DSN string `yaml:"dsn"`
}
