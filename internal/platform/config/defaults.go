package config

import "time"

// Defaults returns the configuration applied when a field is absent from
// the YAML file and the environment.
func Defaults() *Config {
	return &Config{
		Backend: BackendConfig{
			RequestTimeout:  Duration(15 * time.Second),
			ReplyTimeout:    Duration(10 * time.Second),
			AppName:         "FeelinkApp_screenshot",
			DefaultQuestion: "이 이미지에 대해 자세히 설명해줘",
		},
		Log: LogConfig{
			Level: "info",
			Dir:   "logs",
			File:  "feelink-client.log",
		},
		Push: PushConfig{
			Enabled: true,
			IP:      "127.0.0.1",
			Port:    8792,
		},
		Speech: SpeechConfig{
			Language:       "ko-KR",
			SampleRate:     16000,
			SilenceTimeout: Duration(1500 * time.Millisecond),
		},
		Announce: AnnounceConfig{
			Enabled:   true,
			Voice:     "ko-KR-SunHiNeural",
			OutputDir: "tmp/announce",
		},
		Device: DeviceConfig{
			Platform: "apns",
			Tags:     []string{"ios", "feelink_user", "screenshot_app"},
		},
		Storage: StorageConfig{
			DSN: "feelink-client.db",
		},
	}
}
