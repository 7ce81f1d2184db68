package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func validConfig() Config {
	return Config{
		Wake: WakeConfig{
			Phrases:          []string{"hey assistant", "小红"},
			FinalThreshold:   0.80,
			PartialThreshold: 0.72,
			NearMissSlack:    0.06,
			ConsecutiveHits:  2,
			NearMissHits:     3,
			RefractoryMs:     1500,
			BufferLimitRunes: 48,
			LoudnessRelax:    0.05,
			LoudnessWindowMs: 1000,
		},
		AutoReset: AutoResetConfig{
			Enabled:      true,
			ResetDelayMs: 8000,
		},
		AutoStop: AutoStopConfig{
			Enabled:           true,
			SilenceTimeoutMs:  2000,
			NoSpeechTimeoutMs: 5000,
			MaxDurationMs:     60000,
		},
		Audio: AudioConfig{
			SampleRate:     16000,
			Channels:       1,
			BitDepth:       16,
			FrameSamples:   640,
			PaceIntervalMs: 40,
			MaxQueue:       256,
			EndOfStream:    "EOS",
		},
		Loudness: LoudnessConfig{
			Threshold: 0.02,
			Smoothing: 0.3,
		},
		Transport: TransportConfig{
			URL:            "wss://asr.example.com/stream",
			APIKey:         "test-key",
			DialTimeoutMs:  10000,
			WriteTimeoutMs: 5000,
		},
		Health: HealthConfig{
			CheckIntervalMs: 30000,
		},
		HTTP: HTTPConfig{
			Port:    8080,
			Address: "0.0.0.0",
			Enabled: true,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(*Config)
		errorMsg string
	}{
		{
			name:   "valid configuration",
			mutate: func(c *Config) {},
		},
		{
			name:     "no wake phrases",
			mutate:   func(c *Config) { c.Wake.Phrases = nil },
			errorMsg: "at least one wake phrase",
		},
		{
			name:     "partial threshold above final",
			mutate:   func(c *Config) { c.Wake.PartialThreshold = 0.9 },
			errorMsg: "partial_threshold",
		},
		{
			name:     "near-miss hits below consecutive hits",
			mutate:   func(c *Config) { c.Wake.NearMissHits = 1 },
			errorMsg: "near_miss_hits",
		},
		{
			name:     "auto-reset enabled without delay",
			mutate:   func(c *Config) { c.AutoReset.ResetDelayMs = 0 },
			errorMsg: "reset_delay_ms",
		},
		{
			name:     "no-speech shorter than silence",
			mutate:   func(c *Config) { c.AutoStop.NoSpeechTimeoutMs = 1000 },
			errorMsg: "no_speech_timeout_ms",
		},
		{
			name:     "max duration shorter than no-speech",
			mutate:   func(c *Config) { c.AutoStop.MaxDurationMs = 1000 },
			errorMsg: "max_duration_ms",
		},
		{
			name:     "unsupported sample rate",
			mutate:   func(c *Config) { c.Audio.SampleRate = 44100 },
			errorMsg: "sample_rate",
		},
		{
			name:     "stereo rejected",
			mutate:   func(c *Config) { c.Audio.Channels = 2 },
			errorMsg: "channels must be 1",
		},
		{
			name:     "loudness threshold out of range",
			mutate:   func(c *Config) { c.Loudness.Threshold = 1.5 },
			errorMsg: "threshold must be between 0 and 1",
		},
		{
			name:     "missing transport url",
			mutate:   func(c *Config) { c.Transport.URL = "" },
			errorMsg: "url cannot be empty",
		},
		{
			name:     "invalid http port",
			mutate:   func(c *Config) { c.HTTP.Port = 70000 },
			errorMsg: "http port must be between 1 and 65535",
		},
		{
			name:     "invalid log level",
			mutate:   func(c *Config) { c.Logging.Level = "trace" },
			errorMsg: "level must be one of",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.errorMsg == "" {
				if err != nil {
					t.Errorf("Expected no error but got: %v", err)
				}
				return
			}
			if err == nil {
				t.Errorf("Expected error but got none")
			} else if !strings.Contains(err.Error(), tt.errorMsg) {
				t.Errorf("Expected error to contain '%s', got '%s'", tt.errorMsg, err.Error())
			}
		})
	}
}

func TestAutoStopDisabledSkipsTimeoutChecks(t *testing.T) {
	cfg := validConfig()
	cfg.AutoStop = AutoStopConfig{Enabled: false}
	if err := cfg.Validate(); err != nil {
		t.Errorf("disabled auto-stop rejected: %v", err)
	}
}

func TestConfigLoad(t *testing.T) {
	tempDir := t.TempDir()

	tests := []struct {
		name        string
		configYAML  string
		expectError bool
		errorMsg    string
	}{
		{
			name: "valid config file",
			configYAML: `
wake:
  phrases: ["hey assistant"]
  final_threshold: 0.80
  partial_threshold: 0.72
  near_miss_slack: 0.06
  consecutive_hits: 2
  near_miss_hits: 3
  refractory_ms: 1500
  buffer_limit_runes: 48
  loudness_relax: 0.05
  loudness_window_ms: 1000
auto_reset:
  enabled: true
  reset_delay_ms: 8000
auto_stop:
  enabled: true
  silence_timeout_ms: 2000
  no_speech_timeout_ms: 5000
  max_duration_ms: 60000
audio:
  sample_rate: 16000
  channels: 1
  bit_depth: 16
  frame_samples: 640
  pace_interval_ms: 40
  max_queue: 256
  end_of_stream: "EOS"
loudness:
  threshold: 0.02
  smoothing: 0.3
transport:
  url: "wss://asr.example.com/stream"
  api_key: "test-key"
  dial_timeout_ms: 10000
  write_timeout_ms: 5000
health:
  check_interval_ms: 30000
http:
  port: 8080
  address: "0.0.0.0"
  enabled: true
logging:
  level: "info"
  format: "json"
  output: "stdout"
`,
			expectError: false,
		},
		{
			name: "invalid YAML syntax",
			configYAML: `
wake:
  phrases: ["hey assistant"]
  consecutive_hits: not_a_number
`,
			expectError: true,
			errorMsg:    "failed to parse",
		},
		{
			name: "missing required fields",
			configYAML: `
wake:
  final_threshold: 0.8
`,
			expectError: true,
			errorMsg:    "at least one wake phrase",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			configPath := filepath.Join(tempDir, "config.yaml")
			if err := os.WriteFile(configPath, []byte(tt.configYAML), 0644); err != nil {
				t.Fatalf("Failed to create test config file: %v", err)
			}

			config, err := Load(configPath)

			if tt.expectError {
				if err == nil {
					t.Errorf("Expected error but got none")
				} else if tt.errorMsg != "" && !strings.Contains(err.Error(), tt.errorMsg) {
					t.Errorf("Expected error to contain '%s', got '%s'", tt.errorMsg, err.Error())
				}
			} else {
				if err != nil {
					t.Errorf("Expected no error but got: %v", err)
				} else if config == nil {
					t.Errorf("Expected config to be loaded but got nil")
				}
			}
		})
	}
}

func TestConfigLoadNonexistentFile(t *testing.T) {
	_, err := Load("nonexistent.yaml")
	if err == nil {
		t.Errorf("Expected error for nonexistent file but got none")
	}
	if !strings.Contains(err.Error(), "failed to read config file") {
		t.Errorf("Expected error about reading file, got: %v", err)
	}
}

func TestDurationHelpers(t *testing.T) {
	wake := WakeConfig{RefractoryMs: 1500, LoudnessWindowMs: 1000}
	if wake.GetRefractory() != 1500*time.Millisecond {
		t.Errorf("Expected 1.5 seconds, got %v", wake.GetRefractory())
	}
	if wake.GetLoudnessWindow() != time.Second {
		t.Errorf("Expected 1 second, got %v", wake.GetLoudnessWindow())
	}

	autoStop := AutoStopConfig{
		SilenceTimeoutMs:  2000,
		NoSpeechTimeoutMs: 5000,
		MaxDurationMs:     60000,
	}
	if autoStop.GetSilenceTimeout() != 2*time.Second {
		t.Errorf("Expected 2 seconds, got %v", autoStop.GetSilenceTimeout())
	}
	if autoStop.GetNoSpeechTimeout() != 5*time.Second {
		t.Errorf("Expected 5 seconds, got %v", autoStop.GetNoSpeechTimeout())
	}
	if autoStop.GetMaxDuration() != time.Minute {
		t.Errorf("Expected 1 minute, got %v", autoStop.GetMaxDuration())
	}

	audio := AudioConfig{PaceIntervalMs: 40}
	if audio.GetPaceInterval() != 40*time.Millisecond {
		t.Errorf("Expected 40ms, got %v", audio.GetPaceInterval())
	}

	transport := TransportConfig{DialTimeoutMs: 10000, WriteTimeoutMs: 5000}
	if transport.GetDialTimeout() != 10*time.Second {
		t.Errorf("Expected 10 seconds, got %v", transport.GetDialTimeout())
	}
	if transport.GetWriteTimeout() != 5*time.Second {
		t.Errorf("Expected 5 seconds, got %v", transport.GetWriteTimeout())
	}
}
