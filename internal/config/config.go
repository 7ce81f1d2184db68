package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete engine configuration
type Config struct {
	Wake      WakeConfig      `yaml:"wake"`
	AutoReset AutoResetConfig `yaml:"auto_reset"`
	AutoStop  AutoStopConfig  `yaml:"auto_stop"`
	Audio     AudioConfig     `yaml:"audio"`
	Loudness  LoudnessConfig  `yaml:"loudness"`
	Transport TransportConfig `yaml:"transport"`
	Health    HealthConfig    `yaml:"health"`
	HTTP      HTTPConfig      `yaml:"http"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// WakeConfig contains wake phrase matching configuration
type WakeConfig struct {
	Phrases          []string `yaml:"phrases"`
	FinalThreshold   float64  `yaml:"final_threshold"`
	PartialThreshold float64  `yaml:"partial_threshold"`
	NearMissSlack    float64  `yaml:"near_miss_slack"`
	ConsecutiveHits  int      `yaml:"consecutive_hits"`
	NearMissHits     int      `yaml:"near_miss_hits"`
	RefractoryMs     int      `yaml:"refractory_ms"`
	BufferLimitRunes int      `yaml:"buffer_limit_runes"`
	LoudnessRelax    float64  `yaml:"loudness_relax"`
	LoudnessWindowMs int      `yaml:"loudness_window_ms"`
}

// AutoResetConfig contains matcher auto-reset configuration
type AutoResetConfig struct {
	Enabled      bool `yaml:"enabled"`
	ResetDelayMs int  `yaml:"reset_delay_ms"`
}

// AutoStopConfig contains session auto-stop configuration
type AutoStopConfig struct {
	Enabled           bool `yaml:"enabled"`
	SilenceTimeoutMs  int  `yaml:"silence_timeout_ms"`
	NoSpeechTimeoutMs int  `yaml:"no_speech_timeout_ms"`
	MaxDurationMs     int  `yaml:"max_duration_ms"`
}

// AudioConfig contains audio framing and pacing parameters
type AudioConfig struct {
	SampleRate     int    `yaml:"sample_rate"`
	Channels       int    `yaml:"channels"`
	BitDepth       int    `yaml:"bit_depth"`
	FrameSamples   int    `yaml:"frame_samples"`
	PaceIntervalMs int    `yaml:"pace_interval_ms"`
	MaxQueue       int    `yaml:"max_queue"`
	EndOfStream    string `yaml:"end_of_stream"`
}

// LoudnessConfig contains speech energy classification parameters
type LoudnessConfig struct {
	Threshold float64 `yaml:"threshold"`
	Smoothing float64 `yaml:"smoothing"`
}

// TransportConfig contains recognition service configuration
type TransportConfig struct {
	URL            string `yaml:"url"`
	APIKey         string `yaml:"api_key"`
	Language       string `yaml:"language"`
	DialTimeoutMs  int    `yaml:"dial_timeout_ms"`
	WriteTimeoutMs int    `yaml:"write_timeout_ms"`
}

// HealthConfig contains resource health check configuration
type HealthConfig struct {
	CheckIntervalMs int `yaml:"check_interval_ms"`
}

// HTTPConfig contains HTTP API server configuration
type HTTPConfig struct {
	Port    int    `yaml:"port"`
	Address string `yaml:"address"`
	Enabled bool   `yaml:"enabled"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// Validate performs comprehensive validation of the configuration
func (c *Config) Validate() error {
	if err := c.Wake.Validate(); err != nil {
		return fmt.Errorf("wake config: %w", err)
	}

	if err := c.AutoReset.Validate(); err != nil {
		return fmt.Errorf("auto_reset config: %w", err)
	}

	if err := c.AutoStop.Validate(); err != nil {
		return fmt.Errorf("auto_stop config: %w", err)
	}

	if err := c.Audio.Validate(); err != nil {
		return fmt.Errorf("audio config: %w", err)
	}

	if err := c.Loudness.Validate(); err != nil {
		return fmt.Errorf("loudness config: %w", err)
	}

	if err := c.Transport.Validate(); err != nil {
		return fmt.Errorf("transport config: %w", err)
	}

	if err := c.Health.Validate(); err != nil {
		return fmt.Errorf("health config: %w", err)
	}

	if err := c.HTTP.Validate(); err != nil {
		return fmt.Errorf("http config: %w", err)
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}

	return nil
}

// Validate validates wake matching configuration
func (w *WakeConfig) Validate() error {
	if len(w.Phrases) == 0 {
		return fmt.Errorf("at least one wake phrase is required")
	}

	for i, p := range w.Phrases {
		if p == "" {
			return fmt.Errorf("wake phrase %d is empty", i)
		}
	}

	if w.FinalThreshold <= 0 || w.FinalThreshold > 1 {
		return fmt.Errorf("final_threshold must be in (0, 1], got %f", w.FinalThreshold)
	}

	if w.PartialThreshold <= 0 || w.PartialThreshold > w.FinalThreshold {
		return fmt.Errorf("partial_threshold must be in (0, %f], got %f", w.FinalThreshold, w.PartialThreshold)
	}

	if w.NearMissSlack < 0 || w.NearMissSlack >= w.PartialThreshold {
		return fmt.Errorf("near_miss_slack must be in [0, %f), got %f", w.PartialThreshold, w.NearMissSlack)
	}

	if w.ConsecutiveHits < 1 {
		return fmt.Errorf("consecutive_hits must be at least 1, got %d", w.ConsecutiveHits)
	}

	if w.NearMissHits < w.ConsecutiveHits {
		return fmt.Errorf("near_miss_hits (%d) must be at least consecutive_hits (%d)",
			w.NearMissHits, w.ConsecutiveHits)
	}

	if w.RefractoryMs < 0 {
		return fmt.Errorf("refractory_ms cannot be negative, got %d", w.RefractoryMs)
	}

	if w.BufferLimitRunes < 1 {
		return fmt.Errorf("buffer_limit_runes must be at least 1, got %d", w.BufferLimitRunes)
	}

	if w.LoudnessRelax < 0 || w.LoudnessRelax >= w.PartialThreshold {
		return fmt.Errorf("loudness_relax must be in [0, %f), got %f", w.PartialThreshold, w.LoudnessRelax)
	}

	if w.LoudnessWindowMs < 0 {
		return fmt.Errorf("loudness_window_ms cannot be negative, got %d", w.LoudnessWindowMs)
	}

	return nil
}

// Validate validates auto-reset configuration
func (a *AutoResetConfig) Validate() error {
	if a.Enabled && a.ResetDelayMs < 1 {
		return fmt.Errorf("reset_delay_ms must be at least 1 when enabled, got %d", a.ResetDelayMs)
	}

	return nil
}

// Validate validates auto-stop configuration
func (a *AutoStopConfig) Validate() error {
	if !a.Enabled {
		return nil
	}

	if a.SilenceTimeoutMs < 1 {
		return fmt.Errorf("silence_timeout_ms must be at least 1, got %d", a.SilenceTimeoutMs)
	}

	if a.NoSpeechTimeoutMs < a.SilenceTimeoutMs {
		return fmt.Errorf("no_speech_timeout_ms (%d) must be at least silence_timeout_ms (%d)",
			a.NoSpeechTimeoutMs, a.SilenceTimeoutMs)
	}

	if a.MaxDurationMs < a.NoSpeechTimeoutMs {
		return fmt.Errorf("max_duration_ms (%d) must be at least no_speech_timeout_ms (%d)",
			a.MaxDurationMs, a.NoSpeechTimeoutMs)
	}

	return nil
}

// Validate validates audio configuration
func (a *AudioConfig) Validate() error {
	if a.SampleRate != 8000 && a.SampleRate != 16000 {
		return fmt.Errorf("sample_rate must be 8000 or 16000 Hz, got %d", a.SampleRate)
	}

	if a.Channels != 1 {
		return fmt.Errorf("channels must be 1 (mono), got %d", a.Channels)
	}

	if a.BitDepth != 16 {
		return fmt.Errorf("bit_depth must be 16, got %d", a.BitDepth)
	}

	if a.FrameSamples < 1 {
		return fmt.Errorf("frame_samples must be positive, got %d", a.FrameSamples)
	}

	if a.PaceIntervalMs < 1 {
		return fmt.Errorf("pace_interval_ms must be at least 1, got %d", a.PaceIntervalMs)
	}

	if a.MaxQueue < 1 {
		return fmt.Errorf("max_queue must be at least 1, got %d", a.MaxQueue)
	}

	if a.EndOfStream == "" {
		return fmt.Errorf("end_of_stream marker cannot be empty")
	}

	return nil
}

// Validate validates loudness configuration
func (l *LoudnessConfig) Validate() error {
	if l.Threshold < 0 || l.Threshold > 1 {
		return fmt.Errorf("threshold must be between 0 and 1, got %f", l.Threshold)
	}

	if l.Smoothing <= 0 || l.Smoothing > 1 {
		return fmt.Errorf("smoothing must be in (0, 1], got %f", l.Smoothing)
	}

	return nil
}

// Validate validates transport configuration
func (t *TransportConfig) Validate() error {
	if t.URL == "" {
		return fmt.Errorf("url cannot be empty")
	}

	if t.DialTimeoutMs < 1 {
		return fmt.Errorf("dial_timeout_ms must be at least 1, got %d", t.DialTimeoutMs)
	}

	if t.WriteTimeoutMs < 1 {
		return fmt.Errorf("write_timeout_ms must be at least 1, got %d", t.WriteTimeoutMs)
	}

	return nil
}

// Validate validates health check configuration
func (h *HealthConfig) Validate() error {
	if h.CheckIntervalMs < 1 {
		return fmt.Errorf("check_interval_ms must be at least 1, got %d", h.CheckIntervalMs)
	}

	return nil
}

// Validate validates HTTP configuration
func (h *HTTPConfig) Validate() error {
	if h.Enabled {
		if h.Port < 1 || h.Port > 65535 {
			return fmt.Errorf("http port must be between 1 and 65535, got %d", h.Port)
		}

		if h.Address == "" {
			return fmt.Errorf("http address cannot be empty when HTTP is enabled")
		}
	}

	return nil
}

// Validate validates logging configuration
func (l *LoggingConfig) Validate() error {
	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[l.Level] {
		return fmt.Errorf("level must be one of [debug, info, warn, error], got '%s'", l.Level)
	}

	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("format must be 'json' or 'text', got '%s'", l.Format)
	}

	return nil
}

// GetRefractory returns the refractory window as a time.Duration
func (w *WakeConfig) GetRefractory() time.Duration {
	return time.Duration(w.RefractoryMs) * time.Millisecond
}

// GetLoudnessWindow returns the loudness relaxation window as a time.Duration
func (w *WakeConfig) GetLoudnessWindow() time.Duration {
	return time.Duration(w.LoudnessWindowMs) * time.Millisecond
}

// GetResetDelay returns the auto-reset delay as a time.Duration
func (a *AutoResetConfig) GetResetDelay() time.Duration {
	return time.Duration(a.ResetDelayMs) * time.Millisecond
}

// GetSilenceTimeout returns the silence timeout as a time.Duration
func (a *AutoStopConfig) GetSilenceTimeout() time.Duration {
	return time.Duration(a.SilenceTimeoutMs) * time.Millisecond
}

// GetNoSpeechTimeout returns the no-speech timeout as a time.Duration
func (a *AutoStopConfig) GetNoSpeechTimeout() time.Duration {
	return time.Duration(a.NoSpeechTimeoutMs) * time.Millisecond
}

// GetMaxDuration returns the session duration cap as a time.Duration
func (a *AutoStopConfig) GetMaxDuration() time.Duration {
	return time.Duration(a.MaxDurationMs) * time.Millisecond
}

// GetPaceInterval returns the frame release interval as a time.Duration
func (a *AudioConfig) GetPaceInterval() time.Duration {
	return time.Duration(a.PaceIntervalMs) * time.Millisecond
}

// GetDialTimeout returns the transport dial timeout as a time.Duration
func (t *TransportConfig) GetDialTimeout() time.Duration {
	return time.Duration(t.DialTimeoutMs) * time.Millisecond
}

// GetWriteTimeout returns the transport write timeout as a time.Duration
func (t *TransportConfig) GetWriteTimeout() time.Duration {
	return time.Duration(t.WriteTimeoutMs) * time.Millisecond
}

// GetCheckInterval returns the health check interval as a time.Duration
func (h *HealthConfig) GetCheckInterval() time.Duration {
	return time.Duration(h.CheckIntervalMs) * time.Millisecond
}
