package loudness

import (
	"fmt"
	"math"
	"sync"
	"time"
)

// fullScale normalizes RMS energy of 16-bit samples into the 0-1 range.
const fullScale = 32768.0

// Config controls speech classification.
type Config struct {
	Threshold float64 `yaml:"threshold"`
	Smoothing float64 `yaml:"smoothing"`
}

// DefaultConfig returns a threshold suited to near-field speech with
// light exponential smoothing.
func DefaultConfig() Config {
	return Config{
		Threshold: 0.02,
		Smoothing: 0.3,
	}
}

func (c Config) Validate() error {
	if c.Threshold < 0 || c.Threshold > 1 {
		return fmt.Errorf("threshold must be between 0 and 1, got %f", c.Threshold)
	}
	if c.Smoothing <= 0 || c.Smoothing > 1 {
		return fmt.Errorf("smoothing must be in (0, 1], got %f", c.Smoothing)
	}
	return nil
}

// Result is the classification of one audio window.
type Result struct {
	Level     float64   `json:"level"`
	Speech    bool      `json:"speech"`
	Timestamp time.Time `json:"timestamp"`
}

// Stats represents meter statistics for monitoring.
type Stats struct {
	TotalWindows  uint64    `json:"total_windows"`
	SpeechWindows uint64    `json:"speech_windows"`
	SpeechPercent float64   `json:"speech_percent"`
	LastLevel     float64   `json:"last_level"`
	LastProcessed time.Time `json:"last_processed"`
	Threshold     float64   `json:"threshold"`
}

// Meter computes smoothed RMS loudness over sample windows.
type Meter struct {
	mu  sync.RWMutex
	cfg Config

	lastLevel     float64
	totalWindows  uint64
	speechWindows uint64
	lastProcessed time.Time
}

// NewMeter creates a meter with the given classification config.
func NewMeter(cfg Config) (*Meter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("loudness config: %w", err)
	}
	return &Meter{cfg: cfg}, nil
}

// Process measures one window of samples and classifies it. The level
// is exponentially smoothed across consecutive windows.
func (m *Meter) Process(samples []int16, at time.Time) (Result, error) {
	if len(samples) == 0 {
		return Result{}, fmt.Errorf("empty sample window")
	}

	level := rms(samples)

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.totalWindows > 0 {
		level = m.cfg.Smoothing*level + (1-m.cfg.Smoothing)*m.lastLevel
	}
	m.lastLevel = level
	m.lastProcessed = at

	speech := level >= m.cfg.Threshold
	m.totalWindows++
	if speech {
		m.speechWindows++
	}

	return Result{Level: level, Speech: speech, Timestamp: at}, nil
}

// rms returns the normalized root-mean-square energy of the window.
func rms(samples []int16) float64 {
	var energy float64
	for _, s := range samples {
		energy += float64(s) * float64(s)
	}
	return math.Sqrt(energy/float64(len(samples))) / fullScale
}

// UpdateThreshold changes the speech threshold at runtime.
func (m *Meter) UpdateThreshold(threshold float64) error {
	if threshold < 0 || threshold > 1 {
		return fmt.Errorf("threshold must be between 0 and 1, got %f", threshold)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.cfg.Threshold = threshold
	return nil
}

// Threshold returns the current speech threshold.
func (m *Meter) Threshold() float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cfg.Threshold
}

// Reset clears the smoothing state and statistics.
func (m *Meter) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastLevel = 0
	m.totalWindows = 0
	m.speechWindows = 0
	m.lastProcessed = time.Time{}
}

// Stats returns a snapshot of meter counters.
func (m *Meter) Stats() Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	percent := float64(0)
	if m.totalWindows > 0 {
		percent = float64(m.speechWindows) / float64(m.totalWindows) * 100
	}
	return Stats{
		TotalWindows:  m.totalWindows,
		SpeechWindows: m.speechWindows,
		SpeechPercent: percent,
		LastLevel:     m.lastLevel,
		LastProcessed: m.lastProcessed,
		Threshold:     m.cfg.Threshold,
	}
}
