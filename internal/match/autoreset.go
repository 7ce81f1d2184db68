package match

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// AutoResetConfig controls delayed re-arming of the matcher after a wake
// trigger. Both fields are mutable at runtime; an update while a timer is
// pending does not change the already-scheduled fire time.
type AutoResetConfig struct {
	Enabled    bool
	ResetDelay time.Duration
}

// Validate checks the auto-reset configuration.
func (c AutoResetConfig) Validate() error {
	if c.Enabled && c.ResetDelay <= 0 {
		return fmt.Errorf("reset_delay must be positive when auto-reset is enabled, got %v", c.ResetDelay)
	}
	return nil
}

// AutoResetScheduler arms a one-shot delayed reset after each wake trigger.
// At most one reset timer is outstanding; re-arming replaces the pending
// timer and a manual reset or stop cancels it.
type AutoResetScheduler struct {
	clk    clock.Clock
	logger *slog.Logger
	reset  func()

	mu    sync.Mutex
	cfg   AutoResetConfig
	timer *clock.Timer
	gen   uint64
}

// NewAutoResetScheduler creates a scheduler that invokes reset when the
// delay elapses after a trigger.
func NewAutoResetScheduler(cfg AutoResetConfig, reset func(), logger *slog.Logger, clk clock.Clock) (*AutoResetScheduler, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("auto-reset config: %w", err)
	}
	if reset == nil {
		return nil, fmt.Errorf("reset callback cannot be nil")
	}
	if clk == nil {
		clk = clock.New()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &AutoResetScheduler{clk: clk, logger: logger, reset: reset, cfg: cfg}, nil
}

// OnTrigger arms the delayed reset if auto-reset is enabled, replacing any
// pending timer.
func (s *AutoResetScheduler) OnTrigger() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.cfg.Enabled {
		return
	}
	if s.timer != nil {
		s.timer.Stop()
	}

	s.gen++
	gen := s.gen
	delay := s.cfg.ResetDelay
	s.timer = s.clk.AfterFunc(delay, func() { s.fire(gen) })
	s.logger.Debug("Auto-reset armed", slog.Duration("delay", delay))
}

// Cancel drops any pending reset timer. Idempotent, including after the
// timer has already fired.
func (s *AutoResetScheduler) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

// Pending reports whether a reset timer is currently armed.
func (s *AutoResetScheduler) Pending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timer != nil
}

// Update replaces the configuration. A pending timer keeps its original
// fire time; the new values apply from the next trigger. Disabling cancels
// any pending timer.
func (s *AutoResetScheduler) Update(cfg AutoResetConfig) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("auto-reset config: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.cfg = cfg
	if !cfg.Enabled && s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	return nil
}

// Config returns the current configuration.
func (s *AutoResetScheduler) Config() AutoResetConfig {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg
}

func (s *AutoResetScheduler) fire(gen uint64) {
	s.mu.Lock()
	if s.timer == nil || gen != s.gen {
		// Cancelled or replaced between fire and lock acquisition.
		s.mu.Unlock()
		return
	}
	s.timer = nil
	s.mu.Unlock()

	s.logger.Debug("Auto-reset fired")
	s.reset()
}
