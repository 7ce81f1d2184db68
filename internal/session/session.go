package session

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
)

// Status is the session lifecycle state.
type Status string

const (
	StatusIdle       Status = "idle"
	StatusStarting   Status = "starting"
	StatusActive     Status = "active"
	StatusProcessing Status = "processing"
	StatusStopping   Status = "stopping"
)

// StopReason identifies which auto-stop deadline ended the session.
type StopReason string

const (
	ReasonSilence     StopReason = "silence"
	ReasonNoSpeech    StopReason = "no-speech"
	ReasonMaxDuration StopReason = "max-duration"
)

// AutoStopConfig holds the three auto-stop timeouts.
type AutoStopConfig struct {
	Enabled         bool
	SilenceTimeout  time.Duration
	NoSpeechTimeout time.Duration
	MaxDuration     time.Duration
}

// DefaultAutoStopConfig returns the auto-stop defaults.
func DefaultAutoStopConfig() AutoStopConfig {
	return AutoStopConfig{
		Enabled:         true,
		SilenceTimeout:  2 * time.Second,
		NoSpeechTimeout: 5 * time.Second,
		MaxDuration:     60 * time.Second,
	}
}

// Validate checks the auto-stop configuration.
func (c AutoStopConfig) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.SilenceTimeout <= 0 {
		return fmt.Errorf("silence_timeout must be positive, got %v", c.SilenceTimeout)
	}
	if c.NoSpeechTimeout <= 0 {
		return fmt.Errorf("no_speech_timeout must be positive, got %v", c.NoSpeechTimeout)
	}
	if c.MaxDuration <= 0 {
		return fmt.Errorf("max_duration must be positive, got %v", c.MaxDuration)
	}
	return nil
}

// AutoStopUpdate is a partial auto-stop reconfiguration; nil fields keep
// their current values.
type AutoStopUpdate struct {
	Enabled         *bool
	SilenceTimeout  *time.Duration
	NoSpeechTimeout *time.Duration
	MaxDuration     *time.Duration
}

// Result is one transcript delivered to the application layer.
type Result struct {
	Text      string
	Final     bool
	Timestamp time.Time
}

// Info is a session snapshot for monitoring.
type Info struct {
	ID             string        `json:"id,omitempty"`
	Status         Status        `json:"status"`
	StartedAt      time.Time     `json:"started_at,omitempty"`
	Duration       time.Duration `json:"duration"`
	HasSpeech      bool          `json:"has_speech"`
	Results        uint64        `json:"results"`
	LastStopReason StopReason    `json:"last_stop_reason,omitempty"`
}

// Machine is the transcription session state machine. It exclusively owns
// the session status and the three deadline timers; transcript activity is
// fed in through HandleTranscript and deadlines fire on the injected clock.
type Machine struct {
	clk    clock.Clock
	logger *slog.Logger

	mu        sync.Mutex
	cfg       AutoStopConfig
	id        string
	status    Status
	startedAt time.Time
	hasSpeech bool
	results   uint64
	lastStop  StopReason

	// Deadline timers; nil when disarmed. The generation guards stale
	// fires after cancel or rearm.
	silenceTimer  *clock.Timer
	noSpeechTimer *clock.Timer
	maxTimer      *clock.Timer
	gen           uint64

	onResult   func(Result)
	onStatus   func(Status)
	onAutoStop func(StopReason)
}

// NewMachine creates an idle session machine.
func NewMachine(cfg AutoStopConfig, logger *slog.Logger, clk clock.Clock) (*Machine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("auto-stop config: %w", err)
	}
	if clk == nil {
		clk = clock.New()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Machine{clk: clk, logger: logger, cfg: cfg, status: StatusIdle}, nil
}

// OnResult registers the transcript callback.
func (m *Machine) OnResult(fn func(Result)) {
	m.mu.Lock()
	m.onResult = fn
	m.mu.Unlock()
}

// OnStatusChange registers the status callback. It fires once per
// transition, including the final return to idle.
func (m *Machine) OnStatusChange(fn func(Status)) {
	m.mu.Lock()
	m.onStatus = fn
	m.mu.Unlock()
}

// OnAutoStop registers the callback invoked when a deadline ends the
// session. Explicit Stop does not invoke it.
func (m *Machine) OnAutoStop(fn func(StopReason)) {
	m.mu.Lock()
	m.onAutoStop = fn
	m.mu.Unlock()
}

// Start transitions idle -> starting and arms the no-speech and
// max-duration deadlines. The silence deadline stays disarmed until the
// first activity with content.
func (m *Machine) Start() error {
	m.mu.Lock()
	if m.status != StatusIdle {
		m.mu.Unlock()
		return fmt.Errorf("session already %s", m.status)
	}

	m.id = uuid.NewString()
	m.status = StatusStarting
	m.startedAt = m.clk.Now()
	m.hasSpeech = false
	m.results = 0
	m.lastStop = ""
	m.gen++

	if m.cfg.Enabled {
		m.armLocked(&m.noSpeechTimer, m.cfg.NoSpeechTimeout, ReasonNoSpeech)
		// Armed exactly once per session, never rearmed.
		m.armLocked(&m.maxTimer, m.cfg.MaxDuration, ReasonMaxDuration)
	}

	id := m.id
	onStatus := m.onStatus
	m.mu.Unlock()

	m.logger.Info("Session starting",
		slog.String("session_id", id),
		slog.Bool("auto_stop", m.cfg.Enabled),
	)
	if onStatus != nil {
		onStatus(StatusStarting)
	}
	return nil
}

// SetActive marks the transport ready: starting -> active.
func (m *Machine) SetActive() {
	m.mu.Lock()
	if m.status != StatusStarting {
		m.mu.Unlock()
		return
	}
	m.status = StatusActive
	onStatus := m.onStatus
	m.mu.Unlock()

	if onStatus != nil {
		onStatus(StatusActive)
	}
}

// HandleTranscript feeds one inbound transcript event. Non-empty content
// marks speech activity, disarms the no-speech deadline and (re)arms the
// silence deadline; final events also rearm the silence deadline while
// auto-stop is enabled.
func (m *Machine) HandleTranscript(text string, final bool) {
	trimmed := strings.TrimSpace(text)

	m.mu.Lock()
	if m.status != StatusActive && m.status != StatusProcessing {
		m.mu.Unlock()
		return
	}

	statusChanged := false
	if trimmed != "" {
		m.hasSpeech = true
		m.disarmLocked(&m.noSpeechTimer)
		if m.cfg.Enabled {
			m.armLocked(&m.silenceTimer, m.cfg.SilenceTimeout, ReasonSilence)
		}
		if m.status != StatusProcessing {
			m.status = StatusProcessing
			statusChanged = true
		}
		m.results++
	}
	if final && m.cfg.Enabled {
		m.armLocked(&m.silenceTimer, m.cfg.SilenceTimeout, ReasonSilence)
	}

	onResult := m.onResult
	onStatus := m.onStatus
	m.mu.Unlock()

	if statusChanged && onStatus != nil {
		onStatus(StatusProcessing)
	}
	if trimmed != "" && onResult != nil {
		onResult(Result{Text: text, Final: final, Timestamp: m.clk.Now()})
	}
}

// Stop ends the session explicitly: all deadlines are cleared and no
// auto-stop reason is emitted. Stopping an idle session is a no-op; the
// teardown and the idle status emission happen exactly once.
func (m *Machine) Stop() {
	m.teardown(nil)
}

// UpdateAutoStop applies a partial reconfiguration. Currently-pending
// silence and no-speech deadlines are cancelled and rearmed with the new
// values relative to now; the max-duration deadline is armed once per
// session and keeps its original expiry.
func (m *Machine) UpdateAutoStop(update AutoStopUpdate) error {
	m.mu.Lock()

	cfg := m.cfg
	if update.Enabled != nil {
		cfg.Enabled = *update.Enabled
	}
	if update.SilenceTimeout != nil {
		cfg.SilenceTimeout = *update.SilenceTimeout
	}
	if update.NoSpeechTimeout != nil {
		cfg.NoSpeechTimeout = *update.NoSpeechTimeout
	}
	if update.MaxDuration != nil {
		cfg.MaxDuration = *update.MaxDuration
	}
	if err := cfg.Validate(); err != nil {
		m.mu.Unlock()
		return fmt.Errorf("auto-stop config: %w", err)
	}
	m.cfg = cfg

	if m.status == StatusActive || m.status == StatusProcessing {
		if !cfg.Enabled {
			m.disarmLocked(&m.silenceTimer)
			m.disarmLocked(&m.noSpeechTimer)
			m.disarmLocked(&m.maxTimer)
		} else {
			if m.silenceTimer != nil {
				m.armLocked(&m.silenceTimer, cfg.SilenceTimeout, ReasonSilence)
			}
			if m.noSpeechTimer != nil {
				m.armLocked(&m.noSpeechTimer, cfg.NoSpeechTimeout, ReasonNoSpeech)
			}
		}
	}
	m.mu.Unlock()
	return nil
}

// AutoStopConfig returns the current auto-stop configuration.
func (m *Machine) AutoStopConfig() AutoStopConfig {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cfg
}

// Status returns the current lifecycle state.
func (m *Machine) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// Info returns a session snapshot.
func (m *Machine) Info() Info {
	m.mu.Lock()
	defer m.mu.Unlock()

	var duration time.Duration
	if !m.startedAt.IsZero() && m.status != StatusIdle {
		duration = m.clk.Now().Sub(m.startedAt)
	}
	return Info{
		ID:             m.id,
		Status:         m.status,
		StartedAt:      m.startedAt,
		Duration:       duration,
		HasSpeech:      m.hasSpeech,
		Results:        m.results,
		LastStopReason: m.lastStop,
	}
}

// armLocked replaces a deadline timer with a fresh one relative to now.
func (m *Machine) armLocked(slot **clock.Timer, d time.Duration, reason StopReason) {
	if *slot != nil {
		(*slot).Stop()
	}
	gen := m.gen
	*slot = m.clk.AfterFunc(d, func() { m.deadlineExpired(gen, reason) })
}

// disarmLocked stops and clears a deadline timer. Idempotent, including
// when the timer already fired.
func (m *Machine) disarmLocked(slot **clock.Timer) {
	if *slot != nil {
		(*slot).Stop()
		*slot = nil
	}
}

func (m *Machine) deadlineExpired(gen uint64, reason StopReason) {
	m.mu.Lock()
	if gen != m.gen || (m.status != StatusActive && m.status != StatusProcessing && m.status != StatusStarting) {
		// Stale fire from a cancelled or previous-session timer.
		m.mu.Unlock()
		return
	}
	if reason == ReasonNoSpeech && m.hasSpeech {
		// Speech disarms the no-speech deadline; a stale fire that lost
		// the race must not report a false no-speech stop.
		m.mu.Unlock()
		return
	}
	m.mu.Unlock()

	m.logger.Info("Session deadline expired", slog.String("reason", string(reason)))
	m.teardown(&reason)
}

// teardown drives stopping -> idle. The first caller wins; concurrent or
// repeated calls are no-ops.
func (m *Machine) teardown(reason *StopReason) {
	m.mu.Lock()
	if m.status == StatusIdle || m.status == StatusStopping {
		m.mu.Unlock()
		return
	}

	m.status = StatusStopping
	m.gen++
	m.disarmLocked(&m.silenceTimer)
	m.disarmLocked(&m.noSpeechTimer)
	m.disarmLocked(&m.maxTimer)

	id := m.id
	duration := m.clk.Now().Sub(m.startedAt)
	if reason != nil {
		m.lastStop = *reason
	}
	onStatus := m.onStatus
	onAutoStop := m.onAutoStop
	m.mu.Unlock()

	if onStatus != nil {
		onStatus(StatusStopping)
	}

	m.mu.Lock()
	m.status = StatusIdle
	m.mu.Unlock()

	if reason != nil {
		m.logger.Info("Session auto-stopped",
			slog.String("session_id", id),
			slog.String("reason", string(*reason)),
			slog.Duration("duration", duration),
		)
		if onAutoStop != nil {
			onAutoStop(*reason)
		}
	} else {
		m.logger.Info("Session stopped",
			slog.String("session_id", id),
			slog.Duration("duration", duration),
		)
	}
	if onStatus != nil {
		onStatus(StatusIdle)
	}
}
