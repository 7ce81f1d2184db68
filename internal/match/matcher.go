package match

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/jilongsong/voice-sdk/internal/textnorm"
)

// TextEvent is one unit of streaming recognizer output. Partial events are
// provisional and may be revised; final events are committed.
type TextEvent struct {
	Text      string
	Final     bool
	Timestamp time.Time
}

// WakeEvent is emitted once per trigger with the best-matching phrase.
type WakeEvent struct {
	Phrase    string
	Score     float64
	Final     bool
	Timestamp time.Time
}

// Phrase is one configured wake target with its derived forms.
type Phrase struct {
	Raw      string
	Norm     string
	Phonetic string
}

// Config holds the matcher tuning parameters. The defaults are empirically
// tuned against streaming ASR output and should be recalibrated per
// deployment rather than treated as optimal.
type Config struct {
	// FinalThreshold applies to final events, PartialThreshold to partials.
	// Finals are higher-confidence, so FinalThreshold >= PartialThreshold.
	FinalThreshold   float64
	PartialThreshold float64

	// NearMissSlack is the band below threshold counted toward the slower
	// near-miss trigger path.
	NearMissSlack float64

	// RequiredConsecutiveHits partial frames at or above threshold confirm
	// a trigger; RequiredNearMissHits frames inside the slack band do.
	RequiredConsecutiveHits int
	RequiredNearMissHits    int

	// RefractoryWindow suppresses further triggers after a wake.
	RefractoryWindow time.Duration

	// PartialBufferLimit caps the rolling partial buffer, in runes.
	PartialBufferLimit int

	// LoudnessRelax is subtracted from the threshold while a recent
	// loudness sample indicates confident speech; LoudnessWindow bounds
	// how long a sample stays recent.
	LoudnessRelax  float64
	LoudnessWindow time.Duration
}

// DefaultConfig returns the tuned matcher defaults.
func DefaultConfig() Config {
	return Config{
		FinalThreshold:          0.80,
		PartialThreshold:        0.72,
		NearMissSlack:           0.06,
		RequiredConsecutiveHits: 2,
		RequiredNearMissHits:    3,
		RefractoryWindow:        1500 * time.Millisecond,
		PartialBufferLimit:      48,
		LoudnessRelax:           0.05,
		LoudnessWindow:          time.Second,
	}
}

// Validate checks the configuration for internal consistency.
func (c Config) Validate() error {
	if c.FinalThreshold <= 0 || c.FinalThreshold > 1 {
		return fmt.Errorf("final_threshold must be in (0, 1], got %f", c.FinalThreshold)
	}
	if c.PartialThreshold <= 0 || c.PartialThreshold > 1 {
		return fmt.Errorf("partial_threshold must be in (0, 1], got %f", c.PartialThreshold)
	}
	if c.FinalThreshold < c.PartialThreshold {
		return fmt.Errorf("final_threshold (%f) must be >= partial_threshold (%f)",
			c.FinalThreshold, c.PartialThreshold)
	}
	if c.NearMissSlack < 0 || c.NearMissSlack >= c.PartialThreshold {
		return fmt.Errorf("near_miss_slack must be in [0, partial_threshold), got %f", c.NearMissSlack)
	}
	if c.RequiredConsecutiveHits < 1 {
		return fmt.Errorf("required_consecutive_hits must be at least 1, got %d", c.RequiredConsecutiveHits)
	}
	if c.RequiredNearMissHits < 1 {
		return fmt.Errorf("required_near_miss_hits must be at least 1, got %d", c.RequiredNearMissHits)
	}
	if c.RefractoryWindow < 0 {
		return fmt.Errorf("refractory_window cannot be negative, got %v", c.RefractoryWindow)
	}
	if c.PartialBufferLimit < 1 {
		return fmt.Errorf("partial_buffer_limit must be at least 1, got %d", c.PartialBufferLimit)
	}
	if c.LoudnessRelax < 0 || c.LoudnessRelax >= c.PartialThreshold {
		return fmt.Errorf("loudness_relax must be in [0, partial_threshold), got %f", c.LoudnessRelax)
	}
	return nil
}

// Stats is a snapshot of matcher state for monitoring.
type Stats struct {
	Phrases         []string  `json:"phrases"`
	Triggered       bool      `json:"triggered"`
	ConsecutiveHits int       `json:"consecutive_hits"`
	NearMissHits    int       `json:"near_miss_hits"`
	BufferRunes     int       `json:"buffer_runes"`
	EventsSeen      uint64    `json:"events_seen"`
	Triggers        uint64    `json:"triggers"`
	LastTrigger     time.Time `json:"last_trigger,omitempty"`
}

// Matcher owns the configured phrase set, the rolling partial buffer and
// the hit counters, and produces at most one wake decision per trigger
// until reset.
type Matcher struct {
	cfg    Config
	clk    clock.Clock
	logger *slog.Logger

	mu            sync.Mutex
	phrases       []Phrase
	triggered     bool
	consecutive   int
	nearMiss      int
	partialBuffer []rune
	lastTrigger   time.Time

	lastLoudnessSpeech bool
	lastLoudnessAt     time.Time

	eventsSeen uint64
	triggers   uint64

	onWake func(WakeEvent)
}

// NewMatcher creates a matcher with no phrases configured. At least one
// phrase must be set before events produce wake decisions.
func NewMatcher(cfg Config, logger *slog.Logger, clk clock.Clock) (*Matcher, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("matcher config: %w", err)
	}
	if clk == nil {
		clk = clock.New()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Matcher{cfg: cfg, clk: clk, logger: logger}, nil
}

// OnWake registers the wake callback. The callback runs synchronously on
// the event path, at most once per trigger.
func (m *Matcher) OnWake(fn func(WakeEvent)) {
	m.mu.Lock()
	m.onWake = fn
	m.mu.Unlock()
}

// SetWakeWord replaces the phrase set with a single phrase.
func (m *Matcher) SetWakeWord(phrase string) error {
	return m.SetPhrases([]string{phrase})
}

// SetPhrases replaces the configured phrase set. All derived state
// (buffers, counters, transliteration cache) is cleared; an in-flight
// decision already emitted is unaffected.
func (m *Matcher) SetPhrases(raw []string) error {
	phrases := make([]Phrase, 0, len(raw))
	seen := make(map[string]bool, len(raw))
	for _, r := range raw {
		norm := textnorm.Normalize(r)
		if norm == "" {
			continue
		}
		if seen[norm] {
			continue
		}
		seen[norm] = true

		phonetic := textnorm.Transliterate(r)
		if phonetic == norm {
			phonetic = ""
		}
		phrases = append(phrases, Phrase{Raw: r, Norm: norm, Phonetic: phonetic})
	}
	if len(phrases) == 0 {
		return fmt.Errorf("no usable wake phrase in %v", raw)
	}

	textnorm.ClearCache()

	m.mu.Lock()
	m.phrases = phrases
	m.clearDerivedLocked()
	m.mu.Unlock()

	m.logger.Info("Wake phrases configured", slog.Int("count", len(phrases)))
	return nil
}

// ObserveLoudness records an amplitude measurement from the audio path.
// While a recent sample indicates confident speech, thresholds are relaxed
// by the configured amount.
func (m *Matcher) ObserveLoudness(speech bool, at time.Time) {
	m.mu.Lock()
	m.lastLoudnessSpeech = speech
	m.lastLoudnessAt = at
	m.mu.Unlock()
}

// HandleText processes one recognizer text event and emits a wake event
// when the decision rules fire. All state mutation is atomic with respect
// to other events.
func (m *Matcher) HandleText(ev TextEvent) {
	m.mu.Lock()
	m.eventsSeen++

	if m.triggered {
		m.mu.Unlock()
		return
	}

	now := m.clk.Now()
	if !m.lastTrigger.IsZero() && now.Sub(m.lastTrigger) < m.cfg.RefractoryWindow {
		m.mu.Unlock()
		return
	}

	norm := textnorm.Normalize(ev.Text)

	var candidate string
	if ev.Final {
		// Finals are committed utterances; score them alone and start the
		// next utterance with a fresh buffer.
		candidate = norm
		m.partialBuffer = m.partialBuffer[:0]
	} else {
		m.appendPartialLocked(norm)
		candidate = string(m.partialBuffer)
	}

	if candidate == "" || len(m.phrases) == 0 {
		m.mu.Unlock()
		return
	}

	bestScore := 0.0
	bestPhrase := ""
	for _, p := range m.phrases {
		s := ScoreCandidate(candidate, p.Norm, p.Phonetic)
		if s > bestScore {
			bestScore = s
			bestPhrase = p.Raw
		}
	}

	threshold := m.thresholdLocked(ev.Final, now)

	var wake *WakeEvent
	switch {
	case bestScore >= threshold:
		if ev.Final {
			wake = m.triggerLocked(bestPhrase, bestScore, ev, now)
		} else {
			m.consecutive++
			if m.consecutive >= m.cfg.RequiredConsecutiveHits {
				wake = m.triggerLocked(bestPhrase, bestScore, ev, now)
			}
		}
	case bestScore >= threshold-m.cfg.NearMissSlack:
		m.nearMiss++
		if m.nearMiss >= m.cfg.RequiredNearMissHits {
			wake = m.triggerLocked(bestPhrase, bestScore, ev, now)
		}
	default:
		// Decay both counters toward zero, no negative saturation.
		if m.consecutive > 0 {
			m.consecutive--
		}
		if m.nearMiss > 0 {
			m.nearMiss--
		}
	}

	onWake := m.onWake
	m.mu.Unlock()

	if wake != nil {
		m.logger.Info("Wake phrase triggered",
			slog.String("phrase", wake.Phrase),
			slog.Float64("score", wake.Score),
			slog.Bool("final", wake.Final),
		)
		if onWake != nil {
			onWake(*wake)
		}
	}
}

// Reset clears the triggered flag, both hit counters, the partial buffer
// and the last-trigger stamp so the refractory window no longer applies.
// Safe to call in any state.
func (m *Matcher) Reset() {
	m.mu.Lock()
	m.clearDerivedLocked()
	m.mu.Unlock()

	m.logger.Debug("Wake matcher re-armed")
}

// Triggered reports whether the matcher is in the triggered state.
func (m *Matcher) Triggered() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.triggered
}

// Stats returns a snapshot of matcher state.
func (m *Matcher) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()

	phrases := make([]string, len(m.phrases))
	for i, p := range m.phrases {
		phrases[i] = p.Raw
	}
	return Stats{
		Phrases:         phrases,
		Triggered:       m.triggered,
		ConsecutiveHits: m.consecutive,
		NearMissHits:    m.nearMiss,
		BufferRunes:     len(m.partialBuffer),
		EventsSeen:      m.eventsSeen,
		Triggers:        m.triggers,
		LastTrigger:     m.lastTrigger,
	}
}

func (m *Matcher) clearDerivedLocked() {
	m.triggered = false
	m.consecutive = 0
	m.nearMiss = 0
	m.partialBuffer = m.partialBuffer[:0]
	m.lastTrigger = time.Time{}
}

// appendPartialLocked appends normalized text to the rolling buffer,
// keeping only the most recent runes up to the configured cap.
func (m *Matcher) appendPartialLocked(norm string) {
	m.partialBuffer = append(m.partialBuffer, []rune(norm)...)
	if overflow := len(m.partialBuffer) - m.cfg.PartialBufferLimit; overflow > 0 {
		m.partialBuffer = m.partialBuffer[overflow:]
	}
}

func (m *Matcher) thresholdLocked(final bool, now time.Time) float64 {
	threshold := m.cfg.PartialThreshold
	if final {
		threshold = m.cfg.FinalThreshold
	}
	if m.lastLoudnessSpeech && !m.lastLoudnessAt.IsZero() &&
		now.Sub(m.lastLoudnessAt) <= m.cfg.LoudnessWindow {
		threshold -= m.cfg.LoudnessRelax
	}
	return threshold
}

func (m *Matcher) triggerLocked(phrase string, score float64, ev TextEvent, now time.Time) *WakeEvent {
	m.triggered = true
	m.lastTrigger = now
	m.consecutive = 0
	m.nearMiss = 0
	m.triggers++

	return &WakeEvent{
		Phrase:    phrase,
		Score:     score,
		Final:     ev.Final,
		Timestamp: now,
	}
}
