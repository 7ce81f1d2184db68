package match

import (
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestMatcher(t *testing.T, clk clock.Clock, phrases ...string) *Matcher {
	t.Helper()

	m, err := NewMatcher(DefaultConfig(), testLogger(), clk)
	if err != nil {
		t.Fatalf("NewMatcher failed: %v", err)
	}
	if len(phrases) == 0 {
		phrases = []string{"小红"}
	}
	if err := m.SetPhrases(phrases); err != nil {
		t.Fatalf("SetPhrases failed: %v", err)
	}
	return m
}

func collectWakes(m *Matcher) *[]WakeEvent {
	var wakes []WakeEvent
	m.OnWake(func(ev WakeEvent) { wakes = append(wakes, ev) })
	return &wakes
}

func TestMatcherConfigValidation(t *testing.T) {
	cfg := DefaultConfig()
	cfg.FinalThreshold = 0.5
	cfg.PartialThreshold = 0.7
	if _, err := NewMatcher(cfg, testLogger(), clock.NewMock()); err == nil {
		t.Error("expected error when final threshold < partial threshold")
	}

	cfg = DefaultConfig()
	cfg.RequiredConsecutiveHits = 0
	if _, err := NewMatcher(cfg, testLogger(), clock.NewMock()); err == nil {
		t.Error("expected error for zero required consecutive hits")
	}
}

func TestSetPhrasesRejectsEmpty(t *testing.T) {
	m, err := NewMatcher(DefaultConfig(), testLogger(), clock.NewMock())
	if err != nil {
		t.Fatalf("NewMatcher failed: %v", err)
	}
	if err := m.SetPhrases([]string{"", "   "}); err == nil {
		t.Error("expected error for empty phrase set")
	}
}

func TestConsecutiveHitsConfirmation(t *testing.T) {
	// Partial events ["小", "小红", "小红"] with required hits = 2: wake on
	// the second 小红 partial, not the first.
	mock := clock.NewMock()
	m := newTestMatcher(t, mock)
	wakes := collectWakes(m)

	m.HandleText(TextEvent{Text: "小", Timestamp: mock.Now()})
	if len(*wakes) != 0 {
		t.Fatal("wake fired on low-score partial")
	}

	m.HandleText(TextEvent{Text: "小红", Timestamp: mock.Now()})
	if len(*wakes) != 0 {
		t.Fatal("wake fired on first qualifying partial, want confirmation on second")
	}

	m.HandleText(TextEvent{Text: "小红", Timestamp: mock.Now()})
	if len(*wakes) != 1 {
		t.Fatalf("wake count after second qualifying partial = %d, want 1", len(*wakes))
	}
	if (*wakes)[0].Phrase != "小红" {
		t.Errorf("wake phrase = %q, want 小红", (*wakes)[0].Phrase)
	}
}

func TestFinalEventTriggersImmediately(t *testing.T) {
	mock := clock.NewMock()
	m := newTestMatcher(t, mock)
	wakes := collectWakes(m)

	m.HandleText(TextEvent{Text: "小红", Final: true, Timestamp: mock.Now()})
	if len(*wakes) != 1 {
		t.Fatalf("wake count after qualifying final = %d, want 1", len(*wakes))
	}
	if !(*wakes)[0].Final {
		t.Error("wake event should be marked final")
	}
}

func TestExactlyOnceUntilReset(t *testing.T) {
	mock := clock.NewMock()
	m := newTestMatcher(t, mock)
	wakes := collectWakes(m)

	m.HandleText(TextEvent{Text: "小红", Final: true, Timestamp: mock.Now()})
	m.HandleText(TextEvent{Text: "小红", Final: true, Timestamp: mock.Now()})
	m.HandleText(TextEvent{Text: "小红", Final: true, Timestamp: mock.Now()})
	if len(*wakes) != 1 {
		t.Fatalf("wake count while triggered = %d, want 1", len(*wakes))
	}

	m.Reset()
	m.HandleText(TextEvent{Text: "小红", Final: true, Timestamp: mock.Now()})
	if len(*wakes) != 2 {
		t.Fatalf("wake count after reset = %d, want 2", len(*wakes))
	}
}

func TestRefractoryWindow(t *testing.T) {
	mock := clock.NewMock()
	m := newTestMatcher(t, mock)
	wakes := collectWakes(m)

	m.HandleText(TextEvent{Text: "小红", Final: true, Timestamp: mock.Now()})
	if len(*wakes) != 1 {
		t.Fatal("expected initial wake")
	}

	// Clear triggered but keep the last-trigger stamp, as the session layer
	// does when it re-arms only the flag.
	m.mu.Lock()
	m.triggered = false
	m.mu.Unlock()

	// Still inside the refractory window: no wake.
	mock.Add(500 * time.Millisecond)
	m.HandleText(TextEvent{Text: "小红", Final: true, Timestamp: mock.Now()})
	if len(*wakes) != 1 {
		t.Fatalf("wake fired inside refractory window, count = %d", len(*wakes))
	}

	// Past the refractory window the matcher fires again.
	mock.Add(1100 * time.Millisecond)
	m.HandleText(TextEvent{Text: "小红", Final: true, Timestamp: mock.Now()})
	if len(*wakes) != 2 {
		t.Fatalf("wake count past refractory window = %d, want 2", len(*wakes))
	}
}

func TestResetClearsRefractory(t *testing.T) {
	mock := clock.NewMock()
	m := newTestMatcher(t, mock)
	wakes := collectWakes(m)

	m.HandleText(TextEvent{Text: "小红", Final: true, Timestamp: mock.Now()})
	m.Reset()

	// Immediately after reset, refractory must not block.
	m.HandleText(TextEvent{Text: "小红", Final: true, Timestamp: mock.Now()})
	if len(*wakes) != 2 {
		t.Fatalf("wake count right after reset = %d, want 2", len(*wakes))
	}
}

func TestNearMissPath(t *testing.T) {
	mock := clock.NewMock()

	// Raise the thresholds so a one-character misspelling lands inside the
	// slack band instead of clearing the threshold outright.
	cfg := DefaultConfig()
	cfg.PartialThreshold = 0.90
	cfg.FinalThreshold = 0.95
	cfg.NearMissSlack = 0.08
	cfg.RequiredNearMissHits = 3
	m, err := NewMatcher(cfg, testLogger(), mock)
	if err != nil {
		t.Fatalf("NewMatcher failed: %v", err)
	}
	if err := m.SetPhrases([]string{"heyassistant"}); err != nil {
		t.Fatalf("SetPhrases failed: %v", err)
	}
	wakes := collectWakes(m)

	score := ScoreCandidate("heyassistent", "heyassistant", "")
	if score >= cfg.PartialThreshold || score < cfg.PartialThreshold-cfg.NearMissSlack {
		t.Fatalf("fixture score %f not inside near-miss band [%f, %f)",
			score, cfg.PartialThreshold-cfg.NearMissSlack, cfg.PartialThreshold)
	}

	m.HandleText(TextEvent{Text: "hey assistent", Timestamp: mock.Now()})
	m.HandleText(TextEvent{Text: "hey assistent", Timestamp: mock.Now()})
	if len(*wakes) != 0 {
		t.Fatal("wake fired before the near-miss count was reached")
	}

	m.HandleText(TextEvent{Text: "hey assistent", Timestamp: mock.Now()})
	if len(*wakes) != 1 {
		t.Fatalf("wake count after near-miss streak = %d, want 1", len(*wakes))
	}
}

func TestCounterDecay(t *testing.T) {
	mock := clock.NewMock()
	m := newTestMatcher(t, mock)

	m.HandleText(TextEvent{Text: "小红", Timestamp: mock.Now()})
	if got := m.Stats().ConsecutiveHits; got != 1 {
		t.Fatalf("consecutive hits = %d, want 1", got)
	}

	// A clear miss decays the counter. The noise is longer than the buffer
	// cap so stale qualifying content is evicted.
	m.HandleText(TextEvent{Text: "qqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqq", Timestamp: mock.Now()})
	stats := m.Stats()
	if stats.ConsecutiveHits != 0 {
		t.Errorf("consecutive hits after miss = %d, want 0", stats.ConsecutiveHits)
	}
	if stats.NearMissHits != 0 {
		t.Errorf("near-miss hits after miss = %d, want 0", stats.NearMissHits)
	}

	// Decay does not go negative.
	m.HandleText(TextEvent{Text: "qqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqq", Timestamp: mock.Now()})
	if got := m.Stats().ConsecutiveHits; got != 0 {
		t.Errorf("consecutive hits stayed at %d, want 0", got)
	}
}

func TestPartialBufferBounded(t *testing.T) {
	mock := clock.NewMock()
	m := newTestMatcher(t, mock)

	for i := 0; i < 20; i++ {
		m.HandleText(TextEvent{Text: "abcdefghij", Timestamp: mock.Now()})
	}
	if got := m.Stats().BufferRunes; got > DefaultConfig().PartialBufferLimit {
		t.Errorf("buffer runes = %d, want <= %d", got, DefaultConfig().PartialBufferLimit)
	}
}

func TestSetPhrasesClearsState(t *testing.T) {
	mock := clock.NewMock()
	m := newTestMatcher(t, mock)

	m.HandleText(TextEvent{Text: "小红", Timestamp: mock.Now()})
	if err := m.SetPhrases([]string{"heyassistant"}); err != nil {
		t.Fatalf("SetPhrases failed: %v", err)
	}

	stats := m.Stats()
	if stats.ConsecutiveHits != 0 || stats.BufferRunes != 0 || stats.Triggered {
		t.Errorf("derived state not cleared: %+v", stats)
	}
}

func TestLoudnessRelaxesThreshold(t *testing.T) {
	mock := clock.NewMock()
	m := newTestMatcher(t, mock)

	base := m.thresholdLocked(false, mock.Now())

	m.ObserveLoudness(true, mock.Now())
	relaxed := m.thresholdLocked(false, mock.Now())
	if relaxed >= base {
		t.Errorf("threshold with confident loudness = %f, want below %f", relaxed, base)
	}
	if base-relaxed > DefaultConfig().LoudnessRelax+1e-9 {
		t.Errorf("relaxation %f exceeds configured bound %f", base-relaxed, DefaultConfig().LoudnessRelax)
	}

	// A stale loudness sample no longer relaxes the threshold.
	mock.Add(2 * time.Second)
	if got := m.thresholdLocked(false, mock.Now()); got != base {
		t.Errorf("threshold with stale loudness = %f, want %f", got, base)
	}
}
