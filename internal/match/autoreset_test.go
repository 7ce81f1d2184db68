package match

import (
	"testing"
	"time"

	"github.com/benbjohnson/clock"
)

func newTestScheduler(t *testing.T, mock *clock.Mock, cfg AutoResetConfig, reset func()) *AutoResetScheduler {
	t.Helper()

	s, err := NewAutoResetScheduler(cfg, reset, testLogger(), mock)
	if err != nil {
		t.Fatalf("NewAutoResetScheduler failed: %v", err)
	}
	return s
}

func TestAutoResetFiresAfterDelay(t *testing.T) {
	mock := clock.NewMock()
	resets := 0
	s := newTestScheduler(t, mock, AutoResetConfig{Enabled: true, ResetDelay: 2 * time.Second}, func() { resets++ })

	s.OnTrigger()
	if !s.Pending() {
		t.Fatal("expected pending timer after trigger")
	}

	mock.Add(1999 * time.Millisecond)
	if resets != 0 {
		t.Fatal("reset fired early")
	}

	mock.Add(1 * time.Millisecond)
	if resets != 1 {
		t.Fatalf("resets = %d, want 1", resets)
	}
	if s.Pending() {
		t.Error("timer still pending after fire")
	}
}

func TestAutoResetDisabled(t *testing.T) {
	mock := clock.NewMock()
	resets := 0
	s := newTestScheduler(t, mock, AutoResetConfig{Enabled: false}, func() { resets++ })

	s.OnTrigger()
	if s.Pending() {
		t.Fatal("disabled scheduler armed a timer")
	}
	mock.Add(time.Minute)
	if resets != 0 {
		t.Errorf("resets = %d, want 0", resets)
	}
}

func TestAutoResetCancel(t *testing.T) {
	// Manual reset at t=500ms cancels the pending 2000ms timer: no double
	// reset.
	mock := clock.NewMock()
	resets := 0
	s := newTestScheduler(t, mock, AutoResetConfig{Enabled: true, ResetDelay: 2 * time.Second}, func() { resets++ })

	s.OnTrigger()
	mock.Add(500 * time.Millisecond)
	s.Cancel()

	mock.Add(5 * time.Second)
	if resets != 0 {
		t.Errorf("resets after cancel = %d, want 0", resets)
	}

	// Cancel is idempotent, including after a fire.
	s.Cancel()
	s.OnTrigger()
	mock.Add(2 * time.Second)
	s.Cancel()
	if resets != 1 {
		t.Errorf("resets = %d, want 1", resets)
	}
}

func TestAutoResetRearmReplaces(t *testing.T) {
	mock := clock.NewMock()
	resets := 0
	s := newTestScheduler(t, mock, AutoResetConfig{Enabled: true, ResetDelay: 2 * time.Second}, func() { resets++ })

	s.OnTrigger()
	mock.Add(1500 * time.Millisecond)
	s.OnTrigger() // replaces the first timer

	mock.Add(600 * time.Millisecond) // first timer would have fired here
	if resets != 0 {
		t.Fatalf("replaced timer fired, resets = %d", resets)
	}

	mock.Add(1400 * time.Millisecond)
	if resets != 1 {
		t.Errorf("resets = %d, want 1", resets)
	}
}

func TestAutoResetUpdateNotRetroactive(t *testing.T) {
	mock := clock.NewMock()
	resets := 0
	s := newTestScheduler(t, mock, AutoResetConfig{Enabled: true, ResetDelay: 2 * time.Second}, func() { resets++ })

	s.OnTrigger()
	if err := s.Update(AutoResetConfig{Enabled: true, ResetDelay: 10 * time.Second}); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	// The pending timer keeps its original 2s fire time.
	mock.Add(2 * time.Second)
	if resets != 1 {
		t.Fatalf("resets after original delay = %d, want 1", resets)
	}

	// The next trigger uses the new delay.
	s.OnTrigger()
	mock.Add(2 * time.Second)
	if resets != 1 {
		t.Fatal("new delay not applied to next trigger")
	}
	mock.Add(8 * time.Second)
	if resets != 2 {
		t.Errorf("resets = %d, want 2", resets)
	}
}

func TestAutoResetUpdateDisableCancelsPending(t *testing.T) {
	mock := clock.NewMock()
	resets := 0
	s := newTestScheduler(t, mock, AutoResetConfig{Enabled: true, ResetDelay: time.Second}, func() { resets++ })

	s.OnTrigger()
	if err := s.Update(AutoResetConfig{Enabled: false}); err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	mock.Add(time.Minute)
	if resets != 0 {
		t.Errorf("resets after disable = %d, want 0", resets)
	}
}
