package audio

import (
	"bytes"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
)

type pacerSink struct {
	mu      sync.Mutex
	frames  []Frame
	markers []string
}

func (s *pacerSink) frame(f Frame) {
	s.mu.Lock()
	s.frames = append(s.frames, f)
	s.mu.Unlock()
}

func (s *pacerSink) marker(m string) {
	s.mu.Lock()
	s.markers = append(s.markers, m)
	s.mu.Unlock()
}

func (s *pacerSink) counts() (int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.frames), len(s.markers)
}

func newTestPacer(t *testing.T, mock *clock.Mock, cfg PacerConfig) (*Pacer, *pacerSink) {
	t.Helper()

	sink := &pacerSink{}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	p, err := NewPacer(cfg, sink.frame, sink.marker, logger, mock)
	if err != nil {
		t.Fatalf("NewPacer failed: %v", err)
	}
	return p, sink
}

func TestPacerReleasesOneFramePerInterval(t *testing.T) {
	mock := clock.NewMock()
	p, sink := newTestPacer(t, mock, DefaultPacerConfig())

	for i := 0; i < 3; i++ {
		p.Enqueue(Frame{Data: []byte{byte(i)}})
	}

	for want := 1; want <= 3; want++ {
		mock.Add(40 * time.Millisecond)
		if got, _ := sink.counts(); got != want {
			t.Fatalf("after %d intervals: frames sent = %d, want %d", want, got, want)
		}
	}

	sink.mu.Lock()
	defer sink.mu.Unlock()
	for i, f := range sink.frames {
		if !bytes.Equal(f.Data, []byte{byte(i)}) {
			t.Errorf("frame %d out of order: %v", i, f.Data)
		}
	}
}

func TestPacerMarkerAfterLastFrame(t *testing.T) {
	mock := clock.NewMock()
	p, sink := newTestPacer(t, mock, DefaultPacerConfig())

	p.Enqueue(Frame{Data: []byte{1}})
	p.Enqueue(Frame{Data: []byte{2}, Last: true})

	mock.Add(40 * time.Millisecond)
	if _, markers := sink.counts(); markers != 0 {
		t.Fatal("marker sent before the last frame")
	}

	mock.Add(40 * time.Millisecond)
	frames, markers := sink.counts()
	if frames != 2 || markers != 1 {
		t.Fatalf("frames = %d markers = %d, want 2 and 1", frames, markers)
	}
	sink.mu.Lock()
	defer sink.mu.Unlock()
	if sink.markers[0] != "EOS" {
		t.Errorf("marker = %q, want EOS", sink.markers[0])
	}
}

func TestPacerIdleUntilNewFrames(t *testing.T) {
	mock := clock.NewMock()
	p, sink := newTestPacer(t, mock, DefaultPacerConfig())

	p.Enqueue(Frame{Data: []byte{1}})
	mock.Add(200 * time.Millisecond)
	if got, _ := sink.counts(); got != 1 {
		t.Fatalf("frames sent = %d, want 1", got)
	}

	// A later enqueue restarts pacing.
	p.Enqueue(Frame{Data: []byte{2}})
	mock.Add(40 * time.Millisecond)
	if got, _ := sink.counts(); got != 2 {
		t.Fatalf("frames sent after restart = %d, want 2", got)
	}
}

func TestPacerStopClearsQueue(t *testing.T) {
	mock := clock.NewMock()
	p, sink := newTestPacer(t, mock, DefaultPacerConfig())

	for i := 0; i < 5; i++ {
		p.Enqueue(Frame{Data: []byte{byte(i)}})
	}
	p.Stop()

	mock.Add(1 * time.Second)
	if frames, markers := sink.counts(); frames != 0 || markers != 0 {
		t.Errorf("stale delivery after stop: frames = %d markers = %d", frames, markers)
	}
	if p.QueueLength() != 0 {
		t.Errorf("queue length after stop = %d, want 0", p.QueueLength())
	}

	// A new session's frames pace normally.
	p.Enqueue(Frame{Data: []byte{9}, Last: true})
	mock.Add(40 * time.Millisecond)
	frames, markers := sink.counts()
	if frames != 1 || markers != 1 {
		t.Errorf("new session frames = %d markers = %d, want 1 and 1", frames, markers)
	}
}

func TestPacerDropsOldestWhenFull(t *testing.T) {
	mock := clock.NewMock()
	cfg := DefaultPacerConfig()
	cfg.MaxQueue = 2
	p, sink := newTestPacer(t, mock, cfg)

	if p.Enqueue(Frame{Data: []byte{1}}) {
		t.Error("Enqueue reported a drop with room in the queue")
	}
	p.Enqueue(Frame{Data: []byte{2}})
	if !p.Enqueue(Frame{Data: []byte{3}}) {
		t.Error("Enqueue did not report the drop on a full queue")
	}

	if p.QueueLength() != 2 {
		t.Fatalf("queue length = %d, want 2", p.QueueLength())
	}
	if got := p.Stats().FramesDropped; got != 1 {
		t.Errorf("frames dropped = %d, want 1", got)
	}

	mock.Add(80 * time.Millisecond)
	sink.mu.Lock()
	defer sink.mu.Unlock()
	if len(sink.frames) != 2 || sink.frames[0].Data[0] != 2 {
		t.Errorf("surviving frames = %v, want oldest dropped", sink.frames)
	}
}

func TestPacerConfigValidation(t *testing.T) {
	cases := []PacerConfig{
		{Interval: 0, MaxQueue: 1, EndOfStream: "EOS"},
		{Interval: 40 * time.Millisecond, MaxQueue: 0, EndOfStream: "EOS"},
		{Interval: 40 * time.Millisecond, MaxQueue: 1, EndOfStream: ""},
	}
	for i, c := range cases {
		if err := c.Validate(); err == nil {
			t.Errorf("case %d: expected validation error", i)
		}
	}
}
