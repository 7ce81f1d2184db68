package audio

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// PacerConfig controls the frame release cadence.
type PacerConfig struct {
	Interval    time.Duration `yaml:"interval"`
	MaxQueue    int           `yaml:"max_queue"`
	EndOfStream string        `yaml:"end_of_stream"`
}

// DefaultPacerConfig returns one frame per 40ms with a bounded queue.
func DefaultPacerConfig() PacerConfig {
	return PacerConfig{
		Interval:    40 * time.Millisecond,
		MaxQueue:    256,
		EndOfStream: "EOS",
	}
}

func (c PacerConfig) Validate() error {
	if c.Interval <= 0 {
		return fmt.Errorf("interval must be positive, got %v", c.Interval)
	}
	if c.MaxQueue <= 0 {
		return fmt.Errorf("max_queue must be positive, got %d", c.MaxQueue)
	}
	if c.EndOfStream == "" {
		return fmt.Errorf("end_of_stream marker must not be empty")
	}
	return nil
}

// PacerStats represents pacer statistics for monitoring.
type PacerStats struct {
	FramesSent    uint64 `json:"frames_sent"`
	FramesDropped uint64 `json:"frames_dropped"`
	MarkersSent   uint64 `json:"markers_sent"`
	QueueLength   int    `json:"queue_length"`
}

// Pacer holds a FIFO queue of frames and releases exactly one frame per
// interval to the downstream sinks. After the frame tagged Last it sends
// the end-of-stream marker string and goes quiet until new frames arrive.
// Stop clears the queue and cancels the pacing timer so no stale frames
// leak into a new session.
type Pacer struct {
	cfg    PacerConfig
	clk    clock.Clock
	logger *slog.Logger

	onFrame  func(Frame)
	onMarker func(string)

	mu      sync.Mutex
	queue   []Frame
	timer   *clock.Timer
	gen     uint64
	sent    uint64
	dropped uint64
	markers uint64
}

// NewPacer creates a pacer that delivers frames via onFrame and the
// end-of-stream marker via onMarker. Both callbacks are invoked from the
// timer goroutine, outside the pacer lock.
func NewPacer(cfg PacerConfig, onFrame func(Frame), onMarker func(string), logger *slog.Logger, clk clock.Clock) (*Pacer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("pacer config: %w", err)
	}
	if onFrame == nil || onMarker == nil {
		return nil, fmt.Errorf("pacer requires frame and marker callbacks")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if clk == nil {
		clk = clock.New()
	}
	return &Pacer{cfg: cfg, clk: clk, logger: logger, onFrame: onFrame, onMarker: onMarker}, nil
}

// Enqueue appends a frame to the release queue and starts the pacing
// timer if it is not already running. When the queue is full the oldest
// frame is dropped to keep latency bounded; Enqueue reports whether a
// drop occurred.
func (p *Pacer) Enqueue(frame Frame) bool {
	p.mu.Lock()
	dropped := len(p.queue) >= p.cfg.MaxQueue
	if dropped {
		p.queue = p.queue[1:]
		p.dropped++
		p.logger.Warn("Pacer queue full, dropping oldest frame",
			slog.Int("max_queue", p.cfg.MaxQueue),
		)
	}
	p.queue = append(p.queue, frame)
	p.armLocked()
	p.mu.Unlock()
	return dropped
}

// Stop clears the queue and cancels the pacing timer. Pending frames are
// discarded; a timer fire racing with Stop delivers nothing.
func (p *Pacer) Stop() {
	p.mu.Lock()
	cleared := len(p.queue)
	p.queue = nil
	p.gen++
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
	p.mu.Unlock()

	if cleared > 0 {
		p.logger.Debug("Pacer stopped", slog.Int("frames_discarded", cleared))
	}
}

// QueueLength returns the number of frames waiting for release.
func (p *Pacer) QueueLength() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.queue)
}

// Stats returns a snapshot of pacer counters.
func (p *Pacer) Stats() PacerStats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return PacerStats{
		FramesSent:    p.sent,
		FramesDropped: p.dropped,
		MarkersSent:   p.markers,
		QueueLength:   len(p.queue),
	}
}

// armLocked starts the interval timer if it is not already pending.
func (p *Pacer) armLocked() {
	if p.timer != nil {
		return
	}
	gen := p.gen
	p.timer = p.clk.AfterFunc(p.cfg.Interval, func() { p.tick(gen) })
}

func (p *Pacer) tick(gen uint64) {
	p.mu.Lock()
	if gen != p.gen {
		p.mu.Unlock()
		return
	}
	p.timer = nil
	if len(p.queue) == 0 {
		p.mu.Unlock()
		return
	}

	frame := p.queue[0]
	p.queue[0] = Frame{}
	p.queue = p.queue[1:]
	p.sent++
	if frame.Last {
		p.markers++
	}
	if len(p.queue) > 0 {
		p.armLocked()
	}
	p.mu.Unlock()

	p.onFrame(frame)
	if frame.Last {
		p.onMarker(p.cfg.EndOfStream)
	}
}
