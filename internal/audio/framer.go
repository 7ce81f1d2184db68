package audio

import (
	"fmt"
	"sync"
)

// Frame is a fixed-size binary audio chunk. Last marks end-of-utterance
// and may carry a shorter remainder when the buffer is drained.
type Frame struct {
	Data []byte
	Last bool
}

// FramerConfig controls the fixed frame geometry.
type FramerConfig struct {
	FrameSamples   int `yaml:"frame_samples"`
	BytesPerSample int `yaml:"bytes_per_sample"`
}

// DefaultFramerConfig returns 40ms frames of 16-bit PCM at 16kHz.
func DefaultFramerConfig() FramerConfig {
	return FramerConfig{
		FrameSamples:   640,
		BytesPerSample: 2,
	}
}

func (c FramerConfig) Validate() error {
	if c.FrameSamples <= 0 {
		return fmt.Errorf("frame_samples must be positive, got %d", c.FrameSamples)
	}
	if c.BytesPerSample <= 0 {
		return fmt.Errorf("bytes_per_sample must be positive, got %d", c.BytesPerSample)
	}
	return nil
}

// FrameBytes returns the size of one complete frame in bytes.
func (c FramerConfig) FrameBytes() int {
	return c.FrameSamples * c.BytesPerSample
}

// FramerStats represents framer statistics for monitoring.
type FramerStats struct {
	BytesIn       uint64 `json:"bytes_in"`
	FramesEmitted uint64 `json:"frames_emitted"`
	Flushes       uint64 `json:"flushes"`
	Pending       int    `json:"pending_bytes"`
}

// Framer accumulates variable-size audio chunks into fixed-size frames.
type Framer struct {
	cfg FramerConfig

	mu      sync.Mutex
	buf     []byte
	bytesIn uint64
	frames  uint64
	flushes uint64
}

// NewFramer creates a framer with the given geometry.
func NewFramer(cfg FramerConfig) (*Framer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("framer config: %w", err)
	}
	return &Framer{cfg: cfg}, nil
}

// Write appends a chunk and returns every complete frame it closes, in
// order. Frames own their data; the caller may reuse the chunk slice.
func (f *Framer) Write(chunk []byte) []Frame {
	if len(chunk) == 0 {
		return nil
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	f.bytesIn += uint64(len(chunk))
	f.buf = append(f.buf, chunk...)

	size := f.cfg.FrameBytes()
	var out []Frame
	for len(f.buf) >= size {
		data := make([]byte, size)
		copy(data, f.buf[:size])
		f.buf = f.buf[size:]
		out = append(out, Frame{Data: data})
		f.frames++
	}
	return out
}

// Flush drains the partial remainder as a final frame tagged Last. The
// returned frame is Last even when no bytes are pending, so the caller
// always has an end-of-utterance frame to hand downstream.
func (f *Framer) Flush() Frame {
	f.mu.Lock()
	defer f.mu.Unlock()

	var data []byte
	if len(f.buf) > 0 {
		data = make([]byte, len(f.buf))
		copy(data, f.buf)
		f.buf = f.buf[:0]
		f.frames++
	}
	f.flushes++
	return Frame{Data: data, Last: true}
}

// Reset discards any pending bytes without emitting them.
func (f *Framer) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.buf = f.buf[:0]
}

// Stats returns a snapshot of framer counters.
func (f *Framer) Stats() FramerStats {
	f.mu.Lock()
	defer f.mu.Unlock()
	return FramerStats{
		BytesIn:       f.bytesIn,
		FramesEmitted: f.frames,
		Flushes:       f.flushes,
		Pending:       len(f.buf),
	}
}
