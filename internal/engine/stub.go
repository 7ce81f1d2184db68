package engine

import (
	"context"
	"sync"

	"github.com/jilongsong/voice-sdk/internal/match"
)

// NullCapture is a capture stub for environments without an audio
// device. It produces no chunks on its own; Feed injects PCM manually.
type NullCapture struct {
	mu      sync.Mutex
	running bool
	onChunk func([]byte)
}

func (c *NullCapture) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.running = true
	return nil
}

func (c *NullCapture) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.running = false
	return nil
}

func (c *NullCapture) Healthy() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

func (c *NullCapture) OnChunk(fn func([]byte)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onChunk = fn
}

// Feed delivers one PCM chunk as if captured from a device.
func (c *NullCapture) Feed(pcm []byte) {
	c.mu.Lock()
	fn := c.onChunk
	running := c.running
	c.mu.Unlock()
	if running && fn != nil {
		fn(pcm)
	}
}

// NullRecognizer is a recognizer stub; Feed injects text events as if
// produced by the always-on recognition path.
type NullRecognizer struct {
	mu      sync.Mutex
	running bool
	onText  func(match.TextEvent)
}

func (r *NullRecognizer) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.running = true
	return nil
}

func (r *NullRecognizer) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.running = false
	return nil
}

func (r *NullRecognizer) OnText(fn func(match.TextEvent)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onText = fn
}

// Feed delivers one text event as if recognized from captured audio.
func (r *NullRecognizer) Feed(ev match.TextEvent) {
	r.mu.Lock()
	fn := r.onText
	running := r.running
	r.mu.Unlock()
	if running && fn != nil {
		fn(ev)
	}
}
