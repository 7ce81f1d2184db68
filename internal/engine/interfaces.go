package engine

import (
	"context"

	"github.com/jilongsong/voice-sdk/internal/match"
	"github.com/jilongsong/voice-sdk/internal/transport"
)

// AudioCapture produces raw PCM chunks from the platform audio graph.
// The engine is the exclusive owner of the capture resource; only one
// pipeline may be attached at a time.
type AudioCapture interface {
	Start(ctx context.Context) error
	Stop() error
	Healthy() bool
	OnChunk(fn func(pcm []byte))
}

// Recognizer emits partial and final text events from the local
// always-on recognition path feeding the wake matcher.
type Recognizer interface {
	Start(ctx context.Context) error
	Stop() error
	OnText(fn func(match.TextEvent))
}

// Transport streams framed audio to the remote recognition service.
// Implemented by transport.Client; faked in tests.
type Transport interface {
	Start(ctx context.Context) error
	SendFrame(data []byte) error
	SendMarker(marker string) error
	Close() error
	OnMessage(fn func(transport.TranscriptMessage))
	OnError(fn func(error))
	OnClose(fn func())
}

// TransportFactory builds one transport per transcription session.
type TransportFactory func() (Transport, error)
