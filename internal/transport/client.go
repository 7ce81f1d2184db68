package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Config contains recognition transport configuration.
type Config struct {
	URL          string        `yaml:"url"`
	APIKey       string        `yaml:"api_key"`
	SampleRate   int           `yaml:"sample_rate"`
	Language     string        `yaml:"language"`
	DialTimeout  time.Duration `yaml:"dial_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// DefaultConfig returns transport settings for 16kHz mono PCM.
func DefaultConfig() Config {
	return Config{
		SampleRate:   16000,
		DialTimeout:  10 * time.Second,
		WriteTimeout: 5 * time.Second,
	}
}

// Stats represents transport statistics for monitoring.
type Stats struct {
	FramesSent  uint64    `json:"frames_sent"`
	BytesSent   uint64    `json:"bytes_sent"`
	MarkersSent uint64    `json:"markers_sent"`
	Received    uint64    `json:"messages_received"`
	ParseErrors uint64    `json:"parse_errors"`
	ConnectedAt time.Time `json:"connected_at"`
}

// Client is a websocket client for a streaming recognition service. One
// client carries one session: Start dials and announces the session,
// Close tears it down. Callbacks fire from the read goroutine.
type Client struct {
	cfg    Config
	logger *slog.Logger

	onMessage func(TranscriptMessage)
	onError   func(error)
	onClose   func()

	mu        sync.Mutex
	conn      *websocket.Conn
	sessionID string
	closed    bool

	framesSent  uint64
	bytesSent   uint64
	markersSent uint64
	received    uint64
	parseErrors uint64
	connectedAt time.Time
}

// NewClient creates a recognition transport client.
func NewClient(cfg Config, logger *slog.Logger) (*Client, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("transport URL is required")
	}
	if cfg.SampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive, got %d", cfg.SampleRate)
	}
	if cfg.DialTimeout <= 0 {
		return nil, fmt.Errorf("dial timeout must be positive, got %v", cfg.DialTimeout)
	}
	if cfg.WriteTimeout <= 0 {
		return nil, fmt.Errorf("write timeout must be positive, got %v", cfg.WriteTimeout)
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	return &Client{cfg: cfg, logger: logger}, nil
}

// OnMessage registers the transcript callback.
func (c *Client) OnMessage(fn func(TranscriptMessage)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onMessage = fn
}

// OnError registers the error callback.
func (c *Client) OnError(fn func(error)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onError = fn
}

// OnClose registers the connection-closed callback. It fires once per
// connection, whether the close was local or remote.
func (c *Client) OnClose(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onClose = fn
}

// Start dials the service and announces a new session. It returns once
// the start message is on the wire; transcripts arrive via OnMessage.
func (c *Client) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.conn != nil {
		c.mu.Unlock()
		return fmt.Errorf("transport already started")
	}
	c.closed = false
	c.mu.Unlock()

	dialer := websocket.Dialer{HandshakeTimeout: c.cfg.DialTimeout}
	header := http.Header{}
	if c.cfg.APIKey != "" {
		header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	conn, _, err := dialer.DialContext(ctx, c.cfg.URL, header)
	if err != nil {
		return fmt.Errorf("failed to dial recognition service: %w", err)
	}

	sessionID := uuid.NewString()
	start := StartMessage{
		Type:       TypeStart,
		SessionID:  sessionID,
		SampleRate: c.cfg.SampleRate,
		Encoding:   "pcm16",
		Language:   c.cfg.Language,
	}
	conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	if err := conn.WriteJSON(start); err != nil {
		conn.Close()
		return fmt.Errorf("failed to send start message: %w", err)
	}

	c.mu.Lock()
	c.conn = conn
	c.sessionID = sessionID
	c.connectedAt = time.Now()
	c.mu.Unlock()

	c.logger.Info("Recognition transport connected",
		slog.String("session_id", sessionID),
		slog.String("url", c.cfg.URL),
	)

	go c.readLoop(conn)
	return nil
}

// SendFrame writes one binary audio frame.
func (c *Client) SendFrame(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil || c.closed {
		return fmt.Errorf("transport not connected")
	}
	c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	if err := c.conn.WriteMessage(websocket.BinaryMessage, data); err != nil {
		return fmt.Errorf("failed to send audio frame: %w", err)
	}
	c.framesSent++
	c.bytesSent += uint64(len(data))
	return nil
}

// SendMarker writes a textual control marker, e.g. end-of-stream.
func (c *Client) SendMarker(marker string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil || c.closed {
		return fmt.Errorf("transport not connected")
	}
	c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	if err := c.conn.WriteMessage(websocket.TextMessage, []byte(marker)); err != nil {
		return fmt.Errorf("failed to send marker: %w", err)
	}
	c.markersSent++
	return nil
}

// Close shuts the connection down. Safe to call more than once; only
// the first call tears anything down.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed || c.conn == nil {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()

	conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	return conn.Close()
}

// SessionID returns the identifier announced in the start message.
func (c *Client) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

// Stats returns a snapshot of transport counters.
func (c *Client) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{
		FramesSent:  c.framesSent,
		BytesSent:   c.bytesSent,
		MarkersSent: c.markersSent,
		Received:    c.received,
		ParseErrors: c.parseErrors,
		ConnectedAt: c.connectedAt,
	}
}

func (c *Client) readLoop(conn *websocket.Conn) {
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			c.mu.Lock()
			wasClosed := c.closed
			c.closed = true
			if c.conn == conn {
				c.conn = nil
			}
			onError := c.onError
			onClose := c.onClose
			c.mu.Unlock()

			if !wasClosed {
				conn.Close()
				if onError != nil {
					onError(fmt.Errorf("recognition connection lost: %w", err))
				}
			}
			if onClose != nil {
				onClose()
			}
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}
		c.handleMessage(data)
	}
}

// handleMessage decodes one inbound text message. Malformed payloads
// are counted and dropped so a noisy service cannot kill the session.
func (c *Client) handleMessage(data []byte) {
	var msg TranscriptMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		c.mu.Lock()
		c.parseErrors++
		c.mu.Unlock()
		c.logger.Warn("Dropping malformed recognition message",
			slog.String("error", err.Error()),
		)
		return
	}

	c.mu.Lock()
	c.received++
	onMessage := c.onMessage
	onError := c.onError
	c.mu.Unlock()

	switch msg.Type {
	case TypeTranscript:
		if onMessage != nil {
			onMessage(msg)
		}
	case TypeError:
		var svcErr ErrorMessage
		if err := json.Unmarshal(data, &svcErr); err == nil && onError != nil {
			onError(fmt.Errorf("recognition service error %s: %s", svcErr.Code, svcErr.Message))
		}
	default:
		c.logger.Debug("Ignoring recognition message",
			slog.String("type", msg.Type),
		)
	}
}
