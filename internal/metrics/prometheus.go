package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the voice engine
type Metrics struct {
	// Wake matching metrics
	WakeTriggers  *prometheus.CounterVec
	WakeScores    prometheus.Histogram
	TextEvents    *prometheus.CounterVec
	MatcherResets prometheus.Counter

	// Session metrics
	SessionsStarted  prometheus.Counter
	SessionsStopped  *prometheus.CounterVec
	SessionDuration  prometheus.Histogram
	TranscriptEvents *prometheus.CounterVec

	// Audio metrics
	FramesPaced    prometheus.Counter
	FramesDropped  prometheus.Counter
	PacerQueueSize prometheus.Gauge
	SpeechWindows  prometheus.Counter
	SilentWindows  prometheus.Counter

	// Transport metrics
	TransportConnects prometheus.Counter
	TransportErrors   prometheus.Counter
	BytesSent         prometheus.Counter
	ParseErrors       prometheus.Counter

	// HTTP API metrics
	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPErrors          *prometheus.CounterVec
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics() *Metrics {
	return &Metrics{
		// Wake matching metrics
		WakeTriggers: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "voice_wake_triggers_total",
			Help: "Total number of wake phrase triggers",
		}, []string{"phrase"}),
		WakeScores: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "voice_wake_score",
			Help:    "Similarity score of triggering wake phrase matches",
			Buckets: prometheus.LinearBuckets(0, 0.1, 11), // 0.0 to 1.0
		}),
		TextEvents: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "voice_text_events_total",
			Help: "Total number of text events fed to the wake matcher",
		}, []string{"kind"}),
		MatcherResets: promauto.NewCounter(prometheus.CounterOpts{
			Name: "voice_matcher_resets_total",
			Help: "Total number of wake matcher resets",
		}),

		// Session metrics
		SessionsStarted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "voice_sessions_started_total",
			Help: "Total number of transcription sessions started",
		}),
		SessionsStopped: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "voice_sessions_stopped_total",
			Help: "Total number of transcription sessions stopped",
		}, []string{"reason"}),
		SessionDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "voice_session_duration_seconds",
			Help:    "Duration of transcription sessions in seconds",
			Buckets: prometheus.ExponentialBuckets(1, 2, 8), // 1s to ~4 minutes
		}),
		TranscriptEvents: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "voice_transcript_events_total",
			Help: "Total number of transcript events received in sessions",
		}, []string{"kind"}),

		// Audio metrics
		FramesPaced: promauto.NewCounter(prometheus.CounterOpts{
			Name: "voice_frames_paced_total",
			Help: "Total number of audio frames released to the transport",
		}),
		FramesDropped: promauto.NewCounter(prometheus.CounterOpts{
			Name: "voice_frames_dropped_total",
			Help: "Total number of audio frames dropped by the pacer queue",
		}),
		PacerQueueSize: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "voice_pacer_queue_size",
			Help: "Current number of frames waiting in the pacer queue",
		}),
		SpeechWindows: promauto.NewCounter(prometheus.CounterOpts{
			Name: "voice_speech_windows_total",
			Help: "Total number of audio windows classified as speech",
		}),
		SilentWindows: promauto.NewCounter(prometheus.CounterOpts{
			Name: "voice_silent_windows_total",
			Help: "Total number of audio windows classified as silence",
		}),

		// Transport metrics
		TransportConnects: promauto.NewCounter(prometheus.CounterOpts{
			Name: "voice_transport_connects_total",
			Help: "Total number of recognition transport connections",
		}),
		TransportErrors: promauto.NewCounter(prometheus.CounterOpts{
			Name: "voice_transport_errors_total",
			Help: "Total number of recognition transport errors",
		}),
		BytesSent: promauto.NewCounter(prometheus.CounterOpts{
			Name: "voice_transport_bytes_sent_total",
			Help: "Total audio bytes sent to the recognition service",
		}),
		ParseErrors: promauto.NewCounter(prometheus.CounterOpts{
			Name: "voice_transport_parse_errors_total",
			Help: "Total number of malformed recognition messages dropped",
		}),

		// HTTP API metrics
		HTTPRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "voice_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "endpoint", "status_code"}),
		HTTPRequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "voice_http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "endpoint"}),
		HTTPErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "voice_http_errors_total",
			Help: "Total number of HTTP errors",
		}, []string{"method", "endpoint", "error_type"}),
	}
}

// RecordWakeTrigger records a wake phrase trigger with its score
func (m *Metrics) RecordWakeTrigger(phrase string, score float64) {
	m.WakeTriggers.WithLabelValues(phrase).Inc()
	m.WakeScores.Observe(score)
}

// RecordTextEvent counts one text event fed to the matcher
func (m *Metrics) RecordTextEvent(final bool) {
	m.TextEvents.WithLabelValues(eventKind(final)).Inc()
}

// RecordMatcherReset increments the matcher resets counter
func (m *Metrics) RecordMatcherReset() {
	m.MatcherResets.Inc()
}

// RecordSessionStarted increments the sessions started counter
func (m *Metrics) RecordSessionStarted() {
	m.SessionsStarted.Inc()
}

// RecordSessionStopped records a stopped session with its stop reason and duration
func (m *Metrics) RecordSessionStopped(reason string, durationSeconds float64) {
	m.SessionsStopped.WithLabelValues(reason).Inc()
	m.SessionDuration.Observe(durationSeconds)
}

// RecordTranscriptEvent counts one transcript event received in a session
func (m *Metrics) RecordTranscriptEvent(final bool) {
	m.TranscriptEvents.WithLabelValues(eventKind(final)).Inc()
}

// RecordFramePaced increments the paced frames counter
func (m *Metrics) RecordFramePaced() {
	m.FramesPaced.Inc()
}

// RecordFrameDropped increments the dropped frames counter
func (m *Metrics) RecordFrameDropped() {
	m.FramesDropped.Inc()
}

// SetPacerQueueSize sets the current pacer queue size
func (m *Metrics) SetPacerQueueSize(size int) {
	m.PacerQueueSize.Set(float64(size))
}

// RecordLoudnessWindow counts one classified audio window
func (m *Metrics) RecordLoudnessWindow(speech bool) {
	if speech {
		m.SpeechWindows.Inc()
	} else {
		m.SilentWindows.Inc()
	}
}

// RecordTransportConnect increments the transport connects counter
func (m *Metrics) RecordTransportConnect() {
	m.TransportConnects.Inc()
}

// RecordTransportError increments the transport errors counter
func (m *Metrics) RecordTransportError() {
	m.TransportErrors.Inc()
}

// RecordBytesSent adds to the transport bytes counter
func (m *Metrics) RecordBytesSent(n int) {
	m.BytesSent.Add(float64(n))
}

// RecordParseError increments the malformed message counter
func (m *Metrics) RecordParseError() {
	m.ParseErrors.Inc()
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, endpoint, statusCode string, durationSeconds float64) {
	m.HTTPRequests.WithLabelValues(method, endpoint, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(durationSeconds)
}

// RecordHTTPError records an HTTP error
func (m *Metrics) RecordHTTPError(method, endpoint, errorType string) {
	m.HTTPErrors.WithLabelValues(method, endpoint, errorType).Inc()
}

func eventKind(final bool) string {
	if final {
		return "final"
	}
	return "partial"
}
