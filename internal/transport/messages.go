package transport

// Message type discriminators on the websocket text channel.
const (
	TypeStart      = "start"
	TypeTranscript = "transcript"
	TypeError      = "error"
)

// StartMessage opens a streaming recognition session.
type StartMessage struct {
	Type       string `json:"type"`
	SessionID  string `json:"session_id"`
	SampleRate int    `json:"sample_rate"`
	Encoding   string `json:"encoding"`
	Language   string `json:"language,omitempty"`
}

// TranscriptMessage is an inbound recognition result. Final marks the
// segment as committed; non-final text may be revised by later messages.
type TranscriptMessage struct {
	Type       string  `json:"type"`
	SessionID  string  `json:"session_id,omitempty"`
	Text       string  `json:"text"`
	Final      bool    `json:"final"`
	Confidence float64 `json:"confidence,omitempty"`
}

// ErrorMessage is an inbound service-side failure report.
type ErrorMessage struct {
	Type    string `json:"type"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}
