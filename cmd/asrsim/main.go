package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// asrsim is a development stand-in for a real streaming recognition
// service. It speaks the same websocket protocol as the transport
// client: a JSON start message, binary PCM frames, text markers, and
// transcript messages back. Point transport.url at ws://localhost:9000/stream.

type startMessage struct {
	Type       string `json:"type"`
	SessionID  string `json:"session_id"`
	SampleRate int    `json:"sample_rate"`
	Encoding   string `json:"encoding"`
	Language   string `json:"language,omitempty"`
}

type transcriptMessage struct {
	Type       string  `json:"type"`
	SessionID  string  `json:"session_id,omitempty"`
	Text       string  `json:"text"`
	Final      bool    `json:"final"`
	Confidence float64 `json:"confidence,omitempty"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// partialEvery controls how many audio bytes trigger a scripted partial.
const partialEvery = 32000 // one second of 16 kHz PCM16

var partials = []string{
	"це",
	"це тестова",
	"це тестова транскрипція",
}

const finalText = "це тестова транскрипція аудіо потоку"

func streamHandler(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	// First message must be the session announcement.
	msgType, data, err := conn.ReadMessage()
	if err != nil {
		log.Printf("read start message: %v", err)
		return
	}
	if msgType != websocket.TextMessage {
		log.Printf("expected text start message, got type %d", msgType)
		return
	}
	var start startMessage
	if err := json.Unmarshal(data, &start); err != nil || start.Type != "start" {
		log.Printf("malformed start message: %s", data)
		return
	}

	log.Printf("🎤 SESSION STARTED:")
	log.Printf("    Session ID: %s", start.SessionID)
	log.Printf("    Sample Rate: %d Hz", start.SampleRate)
	log.Printf("    Encoding: %s", start.Encoding)
	log.Printf("    Language: %s", start.Language)

	var (
		audioBytes  int
		frames      int
		nextPartial int
		began       = time.Now()
	)

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			log.Printf("session %s closed: %v", start.SessionID, err)
			return
		}

		switch msgType {
		case websocket.BinaryMessage:
			audioBytes += len(data)
			frames++

			// Emit the next scripted partial once enough audio arrived.
			if nextPartial < len(partials) && audioBytes >= (nextPartial+1)*partialEvery {
				send(conn, transcriptMessage{
					Type:       "transcript",
					SessionID:  start.SessionID,
					Text:       partials[nextPartial],
					Final:      false,
					Confidence: 0.80,
				})
				nextPartial++
			}

		case websocket.TextMessage:
			// Any text after start is an end-of-stream marker. Reply
			// with the final transcript and finish the session.
			log.Printf("📥 marker %q after %d frames (%d bytes, %.1fs wall)",
				data, frames, audioBytes, time.Since(began).Seconds())

			time.Sleep(100 * time.Millisecond) // simulate decoding latency

			send(conn, transcriptMessage{
				Type:       "transcript",
				SessionID:  start.SessionID,
				Text:       finalText,
				Final:      true,
				Confidence: 0.95,
			})
			log.Printf("✅ FINAL SENT for session %s: %q", start.SessionID, finalText)

			deadline := time.Now().Add(time.Second)
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
			return
		}
	}
}

func send(conn *websocket.Conn, msg transcriptMessage) {
	if err := conn.WriteJSON(msg); err != nil {
		log.Printf("write transcript: %v", err)
	}
}

func main() {
	port := flag.Int("port", 9000, "Port to listen on")
	flag.Parse()

	http.HandleFunc("/stream", streamHandler)

	addr := fmt.Sprintf(":%d", *port)
	log.Printf("🚀 ASR Simulator starting on %s", addr)
	log.Printf("📡 Endpoint: ws://localhost%s/stream", addr)
	log.Println("💡 Update your config to use: ws://localhost:9000/stream")

	if err := http.ListenAndServe(addr, nil); err != nil {
		log.Fatal("Server failed to start:", err)
	}
}
