package protocol

import (
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"
)

// Event kinds sent by the agent to the backend.
const (
	KindStartSession = "start_session"
	KindUserSpeech   = "user_speech"
	KindInterruptAI  = "interrupt_ai"
	KindEndSession   = "end_session"
	KindSetVoice     = "set_voice"
)

// Event kinds received from the backend.
const (
	KindAIResponse    = "ai_response"
	KindAIAudio       = "ai_audio"
	KindReadyToListen = "ready_to_listen"
	KindError         = "error"
)

// Message is the JSON frame exchanged over the backend channel.
type Message struct {
	Type      string         `json:"type"`
	TsMs      int64          `json:"ts_ms"`
	SessionID string         `json:"session_id,omitempty"`
	Seq       int64          `json:"seq,omitempty"`
	Payload   map[string]any `json:"payload,omitempty"`
}

var seqCounter atomic.Int64

// New builds a message of the given kind stamped with the current time and a
// process-wide monotonic sequence number.
func New(kind, sessionID string, payload map[string]any) Message {
	return Message{
		Type:      kind,
		TsMs:      time.Now().UnixMilli(),
		SessionID: sessionID,
		Seq:       seqCounter.Add(1),
		Payload:   payload,
	}
}

func Encode(m Message) ([]byte, error) {
	return json.Marshal(m)
}

func Decode(data []byte) (Message, error) {
	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		return Message{}, fmt.Errorf("decode message: %w", err)
	}
	if m.Type == "" {
		return Message{}, fmt.Errorf("decode message: missing type")
	}
	return m, nil
}

// Text extracts the "text" payload field, empty when absent.
func (m Message) Text() string {
	return payloadString(m.Payload, "text")
}

// AudioB64 extracts the base64-encoded audio payload, empty when absent.
func (m Message) AudioB64() string {
	return payloadString(m.Payload, "audio_b64")
}

// ErrorMessage extracts the backend error text, empty when absent.
func (m Message) ErrorMessage() string {
	return payloadString(m.Payload, "message")
}

func payloadString(p map[string]any, key string) string {
	if p == nil {
		return ""
	}
	if s, ok := p[key].(string); ok {
		return s
	}
	return ""
}
