package events

import (
	"sync"
	"time"
)

// Event is one observable lifecycle occurrence (session started, utterance
// finalized, channel state change, ...) kept for the status surface.
type Event struct {
	SessionID string         `json:"session_id,omitempty"`
	Type      string         `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	Payload   map[string]any `json:"payload,omitempty"`
}

// Log is an in-memory, capped event log.
type Log struct {
	mu    sync.RWMutex
	max   int
	items []Event
}

const defaultMax = 500

func NewLog() *Log { return &Log{max: defaultMax} }

// NewLogWithCap is used by tests to exercise truncation with a small cap.
func NewLogWithCap(max int) *Log { return &Log{max: max} }

func (l *Log) Append(sessionID, typ string, payload map[string]any) Event {
	evt := Event{SessionID: sessionID, Type: typ, Timestamp: time.Now().UTC(), Payload: payload}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.items = append(l.items, evt)
	if n := len(l.items); n > l.max {
		// Keep room for a single truncation marker so the total stays at max.
		keep := l.max - 1
		dropped := n - keep
		l.items = append([]Event(nil), l.items[n-keep:]...)
		l.items = append(l.items, Event{
			Type:      "events_truncated",
			Timestamp: time.Now().UTC(),
			Payload:   map[string]any{"dropped": dropped, "kept": keep},
		})
	}
	return evt
}

func (l *Log) List() []Event {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Event, len(l.items))
	copy(out, l.items)
	return out
}
