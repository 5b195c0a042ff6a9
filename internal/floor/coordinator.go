// Package floor holds the turn-taking coordinator, the single authority over
// whether the listener or the AI may speak at any moment of a session.
package floor

import (
	"log"
	"sync"

	"sona/voice/internal/events"
	"sona/voice/internal/protocol"
	"sona/voice/internal/transcript"
)

// TurnState is the coordinator's state machine. ListenerCapturing and
// AIProducing are mutually exclusive unless barge-in is enabled, in which
// case both co-exist transiently until an interruption completes.
type TurnState string

const (
	ListenerIdle      TurnState = "listener_idle"
	ListenerCapturing TurnState = "listener_capturing"
	AIProducing       TurnState = "ai_producing"
	Interrupted       TurnState = "interrupted"
)

// Capture is the coordinator-facing subset of the speech capture controller.
type Capture interface {
	Start()
	Stop()
}

// Playback is the coordinator-facing subset of the playback controller.
type Playback interface {
	Play(audioB64 string) error
	Interrupt()
	Playing() bool
}

// Sender enqueues outbound channel events; false means not connected.
type Sender interface {
	Send(kind string, payload map[string]any) bool
}

// Observer receives presentation-facing updates. Implementations must not
// call back into the coordinator.
type Observer interface {
	Status(text string)
	TranscriptAppend(u transcript.Utterance)
	Listening(on bool)
	Speaking(on bool)
}

// NopObserver preserves coordinator flow when no presentation is wired.
type NopObserver struct{}

func (NopObserver) Status(string)                         {}
func (NopObserver) TranscriptAppend(transcript.Utterance) {}
func (NopObserver) Listening(bool)                        {}
func (NopObserver) Speaking(bool)                         {}

// Coordinator owns the TurnState and all turn-taking flags. Capture, playback
// and channel components only emit events; every transition is applied here,
// atomically under one lock, correct under any event interleaving.
type Coordinator struct {
	capture  Capture
	playback Playback
	sender   Sender
	obs      Observer
	ts       *transcript.Store
	evlog    *events.Log

	mu        sync.Mutex
	state     TurnState
	bargeIn   bool
	active    bool
	sessionID string
}

func New(capture Capture, playback Playback, sender Sender, obs Observer, ts *transcript.Store, evlog *events.Log) *Coordinator {
	if obs == nil {
		obs = NopObserver{}
	}
	return &Coordinator{
		capture:  capture,
		playback: playback,
		sender:   sender,
		obs:      obs,
		ts:       ts,
		evlog:    evlog,
		state:    ListenerIdle,
	}
}

func (c *Coordinator) State() TurnState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Coordinator) SetBargeIn(enabled bool) {
	c.mu.Lock()
	c.bargeIn = enabled
	c.mu.Unlock()
	log.Printf("[floor] barge-in enabled=%v", enabled)
}

func (c *Coordinator) BargeIn() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.bargeIn
}

// CaptureAllowed is the capture controller's policy gate: no capture while
// the AI is producing speech unless barge-in is enabled.
func (c *Coordinator) CaptureAllowed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active && (c.state != AIProducing || c.bargeIn)
}

// SessionStarted moves the floor to the listener and starts capture.
func (c *Coordinator) SessionStarted(sessionID string) {
	c.mu.Lock()
	c.active = true
	c.sessionID = sessionID
	c.setStateLocked(ListenerCapturing)
	c.mu.Unlock()

	c.event("turn_listening", nil)
	c.obs.Listening(true)
	c.obs.Status("Listening...")
	c.capture.Start()
}

// UtteranceFinalized handles one finalized user phrase. When the AI is
// producing and barge-in is enabled, the user always wins: production is
// interrupted, never queued, with exactly one interrupt signal.
func (c *Coordinator) UtteranceFinalized(text string) {
	c.mu.Lock()
	if !c.active {
		c.mu.Unlock()
		return
	}
	switch c.state {
	case AIProducing:
		if !c.bargeIn {
			// Capture should not have been running; drop.
			c.mu.Unlock()
			log.Printf("[floor] dropping utterance while AI producing without barge-in")
			return
		}
		c.interruptLocked(text)

	case ListenerCapturing:
		if c.bargeIn && c.playback.Playing() {
			// The ready signal handed the floor back while AI audio is still
			// playing; the user utterance still wins over the production.
			c.interruptLocked(text)
			return
		}
		stopCapture := !c.bargeIn
		c.setStateLocked(AIProducing)
		c.mu.Unlock()

		u := c.appendTranscript(transcript.SpeakerUser, text)
		c.sender.Send(protocol.KindUserSpeech, map[string]any{"text": text})
		c.event("utterance_final", map[string]any{"id": u.ID})
		if stopCapture {
			c.capture.Stop()
			c.obs.Listening(false)
		}
		c.obs.Status("Thinking...")

	case Interrupted:
		// An interruption is already in flight; relay the phrase without a
		// second interrupt signal.
		c.mu.Unlock()
		c.appendTranscript(transcript.SpeakerUser, text)
		c.sender.Send(protocol.KindUserSpeech, map[string]any{"text": text})

	default: // ListenerIdle
		c.mu.Unlock()
	}
}

// interruptLocked runs the barge-in sequence: stop playback, exactly one
// interrupt signal, then the relayed utterance. Caller holds c.mu; released
// here before effects.
func (c *Coordinator) interruptLocked(text string) {
	c.setStateLocked(Interrupted)
	c.mu.Unlock()

	metricBargeIns.Inc()
	c.playback.Interrupt()
	c.sender.Send(protocol.KindInterruptAI, nil)
	c.event("interrupt_sent", map[string]any{"reason": "barge_in"})
	u := c.appendTranscript(transcript.SpeakerUser, text)
	c.sender.Send(protocol.KindUserSpeech, map[string]any{"text": text})
	c.event("utterance_final", map[string]any{"id": u.ID})

	c.mu.Lock()
	active := c.active
	if active {
		c.setStateLocked(AIProducing)
	}
	c.mu.Unlock()
	if active {
		c.obs.Speaking(false)
		c.obs.Status("Thinking...")
	}
}

// TextReply records an AI reply in the transcript. Arrival order between
// backend replies and local events is not guaranteed, so no state is assumed.
func (c *Coordinator) TextReply(text string) {
	c.mu.Lock()
	if !c.active {
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()

	u := c.appendTranscript(transcript.SpeakerAI, text)
	c.event("ai_reply", map[string]any{"id": u.ID})
}

// AudioReply starts playback of a synthesized segment. Decode failures are
// non-fatal: the segment is skipped and the session continues.
func (c *Coordinator) AudioReply(audioB64 string) {
	c.mu.Lock()
	if !c.active {
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()

	if err := c.playback.Play(audioB64); err != nil {
		c.event("audio_skipped", map[string]any{"error": err.Error()})
		return
	}
	c.obs.Speaking(true)
	c.obs.Status("AI is speaking...")
}

// ReadySignal handles the backend's readiness to listen.
func (c *Coordinator) ReadySignal() {
	c.mu.Lock()
	if !c.active || c.state != AIProducing {
		c.mu.Unlock()
		return
	}
	if !c.bargeIn && c.playback.Playing() {
		// Keep the floor with the AI until its audio finishes.
		c.mu.Unlock()
		c.obs.Status("AI is speaking...")
		return
	}
	c.setStateLocked(ListenerCapturing)
	c.mu.Unlock()

	c.event("turn_listening", map[string]any{"trigger": "ready_signal"})
	c.obs.Listening(true)
	c.obs.Status("Listening...")
	c.capture.Start()
}

// PlaybackEnded handles natural completion of an AI audio segment.
// Interruption never reaches here: the playback controller suppresses it.
func (c *Coordinator) PlaybackEnded() {
	c.mu.Lock()
	if !c.active {
		c.mu.Unlock()
		return
	}
	restart := c.state == AIProducing && !c.bargeIn
	if restart {
		c.setStateLocked(ListenerCapturing)
	}
	c.mu.Unlock()

	c.obs.Speaking(false)
	c.event("playback_ended", nil)
	if restart {
		// The capture controller separates this from the previous stop by
		// its settle delay.
		c.obs.Listening(true)
		c.obs.Status("Listening...")
		c.capture.Start()
	}
}

// CaptureEnded applies the restart policy after the recognition engine stops
// for any reason.
func (c *Coordinator) CaptureEnded() {
	c.mu.Lock()
	if !c.active {
		c.mu.Unlock()
		return
	}
	restart := c.state != AIProducing || c.bargeIn
	c.mu.Unlock()

	c.obs.Listening(false)
	if restart {
		c.capture.Start()
	}
}

// ManualInterrupt is the user's explicit stop-the-AI request. A no-op when
// the listener already has the floor and nothing is playing.
func (c *Coordinator) ManualInterrupt() {
	c.mu.Lock()
	if !c.active || (c.state != AIProducing && !c.playback.Playing()) {
		c.mu.Unlock()
		return
	}
	c.setStateLocked(ListenerCapturing)
	c.mu.Unlock()

	metricManualInterrupts.Inc()
	c.playback.Interrupt()
	c.sender.Send(protocol.KindInterruptAI, nil)
	c.event("interrupt_sent", map[string]any{"reason": "manual"})
	c.obs.Speaking(false)
	c.obs.Listening(true)
	c.obs.Status("Listening...")
	c.capture.Start()
}

// SessionEnded tears the turn state down from any state.
func (c *Coordinator) SessionEnded() {
	c.mu.Lock()
	if !c.active {
		c.mu.Unlock()
		return
	}
	c.active = false
	c.setStateLocked(ListenerIdle)
	c.mu.Unlock()

	c.capture.Stop()
	c.playback.Interrupt()
	c.sender.Send(protocol.KindEndSession, nil)
	c.ts.Clear()
	c.event("session_ended", nil)
	c.obs.Listening(false)
	c.obs.Speaking(false)
	c.obs.Status("Session ended")
}

func (c *Coordinator) appendTranscript(speaker transcript.Speaker, text string) transcript.Utterance {
	u := c.ts.Append(speaker, text)
	c.obs.TranscriptAppend(u)
	return u
}

func (c *Coordinator) event(typ string, payload map[string]any) {
	if c.evlog == nil {
		return
	}
	c.mu.Lock()
	sid := c.sessionID
	c.mu.Unlock()
	c.evlog.Append(sid, typ, payload)
}

// setStateLocked records a transition. Caller holds c.mu.
func (c *Coordinator) setStateLocked(to TurnState) {
	if c.state == to {
		return
	}
	metricTurnTransitions.WithLabelValues(string(c.state), string(to)).Inc()
	c.state = to
}
