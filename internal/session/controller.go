// Package session owns the top-level session lifecycle: microphone
// acquisition, component wiring, and the start/end/interrupt surface exposed
// to presentation.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"sona/voice/internal/capture"
	"sona/voice/internal/channel"
	"sona/voice/internal/config"
	"sona/voice/internal/events"
	"sona/voice/internal/floor"
	"sona/voice/internal/playback"
	"sona/voice/internal/protocol"
	"sona/voice/internal/transcript"
)

// State is the session lifecycle state. An Active session owns exactly one
// microphone stream and zero-or-one recognition-in-flight.
type State string

const (
	StateIdle   State = "idle"
	StateActive State = "active"
	StateEnding State = "ending"
)

var (
	ErrSessionActive          = errors.New("session already active")
	ErrMicrophoneAccessDenied = errors.New("microphone access denied")
)

// Controller wires the channel, capture, playback and turn-taking components
// for the lifetime of one session.
type Controller struct {
	cfg    config.Config
	ch     *channel.Manager
	engine capture.Engine
	player playback.Player
	mic    Microphone
	pres   Presenter
	evlog  *events.Log
	ts     *transcript.Store

	mu           sync.Mutex
	state        State
	sessionID    string
	bargeIn      bool
	voiceGender  string
	voiceMode    string
	micStream    io.Closer
	coord        *floor.Coordinator
	capCtl       *capture.Controller
	pbCtl        *playback.Controller
	recoverTimer *time.Timer
}

func NewController(cfg config.Config, ch *channel.Manager, engine capture.Engine, player playback.Player, mic Microphone, pres Presenter, evlog *events.Log) *Controller {
	if pres == nil {
		pres = NopPresenter{}
	}
	if mic == nil {
		mic = GrantedMicrophone{}
	}
	return &Controller{
		cfg:         cfg,
		ch:          ch,
		engine:      engine,
		player:      player,
		mic:         mic,
		pres:        pres,
		evlog:       evlog,
		ts:          transcript.NewStore(),
		state:       StateIdle,
		bargeIn:     cfg.Session.BargeIn,
		voiceGender: cfg.Voice.Gender,
		voiceMode:   cfg.Voice.PerformanceMode,
	}
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Controller) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

// Transcript exposes the session transcript to the status surface.
func (c *Controller) Transcript() *transcript.Store { return c.ts }

// TurnState reports the coordinator state, ListenerIdle outside a session.
func (c *Controller) TurnState() floor.TurnState {
	c.mu.Lock()
	coord := c.coord
	c.mu.Unlock()
	if coord == nil {
		return floor.ListenerIdle
	}
	return coord.State()
}

// Start acquires the microphone, brings up the channel and hands the floor to
// the listener. A denied microphone terminates the attempt.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.state != StateIdle {
		c.mu.Unlock()
		return ErrSessionActive
	}
	c.state = StateActive // claimed; rolled back on failure below
	c.mu.Unlock()

	stream, err := c.mic.Acquire(ctx)
	if err != nil {
		c.mu.Lock()
		c.state = StateIdle
		c.mu.Unlock()
		metricMicDenied.Inc()
		c.pres.Status("Microphone access denied")
		c.evlog.Append("", "mic_denied", map[string]any{"error": err.Error()})
		if errors.Is(err, ErrMicrophoneAccessDenied) {
			return err
		}
		return fmt.Errorf("%w: %v", ErrMicrophoneAccessDenied, err)
	}

	capCtl, err := capture.NewController(c.engine,
		time.Duration(c.cfg.Capture.RestartDelayMs)*time.Millisecond,
		time.Duration(c.cfg.Capture.StartTimeoutMs)*time.Millisecond)
	if err != nil {
		// Capability errors are terminal for the session, reported once.
		_ = stream.Close()
		c.mu.Lock()
		c.state = StateIdle
		c.mu.Unlock()
		c.pres.Status("Speech recognition is not available")
		c.evlog.Append("", "capability_unavailable", map[string]any{"error": err.Error()})
		return err
	}

	sid := uuid.New().String()
	pbCtl := playback.NewController(c.player)
	pbCtl.OnLevel(c.pres.Amplitude)

	coord := floor.New(capCtl, pbCtl, c.ch, presenterObserver{c.pres}, c.ts, c.evlog)

	c.mu.Lock()
	coordBargeIn := c.bargeIn
	c.sessionID = sid
	c.micStream = stream
	c.coord = coord
	c.capCtl = capCtl
	c.pbCtl = pbCtl
	c.mu.Unlock()

	coord.SetBargeIn(coordBargeIn)
	capCtl.SetGate(coord.CaptureAllowed)
	capCtl.OnUtterance(coord.UtteranceFinalized)
	capCtl.OnCaptureEnded(coord.CaptureEnded)
	pbCtl.OnPlaybackEnded(coord.PlaybackEnded)

	c.ch.OnTextReply(coord.TextReply)
	c.ch.OnAudioReply(coord.AudioReply)
	c.ch.OnReadySignal(coord.ReadySignal)
	c.ch.OnChannelError(c.channelError)

	c.pres.Status("Connecting...")
	c.ch.Acquire()
	c.ch.SetSessionID(sid)
	c.awaitChannel(ctx)

	metricSessionsStarted.Inc()
	c.evlog.Append(sid, "session_started", nil)
	log.Printf("[session] started id=%s", sid)

	if !c.ch.Send(protocol.KindStartSession, nil) {
		log.Printf("[session] start event not sent: channel %s", c.ch.State())
	}
	c.ch.Send(protocol.KindSetVoice, map[string]any{
		"gender":           c.voiceGender,
		"performance_mode": c.voiceMode,
	})
	coord.SessionStarted(sid)
	return nil
}

// End tears the session down. Idempotent: a second call is a no-op and sends
// no duplicate end event.
func (c *Controller) End() error {
	c.mu.Lock()
	if c.state != StateActive {
		c.mu.Unlock()
		return nil
	}
	c.state = StateEnding
	coord := c.coord
	stream := c.micStream
	sid := c.sessionID
	c.mu.Unlock()

	coord.SessionEnded()
	if stream != nil {
		_ = stream.Close()
	}
	c.ch.Release()

	c.mu.Lock()
	c.state = StateIdle
	c.micStream = nil
	c.coord = nil
	c.capCtl = nil
	c.pbCtl = nil
	c.mu.Unlock()

	metricSessionsEnded.Inc()
	c.evlog.Append(sid, "session_ended", nil)
	log.Printf("[session] ended id=%s", sid)
	return nil
}

// ManualInterrupt stops AI speech on explicit user request.
func (c *Controller) ManualInterrupt() {
	c.mu.Lock()
	coord := c.coord
	active := c.state == StateActive
	c.mu.Unlock()
	if active && coord != nil {
		coord.ManualInterrupt()
	}
}

func (c *Controller) SetBargeInEnabled(enabled bool) {
	c.mu.Lock()
	c.bargeIn = enabled
	coord := c.coord
	c.mu.Unlock()
	if coord != nil {
		coord.SetBargeIn(enabled)
	}
}

func (c *Controller) BargeInEnabled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.bargeIn
}

// Voice reports the current voice settings.
func (c *Controller) Voice() (gender, performanceMode string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.voiceGender, c.voiceMode
}

// SetVoice updates voice settings and pushes them to the backend when
// connected.
func (c *Controller) SetVoice(gender, performanceMode string) {
	c.mu.Lock()
	if gender != "" {
		c.voiceGender = gender
	}
	if performanceMode != "" {
		c.voiceMode = performanceMode
	}
	g, m := c.voiceGender, c.voiceMode
	c.mu.Unlock()
	c.ch.Send(protocol.KindSetVoice, map[string]any{
		"gender":           g,
		"performance_mode": m,
	})
}

// awaitChannel waits briefly for the channel to come up so the session start
// event is not lost; sends are never queued across outages.
func (c *Controller) awaitChannel(ctx context.Context) {
	deadline := time.Now().Add(5 * time.Second)
	for c.ch.State() != channel.StateConnected {
		if ctx.Err() != nil || time.Now().After(deadline) {
			return
		}
		st := c.ch.State()
		if st == channel.StateFailed {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
}

// channelError surfaces transport errors as status text. Terminal failures
// stay; transient ones get an automatic recovery notice.
func (c *Controller) channelError(err error) {
	c.evlog.Append(c.SessionID(), "channel_error", map[string]any{"error": err.Error()})
	if errors.Is(err, channel.ErrConnectionFailed) {
		c.pres.Status("Connection lost")
		return
	}
	c.pres.Status("Connection trouble, reconnecting...")
	c.mu.Lock()
	if c.recoverTimer != nil {
		c.recoverTimer.Stop()
	}
	c.recoverTimer = time.AfterFunc(2*time.Second, func() {
		if c.ch.State() == channel.StateConnected {
			c.pres.Status("Connection recovered")
		}
	})
	c.mu.Unlock()
}
