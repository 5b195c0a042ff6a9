package session

import (
	"context"
	"encoding/base64"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"sona/voice/internal/capture"
	"sona/voice/internal/channel"
	"sona/voice/internal/config"
	"sona/voice/internal/events"
	"sona/voice/internal/floor"
	"sona/voice/internal/playback"
	"sona/voice/internal/protocol"
	"sona/voice/internal/transcript"
)

func waitFor(t *testing.T, d time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out: %s", msg)
}

// backendConn is the fake backend side of one channel connection.
type backendConn struct {
	mu     sync.Mutex
	inbox  chan []byte
	sent   [][]byte
	closed chan struct{}
	once   sync.Once
}

func newBackendConn() *backendConn {
	return &backendConn{inbox: make(chan []byte, 16), closed: make(chan struct{})}
}

func (c *backendConn) Read(ctx context.Context) ([]byte, error) {
	select {
	case b := <-c.inbox:
		return b, nil
	case <-c.closed:
		return nil, errors.New("connection closed")
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *backendConn) Write(ctx context.Context, data []byte) error {
	c.mu.Lock()
	c.sent = append(c.sent, data)
	c.mu.Unlock()
	return nil
}

func (c *backendConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

// inject delivers a backend message to the agent.
func (c *backendConn) inject(t *testing.T, kind string, payload map[string]any) {
	t.Helper()
	b, err := protocol.Encode(protocol.New(kind, "", payload))
	require.NoError(t, err)
	c.inbox <- b
}

func (c *backendConn) sentKinds() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	var kinds []string
	for _, b := range c.sent {
		msg, err := protocol.Decode(b)
		if err != nil {
			continue
		}
		kinds = append(kinds, msg.Type)
	}
	return kinds
}

func (c *backendConn) countKind(kind string) int {
	n := 0
	for _, k := range c.sentKinds() {
		if k == kind {
			n++
		}
	}
	return n
}

type backendDialer struct {
	mu    sync.Mutex
	dials int
	conns []*backendConn
}

func (d *backendDialer) Dial(ctx context.Context) (channel.Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dials++
	c := newBackendConn()
	d.conns = append(d.conns, c)
	return c, nil
}

func (d *backendDialer) dialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

func (d *backendDialer) last() *backendConn {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.conns) == 0 {
		return nil
	}
	return d.conns[len(d.conns)-1]
}

// fakeEngine acknowledges starts and stops synchronously.
type fakeEngine struct {
	mu     sync.Mutex
	hooks  capture.Hooks
	active bool
	nstart int
}

func (e *fakeEngine) SetHooks(h capture.Hooks) {
	e.mu.Lock()
	e.hooks = h
	e.mu.Unlock()
}

func (e *fakeEngine) Start() error {
	e.mu.Lock()
	e.active = true
	e.nstart++
	h := e.hooks
	e.mu.Unlock()
	h.Started()
	return nil
}

func (e *fakeEngine) Stop() {
	e.mu.Lock()
	if !e.active {
		e.mu.Unlock()
		return
	}
	e.active = false
	h := e.hooks
	e.mu.Unlock()
	h.Ended(nil)
}

func (e *fakeEngine) starts() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.nstart
}

func (e *fakeEngine) final(text string) {
	e.mu.Lock()
	h := e.hooks
	e.mu.Unlock()
	h.Final(text)
}

// fakePlayer holds each segment until the test finishes it.
type fakePlayer struct {
	mu    sync.Mutex
	plays int
	stops int
	done  func()
}

func (p *fakePlayer) Play(seg *playback.Segment, tap func(float64), done func()) error {
	p.mu.Lock()
	p.plays++
	p.done = done
	p.mu.Unlock()
	tap(0.4)
	return nil
}

func (p *fakePlayer) Stop() {
	p.mu.Lock()
	p.stops++
	p.done = nil
	p.mu.Unlock()
}

func (p *fakePlayer) finish() {
	p.mu.Lock()
	d := p.done
	p.done = nil
	p.mu.Unlock()
	if d != nil {
		d()
	}
}

func (p *fakePlayer) played() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.plays
}

func (p *fakePlayer) stopped() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stops
}

type recPresenter struct {
	mu       sync.Mutex
	statuses []string
	levels   int
}

func (p *recPresenter) Status(text string) {
	p.mu.Lock()
	p.statuses = append(p.statuses, text)
	p.mu.Unlock()
}

func (p *recPresenter) TranscriptAppend(transcript.Utterance) {}
func (p *recPresenter) Listening(bool)                        {}
func (p *recPresenter) Speaking(bool)                         {}

func (p *recPresenter) Amplitude(float64) {
	p.mu.Lock()
	p.levels++
	p.mu.Unlock()
}

func (p *recPresenter) hasStatus(s string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, got := range p.statuses {
		if got == s {
			return true
		}
	}
	return false
}

type harness struct {
	d    *backendDialer
	ch   *channel.Manager
	eng  *fakeEngine
	pl   *fakePlayer
	pres *recPresenter
	ctl  *Controller
}

func newHarness(t *testing.T, bargeIn bool, mic Microphone) *harness {
	t.Helper()
	d := &backendDialer{}
	ch := channel.NewManager(channel.Options{
		Dialer:      d,
		MaxAttempts: 3,
		Backoff:     5 * time.Millisecond,
		Grace:       30 * time.Millisecond,
	})
	cfg := config.Config{}
	cfg.Capture.RestartDelayMs = 1
	cfg.Capture.StartTimeoutMs = 500
	cfg.Session.BargeIn = bargeIn
	cfg.Voice.Gender = "female"
	cfg.Voice.PerformanceMode = "balanced"

	h := &harness{
		d:    d,
		ch:   ch,
		eng:  &fakeEngine{},
		pl:   &fakePlayer{},
		pres: &recPresenter{},
	}
	h.ctl = NewController(cfg, ch, h.eng, h.pl, mic, h.pres, events.NewLog())
	return h
}

func wavPayload(t *testing.T) string {
	t.Helper()
	return base64.StdEncoding.EncodeToString(playback.EncodeWAV(make([]int16, 800), 16000))
}

func TestSessionLifecycleEndToEnd(t *testing.T) {
	h := newHarness(t, false, nil)
	require.NoError(t, h.ctl.Start(context.Background()))
	require.Equal(t, StateActive, h.ctl.State())
	require.NotEmpty(t, h.ctl.SessionID())

	conn := h.d.last()
	require.NotNil(t, conn)
	waitFor(t, time.Second, func() bool { return conn.countKind(protocol.KindStartSession) == 1 }, "start event sent")
	waitFor(t, time.Second, func() bool { return conn.countKind(protocol.KindSetVoice) >= 1 }, "voice settings pushed")
	waitFor(t, time.Second, func() bool { return h.eng.starts() == 1 }, "capture started")
	require.Equal(t, floor.ListenerCapturing, h.ctl.TurnState())

	h.eng.final("hello world")
	waitFor(t, time.Second, func() bool { return conn.countKind(protocol.KindUserSpeech) == 1 }, "utterance relayed")
	require.Equal(t, floor.AIProducing, h.ctl.TurnState())

	conn.inject(t, protocol.KindAIResponse, map[string]any{"text": "Hi there"})
	waitFor(t, time.Second, func() bool { return h.ctl.Transcript().Len() == 2 }, "reply recorded")
	got := h.ctl.Transcript().List()
	require.Equal(t, transcript.SpeakerUser, got[0].Speaker)
	require.Equal(t, "hello world", got[0].Text)
	require.Equal(t, transcript.SpeakerAI, got[1].Speaker)

	conn.inject(t, protocol.KindAIAudio, map[string]any{"audio_b64": wavPayload(t)})
	waitFor(t, time.Second, func() bool { return h.pl.played() == 1 }, "audio played")

	// Backend readiness while audio still plays must not restart capture.
	conn.inject(t, protocol.KindReadyToListen, nil)
	time.Sleep(20 * time.Millisecond)
	require.Equal(t, floor.AIProducing, h.ctl.TurnState())
	require.Equal(t, 1, h.eng.starts())

	h.pl.finish()
	waitFor(t, time.Second, func() bool { return h.eng.starts() == 2 }, "capture restarted after playback")
	require.Equal(t, floor.ListenerCapturing, h.ctl.TurnState())

	require.NoError(t, h.ctl.End())
	require.Equal(t, StateIdle, h.ctl.State())
	waitFor(t, time.Second, func() bool { return conn.countKind(protocol.KindEndSession) == 1 }, "end event sent")
	require.Equal(t, 0, h.ctl.Transcript().Len())
	waitFor(t, time.Second, func() bool { return h.ch.State() == channel.StateDisconnected }, "channel torn down after grace")
}

func TestBargeInInterruptsProduction(t *testing.T) {
	h := newHarness(t, true, nil)
	require.NoError(t, h.ctl.Start(context.Background()))
	conn := h.d.last()
	require.NotNil(t, conn)
	waitFor(t, time.Second, func() bool { return h.eng.starts() == 1 }, "capture started")

	h.eng.final("hello")
	waitFor(t, time.Second, func() bool { return conn.countKind(protocol.KindUserSpeech) == 1 }, "utterance relayed")
	// Capture keeps running with barge-in enabled.
	require.Equal(t, 1, h.eng.starts())

	conn.inject(t, protocol.KindAIAudio, map[string]any{"audio_b64": wavPayload(t)})
	waitFor(t, time.Second, func() bool { return h.pl.played() == 1 }, "audio playing")

	h.eng.final("wait, stop")
	waitFor(t, time.Second, func() bool { return conn.countKind(protocol.KindUserSpeech) == 2 }, "barge-in relayed")
	require.Equal(t, 1, conn.countKind(protocol.KindInterruptAI))
	require.Equal(t, 1, h.pl.stopped())

	kinds := conn.sentKinds()
	interruptAt, lastSpeechAt := -1, -1
	for i, k := range kinds {
		if k == protocol.KindInterruptAI && interruptAt == -1 {
			interruptAt = i
		}
		if k == protocol.KindUserSpeech {
			lastSpeechAt = i
		}
	}
	require.Less(t, interruptAt, lastSpeechAt, "interrupt must precede the relayed phrase")

	require.NoError(t, h.ctl.End())
}

func TestManualInterruptReturnsFloorToListener(t *testing.T) {
	h := newHarness(t, false, nil)
	require.NoError(t, h.ctl.Start(context.Background()))
	conn := h.d.last()
	waitFor(t, time.Second, func() bool { return h.eng.starts() == 1 }, "capture started")

	h.eng.final("tell me a story")
	conn.inject(t, protocol.KindAIAudio, map[string]any{"audio_b64": wavPayload(t)})
	waitFor(t, time.Second, func() bool { return h.pl.played() == 1 }, "audio playing")

	h.ctl.ManualInterrupt()
	waitFor(t, time.Second, func() bool { return conn.countKind(protocol.KindInterruptAI) == 1 }, "interrupt sent")
	require.Equal(t, 1, h.pl.stopped())
	waitFor(t, time.Second, func() bool { return h.ctl.TurnState() == floor.ListenerCapturing }, "floor back to listener")

	require.NoError(t, h.ctl.End())
}

func TestEndIsIdempotent(t *testing.T) {
	h := newHarness(t, false, nil)
	require.NoError(t, h.ctl.Start(context.Background()))
	conn := h.d.last()
	waitFor(t, time.Second, func() bool { return conn.countKind(protocol.KindStartSession) == 1 }, "start event sent")

	require.NoError(t, h.ctl.End())
	require.NoError(t, h.ctl.End())
	require.NoError(t, h.ctl.End())

	waitFor(t, time.Second, func() bool { return conn.countKind(protocol.KindEndSession) == 1 }, "end event sent")
	time.Sleep(20 * time.Millisecond)
	require.Equal(t, 1, conn.countKind(protocol.KindEndSession))
	require.Equal(t, StateIdle, h.ctl.State())
}

func TestStartWhileActiveRejected(t *testing.T) {
	h := newHarness(t, false, nil)
	require.NoError(t, h.ctl.Start(context.Background()))
	require.ErrorIs(t, h.ctl.Start(context.Background()), ErrSessionActive)
	require.NoError(t, h.ctl.End())
}

func TestMicrophoneDeniedAbortsStart(t *testing.T) {
	h := newHarness(t, false, DeniedMicrophone{})
	err := h.ctl.Start(context.Background())
	require.ErrorIs(t, err, ErrMicrophoneAccessDenied)
	require.Equal(t, StateIdle, h.ctl.State())
	require.Equal(t, 0, h.d.dialCount())
	require.True(t, h.pres.hasStatus("Microphone access denied"))
}

func TestNilEngineIsTerminalForSession(t *testing.T) {
	h := newHarness(t, false, nil)
	h.ctl.engine = nil
	err := h.ctl.Start(context.Background())
	require.ErrorIs(t, err, capture.ErrCapabilityUnavailable)
	require.Equal(t, StateIdle, h.ctl.State())
	require.Equal(t, 0, h.d.dialCount())
}

func TestAmplitudeFeedReachesPresenter(t *testing.T) {
	h := newHarness(t, false, nil)
	require.NoError(t, h.ctl.Start(context.Background()))
	conn := h.d.last()
	waitFor(t, time.Second, func() bool { return h.eng.starts() == 1 }, "capture started")

	h.eng.final("hi")
	conn.inject(t, protocol.KindAIAudio, map[string]any{"audio_b64": wavPayload(t)})
	waitFor(t, time.Second, func() bool {
		h.pres.mu.Lock()
		defer h.pres.mu.Unlock()
		return h.pres.levels > 0
	}, "amplitude forwarded")

	require.NoError(t, h.ctl.End())
}

func TestVoiceSettingsUpdate(t *testing.T) {
	h := newHarness(t, false, nil)
	require.NoError(t, h.ctl.Start(context.Background()))
	conn := h.d.last()
	waitFor(t, time.Second, func() bool { return conn.countKind(protocol.KindSetVoice) == 1 }, "initial settings pushed")

	h.ctl.SetVoice("male", "quality")
	waitFor(t, time.Second, func() bool { return conn.countKind(protocol.KindSetVoice) == 2 }, "updated settings pushed")
	g, m := h.ctl.Voice()
	require.Equal(t, "male", g)
	require.Equal(t, "quality", m)

	require.NoError(t, h.ctl.End())
}
