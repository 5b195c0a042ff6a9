package channel

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"sona/voice/internal/protocol"
)

// State is the connection state of the backend channel. Transitions are driven
// only by transport outcomes, never by application logic directly.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateReconnecting State = "reconnecting"
	StateFailed       State = "failed"
)

// ErrConnectionFailed is surfaced through the error hook after reconnect
// attempts are exhausted. The channel stays Failed until a fresh Acquire.
var ErrConnectionFailed = errors.New("backend unreachable: reconnect attempts exhausted")

// Conn is one established transport connection.
type Conn interface {
	Read(ctx context.Context) ([]byte, error)
	Write(ctx context.Context, data []byte) error
	Close() error
}

// Dialer establishes transport connections to the backend.
type Dialer interface {
	Dial(ctx context.Context) (Conn, error)
}

type Options struct {
	Dialer      Dialer
	MaxAttempts int           // reconnect attempts before Failed
	Backoff     time.Duration // fixed delay between attempts
	Grace       time.Duration // teardown delay after last Release
	QueueSize   int           // outbound send queue depth
}

// Manager owns the one persistent backend connection, shared across consumers
// by reference count. Teardown happens only after the count returns to zero
// and the grace window elapses with no new acquirer.
type Manager struct {
	mu   sync.Mutex
	opts Options

	refs       int
	state      State
	attempt    int
	gen        int
	cancel     context.CancelFunc
	sendQ      chan []byte
	graceTimer *time.Timer
	sessionID  string

	// Single-subscriber hook slots; registering replaces the previous handler.
	onText  func(text string)
	onAudio func(audioB64 string)
	onReady func()
	onErr   func(err error)
}

func NewManager(opts Options) *Manager {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 5
	}
	if opts.Backoff <= 0 {
		opts.Backoff = 1500 * time.Millisecond
	}
	if opts.Grace <= 0 {
		opts.Grace = 2 * time.Second
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 32
	}
	return &Manager{opts: opts, state: StateDisconnected}
}

// Acquire registers a consumer. The first acquisition establishes the
// connection; concurrent acquisitions reuse the in-flight attempt. An Acquire
// arriving during the grace window cancels the pending teardown.
func (m *Manager) Acquire() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.refs++
	if m.graceTimer != nil {
		m.graceTimer.Stop()
		m.graceTimer = nil
	}
	if m.state == StateDisconnected || m.state == StateFailed {
		m.startLocked()
	}
}

// Release deregisters a consumer. When the count reaches zero, teardown is
// deferred by the grace window to absorb rapid re-acquisition.
func (m *Manager) Release() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.refs == 0 {
		return
	}
	m.refs--
	if m.refs > 0 || m.state == StateDisconnected {
		return
	}
	gen := m.gen
	m.graceTimer = time.AfterFunc(m.opts.Grace, func() { m.teardown(gen) })
}

// Send enqueues a message for transmission. Returns false without queueing
// when the channel is not Connected; no retry, no buffering across outages.
func (m *Manager) Send(kind string, payload map[string]any) bool {
	m.mu.Lock()
	if m.state != StateConnected {
		m.mu.Unlock()
		metricSendRejected.Inc()
		return false
	}
	q := m.sendQ
	sid := m.sessionID
	m.mu.Unlock()

	b, err := protocol.Encode(protocol.New(kind, sid, payload))
	if err != nil {
		metricSendRejected.Inc()
		return false
	}
	select {
	case q <- b:
		return true
	default:
		metricSendDropped.Inc()
		return false
	}
}

// SetSessionID stamps subsequent outbound messages with the session ID.
func (m *Manager) SetSessionID(id string) {
	m.mu.Lock()
	m.sessionID = id
	m.mu.Unlock()
}

func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Attempt reports the current reconnect attempt number, zero when not
// reconnecting.
func (m *Manager) Attempt() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.attempt
}

func (m *Manager) OnTextReply(fn func(text string)) {
	m.mu.Lock()
	m.onText = fn
	m.mu.Unlock()
}

func (m *Manager) OnAudioReply(fn func(audioB64 string)) {
	m.mu.Lock()
	m.onAudio = fn
	m.mu.Unlock()
}

func (m *Manager) OnReadySignal(fn func()) {
	m.mu.Lock()
	m.onReady = fn
	m.mu.Unlock()
}

func (m *Manager) OnChannelError(fn func(err error)) {
	m.mu.Lock()
	m.onErr = fn
	m.mu.Unlock()
}

// startLocked begins a new connection generation. Caller holds m.mu.
func (m *Manager) startLocked() {
	m.gen++
	gen := m.gen
	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.sendQ = make(chan []byte, m.opts.QueueSize)
	m.setStateLocked(StateConnecting)
	go m.run(ctx, gen)
}

// teardown closes the connection for a generation unless a new consumer
// acquired in the meantime or a newer generation replaced it.
func (m *Manager) teardown(gen int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if gen != m.gen || m.refs > 0 {
		return
	}
	m.graceTimer = nil
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
	m.setStateLocked(StateDisconnected)
	log.Printf("[channel] torn down after grace window")
}

// run dials, pumps, and redials until the context is cancelled or attempts
// are exhausted.
func (m *Manager) run(ctx context.Context, gen int) {
	attempt := 0
	connected := false
	for {
		if ctx.Err() != nil {
			return
		}
		if attempt > 0 || connected {
			m.setState(gen, StateReconnecting)
		}
		conn, err := m.opts.Dialer.Dial(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			attempt++
			m.setAttempt(gen, attempt)
			metricConnectAttempts.Inc()
			log.Printf("[channel] connect attempt %d failed: %v", attempt, err)
			if attempt >= m.opts.MaxAttempts {
				m.fail(gen)
				return
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(m.opts.Backoff):
			}
			continue
		}
		attempt = 0
		m.setAttempt(gen, 0)
		connected = true
		metricConnects.Inc()
		m.setState(gen, StateConnected)
		err = m.pump(ctx, conn)
		_ = conn.Close()
		if ctx.Err() != nil {
			return
		}
		log.Printf("[channel] connection dropped: %v", err)
		m.hookError(fmt.Errorf("connection dropped: %w", err))
	}
}

// pump runs the writer goroutine and the reader loop for one live connection.
// Returns the reader error that ended the connection.
func (m *Manager) pump(ctx context.Context, conn Conn) error {
	m.mu.Lock()
	sendQ := m.sendQ
	m.mu.Unlock()

	wctx, wcancel := context.WithCancel(ctx)
	defer wcancel()
	go func() {
		for {
			select {
			case <-wctx.Done():
				return
			case b := <-sendQ:
				if err := conn.Write(wctx, b); err != nil {
					log.Printf("[channel] write error: %v", err)
					return
				}
				metricMessagesSent.Inc()
			}
		}
	}()

	for {
		data, err := conn.Read(ctx)
		if err != nil {
			return err
		}
		m.dispatch(data)
	}
}

// dispatch routes one inbound frame to the registered hook, if any.
func (m *Manager) dispatch(data []byte) {
	msg, err := protocol.Decode(data)
	if err != nil {
		log.Printf("[channel] invalid inbound frame: %v", err)
		return
	}
	metricMessagesReceived.WithLabelValues(msg.Type).Inc()

	m.mu.Lock()
	onText, onAudio, onReady, onErr := m.onText, m.onAudio, m.onReady, m.onErr
	m.mu.Unlock()

	switch msg.Type {
	case protocol.KindAIResponse:
		if onText != nil {
			onText(msg.Text())
		}
	case protocol.KindAIAudio:
		if onAudio != nil {
			onAudio(msg.AudioB64())
		}
	case protocol.KindReadyToListen:
		if onReady != nil {
			onReady()
		}
	case protocol.KindError:
		if onErr != nil {
			onErr(fmt.Errorf("backend error: %s", msg.ErrorMessage()))
		}
	default:
		// Ignore unknown kinds for forward compatibility
	}
}

func (m *Manager) fail(gen int) {
	m.mu.Lock()
	if gen != m.gen {
		m.mu.Unlock()
		return
	}
	m.setStateLocked(StateFailed)
	m.mu.Unlock()
	m.hookError(ErrConnectionFailed)
}

func (m *Manager) hookError(err error) {
	m.mu.Lock()
	fn := m.onErr
	m.mu.Unlock()
	if fn != nil {
		fn(err)
	}
}

func (m *Manager) setAttempt(gen, n int) {
	m.mu.Lock()
	if gen == m.gen {
		m.attempt = n
	}
	m.mu.Unlock()
}

func (m *Manager) setState(gen int, s State) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if gen != m.gen {
		return
	}
	m.setStateLocked(s)
}

// setStateLocked records a state transition. Caller holds m.mu.
func (m *Manager) setStateLocked(s State) {
	if m.state == s {
		return
	}
	metricStateTransitions.WithLabelValues(string(m.state), string(s)).Inc()
	m.state = s
}
