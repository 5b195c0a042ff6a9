package capture

import (
	"errors"
	"log"
	"strings"
	"sync"
	"time"
)

// ErrCapabilityUnavailable is returned once at construction when no
// recognition engine is present; capture stays unavailable for the session.
var ErrCapabilityUnavailable = errors.New("speech recognition engine unavailable")

// Engine is the local continuous speech-recognition engine. Implementations
// report lifecycle asynchronously through hooks registered once at wiring
// time. Engines reject overlapping start/stop calls, which is why the
// Controller serializes them.
type Engine interface {
	SetHooks(h Hooks)
	// Start begins a recognition session. Readiness is signaled via
	// Hooks.Started; a synchronous error means the attempt never began.
	Start() error
	// Stop requests cessation; completion is signaled via Hooks.Ended.
	Stop()
}

// Hooks are the callbacks an Engine drives.
type Hooks struct {
	Started func()
	Final   func(text string) // one call per finalized phrase
	Ended   func(err error)   // any stop: explicit, natural end, or error
}

// Controller enforces at most one active recognition session and safe
// start/stop sequencing over the engine.
type Controller struct {
	engine       Engine
	restartDelay time.Duration
	startTimeout time.Duration

	mu           sync.Mutex
	capturing    bool
	starting     bool
	lastEnded    time.Time
	startGuard   *time.Timer
	pendingStart *time.Timer
	gate         func() bool

	onUtterance func(text string)
	onEnded     func()
}

func NewController(engine Engine, restartDelay, startTimeout time.Duration) (*Controller, error) {
	if engine == nil {
		return nil, ErrCapabilityUnavailable
	}
	if restartDelay <= 0 {
		restartDelay = 250 * time.Millisecond
	}
	if startTimeout <= 0 {
		startTimeout = 3 * time.Second
	}
	c := &Controller{engine: engine, restartDelay: restartDelay, startTimeout: startTimeout}
	engine.SetHooks(Hooks{
		Started: c.engineStarted,
		Final:   c.engineFinal,
		Ended:   c.engineEnded,
	})
	return c, nil
}

// SetGate installs a policy check consulted before every start attempt.
func (c *Controller) SetGate(fn func() bool) {
	c.mu.Lock()
	c.gate = fn
	c.mu.Unlock()
}

// OnUtterance registers the finalized-phrase handler. Interim results are
// never surfaced.
func (c *Controller) OnUtterance(fn func(text string)) {
	c.mu.Lock()
	c.onUtterance = fn
	c.mu.Unlock()
}

// OnCaptureEnded registers the handler fired whenever the engine stops for
// any reason.
func (c *Controller) OnCaptureEnded(fn func()) {
	c.mu.Lock()
	c.onEnded = fn
	c.mu.Unlock()
}

func (c *Controller) Capturing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.capturing
}

// Start begins capture. No-op when already capturing, when a start is in
// flight, or when the gate forbids it. A settle delay is applied after the
// previous session ended because engines error on overlapping calls.
func (c *Controller) Start() {
	c.mu.Lock()
	if c.capturing || c.starting {
		c.mu.Unlock()
		metricStartBlocked.Inc()
		return
	}
	if c.gate != nil && !c.gate() {
		c.mu.Unlock()
		metricStartGated.Inc()
		return
	}
	if settle := c.restartDelay - time.Since(c.lastEnded); settle > 0 {
		if c.pendingStart == nil {
			c.pendingStart = time.AfterFunc(settle, func() {
				c.mu.Lock()
				c.pendingStart = nil
				c.mu.Unlock()
				c.Start()
			})
		}
		c.mu.Unlock()
		return
	}
	c.starting = true
	c.startGuard = time.AfterFunc(c.startTimeout, c.clearStartGuard)
	c.mu.Unlock()

	if err := c.engine.Start(); err != nil {
		log.Printf("[capture] engine start rejected: %v", err)
		metricEngineErrors.Inc()
		c.mu.Lock()
		c.starting = false
		c.stopGuardLocked()
		c.mu.Unlock()
	}
}

// Stop requests cessation; tolerates being called when not capturing.
func (c *Controller) Stop() {
	c.mu.Lock()
	if c.pendingStart != nil {
		c.pendingStart.Stop()
		c.pendingStart = nil
	}
	active := c.capturing || c.starting
	c.mu.Unlock()
	if active {
		c.engine.Stop()
	}
}

// clearStartGuard frees the single-flight lock when the engine never calls
// back, preventing a permanent deadlock.
func (c *Controller) clearStartGuard() {
	c.mu.Lock()
	stuck := c.starting
	c.starting = false
	c.startGuard = nil
	c.mu.Unlock()
	if stuck {
		log.Printf("[capture] start guard timed out waiting for engine")
		metricStartTimeouts.Inc()
	}
}

func (c *Controller) engineStarted() {
	c.mu.Lock()
	c.starting = false
	c.capturing = true
	c.stopGuardLocked()
	c.mu.Unlock()
	metricStarts.Inc()
	log.Printf("[capture] recognition session started")
}

func (c *Controller) engineFinal(text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	c.mu.Lock()
	fn := c.onUtterance
	c.mu.Unlock()
	metricFinals.Inc()
	if fn != nil {
		fn(text)
	}
}

func (c *Controller) engineEnded(err error) {
	c.mu.Lock()
	wasActive := c.capturing || c.starting
	c.capturing = false
	c.starting = false
	c.stopGuardLocked()
	c.lastEnded = time.Now()
	fn := c.onEnded
	c.mu.Unlock()

	if err != nil {
		// Transient engine hiccups are absorbed; the restart policy recovers.
		log.Printf("[capture] recognition ended with error: %v", err)
		metricEngineErrors.Inc()
	}
	if wasActive && fn != nil {
		fn()
	}
}

// stopGuardLocked cancels the start-guard timer. Caller holds c.mu.
func (c *Controller) stopGuardLocked() {
	if c.startGuard != nil {
		c.startGuard.Stop()
		c.startGuard = nil
	}
}
