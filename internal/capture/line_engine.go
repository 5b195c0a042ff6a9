package capture

import (
	"bufio"
	"errors"
	"io"
	"sync"
)

// LineEngine is a development engine: while a recognition session is active,
// each line read from r is reported as one finalized phrase. Lines arriving
// outside a session are discarded, mirroring a real engine that only
// recognizes while capturing.
type LineEngine struct {
	r io.Reader

	mu      sync.Mutex
	hooks   Hooks
	active  bool
	reading bool
}

func NewLineEngine(r io.Reader) *LineEngine {
	return &LineEngine{r: r}
}

func (e *LineEngine) SetHooks(h Hooks) {
	e.mu.Lock()
	e.hooks = h
	e.mu.Unlock()
}

func (e *LineEngine) Start() error {
	e.mu.Lock()
	if e.active {
		e.mu.Unlock()
		return errors.New("recognition already started")
	}
	e.active = true
	if !e.reading {
		e.reading = true
		go e.readLoop()
	}
	h := e.hooks
	e.mu.Unlock()

	if h.Started != nil {
		h.Started()
	}
	return nil
}

func (e *LineEngine) Stop() {
	e.mu.Lock()
	if !e.active {
		e.mu.Unlock()
		return
	}
	e.active = false
	h := e.hooks
	e.mu.Unlock()

	if h.Ended != nil {
		h.Ended(nil)
	}
}

func (e *LineEngine) readLoop() {
	sc := bufio.NewScanner(e.r)
	for sc.Scan() {
		line := sc.Text()
		e.mu.Lock()
		active := e.active
		h := e.hooks
		e.mu.Unlock()
		if active && h.Final != nil {
			h.Final(line)
		}
	}
}
