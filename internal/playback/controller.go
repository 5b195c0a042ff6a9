package playback

import (
	"log"
	"sync"
)

// Player is the local audio-output engine. Play must call done exactly once
// when the segment finishes on its own; Stop halts without calling done.
// The tap receives live amplitude for visualization.
type Player interface {
	Play(seg *Segment, tap func(level float64), done func()) error
	Stop()
}

// Controller guarantees at most one active playback source. Starting a new
// segment stops and discards the current one; superseded segments are never
// queued.
type Controller struct {
	player Player

	mu      sync.Mutex
	playing bool
	gen     int

	onEnded func()
	onLevel func(level float64)
}

func NewController(player Player) *Controller {
	return &Controller{player: player}
}

// OnPlaybackEnded registers the natural-completion handler. Interruption does
// not fire it: the caller already knows why playback stopped.
func (c *Controller) OnPlaybackEnded(fn func()) {
	c.mu.Lock()
	c.onEnded = fn
	c.mu.Unlock()
}

// OnLevel registers the amplitude tap for visualization.
func (c *Controller) OnLevel(fn func(level float64)) {
	c.mu.Lock()
	c.onLevel = fn
	c.mu.Unlock()
}

func (c *Controller) Playing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.playing
}

// Play decodes the payload and begins playback, stopping any current segment
// first. Returns immediately; completion is signaled via OnPlaybackEnded.
func (c *Controller) Play(audioB64 string) error {
	seg, err := DecodeSegment(audioB64)
	if err != nil {
		metricDecodeFailures.Inc()
		log.Printf("[playback] skipping segment: %v", err)
		return err
	}

	c.mu.Lock()
	wasPlaying := c.playing
	c.gen++
	gen := c.gen
	c.playing = true
	tap := c.onLevel
	c.mu.Unlock()

	if wasPlaying {
		c.player.Stop()
		metricSuperseded.Inc()
	}

	err = c.player.Play(seg, func(level float64) {
		if tap != nil {
			tap(level)
		}
	}, func() {
		c.playbackDone(gen)
	})
	if err != nil {
		c.mu.Lock()
		if gen == c.gen {
			c.playing = false
		}
		c.mu.Unlock()
		log.Printf("[playback] player rejected segment %s: %v", seg.ID, err)
		return err
	}
	metricSegments.Inc()
	return nil
}

// Interrupt stops the active source immediately; idempotent when nothing is
// playing. The ended handler is deliberately not fired.
func (c *Controller) Interrupt() {
	c.mu.Lock()
	if !c.playing {
		c.mu.Unlock()
		return
	}
	c.playing = false
	c.gen++
	c.mu.Unlock()

	c.player.Stop()
	metricInterrupts.Inc()
	log.Printf("[playback] interrupted")
}

// playbackDone handles natural completion of a segment generation. Stale
// generations (superseded or interrupted) are ignored, so the ended handler
// fires at most once per segment.
func (c *Controller) playbackDone(gen int) {
	c.mu.Lock()
	if gen != c.gen || !c.playing {
		c.mu.Unlock()
		return
	}
	c.playing = false
	fn := c.onEnded
	c.mu.Unlock()

	metricCompleted.Inc()
	if fn != nil {
		fn()
	}
}
