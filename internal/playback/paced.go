package playback

import (
	"math"
	"sync"
	"time"
)

// PacedPlayer is a development player: it discards samples but paces itself
// to the segment's real duration, feeding the amplitude tap from the PCM so
// visualization behaves as it would with a sound device.
type PacedPlayer struct {
	// TapInterval controls how often amplitude is reported. Zero means 50ms.
	TapInterval time.Duration

	mu   sync.Mutex
	stop chan struct{}
}

func NewPacedPlayer() *PacedPlayer { return &PacedPlayer{} }

func (p *PacedPlayer) Play(seg *Segment, tap func(level float64), done func()) error {
	interval := p.TapInterval
	if interval <= 0 {
		interval = 50 * time.Millisecond
	}

	p.mu.Lock()
	stop := make(chan struct{})
	p.stop = stop
	p.mu.Unlock()

	go func() {
		total := seg.Duration()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		deadline := time.After(total)
		elapsed := time.Duration(0)
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				elapsed += interval
				if tap != nil {
					tap(chunkRMS(seg, elapsed, interval))
				}
			case <-deadline:
				done()
				return
			}
		}
	}()
	return nil
}

func (p *PacedPlayer) Stop() {
	p.mu.Lock()
	if p.stop != nil {
		close(p.stop)
		p.stop = nil
	}
	p.mu.Unlock()
}

// chunkRMS computes RMS over the PCM16 window covering one tap interval.
func chunkRMS(seg *Segment, elapsed, window time.Duration) float64 {
	if seg.SampleRate <= 0 || len(seg.PCM) < 2 {
		return 0
	}
	bytesPerSec := seg.SampleRate * seg.Channels * 2
	start := int(elapsed.Seconds() * float64(bytesPerSec))
	end := start + int(window.Seconds()*float64(bytesPerSec))
	if start >= len(seg.PCM) {
		return 0
	}
	if end > len(seg.PCM) {
		end = len(seg.PCM)
	}
	start -= start % 2
	end -= end % 2
	var sum float64
	n := (end - start) / 2
	if n <= 0 {
		return 0
	}
	for i := 0; i < n; i++ {
		sample := int16(uint16(seg.PCM[start+i*2]) | uint16(seg.PCM[start+i*2+1])<<8)
		sum += float64(sample) * float64(sample)
	}
	return math.Sqrt(sum / float64(n))
}
