// Command test-e2e runs the full session loop against an in-process fake
// backend: start, one exchange, a barge-in, and teardown. Useful for
// eyeballing the turn-taking flow without a real backend.
package main

import (
	"context"
	"encoding/base64"
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"sync"
	"time"

	"nhooyr.io/websocket"

	"sona/voice/internal/capture"
	"sona/voice/internal/channel"
	"sona/voice/internal/config"
	"sona/voice/internal/events"
	"sona/voice/internal/playback"
	"sona/voice/internal/protocol"
	"sona/voice/internal/session"
	"sona/voice/internal/transcript"
)

func main() {
	timeout := flag.Duration("timeout", 30*time.Second, "Overall test timeout")
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	fmt.Printf("=== E2E Session Test ===\n\n")

	// Fake backend: echo a canned reply plus a short audio segment for every
	// user phrase.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		log.Fatalf("listen: %v", err)
	}
	backend := &fakeBackend{}
	srv := &http.Server{Handler: backend}
	go func() { _ = srv.Serve(ln) }()
	defer srv.Close()

	url := "ws://" + ln.Addr().String() + "/voice"
	fmt.Printf("[backend] listening on %s\n", url)

	cfg := config.Load()
	cfg.Backend.URL = url

	dialer := channel.NewWSDialer(url, "", 0)
	ch := channel.NewManager(channel.Options{
		Dialer:      dialer,
		MaxAttempts: 3,
		Backoff:     200 * time.Millisecond,
		Grace:       500 * time.Millisecond,
	})

	engine := &scriptEngine{}
	player := playback.NewPacedPlayer()
	done := make(chan struct{}, 8)
	ctl := session.NewController(cfg, ch, engine, player, session.GrantedMicrophone{}, narrator{playbackDone: done}, events.NewLog())

	fmt.Println("\n[1] Starting session...")
	if err := ctl.Start(ctx); err != nil {
		log.Fatalf("start session: %v", err)
	}
	fmt.Printf("    session %s active\n", ctl.SessionID())

	fmt.Println("\n[2] User says: \"Hello, how are you today?\"")
	engine.speak("Hello, how are you today?")
	waitPlaybackDone(ctx, done)

	fmt.Println("\n[3] Enabling barge-in, asking a longer question...")
	ctl.SetBargeInEnabled(true)
	engine.speak("Please tell me a very long story about the sea")
	time.Sleep(300 * time.Millisecond)

	fmt.Println("\n[4] User barges in: \"Actually, never mind\"")
	engine.speak("Actually, never mind")
	waitPlaybackDone(ctx, done)

	fmt.Println("\n[5] Ending session...")
	if err := ctl.End(); err != nil {
		log.Fatalf("end session: %v", err)
	}

	fmt.Printf("\n=== Done: %d exchanges served by backend ===\n", backend.exchanges())
}

func waitPlaybackDone(ctx context.Context, done chan struct{}) {
	select {
	case <-done:
	case <-ctx.Done():
		log.Fatalf("timed out waiting for playback")
	}
}

// fakeBackend upgrades /voice and answers every user phrase with a text reply
// and a half-second audio segment.
type fakeBackend struct {
	mu sync.Mutex
	n  int
}

func (b *fakeBackend) exchanges() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.n
}

func (b *fakeBackend) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := websocket.Accept(w, r, nil)
	if err != nil {
		log.Printf("[backend] accept: %v", err)
		return
	}
	defer ws.Close(websocket.StatusNormalClosure, "bye")

	ctx := r.Context()
	send := func(kind string, payload map[string]any) {
		data, err := protocol.Encode(protocol.New(kind, "", payload))
		if err != nil {
			return
		}
		_ = ws.Write(ctx, websocket.MessageText, data)
	}

	for {
		_, data, err := ws.Read(ctx)
		if err != nil {
			return
		}
		msg, err := protocol.Decode(data)
		if err != nil {
			continue
		}
		switch msg.Type {
		case protocol.KindStartSession:
			fmt.Printf("    [backend] session opened\n")
		case protocol.KindUserSpeech:
			b.mu.Lock()
			b.n++
			b.mu.Unlock()
			fmt.Printf("    [backend] heard: %q\n", msg.Text())
			send(protocol.KindAIResponse, map[string]any{
				"text": fmt.Sprintf("You said: %s", msg.Text()),
			})
			audio := base64.StdEncoding.EncodeToString(playback.EncodeWAV(make([]int16, 8000), 16000))
			send(protocol.KindAIAudio, map[string]any{"audio_b64": audio})
			send(protocol.KindReadyToListen, nil)
		case protocol.KindInterruptAI:
			fmt.Printf("    [backend] production interrupted\n")
		case protocol.KindEndSession:
			fmt.Printf("    [backend] session closed\n")
		}
	}
}

// scriptEngine lets the test feed finalized phrases on demand.
type scriptEngine struct {
	mu     sync.Mutex
	hooks  capture.Hooks
	active bool
}

func (e *scriptEngine) SetHooks(h capture.Hooks) {
	e.mu.Lock()
	e.hooks = h
	e.mu.Unlock()
}

func (e *scriptEngine) Start() error {
	e.mu.Lock()
	e.active = true
	h := e.hooks
	e.mu.Unlock()
	if h.Started != nil {
		h.Started()
	}
	return nil
}

func (e *scriptEngine) Stop() {
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

// speak waits for an active recognition session, then finalizes the phrase.
func (e *scriptEngine) speak(text string) {
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		e.mu.Lock()
		active := e.active
		h := e.hooks
		e.mu.Unlock()
		if active {
			h.Final(text)
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	log.Fatalf("engine never became active for %q", text)
}

// narrator prints session activity and signals playback completion.
type narrator struct {
	playbackDone chan struct{}
}

func (n narrator) Status(text string) {
	fmt.Printf("    [status] %s\n", text)
}

func (n narrator) TranscriptAppend(u transcript.Utterance) {
	fmt.Printf("    [%s] %s\n", u.Speaker, u.Text)
}

func (n narrator) Listening(on bool) {}

func (n narrator) Speaking(on bool) {
	if !on {
		select {
		case n.playbackDone <- struct{}{}:
		default:
		}
	}
}

func (n narrator) Amplitude(float64) {}
