package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"sona/voice/internal/api"
	"sona/voice/internal/capture"
	"sona/voice/internal/channel"
	"sona/voice/internal/config"
	"sona/voice/internal/events"
	"sona/voice/internal/playback"
	"sona/voice/internal/session"
	"sona/voice/internal/transcript"
)

func main() {
	// Load .env file if present (ignored if missing)
	_ = godotenv.Load()

	cfg := config.Load()

	dialer := channel.NewWSDialer(
		cfg.Backend.URL,
		cfg.Backend.TokenSecret,
		time.Duration(cfg.Backend.TokenTTLMin)*time.Minute,
	)
	ch := channel.NewManager(channel.Options{
		Dialer:      dialer,
		MaxAttempts: cfg.Backend.ReconnectAttempts,
		Backoff:     time.Duration(cfg.Backend.ReconnectBackoffMs) * time.Millisecond,
		Grace:       time.Duration(cfg.Backend.GraceWindowMs) * time.Millisecond,
		QueueSize:   cfg.Backend.SendQueue,
	})

	evlog := events.NewLog()
	engine := capture.NewLineEngine(os.Stdin)
	player := playback.NewPacedPlayer()
	ctl := session.NewController(cfg, ch, engine, player, session.GrantedMicrophone{}, consolePresenter{}, evlog)

	h := api.NewHandlers(cfg, ctl, ch, evlog)
	mux := http.NewServeMux()
	mux.Handle("/", api.NewRouter(h))

	addr := ":" + cfg.Server.Port
	srv := &http.Server{
		Addr:              addr,
		Handler:           logMiddleware(mux),
		ReadHeaderTimeout: 5 * time.Second,
	}

	// Graceful shutdown on SIGINT/SIGTERM
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigc
		log.Printf("shutdown signal received; stopping agent...")
		_ = ctl.End()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}()

	log.Printf("agent starting on %s (backend %s)", addr, cfg.Backend.URL)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Println("server error:", err)
		os.Exit(1)
	}
}

// consolePresenter surfaces the session to the terminal. Amplitude updates
// are too chatty to log and are dropped.
type consolePresenter struct{}

func (consolePresenter) Status(text string) {
	log.Printf("[status] %s", text)
}

func (consolePresenter) TranscriptAppend(u transcript.Utterance) {
	log.Printf("[%s] %s", u.Speaker, u.Text)
}

func (consolePresenter) Listening(on bool) {
	if on {
		log.Printf("[mic] listening")
	}
}

func (consolePresenter) Speaking(on bool) {
	if on {
		log.Printf("[speaker] playing")
	}
}

func (consolePresenter) Amplitude(float64) {}

func logMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		log.Printf("%s %s %s", r.Method, r.URL.Path, time.Since(start))
	})
}
