package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"sona/voice/internal/capture"
	"sona/voice/internal/channel"
	"sona/voice/internal/config"
	"sona/voice/internal/events"
	"sona/voice/internal/health"
	"sona/voice/internal/session"
)

type Handlers struct {
	cfg   config.Config
	ctl   *session.Controller
	ch    *channel.Manager
	evlog *events.Log
}

func NewHandlers(cfg config.Config, ctl *session.Controller, ch *channel.Manager, evlog *events.Log) *Handlers {
	return &Handlers{cfg: cfg, ctl: ctl, ch: ch, evlog: evlog}
}

func (h *Handlers) HandleStartSession(w http.ResponseWriter, r *http.Request) {
	if err := h.ctl.Start(r.Context()); err != nil {
		switch {
		case errors.Is(err, session.ErrSessionActive):
			http.Error(w, err.Error(), http.StatusConflict)
		case errors.Is(err, session.ErrMicrophoneAccessDenied):
			http.Error(w, err.Error(), http.StatusForbidden)
		case errors.Is(err, capture.ErrCapabilityUnavailable):
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
		default:
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"ok":         true,
		"session_id": h.ctl.SessionID(),
	})
}

func (h *Handlers) HandleEndSession(w http.ResponseWriter, r *http.Request) {
	_ = h.ctl.End()
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"ok": true})
}

func (h *Handlers) HandleInterrupt(w http.ResponseWriter, r *http.Request) {
	h.ctl.ManualInterrupt()
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"ok": true})
}

func (h *Handlers) HandleGetSession(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"state":             h.ctl.State(),
		"session_id":        h.ctl.SessionID(),
		"turn_state":        h.ctl.TurnState(),
		"channel_state":     h.ch.State(),
		"reconnect_attempt": h.ch.Attempt(),
		"barge_in":          h.ctl.BargeInEnabled(),
	})
}

func (h *Handlers) HandleBargeIn(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodGet {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"enabled": h.ctl.BargeInEnabled()})
		return
	}

	var body struct {
		Enabled bool `json:"enabled"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	h.ctl.SetBargeInEnabled(body.Enabled)
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"ok": true, "enabled": body.Enabled})
}

func (h *Handlers) HandleVoice(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodGet {
		g, m := h.ctl.Voice()
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"gender": g, "performance_mode": m})
		return
	}

	var body struct {
		Gender          string `json:"gender"`
		PerformanceMode string `json:"performance_mode"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	h.ctl.SetVoice(body.Gender, body.PerformanceMode)
	g, m := h.ctl.Voice()
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"ok": true, "gender": g, "performance_mode": m})
}

func (h *Handlers) HandleTranscript(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"session_id": h.ctl.SessionID(),
		"utterances": h.ctl.Transcript().List(),
	})
}

func (h *Handlers) HandleListEvents(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"events": h.evlog.List(),
	})
}

func (h *Handlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	status := health.CheckAll(r.Context(), h.cfg)
	w.Header().Set("Content-Type", "application/json")
	if !status.OK {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	_ = json.NewEncoder(w).Encode(status)
}
