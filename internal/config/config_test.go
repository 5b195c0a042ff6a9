package config

import (
	"os"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	// Clear relevant envs
	os.Unsetenv("PORT")
	os.Unsetenv("BACKEND_URL")
	os.Unsetenv("BACKEND_GRACE_WINDOW_MS")
	os.Unsetenv("SESSION_BARGE_IN")

	c := Load()

	if c.Server.Port != "8085" {
		t.Fatalf("expected default port 8085, got %q", c.Server.Port)
	}
	if c.Backend.URL != "ws://localhost:9000/voice" {
		t.Fatalf("expected default backend url, got %q", c.Backend.URL)
	}
	if c.Backend.GraceWindowMs != 2000 {
		t.Fatalf("expected default grace window 2000ms, got %d", c.Backend.GraceWindowMs)
	}
	if c.Session.BargeIn {
		t.Fatalf("expected barge-in disabled by default")
	}
	if c.Capture.RestartDelayMs != 250 {
		t.Fatalf("expected default restart delay 250ms, got %d", c.Capture.RestartDelayMs)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	os.Setenv("SESSION_BARGE_IN", "true")
	os.Setenv("BACKEND_RECONNECT_ATTEMPTS", "2")
	defer os.Unsetenv("SESSION_BARGE_IN")
	defer os.Unsetenv("BACKEND_RECONNECT_ATTEMPTS")

	c := Load()

	if !c.Session.BargeIn {
		t.Fatalf("expected barge-in enabled from env")
	}
	if c.Backend.ReconnectAttempts != 2 {
		t.Fatalf("expected reconnect attempts 2, got %d", c.Backend.ReconnectAttempts)
	}
}
