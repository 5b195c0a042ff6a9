package config

import (
	"fmt"
	"log"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Server struct {
		Port     string
		LogLevel string
	}
	Backend struct {
		URL                string
		TokenSecret        string
		TokenTTLMin        int
		ReconnectAttempts  int
		ReconnectBackoffMs int
		GraceWindowMs      int
		SendQueue          int
	}
	Capture struct {
		RestartDelayMs int
		StartTimeoutMs int
	}
	Session struct {
		BargeIn bool
	}
	Voice struct {
		Gender          string
		PerformanceMode string
	}
}

func Load() Config {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("server.port", 8085)
	v.SetDefault("server.log_level", "info")

	v.SetDefault("backend.url", "ws://localhost:9000/voice")
	v.SetDefault("backend.token_ttl_min", 60)
	v.SetDefault("backend.reconnect_attempts", 5)
	v.SetDefault("backend.reconnect_backoff_ms", 1500)
	v.SetDefault("backend.grace_window_ms", 2000)
	v.SetDefault("backend.send_queue", 32)

	v.SetDefault("capture.restart_delay_ms", 250)
	v.SetDefault("capture.start_timeout_ms", 3000)

	v.SetDefault("session.barge_in", false)

	v.SetDefault("voice.gender", "female")
	v.SetDefault("voice.performance_mode", "balanced")

	// Map envs
	v.BindEnv("server.port", "PORT")
	v.BindEnv("server.log_level", "LOG_LEVEL")

	v.BindEnv("backend.url", "BACKEND_URL")
	v.BindEnv("backend.token_secret", "BACKEND_TOKEN_SECRET")
	v.BindEnv("backend.token_ttl_min", "BACKEND_TOKEN_TTL_MIN")
	v.BindEnv("backend.reconnect_attempts", "BACKEND_RECONNECT_ATTEMPTS")
	v.BindEnv("backend.reconnect_backoff_ms", "BACKEND_RECONNECT_BACKOFF_MS")
	v.BindEnv("backend.grace_window_ms", "BACKEND_GRACE_WINDOW_MS")
	v.BindEnv("backend.send_queue", "BACKEND_SEND_QUEUE")

	v.BindEnv("capture.restart_delay_ms", "CAPTURE_RESTART_DELAY_MS")
	v.BindEnv("capture.start_timeout_ms", "CAPTURE_START_TIMEOUT_MS")

	v.BindEnv("session.barge_in", "SESSION_BARGE_IN")

	v.BindEnv("voice.gender", "VOICE_GENDER")
	v.BindEnv("voice.performance_mode", "VOICE_PERFORMANCE_MODE")

	var c Config
	c.Server.Port = toString(v.Get("server.port"))
	c.Server.LogLevel = v.GetString("server.log_level")

	c.Backend.URL = v.GetString("backend.url")
	c.Backend.TokenSecret = v.GetString("backend.token_secret")
	c.Backend.TokenTTLMin = v.GetInt("backend.token_ttl_min")
	c.Backend.ReconnectAttempts = v.GetInt("backend.reconnect_attempts")
	c.Backend.ReconnectBackoffMs = v.GetInt("backend.reconnect_backoff_ms")
	c.Backend.GraceWindowMs = v.GetInt("backend.grace_window_ms")
	c.Backend.SendQueue = v.GetInt("backend.send_queue")

	c.Capture.RestartDelayMs = v.GetInt("capture.restart_delay_ms")
	c.Capture.StartTimeoutMs = v.GetInt("capture.start_timeout_ms")

	c.Session.BargeIn = v.GetBool("session.barge_in")

	c.Voice.Gender = v.GetString("voice.gender")
	c.Voice.PerformanceMode = v.GetString("voice.performance_mode")

	log.Printf("config loaded: port=%s backend=%s barge_in=%v", c.Server.Port, c.Backend.URL, c.Session.BargeIn)
	return c
}

func toString(v any) string { return fmt.Sprint(v) }
