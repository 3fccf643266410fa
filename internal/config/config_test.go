package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{"PORT", "BACKEND_URL", "TYPING_DELAY", "FRONTEND_URL"} {
		t.Setenv(key, "")
	}
	t.Setenv("PORT", "9090")
	t.Setenv("BACKEND_URL", "http://backend:8000/")
	t.Setenv("TYPING_DELAY", "250")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Port != "9090" {
		t.Errorf("Port = %q", cfg.Port)
	}
	if cfg.Backend.URL != "http://backend:8000" {
		t.Errorf("Backend.URL = %q, want trailing slash trimmed", cfg.Backend.URL)
	}
	if cfg.TypingDelay != 250*time.Millisecond {
		t.Errorf("TypingDelay = %v", cfg.TypingDelay)
	}
	if !cfg.IsDevelopment() {
		t.Error("empty FRONTEND_URL should be development")
	}
}

func TestGetEnvDuration(t *testing.T) {
	tests := []struct {
		value string
		want  time.Duration
	}{
		{"1h", time.Hour},
		{"1500", 1500 * time.Millisecond},
		{"garbage", 5 * time.Second},
	}
	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			t.Setenv("TEST_DURATION", tt.value)
			if got := getEnvDuration("TEST_DURATION", 5*time.Second); got != tt.want {
				t.Errorf("getEnvDuration(%q) = %v, want %v", tt.value, got, tt.want)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Port:           "8080",
			DBPath:         "./data/test.db",
			Backend:        BackendConfig{URL: "http://localhost:8000", Timeout: time.Second},
			SessionIdleTTL: time.Hour,
			RateLimit:      RateLimitConfig{Requests: 1, Window: time.Second},
			ConversationLog: ConversationLogConfig{
				Dir: "./logs", GlobalPath: "./logs/all.ndjson", QueueSize: 1,
			},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid", func(*Config) {}, false},
		{"empty port", func(c *Config) { c.Port = "" }, true},
		{"relative backend", func(c *Config) { c.Backend.URL = "backend:8000" }, true},
		{"zero timeout", func(c *Config) { c.Backend.Timeout = 0 }, true},
		{"negative typing delay", func(c *Config) { c.TypingDelay = -time.Second }, true},
		{"zero rate limit", func(c *Config) { c.RateLimit.Requests = 0 }, true},
		{"zero queue", func(c *Config) { c.ConversationLog.QueueSize = 0 }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(c)
			if err := c.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestAllowedOrigins(t *testing.T) {
	c := &Config{FrontendURL: "https://app.example.com/, https://admin.example.com"}
	got := c.AllowedOrigins()
	if len(got) != 2 || got[0] != "https://app.example.com" || got[1] != "https://admin.example.com" {
		t.Errorf("AllowedOrigins() = %v", got)
	}
}
