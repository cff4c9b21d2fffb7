package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	for _, key := range []string{
		"DATABASE_DRIVER", "DATABASE_URL", "FACE_TOLERANCE", "FACE_DOWNSAMPLE",
		"REMINDER_INTERVAL", "REMINDER_LOOKAHEAD", "REMINDER_DEBOUNCE", "CAMERA_READ_TIMEOUT",
	} {
		os.Unsetenv(key)
	}

	cfg := Load()

	if cfg.Database.Driver != "sqlite" {
		t.Errorf("expected default driver 'sqlite', got '%s'", cfg.Database.Driver)
	}
	if cfg.Database.URL != "patient_database.db" {
		t.Errorf("expected default sqlite path, got '%s'", cfg.Database.URL)
	}
	if cfg.Faces.Tolerance != 0.5 {
		t.Errorf("expected default tolerance 0.5, got %f", cfg.Faces.Tolerance)
	}
	if cfg.Faces.DownsampleFactor != 0.25 {
		t.Errorf("expected default downsample 0.25, got %f", cfg.Faces.DownsampleFactor)
	}
	if cfg.Reminders.Interval != 5*time.Minute {
		t.Errorf("expected 5m sweep interval, got %s", cfg.Reminders.Interval)
	}
	if cfg.Reminders.Lookahead != 30*time.Minute {
		t.Errorf("expected 30m lookahead, got %s", cfg.Reminders.Lookahead)
	}
	if cfg.Reminders.Debounce != 15*time.Minute {
		t.Errorf("expected 15m debounce, got %s", cfg.Reminders.Debounce)
	}
	if cfg.Camera.ReadTimeout != 5*time.Second {
		t.Errorf("expected 5s camera timeout, got %s", cfg.Camera.ReadTimeout)
	}
}

func TestLoad_PostgresHasNoDefaultURL(t *testing.T) {
	t.Setenv("DATABASE_DRIVER", "Postgres")
	os.Unsetenv("DATABASE_URL")

	cfg := Load()

	if !cfg.Database.IsPostgres() {
		t.Errorf("expected postgres driver, got '%s'", cfg.Database.Driver)
	}
	if cfg.Database.URL != "" {
		t.Errorf("expected empty URL for postgres without DATABASE_URL, got '%s'", cfg.Database.URL)
	}
}

func TestLoad_InvalidNumbersFallBack(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
		check func(*Config) bool
	}{
		{"non-numeric port", "WEB_PORT", "abc", func(c *Config) bool { return c.Web.Port == 8000 }},
		{"negative port", "WEB_PORT", "-1", func(c *Config) bool { return c.Web.Port == 8000 }},
		{"zero tolerance", "FACE_TOLERANCE", "0", func(c *Config) bool { return c.Faces.Tolerance == 0.5 }},
		{"bad tolerance", "FACE_TOLERANCE", "close", func(c *Config) bool { return c.Faces.Tolerance == 0.5 }},
		{"bad duration", "REMINDER_INTERVAL", "5", func(c *Config) bool { return c.Reminders.Interval == 5*time.Minute }},
		{"negative duration", "CAMERA_READ_TIMEOUT", "-3s", func(c *Config) bool { return c.Camera.ReadTimeout == 5*time.Second }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			if !tt.check(Load()) {
				t.Errorf("expected default for %s=%q", tt.key, tt.value)
			}
		})
	}
}

func TestLoad_CustomValues(t *testing.T) {
	t.Setenv("WEB_PORT", "9090")
	t.Setenv("FACE_TOLERANCE", "0.42")
	t.Setenv("REMINDER_INTERVAL", "1m")
	t.Setenv("CAMERA_MODE", "MJPEG")
	t.Setenv("OLLAMA_MODEL", "llama3")

	cfg := Load()

	if cfg.Web.Port != 9090 {
		t.Errorf("expected port 9090, got %d", cfg.Web.Port)
	}
	if cfg.Faces.Tolerance != 0.42 {
		t.Errorf("expected tolerance 0.42, got %f", cfg.Faces.Tolerance)
	}
	if cfg.Reminders.Interval != time.Minute {
		t.Errorf("expected 1m interval, got %s", cfg.Reminders.Interval)
	}
	if cfg.Camera.Mode != "mjpeg" {
		t.Errorf("expected camera mode lowercased to 'mjpeg', got '%s'", cfg.Camera.Mode)
	}
	if cfg.Ollama.Model != "llama3" {
		t.Errorf("expected Ollama model 'llama3', got '%s'", cfg.Ollama.Model)
	}
}

func TestPathsConfig_Files(t *testing.T) {
	p := PathsConfig{MemoryDir: "mem"}

	if got := p.LastSeenFile(); got != filepath.Join("mem", "recognized_faces.json") {
		t.Errorf("unexpected last seen file %s", got)
	}
	if got := p.ChatMemoryFile(); got != filepath.Join("mem", "chat_memory.json") {
		t.Errorf("unexpected chat memory file %s", got)
	}
}

func TestLoad_AllowedOrigins(t *testing.T) {
	t.Setenv("WEB_ALLOWED_ORIGINS", " https://care.example.com, ,http://tablet.lan:8000")

	cfg := Load()

	if len(cfg.Web.AllowedOrigins) != 2 {
		t.Fatalf("expected 2 origins, got %v", cfg.Web.AllowedOrigins)
	}
	if cfg.Web.AllowedOrigins[0] != "https://care.example.com" {
		t.Errorf("expected trimmed origin, got %q", cfg.Web.AllowedOrigins[0])
	}
}
