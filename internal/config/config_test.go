package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Server.Addr != ":8080" {
		t.Errorf("Server.Addr = %q, want %q", cfg.Server.Addr, ":8080")
	}
	if cfg.Remote.Timeout() != 10*time.Second {
		t.Errorf("Remote.Timeout = %v, want 10s", cfg.Remote.Timeout())
	}
	if cfg.Remote.Backoff() != 500*time.Millisecond {
		t.Errorf("Remote.Backoff = %v, want 500ms", cfg.Remote.Backoff())
	}
	if cfg.Remote.MaxAttempts != 3 {
		t.Errorf("Remote.MaxAttempts = %d, want 3", cfg.Remote.MaxAttempts)
	}
	if cfg.Codes.VerificationLength != 6 || cfg.Codes.VerificationTTLMinutes != 10 {
		t.Errorf("verification codes = %d digits / %d min, want 6/10",
			cfg.Codes.VerificationLength, cfg.Codes.VerificationTTLMinutes)
	}
	if cfg.Codes.ResetLength != 8 || cfg.Codes.ResetTTLMinutes != 15 {
		t.Errorf("reset codes = %d digits / %d min, want 8/15",
			cfg.Codes.ResetLength, cfg.Codes.ResetTTLMinutes)
	}
	if cfg.Codes.WelcomeBonus != 3 {
		t.Errorf("WelcomeBonus = %d, want 3", cfg.Codes.WelcomeBonus)
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	body := `
[server]
addr = ":9999"

[remote]
max_attempts = 5

[codes]
welcome_bonus = 10
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Addr != ":9999" {
		t.Errorf("Server.Addr = %q, want override", cfg.Server.Addr)
	}
	if cfg.Remote.MaxAttempts != 5 {
		t.Errorf("Remote.MaxAttempts = %d, want 5", cfg.Remote.MaxAttempts)
	}
	if cfg.Codes.WelcomeBonus != 10 {
		t.Errorf("WelcomeBonus = %d, want 10", cfg.Codes.WelcomeBonus)
	}
	// Untouched sections keep their defaults.
	if cfg.Remote.TimeoutSeconds != 10 {
		t.Errorf("Remote.TimeoutSeconds = %d, want default 10", cfg.Remote.TimeoutSeconds)
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Addr != ":8080" {
		t.Errorf("Server.Addr = %q, want default", cfg.Server.Addr)
	}
}

func TestLoadMalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("[[[not toml"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for malformed file")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://env/db")
	t.Setenv("JWT_SECRET", "env-secret")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Database.URL != "postgres://env/db" {
		t.Errorf("Database.URL = %q, want env value", cfg.Database.URL)
	}
	if cfg.Auth.JWTSecret != "env-secret" {
		t.Errorf("JWTSecret = %q, want env value", cfg.Auth.JWTSecret)
	}
}
