package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	//1.- Clear every override so the defaults are exercised.
	for _, name := range []string{
		"COORD_ADDR", "COORD_SQLITE_PATH", "COORD_AUTH_SECRET",
		"COORD_HEARTBEAT_INTERVAL", "COORD_DISCONNECT_GRACE",
		"COORD_INVITE_TTL", "COORD_PENDING_RESULT_TTL",
		"COORD_RATE_BURST", "COORD_RATE_REFILL_PER_SECOND",
		"COORD_MAX_SCORE", "COORD_MAX_CHAT_LENGTH", "COORD_SEND_QUEUE_SIZE",
		"COORD_LOG_LEVEL", "COORD_LOG_PATH", "COORD_LOG_MAX_SIZE_MB", "COORD_LOG_MAX_BACKUPS",
	} {
		t.Setenv(name, "")
	}
	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Address != DefaultAddr {
		t.Fatalf("expected default address %q, got %q", DefaultAddr, cfg.Address)
	}
	if cfg.HeartbeatInterval != 15*time.Second {
		t.Fatalf("expected 15s heartbeat, got %v", cfg.HeartbeatInterval)
	}
	if cfg.InviteTTL != 30*time.Second || cfg.PendingResultTTL != 30*time.Second {
		t.Fatalf("expected 30s TTLs, got %v and %v", cfg.InviteTTL, cfg.PendingResultTTL)
	}
	if cfg.RateBurst != 12 || cfg.RateRefillPerSecond != 6 {
		t.Fatalf("expected burst 12 refill 6, got %d and %v", cfg.RateBurst, cfg.RateRefillPerSecond)
	}
}

func TestLoadOverrides(t *testing.T) {
	//1.- Override a representative spread of variables.
	t.Setenv("COORD_ADDR", ":9000")
	t.Setenv("COORD_DISCONNECT_GRACE", "45s")
	t.Setenv("COORD_RATE_BURST", "20")
	t.Setenv("COORD_ALLOWED_ORIGINS", "https://a.example, https://b.example")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Address != ":9000" {
		t.Fatalf("address override ignored: %q", cfg.Address)
	}
	if cfg.DisconnectGrace != 45*time.Second {
		t.Fatalf("grace override ignored: %v", cfg.DisconnectGrace)
	}
	if cfg.RateBurst != 20 {
		t.Fatalf("burst override ignored: %d", cfg.RateBurst)
	}
	if len(cfg.AllowedOrigins) != 2 || cfg.AllowedOrigins[1] != "https://b.example" {
		t.Fatalf("origin list parsed incorrectly: %v", cfg.AllowedOrigins)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := map[string]string{
		"COORD_INVITE_TTL":             "soon",
		"COORD_RATE_BURST":             "dozen",
		"COORD_RATE_REFILL_PER_SECOND": "-1",
		"COORD_HEARTBEAT_INTERVAL":     "-5s",
	}
	for name, value := range cases {
		t.Run(name, func(t *testing.T) {
			t.Setenv(name, value)
			if _, err := Load(); err == nil {
				t.Fatalf("expected error for %s=%q", name, value)
			}
		})
	}
}
