package config

import (
	"testing"
	"time"
)

func TestLoadConfig_Defaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("AUTH_GATEWAY_URL", "")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if cfg.HTTPPort != "8080" {
		t.Fatalf("expected default port 8080, got %s", cfg.HTTPPort)
	}
	if cfg.ProfileRetryBase != time.Second || cfg.ProfileRetryCap != 5*time.Second {
		t.Fatalf("unexpected retry defaults: base=%v cap=%v", cfg.ProfileRetryBase, cfg.ProfileRetryCap)
	}
	if cfg.ProfileRetryMaxAttempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", cfg.ProfileRetryMaxAttempts)
	}
	if cfg.SignInRateWindow != time.Minute || cfg.SignInRateMax != 5 || !cfg.AutoConfirm {
		t.Fatalf("unexpected local gateway defaults: %+v", cfg)
	}
	if cfg.AuthenticatedPath != "/dashboard" || cfg.SignInPath != "/login" {
		t.Fatalf("unexpected paths: %s %s", cfg.AuthenticatedPath, cfg.SignInPath)
	}
}

func TestLoadConfig_Overrides(t *testing.T) {
	t.Setenv("HTTP_PORT", "9090")
	t.Setenv("PROFILE_RETRY_MAX_ATTEMPTS", "5")
	t.Setenv("LOCAL_ACCESS_TTL", "15m")
	t.Setenv("REDIS_DB", "2")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if cfg.HTTPPort != "9090" {
		t.Fatalf("expected port 9090, got %s", cfg.HTTPPort)
	}
	if cfg.ProfileRetryMaxAttempts != 5 {
		t.Fatalf("expected 5 attempts, got %d", cfg.ProfileRetryMaxAttempts)
	}
	if cfg.LocalAccessTTL != 15*time.Minute {
		t.Fatalf("expected 15m ttl, got %v", cfg.LocalAccessTTL)
	}
	if cfg.RedisDB != 2 {
		t.Fatalf("expected redis db 2, got %d", cfg.RedisDB)
	}
}

func TestLoadConfig_InvalidDuration(t *testing.T) {
	t.Setenv("PROFILE_RETRY_BASE", "soon")

	if _, err := LoadConfig(); err == nil {
		t.Fatalf("expected parse error for invalid duration")
	}
}
