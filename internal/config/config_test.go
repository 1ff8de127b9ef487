package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("ENV", "")
	t.Setenv("LOG_LEVEL", "")
	t.Setenv("USE_MEMORY_STORE", "")
	t.Setenv("SETTINGS_CACHE_TTL", "")
	t.Setenv("LINE_ADMIN_TARGETS", "")
	cfg := Load()
	if cfg.Port != "8080" {
		t.Fatalf("expected default port, got %s", cfg.Port)
	}
	if cfg.Env != "development" {
		t.Fatalf("expected default env, got %s", cfg.Env)
	}
	if cfg.UseMemoryStore {
		t.Fatalf("expected postgres store by default")
	}
	if cfg.SettingsCacheTTL != 30*time.Second {
		t.Fatalf("expected default settings ttl, got %s", cfg.SettingsCacheTTL)
	}
	if cfg.LineAdminTargets != nil {
		t.Fatalf("expected no admin targets, got %v", cfg.LineAdminTargets)
	}
	if cfg.LineAPIBaseURL != "https://api.line.me" {
		t.Fatalf("expected default LINE base url, got %s", cfg.LineAPIBaseURL)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("ENV", "production")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("DATABASE_URL", "postgres://user@host/db")
	t.Setenv("USE_MEMORY_STORE", "true")
	t.Setenv("OUTBOX_INTERVAL", "500ms")
	t.Setenv("OUTBOX_BATCH_SIZE", "10")
	t.Setenv("LINE_ADMIN_TARGETS", " Cadmin1 , ,Cadmin2")
	t.Setenv("EMAIL_PROVIDER", " SES ")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://salon.example.com")
	cfg := Load()
	if cfg.Port != "9090" {
		t.Fatalf("expected override port, got %s", cfg.Port)
	}
	if cfg.Env != "production" {
		t.Fatalf("expected env override, got %s", cfg.Env)
	}
	if cfg.DatabaseURL != "postgres://user@host/db" {
		t.Fatalf("expected db override, got %s", cfg.DatabaseURL)
	}
	if !cfg.UseMemoryStore {
		t.Fatalf("expected memory store override")
	}
	if cfg.OutboxInterval != 500*time.Millisecond || cfg.OutboxBatchSize != 10 {
		t.Fatalf("expected outbox overrides, got %s/%d", cfg.OutboxInterval, cfg.OutboxBatchSize)
	}
	if len(cfg.LineAdminTargets) != 2 || cfg.LineAdminTargets[0] != "Cadmin1" || cfg.LineAdminTargets[1] != "Cadmin2" {
		t.Fatalf("expected trimmed admin targets, got %v", cfg.LineAdminTargets)
	}
	if cfg.EmailProvider != "ses" {
		t.Fatalf("expected normalized email provider, got %q", cfg.EmailProvider)
	}
	if len(cfg.CORSOrigins) != 1 {
		t.Fatalf("expected one cors origin, got %v", cfg.CORSOrigins)
	}
}

func TestInvalidNumbersFallBack(t *testing.T) {
	t.Setenv("RATE_LIMIT_RPS", "lots")
	t.Setenv("OUTBOX_INTERVAL", "soon")
	cfg := Load()
	if cfg.RateLimitRPS != 10 {
		t.Fatalf("expected default rps, got %d", cfg.RateLimitRPS)
	}
	if cfg.OutboxInterval != 2*time.Second {
		t.Fatalf("expected default interval, got %s", cfg.OutboxInterval)
	}
}

func TestTimezoneDefaultsToBangkok(t *testing.T) {
	t.Setenv("SALON_TIMEZONE", "")
	if tz := Load().Timezone; tz != "Asia/Bangkok" {
		t.Fatalf("expected Asia/Bangkok, got %s", tz)
	}
	t.Setenv("SALON_TIMEZONE", "Asia/Chiang_Mai")
	if tz := Load().Timezone; tz != "Asia/Chiang_Mai" {
		t.Fatalf("expected override, got %s", tz)
	}
}

func TestOutboxInProcessToggle(t *testing.T) {
	t.Setenv("OUTBOX_IN_PROCESS", "")
	if !Load().OutboxInProcess {
		t.Fatalf("expected in-process delivery by default")
	}
	t.Setenv("OUTBOX_IN_PROCESS", "false")
	if Load().OutboxInProcess {
		t.Fatalf("expected in-process delivery disabled")
	}
}
