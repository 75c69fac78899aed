package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Port != "8080" {
		t.Errorf("Port = %q, want 8080", cfg.Port)
	}
	if cfg.RedisAddr != "localhost:6379" {
		t.Errorf("RedisAddr = %q, want localhost:6379", cfg.RedisAddr)
	}
	if cfg.AnonymousLimit != 10 {
		t.Errorf("AnonymousLimit = %d, want 10", cfg.AnonymousLimit)
	}
	if cfg.AuthenticatedLimit != 10 {
		t.Errorf("AuthenticatedLimit = %d, want 10", cfg.AuthenticatedLimit)
	}
	if cfg.TotalQuota != 50 {
		t.Errorf("TotalQuota = %d, want 50", cfg.TotalQuota)
	}
	if cfg.Window() != time.Hour {
		t.Errorf("Window = %v, want 1h", cfg.Window())
	}
	if cfg.QuotaWindow() != 365*24*time.Hour {
		t.Errorf("QuotaWindow = %v, want 8760h", cfg.QuotaWindow())
	}
	if cfg.ModelRetention() != 30*24*time.Hour {
		t.Errorf("ModelRetention = %v, want 720h", cfg.ModelRetention())
	}
	if cfg.DefaultModel != "gpt-4o-mini" {
		t.Errorf("DefaultModel = %q, want gpt-4o-mini", cfg.DefaultModel)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("RATE_LIMIT_ANONYMOUS", "5")
	t.Setenv("RATE_LIMIT_WINDOW_MINUTES", "30")
	t.Setenv("TOTAL_QUOTA", "100")
	t.Setenv("REDIS_ADDR", "redis:6379")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Port != "9090" {
		t.Errorf("Port = %q, want 9090", cfg.Port)
	}
	if cfg.AnonymousLimit != 5 {
		t.Errorf("AnonymousLimit = %d, want 5", cfg.AnonymousLimit)
	}
	if cfg.Window() != 30*time.Minute {
		t.Errorf("Window = %v, want 30m", cfg.Window())
	}
	if cfg.TotalQuota != 100 {
		t.Errorf("TotalQuota = %d, want 100", cfg.TotalQuota)
	}
	if cfg.RedisAddr != "redis:6379" {
		t.Errorf("RedisAddr = %q, want redis:6379", cfg.RedisAddr)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name    string
		envKey  string
		value   string
		wantErr string
	}{
		{"zero anonymous limit", "RATE_LIMIT_ANONYMOUS", "0", "RATE_LIMIT_ANONYMOUS"},
		{"negative authenticated limit", "RATE_LIMIT_AUTHENTICATED", "-1", "RATE_LIMIT_AUTHENTICATED"},
		{"zero window", "RATE_LIMIT_WINDOW_MINUTES", "0", "RATE_LIMIT_WINDOW_MINUTES"},
		{"zero quota", "TOTAL_QUOTA", "0", "TOTAL_QUOTA"},
		{"negative redis db", "REDIS_DB", "-2", "REDIS_DB"},
		{"zero retention", "MODEL_USAGE_RETENTION_DAYS", "0", "MODEL_USAGE_RETENTION_DAYS"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.envKey, tt.value)

			_, err := Load()
			if err == nil {
				t.Fatal("expected validation error, got nil")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoadIgnoresUnparsableInt(t *testing.T) {
	// Unparsable ints fall back to the default rather than failing
	t.Setenv("RATE_LIMIT_ANONYMOUS", "not-a-number")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.AnonymousLimit != 10 {
		t.Errorf("AnonymousLimit = %d, want default 10", cfg.AnonymousLimit)
	}
}
