package config

import (
	"errors"
	"strings"
	"testing"
	"time"
)

const testSecret = "0123456789abcdef0123456789abcdef"

// clearEnv resets every variable Load reads so the host environment cannot leak in.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"PORT", "ENVIRONMENT", "LOG_LEVEL", "ALLOWED_ORIGINS", "TOKEN_SECRET", "TOKEN_MAX_AGE_SECS",
		"DATABASE_PATH", "TIMEZONE", "LEGACY_HORIZON_MONTHS", "MAX_OCCURRENCES",
		"RATE_LIMIT_RPS", "RATE_LIMIT_BURST",
	} {
		t.Setenv(key, "")
	}
	// keep a stray .env in the package directory out of the picture
	t.Chdir(t.TempDir())
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("TOKEN_SECRET", testSecret)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 8080 {
		t.Errorf("expected port 8080, got %d", cfg.Server.Port)
	}
	if !cfg.IsProduction() || cfg.IsDevelopment() {
		t.Errorf("expected production environment, got %q", cfg.Server.Environment)
	}
	if cfg.Server.LogLevel != "info" {
		t.Errorf("expected info log level, got %q", cfg.Server.LogLevel)
	}
	if len(cfg.Server.AllowedOrigins) != 4 {
		t.Errorf("expected 4 default origins, got %v", cfg.Server.AllowedOrigins)
	}
	if cfg.Security.TokenMaxAge != 7*24*time.Hour {
		t.Errorf("expected one week token age, got %v", cfg.Security.TokenMaxAge)
	}
	if cfg.Database.Path != "./data/selfie.db" {
		t.Errorf("unexpected database path %q", cfg.Database.Path)
	}
	if cfg.Calendar.Location != time.UTC {
		t.Errorf("expected UTC, got %v", cfg.Calendar.Location)
	}
	if cfg.Calendar.LegacyHorizonMonths != 3 || cfg.Calendar.MaxOccurrences != 1000 {
		t.Errorf("unexpected calendar config %+v", cfg.Calendar)
	}
	if cfg.RateLimiting.RPS != 10 || cfg.RateLimiting.Burst != 20 {
		t.Errorf("unexpected rate limit config %+v", cfg.RateLimiting)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default origins should validate: %v", err)
	}
}

func TestLoadOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("TOKEN_SECRET", testSecret)
	t.Setenv("PORT", "9090")
	t.Setenv("ENVIRONMENT", "Development")
	t.Setenv("ALLOWED_ORIGINS", " https://selfie.example.com , ,http://localhost:3000")
	t.Setenv("TIMEZONE", "Europe/Rome")
	t.Setenv("MAX_OCCURRENCES", "200")
	t.Setenv("RATE_LIMIT_RPS", "2.5")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Errorf("expected port 9090, got %d", cfg.Server.Port)
	}
	if !cfg.IsDevelopment() {
		t.Errorf("expected development, got %q", cfg.Server.Environment)
	}
	if got := strings.Join(cfg.Server.AllowedOrigins, "|"); got != "https://selfie.example.com|http://localhost:3000" {
		t.Errorf("unexpected origins %q", got)
	}
	if cfg.Calendar.Location.String() != "Europe/Rome" {
		t.Errorf("expected Europe/Rome, got %v", cfg.Calendar.Location)
	}
	if cfg.Calendar.MaxOccurrences != 200 || cfg.RateLimiting.RPS != 2.5 {
		t.Errorf("overrides not applied: %+v %+v", cfg.Calendar, cfg.RateLimiting)
	}
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr error
	}{
		{"missing secret", map[string]string{}, ErrMissingConfig},
		{"short secret", map[string]string{"TOKEN_SECRET": "short"}, ErrTokenSecretSize},
		{"bad port", map[string]string{"TOKEN_SECRET": testSecret, "PORT": "http"}, ErrInvalidConfig},
		{"bad timezone", map[string]string{"TOKEN_SECRET": testSecret, "TIMEZONE": "Mars/Olympus"}, ErrInvalidConfig},
		{"zero horizon", map[string]string{"TOKEN_SECRET": testSecret, "LEGACY_HORIZON_MONTHS": "0"}, ErrInvalidConfig},
		{"negative cap", map[string]string{"TOKEN_SECRET": testSecret, "MAX_OCCURRENCES": "-1"}, ErrInvalidConfig},
		{"bad rps", map[string]string{"TOKEN_SECRET": testSecret, "RATE_LIMIT_RPS": "fast"}, ErrInvalidConfig},
		{"bad token age", map[string]string{"TOKEN_SECRET": testSecret, "TOKEN_MAX_AGE_SECS": "0"}, ErrInvalidConfig},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			_, err := Load()
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Load() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		env     Environment
		origins []string
		wantErr bool
	}{
		{"production https", EnvProduction, []string{"https://selfie.example.com"}, false},
		{"production loopback http", EnvProduction, []string{"http://localhost:3000"}, false},
		{"production remote http", EnvProduction, []string{"http://selfie.example.com"}, true},
		{"development remote http", EnvDevelopment, []string{"http://selfie.lan:3000"}, false},
		{"origin with path", EnvDevelopment, []string{"http://localhost:3000/app"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{Server: ServerConfig{Environment: tt.env, AllowedOrigins: tt.origins}}
			err := cfg.Validate()
			if tt.wantErr && !errors.Is(err, ErrValidationFailed) {
				t.Errorf("expected ErrValidationFailed, got %v", err)
			}
			if !tt.wantErr && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}
