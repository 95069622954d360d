package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	path := writeConfig(t, `
sheet:
  spreadsheet_id: abc123
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}

	if cfg.Cache.TTL != time.Hour || !cfg.Cache.Coalesce {
		t.Fatalf("unexpected cache config %+v", cfg.Cache)
	}
	if cfg.Sheet.Mode != SheetModeCSV || cfg.Sheet.DateColumn != "Date" {
		t.Fatalf("unexpected sheet config %+v", cfg.Sheet)
	}
	if cfg.Server.Addr != ":8080" || cfg.Server.LoginRateLimit != 10 {
		t.Fatalf("unexpected server config %+v", cfg.Server)
	}
	if cfg.Auth.TokenTTL != 24*time.Hour {
		t.Fatalf("unexpected token ttl %s", cfg.Auth.TokenTTL)
	}
	loc, err := cfg.Location()
	if err != nil || loc != time.Local {
		t.Fatalf("expected local zone, got %v (%v)", loc, err)
	}
}

func TestLoadUsersAndOverrides(t *testing.T) {
	path := writeConfig(t, `
sheet:
  mode: file
  file_path: ./testdata/daily.csv
cache:
  ttl: 5m
query:
  timezone: Asia/Kolkata
auth:
  jwt_secret: 0123456789abcdef0123456789abcdef
  users:
    - email: ops@example.com
      password_hash: $2a$10$abcdefghijklmnopqrstuv
      role: admin
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.Cache.TTL != 5*time.Minute {
		t.Fatalf("ttl = %s", cfg.Cache.TTL)
	}
	if len(cfg.Auth.Users) != 1 || cfg.Auth.Users[0].Role != "admin" {
		t.Fatalf("unexpected users %+v", cfg.Auth.Users)
	}
	if err := cfg.ValidateServe(); err != nil {
		t.Fatalf("ValidateServe: %v", err)
	}
	loc, err := cfg.Location()
	if err != nil || loc.String() != "Asia/Kolkata" {
		t.Fatalf("unexpected location %v (%v)", loc, err)
	}
}

func TestValidateRejects(t *testing.T) {
	base := func() Config {
		return Config{
			Sheet:  SheetConfig{Mode: SheetModeCSV, SpreadsheetID: "id", SheetName: "Daily"},
			Cache:  CacheConfig{TTL: time.Hour},
			Export: ExportConfig{MaxDataPoints: 10},
		}
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"ttl", func(c *Config) { c.Cache.TTL = 0 }, "cache.ttl"},
		{"mode", func(c *Config) { c.Sheet.Mode = "ftp" }, "sheet.mode"},
		{"api key", func(c *Config) { c.Sheet.Mode = SheetModeAPI }, "api_key"},
		{"file path", func(c *Config) { c.Sheet.Mode = SheetModeFile }, "file_path"},
		{"timezone", func(c *Config) { c.Query.Timezone = "Mars/Olympus" }, "query.timezone"},
		{"telegram", func(c *Config) { c.Alerting.Telegram.Enabled = true }, "bot_token"},
		{"retention", func(c *Config) { c.Retention.Enabled = true }, "retention.interval"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			if err := cfg.Validate(); err != nil {
				t.Fatalf("base config should validate: %v", err)
			}
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error mentioning %q, got %v", tt.want, err)
			}
		})
	}
}

func TestValidateServeSecretLength(t *testing.T) {
	cfg := Config{
		Server: ServerConfig{Addr: ":0"},
		Auth: AuthConfig{
			JWTSecret: "short",
			TokenTTL:  time.Hour,
			Users:     []UserConfig{{Email: "a@b.c", PasswordHash: "x"}},
		},
	}
	if err := cfg.ValidateServe(); err == nil {
		t.Fatal("short secret must be rejected")
	}
}
