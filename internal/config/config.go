package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"sheetdash/internal/logging"
)

// Sheet source modes.
const (
	SheetModeCSV  = "csv"
	SheetModeAPI  = "api"
	SheetModeFile = "file"
)

// MinJWTSecretLength is enforced when the HTTP API is served.
const MinJWTSecretLength = 32

// Config materialises application configuration.
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Logging   logging.Config  `mapstructure:"logging"`
	Server    ServerConfig    `mapstructure:"server"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Sheet     SheetConfig     `mapstructure:"sheet"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Query     QueryConfig     `mapstructure:"query"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Retention RetentionConfig `mapstructure:"retention"`
	Alerting  AlertingConfig  `mapstructure:"alerting"`
	Export    ExportConfig    `mapstructure:"export"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	CORSOrigins     []string      `mapstructure:"cors_origins"`
	LoginRateLimit  int           `mapstructure:"login_rate_limit"`
	APIRateLimit    int           `mapstructure:"api_rate_limit"`
}

// AuthConfig holds token settings and the user directory.
type AuthConfig struct {
	JWTSecret string        `mapstructure:"jwt_secret"`
	TokenTTL  time.Duration `mapstructure:"token_ttl"`
	Users     []UserConfig  `mapstructure:"users"`
}

// UserConfig is one login. PasswordHash is a bcrypt hash, see `sheetdash hash-password`.
type UserConfig struct {
	Email        string `mapstructure:"email"`
	PasswordHash string `mapstructure:"password_hash"`
	Role         string `mapstructure:"role"`
}

// SheetConfig selects and tunes the spreadsheet source.
type SheetConfig struct {
	Mode             string        `mapstructure:"mode"`
	SpreadsheetID    string        `mapstructure:"spreadsheet_id"`
	SheetName        string        `mapstructure:"sheet_name"`
	APIKey           string        `mapstructure:"api_key"`
	BaseURL          string        `mapstructure:"base_url"`
	FilePath         string        `mapstructure:"file_path"`
	DateColumn       string        `mapstructure:"date_column"`
	RequestTimeout   time.Duration `mapstructure:"request_timeout"`
	UserAgent        string        `mapstructure:"user_agent"`
	BreakerFailures  uint32        `mapstructure:"breaker_failures"`
	BreakerTimeout   time.Duration `mapstructure:"breaker_timeout"`
	BreakerHalfOpens uint32        `mapstructure:"breaker_half_open_requests"`
}

// CacheConfig tunes the dataset cache.
type CacheConfig struct {
	TTL      time.Duration `mapstructure:"ttl"`
	Coalesce bool          `mapstructure:"coalesce"`
}

// QueryConfig tunes query interpretation.
type QueryConfig struct {
	// Timezone names the IANA zone defining "today"; "Local" uses the host zone.
	Timezone string `mapstructure:"timezone"`
}

// DatabaseConfig encapsulates PostgreSQL connectivity. An empty DSN disables persistence.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	MigrationsPath  string        `mapstructure:"migrations_path"`
}

// RetentionConfig governs query log pruning.
type RetentionConfig struct {
	Enabled       bool          `mapstructure:"enabled"`
	Interval      time.Duration `mapstructure:"interval"`
	MaxAge        time.Duration `mapstructure:"max_age"`
	AlignToBucket bool          `mapstructure:"align_to_bucket"`
	StartupDelay  time.Duration `mapstructure:"startup_delay"`
}

// AlertingConfig defines fetch failure alert routing.
type AlertingConfig struct {
	Enabled  bool           `mapstructure:"enabled"`
	Cooldown time.Duration  `mapstructure:"cooldown"`
	Telegram TelegramConfig `mapstructure:"telegram"`
}

// TelegramConfig 描述 Telegram 告警参数。
type TelegramConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	BotToken string `mapstructure:"bot_token"`
	ChatID   string `mapstructure:"chat_id"`
	APIBase  string `mapstructure:"api_base"`
}

// ExportConfig sets CLI export behaviour.
type ExportConfig struct {
	MaxDataPoints int `mapstructure:"max_data_points"`
}

// Load builds configuration from file, environment, and defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("SHEETDASH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := readConfig(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func readConfig(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "sheetdash")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.shutdown_timeout", "10s")
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("server.login_rate_limit", 10)
	v.SetDefault("server.api_rate_limit", 120)

	v.SetDefault("auth.token_ttl", "24h")

	v.SetDefault("sheet.mode", SheetModeCSV)
	v.SetDefault("sheet.sheet_name", "Daily")
	v.SetDefault("sheet.date_column", "Date")
	v.SetDefault("sheet.request_timeout", "15s")
	v.SetDefault("sheet.user_agent", "sheetdash/1.0")
	v.SetDefault("sheet.breaker_failures", 5)
	v.SetDefault("sheet.breaker_timeout", "30s")
	v.SetDefault("sheet.breaker_half_open_requests", 1)

	v.SetDefault("cache.ttl", "1h")
	v.SetDefault("cache.coalesce", true)

	v.SetDefault("query.timezone", "Local")

	v.SetDefault("retention.enabled", false)
	v.SetDefault("retention.interval", "24h")
	v.SetDefault("retention.max_age", "2160h")
	v.SetDefault("retention.align_to_bucket", true)
	v.SetDefault("retention.startup_delay", "0s")

	v.SetDefault("alerting.enabled", false)
	v.SetDefault("alerting.cooldown", "30m")
	v.SetDefault("alerting.telegram.enabled", false)
	v.SetDefault("alerting.telegram.api_base", "https://api.telegram.org")

	v.SetDefault("export.max_data_points", 1000)

	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("database.migrations_path", "migrations")
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}

// Validate performs basic sanity checks on the configuration values.
func (c *Config) Validate() error {
	if c.Export.MaxDataPoints <= 0 {
		return fmt.Errorf("export.max_data_points must be greater than zero")
	}
	if c.Cache.TTL <= 0 {
		return fmt.Errorf("cache.ttl must be greater than zero")
	}
	if _, err := c.Location(); err != nil {
		return err
	}

	switch c.Sheet.Mode {
	case SheetModeCSV:
		if c.Sheet.SpreadsheetID == "" {
			return fmt.Errorf("sheet.spreadsheet_id is required for mode %q", c.Sheet.Mode)
		}
	case SheetModeAPI:
		if c.Sheet.SpreadsheetID == "" || c.Sheet.APIKey == "" {
			return fmt.Errorf("sheet.spreadsheet_id and sheet.api_key are required for mode %q", c.Sheet.Mode)
		}
	case SheetModeFile:
		if c.Sheet.FilePath == "" {
			return fmt.Errorf("sheet.file_path is required for mode %q", c.Sheet.Mode)
		}
	default:
		return fmt.Errorf("sheet.mode must be one of csv, api, file (got %q)", c.Sheet.Mode)
	}
	if c.Sheet.SheetName == "" {
		return fmt.Errorf("sheet.sheet_name is required")
	}

	if c.Retention.Enabled {
		if c.Retention.Interval <= 0 {
			return fmt.Errorf("retention.interval must be greater than zero")
		}
		if c.Retention.MaxAge <= 0 {
			return fmt.Errorf("retention.max_age must be greater than zero")
		}
	}

	if c.Alerting.Telegram.Enabled {
		if c.Alerting.Telegram.BotToken == "" {
			return fmt.Errorf("alerting.telegram.bot_token 必须配置")
		}
		if c.Alerting.Telegram.ChatID == "" {
			return fmt.Errorf("alerting.telegram.chat_id 必须配置")
		}
	}
	return nil
}

// ValidateServe adds the checks that only matter when the HTTP API runs.
func (c *Config) ValidateServe() error {
	if len(c.Auth.JWTSecret) < MinJWTSecretLength {
		return fmt.Errorf("auth.jwt_secret must be at least %d characters", MinJWTSecretLength)
	}
	if c.Auth.TokenTTL <= 0 {
		return fmt.Errorf("auth.token_ttl must be greater than zero")
	}
	if len(c.Auth.Users) == 0 {
		return fmt.Errorf("auth.users must list at least one user")
	}
	for i, u := range c.Auth.Users {
		if u.Email == "" || u.PasswordHash == "" {
			return fmt.Errorf("auth.users[%d] needs email and password_hash", i)
		}
	}
	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr is required")
	}
	return nil
}

// Location resolves query.timezone.
func (c *Config) Location() (*time.Location, error) {
	switch c.Query.Timezone {
	case "", "Local":
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Query.Timezone)
	if err != nil {
		return nil, fmt.Errorf("query.timezone: %w", err)
	}
	return loc, nil
}

// ResolveMaxPoints returns either the CLI override or config default.
func (c *Config) ResolveMaxPoints(override int) int {
	if override > 0 {
		return override
	}
	return c.Export.MaxDataPoints
}
