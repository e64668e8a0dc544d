package utils

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

const (
	EnvPrefix        = "ANIMEHUB_"
	ConfigPathEnvVar = "ANIMEHUB_CONFIG"
	DefaultJWTSecret = "dev-secret-change-me"
)

var DefaultConfigPaths = []string{"config.yaml", "/etc/animehub/config.yaml"}

type Config struct {
	Environment string         `koanf:"environment"`
	Server      ServerConfig   `koanf:"server"`
	Database    DatabaseConfig `koanf:"database"`
	Auth        AuthConfig     `koanf:"auth"`
	Jikan       JikanConfig    `koanf:"jikan"`
	Cache       CacheConfig    `koanf:"cache"`
	Jobs        JobsConfig     `koanf:"jobs"`
	Log         LogConfig      `koanf:"log"`
}

type ServerConfig struct {
	HTTPAddr       string   `koanf:"http_addr"`
	GRPCAddr       string   `koanf:"grpc_addr"`
	TrustedProxies []string `koanf:"trusted_proxies"`
}

type DatabaseConfig struct {
	Path        string `koanf:"path"`
	BusyTimeout int    `koanf:"busy_timeout"`
}

type AuthConfig struct {
	JWTSecret   string        `koanf:"jwt_secret"`
	JWTIssuer   string        `koanf:"jwt_issuer"`
	JWTDuration time.Duration `koanf:"jwt_duration"`
	// AdminEmails are promoted to the admin role on registration.
	AdminEmails []string `koanf:"admin_emails"`
}

type JikanConfig struct {
	BaseURL         string        `koanf:"base_url"`
	Timeout         time.Duration `koanf:"timeout"`
	MaxRetries      int           `koanf:"max_retries"`
	Backoff         time.Duration `koanf:"backoff"`
	CacheTTL        time.Duration `koanf:"cache_ttl"`
	BreakerFailures uint32        `koanf:"breaker_failures"`
	BreakerTimeout  time.Duration `koanf:"breaker_timeout"`
}

type CacheConfig struct {
	// RedisURL selects the redis backend; empty means in-process.
	RedisURL string        `koanf:"redis_url"`
	MaxCost  int64         `koanf:"max_cost"`
	StatsTTL time.Duration `koanf:"stats_ttl"`
}

type JobsConfig struct {
	SyncEnabled   bool          `koanf:"sync_enabled"`
	SyncInterval  time.Duration `koanf:"sync_interval"`
	SyncLimit     int           `koanf:"sync_limit"`
	TrendingLimit int           `koanf:"trending_limit"`
}

type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// Defaults returns the built-in configuration without reading files or env.
func Defaults() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		home = "."
	}
	return Config{
		Environment: "development",
		Server: ServerConfig{
			HTTPAddr:       ":8080",
			GRPCAddr:       ":9090",
			TrustedProxies: []string{"127.0.0.1"},
		},
		Database: DatabaseConfig{
			Path:        filepath.Join(home, ".animehub", "data.db"),
			BusyTimeout: 5000,
		},
		Auth: AuthConfig{
			JWTSecret:   DefaultJWTSecret,
			JWTIssuer:   "animehub",
			JWTDuration: 24 * time.Hour,
		},
		Jikan: JikanConfig{
			BaseURL:         "https://api.jikan.moe/v4",
			Timeout:         20 * time.Second,
			MaxRetries:      3,
			Backoff:         500 * time.Millisecond,
			CacheTTL:        time.Hour,
			BreakerFailures: 5,
			BreakerTimeout:  30 * time.Second,
		},
		Cache: CacheConfig{
			MaxCost:  64 << 20,
			StatsTTL: 120 * time.Second,
		},
		Jobs: JobsConfig{
			SyncEnabled:   false,
			SyncInterval:  60 * time.Minute,
			SyncLimit:     200,
			TrendingLimit: 40,
		},
		Log: LogConfig{Level: "info", Format: "json"},
	}
}

var sliceConfigPaths = []string{
	"server.trusted_proxies",
	"auth.admin_emails",
}

// Load layers defaults, an optional YAML file and ANIMEHUB_ environment
// variables, in that order of precedence.
// ANIMEHUB_JIKAN__MAX_RETRIES maps to jikan.max_retries.
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if path := findConfigFile(); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envTransform), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	if err := splitSliceFields(k); err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

func envTransform(key string) string {
	key = strings.TrimPrefix(key, EnvPrefix)
	if key == ConfigPathEnvVar[len(EnvPrefix):] {
		return ""
	}
	return strings.ReplaceAll(strings.ToLower(key), "__", ".")
}

func findConfigFile() string {
	if p := os.Getenv(ConfigPathEnvVar); p != "" {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	for _, p := range DefaultConfigPaths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

func splitSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		s, ok := k.Get(path).(string)
		if !ok {
			continue
		}
		parts := strings.Split(s, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		if err := k.Set(path, out); err != nil {
			return fmt.Errorf("set %s: %w", path, err)
		}
	}
	return nil
}

func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Environment, "production")
}

func (c *Config) Validate() error {
	var errs []error
	if c.IsProduction() && (c.Auth.JWTSecret == "" || c.Auth.JWTSecret == DefaultJWTSecret) {
		errs = append(errs, errors.New("auth.jwt_secret must be set in production"))
	}
	if c.Auth.JWTDuration <= 0 {
		errs = append(errs, errors.New("auth.jwt_duration must be positive"))
	}
	if strings.TrimSpace(c.Jikan.BaseURL) == "" {
		errs = append(errs, errors.New("jikan.base_url is required"))
	}
	if c.Jikan.Timeout <= 0 {
		errs = append(errs, errors.New("jikan.timeout must be positive"))
	}
	if c.Jikan.MaxRetries < 0 {
		errs = append(errs, errors.New("jikan.max_retries must be >= 0"))
	}
	if c.Jikan.Backoff < 0 {
		errs = append(errs, errors.New("jikan.backoff must be >= 0"))
	}
	if c.Jobs.SyncEnabled && c.Jobs.SyncInterval <= 0 {
		errs = append(errs, errors.New("jobs.sync_interval must be positive"))
	}
	if c.Database.Path == "" {
		errs = append(errs, errors.New("database.path is required"))
	}
	return errors.Join(errs...)
}

// IsAdminEmail reports whether email is listed in auth.admin_emails.
func (a AuthConfig) IsAdminEmail(email string) bool {
	for _, e := range a.AdminEmails {
		if strings.EqualFold(strings.TrimSpace(e), email) {
			return true
		}
	}
	return false
}
