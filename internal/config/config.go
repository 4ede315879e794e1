package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Mode string

const (
	ModeOffline Mode = "offline"
	ModeOnline  Mode = "online"
)

type Config struct {
	Mode     Mode   `env:"MODE" envDefault:"offline"`
	HTTPAddr string `env:"HTTP_ADDR" envDefault:":8080"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	DBDriver string `env:"DB_DRIVER" envDefault:"sqlite"`
	DBDSN    string `env:"DB_DSN"`

	AuthHMACSecret string        `env:"AUTH_HMAC_SECRET" envDefault:"dev-secret-change-me"`
	TokenTTL       time.Duration `env:"AUTH_TOKEN_TTL" envDefault:"12h"`
	AdminUser      string        `env:"ADMIN_USER" envDefault:"admin"`
	AdminPassHash  string        `env:"ADMIN_PASS_HASH"` // bcrypt; empty skips the bootstrap admin

	CORSOriginsOnline  []string `env:"CORS_ORIGINS_ONLINE" envSeparator:"," envDefault:"https://dojo.example.edu"`
	CORSOriginsOffline []string `env:"CORS_ORIGINS_OFFLINE" envSeparator:"," envDefault:"http://localhost:3000,http://localhost:5173"`

	RedisURL       string        `env:"REDIS_URL"` // empty disables the writeup cache
	CreditCacheTTL time.Duration `env:"CREDIT_CACHE_TTL" envDefault:"5m"`

	GradesPushdown       bool `env:"GRADES_PUSHDOWN" envDefault:"true"`
	GradesStrictRequired bool `env:"GRADES_STRICT_REQUIRED" envDefault:"false"`

	// LMS passback (LTI AGS client credentials); empty token URL disables it.
	LTITokenURL     string   `env:"LTI_TOKEN_URL"`
	LTIClientID     string   `env:"LTI_CLIENT_ID"`
	LTIClientSecret string   `env:"LTI_CLIENT_SECRET"`
	LTIScopes       []string `env:"LTI_SCOPES" envSeparator:" " envDefault:"https://purl.imsglobal.org/spec/lti-ags/scope/lineitem https://purl.imsglobal.org/spec/lti-ags/scope/score"`
}

// FromEnv reads an optional .env file, then the process environment.
func FromEnv() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	switch cfg.Mode {
	case ModeOffline, ModeOnline:
	default:
		return Config{}, fmt.Errorf("MODE must be %q or %q, got %q", ModeOffline, ModeOnline, cfg.Mode)
	}
	return cfg, nil
}

// CORSOrigins picks the origin list for the current mode.
func (c Config) CORSOrigins() []string {
	if c.Mode == ModeOnline {
		return c.CORSOriginsOnline
	}
	return c.CORSOriginsOffline
}

// Offline deployments accept the role carried in the token when the user
// row is missing.
func (c Config) AllowClaimFallback() bool { return c.Mode == ModeOffline }

func (c Config) PassbackEnabled() bool { return c.LTITokenURL != "" }

// SlogLevel maps LOG_LEVEL onto a slog level; unknown values mean info.
func (c Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}
