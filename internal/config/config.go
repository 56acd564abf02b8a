package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	Environment string `env:"ENV" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL"`
	Port        string `env:"PORT" envDefault:"8080"`
	// Raw HOST env (e.g. https://api.example.com); only checked in production.
	Host       string `env:"HOST" envDefault:"http://localhost:8080"`
	TrustProxy bool   `env:"TRUST_PROXY" envDefault:"false"`

	MongoURI      string `env:"MONGODB_URI" envDefault:"mongodb://localhost:27017/mystery_message"`
	MongoDatabase string `env:"MONGODB_DATABASE"`
	RedisURI      string `env:"REDIS_URI" envDefault:"redis://localhost:6379/0"`

	FrontendURL    string   `env:"FRONTEND_URL" envDefault:"http://localhost:3000"`
	AllowedOrigins []string `env:"ALLOWED_ORIGINS" envSeparator:","`

	ResendAPIKey string `env:"RESEND_API_KEY"`
	EmailFrom    string `env:"EMAIL_FROM" envDefault:"Mystery Message <onboarding@resend.dev>"`

	VerifyCodeTTL time.Duration `env:"VERIFY_CODE_TTL" envDefault:"1h"`
	SessionTTL    time.Duration `env:"SESSION_TTL" envDefault:"168h"`

	Argon2    Argon2    `envPrefix:"ARGON2_"`
	RateLimit RateLimit `envPrefix:"RATE_LIMIT_"`
}

// Argon2 holds the password hashing cost. Zero values fall back to the hasher default.
type Argon2 struct {
	Time   uint32 `env:"TIME"`
	MemKiB uint32 `env:"MEM"`
	Par    uint8  `env:"PAR"`
}

// RateLimit configures the Redis limiter on message intake and the in-memory
// per-IP limiter on the auth routes.
type RateLimit struct {
	SendWindow   time.Duration `env:"SEND_WINDOW" envDefault:"120s"`
	SendMax      int           `env:"SEND_MAX" envDefault:"25"`
	SendBlockFor time.Duration `env:"SEND_BLOCK_FOR" envDefault:"1h"`
	AuthEvery    time.Duration `env:"AUTH_EVERY" envDefault:"5s"`
	AuthBurst    int           `env:"AUTH_BURST" envDefault:"5"`
}

func Load() (*Config, error) {
	cfg := Config{}
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.Environment = strings.ToLower(strings.TrimSpace(cfg.Environment))
	cfg.AllowedOrigins = parseOrigins(cfg.AllowedOrigins)
	if len(cfg.AllowedOrigins) == 0 && cfg.FrontendURL != "" {
		cfg.AllowedOrigins = []string{strings.TrimRight(cfg.FrontendURL, "/")}
	}

	if cfg.VerifyCodeTTL <= 0 {
		return nil, fmt.Errorf("VERIFY_CODE_TTL must be positive, got %s", cfg.VerifyCodeTTL)
	}
	if cfg.SessionTTL <= 0 {
		return nil, fmt.Errorf("SESSION_TTL must be positive, got %s", cfg.SessionTTL)
	}
	return &cfg, nil
}

// IsProduction returns true when ENV is set to "production".
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// AllowedHost is the bare hostname of HOST in production and "" elsewhere,
// which disables the host check.
func (c *Config) AllowedHost() string {
	if !c.IsProduction() {
		return ""
	}
	host := c.Host
	for _, prefix := range []string{"https://", "http://"} {
		host = strings.TrimPrefix(host, prefix)
	}
	if idx := strings.Index(host, "/"); idx != -1 {
		host = host[:idx]
	}
	if idx := strings.Index(host, ":"); idx != -1 {
		host = host[:idx]
	}
	return strings.TrimSpace(host)
}

func parseOrigins(in []string) []string {
	var out []string
	for _, part := range in {
		part = strings.TrimRight(strings.TrimSpace(part), "/")
		if part != "" && !containsOrigin(out, part) {
			out = append(out, part)
		}
	}
	return out
}

func containsOrigin(list []string, o string) bool {
	o = strings.TrimSpace(strings.ToLower(o))
	for _, v := range list {
		if strings.TrimSpace(strings.ToLower(v)) == o {
			return true
		}
	}
	return false
}
