package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	HTTPAddr string     `env:"HTTP_ADDR" envDefault:":8080"`
	LogLevel slog.Level `env:"LOG_LEVEL" envDefault:"INFO"`
	DBPath   string     `env:"DB_PATH" envDefault:"data/missions.db"`

	EvaluationLogDSN string `env:"EVALUATION_LOG_DSN"`
	SupabaseURL      string `env:"SUPABASE_URL"`
	SupabaseKey      string `env:"SUPABASE_KEY"`

	RedisURL          string        `env:"REDIS_URL"`
	RateLimit         int           `env:"RATE_LIMIT" envDefault:"10"`
	RateWindow        time.Duration `env:"RATE_WINDOW" envDefault:"1h"`
	RateSweepInterval time.Duration `env:"RATE_SWEEP_INTERVAL" envDefault:"1h"`

	MaxBodyBytes int64 `env:"MAX_BODY_BYTES" envDefault:"53000"`
	MaxTextChars int   `env:"MAX_TEXT_CHARS" envDefault:"2048"`

	Evaluator Evaluator `envPrefix:"EVALUATOR_"`
	OpenAI    Provider  `envPrefix:"OPENAI_"`
	Gemini    Provider  `envPrefix:"GEMINI_"`

	CatalogPath string `env:"CATALOG_PATH"`
	SPADir      string `env:"SPA_DIR"`

	Session Session `envPrefix:"SESSION_"`
}

type Session struct {
	Cookie        string        `env:"COOKIE" envDefault:"mission_session"`
	IdleTimeout   time.Duration `env:"IDLE_TIMEOUT" envDefault:"30m"`
	SweepInterval time.Duration `env:"SWEEP_INTERVAL" envDefault:"5m"`
	Retention     time.Duration `env:"RETENTION" envDefault:"2160h"`
}

type Evaluator struct {
	Provider    string        `env:"PROVIDER" envDefault:"openai"`
	Temperature float64       `env:"TEMPERATURE" envDefault:"0.1"`
	MaxTokens   int           `env:"MAX_TOKENS" envDefault:"2500"`
	Timeout     time.Duration `env:"TIMEOUT" envDefault:"60s"`
	Endpoint    string        `env:"ENDPOINT"`
}

type Provider struct {
	APIKey string `env:"API_KEY"`
	Model  string `env:"MODEL"`
}

// Load reads an optional .env file from the working directory and then
// parses the process environment. Variables already set win over .env.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}

	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("parsing environment: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.Evaluator.Provider {
	case "openai", "gemini":
	default:
		return fmt.Errorf("EVALUATOR_PROVIDER must be openai or gemini, got %q", c.Evaluator.Provider)
	}
	if c.RateLimit < 1 {
		return fmt.Errorf("RATE_LIMIT must be positive, got %d", c.RateLimit)
	}
	if c.RateWindow <= 0 {
		return fmt.Errorf("RATE_WINDOW must be positive, got %s", c.RateWindow)
	}
	if c.RateSweepInterval <= 0 {
		return fmt.Errorf("RATE_SWEEP_INTERVAL must be positive, got %s", c.RateSweepInterval)
	}
	if c.MaxBodyBytes <= 0 || c.MaxTextChars <= 0 {
		return errors.New("MAX_BODY_BYTES and MAX_TEXT_CHARS must be positive")
	}
	if c.Session.IdleTimeout <= 0 || c.Session.SweepInterval <= 0 {
		return errors.New("SESSION_IDLE_TIMEOUT and SESSION_SWEEP_INTERVAL must be positive")
	}
	if c.Session.Cookie == "" {
		return errors.New("SESSION_COOKIE must not be empty")
	}
	return nil
}

// ProviderKey returns the credential of the selected evaluator provider.
func (c *Config) ProviderKey() string {
	if c.Evaluator.Provider == "gemini" {
		return c.Gemini.APIKey
	}
	return c.OpenAI.APIKey
}

// ProviderModel returns the model of the selected evaluator provider,
// falling back to the provider's default.
func (c *Config) ProviderModel() string {
	if c.Evaluator.Provider == "gemini" {
		if c.Gemini.Model != "" {
			return c.Gemini.Model
		}
		return "gemini-2.5-flash"
	}
	if c.OpenAI.Model != "" {
		return c.OpenAI.Model
	}
	return "gpt-4o"
}
