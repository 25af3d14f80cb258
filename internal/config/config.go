package config

import (
	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"go.uber.org/dig"

	"github.com/davidbz/hearth/internal/provider/anthropic"
	"github.com/davidbz/hearth/internal/provider/google"
	"github.com/davidbz/hearth/internal/provider/mistral"
	"github.com/davidbz/hearth/internal/provider/openai"
	"github.com/davidbz/hearth/internal/provider/xai"
)

// Config represents the gateway configuration.
type Config struct {
	Server  ServerConfig
	CORS    CORSConfig
	Pricing PricingConfig
	Redis   RedisConfig

	OpenAI    openai.Config
	Anthropic anthropic.Config
	Google    google.Config
	XAI       xai.Config
	Mistral   mistral.Config
}

// ServerConfig contains HTTP server settings. The write timeout is generous
// because completion streams stay open for the whole generation.
type ServerConfig struct {
	Port         int `env:"SERVER_PORT"          envDefault:"8080"`
	ReadTimeout  int `env:"SERVER_READ_TIMEOUT"  envDefault:"30"`
	WriteTimeout int `env:"SERVER_WRITE_TIMEOUT" envDefault:"300"`
}

// CORSConfig contains CORS policy settings.
type CORSConfig struct {
	AllowedOrigins   []string `env:"CORS_ALLOWED_ORIGINS"   envSeparator:"," envDefault:"*"`
	AllowedMethods   []string `env:"CORS_ALLOWED_METHODS"   envSeparator:"," envDefault:"GET,POST,PUT,DELETE,OPTIONS"`
	AllowedHeaders   []string `env:"CORS_ALLOWED_HEADERS"   envSeparator:"," envDefault:"Content-Type,Authorization,X-Pricing-Api-Key"`
	AllowCredentials bool     `env:"CORS_ALLOW_CREDENTIALS"                  envDefault:"true"`
	MaxAge           int      `env:"CORS_MAX_AGE"                            envDefault:"86400"`
}

// PricingConfig contains the ledger store and feed sync settings. AdminKey
// guards the pricing admin endpoints; with an empty key they are disabled.
type PricingConfig struct {
	DBPath          string `env:"PRICING_DB_PATH"            envDefault:"data/pricing.db"`
	FeedURL         string `env:"PRICING_FEED_URL"`
	AdminKey        string `env:"PRICING_API_KEY"`
	SyncOnStartup   bool   `env:"PRICING_SYNC_ON_STARTUP"    envDefault:"true"`
	FeedCacheTTLMin int    `env:"PRICING_FEED_CACHE_TTL_MIN" envDefault:"60"`
}

// RedisConfig contains the optional feed cache backend. With an empty
// address the cache is disabled and every sync pass hits the feed.
type RedisConfig struct {
	Addr     string `env:"REDIS_ADDR"`
	Password string `env:"REDIS_PASSWORD"`
	DB       int    `env:"REDIS_DB" envDefault:"0"`
}

// DepConfig is used for dependency injection with dig.
type DepConfig struct {
	dig.Out

	Server    *ServerConfig
	CORS      *CORSConfig
	Pricing   *PricingConfig
	Redis     *RedisConfig
	OpenAI    *openai.Config
	Anthropic *anthropic.Config
	Google    *google.Config
	XAI       *xai.Config
	Mistral   *mistral.Config
}

// Load loads environment files and parses configuration.
func Load() *Config {
	for _, file := range []string{".env"} {
		_ = godotenv.Load(file)
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		panic(err)
	}

	return &cfg
}

// ParseDependenciesConfig returns pointers to sub-configs for dependency injection.
func ParseDependenciesConfig(cfg *Config) DepConfig {
	return DepConfig{
		Server:    &cfg.Server,
		CORS:      &cfg.CORS,
		Pricing:   &cfg.Pricing,
		Redis:     &cfg.Redis,
		OpenAI:    &cfg.OpenAI,
		Anthropic: &cfg.Anthropic,
		Google:    &cfg.Google,
		XAI:       &cfg.XAI,
		Mistral:   &cfg.Mistral,
	}
}
