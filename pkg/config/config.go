package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds application configuration
type Config struct {
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	Port        string `mapstructure:"PORT"`
	Environment string `mapstructure:"ENV"`
	// Security configuration
	AllowedOrigins  string `mapstructure:"ALLOWED_ORIGINS"`
	EnableRateLimit bool   `mapstructure:"ENABLE_RATE_LIMIT"`
	MaxRequestSize  int64  `mapstructure:"MAX_REQUEST_SIZE"`
	// Cache
	RedisAddr     string        `mapstructure:"REDIS_ADDR"`
	RedisPassword string        `mapstructure:"REDIS_PASSWORD"`
	ModelCacheTTL time.Duration `mapstructure:"MODEL_CACHE_TTL"`
	// Logging
	LogLevel  string `mapstructure:"LOG_LEVEL"`
	LogFormat string `mapstructure:"LOG_FORMAT"`
	// Seed library loaded into an empty database at startup
	SeedOnStart bool `mapstructure:"SEED_ON_START"`
	// Simulated data channels
	ChannelTestLatency time.Duration `mapstructure:"CHANNEL_TEST_LATENCY"`
	ChannelSuccessRate float64       `mapstructure:"CHANNEL_SUCCESS_RATE"`
	// Evaluation runs
	EvalMaxConcurrent int `mapstructure:"EVAL_MAX_CONCURRENT"`
}

var keys = []string{
	"DATABASE_URL", "PORT", "ENV", "ALLOWED_ORIGINS", "ENABLE_RATE_LIMIT",
	"MAX_REQUEST_SIZE", "REDIS_ADDR", "REDIS_PASSWORD", "MODEL_CACHE_TTL",
	"LOG_LEVEL", "LOG_FORMAT", "SEED_ON_START", "CHANNEL_TEST_LATENCY",
	"CHANNEL_SUCCESS_RATE", "EVAL_MAX_CONCURRENT",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("PORT", "8080")
	v.SetDefault("ENV", "development")
	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("ENABLE_RATE_LIMIT", true)
	v.SetDefault("MAX_REQUEST_SIZE", 10*1024*1024) // 10MB default
	v.SetDefault("REDIS_ADDR", "")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("MODEL_CACHE_TTL", 10*time.Minute)
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "console")
	v.SetDefault("SEED_ON_START", true)
	v.SetDefault("CHANNEL_TEST_LATENCY", 1500*time.Millisecond)
	v.SetDefault("CHANNEL_SUCCESS_RATE", 0.8)
	v.SetDefault("EVAL_MAX_CONCURRENT", 4)
}

// New creates a new configuration instance from .env, an optional config.yaml
// and environment variables, in increasing order of precedence.
func New() *Config {
	cfg, err := Load(".")
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v, falling back to defaults\n", err)
		v := viper.New()
		setDefaults(v)
		cfg = &Config{}
		_ = v.Unmarshal(cfg)
	}
	return cfg
}

// Load reads configuration, searching dir for .env and config.yaml
func Load(dir string) (*Config, error) {
	_ = godotenv.Load(dir + "/.env")

	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(dir)
	v.AddConfigPath(dir + "/configs")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	for _, key := range keys {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", key, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks value ranges that would otherwise fail at runtime
func (c *Config) Validate() error {
	if c.ChannelSuccessRate < 0 || c.ChannelSuccessRate > 1 {
		return fmt.Errorf("CHANNEL_SUCCESS_RATE must be between 0 and 1, got %v", c.ChannelSuccessRate)
	}
	if c.EvalMaxConcurrent < 1 {
		return fmt.Errorf("EVAL_MAX_CONCURRENT must be at least 1, got %d", c.EvalMaxConcurrent)
	}
	if c.ChannelTestLatency < 0 {
		return fmt.Errorf("CHANNEL_TEST_LATENCY must not be negative")
	}
	return nil
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// HasDatabase returns true if a Postgres connection string is configured
func (c *Config) HasDatabase() bool {
	return c.DatabaseURL != ""
}

// HasRedis returns true if a model cache address is configured
func (c *Config) HasRedis() bool {
	return c.RedisAddr != ""
}

// GetAllowedOrigins returns a slice of allowed CORS origins
func (c *Config) GetAllowedOrigins() []string {
	if c.AllowedOrigins == "" {
		return []string{"http://localhost:3000", "http://localhost:5173"}
	}
	origins := strings.Split(c.AllowedOrigins, ",")
	for i := range origins {
		origins[i] = strings.TrimSpace(origins[i])
	}
	return origins
}
