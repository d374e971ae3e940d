package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds the storyline server configuration.
type Config struct {
	// Server settings
	Port     string `envconfig:"SERVER_PORT" default:"8080"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`

	// PostgreSQL settings
	DBHost     string `envconfig:"DB_HOST" required:"true"`
	DBPort     string `envconfig:"DB_PORT" default:"5432"`
	DBUser     string `envconfig:"DB_USER" required:"true"`
	DBPassword string `envconfig:"DB_PASSWORD" required:"true"`
	DBName     string `envconfig:"DB_NAME" required:"true"`
	DBSSLMode  string `envconfig:"DB_SSL_MODE" default:"disable"`
	DBMaxConns int    `envconfig:"DB_MAX_CONNECTIONS" default:"10"`

	MigrationsPath string `envconfig:"MIGRATIONS_PATH" default:"migrations"`

	// Redis settings (per-user progress locking)
	RedisAddr     string        `envconfig:"REDIS_ADDR" default:"localhost:6379"`
	RedisPassword string        `envconfig:"REDIS_PASSWORD" default:""`
	RedisDB       int           `envconfig:"REDIS_DB" default:"0"`
	LockTTL       time.Duration `envconfig:"PROGRESS_LOCK_TTL" default:"10s"`

	// Reply generation settings
	AIAPIKey           string        `envconfig:"AI_API_KEY" required:"true"`
	AIBaseURL          string        `envconfig:"AI_BASE_URL" default:""`
	AIModelName        string        `envconfig:"AI_MODEL_NAME" default:""`
	AITimeout          time.Duration `envconfig:"AI_TIMEOUT" default:"60s"`
	AIMaxRetries       int           `envconfig:"AI_MAX_RETRIES" default:"3"`
	HistoryTokenBudget int           `envconfig:"HISTORY_TOKEN_BUDGET" default:"3000"`
}

// GetDSN returns the PostgreSQL connection string.
func (c *Config) GetDSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName, c.DBSSLMode)
}

// LoadConfig reads configuration from environment variables.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load storyline server config: %w", err)
	}
	return &cfg, nil
}
