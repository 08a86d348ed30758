package config

import (
	"context"
	"fmt"
	"time"

	"github.com/sethvargo/go-envconfig"
)

type Config struct {
	Port     string `env:"PORT,      default=8080"`
	Env      string `env:"ENV,       default=development"`
	LogLevel string `env:"LOG_LEVEL, default=info"`

	Auth   AuthConfig
	Mongo  MongoConfig
	Redis  RedisConfig
	SMTP   SMTPConfig
	Notify NotifyConfig
}

// AuthConfig carries the token issuer secrets and TTLs. The secrets are
// loaded once at startup; rotating either invalidates every outstanding token
// of that family.
type AuthConfig struct {
	SessionSecret string        `env:"SESSION_SECRET, required"`
	RefreshSecret string        `env:"REFRESH_SECRET, required"`
	SessionTTL    time.Duration `env:"SESSION_TTL,    default=24h"`
	RefreshTTL    time.Duration `env:"REFRESH_TTL,    default=168h"`
	BcryptCost    int           `env:"BCRYPT_COST,    default=10"`
	MaxAttempts   int64         `env:"MAX_ATTEMPTS,   default=10"`
	AttemptWindow time.Duration `env:"ATTEMPT_WINDOW, default=15m"`
}

type MongoConfig struct {
	URI      string `env:"MONGO_URI, default=mongodb://localhost:27017"`
	Database string `env:"MONGO_DB,  default=clinicore"`
}

type RedisConfig struct {
	Addr     string `env:"REDIS_ADDR, default=localhost:6379"`
	Password string `env:"REDIS_PASSWORD"`
	DB       int    `env:"REDIS_DB,   default=0"`
}

// SMTPConfig configures the notifier. An empty Host selects log delivery.
type SMTPConfig struct {
	Host        string `env:"SMTP_HOST"`
	Port        string `env:"SMTP_PORT, default=465"`
	Username    string `env:"SMTP_USERNAME"`
	Password    string `env:"SMTP_PASSWORD"`
	From        string `env:"SMTP_FROM"`
	LinkBaseURL string `env:"LINK_BASE_URL, default=http://localhost:8080"`
}

type NotifyConfig struct {
	Workers     int `env:"NOTIFY_WORKERS,      default=4"`
	MaxAttempts int `env:"NOTIFY_MAX_ATTEMPTS, default=3"`
}

// Load reads configuration from environment variables using go-envconfig.
func Load(ctx context.Context) (*Config, error) {
	var cfg Config
	if err := envconfig.Process(ctx, &cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return &cfg, nil
}
