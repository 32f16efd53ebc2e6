package config

import (
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/pkg/errors"
)

// Config is read from the environment, optionally seeded from a .env file
type Config struct {
	DBDriver       string `envconfig:"DB_DRIVER" default:"sqlite"`
	DBPath         string `envconfig:"DB_PATH" default:"./store_billing.db"`
	DatabaseURL    string `envconfig:"DATABASE_URL"`
	MigrationsPath string `envconfig:"MIGRATIONS_PATH" default:"./internal/repository/migrations"`

	HTTPPort        string        `envconfig:"HTTP_PORT" default:"8080"`
	RequestTimeout  time.Duration `envconfig:"REQUEST_TIMEOUT" default:"30s"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"10s"`

	RedisAddr string        `envconfig:"REDIS_ADDR"`
	CacheTTL  time.Duration `envconfig:"CACHE_TTL" default:"15m"`

	KafkaBrokers   []string      `envconfig:"KAFKA_BROKERS"`
	KafkaTopic     string        `envconfig:"KAFKA_TOPIC" default:"ledger-events"`
	OutboxInterval time.Duration `envconfig:"OUTBOX_INTERVAL" default:"1s"`

	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat string `envconfig:"LOG_FORMAT" default:"json"`

	CurrencySymbol string `envconfig:"CURRENCY_SYMBOL" default:"₹"`

	RequireSaleReference      bool `envconfig:"REQUIRE_SALE_REFERENCE" default:"false"`
	ExchangeCheckAfterRestore bool `envconfig:"EXCHANGE_CHECK_AFTER_RESTORE" default:"false"`
}

// Load reads envFile when it exists, then the process environment.
// Variables already set in the environment win over the file.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if _, err := os.Stat(envFile); err == nil {
			if err := godotenv.Load(envFile); err != nil {
				return nil, errors.Wrapf(err, "load %s", envFile)
			}
		}
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, errors.Wrap(err, "process env")
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// DSN returns the connection string for the configured driver
func (c *Config) DSN() string {
	if c.DBDriver == "postgres" {
		return c.DatabaseURL
	}
	return c.DBPath
}

func (c *Config) CacheEnabled() bool { return c.RedisAddr != "" }

func (c *Config) PublisherEnabled() bool { return len(c.KafkaBrokers) > 0 }

func (c *Config) validate() error {
	brokers := c.KafkaBrokers[:0]
	for _, b := range c.KafkaBrokers {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	c.KafkaBrokers = brokers

	switch c.DBDriver {
	case "sqlite":
		if c.DBPath == "" {
			return errors.New("DB_PATH is required for the sqlite driver")
		}
	case "postgres":
		if c.DatabaseURL == "" {
			return errors.New("DATABASE_URL is required for the postgres driver")
		}
	default:
		return errors.Errorf("unsupported DB_DRIVER %q", c.DBDriver)
	}

	switch strings.ToLower(c.LogFormat) {
	case "json", "text":
	default:
		return errors.Errorf("unsupported LOG_FORMAT %q", c.LogFormat)
	}
	return nil
}
