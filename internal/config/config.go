// Package config loads the gateway configuration from the environment.
// A .env file in the working directory is read first when present.
package config

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"
)

// Store drivers accepted by STORE_DRIVER.
const (
	DriverMongo    = "mongo"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

const (
	// DefaultPageSize is used when a history request carries no limit.
	DefaultPageSize = 50
	// MaxPageSize caps the limit of a single history request.
	MaxPageSize = 200
)

var ErrMissingSecret = errors.New("JWT_SECRET is required")

// Config defines fields parsed from environment variables.
type Config struct {
	Host string `env:"HOST" envDefault:"0.0.0.0"`
	Port uint16 `env:"PORT" envDefault:"8080"`
	Env  string `env:"APP_ENV" envDefault:"production"`

	JWTSecret string `env:"JWT_SECRET"`

	StoreDriver  string        `env:"STORE_DRIVER" envDefault:"mongo"`
	StoreTimeout time.Duration `env:"STORE_TIMEOUT" envDefault:"5s"`
	MongoURI     string        `env:"MONGO_URI" envDefault:"mongodb://localhost:27017"`
	MongoDB      string        `env:"MONGO_DB" envDefault:"plataforma_practicas"`
	DatabaseURL  string        `env:"DATABASE_URL" envDefault:"host=localhost user=user password=password dbname=protalent port=5432 sslmode=disable"`

	RedisAddr     string `env:"REDIS_ADDR"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`

	KafkaBrokers []string `env:"KAFKA_BROKERS" envSeparator:","`
	KafkaTopic   string   `env:"KAFKA_TOPIC" envDefault:"chat-events"`

	WSRatePerSecond   float64 `env:"WS_RATE_PER_SECOND" envDefault:"10"`
	WSRateBurst       int     `env:"WS_RATE_BURST" envDefault:"20"`
	WSMaxMessageBytes int64   `env:"WS_MAX_MESSAGE_BYTES" envDefault:"8192"`

	HTTPReadTimeout time.Duration `env:"HTTP_READ_TIMEOUT" envDefault:"10s"`
}

// Load reads .env (if any) and parses the environment into Config.
// The returned bool is false when no .env file was found.
func Load() (Config, bool, error) {
	dotenv := godotenv.Load() == nil

	cfg, err := Parse()
	return cfg, dotenv, err
}

// Parse parses the current environment into Config and validates it.
func Parse() (Config, error) {
	cfg := Config{}
	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("parse env config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks the values env tags cannot express.
func (c Config) Validate() error {
	if c.JWTSecret == "" {
		return ErrMissingSecret
	}
	switch c.StoreDriver {
	case DriverMongo, DriverPostgres, DriverMemory:
	default:
		return fmt.Errorf("unknown STORE_DRIVER %q", c.StoreDriver)
	}
	if c.WSRatePerSecond <= 0 || c.WSRateBurst <= 0 {
		return errors.New("WS_RATE_PER_SECOND and WS_RATE_BURST must be positive")
	}
	return nil
}

// Addr is the listen address of the HTTP server.
func (c Config) Addr() string {
	return c.Host + ":" + strconv.FormatUint(uint64(c.Port), 10)
}

// Development reports whether APP_ENV selects development logging.
func (c Config) Development() bool {
	return c.Env == "development"
}
