// Package config loads service configuration from the environment, with an
// optional .env file for local development.
package config

import (
	"fmt"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Server struct {
		Host               string `envconfig:"HOST" default:""`
		Port               int    `envconfig:"PORT" default:"8080"`
		LogLevel           string `envconfig:"LOG_LEVEL" default:"info"`
		ShutdownGraceSecs  int    `envconfig:"SHUTDOWN_GRACE_SECONDS" default:"30"`
		AllowedCORSOrigins string `envconfig:"CORS_ORIGINS" default:"http://localhost:5173,http://localhost:8080"`
	} `envconfig:"SERVER"`

	DB struct {
		Path string `envconfig:"PATH" default:"leave.db"`
	} `envconfig:"DB"`

	Cache struct {
		// RedisAddr empty means the no-op cache.
		RedisAddr     string `envconfig:"REDIS_ADDR" default:""`
		RedisPassword string `envconfig:"REDIS_PASSWORD" default:""`
		RedisDB       int    `envconfig:"REDIS_DB" default:"0"`
		TTLSeconds    int    `envconfig:"TTL_SECONDS" default:"30"`
	} `envconfig:"CACHE"`

	AMQP struct {
		// URL empty means the no-op publisher.
		URL      string `envconfig:"URL" default:""`
		Exchange string `envconfig:"EXCHANGE" default:"leave.events"`
	} `envconfig:"AMQP"`

	Sweep struct {
		Enabled         bool `envconfig:"ENABLED" default:"true"`
		IntervalMinutes int  `envconfig:"INTERVAL_MINUTES" default:"60"`
	} `envconfig:"SWEEP"`
}

// Load reads .env if present, then the process environment.
func Load() (*Config, error) {
	// Missing .env is fine; env vars may come from the runtime instead.
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("process environment: %w", err)
	}
	return &cfg, nil
}
