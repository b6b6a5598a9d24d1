package config

import (
	"fmt"

	"github.com/Netflix/go-env"
)

type Config struct {
	DatabaseDSN       string `env:"DATABASE_DSN,required=true"`
	DatabaseMaxConns  int    `env:"DATABASE_MAX_CONNS,default=25"`
	RedisURL          string `env:"REDIS_URL,required=true"`
	DirectoryURL      string `env:"DIRECTORY_URL,required=true"`
	DirectoryToken    string `env:"DIRECTORY_TOKEN"`
	PushQueueURL      string `env:"PUSH_QUEUE_URL"`
	FanoutConcurrency int    `env:"FANOUT_CONCURRENCY,default=16"`
	FanoutRatePerSec  int    `env:"FANOUT_RATE_PER_SEC,default=200"`
	FanoutLimiter     string `env:"FANOUT_LIMITER,default=redis"`
	APIPort           int    `env:"API_PORT,default=8080"`
	LogLevel          string `env:"LOG_LEVEL,default=info"`
}

func Load() (*Config, error) {
	var cfg Config
	_, err := env.UnmarshalFromEnviron(&cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &cfg, nil
}
