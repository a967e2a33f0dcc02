package main

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/sirupsen/logrus"
)

type config struct {
	APIBase      string        `env:"POLLSYNC_API_BASE,required"`
	UserID       string        `env:"POLLSYNC_USER_ID"`
	Role         string        `env:"POLLSYNC_ROLE" envDefault:"user"`
	PollInterval time.Duration `env:"POLLSYNC_POLL_INTERVAL" envDefault:"30s"`
	StoreDriver  string        `env:"POLLSYNC_STORE_DRIVER" envDefault:"memory"`
	FileDir      string        `env:"POLLSYNC_FILE_DIR"`
	RedisAddr    string        `env:"POLLSYNC_REDIS_ADDR" envDefault:"127.0.0.1:6379"`
	MetricsAddr  string        `env:"POLLSYNC_METRICS_ADDR"`
	LogLevel     string        `env:"POLLSYNC_LOG_LEVEL" envDefault:"info"`
}

func parseConfig(environ map[string]string) (config, error) {
	var cfg config
	opts := env.Options{}
	if environ != nil {
		opts.Environment = environ
	}
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return config{}, fmt.Errorf("parse env: %w", err)
	}
	if cfg.PollInterval <= 0 {
		return config{}, fmt.Errorf("POLLSYNC_POLL_INTERVAL must be positive, got %s", cfg.PollInterval)
	}
	switch cfg.StoreDriver {
	case "memory", "file", "redis":
	default:
		return config{}, fmt.Errorf("unsupported POLLSYNC_STORE_DRIVER %q", cfg.StoreDriver)
	}
	return cfg, nil
}

func (c config) level() logrus.Level {
	lvl, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		return logrus.InfoLevel
	}
	return lvl
}
