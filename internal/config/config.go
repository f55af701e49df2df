// Package config содержит логику чтения конфигурации клиента Swad.
package config

import (
	"flag"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config содержит параметры конфигурации клиента Swad.
type Config struct {
	RunAddress     string        `env:"RUN_ADDRESS"`
	BackendAddress string        `env:"BACKEND_ADDRESS"`
	RequestTimeout time.Duration `env:"REQUEST_TIMEOUT"`
	SessionSecret  string        `env:"SESSION_SECRET"`
}

// Parse считывает конфигурацию из флагов командной строки и переменных окружения.
func Parse() (*Config, error) {
	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	envRunAddress := cfg.RunAddress
	envBackendAddress := cfg.BackendAddress
	envRequestTimeout := cfg.RequestTimeout
	envSessionSecret := cfg.SessionSecret

	flag.StringVar(&cfg.RunAddress, "a", "localhost:8080", "address and port for HTTP server")
	flag.StringVar(&cfg.BackendAddress, "b", "", "restaurant backend address")
	flag.DurationVar(&cfg.RequestTimeout, "t", 5*time.Second, "backend request timeout")
	flag.StringVar(&cfg.SessionSecret, "s", "", "session cookie signing secret")

	flag.Parse()

	if envRunAddress != "" {
		cfg.RunAddress = envRunAddress
	}
	if envBackendAddress != "" {
		cfg.BackendAddress = envBackendAddress
	}
	if envRequestTimeout != 0 {
		cfg.RequestTimeout = envRequestTimeout
	}
	if envSessionSecret != "" {
		cfg.SessionSecret = envSessionSecret
	}

	if cfg.RunAddress == "" {
		cfg.RunAddress = "localhost:8080"
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 5 * time.Second
	}

	return cfg, nil
}
