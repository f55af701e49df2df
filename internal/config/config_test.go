package config

import (
	"flag"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseConfig(t *testing.T) {
	type want struct {
		runAddress     string
		backendAddress string
		requestTimeout time.Duration
		sessionSecret  string
	}

	tests := []struct {
		name  string
		env   map[string]string
		flags []string
		want  want
	}{
		{
			name:  "defaults",
			env:   map[string]string{},
			flags: []string{},
			want: want{
				runAddress:     "localhost:8080",
				requestTimeout: 5 * time.Second,
			},
		},
		{
			name: "env only",
			env: map[string]string{
				"RUN_ADDRESS":     "localhost:9999",
				"BACKEND_ADDRESS": "localhost:8081",
				"REQUEST_TIMEOUT": "10s",
				"SESSION_SECRET":  "env-secret",
			},
			flags: []string{},
			want: want{
				runAddress:     "localhost:9999",
				backendAddress: "localhost:8081",
				requestTimeout: 10 * time.Second,
				sessionSecret:  "env-secret",
			},
		},
		{
			name: "flags only",
			env:  map[string]string{},
			flags: []string{
				"-a", "localhost:7777",
				"-b", "backend:8080",
				"-t", "2s",
				"-s", "flag-secret",
			},
			want: want{
				runAddress:     "localhost:7777",
				backendAddress: "backend:8080",
				requestTimeout: 2 * time.Second,
				sessionSecret:  "flag-secret",
			},
		},
		{
			name: "env overrides flags",
			env: map[string]string{
				"RUN_ADDRESS":     "env:9000",
				"BACKEND_ADDRESS": "env-backend:8081",
				"REQUEST_TIMEOUT": "15s",
				"SESSION_SECRET":  "env-secret",
			},
			flags: []string{
				"-a", "flag:8000",
				"-b", "flag-backend:8080",
				"-t", "2s",
				"-s", "flag-secret",
			},
			want: want{
				runAddress:     "env:9000",
				backendAddress: "env-backend:8081",
				requestTimeout: 15 * time.Second,
				sessionSecret:  "env-secret",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			flag.CommandLine = flag.NewFlagSet(os.Args[0], flag.ExitOnError)

			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			os.Args = append([]string{"test"}, tt.flags...)

			cfg, err := Parse()
			require.NoError(t, err)

			assert.Equal(t, tt.want.runAddress, cfg.RunAddress)
			assert.Equal(t, tt.want.backendAddress, cfg.BackendAddress)
			assert.Equal(t, tt.want.requestTimeout, cfg.RequestTimeout)
			assert.Equal(t, tt.want.sessionSecret, cfg.SessionSecret)
		})
	}
}
