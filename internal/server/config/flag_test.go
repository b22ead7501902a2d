package config

import (
	"os"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFlags(t *testing.T) {
	origArgs := os.Args
	t.Cleanup(func() { os.Args = origArgs })

	tests := []struct {
		expected    *Config
		name        string
		args        []string
		expectPanic bool
	}{
		{name: "all flags", args: []string{"cmd",
			"-a", "127.0.0.1:8080", "-g", "127.0.0.1:9090", "-m", "memory", "-d", "db", "-s", "secret",
			"-t", "1", "-r", "60", "-v", "30", "-i", "5", "-k", "localhost:6379", "-u", "https://wadai.example", "-l", "debug",
		}, expected: &Config{
			HTTPAddr:                          "127.0.0.1:8080",
			GRPCAddr:                          "127.0.0.1:9090",
			Storage:                           "memory",
			DatabaseDSN:                       "db",
			SecretKey:                         "secret",
			AccessTokenValidityDuration:       1 * time.Minute,
			RefreshTokenValidityDuration:      60 * time.Minute,
			VerificationTokenValidityDuration: 30 * time.Minute,
			CleanupInterval:                   5 * time.Minute,
			RedisAddr:                         "localhost:6379",
			PublicBaseURL:                     "https://wadai.example",
			LogLevel:                          "debug",
		}},
		{name: "bad int", args: []string{"cmd", "-t", "x"}, expectPanic: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			os.Args = tt.args

			config := &Config{}

			if !tt.expectPanic {
				require.NotPanics(t, func() { parseFlags(config) })
				assert.Empty(t, cmp.Diff(config, tt.expected))
			} else {
				require.Panics(t, func() { parseFlags(config) })
			}
		})
	}
}
