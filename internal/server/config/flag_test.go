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
			"-a", "127.0.0.1:9090", "-g", "127.0.0.1:9091", "-d", "db", "-s", "secret",
			"-t", "60", "-w", "12", "-m", "25.5", "-r", "0", "-e", "production", "-l", "text",
		}, expectPanic: false,
			expected: &Config{
				HTTPAddr:                    "127.0.0.1:9090",
				GRPCAddr:                    "127.0.0.1:9091",
				DatabaseDSN:                 "db",
				SecretKey:                   "secret",
				AccessTokenValidityDuration: time.Hour,
				ProgramWeeks:                12,
				GeofenceToleranceMeters:     25.5,
				RateLimitPerMinute:          0,
				Env:                         "production",
				LogFormat:                   "text",
			}},
		{name: "unknown flags are ignored", args: []string{"cmd", "-x", "1", "-w", "3", "-c", "cfg.json"},
			expected: &Config{ProgramWeeks: 3}},
		{name: "incorrect weeks", args: []string{"cmd", "-w", "many"}, expectPanic: true},
		{name: "incorrect tolerance", args: []string{"cmd", "-m", "wide"}, expectPanic: true},
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
