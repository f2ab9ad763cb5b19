package config

import "time"

// Config holds runtime settings for the FieldLog CLI.
type Config struct {
	ServerURL           string
	HealthAddr          string
	DatabasePath        string
	OnlineCheckInterval time.Duration
	RequestTimeout      time.Duration
	ProgramWeeks        int

	SyncDebounce time.Duration
	BackoffBase  time.Duration
	BackoffMax   time.Duration
	MaxRetries   uint64
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.ServerURL = "http://127.0.0.1:8080"
	c.HealthAddr = "127.0.0.1:50051"
	c.DatabasePath = "fieldlog.db"
	c.OnlineCheckInterval = 10 * time.Second
	c.RequestTimeout = 15 * time.Second
	c.ProgramWeeks = 25

	c.SyncDebounce = 500 * time.Millisecond
	c.BackoffBase = 2 * time.Second
	c.BackoffMax = 5 * time.Minute
	c.MaxRetries = 10
}

// LoadConfig constructs a Config, applies defaults, then overlays values from
// JSON (if present) and command-line flags (if present). Later sources take
// precedence over earlier ones.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg)
	parseFlags(cfg)
	return cfg
}
