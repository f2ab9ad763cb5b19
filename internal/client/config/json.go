package config

import (
	"os"

	"github.com/dmitrijs2005/fieldlog/internal/flagx"
	"github.com/dmitrijs2005/fieldlog/internal/timex"
	"github.com/goccy/go-json"
)

// JsonConfig is a DTO used exclusively for JSON unmarshalling. Durations
// accept strings like "3s" or integer nanoseconds.
type JsonConfig struct {
	ServerURL           string         `json:"server_url"`
	HealthAddr          string         `json:"health_addr"`
	DatabasePath        string         `json:"database_path"`
	OnlineCheckInterval timex.Duration `json:"online_check_interval"`
	RequestTimeout      timex.Duration `json:"request_timeout"`
	ProgramWeeks        int            `json:"program_weeks"`
	SyncDebounce        timex.Duration `json:"sync_debounce"`
	BackoffBase         timex.Duration `json:"backoff_base"`
	BackoffMax          timex.Duration `json:"backoff_max"`
	MaxRetries          uint64         `json:"max_retries"`
}

// parseJson overlays Config with values loaded from the JSON file named by
// -c or -config. Fields absent from the file keep their current value.
// Panics on read or unmarshal errors.
func parseJson(cfg *Config) {
	jsonConfigFile := flagx.JsonConfigFlags()
	if jsonConfigFile == "" {
		return
	}

	var jc JsonConfig

	data, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}
	if err := json.Unmarshal(data, &jc); err != nil {
		panic(err)
	}

	if jc.ServerURL != "" {
		cfg.ServerURL = jc.ServerURL
	}
	if jc.HealthAddr != "" {
		cfg.HealthAddr = jc.HealthAddr
	}
	if jc.DatabasePath != "" {
		cfg.DatabasePath = jc.DatabasePath
	}
	if jc.OnlineCheckInterval.Duration > 0 {
		cfg.OnlineCheckInterval = jc.OnlineCheckInterval.Duration
	}
	if jc.RequestTimeout.Duration > 0 {
		cfg.RequestTimeout = jc.RequestTimeout.Duration
	}
	if jc.ProgramWeeks > 0 {
		cfg.ProgramWeeks = jc.ProgramWeeks
	}
	if jc.SyncDebounce.Duration > 0 {
		cfg.SyncDebounce = jc.SyncDebounce.Duration
	}
	if jc.BackoffBase.Duration > 0 {
		cfg.BackoffBase = jc.BackoffBase.Duration
	}
	if jc.BackoffMax.Duration > 0 {
		cfg.BackoffMax = jc.BackoffMax.Duration
	}
	if jc.MaxRetries > 0 {
		cfg.MaxRetries = jc.MaxRetries
	}
}
