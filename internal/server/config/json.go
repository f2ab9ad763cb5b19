package config

import (
	"os"

	"github.com/dmitrijs2005/fieldlog/internal/flagx"
	"github.com/dmitrijs2005/fieldlog/internal/timex"
	"github.com/goccy/go-json"
)

// JsonConfig defines a configuration structure tailored for JSON unmarshalling.
// It uses timex.Duration for interval fields, which allows parsing both
// string values such as "1s" and integer nanoseconds.
//
// Pointer fields distinguish "absent" from an explicit zero, which matters
// for the tolerance and the rate limit.
type JsonConfig struct {
	HTTPAddr                    string         `json:"http_addr"`
	GRPCAddr                    string         `json:"grpc_addr"`
	DatabaseDSN                 string         `json:"database_dsn"`
	SecretKey                   string         `json:"secret_key"`
	AccessTokenValidityDuration timex.Duration `json:"access_token_validity_duration"`
	ProgramWeeks                int            `json:"program_weeks"`
	GeofenceToleranceMeters     *float64       `json:"geofence_tolerance_meters"`
	RateLimitPerMinute          *int           `json:"rate_limit_per_minute"`
	Env                         string         `json:"env"`
	LogFormat                   string         `json:"log_format"`
}

// parseJson loads configuration values from the JSON file named by -c or
// -config into the provided Config. Fields absent from the file keep their
// current value. If the file cannot be read or contains invalid JSON, the
// function panics.
func parseJson(config *Config) {

	jsonConfigFile := flagx.JsonConfigFlags()

	// nothing to load
	if jsonConfigFile == "" {
		return
	}

	c := &JsonConfig{}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}

	err = json.Unmarshal(file, c)
	if err != nil {
		panic(err)
	}

	if c.HTTPAddr != "" {
		config.HTTPAddr = c.HTTPAddr
	}
	if c.GRPCAddr != "" {
		config.GRPCAddr = c.GRPCAddr
	}
	if c.DatabaseDSN != "" {
		config.DatabaseDSN = c.DatabaseDSN
	}
	if c.SecretKey != "" {
		config.SecretKey = c.SecretKey
	}
	if c.AccessTokenValidityDuration.Duration > 0 {
		config.AccessTokenValidityDuration = c.AccessTokenValidityDuration.Duration
	}
	if c.ProgramWeeks > 0 {
		config.ProgramWeeks = c.ProgramWeeks
	}
	if c.GeofenceToleranceMeters != nil {
		config.GeofenceToleranceMeters = *c.GeofenceToleranceMeters
	}
	if c.RateLimitPerMinute != nil {
		config.RateLimitPerMinute = *c.RateLimitPerMinute
	}
	if c.Env != "" {
		config.Env = c.Env
	}
	if c.LogFormat != "" {
		config.LogFormat = c.LogFormat
	}
}
