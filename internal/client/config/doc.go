// Package config loads runtime configuration for the FieldLog CLI.
//
// Sources & precedence
//
//  1. Built-in defaults (see (*Config).LoadDefaults).
//  2. Optional JSON file (see parseJson) selected via flags: -c or -config.
//  3. Command-line flags (see parseFlags), which override earlier values.
//
// Supported flags
//
//	-a string   base URL of the ingest server
//	-g string   address:port of the gRPC health endpoint
//	-d string   local database path
//	-i int      online status check interval (seconds)
//	-t int      request timeout (seconds)
//	-w int      program length in weeks
//
// # JSON schema
//
// Durations are strings like "3s" or integer nanoseconds. The backoff and
// debounce settings are only available here:
//
//	{
//	  "server_url": "http://127.0.0.1:8080",
//	  "health_addr": "127.0.0.1:50051",
//	  "database_path": "fieldlog.db",
//	  "online_check_interval": "10s",
//	  "request_timeout": "15s",
//	  "program_weeks": 25,
//	  "sync_debounce": "500ms",
//	  "backoff_base": "2s",
//	  "backoff_max": "5m",
//	  "max_retries": 10
//	}
package config
