// Package config loads runtime configuration for the wadai CLI.
//
// Sources and precedence:
//
//  1. Built-in defaults (see (*Config).LoadDefaults).
//  2. Optional JSON file selected with -c or -config.
//  3. Command-line flags, which override earlier values.
//
// Supported flags
//
//	-s string   base URL of the HTTP API
//	-g string   host:port of the gRPC endpoint
//	-d string   path of the local SQLite session file
//	-r int      proactive refresh interval (seconds, 0 disables)
//	-t int      refresh timeout (seconds)
//
// # JSON schema
//
// Durations are timex.Duration values, so either "10m" style strings or
// integer nanoseconds:
//
//	{
//	  "server_url": "http://localhost:8000",
//	  "grpc_addr": "localhost:50051",
//	  "database_path": "wadai_client.db",
//	  "refresh_interval": "10m",
//	  "refresh_timeout": "10s",
//	  "request_timeout": "15s"
//	}
package config
