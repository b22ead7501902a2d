package config

import "time"

// Config holds runtime settings for the wadai CLI.
//
// Fields:
//   - ServerURL: base URL of the HTTP API.
//   - GRPCAddr: host:port of the gRPC endpoint, used for health checks.
//   - DatabasePath: SQLite file that keeps the session between runs.
//   - RefreshInterval: proactive token rotation period. Zero disables it.
//   - RefreshTimeout: upper bound for a single rotation call.
//   - RequestTimeout: upper bound for any other API call.
type Config struct {
	ServerURL       string
	GRPCAddr        string
	DatabasePath    string
	RefreshInterval time.Duration
	RefreshTimeout  time.Duration
	RequestTimeout  time.Duration
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.ServerURL = "http://localhost:8000"
	c.GRPCAddr = "localhost:50051"
	c.DatabasePath = "wadai_client.db"
	c.RefreshInterval = 10 * time.Minute
	c.RefreshTimeout = 10 * time.Second
	c.RequestTimeout = 15 * time.Second
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
