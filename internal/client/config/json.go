package config

import (
	"encoding/json"
	"os"

	"github.com/dmitrijs2005/wadai/internal/flagx"
	"github.com/dmitrijs2005/wadai/internal/timex"
)

// JsonConfig is a DTO used exclusively for JSON unmarshalling. Absent keys
// keep the values from earlier layers.
type JsonConfig struct {
	ServerURL       *string         `json:"server_url"`
	GRPCAddr        *string         `json:"grpc_addr"`
	DatabasePath    *string         `json:"database_path"`
	RefreshInterval *timex.Duration `json:"refresh_interval"`
	RefreshTimeout  *timex.Duration `json:"refresh_timeout"`
	RequestTimeout  *timex.Duration `json:"request_timeout"`
}

// parseJson overlays cfg with values from the file named by -c or -config.
// It panics on read or unmarshal errors.
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

	if jc.ServerURL != nil {
		cfg.ServerURL = *jc.ServerURL
	}
	if jc.GRPCAddr != nil {
		cfg.GRPCAddr = *jc.GRPCAddr
	}
	if jc.DatabasePath != nil {
		cfg.DatabasePath = *jc.DatabasePath
	}
	if jc.RefreshInterval != nil {
		cfg.RefreshInterval = jc.RefreshInterval.Duration
	}
	if jc.RefreshTimeout != nil {
		cfg.RefreshTimeout = jc.RefreshTimeout.Duration
	}
	if jc.RequestTimeout != nil {
		cfg.RequestTimeout = jc.RequestTimeout.Duration
	}
}
