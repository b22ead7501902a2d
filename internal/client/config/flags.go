package config

import (
	"flag"
	"os"
	"time"

	"github.com/dmitrijs2005/wadai/internal/flagx"
)

// parseFlags populates selected Config fields from command-line flags.
// Only the flags listed in doc.go are considered; everything else on the
// command line is left for other parsers.
func parseFlags(cfg *Config) {
	args := flagx.FilterArgs(os.Args[1:], []string{"-s", "-g", "-d", "-r", "-t"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&cfg.ServerURL, "s", cfg.ServerURL, "base URL of the HTTP API")
	fs.StringVar(&cfg.GRPCAddr, "g", cfg.GRPCAddr, "address and port of the gRPC endpoint")
	fs.StringVar(&cfg.DatabasePath, "d", cfg.DatabasePath, "local session database")
	refreshInterval := fs.Int("r", int(cfg.RefreshInterval.Seconds()), "proactive refresh interval (in seconds)")
	refreshTimeout := fs.Int("t", int(cfg.RefreshTimeout.Seconds()), "refresh timeout (in seconds)")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	cfg.RefreshInterval = time.Duration(*refreshInterval) * time.Second
	cfg.RefreshTimeout = time.Duration(*refreshTimeout) * time.Second
}
