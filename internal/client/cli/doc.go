// Package cli provides the interactive wadai command-line client.
//
// It wires configuration, the local session file, the HTTP API and a gRPC
// health channel into a small REPL. A session persisted by an earlier run is
// restored on start, kept fresh in the background and cleared on logout.
//
// The REPL is started with App.Run(ctx), which blocks until the user exits.
package cli
