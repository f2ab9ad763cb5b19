// Package cli provides the interactive FieldLog command-line client.
//
// It wires configuration, the local store, the server client, the sync
// engine and the connectivity monitor, then runs a REPL. Entries are always
// written locally first; the monitor pushes them to the server whenever it
// is reachable, and the user can force a pass with "sync".
//
// The REPL is started via App.Run(ctx), which blocks until the user exits.
package cli
