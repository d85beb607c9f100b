// Package cli provides the interactive praylist command-line client.
//
// It wires configuration, the local cache, the HTTP client and the
// application services behind a small REPL. On start it tries to restore
// the previous session; a background watcher keeps the online/offline mode
// shown in the prompt current.
//
// The REPL is started via App.Run(ctx), which blocks until the user exits.
package cli
