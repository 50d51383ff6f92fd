// Package cmd implements the command-line interface of gamelink. It provides a
// hierarchical command structure to talk to a running game and to run a mock
// game for local development.
//
// The package is organized into several subpackages:
//
//   - game: One command per game operation (state, key, click, action, control,
//     query, logs, call) and a round trip benchmark (perf)
//   - watch: Streams game events and reconnects with exponential backoff
//   - mock: Runs the mock game peer
//   - util: Shared utilities for command-line processing and configuration (internal use)
//
// See gamelink -help for a list of all commands.
package cmd
