// Package rpc provides the client side protocol layer used to talk to a running
// game over one long lived, line delimited JSON connection. Many request/response
// exchanges and an independent stream of game events share that connection.
//
// The package is organized into several subpackages:
//
//   - common: Wire messages, configuration structures, errors and logging.
//
//   - serializer: JSON codec between wire lines and common.Message.
//
//   - transport: Connection management, framing, request correlation and event
//     fan-out (base), plus the tcp and unix connectors.
//
//   - client: Typed game API (state, input, actions, control, queries, logs)
//     on top of a client transport.
//
//   - server: A mock game peer speaking the same protocol, used in tests and
//     for local development.
package rpc
