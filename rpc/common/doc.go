// Package common provides the data structures shared by the gamelink client,
// the mock peer and the command line tools.
//
// The package focuses on:
//   - The line delimited JSON wire protocol spoken with the game
//   - Configuration structures for the client connection and the mock peer
//   - Custom logging implementation integrated with Dragonboat's logger package
//   - Sentinel errors surfaced by the client API
//
// Key Components:
//
//   - Message: One wire message. The same struct is used for handshakes,
//     requests, responses and events; Kind classifies an inbound message.
//
//   - ClientConfig: Endpoint, handshake identity, poll interval, request and
//     handshake timeouts and the reconnect policy of a connection.
//
//   - PeerConfig: Endpoint and handshake answer of the mock game peer.
//
//   - ConnState: Lifecycle state of a connection.
//
//   - Logger: Custom logger factory so that all packages log with the same
//     format through logger.GetLogger(name).
package common
