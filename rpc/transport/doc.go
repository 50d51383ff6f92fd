// Package transport defines the interfaces between the game API and the
// network layer.
//
// Key Components:
//
//   - IRPCClientTransport: One connection to the game. Handles the connection
//     lifecycle and handshake, request correlation with timeouts and the fan-out
//     of game events to registered handlers.
//
//   - IRPCServerTransport: Peer side used by the mock game. Accepts connections,
//     hands every inbound line to a ServerHandleFunc and can broadcast lines to
//     all connected clients.
//
// Implementations live in base (protocol logic) and in tcp and unix (how the
// byte stream is opened).
package transport
