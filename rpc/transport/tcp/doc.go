// Package tcp opens the game connection over TCP. It provides the connectors
// for the base package; framing, correlation and events are handled there.
//
// Key Components:
//
//   - clientConnector: Dials the game endpoint (host:port) and applies the
//     socket options from common.TCPConf (TCP_NODELAY is on by default).
//
//   - serverConnector: Listens for the mock peer. An endpoint with port 0
//     binds an ephemeral port, see IRPCServerTransport.Addr.
package tcp
