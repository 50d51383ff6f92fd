// Package unix opens the game connection over a Unix domain socket, for a game
// running on the same machine. The endpoint is the socket path.
//
// Key Components:
//
//   - clientConnector: Dials the socket path
//
//   - serverConnector: Removes a stale socket file and listens on the path
package unix
