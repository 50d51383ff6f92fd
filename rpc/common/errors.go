package common

import (
	"errors"
	"fmt"
)

var (
	// ErrConnection is returned when the transport could not be opened or failed mid session
	ErrConnection = errors.New("connection failure")
	// ErrHandshake is returned when the peer did not acknowledge the handshake in time
	ErrHandshake = errors.New("handshake failed")
	// ErrNotConnected is returned by Request when the connection is down and auto reconnect is off
	ErrNotConnected = errors.New("not connected to game")
	// ErrConnectionClosed resolves every pending request when its connection goes away
	ErrConnectionClosed = errors.New("connection closed")
	// ErrRequestTimeout is returned when no response arrived within the request timeout
	ErrRequestTimeout = errors.New("request timed out")
	// ErrDuplicateRequestID is returned when a correlation id is already pending
	ErrDuplicateRequestID = errors.New("duplicate request id")
)

// RemoteError is returned when the peer answered with "success": false
type RemoteError struct {
	Method  string
	Message string
}

func (e *RemoteError) Error() string {
	if e.Method == "" {
		return fmt.Sprintf("game error: %s", e.Message)
	}
	return fmt.Sprintf("game error (%s): %s", e.Method, e.Message)
}
