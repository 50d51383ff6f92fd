package server

import (
	"encoding/json"
	"errors"
)

// PeerHandleFunc answers one request. The returned data becomes the data of a
// successful response, a returned error is sent as a failed response.
type PeerHandleFunc func(params json.RawMessage) (data any, err error)

// ErrNoReply can be returned by a PeerHandleFunc to leave the request unanswered
var ErrNoReply = errors.New("no reply")

// IPeerAdapter is a set of method handlers that can be mounted on a PeerServer
type IPeerAdapter interface {
	// Handlers returns the handler for every method the adapter answers
	Handlers() map[string]PeerHandleFunc
}
