package transport

import (
	"context"
	"encoding/json"
	"github.com/ValentinKolb/gamelink/rpc/common"
	"io"
)

// --------------------------------------------------------------------------
// Client Transport
// --------------------------------------------------------------------------

// IRPCClientTransport is one logical connection to the game. It multiplexes
// concurrent requests and the inbound event stream over a single byte stream.
type IRPCClientTransport interface {
	// Connect opens the connection and performs the handshake.
	// It is a no-op when the connection is already established.
	Connect(ctx context.Context) error
	// Request sends method/params and waits for the correlated response, the
	// request timeout or ctx, whichever comes first
	Request(ctx context.Context, method string, params any) (json.RawMessage, error)
	// AddEventHandler registers an observer for game events. It can be called
	// in any state. Handlers run on the session's dispatch goroutine and must
	// not call Close or Connect, directly or through a reconnecting Request.
	// A session ends only after its handlers have seen every event it received.
	AddEventHandler(handler common.EventHandler)
	// Close closes the connection and fails all pending requests.
	// Closing a closed connection is a no-op.
	Close() error

	// State returns the current connection state
	State() common.ConnState
	// Handshake returns the acknowledgement of the current session
	Handshake() (common.HandshakeAck, bool)
	// PendingCount returns the number of requests waiting for a response
	PendingCount() int
	// WriteMetrics writes the client metrics in Prometheus text format
	WriteMetrics(w io.Writer)
}

// --------------------------------------------------------------------------
// Server Transport (mock peer)
// --------------------------------------------------------------------------

// ServerHandleFunc is called by a server transport for every inbound line of
// a connection. It returns the lines to answer with (may be nil).
type ServerHandleFunc func(connID uint64, line []byte) (replies [][]byte)

// IRPCServerTransport is the interface for the peer side transport
type IRPCServerTransport interface {
	// RegisterHandler registers the handler for inbound lines
	RegisterHandler(handler ServerHandleFunc)
	// Listen accepts connections until Close is called
	Listen(config common.PeerConfig) error
	// Broadcast writes one line to every open connection
	Broadcast(line []byte) int
	// Addr returns the listening address once Listen is running
	Addr() string
	// Ready is closed as soon as the listener is bound
	Ready() <-chan struct{}
	// Close stops listening and closes all connections
	Close() error
}
