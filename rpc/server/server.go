package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"github.com/ValentinKolb/gamelink/rpc/common"
	"github.com/ValentinKolb/gamelink/rpc/serializer"
	"github.com/ValentinKolb/gamelink/rpc/transport"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/puzpuzpuz/xsync/v3"
	"os"
	"os/signal"
	"runtime"
	"syscall"
)

var Logger = logger.GetLogger("peer")

// PeerServer is a stand-in for the game. It answers handshakes, routes
// requests to method handlers and broadcasts events to all clients.
type PeerServer struct {
	config     common.PeerConfig
	transport  transport.IRPCServerTransport
	serializer serializer.IRPCSerializer
	handlers   *xsync.MapOf[string, PeerHandleFunc]
}

// NewPeerServer creates a new mock peer
// It takes a config and a server transport as parameters
//
// Usage:
//
//	s := server.NewPeerServer(common.DefaultPeerConfig(), tcp.NewTCPServerTransport())
//	server.RegisterDemoGame(s)
//
//	if err := s.Serve(); err != nil {
//		panic(err)
//	}
func NewPeerServer(config common.PeerConfig, transport transport.IRPCServerTransport) *PeerServer {
	// https://github.com/golang/go/issues/17393
	if runtime.GOOS == "darwin" {
		signal.Ignore(syscall.Signal(0xd))
	}

	Logger.Infof("Created mock peer")
	Logger.Debugf(config.String())

	return &PeerServer{
		config:     config,
		transport:  transport,
		serializer: serializer.NewJSONSerializer(),
		handlers:   xsync.NewMapOf[string, PeerHandleFunc](),
	}
}

// Handle registers fn for method, replacing an existing handler
func (s *PeerServer) Handle(method string, fn PeerHandleFunc) {
	s.handlers.Store(method, fn)
}

// Mount registers all handlers of an adapter
func (s *PeerServer) Mount(adapter IPeerAdapter) {
	for method, fn := range adapter.Handlers() {
		s.Handle(method, fn)
	}
}

// Broadcast sends an event to all connected clients and returns how many
// clients it was written to
func (s *PeerServer) Broadcast(event string, data any) (int, error) {
	raw, err := encodeData(data)
	if err != nil {
		return 0, fmt.Errorf("failed to encode event %s: %w", event, err)
	}
	line, err := s.serializer.Serialize(common.NewEvent(event, raw))
	if err != nil {
		return 0, err
	}
	return s.transport.Broadcast(line), nil
}

// Serve starts the transport and blocks until Close is called
func (s *PeerServer) Serve() error {
	s.transport.RegisterHandler(s.handleLine)
	return s.transport.Listen(s.config)
}

// Ready is closed once the peer accepts connections
func (s *PeerServer) Ready() <-chan struct{} {
	return s.transport.Ready()
}

// Addr returns the address the peer listens on
func (s *PeerServer) Addr() string {
	return s.transport.Addr()
}

// Close stops the peer and closes all client connections
func (s *PeerServer) Close() error {
	return s.transport.Close()
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

// handleLine answers one inbound line
func (s *PeerServer) handleLine(connID uint64, line []byte) [][]byte {
	var msg common.Message
	if err := s.serializer.Deserialize(line, &msg); err != nil {
		Logger.Warningf("Dropping malformed message from client %d: %v", connID, err)
		return nil
	}

	var resp *common.Message
	switch msg.Kind() {
	case common.KindHandshake:
		Logger.Infof("Handshake from client %d (%s, protocol %s)", connID, msg.Client, msg.Version)
		resp = common.NewHandshakeAck(s.config.GameName, s.config.Mode)

	case common.KindRequest:
		resp = s.handleRequest(connID, &msg)
		if resp == nil {
			return nil
		}

	default:
		Logger.Debugf("Ignoring message of type %q from client %d", msg.Type, connID)
		return nil
	}

	out, err := s.serializer.Serialize(resp)
	if err != nil {
		Logger.Errorf("Failed to serialize reply for client %d: %v", connID, err)
		return nil
	}
	return [][]byte{out}
}

// handleRequest routes a request to its handler. It returns nil if the
// request is left unanswered.
func (s *PeerServer) handleRequest(connID uint64, req *common.Message) *common.Message {
	fn, ok := s.handlers.Load(req.Method)
	if !ok {
		return common.NewErrorResponse(req.ID, fmt.Errorf("Unknown method: %s", req.Method))
	}

	data, err := invoke(fn, req.Params)
	if errors.Is(err, ErrNoReply) {
		Logger.Debugf("Leaving %s (%s) from client %d unanswered", req.ID, req.Method, connID)
		return nil
	}
	if err != nil {
		return common.NewErrorResponse(req.ID, err)
	}

	raw, err := encodeData(data)
	if err != nil {
		return common.NewErrorResponse(req.ID, fmt.Errorf("failed to encode result: %w", err))
	}
	return common.NewSuccessResponse(req.ID, raw)
}

// invoke runs a handler and turns a panic into an error
func invoke(fn PeerHandleFunc, params json.RawMessage) (data any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("internal error: %v", r)
		}
	}()
	return fn(params)
}

// encodeData encodes handler results, json.RawMessage is passed through
func encodeData(data any) (json.RawMessage, error) {
	switch d := data.(type) {
	case nil:
		return nil, nil
	case json.RawMessage:
		return d, nil
	default:
		return json.Marshal(d)
	}
}

// decodeParams unmarshals request params into T. Empty params decode to the zero value.
func decodeParams[T any](params json.RawMessage) (T, error) {
	var v T
	if len(params) == 0 {
		return v, nil
	}
	if err := json.Unmarshal(params, &v); err != nil {
		return v, fmt.Errorf("invalid params: %v", err)
	}
	return v, nil
}
