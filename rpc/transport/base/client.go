package base

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"github.com/ValentinKolb/gamelink/rpc/common"
	"github.com/ValentinKolb/gamelink/rpc/serializer"
	"github.com/ValentinKolb/gamelink/rpc/transport"
	"github.com/google/uuid"
	"github.com/lni/dragonboat/v4/logger"
	"io"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"time"
)

var Logger = logger.GetLogger("transport/rpc")

// readChunkSize is the size of a single read from the connection
const readChunkSize = 4096

// -----------------------------------------------------------
// Interface Definitions for dependency injection
// -----------------------------------------------------------

// IClientConnector defines the interface for transport-specific connection operations
type IClientConnector interface {
	// Connect opens a byte stream to the endpoint
	Connect(ctx context.Context, endpoint string) (net.Conn, error)

	// GetName returns the name of the transport type (e.g., "unix", "tcp")
	GetName() string

	// UpgradeConnection applies protocol-specific settings to an established connection
	UpgradeConnection(conn net.Conn, config common.ClientConfig) error
}

// -----------------------------------------------------------
// Helper Types
// -----------------------------------------------------------

// clientConnection is one session: a single net connection with its receive
// loop, its pending requests and its event queue
type clientConnection struct {
	conn        net.Conn
	endpoint    string
	stopCh      chan struct{}            // closed by Close, tells the receive loop to exit
	doneCh      chan struct{}            // closed after the receive loop has cleaned up
	dispatchCh  chan struct{}            // closed when the event queue is drained
	ackCh       chan common.HandshakeAck // buffered (1)
	pending     *pendingTable
	events      *eventQueue
	connMu      sync.Mutex // serializes writes
	stopOnce    sync.Once
	established atomic.Bool // handshake completed
	parent      *clientTransport
}

// clientTransport implements transport.IRPCClientTransport independent of the
// medium the byte stream runs over (tcp, unix, ...)
type clientTransport struct {
	connector  IClientConnector
	serializer serializer.IRPCSerializer
	config     common.ClientConfig

	lifecycleMu sync.Mutex // serializes Connect and Close
	state       atomic.Int32
	current     atomic.Pointer[clientConnection] // set while connected
	last        atomic.Pointer[clientConnection] // most recent session, possibly ended
	handshake   atomic.Pointer[common.HandshakeAck]

	dispatcher *eventDispatcher
	metrics    *clientMetrics
}

// -----------------------------------------------------------
// Transport Factory Method (used for tcp, unix, etc.)
// -----------------------------------------------------------

// NewBaseClientTransport creates a new base client transport with the specified connector.
// Zero values in config are replaced by their defaults. No connection is opened
// until Connect (or the first Request when AutoReconnect is set).
func NewBaseClientTransport(connector IClientConnector, config common.ClientConfig) transport.IRPCClientTransport {
	t := &clientTransport{
		connector:  connector,
		serializer: serializer.NewJSONSerializer(),
		config:     config.WithDefaults(),
		dispatcher: &eventDispatcher{},
	}
	t.metrics = newClientMetrics(func() float64 {
		return float64(t.PendingCount())
	})
	t.dispatcher.onFailure = func(common.Event, error) {
		t.metrics.handlerFailures.Inc()
	}
	return t
}

// --------------------------------------------------------------------------
// Interface Methods (docu see transport.IRPCClientTransport)
// --------------------------------------------------------------------------

func (t *clientTransport) Connect(ctx context.Context) error {
	t.lifecycleMu.Lock()
	defer t.lifecycleMu.Unlock()

	if t.current.Load() != nil && t.State() == common.StateConnected {
		return nil
	}

	// a session that lost its peer may still be cleaning up
	if prev := t.last.Load(); prev != nil {
		<-prev.doneCh
	}

	endpoint := t.config.Transport.Endpoint
	t.setState(common.StateConnecting)
	t.metrics.connects.Inc()

	// Open the byte stream (bounded by the handshake timeout)
	dialCtx, cancel := context.WithTimeout(ctx, t.config.HandshakeTimeout)
	conn, err := t.connector.Connect(dialCtx, endpoint)
	cancel()
	if err != nil {
		t.setState(common.StateDisconnected)
		t.metrics.connectFailures.Inc()
		Logger.Warningf("Failed to connect to %s: %v", endpoint, err)
		return fmt.Errorf("%w: failed to connect to %s: %v", common.ErrConnection, endpoint, err)
	}

	// Upgrade the connection with protocol-specific settings
	if err := t.connector.UpgradeConnection(conn, t.config); err != nil {
		conn.Close()
		t.setState(common.StateDisconnected)
		t.metrics.connectFailures.Inc()
		return fmt.Errorf("%w: failed to upgrade connection to %s: %v", common.ErrConnection, endpoint, err)
	}

	c := &clientConnection{
		conn:       conn,
		endpoint:   endpoint,
		stopCh:     make(chan struct{}),
		doneCh:     make(chan struct{}),
		dispatchCh: make(chan struct{}),
		ackCh:      make(chan common.HandshakeAck, 1),
		pending:    newPendingTable(),
		events:     newEventQueue(),
		parent:     t,
	}
	t.last.Store(c)

	// Start the receive loop before the handshake, it delivers the acknowledgement
	go c.readLoop()
	go c.dispatchEvents()

	if err := t.handshakeLocked(ctx, c); err != nil {
		t.metrics.connectFailures.Inc()
		return err
	}

	Logger.Infof("Connected to %s using %s transport", endpoint, t.connector.GetName())
	return nil
}

func (t *clientTransport) Request(ctx context.Context, method string, params any) (json.RawMessage, error) {
	if method == "" {
		return nil, fmt.Errorf("method must not be empty")
	}

	c, err := t.activeConnection(ctx)
	if err != nil {
		return nil, err
	}

	// Generate a unique correlation ID
	requestID := uuid.NewString()

	req, err := common.NewRequest(requestID, method, params)
	if err != nil {
		return nil, err
	}
	data, err := t.serializer.Serialize(req)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize request %s: %w", method, err)
	}

	// Register the request before writing, the response may arrive immediately
	respCh, err := c.pending.register(requestID)
	if err != nil {
		return nil, err
	}

	label := t.metrics.methodLabel(method)
	start := time.Now()
	t.metrics.requests(label).Inc()

	// The request timeout covers sending and waiting
	timer := time.NewTimer(t.config.RequestTimeout)
	defer timer.Stop()

	if err := c.write(data, start.Add(t.config.RequestTimeout)); err != nil {
		c.pending.resolve(requestID, responseResult{err: err})
		t.metrics.requestErrors(label).Inc()
		// a broken write side means the session is gone, a partial line would corrupt the stream
		c.abort(err)
		if errors.Is(err, os.ErrDeadlineExceeded) {
			t.metrics.requestTimeouts(label).Inc()
			return nil, fmt.Errorf("%w: %s after %s while sending", common.ErrRequestTimeout, method, t.config.RequestTimeout)
		}
		return nil, fmt.Errorf("%w: failed to send %s: %v", common.ErrConnection, method, err)
	}

	// Wait for response, timeout or cancellation

	var result responseResult
	select {
	case result = <-respCh:
	case <-timer.C:
		if c.pending.expire(requestID) {
			t.metrics.requestTimeouts(label).Inc()
			Logger.Warningf("Request %s (%s) timed out after %s", requestID, method, t.config.RequestTimeout)
		}
		// either the timeout or the response that won the race
		result = <-respCh
	case <-ctx.Done():
		c.pending.resolve(requestID, responseResult{err: ctx.Err()})
		result = <-respCh
	}

	t.metrics.requestDuration(label).UpdateDuration(start)

	if result.err != nil {
		t.metrics.requestErrors(label).Inc()

		var remoteErr *common.RemoteError
		if errors.As(result.err, &remoteErr) {
			remoteErr.Method = method
			return nil, remoteErr
		}
		if errors.Is(result.err, common.ErrRequestTimeout) {
			return nil, fmt.Errorf("%w: %s after %s", common.ErrRequestTimeout, method, t.config.RequestTimeout)
		}
		return nil, fmt.Errorf("request %s failed: %w", method, result.err)
	}

	return result.data, nil
}

func (t *clientTransport) AddEventHandler(handler common.EventHandler) {
	t.dispatcher.register(handler)
}

func (t *clientTransport) Close() error {
	t.lifecycleMu.Lock()
	defer t.lifecycleMu.Unlock()

	c := t.last.Load()
	if c == nil {
		return nil
	}

	select {
	case <-c.doneCh:
		// already closed
		return nil
	default:
	}

	t.state.CompareAndSwap(int32(common.StateConnected), int32(common.StateClosing))
	c.stop()

	// Wait for the receive loop to cancel pending requests and release the connection
	<-c.doneCh

	Logger.Infof("Connection to %s closed", c.endpoint)
	return nil
}

func (t *clientTransport) State() common.ConnState {
	return common.ConnState(t.state.Load())
}

func (t *clientTransport) Handshake() (common.HandshakeAck, bool) {
	ack := t.handshake.Load()
	if ack == nil || t.State() != common.StateConnected {
		return common.HandshakeAck{}, false
	}
	return *ack, true
}

func (t *clientTransport) PendingCount() int {
	c := t.last.Load()
	if c == nil {
		return 0
	}
	return c.pending.size()
}

func (t *clientTransport) WriteMetrics(w io.Writer) {
	t.metrics.set.WritePrometheus(w)
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

func (t *clientTransport) setState(s common.ConnState) {
	t.state.Store(int32(s))
}

// handshakeLocked sends the handshake and waits for the acknowledgement.
// On failure the session is torn down before it returns.
func (t *clientTransport) handshakeLocked(ctx context.Context, c *clientConnection) error {
	fail := func(err error) error {
		c.stop()
		<-c.doneCh
		Logger.Warningf("Handshake with %s failed: %v", c.endpoint, err)
		return err
	}

	hs := common.NewHandshake(t.config.ProtocolVersion, t.config.ClientName)
	data, err := t.serializer.Serialize(hs)
	if err == nil {
		err = c.write(data, time.Now().Add(t.config.HandshakeTimeout))
	}
	if err != nil {
		return fail(fmt.Errorf("%w: failed to send handshake: %v", common.ErrConnection, err))
	}

	timer := time.NewTimer(t.config.HandshakeTimeout)
	defer timer.Stop()

	select {
	case ack := <-c.ackCh:
		t.handshake.Store(&ack)
		t.current.Store(c)
		if !t.state.CompareAndSwap(int32(common.StateConnecting), int32(common.StateConnected)) {
			// the peer went away right after acknowledging
			t.current.CompareAndSwap(c, nil)
			return fail(fmt.Errorf("%w: connection lost after handshake", common.ErrConnection))
		}
		c.established.Store(true)
		Logger.Infof("Handshake complete - game: %s, mode: %s", ack.Game, ack.Mode)
		return nil
	case <-timer.C:
		return fail(fmt.Errorf("%w: no acknowledgement from %s within %s", common.ErrHandshake, c.endpoint, t.config.HandshakeTimeout))
	case <-c.doneCh:
		return fail(fmt.Errorf("%w: connection closed during handshake", common.ErrConnection))
	case <-ctx.Done():
		return fail(fmt.Errorf("%w: %w", common.ErrHandshake, ctx.Err()))
	}
}

// activeConnection returns the connected session, connecting first if the
// reconnect policy allows it
func (t *clientTransport) activeConnection(ctx context.Context) (*clientConnection, error) {
	if c := t.current.Load(); c != nil && t.State() == common.StateConnected {
		return c, nil
	}

	if !t.config.AutoReconnect {
		return nil, common.ErrNotConnected
	}

	Logger.Debugf("Not connected, connecting to %s", t.config.Transport.Endpoint)
	if err := t.Connect(ctx); err != nil {
		return nil, fmt.Errorf("%w: %w", common.ErrNotConnected, err)
	}

	c := t.current.Load()
	if c == nil {
		return nil, common.ErrNotConnected
	}
	return c, nil
}

// write sends one message before deadline. Writes are serialized per
// connection so that messages of concurrent callers never interleave.
func (c *clientConnection) write(data []byte, deadline time.Time) error {
	c.connMu.Lock()
	defer c.connMu.Unlock()

	if err := c.conn.SetWriteDeadline(deadline); err != nil {
		return err
	}
	return writeFrame(c.conn, data)
}

// stop asks the receive loop to exit (explicit close)
func (c *clientConnection) stop() {
	c.stopOnce.Do(func() {
		close(c.stopCh)
		c.conn.Close()
	})
}

// abort tears the session down after a transport failure
func (c *clientConnection) abort(err error) {
	Logger.Errorf("Connection to %s failed: %v", c.endpoint, err)
	c.conn.Close()
}

// stopped reports whether stop was called
func (c *clientConnection) stopped() bool {
	select {
	case <-c.stopCh:
		return true
	default:
		return false
	}
}

// readLoop reads from the connection until it is closed and routes every
// message. It is the only reader of the connection.
func (c *clientConnection) readLoop() {
	var reason error
	defer func() {
		c.finish(reason)
	}()

	framer := NewFramer(Delimiter)
	buf := make([]byte, readChunkSize)
	poll := c.parent.config.PollInterval

	for {
		if c.stopped() {
			return
		}

		if err := c.conn.SetReadDeadline(time.Now().Add(poll)); err != nil {
			if !c.stopped() {
				reason = err
			}
			return
		}

		n, err := c.conn.Read(buf)
		if n > 0 {
			for line := range framer.Feed(buf[:n]) {
				c.handleLine(line)
			}
		}

		if err != nil {
			// Case poll interval elapsed: not an error, read again
			if errors.Is(err, os.ErrDeadlineExceeded) {
				continue
			}

			// Case closed by us
			if c.stopped() {
				return
			}

			// Case EOF: connection closed by the peer
			if errors.Is(err, io.EOF) {
				if n := framer.Buffered(); n > 0 {
					Logger.Warningf("Discarding %d bytes of an incomplete message from %s", n, c.endpoint)
				}
				Logger.Infof("Connection closed by %s", c.endpoint)
				reason = io.EOF
				return
			}

			Logger.Errorf("Read error on %s: %v", c.endpoint, err)
			reason = err
			return
		}
	}
}

// handleLine classifies one inbound message and routes it. It never blocks.
func (c *clientConnection) handleLine(line []byte) {
	m := c.parent.metrics

	var msg common.Message
	if err := c.parent.serializer.Deserialize(line, &msg); err != nil {
		m.malformed.Inc()
		Logger.Warningf("Dropping malformed message from %s: %v", c.endpoint, err)
		return
	}

	switch msg.Kind() {
	case common.KindHandshakeAck:
		select {
		case c.ackCh <- common.HandshakeAck{Game: msg.Game, Mode: msg.Mode}:
		default:
			Logger.Debugf("Ignoring repeated handshake acknowledgement from %s", c.endpoint)
		}

	case common.KindResponse:
		result := responseResult{data: msg.Data}
		if !msg.Succeeded() {
			errMsg := msg.Error
			if errMsg == "" {
				errMsg = "unknown error"
			}
			result = responseResult{err: &common.RemoteError{Message: errMsg}}
		}
		if !c.pending.resolve(msg.ID, result) {
			m.unmatched.Inc()
			Logger.Debugf("Received response for unknown request ID %s", msg.ID)
		}

	case common.KindEvent:
		m.events.Inc()
		c.events.push(common.Event{Name: msg.Event, Data: msg.Data})

	default:
		m.unrecognized.Inc()
		Logger.Debugf("Ignoring unrecognized message of type %q from %s", msg.Type, c.endpoint)
	}
}

// dispatchEvents hands queued events to the dispatcher until the queue is
// closed and drained
func (c *clientConnection) dispatchEvents() {
	defer close(c.dispatchCh)
	for {
		ev, ok := c.events.pop()
		if !ok {
			return
		}
		c.parent.dispatcher.dispatch(ev)
	}
}

// finish runs once when the receive loop exits. reason is nil for an explicit close.
func (c *clientConnection) finish(reason error) {
	t := c.parent

	t.setState(common.StateClosing)
	t.current.CompareAndSwap(c, nil)

	cancelErr := common.ErrConnectionClosed
	if reason != nil {
		cancelErr = fmt.Errorf("%w: %v", common.ErrConnectionClosed, reason)
	}
	if n := c.pending.cancelAll(cancelErr); n > 0 {
		Logger.Warningf("Cancelled %d pending requests to %s", n, c.endpoint)
	}

	c.events.close()
	c.conn.Close()

	// events received before the connection ended still reach this session's handlers
	<-c.dispatchCh

	if c.established.Load() && !t.config.KeepEventHandlers {
		t.dispatcher.reset()
	}

	t.setState(common.StateDisconnected)
	close(c.doneCh)
}
