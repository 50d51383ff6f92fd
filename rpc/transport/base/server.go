package base

import (
	"errors"
	"fmt"
	"github.com/ValentinKolb/gamelink/rpc/common"
	"github.com/ValentinKolb/gamelink/rpc/transport"
	"github.com/puzpuzpuz/xsync/v3"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"
)

// -----------------------------------------------------------
// Interface Definitions for dependency injection
// -----------------------------------------------------------

// IServerConnector defines the interface for transport-specific server operations
type IServerConnector interface {
	// Listen creates a listener and returns it
	Listen(config common.PeerConfig) (net.Listener, error)

	// GetName returns the name of the transport type (e.g., "unix", "tcp")
	GetName() string

	// UpgradeConnection applies protocol-specific settings to an accepted connection
	UpgradeConnection(conn net.Conn, config common.PeerConfig) error
}

// -----------------------------------------------------------
// Helper Types
// -----------------------------------------------------------

// peerConn is one accepted client connection
type peerConn struct {
	id     uint64
	conn   net.Conn
	connMu sync.Mutex // serializes writes (replies and broadcasts)
}

// serverTransport implements the core server transport functionality
type serverTransport struct {
	connector         IServerConnector
	handler           transport.ServerHandleFunc
	config            common.PeerConfig
	bufferSize        int
	maxWorkersPerConn int

	listenerMu sync.Mutex
	listener   net.Listener
	ready      chan struct{}
	readyOnce  sync.Once
	closed     atomic.Bool

	conns  *xsync.MapOf[uint64, *peerConn]
	nextID atomic.Uint64
	wg     sync.WaitGroup
}

// -----------------------------------------------------------
// Transport Factory Method (used for tcp, unix, etc.)
// -----------------------------------------------------------

// NewBaseServerTransport creates a new base server transport with a per-connection worker pool.
// With a single worker, replies are written in the order the requests arrived.
func NewBaseServerTransport(connector IServerConnector, bufferSize int, maxWorkersPerConn int) transport.IRPCServerTransport {

	// minimum one worker per connection
	maxWorkersPerConn = max(maxWorkersPerConn, 1)

	return &serverTransport{
		connector:         connector,
		bufferSize:        max(bufferSize, readChunkSize),
		maxWorkersPerConn: maxWorkersPerConn,
		ready:             make(chan struct{}),
		conns:             xsync.NewMapOf[uint64, *peerConn](),
	}
}

// --------------------------------------------------------------------------
// Interface Methods (docu see transport.IRPCServerTransport)
// --------------------------------------------------------------------------

func (t *serverTransport) RegisterHandler(handler transport.ServerHandleFunc) {
	t.handler = handler
}

func (t *serverTransport) Listen(config common.PeerConfig) error {
	t.config = config

	if t.handler == nil {
		return fmt.Errorf("no handler registered")
	}

	// Create listener using the connector
	listener, err := t.connector.Listen(config)
	if err != nil {
		return fmt.Errorf("failed to create listener: %v", err)
	}

	t.listenerMu.Lock()
	if t.closed.Load() {
		t.listenerMu.Unlock()
		listener.Close()
		return nil
	}
	t.listener = listener
	t.listenerMu.Unlock()
	t.readyOnce.Do(func() { close(t.ready) })

	Logger.Infof("Starting %s peer on %s with %d workers per connection",
		t.connector.GetName(), listener.Addr(), t.maxWorkersPerConn)

	// Accept connections
	for {
		conn, err := listener.Accept()
		if err != nil {
			if t.closed.Load() || errors.Is(err, net.ErrClosed) {
				return nil
			}
			Logger.Errorf("Accept error: %v", err)
			continue
		}

		if err := t.connector.UpgradeConnection(conn, config); err != nil {
			Logger.Warningf("Failed to upgrade connection from %s: %v", conn.RemoteAddr(), err)
		}

		// Register under listenerMu so that Close either sees the connection or we see Close
		t.listenerMu.Lock()
		if t.closed.Load() {
			t.listenerMu.Unlock()
			conn.Close()
			return nil
		}
		pc := &peerConn{id: t.nextID.Add(1), conn: conn}
		t.conns.Store(pc.id, pc)
		t.wg.Add(1)
		t.listenerMu.Unlock()

		// Handle the connection in a goroutine
		go t.handleConnection(pc)
	}
}

func (t *serverTransport) Broadcast(line []byte) int {
	delivered := 0
	t.conns.Range(func(_ uint64, pc *peerConn) bool {
		if err := t.write(pc, line); err != nil {
			Logger.Warningf("Failed to broadcast to connection %d: %v", pc.id, err)
		} else {
			delivered++
		}
		return true
	})
	return delivered
}

func (t *serverTransport) Addr() string {
	t.listenerMu.Lock()
	defer t.listenerMu.Unlock()
	if t.listener == nil {
		return ""
	}
	return t.listener.Addr().String()
}

func (t *serverTransport) Ready() <-chan struct{} {
	return t.ready
}

func (t *serverTransport) Close() error {
	t.listenerMu.Lock()
	if t.closed.Swap(true) {
		t.listenerMu.Unlock()
		return nil
	}

	var err error
	if t.listener != nil {
		err = t.listener.Close()
	}
	t.listenerMu.Unlock()

	// Closing the connections unblocks their readers
	t.conns.Range(func(_ uint64, pc *peerConn) bool {
		pc.conn.Close()
		return true
	})

	t.wg.Wait()
	return err
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

// write sends one line to a connection
func (t *serverTransport) write(pc *peerConn, line []byte) error {
	pc.connMu.Lock()
	defer pc.connMu.Unlock()

	if t.config.WriteTimeout > 0 {
		if err := pc.conn.SetWriteDeadline(time.Now().Add(t.config.WriteTimeout)); err != nil {
			return fmt.Errorf("failed to set write deadline: %v", err)
		}
	}
	return writeFrame(pc.conn, line)
}

// handleConnection handles incoming lines for one connection
func (t *serverTransport) handleConnection(pc *peerConn) {
	defer t.wg.Done()
	defer func() {
		t.conns.Delete(pc.id)
		pc.conn.Close()
	}()

	Logger.Infof("Client %d connected from %s", pc.id, pc.conn.RemoteAddr())

	// Create a semaphore to limit concurrent workers for this connection
	workerSemaphore := make(chan struct{}, t.maxWorkersPerConn)

	// Create a wait group to wait for all workers to finish
	var wg sync.WaitGroup

	// Handler function that processes one line in a worker goroutine
	handleLine := func(line []byte) {
		defer func() {
			<-workerSemaphore // Release semaphore slot
			wg.Done()
		}()

		start := time.Now()
		replies := t.handler(pc.id, line)
		Logger.Debugf("Processed message from client %d in %s", pc.id, time.Since(start))

		for _, reply := range replies {
			if err := t.write(pc, reply); err != nil {
				Logger.Errorf("Failed to write reply to client %d: %v", pc.id, err)
				return
			}
		}
	}

	framer := NewFramer(Delimiter)
	buf := make([]byte, t.bufferSize)

	// Handle lines in a loop
	for {
		n, err := pc.conn.Read(buf)
		if n > 0 {
			for line := range framer.Feed(buf[:n]) {
				// Acquire a slot in the semaphore (blocks if maxWorkersPerConn is reached)
				workerSemaphore <- struct{}{}
				wg.Add(1)
				go handleLine(line)
			}
		}

		// Case EOF: Connection closed by client
		if errors.Is(err, io.EOF) {
			Logger.Infof("Connection closed by client %d", pc.id)
			break
		}

		// Case error: log and close connection
		if err != nil {
			if !t.closed.Load() {
				Logger.Errorf("Error reading from client %d: %v", pc.id, err)
			}
			break
		}
	}

	// Wait for all workers to finish before closing the connection
	wg.Wait()
}
