package base

import (
	"bufio"
	"context"
	"encoding/json"
	"github.com/ValentinKolb/gamelink/rpc/common"
	"github.com/ValentinKolb/gamelink/rpc/transport"
	"net"
	"sync"
	"testing"
	"time"
)

// --------------------------------------------------------------------------
// Scriptable game peer used by the client tests
// --------------------------------------------------------------------------

// fakePeer accepts connections, acknowledges handshakes and hands every
// request to onRequest, which decides if and how to answer
type fakePeer struct {
	ln        net.Listener
	ack       bool
	onRequest func(l *fakeLink, req common.Message)

	mu         sync.Mutex
	links      []*fakeLink
	accepted   int
	handshakes []common.Message
	wg         sync.WaitGroup
}

// fakeLink is the peer side of one client connection
type fakeLink struct {
	peer *fakePeer
	conn net.Conn
	mu   sync.Mutex
}

func startFakePeer(t *testing.T, ack bool, onRequest func(l *fakeLink, req common.Message)) *fakePeer {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to listen: %v", err)
	}

	p := &fakePeer{ln: ln, ack: ack, onRequest: onRequest}
	p.wg.Add(1)
	go p.acceptLoop()
	return p
}

func (p *fakePeer) addr() string {
	return p.ln.Addr().String()
}

func (p *fakePeer) acceptLoop() {
	defer p.wg.Done()
	for {
		conn, err := p.ln.Accept()
		if err != nil {
			return
		}
		l := &fakeLink{peer: p, conn: conn}
		p.mu.Lock()
		p.links = append(p.links, l)
		p.accepted++
		p.mu.Unlock()

		p.wg.Add(1)
		go l.serve()
	}
}

// connections returns how many connections were accepted so far
func (p *fakePeer) connections() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.accepted
}

// lastHandshake returns the most recent handshake received
func (p *fakePeer) lastHandshake() (common.Message, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.handshakes) == 0 {
		return common.Message{}, false
	}
	return p.handshakes[len(p.handshakes)-1], true
}

// dropAll closes every open connection from the peer side
func (p *fakePeer) dropAll() {
	p.mu.Lock()
	links := p.links
	p.links = nil
	p.mu.Unlock()

	for _, l := range links {
		l.conn.Close()
	}
}

// broadcast sends an event to every open connection
func (p *fakePeer) broadcast(name, data string) {
	p.mu.Lock()
	links := p.links
	p.mu.Unlock()

	for _, l := range links {
		l.event(name, data)
	}
}

// later runs fn after d, tracked by close
func (p *fakePeer) later(d time.Duration, fn func()) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		time.Sleep(d)
		fn()
	}()
}

func (p *fakePeer) close() {
	p.ln.Close()
	p.dropAll()
	p.wg.Wait()
}

func (l *fakeLink) serve() {
	defer l.peer.wg.Done()

	scanner := bufio.NewScanner(l.conn)
	for scanner.Scan() {
		var msg common.Message
		if err := json.Unmarshal(scanner.Bytes(), &msg); err != nil {
			continue
		}
		switch msg.Type {
		case common.MsgTHandshake:
			l.peer.mu.Lock()
			l.peer.handshakes = append(l.peer.handshakes, msg)
			l.peer.mu.Unlock()
			if l.peer.ack {
				l.sendMsg(common.NewHandshakeAck("cravetown", "main"))
			}
		case common.MsgTRequest:
			if l.peer.onRequest != nil {
				l.peer.onRequest(l, msg)
			}
		}
	}
}

func (l *fakeLink) send(line string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, _ = l.conn.Write([]byte(line + "\n"))
}

func (l *fakeLink) sendMsg(msg *common.Message) {
	b, _ := json.Marshal(msg)
	l.send(string(b))
}

func (l *fakeLink) respond(id, data string) {
	l.sendMsg(common.NewSuccessResponse(id, json.RawMessage(data)))
}

func (l *fakeLink) fail(id, message string) {
	ok := false
	l.sendMsg(&common.Message{Type: common.MsgTResponse, ID: id, Success: &ok, Error: message})
}

func (l *fakeLink) event(name, data string) {
	l.sendMsg(common.NewEvent(name, json.RawMessage(data)))
}

// --------------------------------------------------------------------------
// Test client
// --------------------------------------------------------------------------

// testConnector dials plain tcp without socket tuning
type testConnector struct{}

func (testConnector) Connect(ctx context.Context, endpoint string) (net.Conn, error) {
	var d net.Dialer
	return d.DialContext(ctx, "tcp", endpoint)
}

func (testConnector) GetName() string {
	return "test"
}

func (testConnector) UpgradeConnection(net.Conn, common.ClientConfig) error {
	return nil
}

// newTestClient creates a client for endpoint with short timeouts. configure may adjust the config.
func newTestClient(endpoint string, configure func(c *common.ClientConfig)) transport.IRPCClientTransport {
	config := common.DefaultClientConfig()
	config.Transport.Endpoint = endpoint
	config.PollInterval = 10 * time.Millisecond
	config.RequestTimeout = 2 * time.Second
	config.HandshakeTimeout = time.Second
	if configure != nil {
		configure(&config)
	}
	return NewBaseClientTransport(testConnector{}, config)
}
