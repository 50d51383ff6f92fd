package base

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"github.com/ValentinKolb/gamelink/rpc/common"
	"github.com/ValentinKolb/gamelink/rpc/transport"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"net"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"
)

func metricsText(c transport.IRPCClientTransport) string {
	var buf bytes.Buffer
	c.WriteMetrics(&buf)
	return buf.String()
}

// echoParams answers every request with its own params
func echoParams(l *fakeLink, req common.Message) {
	l.respond(req.ID, string(req.Params))
}

func TestClientGetState(t *testing.T) {
	defer goleak.VerifyNone(t)

	params := make(chan json.RawMessage, 1)
	peer := startFakePeer(t, true, func(l *fakeLink, req common.Message) {
		if req.Method == "get_state" {
			params <- req.Params
			l.respond(req.ID, `{"mode":"main"}`)
		}
	})
	defer peer.close()

	c := newTestClient(peer.addr(), nil)
	defer c.Close()

	require.Equal(t, common.StateDisconnected, c.State())
	require.NoError(t, c.Connect(context.Background()))
	require.Equal(t, common.StateConnected, c.State())

	ack, ok := c.Handshake()
	require.True(t, ok)
	require.Equal(t, common.HandshakeAck{Game: "cravetown", Mode: "main"}, ack)

	hs, ok := peer.lastHandshake()
	require.True(t, ok)
	require.Equal(t, common.ProtocolVersion, hs.Version)
	require.Equal(t, common.DefaultClientName, hs.Client)

	data, err := c.Request(context.Background(), "get_state", nil)
	require.NoError(t, err)
	require.JSONEq(t, `{"mode":"main"}`, string(data))
	require.JSONEq(t, `{}`, string(<-params))
	require.Zero(t, c.PendingCount())
	require.Contains(t, metricsText(c), `gamelink_requests_total{method="get_state"} 1`)
}

// TestClientRequestTimeout tests that a timed out request leaves no entry behind
// and that its late response is dropped without disturbing the connection
func TestClientRequestTimeout(t *testing.T) {
	defer goleak.VerifyNone(t)

	peer := startFakePeer(t, true, func(l *fakeLink, req common.Message) {
		switch req.Method {
		case "slow_op":
			l.peer.later(300*time.Millisecond, func() {
				l.respond(req.ID, `{"late":true}`)
			})
		default:
			l.respond(req.ID, `{"mode":"main"}`)
		}
	})
	defer peer.close()

	c := newTestClient(peer.addr(), func(c *common.ClientConfig) {
		c.RequestTimeout = 100 * time.Millisecond
	})
	defer c.Close()
	require.NoError(t, c.Connect(context.Background()))

	start := time.Now()
	_, err := c.Request(context.Background(), "slow_op", nil)
	require.ErrorIs(t, err, common.ErrRequestTimeout)
	require.Less(t, time.Since(start), 250*time.Millisecond)
	require.Zero(t, c.PendingCount())

	require.Eventually(t, func() bool {
		return bytes.Contains([]byte(metricsText(c)), []byte("gamelink_unmatched_responses_total 1"))
	}, 2*time.Second, 10*time.Millisecond)

	require.Equal(t, common.StateConnected, c.State())
	data, err := c.Request(context.Background(), "get_state", nil)
	require.NoError(t, err)
	require.JSONEq(t, `{"mode":"main"}`, string(data))
	require.Contains(t, metricsText(c), `gamelink_request_timeouts_total{method="slow_op"} 1`)
}

// TestClientRequestTimeoutWhileSending tests that the request timeout also
// bounds a write the peer never reads
func TestClientRequestTimeoutWhileSending(t *testing.T) {
	defer goleak.VerifyNone(t)

	// the peer stops reading at the line scanner's token limit
	peer := startFakePeer(t, true, nil)
	defer peer.close()

	const timeout = 200 * time.Millisecond
	c := newTestClient(peer.addr(), func(c *common.ClientConfig) {
		c.RequestTimeout = timeout
	})
	defer c.Close()
	require.NoError(t, c.Connect(context.Background()))

	huge := strings.Repeat("x", 32<<20)
	start := time.Now()
	_, err := c.Request(context.Background(), "load_map", map[string]string{"map": huge})
	require.ErrorIs(t, err, common.ErrRequestTimeout)
	require.Less(t, time.Since(start), timeout+150*time.Millisecond)
	require.Zero(t, c.PendingCount())

	// a partially written line leaves the stream unusable
	require.Eventually(t, func() bool {
		return c.State() == common.StateDisconnected
	}, time.Second, 5*time.Millisecond)
	require.Contains(t, metricsText(c), `gamelink_request_timeouts_total{method="load_map"} 1`)
}

// TestClientOutOfOrderResponses tests that each caller receives its own response
// when the peer answers in reverse order
func TestClientOutOfOrderResponses(t *testing.T) {
	defer goleak.VerifyNone(t)

	const n = 10
	var collected []common.Message
	peer := startFakePeer(t, true, func(l *fakeLink, req common.Message) {
		collected = append(collected, req)
		if len(collected) < n {
			return
		}
		for _, r := range slices.Backward(collected) {
			echoParams(l, r)
		}
	})
	defer peer.close()

	c := newTestClient(peer.addr(), nil)
	defer c.Close()
	require.NoError(t, c.Connect(context.Background()))

	var wg sync.WaitGroup
	results := make([]json.RawMessage, n)
	errs := make([]error, n)
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], errs[i] = c.Request(context.Background(), "echo", map[string]int{"n": i})
		}()
	}
	wg.Wait()

	for i := range n {
		require.NoError(t, errs[i])
		require.JSONEq(t, fmt.Sprintf(`{"n":%d}`, i), string(results[i]))
	}
	require.Zero(t, c.PendingCount())
}

// TestClientCloseCancelsPending tests that Close resolves every outstanding request
func TestClientCloseCancelsPending(t *testing.T) {
	defer goleak.VerifyNone(t)

	peer := startFakePeer(t, true, nil)
	defer peer.close()

	c := newTestClient(peer.addr(), nil)
	require.NoError(t, c.Connect(context.Background()))

	const n = 5
	errCh := make(chan error, n)
	for range n {
		go func() {
			_, err := c.Request(context.Background(), "never", nil)
			errCh <- err
		}()
	}
	require.Eventually(t, func() bool {
		return c.PendingCount() == n
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, c.Close())
	for range n {
		select {
		case err := <-errCh:
			require.ErrorIs(t, err, common.ErrConnectionClosed)
		case <-time.After(time.Second):
			t.Fatal("request was not cancelled by close")
		}
	}
	require.Zero(t, c.PendingCount())
	require.Equal(t, common.StateDisconnected, c.State())

	_, ok := c.Handshake()
	require.False(t, ok)

	// closing again is a no-op
	require.NoError(t, c.Close())
}

// TestClientPeerCloseCancelsPending tests that losing the peer resolves every outstanding request
func TestClientPeerCloseCancelsPending(t *testing.T) {
	defer goleak.VerifyNone(t)

	peer := startFakePeer(t, true, nil)
	defer peer.close()

	c := newTestClient(peer.addr(), nil)
	defer c.Close()
	require.NoError(t, c.Connect(context.Background()))

	const n = 3
	errCh := make(chan error, n)
	for range n {
		go func() {
			_, err := c.Request(context.Background(), "never", nil)
			errCh <- err
		}()
	}
	require.Eventually(t, func() bool {
		return c.PendingCount() == n
	}, time.Second, 5*time.Millisecond)

	peer.dropAll()
	for range n {
		select {
		case err := <-errCh:
			require.ErrorIs(t, err, common.ErrConnectionClosed)
		case <-time.After(time.Second):
			t.Fatal("request was not cancelled when the peer went away")
		}
	}
	require.Eventually(t, func() bool {
		return c.State() == common.StateDisconnected
	}, time.Second, 5*time.Millisecond)
}

// TestClientIgnoresBadLines tests that malformed, unrecognized and unmatched
// messages are dropped and the request still completes
func TestClientIgnoresBadLines(t *testing.T) {
	defer goleak.VerifyNone(t)

	peer := startFakePeer(t, true, func(l *fakeLink, req common.Message) {
		l.send("this is not json")
		l.send(`{"type":"mystery"}`)
		l.send(`{"type":"response","success":true}`)
		l.respond("nope", `{}`)
		l.respond(req.ID, `{"ok":true}`)
	})
	defer peer.close()

	c := newTestClient(peer.addr(), nil)
	defer c.Close()
	require.NoError(t, c.Connect(context.Background()))

	data, err := c.Request(context.Background(), "get_state", nil)
	require.NoError(t, err)
	require.JSONEq(t, `{"ok":true}`, string(data))

	m := metricsText(c)
	require.Contains(t, m, "gamelink_malformed_messages_total 1")
	require.Contains(t, m, "gamelink_unrecognized_messages_total 2")
	require.Contains(t, m, "gamelink_unmatched_responses_total 1")
	require.Equal(t, common.StateConnected, c.State())
}

// TestClientChunkedResponse tests a response written a few bytes at a time
func TestClientChunkedResponse(t *testing.T) {
	defer goleak.VerifyNone(t)

	peer := startFakePeer(t, true, func(l *fakeLink, req common.Message) {
		b, _ := json.Marshal(common.NewSuccessResponse(req.ID, json.RawMessage(`{"mode":"main"}`)))
		b = append(b, '\n')
		l.mu.Lock()
		defer l.mu.Unlock()
		for chunk := range slices.Chunk(b, 3) {
			_, _ = l.conn.Write(chunk)
			time.Sleep(time.Millisecond)
		}
	})
	defer peer.close()

	c := newTestClient(peer.addr(), nil)
	defer c.Close()
	require.NoError(t, c.Connect(context.Background()))

	data, err := c.Request(context.Background(), "get_state", nil)
	require.NoError(t, err)
	require.JSONEq(t, `{"mode":"main"}`, string(data))
}

func TestClientRemoteError(t *testing.T) {
	defer goleak.VerifyNone(t)

	peer := startFakePeer(t, true, func(l *fakeLink, req common.Message) {
		if req.Method == "silent" {
			l.fail(req.ID, "")
			return
		}
		l.fail(req.ID, "Unknown method: "+req.Method)
	})
	defer peer.close()

	c := newTestClient(peer.addr(), nil)
	defer c.Close()
	require.NoError(t, c.Connect(context.Background()))

	_, err := c.Request(context.Background(), "foo", nil)
	var remoteErr *common.RemoteError
	require.True(t, errors.As(err, &remoteErr))
	require.Equal(t, "foo", remoteErr.Method)
	require.Equal(t, "Unknown method: foo", remoteErr.Message)

	_, err = c.Request(context.Background(), "silent", nil)
	require.True(t, errors.As(err, &remoteErr))
	require.Equal(t, "unknown error", remoteErr.Message)

	// remote errors do not affect the connection
	require.Equal(t, common.StateConnected, c.State())
}

func TestClientContextCancel(t *testing.T) {
	defer goleak.VerifyNone(t)

	peer := startFakePeer(t, true, nil)
	defer peer.close()

	c := newTestClient(peer.addr(), nil)
	defer c.Close()
	require.NoError(t, c.Connect(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := c.Request(ctx, "never", nil)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.Zero(t, c.PendingCount())
}

func TestClientEmptyMethod(t *testing.T) {
	c := newTestClient("127.0.0.1:1", nil)
	_, err := c.Request(context.Background(), "", nil)
	require.Error(t, err)
	require.NoError(t, c.Close())
}

func TestClientHandshakeTimeout(t *testing.T) {
	defer goleak.VerifyNone(t)

	peer := startFakePeer(t, false, nil)
	defer peer.close()

	c := newTestClient(peer.addr(), func(c *common.ClientConfig) {
		c.HandshakeTimeout = 100 * time.Millisecond
		c.AutoReconnect = false
	})
	defer c.Close()

	err := c.Connect(context.Background())
	require.ErrorIs(t, err, common.ErrHandshake)
	require.Equal(t, common.StateDisconnected, c.State())

	_, err = c.Request(context.Background(), "get_state", nil)
	require.ErrorIs(t, err, common.ErrNotConnected)
	require.Contains(t, metricsText(c), "gamelink_connect_failures_total 1")
}

func TestClientConnectRefused(t *testing.T) {
	defer goleak.VerifyNone(t)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	c := newTestClient(addr, nil)
	defer c.Close()

	err = c.Connect(context.Background())
	require.ErrorIs(t, err, common.ErrConnection)
	require.Equal(t, common.StateDisconnected, c.State())

	// with auto reconnect the request surfaces the failed connect
	_, err = c.Request(context.Background(), "get_state", nil)
	require.ErrorIs(t, err, common.ErrNotConnected)
	require.ErrorIs(t, err, common.ErrConnection)
}

func TestClientConnectIdempotent(t *testing.T) {
	defer goleak.VerifyNone(t)

	peer := startFakePeer(t, true, echoParams)
	defer peer.close()

	c := newTestClient(peer.addr(), nil)
	defer c.Close()

	// closing a client that never connected is a no-op
	require.NoError(t, c.Close())

	require.NoError(t, c.Connect(context.Background()))
	require.NoError(t, c.Connect(context.Background()))
	require.Equal(t, 1, peer.connections())
}

func TestClientNoAutoReconnect(t *testing.T) {
	defer goleak.VerifyNone(t)

	peer := startFakePeer(t, true, echoParams)
	defer peer.close()

	c := newTestClient(peer.addr(), func(c *common.ClientConfig) {
		c.AutoReconnect = false
	})
	defer c.Close()

	_, err := c.Request(context.Background(), "echo", nil)
	require.ErrorIs(t, err, common.ErrNotConnected)
	require.Zero(t, peer.connections())

	require.NoError(t, c.Connect(context.Background()))
	_, err = c.Request(context.Background(), "echo", nil)
	require.NoError(t, err)

	peer.dropAll()
	require.Eventually(t, func() bool {
		return c.State() == common.StateDisconnected
	}, time.Second, 5*time.Millisecond)

	_, err = c.Request(context.Background(), "echo", nil)
	require.ErrorIs(t, err, common.ErrNotConnected)
}

func TestClientAutoReconnect(t *testing.T) {
	defer goleak.VerifyNone(t)

	peer := startFakePeer(t, true, echoParams)
	defer peer.close()

	c := newTestClient(peer.addr(), nil)
	defer c.Close()

	// the first request connects
	data, err := c.Request(context.Background(), "echo", map[string]string{"a": "b"})
	require.NoError(t, err)
	require.JSONEq(t, `{"a":"b"}`, string(data))
	require.Equal(t, 1, peer.connections())

	peer.dropAll()
	require.Eventually(t, func() bool {
		return c.State() == common.StateDisconnected
	}, time.Second, 5*time.Millisecond)

	data, err = c.Request(context.Background(), "echo", map[string]int{"n": 2})
	require.NoError(t, err)
	require.JSONEq(t, `{"n":2}`, string(data))
	require.Equal(t, 2, peer.connections())
	require.Equal(t, common.StateConnected, c.State())
}

// TestClientEvents tests ordered delivery to every handler while failing handlers are skipped
func TestClientEvents(t *testing.T) {
	defer goleak.VerifyNone(t)

	const n = 20
	peer := startFakePeer(t, true, func(l *fakeLink, req common.Message) {
		for i := range n {
			l.event(fmt.Sprintf("e%d", i), fmt.Sprintf(`{"i":%d}`, i))
		}
		l.respond(req.ID, `{}`)
	})
	defer peer.close()

	c := newTestClient(peer.addr(), nil)
	defer c.Close()

	var (
		mu          sync.Mutex
		first, last []string
	)
	record := func(into *[]string) common.EventHandler {
		return func(ev common.Event) error {
			mu.Lock()
			defer mu.Unlock()
			*into = append(*into, ev.Name)
			return nil
		}
	}
	c.AddEventHandler(record(&first))
	c.AddEventHandler(func(common.Event) error {
		panic("handler panic")
	})
	c.AddEventHandler(func(common.Event) error {
		return errors.New("handler error")
	})
	c.AddEventHandler(record(&last))

	require.NoError(t, c.Connect(context.Background()))
	_, err := c.Request(context.Background(), "subscribe", nil)
	require.NoError(t, err)

	expected := make([]string, n)
	for i := range n {
		expected[i] = fmt.Sprintf("e%d", i)
	}
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(last) == n
	}, 2*time.Second, 5*time.Millisecond)

	mu.Lock()
	require.Equal(t, expected, first)
	require.Equal(t, expected, last)
	mu.Unlock()

	m := metricsText(c)
	require.Contains(t, m, fmt.Sprintf("gamelink_events_total %d", n))
	require.Contains(t, m, fmt.Sprintf("gamelink_event_handler_failures_total %d", 2*n))
}

// TestClientHandlerLifetime tests whether handlers survive the end of a session
func TestClientHandlerLifetime(t *testing.T) {
	tests := []struct {
		name       string
		keep       bool
		wantCalled bool
	}{
		{name: "handlers reset", keep: false, wantCalled: false},
		{name: "handlers kept", keep: true, wantCalled: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			defer goleak.VerifyNone(t)

			peer := startFakePeer(t, true, nil)
			defer peer.close()

			c := newTestClient(peer.addr(), func(c *common.ClientConfig) {
				c.KeepEventHandlers = tt.keep
			})
			defer c.Close()

			var mu sync.Mutex
			var before, marker []string
			c.AddEventHandler(func(ev common.Event) error {
				mu.Lock()
				defer mu.Unlock()
				before = append(before, ev.Name)
				return nil
			})

			require.NoError(t, c.Connect(context.Background()))
			peer.dropAll()
			require.Eventually(t, func() bool {
				return c.State() == common.StateDisconnected
			}, time.Second, 5*time.Millisecond)

			require.NoError(t, c.Connect(context.Background()))
			// handlers run in registration order, so once the marker saw the
			// event every earlier handler did as well
			c.AddEventHandler(func(ev common.Event) error {
				mu.Lock()
				defer mu.Unlock()
				marker = append(marker, ev.Name)
				return nil
			})
			peer.broadcast("paused", `{"paused":true}`)

			require.Eventually(t, func() bool {
				mu.Lock()
				defer mu.Unlock()
				return len(marker) == 1
			}, time.Second, 5*time.Millisecond)

			mu.Lock()
			defer mu.Unlock()
			if tt.wantCalled {
				require.Equal(t, []string{"paused"}, before)
			} else {
				require.Empty(t, before)
			}
		})
	}
}

// TestClientEventsBeforePeerClose tests that events sent right before the peer
// closes reach the session's handlers before they are reset
func TestClientEventsBeforePeerClose(t *testing.T) {
	defer goleak.VerifyNone(t)

	peer := startFakePeer(t, true, nil)
	defer peer.close()

	c := newTestClient(peer.addr(), func(c *common.ClientConfig) {
		c.KeepEventHandlers = false
	})
	defer c.Close()

	var (
		mu   sync.Mutex
		seen []string
	)
	c.AddEventHandler(func(ev common.Event) error {
		// slow handler, the receive loop sees EOF long before the queue is drained
		time.Sleep(10 * time.Millisecond)
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, ev.Name)
		return nil
	})

	require.NoError(t, c.Connect(context.Background()))
	for i := range 5 {
		peer.broadcast(fmt.Sprintf("e%d", i), `{}`)
	}
	peer.dropAll()

	require.Eventually(t, func() bool {
		return c.State() == common.StateDisconnected
	}, 2*time.Second, 5*time.Millisecond)

	// the session is only reported as disconnected after dispatch finished
	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []string{"e0", "e1", "e2", "e3", "e4"}, seen)
}
