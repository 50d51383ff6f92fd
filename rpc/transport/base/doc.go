// Package base implements the line-delimited JSON protocol independent of the
// medium the byte stream runs over (TCP, Unix sockets, etc.). The tcp and unix
// packages extend it with connectors that only know how to open the stream.
//
// Key Components:
//
//   - Framer: Splits the inbound byte stream into messages. Partial data is
//     buffered until the delimiter arrives, so the produced messages are the same
//     no matter how the stream is chunked.
//
//   - pendingTable: Correlation table of in-flight requests keyed by request id.
//     The first of response, timeout and connection loss resolves an entry; the
//     others find nothing and do nothing.
//
//   - eventDispatcher/eventQueue: Registered handlers in registration order and
//     the queue between the receive loop and the dispatch goroutine. A failing
//     or panicking handler is logged and never affects the other handlers.
//
//   - clientTransport: Connection manager. Owns the session lifecycle
//     (Disconnected, Connecting, Connected, Closing), performs the handshake,
//     runs one receive loop per session and reconnects lazily on Request when
//     AutoReconnect is set.
//
//   - serverTransport: Peer side used by the mock game. Accepts connections,
//     hands every line to the registered handler with a bounded number of
//     workers per connection and broadcasts events to all clients.
//
// Receive Loop:
//
//	The receive loop reads with a deadline of PollInterval so that it notices
//	Close within one interval. It never blocks on a handler: responses are handed
//	to buffered channels and events to an unbounded queue. When the loop exits,
//	all pending requests fail with ErrConnectionClosed.
//
// Metrics:
//
//	Each client transport keeps its own VictoriaMetrics set (requests, errors,
//	timeouts, latency histograms per method, events, malformed lines and the
//	number of pending requests). See WriteMetrics.
//
// Thread Safety:
//
//	All public methods are thread-safe. Connect and Close are serialized, writes
//	are serialized per connection and the correlation table is a concurrent map.
package base
