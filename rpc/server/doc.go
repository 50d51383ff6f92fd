// Package server implements a mock game peer that speaks the same line-delimited
// JSON protocol as the game. It is used by the tests of this module and by
// `gamelink mock` to develop against without a running game.
//
// Key Components:
//
//   - PeerServer: Answers handshakes with the configured game name and mode,
//     routes requests to the handler registered for their method and answers
//     unknown methods with a failed response. Broadcast pushes an event to every
//     connected client.
//
//   - PeerHandleFunc: Handler for one method. Returning ErrNoReply leaves the
//     request unanswered, which is how tests provoke client timeouts.
//
//   - DemoGame: IPeerAdapter with a tiny in-memory game (mode, town, buildings,
//     speed, frame counter, logs) that answers get_state, send_input,
//     send_action, control, query and get_logs.
//
// Usage Example:
//
//	config := common.DefaultPeerConfig()
//	config.Transport.Endpoint = "127.0.0.1:0"
//
//	s := server.NewPeerServer(config, tcp.NewTCPServerTransport())
//	server.RegisterDemoGame(s)
//	s.Handle("slow_op", func(json.RawMessage) (any, error) {
//		return nil, server.ErrNoReply
//	})
//
//	go s.Serve()
//	<-s.Ready()
//	defer s.Close()
package server
