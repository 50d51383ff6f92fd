// Package client implements the typed game API on top of a client transport.
//
// Every operation the game offers has a method with a params struct that is
// validated before it is sent. Methods without a wrapper can be sent with Call.
// Results are returned as json.RawMessage; Decode unmarshals them into a type.
//
// Key Components:
//
//   - GameClient: GetState, SendInput (SendKey, SendClick), Action, Control,
//     Query, GetLogs and Call. Events are observed with OnEvent.
//
//   - Params: GetStateParams, InputParams, ActionParams, ControlParams,
//     QueryParams and LogsParams. Validate returns an error wrapping
//     ErrInvalidParams.
//
// Usage Example:
//
//	config := common.DefaultClientConfig()
//	c := client.NewGameClient(tcp.NewTCPClientTransport(config))
//	defer c.Close()
//
//	c.OnEvent(func(ev common.Event) error {
//		fmt.Println(ev.Name, string(ev.Data))
//		return nil
//	})
//
//	if _, err := c.Action(ctx, client.ActionParams{
//		Action: "place_building",
//		Fields: map[string]any{"building_type": "farm", "x": 400, "y": 300},
//	}); err != nil {
//		var remote *common.RemoteError
//		if errors.As(err, &remote) {
//			// the game rejected the action
//		}
//	}
//
// Thread Safety:
//
//	GameClient is safe for concurrent use. Concurrent calls are multiplexed
//	over the one connection of the transport.
package client
