package client

import (
	"context"
	"encoding/json"
	"fmt"
	"github.com/ValentinKolb/gamelink/rpc/common"
	"github.com/ValentinKolb/gamelink/rpc/transport"
)

// GameClient exposes the operations of the game on top of a client transport.
// It is safe for concurrent use.
type GameClient struct {
	transport transport.IRPCClientTransport
}

// NewGameClient creates a game client. It does not connect; call Connect or
// rely on the transport's AutoReconnect.
//
// Usage:
//
//	c := client.NewGameClient(tcp.NewTCPClientTransport(common.DefaultClientConfig()))
//	if err := c.Connect(ctx); err != nil {
//		return err
//	}
//	defer c.Close()
//
//	state, err := c.GetState(ctx, client.GetStateParams{Depth: client.DepthMinimal})
func NewGameClient(t transport.IRPCClientTransport) *GameClient {
	return &GameClient{transport: t}
}

// Connect opens the connection and performs the handshake
func (c *GameClient) Connect(ctx context.Context) error {
	return c.transport.Connect(ctx)
}

// Close closes the connection. Pending calls fail with common.ErrConnectionClosed.
func (c *GameClient) Close() error {
	return c.transport.Close()
}

// OnEvent registers a handler for game events
func (c *GameClient) OnEvent(handler common.EventHandler) {
	c.transport.AddEventHandler(handler)
}

// Handshake returns the game name and mode reported when the session was established
func (c *GameClient) Handshake() (common.HandshakeAck, bool) {
	return c.transport.Handshake()
}

// Transport returns the underlying transport
func (c *GameClient) Transport() transport.IRPCClientTransport {
	return c.transport
}

// --------------------------------------------------------------------------
// Operations
// --------------------------------------------------------------------------

// Call sends any method with any params. It is the escape hatch for methods
// without a typed wrapper.
func (c *GameClient) Call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	return c.transport.Request(ctx, method, params)
}

// GetState returns the current game state
func (c *GameClient) GetState(ctx context.Context, p GetStateParams) (json.RawMessage, error) {
	return c.invoke(ctx, "get_state", p.withDefaults())
}

// Mode returns the current game mode (launcher, main, ...)
func (c *GameClient) Mode(ctx context.Context) (string, error) {
	raw, err := c.GetState(ctx, GetStateParams{Depth: DepthMinimal})
	if err != nil {
		return "", err
	}
	state, err := Decode[struct {
		Mode string `json:"mode"`
	}](raw)
	if err != nil {
		return "", err
	}
	return state.Mode, nil
}

// SendInput injects a keyboard or mouse input
func (c *GameClient) SendInput(ctx context.Context, p InputParams) (json.RawMessage, error) {
	return c.invoke(ctx, "send_input", p)
}

// SendKey injects a key input. An empty action taps the key.
func (c *GameClient) SendKey(ctx context.Context, key string, action InputAction, duration float64) (json.RawMessage, error) {
	if action == "" {
		action = ActionTap
	}
	return c.SendInput(ctx, InputParams{
		Type:     InputKey,
		Action:   action,
		Key:      key,
		Duration: duration,
	})
}

// SendClick clicks at the screen coordinates. Button 0 is the left button.
func (c *GameClient) SendClick(ctx context.Context, x, y float64, button int) (json.RawMessage, error) {
	if button == 0 {
		button = 1
	}
	return c.SendInput(ctx, InputParams{
		Type:   InputMouse,
		Action: ActionClick,
		X:      Float(x),
		Y:      Float(y),
		Button: button,
	})
}

// Action executes a high-level game action (place_building, set_town_name, ...)
func (c *GameClient) Action(ctx context.Context, p ActionParams) (json.RawMessage, error) {
	return c.invoke(ctx, "send_action", p)
}

// Control sends a command to the game engine (pause, set_speed, ...)
func (c *GameClient) Control(ctx context.Context, p ControlParams) (json.RawMessage, error) {
	return c.invoke(ctx, "control", p)
}

// Query reads game data (building, citizen, character_cravings, ...)
func (c *GameClient) Query(ctx context.Context, p QueryParams) (json.RawMessage, error) {
	return c.invoke(ctx, "query", p)
}

// GetLogs returns game log entries newer than SinceFrame
func (c *GameClient) GetLogs(ctx context.Context, p LogsParams) (json.RawMessage, error) {
	return c.invoke(ctx, "get_logs", p.withDefaults())
}

// invoke validates the params and sends the request
func (c *GameClient) invoke(ctx context.Context, method string, params validator) (json.RawMessage, error) {
	if err := params.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", method, err)
	}
	resp, err := c.transport.Request(ctx, method, params)
	if err != nil {
		Logger.Debugf("%s failed: %v", method, err)
		return nil, err
	}
	return resp, nil
}
