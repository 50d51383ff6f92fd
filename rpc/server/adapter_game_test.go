package server

import (
	"encoding/json"
	"github.com/stretchr/testify/require"
	"testing"
)

// call runs the handler for method with params and returns the encoded result
func call(t *testing.T, g *DemoGame, method, params string) (string, error) {
	t.Helper()
	fn, ok := g.Handlers()[method]
	require.True(t, ok, "no handler for %s", method)

	data, err := fn(json.RawMessage(params))
	if err != nil {
		return "", err
	}
	raw, err := encodeData(data)
	require.NoError(t, err)
	return string(raw), nil
}

func TestDemoGameState(t *testing.T) {
	g := NewDemoGame(nil)
	g.Tick(3)

	out, err := call(t, g, "get_state", `{"depth":"minimal"}`)
	require.NoError(t, err)
	require.JSONEq(t, `{"mode":"main","frame":3}`, out)

	out, err = call(t, g, "get_state", `{}`)
	require.NoError(t, err)
	require.JSONEq(t, `{"mode":"main","frame":3,"town_name":"Cravetown","paused":false,"speed":1,"building_count":0}`, out)

	out, err = call(t, g, "get_state", `{"include":["town_name"]}`)
	require.NoError(t, err)
	require.JSONEq(t, `{"mode":"main","town_name":"Cravetown"}`, out)

	_, err = call(t, g, "get_state", `{"depth":"huge"}`)
	require.ErrorContains(t, err, "invalid depth")
}

func TestDemoGameActions(t *testing.T) {
	g := NewDemoGame(nil)

	out, err := call(t, g, "send_action", `{"action":"place_building","building_type":"farm","x":400,"y":300}`)
	require.NoError(t, err)
	require.JSONEq(t, `{"id":"b1","type":"farm","x":400,"y":300}`, out)

	out, err = call(t, g, "query", `{"query_type":"building","id":"b1"}`)
	require.NoError(t, err)
	require.JSONEq(t, `{"id":"b1","type":"farm","x":400,"y":300}`, out)

	_, err = call(t, g, "query", `{"query_type":"building","id":"b9"}`)
	require.ErrorContains(t, err, "building not found")

	out, err = call(t, g, "send_action", `{"action":"set_town_name","name":"Breadville"}`)
	require.NoError(t, err)
	require.JSONEq(t, `{"town_name":"Breadville"}`, out)

	out, err = call(t, g, "send_action", `{"action":"return_to_launcher"}`)
	require.NoError(t, err)
	require.JSONEq(t, `{"mode":"launcher"}`, out)

	out, err = call(t, g, "send_action", `{"action":"advance_time","ticks":10}`)
	require.NoError(t, err)
	require.JSONEq(t, `{"frame":10}`, out)

	_, err = call(t, g, "send_action", `{"action":"place_building"}`)
	require.ErrorContains(t, err, "missing building_type")

	_, err = call(t, g, "send_action", `{"action":"fly"}`)
	require.EqualError(t, err, "Unknown action: fly")
}

func TestDemoGameControl(t *testing.T) {
	g := NewDemoGame(nil)

	out, err := call(t, g, "control", `{"command":"pause"}`)
	require.NoError(t, err)
	require.JSONEq(t, `{"paused":true,"speed":1,"frame":0}`, out)

	// the clock stands still while paused
	g.Tick(5)
	require.Zero(t, g.Frame())

	out, err = call(t, g, "control", `{"command":"set_speed","value":2.5}`)
	require.NoError(t, err)
	require.JSONEq(t, `{"paused":true,"speed":2.5,"frame":0}`, out)

	_, err = call(t, g, "control", `{"command":"set_speed","value":"fast"}`)
	require.ErrorContains(t, err, "invalid speed")

	_, err = call(t, g, "control", `{"command":"resume"}`)
	require.NoError(t, err)
	g.Tick(5)
	require.Equal(t, int64(5), g.Frame())

	out, err = call(t, g, "control", `{"command":"screenshot"}`)
	require.NoError(t, err)
	require.JSONEq(t, `{"path":"screenshot_5.png"}`, out)

	_, err = call(t, g, "control", `{"command":"reset"}`)
	require.NoError(t, err)
	require.Zero(t, g.Frame())

	_, err = call(t, g, "control", `{"command":"explode"}`)
	require.EqualError(t, err, "Unknown command: explode")
}

func TestDemoGameInputAndLogs(t *testing.T) {
	g := NewDemoGame(nil)

	out, err := call(t, g, "send_input", `{"input_type":"key","action":"tap","key":"space"}`)
	require.NoError(t, err)
	require.JSONEq(t, `{"accepted":true}`, out)

	g.Tick(2)
	_, err = call(t, g, "send_input", `{"input_type":"mouse","action":"click","x":10,"y":20}`)
	require.NoError(t, err)

	_, err = call(t, g, "send_input", `{"input_type":"key","action":"tap"}`)
	require.ErrorContains(t, err, "missing key")

	_, err = call(t, g, "send_input", `{"input_type":"gamepad"}`)
	require.ErrorContains(t, err, "invalid input type")

	_, err = call(t, g, "control", `{"command":"pause"}`)
	require.NoError(t, err)

	out, err = call(t, g, "get_logs", `{"since_frame":0,"limit":50}`)
	require.NoError(t, err)
	require.JSONEq(t, `{"frame":2,"logs":[
		{"frame":0,"type":"input","message":"key space tap"},
		{"frame":2,"type":"input","message":"mouse click at 10,20"},
		{"frame":2,"type":"control","message":"pause"}
	]}`, out)

	out, err = call(t, g, "get_logs", `{"since_frame":1,"event_types":["input"]}`)
	require.NoError(t, err)
	require.JSONEq(t, `{"frame":2,"logs":[{"frame":2,"type":"input","message":"mouse click at 10,20"}]}`, out)

	out, err = call(t, g, "get_logs", `{"limit":1}`)
	require.NoError(t, err)
	require.JSONEq(t, `{"frame":2,"logs":[{"frame":2,"type":"control","message":"pause"}]}`, out)
}

func TestDemoGameLogLimit(t *testing.T) {
	g := NewDemoGame(nil)
	for range maxLogEntries + 10 {
		_, err := call(t, g, "send_input", `{"input_type":"key","action":"tap","key":"w"}`)
		require.NoError(t, err)
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	require.Len(t, g.logs, maxLogEntries)
}
