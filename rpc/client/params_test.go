package client

import (
	"encoding/json"
	"github.com/stretchr/testify/require"
	"testing"
)

func TestParamsValidate(t *testing.T) {
	tests := []struct {
		name    string
		params  validator
		wantErr bool
	}{
		{"state default", GetStateParams{}, false},
		{"state full", GetStateParams{Depth: DepthFull}, false},
		{"state bad depth", GetStateParams{Depth: "huge"}, true},

		{"key tap", InputParams{Type: InputKey, Action: ActionTap, Key: "space"}, false},
		{"key without key", InputParams{Type: InputKey, Action: ActionTap}, true},
		{"key click", InputParams{Type: InputKey, Action: ActionClick, Key: "w"}, true},
		{"mouse click", InputParams{Type: InputMouse, Action: ActionClick, X: Float(1), Y: Float(2), Button: 1}, false},
		{"mouse click at origin", InputParams{Type: InputMouse, Action: ActionClick, X: Float(0), Y: Float(0)}, false},
		{"mouse click without position", InputParams{Type: InputMouse, Action: ActionClick}, true},
		{"mouse scroll", InputParams{Type: InputMouse, Action: ActionScroll}, false},
		{"mouse bad button", InputParams{Type: InputMouse, Action: ActionPress, Button: 4}, true},
		{"mouse tap", InputParams{Type: InputMouse, Action: ActionTap}, true},
		{"negative duration", InputParams{Type: InputKey, Action: ActionPress, Key: "w", Duration: -1}, true},
		{"unknown device", InputParams{Type: "gamepad", Action: ActionPress}, true},

		{"action", ActionParams{Action: "start_game"}, false},
		{"empty action", ActionParams{}, true},
		{"action in fields", ActionParams{Action: "a", Fields: map[string]any{"action": "b"}}, true},

		{"pause", ControlParams{Command: ControlPause}, false},
		{"set speed", ControlParams{Command: ControlSetSpeed, Value: 2.0}, false},
		{"set speed without value", ControlParams{Command: ControlSetSpeed}, true},
		{"unknown command", ControlParams{Command: "explode"}, true},

		{"query", QueryParams{QueryType: "character_cravings", CharacterID: "c1"}, false},
		{"unknown query", QueryParams{QueryType: "weather"}, true},
		{"query negative limit", QueryParams{QueryType: "citizen", Limit: -1}, true},
		{"query bad depth", QueryParams{QueryType: "citizen", Depth: "x"}, true},

		{"logs", LogsParams{SinceFrame: 10}, false},
		{"logs negative frame", LogsParams{SinceFrame: -1}, true},
		{"logs negative limit", LogsParams{Limit: -1}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.params.Validate()
			if tt.wantErr {
				require.ErrorIs(t, err, ErrInvalidParams)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestParamsEncoding(t *testing.T) {
	tests := []struct {
		name   string
		params any
		want   string
	}{
		{
			name:   "input uses input_type",
			params: InputParams{Type: InputMouse, Action: ActionClick, X: Float(0), Y: Float(5), Button: 1},
			want:   `{"input_type":"mouse","action":"click","x":0,"y":5,"button":1}`,
		},
		{
			name:   "action fields are flat",
			params: ActionParams{Action: "place_building", Fields: map[string]any{"building_type": "farm", "x": 400}},
			want:   `{"action":"place_building","building_type":"farm","x":400}`,
		},
		{
			name:   "action without fields",
			params: ActionParams{Action: "start_game"},
			want:   `{"action":"start_game"}`,
		},
		{
			name:   "query extra is flat and named fields win",
			params: QueryParams{QueryType: "citizen", ID: "c1", Extra: map[string]any{"id": "other", "limit_by": "age"}},
			want:   `{"query_type":"citizen","id":"c1","limit_by":"age"}`,
		},
		{
			name:   "state defaults",
			params: GetStateParams{}.withDefaults(),
			want:   `{"depth":"summary"}`,
		},
		{
			name:   "logs defaults",
			params: LogsParams{}.withDefaults(),
			want:   `{"since_frame":0,"limit":50}`,
		},
		{
			name:   "control value",
			params: ControlParams{Command: ControlSetSpeed, Value: 2.0},
			want:   `{"command":"set_speed","value":2}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := json.Marshal(tt.params)
			require.NoError(t, err)
			require.JSONEq(t, tt.want, string(b))
		})
	}
}

func TestDecode(t *testing.T) {
	v, err := Decode[struct {
		Mode string `json:"mode"`
	}](json.RawMessage(`{"mode":"main","frame":3}`))
	require.NoError(t, err)
	require.Equal(t, "main", v.Mode)

	_, err = Decode[int](nil)
	require.Error(t, err)

	_, err = Decode[int](json.RawMessage(`"x"`))
	require.Error(t, err)
}
