package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"
)

// ErrInvalidParams is returned by Validate for params the game would reject
var ErrInvalidParams = errors.New("invalid params")

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidParams, fmt.Sprintf(format, args...))
}

// --------------------------------------------------------------------------
// Enums
// --------------------------------------------------------------------------

// Depth controls how much detail state and query results contain
type Depth string

const (
	DepthMinimal Depth = "minimal"
	DepthSummary Depth = "summary"
	DepthFull    Depth = "full"
)

func (d Depth) validate() error {
	switch d {
	case "", DepthMinimal, DepthSummary, DepthFull:
		return nil
	}
	return invalid("depth must be one of minimal, summary, full (got %q)", d)
}

// InputType is the device an input is sent for
type InputType string

const (
	InputKey   InputType = "key"
	InputMouse InputType = "mouse"
)

// InputAction is what happens with the key or mouse button
type InputAction string

const (
	ActionPress   InputAction = "press"
	ActionRelease InputAction = "release"
	ActionTap     InputAction = "tap"
	ActionClick   InputAction = "click"
	ActionMove    InputAction = "move"
	ActionScroll  InputAction = "scroll"
)

// ControlCommand is a command for the game engine itself
type ControlCommand string

const (
	ControlPause      ControlCommand = "pause"
	ControlResume     ControlCommand = "resume"
	ControlSetSpeed   ControlCommand = "set_speed"
	ControlScreenshot ControlCommand = "screenshot"
	ControlReset      ControlCommand = "reset"
	ControlHeadless   ControlCommand = "headless"
	ControlQuit       ControlCommand = "quit"
)

// ControlCommands lists all control commands
var ControlCommands = []ControlCommand{
	ControlPause, ControlResume, ControlSetSpeed, ControlScreenshot, ControlReset, ControlHeadless, ControlQuit,
}

// QueryTypes lists the query types the game answers
var QueryTypes = []string{
	"building", "available_buildings", "inventory_item", "available_actions",
	"citizen", "available_recipes", "commodities", "time_slots",
	"production_stats", "building_efficiencies", "housing_assignments",
	"land_plots", "immigration_queue",
	"character", "character_cravings", "character_history",
	"allocation_details", "consumption_stats", "satisfaction_distribution",
	"craving_heatmap", "policy_comparison",
}

// DefaultLogLimit is the number of log entries returned when no limit is set
const DefaultLogLimit = 50

// --------------------------------------------------------------------------
// get_state
// --------------------------------------------------------------------------

// GetStateParams are the params of get_state
type GetStateParams struct {
	// Depth defaults to summary
	Depth Depth `json:"depth,omitempty"`
	// Include limits the state to these sections (all if empty)
	Include []string `json:"include,omitempty"`
}

func (p GetStateParams) Validate() error {
	return p.Depth.validate()
}

func (p GetStateParams) withDefaults() GetStateParams {
	if p.Depth == "" {
		p.Depth = DepthSummary
	}
	return p
}

// --------------------------------------------------------------------------
// send_input
// --------------------------------------------------------------------------

// InputParams are the params of send_input
type InputParams struct {
	Type   InputType   `json:"input_type"`
	Action InputAction `json:"action"`

	// Key is required for key input ("space", "escape", "w", ...)
	Key string `json:"key,omitempty"`

	// Screen coordinates, required for mouse clicks and moves
	X *float64 `json:"x,omitempty"`
	Y *float64 `json:"y,omitempty"`

	// Button is the mouse button (1 = left, 2 = right, 3 = middle)
	Button int `json:"button,omitempty"`

	// Duration is how long a key is held, in seconds
	Duration float64 `json:"duration,omitempty"`
}

func (p InputParams) Validate() error {
	switch p.Type {
	case InputKey:
		switch p.Action {
		case ActionPress, ActionRelease, ActionTap:
		default:
			return invalid("action %q is not valid for key input", p.Action)
		}
		if p.Key == "" {
			return invalid("key input requires a key")
		}
	case InputMouse:
		switch p.Action {
		case ActionPress, ActionRelease, ActionClick, ActionMove, ActionScroll:
		default:
			return invalid("action %q is not valid for mouse input", p.Action)
		}
		if (p.Action == ActionClick || p.Action == ActionMove) && (p.X == nil || p.Y == nil) {
			return invalid("mouse %s requires x and y", p.Action)
		}
		if p.Button < 0 || p.Button > 3 {
			return invalid("mouse button must be between 1 and 3 (got %d)", p.Button)
		}
	default:
		return invalid("input_type must be key or mouse (got %q)", p.Type)
	}
	if p.Duration < 0 {
		return invalid("duration must not be negative")
	}
	return nil
}

// --------------------------------------------------------------------------
// send_action
// --------------------------------------------------------------------------

// ActionParams are the params of send_action. Fields holds the action
// specific params (building_type, x, y, name, ...) and is sent flat next to action.
type ActionParams struct {
	Action string
	Fields map[string]any
}

func (p ActionParams) Validate() error {
	if p.Action == "" {
		return invalid("action must not be empty")
	}
	if _, ok := p.Fields["action"]; ok {
		return invalid("fields must not contain action")
	}
	return nil
}

func (p ActionParams) MarshalJSON() ([]byte, error) {
	return mergeFields(struct {
		Action string `json:"action"`
	}{p.Action}, p.Fields)
}

// --------------------------------------------------------------------------
// control
// --------------------------------------------------------------------------

// ControlParams are the params of control
type ControlParams struct {
	Command ControlCommand `json:"command"`
	// Value is the argument of the command (the speed for set_speed)
	Value any `json:"value,omitempty"`
}

func (p ControlParams) Validate() error {
	if !slices.Contains(ControlCommands, p.Command) {
		return invalid("unknown control command %q", p.Command)
	}
	if p.Command == ControlSetSpeed && p.Value == nil {
		return invalid("set_speed requires a value")
	}
	return nil
}

// --------------------------------------------------------------------------
// query
// --------------------------------------------------------------------------

// QueryParams are the params of query. Extra is sent flat next to the named fields.
type QueryParams struct {
	QueryType   string `json:"query_type"`
	ID          string `json:"id,omitempty"`
	CharacterID string `json:"character_id,omitempty"`
	Depth       Depth  `json:"depth,omitempty"`
	Limit       int    `json:"limit,omitempty"`

	Extra map[string]any `json:"-"`
}

func (p QueryParams) Validate() error {
	if !slices.Contains(QueryTypes, p.QueryType) {
		return invalid("unknown query type %q", p.QueryType)
	}
	if p.Limit < 0 {
		return invalid("limit must not be negative")
	}
	return p.Depth.validate()
}

func (p QueryParams) MarshalJSON() ([]byte, error) {
	// alias drops the MarshalJSON method
	type plain QueryParams
	return mergeFields(plain(p), p.Extra)
}

// --------------------------------------------------------------------------
// get_logs
// --------------------------------------------------------------------------

// LogsParams are the params of get_logs
type LogsParams struct {
	SinceFrame int      `json:"since_frame"`
	EventTypes []string `json:"event_types,omitempty"`
	// Limit defaults to DefaultLogLimit
	Limit int `json:"limit"`
}

func (p LogsParams) Validate() error {
	if p.SinceFrame < 0 {
		return invalid("since_frame must not be negative")
	}
	if p.Limit < 0 {
		return invalid("limit must not be negative")
	}
	return nil
}

func (p LogsParams) withDefaults() LogsParams {
	if p.Limit == 0 {
		p.Limit = DefaultLogLimit
	}
	return p
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

// mergeFields encodes base as a JSON object and adds extra. Keys of base win.
func mergeFields(base any, extra map[string]any) ([]byte, error) {
	raw, err := json.Marshal(base)
	if err != nil {
		return nil, err
	}
	if len(extra) == 0 {
		return raw, nil
	}

	merged := make(map[string]any, len(extra)+4)
	for k, v := range extra {
		merged[k] = v
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, err
	}
	for k, v := range fields {
		merged[k] = v
	}
	return json.Marshal(merged)
}

// Float returns a pointer to v, for the optional coordinates of InputParams
func Float(v float64) *float64 {
	return &v
}
