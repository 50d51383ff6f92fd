package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sync"
)

// demo game limits
const (
	maxLogEntries   = 1000
	defaultLogLimit = 50
)

type building struct {
	ID   string  `json:"id"`
	Type string  `json:"type"`
	X    float64 `json:"x"`
	Y    float64 `json:"y"`
}

type logEntry struct {
	Frame   int64  `json:"frame"`
	Type    string `json:"type"`
	Message string `json:"message"`
}

// DemoGame is a tiny in-memory game answering every method of the game API.
// Control commands and actions are broadcast as events.
type DemoGame struct {
	peer *PeerServer

	mu        sync.Mutex
	mode      string
	town      string
	paused    bool
	headless  bool
	speed     float64
	frame     int64
	nextID    int
	buildings []building
	logs      []logEntry
}

// RegisterDemoGame mounts a new demo game on s
func RegisterDemoGame(s *PeerServer) *DemoGame {
	g := NewDemoGame(s)
	s.Mount(g)
	return g
}

// NewDemoGame creates a demo game. Events are broadcast through peer (may be nil).
func NewDemoGame(peer *PeerServer) *DemoGame {
	mode := "main"
	if peer != nil && peer.config.Mode != "" {
		mode = peer.config.Mode
	}
	return &DemoGame{
		peer:  peer,
		mode:  mode,
		town:  "Cravetown",
		speed: 1,
	}
}

func (g *DemoGame) Handlers() map[string]PeerHandleFunc {
	return map[string]PeerHandleFunc{
		"get_state":   g.getState,
		"send_input":  g.sendInput,
		"send_action": g.sendAction,
		"control":     g.control,
		"query":       g.query,
		"get_logs":    g.getLogs,
	}
}

// Tick advances the game by n frames
func (g *DemoGame) Tick(n int64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.paused {
		g.frame += n
	}
}

// Frame returns the current frame
func (g *DemoGame) Frame() int64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.frame
}

// --------------------------------------------------------------------------
// Handlers
// --------------------------------------------------------------------------

func (g *DemoGame) getState(params json.RawMessage) (any, error) {
	p, err := decodeParams[struct {
		Depth   string   `json:"depth"`
		Include []string `json:"include"`
	}](params)
	if err != nil {
		return nil, err
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	state := map[string]any{
		"mode":  g.mode,
		"frame": g.frame,
	}
	switch p.Depth {
	case "minimal":
	case "", "summary", "full":
		state["town_name"] = g.town
		state["paused"] = g.paused
		state["speed"] = g.speed
		state["building_count"] = len(g.buildings)
		if p.Depth == "full" {
			state["buildings"] = slices.Clone(g.buildings)
			state["headless"] = g.headless
		}
	default:
		return nil, fmt.Errorf("invalid depth: %s", p.Depth)
	}

	if len(p.Include) > 0 {
		for key := range state {
			if key != "mode" && !slices.Contains(p.Include, key) {
				delete(state, key)
			}
		}
	}
	return state, nil
}

func (g *DemoGame) sendInput(params json.RawMessage) (any, error) {
	p, err := decodeParams[struct {
		Type   string   `json:"input_type"`
		Action string   `json:"action"`
		Key    string   `json:"key"`
		X      *float64 `json:"x"`
		Y      *float64 `json:"y"`
	}](params)
	if err != nil {
		return nil, err
	}

	var msg string
	switch p.Type {
	case "key":
		if p.Key == "" {
			return nil, errors.New("missing key")
		}
		msg = fmt.Sprintf("key %s %s", p.Key, p.Action)
	case "mouse":
		if p.X != nil && p.Y != nil {
			msg = fmt.Sprintf("mouse %s at %.0f,%.0f", p.Action, *p.X, *p.Y)
		} else {
			msg = fmt.Sprintf("mouse %s", p.Action)
		}
	default:
		return nil, fmt.Errorf("invalid input type: %s", p.Type)
	}

	g.mu.Lock()
	g.logLocked("input", msg)
	g.mu.Unlock()

	return map[string]any{"accepted": true}, nil
}

func (g *DemoGame) sendAction(params json.RawMessage) (any, error) {
	p, err := decodeParams[struct {
		Action       string  `json:"action"`
		Name         string  `json:"name"`
		BuildingType string  `json:"building_type"`
		X            float64 `json:"x"`
		Y            float64 `json:"y"`
		Ticks        int64   `json:"ticks"`
	}](params)
	if err != nil {
		return nil, err
	}

	g.mu.Lock()
	var (
		result any
		event  string
		data   any
	)
	switch p.Action {
	case "start_game":
		g.mode = "main"
		result = map[string]any{"mode": g.mode}
		event, data = "mode_changed", result
	case "return_to_launcher":
		g.mode = "launcher"
		result = map[string]any{"mode": g.mode}
		event, data = "mode_changed", result
	case "set_town_name":
		if p.Name == "" {
			g.mu.Unlock()
			return nil, errors.New("missing name")
		}
		g.town = p.Name
		result = map[string]any{"town_name": g.town}
	case "place_building":
		if p.BuildingType == "" {
			g.mu.Unlock()
			return nil, errors.New("missing building_type")
		}
		g.nextID++
		b := building{ID: fmt.Sprintf("b%d", g.nextID), Type: p.BuildingType, X: p.X, Y: p.Y}
		g.buildings = append(g.buildings, b)
		result = b
		event, data = "building_placed", b
	case "advance_time":
		if p.Ticks <= 0 {
			p.Ticks = 1
		}
		g.frame += p.Ticks
		result = map[string]any{"frame": g.frame}
	default:
		g.mu.Unlock()
		return nil, fmt.Errorf("Unknown action: %s", p.Action)
	}
	g.logLocked("action", p.Action)
	g.mu.Unlock()

	if event != "" {
		g.broadcast(event, data)
	}
	return result, nil
}

func (g *DemoGame) control(params json.RawMessage) (any, error) {
	p, err := decodeParams[struct {
		Command string `json:"command"`
		Value   any    `json:"value"`
	}](params)
	if err != nil {
		return nil, err
	}

	g.mu.Lock()
	var event string
	switch p.Command {
	case "pause":
		g.paused = true
		event = "paused"
	case "resume":
		g.paused = false
		event = "resumed"
	case "set_speed":
		speed, ok := p.Value.(float64)
		if !ok || speed <= 0 {
			g.mu.Unlock()
			return nil, fmt.Errorf("invalid speed: %v", p.Value)
		}
		g.speed = speed
		event = "speed_changed"
	case "headless":
		g.headless = p.Value != false
		event = "headless_changed"
	case "reset":
		g.frame, g.buildings, g.logs, g.paused = 0, nil, nil, false
		event = "reset"
	case "screenshot":
		g.logLocked("control", "screenshot")
		g.mu.Unlock()
		return map[string]any{"path": fmt.Sprintf("screenshot_%d.png", g.frame)}, nil
	case "quit":
		event = "quitting"
	default:
		g.mu.Unlock()
		return nil, fmt.Errorf("Unknown command: %s", p.Command)
	}
	g.logLocked("control", p.Command)
	state := map[string]any{"paused": g.paused, "speed": g.speed, "frame": g.frame}
	g.mu.Unlock()

	g.broadcast(event, state)
	return state, nil
}

func (g *DemoGame) query(params json.RawMessage) (any, error) {
	p, err := decodeParams[struct {
		QueryType string `json:"query_type"`
		ID        string `json:"id"`
	}](params)
	if err != nil {
		return nil, err
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	switch p.QueryType {
	case "building":
		for _, b := range g.buildings {
			if b.ID == p.ID {
				return b, nil
			}
		}
		return nil, fmt.Errorf("building not found: %s", p.ID)
	case "available_buildings":
		return []string{"farm", "bakery", "lodge", "mine", "well"}, nil
	case "available_actions":
		return []string{"start_game", "return_to_launcher", "set_town_name", "place_building", "advance_time"}, nil
	default:
		return nil, fmt.Errorf("Unsupported query type: %s", p.QueryType)
	}
}

func (g *DemoGame) getLogs(params json.RawMessage) (any, error) {
	p, err := decodeParams[struct {
		SinceFrame int64    `json:"since_frame"`
		EventTypes []string `json:"event_types"`
		Limit      int      `json:"limit"`
	}](params)
	if err != nil {
		return nil, err
	}
	if p.Limit <= 0 {
		p.Limit = defaultLogLimit
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	entries := make([]logEntry, 0)
	for _, e := range g.logs {
		if e.Frame < p.SinceFrame {
			continue
		}
		if len(p.EventTypes) > 0 && !slices.Contains(p.EventTypes, e.Type) {
			continue
		}
		entries = append(entries, e)
	}
	if len(entries) > p.Limit {
		entries = entries[len(entries)-p.Limit:]
	}
	return map[string]any{"frame": g.frame, "logs": entries}, nil
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

func (g *DemoGame) logLocked(typ, msg string) {
	g.logs = append(g.logs, logEntry{Frame: g.frame, Type: typ, Message: msg})
	if len(g.logs) > maxLogEntries {
		g.logs = slices.Delete(g.logs, 0, len(g.logs)-maxLogEntries)
	}
}

func (g *DemoGame) broadcast(event string, data any) {
	if g.peer == nil {
		return
	}
	if _, err := g.peer.Broadcast(event, data); err != nil {
		Logger.Warningf("Failed to broadcast %s: %v", event, err)
	}
}
