package common

import (
	"encoding/json"
	"fmt"
)

// ProtocolVersion is the only protocol version gamelink speaks
const ProtocolVersion = "1.0"

// --------------------------------------------------------------------------
// Message Types
// --------------------------------------------------------------------------

// MessageType is the value of the "type" field of every wire message
type MessageType string

const (
	MsgTHandshake    MessageType = "handshake"
	MsgTHandshakeAck MessageType = "handshake_ack"
	MsgTRequest      MessageType = "request"
	MsgTResponse     MessageType = "response"
	MsgTEvent        MessageType = "event"
)

// MessageKind is the classification of an inbound message
type MessageKind int

const (
	KindUnrecognized MessageKind = iota
	KindHandshakeAck
	KindResponse
	KindEvent
	KindHandshake
	KindRequest
)

func (k MessageKind) String() string {
	switch k {
	case KindHandshakeAck:
		return "handshake_ack"
	case KindResponse:
		return "response"
	case KindEvent:
		return "event"
	case KindHandshake:
		return "handshake"
	case KindRequest:
		return "request"
	default:
		return "unrecognized"
	}
}

// --------------------------------------------------------------------------
// Message Structure
// --------------------------------------------------------------------------

// Message represents a single line on the wire, in both directions.
// Which fields are used depends on the type of message.
type Message struct {
	Type MessageType `json:"type"`

	// Request / Response
	ID      string          `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"` // Request
	Params  json.RawMessage `json:"params,omitempty"` // Request
	Success *bool           `json:"success,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"` // Response, Event
	Error   string          `json:"error,omitempty"`

	// Event
	Event string `json:"event,omitempty"`

	// Handshake
	Version string `json:"version,omitempty"`
	Client  string `json:"client,omitempty"`

	// Handshake acknowledgement
	Game string `json:"game,omitempty"`
	Mode string `json:"mode,omitempty"`
}

// Kind classifies the message. Messages missing the fields their type
// requires are unrecognized.
func (m *Message) Kind() MessageKind {
	switch m.Type {
	case MsgTHandshakeAck:
		return KindHandshakeAck
	case MsgTResponse:
		if m.ID == "" {
			return KindUnrecognized
		}
		return KindResponse
	case MsgTEvent:
		if m.Event == "" {
			return KindUnrecognized
		}
		return KindEvent
	case MsgTHandshake:
		return KindHandshake
	case MsgTRequest:
		if m.ID == "" || m.Method == "" {
			return KindUnrecognized
		}
		return KindRequest
	default:
		return KindUnrecognized
	}
}

// Succeeded reports whether a response carries "success": true
func (m *Message) Succeeded() bool {
	return m.Success != nil && *m.Success
}

// --------------------------------------------------------------------------
// Message Factory Functions
// --------------------------------------------------------------------------

// NewHandshake creates the handshake sent by a client right after connecting
func NewHandshake(version, client string) *Message {
	return &Message{
		Type:    MsgTHandshake,
		Version: version,
		Client:  client,
	}
}

// NewHandshakeAck creates the acknowledgement a peer answers a handshake with
func NewHandshakeAck(game, mode string) *Message {
	return &Message{
		Type: MsgTHandshakeAck,
		Game: game,
		Mode: mode,
	}
}

// NewRequest creates a request. params may be nil, a json.RawMessage or any
// value that encodes to a JSON object.
func NewRequest(id, method string, params any) (*Message, error) {
	raw, err := encodeParams(params)
	if err != nil {
		return nil, fmt.Errorf("failed to encode params of %s: %w", method, err)
	}
	return &Message{
		Type:   MsgTRequest,
		ID:     id,
		Method: method,
		Params: raw,
	}, nil
}

// NewSuccessResponse creates a successful response for the request id
func NewSuccessResponse(id string, data json.RawMessage) *Message {
	ok := true
	if len(data) == 0 {
		data = json.RawMessage("null")
	}
	return &Message{
		Type:    MsgTResponse,
		ID:      id,
		Success: &ok,
		Data:    data,
	}
}

// NewErrorResponse creates a failed response for the request id
func NewErrorResponse(id string, err error) *Message {
	ok := false
	msg := &Message{
		Type:    MsgTResponse,
		ID:      id,
		Success: &ok,
	}
	if err != nil {
		msg.Error = err.Error()
	}
	return msg
}

// NewEvent creates an unsolicited event message
func NewEvent(name string, data json.RawMessage) *Message {
	return &Message{
		Type:  MsgTEvent,
		Event: name,
		Data:  data,
	}
}

// encodeParams normalizes request params to a JSON value, nil becomes {}
func encodeParams(params any) (json.RawMessage, error) {
	switch p := params.(type) {
	case nil:
		return json.RawMessage("{}"), nil
	case json.RawMessage:
		if len(p) == 0 {
			return json.RawMessage("{}"), nil
		}
		if !json.Valid(p) {
			return nil, fmt.Errorf("params are not valid JSON")
		}
		return p, nil
	default:
		b, err := json.Marshal(p)
		if err != nil {
			return nil, err
		}
		if string(b) == "null" {
			return json.RawMessage("{}"), nil
		}
		return b, nil
	}
}

// --------------------------------------------------------------------------
// Events and handshake results
// --------------------------------------------------------------------------

// Event is an unsolicited message pushed by the peer
type Event struct {
	Name string
	Data json.RawMessage
}

// EventHandler observes events. A returned error (or a panic) is logged by the
// dispatcher and does not stop delivery to the other handlers.
type EventHandler func(ev Event) error

// HandshakeAck is what the peer reported when the connection was established
type HandshakeAck struct {
	Game string `json:"game"`
	Mode string `json:"mode"`
}
