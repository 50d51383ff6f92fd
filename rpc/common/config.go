package common

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"
)

// --------------------------------------------------------------------------
// Defaults
// --------------------------------------------------------------------------

const (
	DefaultHost             = "localhost"
	DefaultPort             = 9999
	DefaultClientName       = "gamelink"
	DefaultPollInterval     = 100 * time.Millisecond
	DefaultRequestTimeout   = 10 * time.Second
	DefaultHandshakeTimeout = 5 * time.Second
	DefaultWriteTimeout     = 5 * time.Second
)

// DefaultEndpoint returns the endpoint the game listens on by default
func DefaultEndpoint() string {
	return net.JoinHostPort(DefaultHost, strconv.Itoa(DefaultPort))
}

// --------------------------------------------------------------------------
// Socket settings (shared by client and peer)
// --------------------------------------------------------------------------

// SocketConf holds the socket buffer sizes (0 keeps the OS default)
type SocketConf struct {
	WriteBufferSize int
	ReadBufferSize  int
}

// TCPConf holds TCP specific options, ignored for unix sockets
type TCPConf struct {
	TCPNoDelay      bool
	TCPKeepAliveSec int
	// TCPLingerSec sets SO_LINGER, 0 or less keeps the OS default
	TCPLingerSec int
}

// --------------------------------------------------------------------------
// Client configuration struct
// --------------------------------------------------------------------------

// ClientTransportConfig describes where and how the client connects
type ClientTransportConfig struct {
	// Endpoint is host:port for tcp or a socket path for unix
	Endpoint string
	SocketConf
	TCPConf
}

// ClientConfig holds all parameters of a game connection.
type ClientConfig struct {
	Transport ClientTransportConfig

	// Identity sent in the handshake
	ClientName      string
	ProtocolVersion string

	// PollInterval bounds a single read on the connection. Expiry is not an error,
	// the receive loop just checks whether it should stop and reads again.
	PollInterval time.Duration
	// RequestTimeout is the per request deadline
	RequestTimeout time.Duration
	// HandshakeTimeout bounds the wait for the handshake acknowledgement
	HandshakeTimeout time.Duration

	// AutoReconnect makes Request connect first when the connection is down.
	// Without it Request fails with ErrNotConnected.
	AutoReconnect bool
	// KeepEventHandlers keeps registered event handlers when a session ends.
	// By default handlers belong to one session and must be registered again.
	KeepEventHandlers bool

	// Logging configuration
	LogLevel string
}

// DefaultClientConfig returns a config for a game on localhost:9999
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		Transport: ClientTransportConfig{
			Endpoint: DefaultEndpoint(),
			TCPConf:  TCPConf{TCPNoDelay: true, TCPLingerSec: -1},
		},
		ClientName:       DefaultClientName,
		ProtocolVersion:  ProtocolVersion,
		PollInterval:     DefaultPollInterval,
		RequestTimeout:   DefaultRequestTimeout,
		HandshakeTimeout: DefaultHandshakeTimeout,
		AutoReconnect:    true,
		LogLevel:         "info",
	}
}

// WithDefaults fills every zero duration and name with its default
func (c ClientConfig) WithDefaults() ClientConfig {
	d := DefaultClientConfig()
	if c.Transport.Endpoint == "" {
		c.Transport.Endpoint = d.Transport.Endpoint
	}
	if c.ClientName == "" {
		c.ClientName = d.ClientName
	}
	if c.ProtocolVersion == "" {
		c.ProtocolVersion = d.ProtocolVersion
	}
	if c.PollInterval <= 0 {
		c.PollInterval = d.PollInterval
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = d.RequestTimeout
	}
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = d.HandshakeTimeout
	}
	if c.LogLevel == "" {
		c.LogLevel = d.LogLevel
	}
	return c
}

// String returns a formatted string representation of the client configuration
func (c *ClientConfig) String() string {
	var sb strings.Builder

	// Create helper functions for consistent formatting
	addSection := func(title string) {
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("%s\n", strings.ToUpper(title)))
	}

	addField := func(name, value string) {
		sb.WriteString(fmt.Sprintf("  %-22s: %s\n", name, value))
	}

	addSection("Client Configuration")
	addField("Endpoint", c.Transport.Endpoint)
	addField("Client Name", c.ClientName)
	addField("Protocol Version", c.ProtocolVersion)
	addField("Poll Interval", c.PollInterval.String())
	addField("Request Timeout", c.RequestTimeout.String())
	addField("Handshake Timeout", c.HandshakeTimeout.String())
	addField("Auto Reconnect", strconv.FormatBool(c.AutoReconnect))
	addField("Keep Event Handlers", strconv.FormatBool(c.KeepEventHandlers))

	addSection("Socket")
	addField("TCP No Delay", strconv.FormatBool(c.Transport.TCPNoDelay))
	addField("TCP Keep Alive", fmt.Sprintf("%d sec", c.Transport.TCPKeepAliveSec))
	addField("Read Buffer", fmt.Sprintf("%d bytes", c.Transport.ReadBufferSize))
	addField("Write Buffer", fmt.Sprintf("%d bytes", c.Transport.WriteBufferSize))

	addSection("Logging")
	addField("Log Level", c.LogLevel)

	return sb.String()
}

// --------------------------------------------------------------------------
// Mock peer configuration struct
// --------------------------------------------------------------------------

// PeerTransportConfig describes where the mock peer listens
type PeerTransportConfig struct {
	Endpoint string
	SocketConf
	TCPConf
}

// PeerConfig holds the configuration of the mock game peer
type PeerConfig struct {
	Transport PeerTransportConfig

	// Reported in the handshake acknowledgement
	GameName string
	Mode     string

	// WriteTimeout bounds a single write to a client (0 disables it)
	WriteTimeout time.Duration

	LogLevel string
}

// DefaultPeerConfig returns a peer listening on the default game endpoint
func DefaultPeerConfig() PeerConfig {
	return PeerConfig{
		Transport: PeerTransportConfig{
			Endpoint: DefaultEndpoint(),
			TCPConf:  TCPConf{TCPNoDelay: true, TCPLingerSec: -1},
		},
		GameName:     "demo",
		Mode:         "main",
		WriteTimeout: DefaultWriteTimeout,
		LogLevel:     "info",
	}
}

// String returns a formatted string representation of the peer configuration
func (c *PeerConfig) String() string {
	var sb strings.Builder

	addSection := func(title string) {
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("%s\n", strings.ToUpper(title)))
	}

	addField := func(name, value string) {
		sb.WriteString(fmt.Sprintf("  %-22s: %s\n", name, value))
	}

	addSection("Mock Peer")
	addField("Endpoint", c.Transport.Endpoint)
	addField("Game", c.GameName)
	addField("Mode", c.Mode)
	addField("Write Timeout", c.WriteTimeout.String())

	addSection("Logging")
	addField("Log Level", c.LogLevel)

	return sb.String()
}
