package util

import (
	"bytes"
	"encoding/json"
	"fmt"
	"github.com/ValentinKolb/gamelink/rpc/common"
	"github.com/ValentinKolb/gamelink/rpc/transport"
	"github.com/ValentinKolb/gamelink/rpc/transport/tcp"
	"github.com/ValentinKolb/gamelink/rpc/transport/unix"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"io"
	"net"
	"strconv"
	"strings"
	"time"
)

const (
	// Wrap is the number of characters to Wrap the help text at
	Wrap int = 50

	// EnvPrefix is the prefix of all environment variables (e.g. CRAVETOWN_PORT)
	EnvPrefix = "cravetown"
)

// WrapString wraps a string at Wrap characters
func WrapString(text string) string {
	var wrappedLines []string
	var currentLine strings.Builder
	lineWidth := 0

	for _, word := range strings.Fields(text) {
		wordWidth := len(word)

		// Check if we need to wrap
		if lineWidth > 0 && lineWidth+1+wordWidth > Wrap {
			wrappedLines = append(wrappedLines, currentLine.String())
			currentLine.Reset()
			lineWidth = 0
		}

		// Add space before word (if not first word on line)
		if lineWidth > 0 {
			currentLine.WriteString(" ")
			lineWidth++
		}

		// Add the word
		currentLine.WriteString(word)
		lineWidth += wordWidth
	}

	// Add any remaining text
	if currentLine.Len() > 0 {
		wrappedLines = append(wrappedLines, currentLine.String())
	}

	return strings.Join(wrappedLines, "\n")
}

// SetupRPCClientFlags adds the connection flags to a command
func SetupRPCClientFlags(cmd *cobra.Command) {
	key := "host"
	cmd.PersistentFlags().String(key, common.DefaultHost, WrapString("Host the game listens on"))

	key = "port"
	cmd.PersistentFlags().Int(key, common.DefaultPort, WrapString("Port the game listens on"))

	key = "endpoint"
	cmd.PersistentFlags().String(key, "", WrapString("Full endpoint, overrides host and port (host:port for tcp, socket path for unix)"))

	key = "client-name"
	cmd.PersistentFlags().String(key, common.DefaultClientName, WrapString("Client name sent in the handshake"))

	key = "timeout"
	cmd.PersistentFlags().Duration(key, common.DefaultRequestTimeout, WrapString("How long a request waits for its response"))

	key = "handshake-timeout"
	cmd.PersistentFlags().Duration(key, common.DefaultHandshakeTimeout, WrapString("How long connecting waits for the handshake acknowledgement"))

	key = "poll-interval"
	cmd.PersistentFlags().Duration(key, common.DefaultPollInterval, WrapString("Read poll interval of the receive loop, bounds how fast a close is noticed"))

	key = "auto-reconnect"
	cmd.PersistentFlags().Bool(key, true, WrapString("Reconnect on the next request after the connection was lost"))

	key = "transport-write-buffer"
	cmd.PersistentFlags().Int(key, 0, WrapString("The size of the socket write buffer (in KB, 0 keeps the OS default)"))

	key = "transport-read-buffer"
	cmd.PersistentFlags().Int(key, 0, WrapString("The size of the socket read buffer (in KB, 0 keeps the OS default)"))

	key = "transport-tcp-nodelay"
	cmd.PersistentFlags().Bool(key, true, WrapString("Whether to enable TCP_NODELAY (only for tcp)"))

	key = "transport-tcp-keepalive"
	cmd.PersistentFlags().Int(key, 0, WrapString("The keepalive interval (in seconds, only for tcp)"))

	key = "transport-tcp-linger"
	cmd.PersistentFlags().Int(key, -1, WrapString("The linger time (in seconds, only for tcp, 0 or less keeps the OS default)"))
}

// InitClientConfig loads .env files and binds environment variables
func InitClientConfig() {
	// load env files
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	// initialize viper
	viper.SetEnvPrefix(EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv() // read in environment variables that match
}

// GetEndpoint returns the configured endpoint: --endpoint if set, host:port otherwise
func GetEndpoint() string {
	if endpoint := viper.GetString("endpoint"); endpoint != "" {
		return endpoint
	}
	return net.JoinHostPort(viper.GetString("host"), strconv.Itoa(viper.GetInt("port")))
}

// GetClientConfig reads client configuration from viper
func GetClientConfig() common.ClientConfig {
	conf := common.ClientConfig{
		Transport: common.ClientTransportConfig{
			Endpoint: GetEndpoint(),
			SocketConf: common.SocketConf{
				WriteBufferSize: viper.GetInt("transport-write-buffer") * 1024,
				ReadBufferSize:  viper.GetInt("transport-read-buffer") * 1024,
			},
			TCPConf: common.TCPConf{
				TCPKeepAliveSec: viper.GetInt("transport-tcp-keepalive"),
				TCPLingerSec:    viper.GetInt("transport-tcp-linger"),
				TCPNoDelay:      viper.GetBool("transport-tcp-nodelay"),
			},
		},
		ClientName:       viper.GetString("client-name"),
		ProtocolVersion:  common.ProtocolVersion,
		PollInterval:     viper.GetDuration("poll-interval"),
		RequestTimeout:   viper.GetDuration("timeout"),
		HandshakeTimeout: viper.GetDuration("handshake-timeout"),
		AutoReconnect:    viper.GetBool("auto-reconnect"),
		LogLevel:         viper.GetString("log-level"),
	}

	return conf.WithDefaults()
}

// GetTransport creates the client transport selected with --transport
func GetTransport(config common.ClientConfig) (transport.IRPCClientTransport, error) {
	switch viper.GetString("transport") {
	case "tcp", "":
		return tcp.NewTCPClientTransport(config), nil
	case "unix":
		return unix.NewUnixClientTransport(config), nil
	default:
		return nil, fmt.Errorf("invalid transport %s", viper.GetString("transport"))
	}
}

// GetServerTransport creates the peer transport selected with --transport
func GetServerTransport(workers int) (transport.IRPCServerTransport, error) {
	switch viper.GetString("transport") {
	case "tcp", "":
		return tcp.NewTCPServerTransportWithWorkers(workers), nil
	case "unix":
		return unix.NewUnixServerTransport(), nil
	default:
		return nil, fmt.Errorf("invalid transport %s", viper.GetString("transport"))
	}
}

// InitLogging sets the level of all loggers from --log-level
func InitLogging() error {
	return common.InitLoggers(viper.GetString("log-level"))
}

// BindCommandFlags binds a command's flags to viper
func BindCommandFlags(cmd *cobra.Command) error {
	return viper.BindPFlags(cmd.Flags())
}

// PrintJSON writes a result indented to w. Results that are not valid JSON are written as is.
func PrintJSON(w io.Writer, raw json.RawMessage) error {
	if len(raw) == 0 {
		raw = json.RawMessage("null")
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		buf.Reset()
		buf.Write(raw)
	}
	buf.WriteByte('\n')
	_, err := w.Write(buf.Bytes())
	return err
}

// ParseFields parses key=value arguments. Values that are valid JSON (numbers,
// booleans, arrays, objects) are decoded, everything else is kept as a string.
func ParseFields(args []string) (map[string]any, error) {
	fields := make(map[string]any, len(args))
	for _, arg := range args {
		key, value, ok := strings.Cut(arg, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid field %q (expected key=value)", arg)
		}
		var decoded any
		if err := json.Unmarshal([]byte(value), &decoded); err == nil {
			fields[key] = decoded
		} else {
			fields[key] = value
		}
	}
	return fields, nil
}

// FormatDuration formats d with a precision that fits its size
func FormatDuration(d time.Duration) string {
	switch {
	case d < time.Microsecond:
		return fmt.Sprintf("%dns", d.Nanoseconds())
	case d < time.Millisecond:
		return fmt.Sprintf("%.2fµs", float64(d.Nanoseconds())/1e3)
	case d < time.Second:
		return fmt.Sprintf("%.2fms", float64(d.Nanoseconds())/1e6)
	default:
		return fmt.Sprintf("%.2fs", d.Seconds())
	}
}
