package mock

import (
	"context"
	"fmt"
	cmdUtil "github.com/ValentinKolb/gamelink/cmd/util"
	"github.com/ValentinKolb/gamelink/rpc/common"
	"github.com/ValentinKolb/gamelink/rpc/server"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"os"
	"os/signal"
	"syscall"
	"time"
)

var (
	mockCmdConfig = common.DefaultPeerConfig()
	mockWorkers   = 4
	mockTick      = 100 * time.Millisecond
	mockHeartbeat = time.Duration(0)

	MockCmd = &cobra.Command{
		Use:   "mock",
		Short: "Run a mock game",
		Long: `Run a mock game that speaks the automation protocol. It answers get_state, send_input, send_action, control, query and get_logs with a small in-memory game and broadcasts events for actions and control commands.

The configuration can be set via command line flags or environment variables. The format of the environment variables is CRAVETOWN_<flag> (e.g. CRAVETOWN_GAME=demo)`,
		Args:    cobra.NoArgs,
		PreRunE: processConfig,
		RunE:    run,
	}
)

func init() {
	// add flags
	key := "endpoint"
	MockCmd.Flags().String(key, common.DefaultEndpoint(), cmdUtil.WrapString("The address on which the mock game will listen (e.g. localhost:9999, /tmp/game.sock)"))

	key = "game"
	MockCmd.Flags().String(key, mockCmdConfig.GameName, cmdUtil.WrapString("Game name reported in the handshake acknowledgement"))

	key = "mode"
	MockCmd.Flags().String(key, mockCmdConfig.Mode, cmdUtil.WrapString("Initial game mode reported in the handshake acknowledgement"))

	key = "workers"
	MockCmd.Flags().Int(key, mockWorkers, cmdUtil.WrapString("Requests handled concurrently per connection (1 answers in request order)"))

	key = "write-timeout"
	MockCmd.Flags().Duration(key, mockCmdConfig.WriteTimeout, cmdUtil.WrapString("Timeout of a single write to a client"))

	key = "tick"
	MockCmd.Flags().Duration(key, mockTick, cmdUtil.WrapString("How often the game advances one frame (0 stops the clock)"))

	key = "heartbeat"
	MockCmd.Flags().Duration(key, mockHeartbeat, cmdUtil.WrapString("Broadcast a heartbeat event with the current frame at this interval (0 disables it)"))
}

// processConfig reads the configuration from the command line flags and environment variables and converts them to the peer configuration
func processConfig(cmd *cobra.Command, _ []string) error {
	// bind the flags to viper
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	mockCmdConfig.Transport.Endpoint = viper.GetString("endpoint")
	mockCmdConfig.GameName = viper.GetString("game")
	mockCmdConfig.Mode = viper.GetString("mode")
	mockCmdConfig.WriteTimeout = viper.GetDuration("write-timeout")
	mockCmdConfig.LogLevel = viper.GetString("log-level")
	mockWorkers = viper.GetInt("workers")
	mockTick = viper.GetDuration("tick")
	mockHeartbeat = viper.GetDuration("heartbeat")

	if mockCmdConfig.Transport.Endpoint == "" {
		return fmt.Errorf("endpoint must not be empty")
	}
	if mockWorkers < 1 {
		return fmt.Errorf("workers must be at least 1")
	}

	return common.InitLoggers(mockCmdConfig.LogLevel)
}

// run starts the mock game and blocks until interrupted
func run(_ *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	t, err := cmdUtil.GetServerTransport(mockWorkers)
	if err != nil {
		return err
	}

	s := server.NewPeerServer(mockCmdConfig, t)
	game := server.RegisterDemoGame(s)

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.Serve()
	}()

	select {
	case <-s.Ready():
	case err := <-errCh:
		return err
	}
	fmt.Printf("mock game %q listening on %s\n", mockCmdConfig.GameName, s.Addr())

	go runClock(ctx, s, game)

	select {
	case <-ctx.Done():
		server.Logger.Infof("Shutting down")
		return s.Close()
	case err := <-errCh:
		return err
	}
}

// runClock advances the game and sends heartbeats until ctx is done
func runClock(ctx context.Context, s *server.PeerServer, game *server.DemoGame) {
	var tickC, heartbeatC <-chan time.Time
	if mockTick > 0 {
		ticker := time.NewTicker(mockTick)
		defer ticker.Stop()
		tickC = ticker.C
	}
	if mockHeartbeat > 0 {
		ticker := time.NewTicker(mockHeartbeat)
		defer ticker.Stop()
		heartbeatC = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-tickC:
			game.Tick(1)
		case <-heartbeatC:
			if _, err := s.Broadcast("heartbeat", map[string]any{"frame": game.Frame()}); err != nil {
				server.Logger.Warningf("Failed to broadcast heartbeat: %v", err)
			}
		}
	}
}
