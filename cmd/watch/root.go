package watch

import (
	"context"
	"encoding/json"
	"fmt"
	"github.com/ValentinKolb/gamelink/cmd/util"
	"github.com/ValentinKolb/gamelink/rpc/client"
	"github.com/ValentinKolb/gamelink/rpc/common"
	"github.com/jpillora/backoff"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"io"
	"os"
	"os/signal"
	"slices"
	"sync"
	"syscall"
	"time"
)

var (
	Logger = logger.GetLogger("cli")

	// WatchCmd streams game events to stdout
	WatchCmd = &cobra.Command{
		Use:     "watch",
		Short:   "Stream game events",
		Long:    "Connect to the game and print every event as one JSON line. When the connection is lost, reconnect with exponential backoff until interrupted.",
		Args:    cobra.NoArgs,
		PreRunE: processWatchConfig,
		RunE:    run,
	}

	watchEvents     []string
	watchMinBackoff = 100 * time.Millisecond
	watchMaxBackoff = 10 * time.Second
	watchOnce       = false
)

func init() {
	// Add common RPC flags to the watch command
	util.SetupRPCClientFlags(WatchCmd)

	key := "events"
	WatchCmd.Flags().StringSlice(key, nil, util.WrapString("Only print these events (comma separated, all if empty)"))
	key = "min-backoff"
	WatchCmd.Flags().Duration(key, watchMinBackoff, util.WrapString("Delay before the first reconnect attempt"))
	key = "max-backoff"
	WatchCmd.Flags().Duration(key, watchMaxBackoff, util.WrapString("Upper bound of the delay between reconnect attempts"))
	key = "once"
	WatchCmd.Flags().Bool(key, false, util.WrapString("Exit when the connection is lost instead of reconnecting"))
}

func processWatchConfig(cmd *cobra.Command, _ []string) error {
	if err := util.BindCommandFlags(cmd); err != nil {
		return err
	}
	if err := util.InitLogging(); err != nil {
		return err
	}

	watchEvents = viper.GetStringSlice("events")
	watchMinBackoff = viper.GetDuration("min-backoff")
	watchMaxBackoff = viper.GetDuration("max-backoff")
	watchOnce = viper.GetBool("once")
	return nil
}

func run(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	config := util.GetClientConfig()
	// a lost connection is noticed by the watcher, not by a request
	config.AutoReconnect = false
	// the handler is registered once for all sessions
	config.KeepEventHandlers = true

	t, err := util.GetTransport(config)
	if err != nil {
		return err
	}
	gameClient := client.NewGameClient(t)
	defer gameClient.Close()

	return watch(ctx, gameClient, os.Stdout)
}

// watch prints events until ctx is done. The transport must keep its event
// handlers across sessions (KeepEventHandlers).
func watch(ctx context.Context, c *client.GameClient, w io.Writer) error {
	b := &backoff.Backoff{
		Min:    watchMinBackoff,
		Max:    watchMaxBackoff,
		Factor: 2,
		Jitter: true,
	}

	var mu sync.Mutex // serializes writes to w
	printEvent := func(ev common.Event) error {
		if len(watchEvents) > 0 && !slices.Contains(watchEvents, ev.Name) {
			return nil
		}
		line, err := json.Marshal(struct {
			Time  string          `json:"time"`
			Event string          `json:"event"`
			Data  json.RawMessage `json:"data,omitempty"`
		}{time.Now().Format(time.RFC3339Nano), ev.Name, ev.Data})
		if err != nil {
			return err
		}
		mu.Lock()
		defer mu.Unlock()
		_, err = fmt.Fprintf(w, "%s\n", line)
		return err
	}

	poll := time.NewTicker(common.DefaultPollInterval)
	defer poll.Stop()

	c.OnEvent(printEvent)

	for {
		if err := c.Connect(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if watchOnce {
				return err
			}
			delay := b.Duration()
			Logger.Warningf("Connecting failed (%v), retrying in %s", err, delay)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(delay):
			}
			continue
		}

		b.Reset()
		if ack, ok := c.Handshake(); ok {
			Logger.Infof("Watching events of %s (mode %s)", ack.Game, ack.Mode)
		}

		// Wait until the session ends
	session:
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-poll.C:
				if c.Transport().State() == common.StateDisconnected {
					break session
				}
			}
		}

		Logger.Warningf("Connection lost")
		if watchOnce {
			return fmt.Errorf("%w: connection lost", common.ErrConnectionClosed)
		}
	}
}
