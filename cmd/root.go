package cmd

import (
	"fmt"
	"github.com/ValentinKolb/gamelink/cmd/game"
	"github.com/ValentinKolb/gamelink/cmd/mock"
	"github.com/ValentinKolb/gamelink/cmd/util"
	"github.com/ValentinKolb/gamelink/cmd/watch"
	"github.com/spf13/cobra"
	"os"
)

const (
	Version = "0.3.0"
)

var (

	// RootCmd represents the base command when called without any subcommands
	RootCmd = &cobra.Command{
		Use:   "gamelink",
		Short: "client for the game automation protocol",
		Long: fmt.Sprintf(`gamelink (v%s)

A client for the line-delimited JSON automation protocol of the game.
Query the game state, inject input, run actions and control commands,
watch the event stream or run a mock game to develop against.

Connection settings can also be set via environment variables or a
.env file, e.g. CRAVETOWN_HOST, CRAVETOWN_PORT, CRAVETOWN_TIMEOUT=10s.`, Version),
		SilenceUsage: true,
	}
	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of gamelink",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("gamelink v%s\n", Version)
		},
	}
)

func init() {
	// Initialize viper
	cobra.OnInitialize(util.InitClientConfig)

	// Add Commands
	RootCmd.AddCommand(game.GameCommands)
	RootCmd.AddCommand(watch.WatchCmd)
	RootCmd.AddCommand(mock.MockCmd)
	RootCmd.AddCommand(versionCmd)

	// Add Flags
	key := "transport"
	RootCmd.PersistentFlags().String(key, "tcp", util.WrapString("transport to use (tcp, unix)"))
	key = "log-level"
	RootCmd.PersistentFlags().String(key, "warn", util.WrapString("level at which logs are written to stderr (debug, info, warn, error)"))
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the RootCmd.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
