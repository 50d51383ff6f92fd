package game

import (
	"context"
	"github.com/ValentinKolb/gamelink/cmd/util"
	"github.com/ValentinKolb/gamelink/rpc/client"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/spf13/cobra"
)

var (
	Logger = logger.GetLogger("cli")

	gameClient *client.GameClient

	// GameCommands represents the game command group
	GameCommands = &cobra.Command{
		Use:                "game",
		Short:              "Send requests to the game",
		Long:               "Send one request to the game and print the result as JSON. The connection is opened for the request and closed afterwards.",
		PersistentPreRunE:  setupGameClient,
		PersistentPostRunE: closeGameClient,
	}
)

func init() {
	// Add common RPC flags to the game command
	util.SetupRPCClientFlags(GameCommands)

	// Add subcommands
	GameCommands.AddCommand(stateCmd)
	GameCommands.AddCommand(keyCmd)
	GameCommands.AddCommand(clickCmd)
	GameCommands.AddCommand(actionCmd)
	GameCommands.AddCommand(controlCmd)
	GameCommands.AddCommand(queryCmd)
	GameCommands.AddCommand(logsCmd)
	GameCommands.AddCommand(callCmd)
	GameCommands.AddCommand(perfTestCmd)
}

// setupGameClient connects to the game
func setupGameClient(cmd *cobra.Command, _ []string) error {
	// Bind command flags to viper
	if err := util.BindCommandFlags(cmd); err != nil {
		return err
	}

	if err := util.InitLogging(); err != nil {
		return err
	}

	config := util.GetClientConfig()
	Logger.Debugf(config.String())

	t, err := util.GetTransport(config)
	if err != nil {
		return err
	}

	gameClient = client.NewGameClient(t)
	return gameClient.Connect(commandContext(cmd))
}

// closeGameClient closes the connection after the command ran
func closeGameClient(_ *cobra.Command, _ []string) error {
	if gameClient == nil {
		return nil
	}
	return gameClient.Close()
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
