package game

import (
	"encoding/json"
	"fmt"
	"github.com/ValentinKolb/gamelink/cmd/util"
	"github.com/ValentinKolb/gamelink/rpc/client"
	"github.com/spf13/cobra"
	"os"
	"strconv"
)

var (
	stateCmd = &cobra.Command{
		Use:   "state",
		Short: "Prints the current game state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			depth, _ := cmd.Flags().GetString("depth")
			include, _ := cmd.Flags().GetStringSlice("include")
			resp, err := gameClient.GetState(commandContext(cmd), client.GetStateParams{
				Depth:   client.Depth(depth),
				Include: include,
			})
			if err != nil {
				return err
			}
			return util.PrintJSON(os.Stdout, resp)
		},
	}
	keyCmd = &cobra.Command{
		Use:   "key [key]",
		Short: "Sends a key input (e.g. space, escape, w)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			action, _ := cmd.Flags().GetString("action")
			duration, _ := cmd.Flags().GetFloat64("duration")
			resp, err := gameClient.SendKey(commandContext(cmd), args[0], client.InputAction(action), duration)
			if err != nil {
				return err
			}
			return util.PrintJSON(os.Stdout, resp)
		},
	}
	clickCmd = &cobra.Command{
		Use:   "click [x] [y]",
		Short: "Clicks at screen coordinates",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			x, err := strconv.ParseFloat(args[0], 64)
			if err != nil {
				return fmt.Errorf("x must be a number: %w", err)
			}
			y, err := strconv.ParseFloat(args[1], 64)
			if err != nil {
				return fmt.Errorf("y must be a number: %w", err)
			}
			button, _ := cmd.Flags().GetInt("button")
			resp, err := gameClient.SendClick(commandContext(cmd), x, y, button)
			if err != nil {
				return err
			}
			return util.PrintJSON(os.Stdout, resp)
		},
	}
	actionCmd = &cobra.Command{
		Use:   "action [action] [key=value ...]",
		Short: "Executes a high-level game action (e.g. place_building building_type=farm x=400 y=300)",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fields, err := util.ParseFields(args[1:])
			if err != nil {
				return err
			}
			resp, err := gameClient.Action(commandContext(cmd), client.ActionParams{
				Action: args[0],
				Fields: fields,
			})
			if err != nil {
				return err
			}
			return util.PrintJSON(os.Stdout, resp)
		},
	}
	controlCmd = &cobra.Command{
		Use:       "control [command] [value]",
		Short:     "Sends a control command (pause, resume, set_speed, screenshot, reset, headless, quit)",
		Args:      cobra.RangeArgs(1, 2),
		ValidArgs: controlCommandNames(),
		RunE: func(cmd *cobra.Command, args []string) error {
			p := client.ControlParams{Command: client.ControlCommand(args[0])}
			if len(args) == 2 {
				p.Value = parseValue(args[1])
			}
			resp, err := gameClient.Control(commandContext(cmd), p)
			if err != nil {
				return err
			}
			return util.PrintJSON(os.Stdout, resp)
		},
	}
	queryCmd = &cobra.Command{
		Use:   "query [query_type] [key=value ...]",
		Short: "Queries game data (e.g. building, citizen, character_cravings)",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			extra, err := util.ParseFields(args[1:])
			if err != nil {
				return err
			}
			id, _ := cmd.Flags().GetString("id")
			characterID, _ := cmd.Flags().GetString("character-id")
			depth, _ := cmd.Flags().GetString("depth")
			limit, _ := cmd.Flags().GetInt("limit")
			resp, err := gameClient.Query(commandContext(cmd), client.QueryParams{
				QueryType:   args[0],
				ID:          id,
				CharacterID: characterID,
				Depth:       client.Depth(depth),
				Limit:       limit,
				Extra:       extra,
			})
			if err != nil {
				return err
			}
			return util.PrintJSON(os.Stdout, resp)
		},
	}
	logsCmd = &cobra.Command{
		Use:   "logs",
		Short: "Prints game log entries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			since, _ := cmd.Flags().GetInt("since-frame")
			types, _ := cmd.Flags().GetStringSlice("event-types")
			limit, _ := cmd.Flags().GetInt("limit")
			resp, err := gameClient.GetLogs(commandContext(cmd), client.LogsParams{
				SinceFrame: since,
				EventTypes: types,
				Limit:      limit,
			})
			if err != nil {
				return err
			}
			return util.PrintJSON(os.Stdout, resp)
		},
	}
	callCmd = &cobra.Command{
		Use:   "call [method] [params-json]",
		Short: "Sends any method with raw JSON params",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var params json.RawMessage
			if len(args) == 2 {
				params = json.RawMessage(args[1])
				if !json.Valid(params) {
					return fmt.Errorf("params must be valid JSON")
				}
			}
			resp, err := gameClient.Call(commandContext(cmd), args[0], params)
			if err != nil {
				return err
			}
			return util.PrintJSON(os.Stdout, resp)
		},
	}
)

func init() {
	stateCmd.Flags().String("depth", string(client.DepthSummary), util.WrapString("Level of detail (minimal, summary, full)"))
	stateCmd.Flags().StringSlice("include", nil, util.WrapString("Sections to include (comma separated, all if empty)"))

	keyCmd.Flags().String("action", string(client.ActionTap), util.WrapString("Key action (press, release, tap)"))
	keyCmd.Flags().Float64("duration", 0.1, util.WrapString("How long the key is held (in seconds)"))

	clickCmd.Flags().Int("button", 1, util.WrapString("Mouse button (1 = left, 2 = right, 3 = middle)"))

	queryCmd.Flags().String("id", "", util.WrapString("Entity ID (building ID, citizen ID or item name)"))
	queryCmd.Flags().String("character-id", "", util.WrapString("Character ID for character queries"))
	queryCmd.Flags().String("depth", "", util.WrapString("Level of detail (minimal, summary, full)"))
	queryCmd.Flags().Int("limit", 0, util.WrapString("Maximum number of results"))

	logsCmd.Flags().Int("since-frame", 0, util.WrapString("Only entries from this frame on"))
	logsCmd.Flags().StringSlice("event-types", nil, util.WrapString("Only entries of these types (comma separated)"))
	logsCmd.Flags().Int("limit", client.DefaultLogLimit, util.WrapString("Maximum number of entries"))
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

// parseValue decodes JSON scalars (2.0, true) and keeps everything else as a string
func parseValue(s string) any {
	var v any
	if err := json.Unmarshal([]byte(s), &v); err == nil {
		return v
	}
	return s
}

func controlCommandNames() []string {
	names := make([]string, 0, len(client.ControlCommands))
	for _, c := range client.ControlCommands {
		names = append(names, string(c))
	}
	return names
}
