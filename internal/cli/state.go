package cli

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	json "github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/kilupskalvis/bizstore/internal/state"
)

var stateCmd = &cobra.Command{
	Use:   "state",
	Short: "Inspect and change the application state",
	Long: `The application state holds customers, products, sales, expenses,
stock history, categories, businesses and users. It changes only by
dispatching actions and is saved after every dispatch.

Examples:
  bizstore state show                         Print the whole state
  bizstore state show products                Print one collection
  bizstore state dispatch add_customer '{"name":"Alice"}'
  bizstore state dispatch add_sale @sale.json
  bizstore state kinds                        List action kinds`,
}

var stateShowCmd = &cobra.Command{
	Use:   "show [collection]",
	Short: "Print the state or one of its collections",
	Args:  cobra.MaximumNArgs(1),
	Run:   runStateShow,
}

var stateDispatchCmd = &cobra.Command{
	Use:   "dispatch <kind> <json|@file|->",
	Short: "Apply an action to the state",
	Args:  cobra.ExactArgs(2),
	Run:   runStateDispatch,
}

var stateKindsCmd = &cobra.Command{
	Use:   "kinds",
	Short: "List the action kinds dispatch accepts",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		for _, k := range state.ActionKinds() {
			fmt.Println(k)
		}
	},
}

func init() {
	stateCmd.AddCommand(stateShowCmd)
	stateCmd.AddCommand(stateDispatchCmd)
	stateCmd.AddCommand(stateKindsCmd)
}

func runStateShow(cmd *cobra.Command, args []string) {
	c := initContext()
	defer c.Close()

	out, err := json.MarshalIndent(c.App.State.GetState(), "", "  ")
	if err != nil {
		exitError("failed to encode state: %v", err)
	}

	if len(args) == 1 {
		var collections map[string]json.RawMessage
		if err := json.Unmarshal(out, &collections); err != nil {
			exitError("%v", err)
		}
		raw, ok := collections[args[0]]
		if !ok {
			exitError("%v: %q", state.ErrUnknownCollection, args[0])
		}
		out = raw
	}
	fmt.Println(string(out))
}

func runStateDispatch(cmd *cobra.Command, args []string) {
	body, err := readPayload(args[1])
	if err != nil {
		exitError("%v", err)
	}

	action, err := state.DecodeAction(args[0], body)
	if err != nil {
		exitError("%v", err)
	}

	c := initContext()
	defer c.Close()

	if err := c.App.State.Dispatch(action); err != nil {
		exitError("%v", err)
	}
	color.New(color.FgGreen).Printf("Dispatched %s\n", action.Kind())
}

// readPayload reads an argument given inline, as @file or as - for stdin.
func readPayload(arg string) ([]byte, error) {
	switch {
	case arg == "-":
		return io.ReadAll(os.Stdin)
	case strings.HasPrefix(arg, "@"):
		return os.ReadFile(arg[1:])
	default:
		return []byte(arg), nil
	}
}
