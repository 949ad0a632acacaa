package cmd

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"go.olrik.dev/sshmcp/internal/rpc"
)

// activeSessionCompletionFunc asks the daemon for the current session list,
// for shell completion of a trailing <name> argument.
func activeSessionCompletionFunc(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	resp, err := rpc.Call(rpc.MethodList, struct{}{})
	if err != nil {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
	raw, err := json.Marshal(resp.Data)
	if err != nil {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
	var names []string
	json.Unmarshal(raw, &names)
	return names, cobra.ShellCompDirectiveNoFileComp
}

// NewDisconnectCommand tears down one named session, or every session when
// --all is given.
func NewDisconnectCommand() *cobra.Command {
	var all bool

	disconnectCmd := &cobra.Command{
		Use:               "disconnect [name]",
		Aliases:           []string{"d"},
		Short:             "Disconnect a session",
		Args:              cobra.MaximumNArgs(1),
		ValidArgsFunction: activeSessionCompletionFunc,
		RunE: func(cmd *cobra.Command, args []string) error {
			rpc.CheckVersionMismatch()

			if all {
				resp, err := rpc.Call(rpc.MethodList, struct{}{})
				if err != nil {
					slog.Error(fmt.Sprintf("could not reach daemon: %v", err))
					os.Exit(1)
				}
				raw, err := json.Marshal(resp.Data)
				if err != nil {
					return err
				}
				var names []string
				if err := json.Unmarshal(raw, &names); err != nil {
					return err
				}
				for _, name := range names {
					dResp, err := rpc.Call(rpc.MethodDisconnect, rpc.NameParams{Name: name})
					if err != nil {
						slog.Error(fmt.Sprintf("could not reach daemon: %v", err))
						os.Exit(1)
					}
					dResp.LogMessages()
				}
				return nil
			}

			if len(args) != 1 {
				return fmt.Errorf("requires a session name, or --all")
			}
			resp, err := rpc.Call(rpc.MethodDisconnect, rpc.NameParams{Name: args[0]})
			if err != nil {
				slog.Error(fmt.Sprintf("could not reach daemon: %v", err))
				os.Exit(1)
			}
			resp.LogMessages()
			return nil
		},
	}

	disconnectCmd.Flags().BoolVar(&all, "all", false, "disconnect every active session")
	return disconnectCmd
}
