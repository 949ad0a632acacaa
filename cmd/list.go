package cmd

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"go.olrik.dev/sshmcp/internal/rpc"
)

// NewListCommand prints the names of every registered session.
func NewListCommand() *cobra.Command {
	listCmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List active sessions",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
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

			if len(names) == 0 {
				fmt.Println("No active sessions")
				return nil
			}
			for _, name := range names {
				fmt.Println(name)
			}
			return nil
		},
	}

	return listCmd
}
