package cmd

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"go.olrik.dev/sshmcp/internal/rpc"
	"go.olrik.dev/sshmcp/internal/sshsession"
)

// NewHistoryCommand prints a session's recorded command history.
func NewHistoryCommand() *cobra.Command {
	historyCmd := &cobra.Command{
		Use:   "history <name>",
		Short: "Show a session's command history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := rpc.Call(rpc.MethodHistory, rpc.NameParams{Name: args[0]})
			if err != nil {
				slog.Error(fmt.Sprintf("could not reach daemon: %v", err))
				os.Exit(1)
			}
			resp.LogMessages()

			raw, err := json.Marshal(resp.Data)
			if err != nil {
				return err
			}
			var records []sshsession.CommandRecord
			if err := json.Unmarshal(raw, &records); err != nil {
				return err
			}

			for _, rec := range records {
				fmt.Printf("%-8s exit=%-4d %6dms  %s\n", rec.Status, rec.ExitCode, rec.DurationMs, rec.CommandText)
			}
			return nil
		},
	}

	return historyCmd
}
