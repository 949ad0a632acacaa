package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"go.olrik.dev/sshmcp/internal/rpc"
)

// NewSignalCommand sends a named control signal (e.g. SIGINT, SIGTSTP) to a
// session's foreground job.
func NewSignalCommand() *cobra.Command {
	signalCmd := &cobra.Command{
		Use:   "signal <name> <signal>",
		Short: "Send a control signal to a session",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := rpc.Call(rpc.MethodSendSignal, rpc.SendSignalParams{
				Name:   args[0],
				Signal: args[1],
			})
			if err != nil {
				slog.Error(fmt.Sprintf("could not reach daemon: %v", err))
				os.Exit(1)
			}
			resp.LogMessages()
			return nil
		},
	}

	return signalCmd
}
