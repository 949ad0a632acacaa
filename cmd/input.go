package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"go.olrik.dev/sshmcp/internal/rpc"
)

// NewInputCommand forwards raw bytes to a session's PTY, for interactive use
// outside of the command-queue (e.g. answering a running program's prompt).
func NewInputCommand() *cobra.Command {
	var raw bool

	inputCmd := &cobra.Command{
		Use:   "input <name> <text>",
		Short: "Send raw input to a session's terminal",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := rpc.Call(rpc.MethodSendInput, rpc.SendInputParams{
				Name: args[0],
				Text: args[1],
				Raw:  raw,
			})
			if err != nil {
				slog.Error(fmt.Sprintf("could not reach daemon: %v", err))
				os.Exit(1)
			}
			resp.LogMessages()
			return nil
		},
	}

	inputCmd.Flags().BoolVar(&raw, "raw", false, "send character-at-a-time without line buffering")
	return inputCmd
}
