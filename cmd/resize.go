package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"go.olrik.dev/sshmcp/internal/rpc"
)

// NewResizeCommand sends a window-change request to a session's PTY.
func NewResizeCommand() *cobra.Command {
	resizeCmd := &cobra.Command{
		Use:   "resize <name> <cols> <rows>",
		Short: "Resize a session's terminal window",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			cols, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("invalid cols %q: %w", args[1], err)
			}
			rows, err := strconv.Atoi(args[2])
			if err != nil {
				return fmt.Errorf("invalid rows %q: %w", args[2], err)
			}

			resp, err := rpc.Call(rpc.MethodResize, rpc.ResizeParams{
				Name: args[0],
				Cols: cols,
				Rows: rows,
			})
			if err != nil {
				slog.Error(fmt.Sprintf("could not reach daemon: %v", err))
				os.Exit(1)
			}
			resp.LogMessages()
			return nil
		},
	}

	return resizeCmd
}
