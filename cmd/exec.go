package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"go.olrik.dev/sshmcp/internal/rpc"
)

// NewExecCommand runs one command on a session's queue and prints the
// post-processed result.
func NewExecCommand() *cobra.Command {
	var timeoutMs int64

	execCmd := &cobra.Command{
		Use:   "exec <name> <command>",
		Short: "Run a command on a session and print its output",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			rpc.CheckVersionMismatch()

			name := args[0]
			commandText := joinArgs(args[1:])

			resp, err := rpc.Call(rpc.MethodExecCommand, rpc.ExecCommandParams{
				Name:        name,
				CommandText: commandText,
				Source:      "programClient",
				TimeoutMs:   timeoutMs,
			})
			if err != nil {
				slog.Error(fmt.Sprintf("could not reach daemon: %v", err))
				os.Exit(1)
			}
			resp.LogMessages()

			dataMap, ok := resp.Data.(map[string]interface{})
			if !ok {
				return nil
			}
			if stdout, ok := dataMap["stdout"].(string); ok && stdout != "" {
				fmt.Println(stdout)
			}
			if stderr, ok := dataMap["stderr"].(string); ok && stderr != "" {
				fmt.Fprintln(os.Stderr, stderr)
			}
			if exitCode, ok := dataMap["exitCode"].(float64); ok && exitCode != 0 {
				os.Exit(int(exitCode))
			}
			return nil
		},
	}

	execCmd.Flags().Int64Var(&timeoutMs, "timeout-ms", 0, "command timeout in milliseconds (0 uses the session default)")
	return execCmd
}

func joinArgs(args []string) string {
	out := args[0]
	for _, a := range args[1:] {
		out += " " + a
	}
	return out
}
