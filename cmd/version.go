package cmd

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"go.olrik.dev/sshmcp/internal/core"
	"go.olrik.dev/sshmcp/internal/rpc"
)

// NewVersionCommand prints the client version and, if reachable, the
// running daemon's version, warning on mismatch.
func NewVersionCommand() *cobra.Command {
	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Show version",
		Long:  `Show version of both client and daemon (if running)`,
		Run: func(cmd *cobra.Command, args []string) {
			clientVersion := core.Version
			clientFormatted := core.FormatVersion(clientVersion)
			fmt.Fprintf(os.Stderr, "Client version: %s\n", clientFormatted)

			resp, err := rpc.Call(rpc.MethodVersion, struct{}{})
			if err != nil {
				fmt.Fprintln(os.Stderr, "Daemon: not running")
				return
			}

			if resp.Data == nil {
				return
			}
			raw, _ := json.Marshal(resp.Data)
			var versionData map[string]string
			if err := json.Unmarshal(raw, &versionData); err != nil {
				return
			}
			daemonVersion := versionData["version"]
			daemonFormatted := core.FormatVersion(daemonVersion)
			fmt.Fprintf(os.Stderr, "Daemon version: %s\n", daemonFormatted)

			if clientVersion != daemonVersion {
				slog.Warn(fmt.Sprintf("version mismatch: client %s, daemon %s", clientFormatted, daemonFormatted))
			}
		},
	}

	return versionCmd
}
