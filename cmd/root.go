package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"

	"go.olrik.dev/sshmcp/internal/core"
)

// NewRootCommand assembles the CLI the same way the teacher's root.go does:
// one persistent config-path/verbose flag pair, a PersistentPreRunE that
// loads config and wires the console logger, then every subcommand attached.
func NewRootCommand() *cobra.Command {
	var configPath string
	var verbose int

	homeDir, _ := os.UserHomeDir()

	rootCmd := &cobra.Command{
		Use:   "sshmcp",
		Short: "sshmcp - multiplexing SSH session manager",
		Long:  `sshmcp multiplexes long-lived interactive SSH shell sessions between program clients and observers.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			hclPath := filepath.Join(configPath, "config.hcl")
			cfg, err := core.LoadConfig(hclPath, configPath)
			if err != nil {
				return err
			}
			cfg.Verbose = verbose
			core.Config = cfg

			level := slog.LevelInfo
			if verbose > 0 {
				level = slog.LevelDebug
			}
			slog.SetDefault(slog.New(
				tint.NewHandler(os.Stderr, &tint.Options{
					Level:      level,
					TimeFormat: time.DateTime,
				}),
			))

			return nil
		},
	}
	rootCmd.PersistentFlags().StringVar(
		&configPath, "config-path", fmt.Sprintf("%s/%s", homeDir, core.BaseDirName),
		"config path",
	)
	rootCmd.PersistentFlags().CountVarP(&verbose, "verbose", "v", "more output, repeat for even more")

	rootCmd.AddCommand(
		NewDaemonCommand(),
		NewCreateCommand(),
		NewExecCommand(),
		NewAttachCommand(),
		NewInputCommand(),
		NewSignalCommand(),
		NewResizeCommand(),
		NewHistoryCommand(),
		NewListCommand(),
		NewDisconnectCommand(),
		NewPasswordCommand(),
		NewVersionCommand(),
	)

	return rootCmd
}
