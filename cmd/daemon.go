package cmd

import (
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"go.olrik.dev/sshmcp/internal/auditlog"
	"go.olrik.dev/sshmcp/internal/core"
	"go.olrik.dev/sshmcp/internal/rpc"
	"go.olrik.dev/sshmcp/internal/sshsession"
)

// NewDaemonCommand runs the registry + IPC server in the foreground. The
// "create" command forks this as a background child via rpc.StartDaemon when
// it finds no daemon listening; the other commands expect one to be running.
func NewDaemonCommand() *cobra.Command {
	daemonCmd := &cobra.Command{
		Use:    "daemon",
		Hidden: true,
		Run: func(cmd *cobra.Command, args []string) {
			auditPath := core.Config.AuditLogPath
			if !filepath.IsAbs(auditPath) {
				auditPath = filepath.Join(core.Config.ConfigPath, auditPath)
			}
			log, err := auditlog.Open(auditPath)
			if err != nil {
				slog.Error("failed to open audit log", "error", err)
				os.Exit(1)
			}
			defer log.Close()
			log.SessionEvent("", "daemon_start", "daemon started")

			registry := sshsession.NewSessionRegistry(log)
			resolver := sshsession.NewUrlResolver(8723)
			server := rpc.NewServer(registry, resolver, core.Version)

			core.WatchConfig(filepath.Join(core.Config.ConfigPath, "config.hcl"), core.Config.ConfigPath)

			sigChan := make(chan os.Signal, 1)
			signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)
			go func() {
				<-sigChan
				slog.Info("shutdown signal received, disconnecting all sessions")
				registry.Cleanup()
				log.SessionEvent("", "daemon_stop", "daemon stopped")
				server.Close()
				os.Exit(0)
			}()

			if err := server.Run(); err != nil {
				slog.Error("daemon exited", "error", err)
				os.Exit(1)
			}
		},
	}

	return daemonCmd
}
