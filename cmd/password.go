package cmd

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"go.olrik.dev/sshmcp/internal/keyring"
	"go.olrik.dev/sshmcp/internal/rpc"
)

// NewPasswordCommand manages keyring-stored secrets keyed by session name,
// used by "create --password"/"create --passphrase" to avoid prompting on
// every connect.
func NewPasswordCommand() *cobra.Command {
	passwordCmd := &cobra.Command{
		Use:     "password",
		Aliases: []string{"passwd", "pass"},
		Short:   "Manage stored passwords for SSH sessions",
		Long:    `Store, delete, and list passwords for SSH sessions. Secrets are stored securely in the system keyring.`,
	}

	setCmd := &cobra.Command{
		Use:               "set <name>",
		Short:             "Store a password or passphrase under a session name",
		Long:              `Store a secret under a session name. The secret is stored securely in the system keyring (Keychain on macOS, Secret Service on Linux).`,
		Args:              cobra.ExactArgs(1),
		ValidArgsFunction: sshHostCompletionFunc,
		Run: func(cmd *cobra.Command, args []string) {
			name := args[0]

			secret, err := keyring.PromptAndConfirmPassword(name)
			if err != nil {
				slog.Error(fmt.Sprintf("failed to read secret: %v", err))
				os.Exit(1)
			}

			if err := keyring.SetPassword(name, secret); err != nil {
				slog.Error(fmt.Sprintf("failed to store secret: %v", err))
				os.Exit(1)
			}

			slog.Info(fmt.Sprintf("secret stored securely for '%s'", name))
		},
	}

	deleteCmd := &cobra.Command{
		Use:               "delete <name>",
		Aliases:           []string{"del", "remove", "rm"},
		Short:             "Delete a stored secret for a session name",
		Args:              cobra.ExactArgs(1),
		ValidArgsFunction: sshHostCompletionFunc,
		Run: func(cmd *cobra.Command, args []string) {
			name := args[0]

			if err := keyring.DeletePassword(name); err != nil {
				slog.Error(fmt.Sprintf("failed to delete secret: %v", err))
				os.Exit(1)
			}

			slog.Info(fmt.Sprintf("secret deleted for '%s'", name))
		},
	}

	listCmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List candidate names with stored secrets",
		Long:    `Checks the keyring for secrets stored against both active session names (from the running daemon) and SSH host aliases (from ~/.ssh/config), since the keyring itself cannot be enumerated.`,
		Args:    cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			candidates := map[string]bool{}

			if resp, err := rpc.Call(rpc.MethodList, struct{}{}); err == nil {
				raw, err := json.Marshal(resp.Data)
				if err == nil {
					var names []string
					if json.Unmarshal(raw, &names) == nil {
						for _, n := range names {
							candidates[n] = true
						}
					}
				}
			}

			homeDir, err := os.UserHomeDir()
			if err == nil {
				sshConfigPath := homeDir + "/.ssh/config"
				fullConfigString, err := recursivelyReadAllSSHConfigs(sshConfigPath, make(map[string]bool))
				if err == nil {
					for _, host := range extractHostAliases(fullConfigString) {
						candidates[host] = true
					}
				}
			}

			withSecrets := []string{}
			for name := range candidates {
				if keyring.HasPassword(name) {
					withSecrets = append(withSecrets, name)
				}
			}

			if len(withSecrets) == 0 {
				slog.Info("no stored secrets found")
				return
			}

			fmt.Println("Names with stored secrets:")
			for _, name := range withSecrets {
				fmt.Printf("  - %s\n", name)
			}
		},
	}

	passwordCmd.AddCommand(setCmd, deleteCmd, listCmd)
	return passwordCmd
}
