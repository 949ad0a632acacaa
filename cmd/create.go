package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"go.olrik.dev/sshmcp/internal/keyring"
	"go.olrik.dev/sshmcp/internal/rpc"
)

// NewCreateCommand creates a named session and connects its shell.
func NewCreateCommand() *cobra.Command {
	var host string
	var port int
	var username string
	var keyFilePath string
	var usePassword bool
	var usePassphrase bool

	createCmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Create a named SSH session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rpc.EnsureDaemonIsRunning()
			rpc.CheckVersionMismatch()

			name := args[0]
			params := rpc.CreateSessionParams{
				Name:        name,
				Host:        host,
				Port:        port,
				Username:    username,
				KeyFilePath: keyFilePath,
			}

			if usePassword {
				password, err := keyring.GetPassword(name)
				if err != nil {
					return err
				}
				if password == "" {
					password, err = keyring.PromptAndConfirmPassword(name)
					if err != nil {
						return err
					}
				}
				params.Password = password
			}

			if usePassphrase {
				passphrase, err := keyring.GetPassword(name)
				if err != nil {
					return err
				}
				if passphrase == "" {
					passphrase, err = keyring.PromptAndConfirmPassword(name)
					if err != nil {
						return err
					}
				}
				params.Passphrase = passphrase
			}

			resp, err := rpc.CallStreaming(rpc.MethodCreateSession, params)
			if err != nil {
				slog.Error(fmt.Sprintf("could not reach daemon: %v", err))
				os.Exit(1)
			}
			resp.LogMessages()
			if dataMap, ok := resp.Data.(map[string]interface{}); ok {
				if url, ok := dataMap["observerUrl"].(string); ok {
					fmt.Println(url)
				}
			}
			return nil
		},
	}

	createCmd.Flags().StringVar(&host, "host", "", "SSH host")
	createCmd.Flags().IntVar(&port, "port", 22, "SSH port")
	createCmd.Flags().StringVar(&username, "username", "", "SSH username")
	createCmd.Flags().StringVar(&keyFilePath, "key-file", "", "private key file path")
	createCmd.Flags().BoolVar(&usePassword, "password", false, "authenticate with a keyring-stored password")
	createCmd.Flags().BoolVar(&usePassphrase, "passphrase", false, "unlock the private key with a keyring-stored passphrase")
	createCmd.MarkFlagRequired("host")
	createCmd.MarkFlagRequired("username")

	return createCmd
}
