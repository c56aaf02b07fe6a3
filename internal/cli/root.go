package cli

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	bind       string
	configPath string
)

// Execute runs the CLI.
func Execute() error {
	return newRootCmd().Execute()
}

func newRootCmd() *cobra.Command {
	envBind := os.Getenv("BIND")
	if envBind == "" {
		envBind = ":7777"
	}
	envConfig := os.Getenv("CONFIG_PATH")
	if envConfig == "" {
		envConfig = "config/config.yaml"
	}

	cmd := &cobra.Command{
		Use:   "peerquiz",
		Short: "Peer-to-peer multiplayer quiz host and client",
	}

	cmd.PersistentFlags().StringVar(&bind, "bind", envBind, "address the host endpoint listens on")
	cmd.PersistentFlags().StringVar(&configPath, "config", envConfig, "path to YAML config")
	cmd.AddCommand(NewHostCmd(&configPath, &bind))
	cmd.AddCommand(NewJoinCmd(&configPath))
	cmd.AddCommand(NewMigrateCmd(&configPath))
	return cmd
}
