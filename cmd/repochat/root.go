package main

import (
	"fmt"
	"os"

	"github.com/gomantics/repochat/config"
	"github.com/gomantics/repochat/internal/client"
	"github.com/spf13/cobra"
)

var (
	configPath string
	serverAddr string
	jsonOutput bool
)

var rootCmd = &cobra.Command{
	Use:   "repochat",
	Short: "Chat with your repositories",
	Long: `repochat keeps a registry of source repositories, builds a knowledge
graph for each of them and answers questions over the active ones.

Run "repochat serve" to start the server; every other command talks to it.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if configPath == "" {
			configPath = os.Getenv(config.EnvPrefix + "_CONFIG")
		}
		return config.Load(configPath)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "",
		"Path to a TOML config file (default: $REPOCHAT_CONFIG)")
	rootCmd.PersistentFlags().StringVar(&serverAddr, "addr", "",
		"Server address (default: localhost:<server.port>)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
}

func newClient() *client.Client {
	addr := serverAddr
	if addr == "" {
		addr = fmt.Sprintf("localhost:%d", config.Server.Port())
	}
	return client.New(addr)
}
