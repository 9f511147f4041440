package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/gomantics/repochat/config"
	"github.com/spf13/cobra"
)

var configInitForce bool

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect and create configuration files",
}

var configInitCmd = &cobra.Command{
	Use:   "init <path>",
	Short: "Write the default configuration to path",
	Args:  cobra.ExactArgs(1),
	RunE:  runConfigInit,
}

var configCheckCmd = &cobra.Command{
	Use:   "check <path>",
	Short: "Validate a configuration file and report unknown keys",
	Args:  cobra.ExactArgs(1),
	RunE:  runConfigCheck,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configCheckCmd)

	configInitCmd.Flags().BoolVar(&configInitForce, "force", false, "Overwrite an existing file")
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	flags := os.O_WRONLY | os.O_CREATE | os.O_EXCL
	if configInitForce {
		flags = os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	}

	f, err := os.OpenFile(args[0], flags, 0o644)
	if errors.Is(err, os.ErrExist) {
		return fmt.Errorf("%s already exists, use --force to overwrite", args[0])
	}
	if err != nil {
		return err
	}
	defer f.Close()

	if err := config.WriteDefaults(f); err != nil {
		return fmt.Errorf("failed to write %s: %w", args[0], err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", args[0])
	return nil
}

func runConfigCheck(cmd *cobra.Command, args []string) error {
	unknown, err := config.UnknownKeys(args[0])
	if err != nil {
		return err
	}
	if err := config.Load(args[0]); err != nil {
		return err
	}

	for _, k := range unknown {
		fmt.Fprintf(cmd.OutOrStdout(), "unknown key: %s\n", k)
	}
	if len(unknown) > 0 {
		return fmt.Errorf("%d unknown key(s) in %s", len(unknown), args[0])
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s is valid\n", args[0])
	return nil
}
