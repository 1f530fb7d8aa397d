package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ncdav/ncdav-sync/internal/config"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration",
	}

	cmd.AddCommand(newConfigShowCmd())
	cmd.AddCommand(newConfigValidateCmd())

	return cmd
}

func newConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Display effective configuration after all overrides",
		RunE: func(_ *cobra.Command, _ []string) error {
			if cfg == nil {
				return errors.New("no configuration loaded")
			}

			fmt.Printf("state_path = %q\n", cfg.StatePath)
			fmt.Printf("log_level = %q\n", cfg.LogLevel)
			fmt.Printf("log_file = %q\n", cfg.LogFile)
			fmt.Printf("http_timeout_seconds = %d\n", cfg.HTTPTimeoutSeconds)

			return nil
		},
	}
}

func newConfigValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check the config file for unknown keys and invalid values",
		RunE: func(_ *cobra.Command, _ []string) error {
			path := flagConfigPath
			if path == "" {
				path = config.DefaultConfigPath()
			}

			if _, err := os.Stat(path); os.IsNotExist(err) {
				fmt.Printf("no config file at %s, defaults in effect\n", path)
				return nil
			}

			if _, err := config.Load(path); err != nil {
				return err
			}

			fmt.Printf("%s is valid\n", path)

			return nil
		},
	}
}
