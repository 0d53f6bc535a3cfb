package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"admintable.org/internal/config"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Validate a configuration file",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		if err := cfg.Validate(); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "config ok: backend %s, storage %s\n", cfg.BackendURL, cfg.Storage.Driver)
		return nil
	},
}
