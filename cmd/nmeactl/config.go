package main

import (
	"fmt"

	"github.com/danmuck/nmead/internal/config"
	"github.com/spf13/cobra"
)

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Generate or validate config.toml",
	}
	cmd.AddCommand(configInitCmd(), configValidateCmd())
	return cmd
}

func configInitCmd() *cobra.Command {
	var (
		output string
		force  bool
	)
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a config template",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := config.WriteTemplate(output, force); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote config template to %s\n", output)
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "config.toml", "output path for config template")
	cmd.Flags().BoolVar(&force, "force", false, "overwrite existing config file")
	return cmd
}

func configValidateCmd() *cobra.Command {
	var input string
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate an existing config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(input)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Validated config at %s (listen=%s handlers=%d)\n",
				input, cfg.Server.Address(), len(cfg.Handlers))
			return nil
		},
	}
	cmd.Flags().StringVarP(&input, "input", "i", "config.toml", "config path for validation")
	return cmd
}
