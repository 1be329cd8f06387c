package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/utkarsh5026/stressme/config"
)

func newConfigCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration as YAML",
		Long: `Print the configuration after defaults, the --config file and STRESSME_*
environment variables are applied. The output is a valid config file.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.load(cmd); err != nil {
				return err
			}
			if from := a.cfg.LoadedFrom(); from != "" {
				_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "# loaded from %s\n", from)
			}
			return config.Write(cmd.OutOrStdout(), a.cfg)
		},
	}
}
