package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newConfigCmd(r *root) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect pipeline configuration",
		Long: `Configuration hierarchy (highest to lowest priority):
1. CLI flags
2. Environment variables (PROMISES_*)
3. Config file (--config or PROMISES_CONFIG)
4. Defaults`,
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration with secrets redacted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := r.loadConfig()
			if err != nil {
				return err
			}
			if used := r.v.ConfigFileUsed(); used != "" {
				fmt.Fprintf(cmd.ErrOrStderr(), "Configuration file: %s\n", used)
			}
			return printYAML(cmd, cfg.Redacted())
		},
	})
	return cmd
}
