package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newMigrateCmd(r *root) *cobra.Command {
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Normalize legacy records into the pipeline's states",
		Long: `Opens a pending_evidence_creation ingest row for every raw document
without one and stamps pending_link_generation on evidence with no status.
Safe to re-run.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := r.open(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			report, err := a.Migrator.Run(cmd.Context(), dryRun)
			if err != nil {
				return err
			}
			return printYAML(cmd, report)
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "report what would change without writing")
	return cmd
}

func newVerifyCmd(r *root) *cobra.Command {
	return &cobra.Command{
		Use:   "verify",
		Short: "Check promise/evidence references for one-sided entries",
		Long: `Scans both reference sets and every confirmed link and prints the
issues found. Nothing is repaired. Exits non-zero when issues exist.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := r.open(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			report, err := a.Migrator.Verify(cmd.Context())
			if err != nil {
				return err
			}
			if err := printYAML(cmd, report); err != nil {
				return err
			}
			if !report.OK() {
				return fmt.Errorf("found %d reference issues", len(report.Issues))
			}
			return nil
		},
	}
}
