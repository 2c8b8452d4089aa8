package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"promisetracker/internal/batch"
)

const dateLayout = "2006-01-02"

func newRunCmd(r *root) *cobra.Command {
	var (
		stage    string
		from, to string
		req      batch.Request
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one bounded batch of a pipeline stage",
		Long: `Claims up to --max items for the stage, processes them with the
configured worker pool and prints the tally. Items held by a concurrent
run are skipped.

Example:
  pipeline run --stage materialize --from 2024-01-01 --to 2024-02-01
  pipeline run --stage generate_links --max 50 --force`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			req.Stage = batch.Stage(stage)
			if req.WindowStart, err = parseBound(from); err != nil {
				return fmt.Errorf("--from: %w", err)
			}
			if req.WindowEnd, err = parseBound(to); err != nil {
				return fmt.Errorf("--to: %w", err)
			}
			if err := req.Validate(); err != nil {
				return err
			}

			a, err := r.open(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			tally, err := a.Batches.RunBatch(cmd.Context(), req)
			if err != nil {
				return err
			}
			return printYAML(cmd, struct {
				Stage batch.Stage `yaml:"stage"`
				Tally batch.Tally `yaml:"tally"`
			}{req.Stage, tally})
		},
	}
	cmd.Flags().StringVar(&stage, "stage", "", "stage to run (materialize or generate_links)")
	cmd.Flags().StringVar(&from, "from", "", "window start, inclusive (YYYY-MM-DD or RFC3339)")
	cmd.Flags().StringVar(&to, "to", "", "window end, exclusive (YYYY-MM-DD or RFC3339)")
	cmd.Flags().IntVar(&req.MaxItems, "max", 0, "maximum items to claim (0 uses pipeline.max_items)")
	cmd.Flags().BoolVar(&req.Force, "force", false, "re-enter evidence with no candidates (generate_links only)")
	cmd.Flags().StringVar(&req.Session, "session", "", "restrict to one parliament session")
	cmd.Flags().Int("workers", 0, "worker pool size (overrides pipeline.workers)")
	_ = cmd.MarkFlagRequired("stage")
	_ = r.v.BindPFlag("pipeline.workers", cmd.Flags().Lookup("workers"))
	return cmd
}

func parseBound(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(dateLayout, s); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("expected YYYY-MM-DD or RFC3339, got %q", s)
	}
	return t.UTC(), nil
}

func printYAML(cmd *cobra.Command, v any) error {
	enc := yaml.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	return enc.Close()
}
