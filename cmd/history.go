package cmd

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/lehigh-university-libraries/portraitkiosk/internal/config"
	"github.com/lehigh-university-libraries/portraitkiosk/internal/history"
	"github.com/spf13/cobra"
)

func newHistoryCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Inspect and export past runs",
	}

	cmd.AddCommand(newHistoryListCmd(configPath))
	cmd.AddCommand(newHistoryExportCmd(configPath))

	return cmd
}

func newHistoryListCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List recorded runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			records, err := history.Load(history.Dir(cfg.TmpDir))
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "STARTED\tRUN\tTRIGGER\tOUTCOME\tDURATION")
			for _, rec := range records {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
					rec.StartedAt.Local().Format(time.DateTime), rec.ID, rec.Trigger, rec.Outcome, rec.Duration().Round(time.Millisecond))
			}
			return tw.Flush()
		},
	}
}

func newHistoryExportCmd(configPath *string) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export run history as Parquet",
		Example: `  # Write every recorded run to runs.parquet
  portraitkiosk history export --output runs.parquet`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			records, err := history.Load(history.Dir(cfg.TmpDir))
			if err != nil {
				return err
			}

			n, err := history.ExportParquet(output, history.Rows(records))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Exported %d rows from %d runs to %s\n", n, len(records), output)
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "runs.parquet", "Parquet file to write")

	return cmd
}
