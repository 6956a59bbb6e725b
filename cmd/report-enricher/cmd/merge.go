package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/openctemio/report-enricher/internal/app/enrich"
)

var mergeCmd = &cobra.Command{
	Use:   "merge",
	Short: "Join the lookup table back onto the source report",
	Long: `Merge loads the lookup table into memory, streams the source report a
second time, and writes every row with the looked-up attribute appended
as a new final column (empty when the image has no known value).`,
	RunE: runMerge,
}

func init() {
	mergeCmd.Flags().String("source", "", "Source report CSV (default: REPORT_SOURCE_FILE)")
	mergeCmd.Flags().String("lookup", "", "Lookup table CSV (default: REPORT_LOOKUP_FILE)")
	mergeCmd.Flags().String("output", "", "Merged report CSV to write (default: REPORT_MERGED_FILE)")
}

func runMerge(cmd *cobra.Command, _ []string) error {
	in := enrich.MergeInput{
		SourcePath:   stringFlagOr(cmd, "source", cfg.Report.SourceFile),
		LookupPath:   stringFlagOr(cmd, "lookup", cfg.Report.LookupFile),
		JoinColumn:   cfg.Report.JoinColumn,
		OutputColumn: cfg.Report.OutputColumn,
		OutputPath:   stringFlagOr(cmd, "output", cfg.Report.MergedFile),
	}

	svc := newEnrichService()
	stats, err := svc.Merge(cmd.Context(), in)
	if err != nil {
		return err
	}

	fmt.Printf("Rows processed: %d\n", stats.RowsTotal)
	fmt.Printf("Rows matched:   %d\n", stats.RowsMatched)
	fmt.Printf("Merged report:  %s\n", in.OutputPath)
	return nil
}
