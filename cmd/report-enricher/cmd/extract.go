package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/openctemio/report-enricher/internal/app/enrich"
)

var extractCmd = &cobra.Command{
	Use:   "extract",
	Short: "Build the Image ID -> attribute lookup table",
	Long: `Extract streams the source report once, parses each row's JSON label
blob, and reduces the rows to a deduplicated Image ID -> attribute lookup
table written as a two-column CSV.

Rows whose label blob fails to parse are dropped and reported in the
malformed counter; they never reach the table.`,
	RunE: runExtract,
}

func init() {
	extractCmd.Flags().String("source", "", "Source report CSV (default: REPORT_SOURCE_FILE)")
	extractCmd.Flags().String("label-column", "", "CSV column holding the JSON label blob (default: REPORT_LABEL_COLUMN)")
	extractCmd.Flags().String("label-key", "", "Label key to extract (default: REPORT_LABEL_KEY)")
	extractCmd.Flags().String("output", "", "Lookup table CSV to write (default: REPORT_LOOKUP_FILE)")
	extractCmd.Flags().Int64("max-rows", 0, "Cap on data rows processed, for testing (default: REPORT_MAX_ROWS)")
}

func runExtract(cmd *cobra.Command, _ []string) error {
	in := enrich.ExtractInput{
		SourcePath:  stringFlagOr(cmd, "source", cfg.Report.SourceFile),
		LabelColumn: stringFlagOr(cmd, "label-column", cfg.Report.LabelColumn),
		LabelKey:    stringFlagOr(cmd, "label-key", cfg.Report.LabelKey),
		MaxRows:     cfg.Report.MaxRows,
	}
	if cmd.Flags().Changed("max-rows") {
		in.MaxRows, _ = cmd.Flags().GetInt64("max-rows")
	}
	output := stringFlagOr(cmd, "output", cfg.Report.LookupFile)

	svc := newEnrichService()
	res, err := svc.Extract(cmd.Context(), in)
	if err != nil {
		return err
	}
	if err := svc.WriteLookup(res.Table, output, cfg.Report.JoinColumn, cfg.Report.OutputColumn); err != nil {
		return err
	}

	fmt.Printf("Rows processed:          %d\n", res.Stats.RowsTotal)
	fmt.Printf("Rows with %s:    %d\n", in.LabelKey, res.Stats.RowsWithAttribute)
	fmt.Printf("Rows without %s: %d\n", in.LabelKey, res.Stats.RowsMissingAttribute)
	fmt.Printf("Rows malformed:          %d\n", res.Stats.RowsMalformed)
	fmt.Printf("Lookup table entries:    %d -> %s\n", res.Table.Len(), output)
	return nil
}

func stringFlagOr(cmd *cobra.Command, name, fallback string) string {
	if v, _ := cmd.Flags().GetString(name); v != "" {
		return v
	}
	return fallback
}
