package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/openctemio/report-enricher/internal/infra/source"
	"github.com/openctemio/report-enricher/internal/infra/sysdig"
)

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Fetch a report CSV to the configured source path",
	Long: `Fetch obtains the report CSV the pipeline consumes.

With --report-id it drives the reporting API: launch an on-demand
generation job, poll until completion, download the gzipped artifact and
decompress it. With --source it pulls an already-generated artifact from
a local path, an http(s) URL, or s3://bucket/key instead.`,
	RunE: runFetch,
}

func init() {
	fetchCmd.Flags().Int64("report-id", 0, "Report definition ID to generate")
	fetchCmd.Flags().String("job-name", "Kubernetes Workload Vulnerability Findings", "Job and artifact name")
	fetchCmd.Flags().String("source", "", "Pull an existing artifact from this URI instead of generating one")
	fetchCmd.Flags().String("dest", "", "Destination path (default: REPORT_SOURCE_FILE)")
	fetchCmd.Flags().String("s3-region", "", "AWS region for s3:// sources")
	fetchCmd.Flags().String("s3-endpoint", "", "Custom endpoint for S3-compatible stores")
}

func runFetch(cmd *cobra.Command, _ []string) error {
	reportID, _ := cmd.Flags().GetInt64("report-id")
	jobName, _ := cmd.Flags().GetString("job-name")
	srcURI, _ := cmd.Flags().GetString("source")
	dest, _ := cmd.Flags().GetString("dest")
	if dest == "" {
		dest = cfg.Report.SourceFile
	}

	switch {
	case srcURI != "" && reportID != 0:
		return fmt.Errorf("--source and --report-id are mutually exclusive")

	case srcURI != "":
		region, _ := cmd.Flags().GetString("s3-region")
		endpoint, _ := cmd.Flags().GetString("s3-endpoint")
		opts := source.S3Options{Region: region, Endpoint: endpoint}
		if err := source.FetchTo(cmd.Context(), srcURI, dest, opts, log); err != nil {
			return err
		}

	case reportID != 0:
		client, err := newSysdigClient()
		if err != nil {
			return err
		}
		in := sysdig.CreateJobInput{ReportID: reportID, JobName: jobName}
		if err := client.FetchReport(cmd.Context(), in, dest); err != nil {
			return err
		}

	default:
		return fmt.Errorf("either --report-id or --source is required (use \"reports\" to list IDs)")
	}

	fmt.Printf("Report ready: %s\n", dest)
	return nil
}
