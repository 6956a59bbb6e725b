package cmd

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var reportsCmd = &cobra.Command{
	Use:   "reports",
	Short: "List available report definitions",
	RunE:  runReports,
}

func runReports(cmd *cobra.Command, _ []string) error {
	client, err := newSysdigClient()
	if err != nil {
		return err
	}

	reports, err := client.ListReports(cmd.Context())
	if err != nil {
		return err
	}

	if len(reports) == 0 {
		fmt.Println("No report definitions found.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, strings.Join([]string{"ID", "NAME", "DESCRIPTION"}, "\t"))
	for _, r := range reports {
		fmt.Fprintln(w, strings.Join([]string{
			strconv.FormatInt(r.ID, 10),
			r.Name,
			r.Description,
		}, "\t"))
	}
	return w.Flush()
}
