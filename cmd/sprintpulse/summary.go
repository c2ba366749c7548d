package main

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/HamedShams/sprint-pulse/internal/domain"
	"github.com/spf13/cobra"
)

var summaryWrite bool

var summaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Recompute the per-sprint averages from the stored periods",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		var table domain.SummaryTable
		if summaryWrite {
			table, err = a.svc.RefreshSummary(cmd.Context())
		} else {
			table, err = a.svc.Summary(cmd.Context())
		}
		if err != nil {
			return err
		}
		printSummary(table)
		return nil
	},
}

func printSummary(table domain.SummaryTable) {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "Sprint Name\t%s\tAvgDuration\n", strings.Join(table.Columns, "\t"))
	for _, r := range table.Rows {
		cells := make([]string, 0, len(r.Averages))
		for _, v := range r.Averages {
			cells = append(cells, fmt.Sprintf("%.2f", v))
		}
		fmt.Fprintf(w, "%s\t%s\t%.2f\n", r.SprintName, strings.Join(cells, "\t"), r.Total)
	}
	_ = w.Flush()
}

func init() {
	summaryCmd.Flags().BoolVar(&summaryWrite, "write", false, "also persist the recomputed summary to the store")
}
