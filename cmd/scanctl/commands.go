package main

import (
	"encoding/json"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/cuongbtq/sensei-scan/internal/scan/domain"
	"github.com/cuongbtq/sensei-scan/internal/scan/report"
	"github.com/spf13/cobra"
)

func newJobsCmd(c *cli) *cobra.Command {
	var status string

	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "List scan jobs in submission order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			filter := domain.JobStatus(status)
			if status != "" && !filter.Valid() {
				return fmt.Errorf("unknown status %q", status)
			}

			jobs, err := c.reader.Jobs(cmd.Context())
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "JOB ID\tSTATUS\tCREATED\tURL\tRESULT")
			for _, job := range jobs {
				if status != "" && job.Status != filter {
					continue
				}
				resultID := job.ResultID
				if resultID == "" {
					resultID = "-"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
					job.ID, job.Status, job.CreatedAt.Format(time.RFC3339), job.URL, resultID)
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVar(&status, "status", "", "Only show jobs with this status (queued, running, completed, failed)")
	return cmd
}

func newReportCmd(c *cli) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "report <result-id>",
		Short: "Show the risk heatmap and findings of a completed scan",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rep, err := report.NewProjector(c.reader).Report(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(rep)
			}

			fmt.Fprintf(out, "Result:    %s\nTarget:    %s\nCompleted: %s\n\n",
				rep.ResultID, rep.URL, rep.CompletedAt.Format(time.RFC3339))

			fmt.Fprintln(out, "Risk heatmap")
			for _, b := range rep.Heatmap {
				fmt.Fprintf(out, "  %d | %-10s %d\n", b.Level, strings.Repeat("#", b.Count), b.Count)
			}

			fmt.Fprintln(out, "\nFindings")
			w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "  RISK\tOWASP\tTITLE\tFIX")
			for _, f := range rep.Findings {
				fmt.Fprintf(w, "  %d\t%s\t%s\t%s\n", f.Risk, f.OWASP, f.Title, f.Fix)
			}
			if err := w.Flush(); err != nil {
				return err
			}

			fmt.Fprintln(out, "\nRecommendations")
			for _, r := range rep.Recommendations {
				fmt.Fprintf(out, "  - %s\n", r)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the report as JSON")
	return cmd
}
