package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/ccastromar/veritas/internal/agent"
	"github.com/ccastromar/veritas/internal/client"
	"github.com/ccastromar/veritas/internal/jobs"
	"github.com/ccastromar/veritas/internal/report"
)

type submitOptions struct {
	file    string
	project string
	name    string
	server  string
	apiKey  string
	wait    bool
	timeout time.Duration
}

func newSubmitCmd() *cobra.Command {
	var o submitOptions
	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Submit a document for verification",
		Long: `Submit a document to a running veritas server.

Examples:
  # Submit and return the job id
  veritas submit --file deck.md --project Acme

  # Submit from stdin and follow progress until the report is ready
  cat memo.txt | veritas submit --file - --wait`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSubmit(cmd.Context(), cmd.InOrStdin(), cmd.OutOrStdout(), o)
		},
	}
	f := cmd.Flags()
	f.StringVar(&o.file, "file", "", `document to verify, "-" for stdin (required)`)
	f.StringVar(&o.project, "project", "", "project name")
	f.StringVar(&o.name, "name", "", "document name (defaults to the file name)")
	f.StringVar(&o.server, "server", "http://localhost:7001", "veritas server URL")
	f.StringVar(&o.apiKey, "api-key", os.Getenv("API_KEY"), "API key for the server")
	f.BoolVar(&o.wait, "wait", false, "follow progress and print the report")
	f.DurationVar(&o.timeout, "timeout", 15*time.Minute, "how long to wait for the report")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func readDocument(stdin io.Reader, file string) ([]byte, error) {
	if file == "-" {
		return io.ReadAll(stdin)
	}
	return os.ReadFile(file)
}

func runSubmit(ctx context.Context, stdin io.Reader, out io.Writer, o submitOptions) error {
	text, err := readDocument(stdin, o.file)
	if err != nil {
		return fmt.Errorf("reading document: %w", err)
	}
	name := o.name
	if name == "" && o.file != "-" {
		name = filepath.Base(o.file)
	}

	c := client.New(o.server, o.apiKey)
	acc, err := c.Submit(ctx, client.SubmitRequest{
		ProjectName:  o.project,
		DocumentName: name,
		DocumentText: string(text),
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Job %s %s\n", acc.JobID, acc.Status)
	if !o.wait {
		return nil
	}

	if o.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.timeout)
		defer cancel()
	}
	last, err := c.Watch(ctx, acc.JobID, func(f agent.StreamFrame) {
		fmt.Fprintf(out, "[%3d%%] %-20s %s\n", f.Progress, f.Event, f.Detail)
	})
	if err != nil {
		return err
	}
	if last.Status != jobs.StatusComplete {
		return errors.New(last.StatusMessage)
	}

	rep, err := c.Report(ctx, last.ReportID)
	if err != nil {
		return err
	}
	printReport(out, rep)
	return nil
}

func printReport(out io.Writer, rep report.Report) {
	fmt.Fprintf(out, "\nReport %s  %s / %s\n", rep.ReportID, rep.ProjectName, rep.DocumentName)
	fmt.Fprintf(out, "Overall risk: %s  Confidence: %d%%\n", rep.OverallRisk, rep.ConfidenceScore)
	fmt.Fprintf(out, "Claims: %d  Critical: %d  Warnings: %d  Verified: %d  Unverified: %d\n",
		rep.TotalClaimsAnalyzed, rep.CriticalErrors, rep.Warnings, rep.Verified, rep.Unverified)
	if rep.Summary != "" {
		fmt.Fprintf(out, "\n%s\n", rep.Summary)
	}
	if len(rep.Findings) > 0 {
		fmt.Fprintln(out, "\nFindings:")
	}
	for _, f := range rep.Findings {
		fmt.Fprintf(out, "  %-4s %-10s %6s%%  %s\n", f.ClaimID, f.RiskLevel,
			report.FormatValue(f.VariancePercent, "N/A"), report.Truncate(f.Explanation, 100))
	}
	if len(rep.Recommendations) > 0 {
		fmt.Fprintln(out, "\nRecommendations:")
	}
	for i, r := range rep.Recommendations {
		fmt.Fprintf(out, "  %d. %s\n", i+1, r)
	}
}
