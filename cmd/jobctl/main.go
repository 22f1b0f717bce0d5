// Command jobctl is the operator CLI for a jobhookd instance.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/xraph/jobhook/admin"
)

type rootOptions struct {
	url     string
	apiKey  string
	timeout time.Duration
}

func main() {
	if err := newRootCmd(os.Stdout).Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd(out io.Writer) *cobra.Command {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:           "jobctl",
		Short:         "Operate a jobhook server",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	rootCmd.SetOut(out)
	rootCmd.PersistentFlags().StringVar(&opts.url, "url", envOr("JOBHOOK_URL", "http://localhost:8080"), "base URL of the jobhook server")
	rootCmd.PersistentFlags().StringVar(&opts.apiKey, "api-key", os.Getenv("ADMIN_API_KEY"), "admin API key")
	rootCmd.PersistentFlags().DurationVar(&opts.timeout, "timeout", 10*time.Minute, "request timeout")

	rootCmd.AddCommand(newRetryCmd(opts), newDefinitionsCmd(opts), newCountsCmd(opts))
	return rootCmd
}

func newRetryCmd(opts *rootOptions) *cobra.Command {
	var (
		scope           string
		definitionID    string
		name            string
		limit           int
		noReset         bool
		noDispatch      bool
		submittedBefore string
		updatedBefore   string
	)

	cmd := &cobra.Command{
		Use:   "retry",
		Short: "Bulk retry jobs",
		Long: `Select jobs by status scope and filters, reset them to PENDING and
dispatch them again. Jobs are processed oldest first.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			req := admin.Request{
				Scope:           admin.Scope(scope),
				JobDefinitionID: definitionID,
				Name:            name,
			}
			if cmd.Flags().Changed("limit") {
				req.Limit = &limit
			}
			if noReset {
				f := false
				req.Reset = &f
			}
			if noDispatch {
				f := false
				req.Dispatch = &f
			}
			if submittedBefore != "" {
				ts, err := parseInstant(submittedBefore, time.Now())
				if err != nil {
					return err
				}
				req.SubmittedBefore = &ts
			}
			if updatedBefore != "" {
				ts, err := parseInstant(updatedBefore, time.Now())
				if err != nil {
					return err
				}
				req.UpdatedBefore = &ts
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), opts.timeout)
			defer cancel()
			report, err := newAdminClient(opts.url, opts.apiKey, opts.timeout).retry(ctx, req)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), report)
		},
	}

	cmd.Flags().StringVar(&scope, "scope", string(admin.ScopeFailed), "status scope: failed, pending, processing or all")
	cmd.Flags().StringVar(&definitionID, "job-definition-id", "", "only retry jobs of this definition")
	cmd.Flags().StringVar(&name, "name", "", "only retry jobs created by this trigger name")
	cmd.Flags().IntVar(&limit, "limit", admin.DefaultLimit, "maximum number of jobs to retry")
	cmd.Flags().BoolVar(&noReset, "no-reset", false, "dispatch without resetting status")
	cmd.Flags().BoolVar(&noDispatch, "no-dispatch", false, "reset without dispatching")
	cmd.Flags().StringVar(&submittedBefore, "submitted-before", "", "only jobs submitted before an RFC 3339 time or a duration ago (e.g. 1h)")
	cmd.Flags().StringVar(&updatedBefore, "updated-before", "", "only jobs untouched since an RFC 3339 time or a duration ago (e.g. 10m)")
	return cmd
}

func newDefinitionsCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "definitions",
		Short: "List registered job definitions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), opts.timeout)
			defer cancel()
			defs, err := newAdminClient(opts.url, opts.apiKey, opts.timeout).definitions(ctx)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), defs)
		},
	}
}

func newCountsCmd(opts *rootOptions) *cobra.Command {
	var definitionID string
	cmd := &cobra.Command{
		Use:   "counts",
		Short: "Show job counts by status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), opts.timeout)
			defer cancel()
			counts, err := newAdminClient(opts.url, opts.apiKey, opts.timeout).counts(ctx, definitionID)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), counts)
		},
	}
	cmd.Flags().StringVar(&definitionID, "job-definition-id", "", "only count jobs of this definition")
	return cmd
}

// parseInstant accepts an RFC 3339 timestamp or a duration before now.
func parseInstant(s string, now time.Time) (time.Time, error) {
	if ts, err := time.Parse(time.RFC3339, s); err == nil {
		return ts, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid --submitted-before %q: want RFC 3339 or a duration", s)
	}
	return now.Add(-d), nil
}

func printJSON(w io.Writer, raw json.RawMessage) error {
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		_, werr := fmt.Fprintln(w, string(raw))
		return werr
	}
	buf.WriteByte('\n')
	_, err := buf.WriteTo(w)
	return err
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
