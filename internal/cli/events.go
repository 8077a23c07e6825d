package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/hive/internal/journal"
)

// EventsOptions holds flags for the events command.
type EventsOptions struct {
	*RootOptions
	Database string
	Provider string
	After    int64
	Limit    int
}

// EventsResult is the JSON payload of the events command.
type EventsResult struct {
	Events []journal.Entry `json:"events"`
	Count  int             `json:"count"`
}

// NewEventsCommand creates the events command.
func NewEventsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &EventsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "events",
		Short: "Show the provider event journal",
		Long: `Show provider events recorded by the journal plugin, in sequence order.

Examples:
  hive events --db ./hive-journal.db
  hive events --db ./hive-journal.db --provider firefox-1
  hive events --db ./hive-journal.db --after 120 --limit 50 --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEvents(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to journal database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.Provider, "provider", "", "only show events of this provider")
	cmd.Flags().Int64Var(&opts.After, "after", 0, "only show events after this sequence number")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "maximum number of events (0 = all)")

	return cmd
}

func runEvents(opts *EventsOptions, cmd *cobra.Command) error {
	j, err := journal.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open journal", err)
	}
	defer j.Close()

	entries, err := j.List(context.Background(), journal.Filter{
		ProviderID: opts.Provider,
		AfterSeq:   opts.After,
		Limit:      opts.Limit,
	})
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read journal", err)
	}

	out := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout(), Verbose: opts.Verbose}
	if opts.Format == "json" {
		if entries == nil {
			entries = []journal.Entry{}
		}
		return out.Success(EventsResult{Events: entries, Count: len(entries)})
	}
	return out.Success(formatEventsText(entries, opts.Verbose))
}

// formatEventsText renders entries one per line followed by a summary.
func formatEventsText(entries []journal.Entry, verbose bool) string {
	if len(entries) == 0 {
		return "No events recorded."
	}

	var b strings.Builder
	providers := make(map[string]bool)
	for _, e := range entries {
		providers[e.ProviderID] = true

		fmt.Fprintf(&b, "  [%d] %-12s %s", e.Seq, e.Event, e.ProviderID)
		if e.WorkerID != "" {
			b.WriteString(" worker=" + e.WorkerID)
		}
		if verbose {
			b.WriteString(" at=" + e.RecordedAt.Format(time.RFC3339))
		}
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "\n%d events from %d providers", len(entries), len(providers))
	return b.String()
}
