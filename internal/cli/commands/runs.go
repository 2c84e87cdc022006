package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/leapstack-labs/snowglobe/internal/state"
	"github.com/spf13/cobra"
)

// RunsOptions holds options for the runs command.
type RunsOptions struct {
	Limit  int
	Events string
}

// NewRunsCommand creates the runs command.
func NewRunsCommand() *cobra.Command {
	opts := &RunsOptions{}

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Show refresh run history",
		Long: `Runs lists past refresh invocations with their diff counts, newest
first. Use --events to show the diagnostics of one run.`,
		Example: `  # Recent runs
  snowglobe runs

  # Diagnostics of one run
  snowglobe runs --events 6f1c2a30-...`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runRuns(cmd, opts)
		},
	}

	cmd.Flags().IntVarP(&opts.Limit, "limit", "n", 20, "Maximum runs to show")
	cmd.Flags().StringVar(&opts.Events, "events", "", "Show the diagnostics of the given run id")

	return cmd
}

func runRuns(cmd *cobra.Command, opts *RunsOptions) error {
	cc, cleanup, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	history, err := cc.Engine.History()
	if err != nil {
		return err
	}

	if opts.Events != "" {
		events, err := history.GetEvents(opts.Events)
		if err != nil {
			return err
		}
		if cc.Cfg.OutputFormat == "json" {
			return eventsJSON(cmd.OutOrStdout(), events)
		}
		return eventsText(cmd.OutOrStdout(), events)
	}

	runs, err := history.ListRuns(opts.Limit)
	if err != nil {
		return err
	}

	if cc.Cfg.OutputFormat == "json" {
		return runsJSON(cmd.OutOrStdout(), runs)
	}
	return runsText(cmd.OutOrStdout(), runs)
}

func runsText(w io.Writer, runs []*state.Run) error {
	if len(runs) == 0 {
		fmt.Fprintln(w, "No runs recorded.")
		return nil
	}

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.AppendHeader(table.Row{"ID", "Profile", "Status", "Started", "Duration", "+", "~", "-", "="})
	for _, run := range runs {
		duration := ""
		if run.CompletedAt != nil {
			duration = run.CompletedAt.Sub(run.StartedAt).Round(time.Millisecond).String()
		}
		t.AppendRow(table.Row{
			shortID(run.ID),
			run.Profile,
			run.Status,
			run.StartedAt.Format(time.RFC3339),
			duration,
			run.Added,
			run.Modified,
			run.Removed,
			run.Unchanged,
		})
	}
	t.SetStyle(table.StyleLight)
	t.Render()
	return nil
}

func eventsText(w io.Writer, events []*state.Event) error {
	if len(events) == 0 {
		fmt.Fprintln(w, "No events recorded for this run.")
		return nil
	}
	for _, e := range events {
		fmt.Fprintf(w, "[%s] %s: %s\n", e.Kind, e.ObjectKey, e.Message)
	}
	return nil
}

type runOutput struct {
	ID          string     `json:"id"`
	Profile     string     `json:"profile"`
	Status      string     `json:"status"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Error       string     `json:"error,omitempty"`
	Total       int        `json:"objects_total"`
	Added       int        `json:"added"`
	Modified    int        `json:"modified"`
	Removed     int        `json:"removed"`
	Unchanged   int        `json:"unchanged"`
	Warnings    int        `json:"warnings"`
}

func runsJSON(w io.Writer, runs []*state.Run) error {
	out := make([]runOutput, 0, len(runs))
	for _, run := range runs {
		out = append(out, runOutput{
			ID:          run.ID,
			Profile:     run.Profile,
			Status:      string(run.Status),
			StartedAt:   run.StartedAt,
			CompletedAt: run.CompletedAt,
			Error:       run.Error,
			Total:       run.Total,
			Added:       run.Added,
			Modified:    run.Modified,
			Removed:     run.Removed,
			Unchanged:   run.Unchanged,
			Warnings:    run.Warnings,
		})
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

type eventOutput struct {
	RunID     string    `json:"run_id"`
	ObjectKey string    `json:"object_key"`
	Kind      string    `json:"kind"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}

func eventsJSON(w io.Writer, events []*state.Event) error {
	out := make([]eventOutput, 0, len(events))
	for _, e := range events {
		out = append(out, eventOutput{
			RunID:     e.RunID,
			ObjectKey: e.ObjectKey,
			Kind:      e.Kind,
			Message:   e.Message,
			CreatedAt: e.CreatedAt,
		})
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

// shortID truncates a UUID for table display.
func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
