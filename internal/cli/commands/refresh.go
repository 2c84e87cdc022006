package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/leapstack-labs/snowglobe/internal/cli/config"
	"github.com/leapstack-labs/snowglobe/internal/engine"
	"github.com/leapstack-labs/snowglobe/internal/snapshot"
	"github.com/spf13/cobra"
)

// RefreshOptions holds options for the refresh command.
type RefreshOptions struct {
	DryRun        bool
	Databases     []string
	Schema        string
	Types         []string
	Threads       int
	RemovalPolicy string
}

// NewRefreshCommand creates the refresh command.
func NewRefreshCommand() *cobra.Command {
	opts := &RefreshOptions{}

	cmd := &cobra.Command{
		Use:   "refresh",
		Short: "Fetch warehouse DDL and update the local snapshot",
		Long: `Refresh lists the objects in scope, fetches their DDL concurrently,
diffs the result against the persisted snapshot, and writes added and
modified objects to disk. Removed objects are handled according to the
removal policy (retain, archive, or delete).`,
		Example: `  # Refresh the default profile's database
  snowglobe refresh

  # Preview without writing anything
  snowglobe refresh --dry-run

  # Restrict scope
  snowglobe refresh --database analytics --schema marts --types table,view`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runRefresh(cmd, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "Compute the diff without writing")
	cmd.Flags().StringSliceVar(&opts.Databases, "database", nil, "Databases to scan (repeatable)")
	cmd.Flags().StringVar(&opts.Schema, "schema", "", "Restrict scanning to one schema")
	cmd.Flags().StringSliceVar(&opts.Types, "types", nil, "Object types to manage (e.g. table,view)")
	cmd.Flags().IntVar(&opts.Threads, "threads", 0, "Concurrent DDL fetches (default from config)")
	cmd.Flags().StringVar(&opts.RemovalPolicy, "removal-policy", "", "What to do with removed objects (retain|archive|delete)")

	return cmd
}

// applyRefreshFlags folds command-local flags into the loaded config
// before the engine is built. Only set flags override.
func applyRefreshFlags(cfg *config.Config, opts *RefreshOptions) {
	if len(opts.Databases) > 0 {
		cfg.Refresh.Databases = opts.Databases
	}
	if opts.Schema != "" {
		cfg.Refresh.Schema = opts.Schema
	}
	if len(opts.Types) > 0 {
		cfg.Refresh.ObjectTypes = opts.Types
	}
	if opts.Threads > 0 {
		cfg.Refresh.Threads = opts.Threads
	}
	if opts.RemovalPolicy != "" {
		cfg.Refresh.RemovalPolicy = opts.RemovalPolicy
	}
}

func runRefresh(cmd *cobra.Command, opts *RefreshOptions) error {
	cfg := getConfig(cmd.Context())
	applyRefreshFlags(cfg, opts)

	logger := getLogger(cmd.Context())
	eng, err := createEngine(cfg, logger)
	if err != nil {
		return err
	}
	defer eng.Close()

	result, err := eng.Refresh(cmd.Context(), opts.DryRun)
	if err != nil {
		return err
	}

	if cfg.OutputFormat == "json" {
		return refreshJSON(cmd.OutOrStdout(), result)
	}
	return refreshText(cmd.OutOrStdout(), result)
}

// refreshText renders the refresh outcome as a change table plus a
// one-line summary, mirroring what the run history records.
func refreshText(w io.Writer, result *engine.RefreshResult) error {
	added, modified, removed, unchanged := result.Diff.Counts()
	if added+modified+removed > 0 {
		t := table.NewWriter()
		t.SetOutputMirror(w)
		t.AppendHeader(table.Row{"Change", "Object", "Hash"})
		for _, entry := range result.Diff.Entries {
			if entry.Change == snapshot.Unchanged {
				continue
			}
			hash := ""
			if entry.Record != nil {
				hash = entry.Record.Hash
			}
			t.AppendRow(table.Row{colorChange(entry.Change), entry.Key, hash})
		}
		t.SetStyle(table.StyleLight)
		t.Render()
	}

	verb := "Applied"
	if result.DryRun {
		verb = "Planned"
	}
	fmt.Fprintf(w, "%s: %d added, %d modified, %d removed, %d unchanged\n",
		verb, added, modified, removed, unchanged)

	for _, fe := range result.FetchErrors {
		fmt.Fprintf(os.Stderr, "warning: fetch failed for %s: %v\n", fe.ID, fe.Err)
	}
	for _, pw := range result.ParseWarnings {
		fmt.Fprintf(os.Stderr, "warning: could not scan DDL of %s: %v\n", pw.Key, pw.Err)
	}
	for _, cycle := range result.Cycles {
		fmt.Fprintf(os.Stderr, "warning: dependency cycle: %s\n", formatCyclePath(cycle))
	}
	return nil
}

func colorChange(c snapshot.Change) string {
	switch c {
	case snapshot.Added:
		return text.FgGreen.Sprint(c)
	case snapshot.Modified:
		return text.FgYellow.Sprint(c)
	case snapshot.Removed:
		return text.FgRed.Sprint(c)
	}
	return c.String()
}

type refreshOutput struct {
	RunID     string         `json:"run_id,omitempty"`
	DryRun    bool           `json:"dry_run"`
	Added     int            `json:"added"`
	Modified  int            `json:"modified"`
	Removed   int            `json:"removed"`
	Unchanged int            `json:"unchanged"`
	Changes   []changeOutput `json:"changes"`
	Warnings  []string       `json:"warnings,omitempty"`
	Cycles    []string       `json:"cycles,omitempty"`
}

type changeOutput struct {
	Key    string `json:"key"`
	Change string `json:"change"`
	Hash   string `json:"hash,omitempty"`
}

func refreshJSON(w io.Writer, result *engine.RefreshResult) error {
	added, modified, removed, unchanged := result.Diff.Counts()
	out := refreshOutput{
		RunID:     result.RunID,
		DryRun:    result.DryRun,
		Added:     added,
		Modified:  modified,
		Removed:   removed,
		Unchanged: unchanged,
		Changes:   []changeOutput{},
	}
	for _, entry := range result.Diff.Entries {
		if entry.Change == snapshot.Unchanged {
			continue
		}
		c := changeOutput{Key: entry.Key, Change: entry.Change.String()}
		if entry.Record != nil {
			c.Hash = entry.Record.Hash
		}
		out.Changes = append(out.Changes, c)
	}
	for _, fe := range result.FetchErrors {
		out.Warnings = append(out.Warnings, fe.Error())
	}
	for _, pw := range result.ParseWarnings {
		out.Warnings = append(out.Warnings, fmt.Sprintf("%s: %v", pw.Key, pw.Err))
	}
	for _, cycle := range result.Cycles {
		out.Cycles = append(out.Cycles, formatCyclePath(cycle))
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
