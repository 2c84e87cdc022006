package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/leapstack-labs/snowglobe/internal/snapshot"
	"github.com/spf13/cobra"
)

// ListOptions holds options for the list command.
type ListOptions struct {
	Type     string
	Database string
	Schema   string
}

// NewListCommand creates the list command.
func NewListCommand() *cobra.Command {
	opts := &ListOptions{}

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List objects in the persisted snapshot",
		Long: `List prints the objects captured by the last refresh, read entirely
from the local snapshot. No warehouse connection is made.`,
		Example: `  # All captured objects
  snowglobe list

  # Only views in one database
  snowglobe list --type view --database analytics`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runList(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.Type, "type", "", "Filter by object type")
	cmd.Flags().StringVar(&opts.Database, "database", "", "Filter by database")
	cmd.Flags().StringVar(&opts.Schema, "schema", "", "Filter by schema")

	return cmd
}

func runList(cmd *cobra.Command, opts *ListOptions) error {
	cc, cleanup, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	snap, err := cc.Engine.Store().LoadPrevious()
	if err != nil {
		return err
	}

	var records []*snapshot.Record
	for _, rec := range snap.Records() {
		if opts.Type != "" && string(rec.ID.Type) != opts.Type {
			continue
		}
		if opts.Database != "" && rec.ID.Database != opts.Database {
			continue
		}
		if opts.Schema != "" && rec.ID.Schema != opts.Schema {
			continue
		}
		records = append(records, rec)
	}

	if cc.Cfg.OutputFormat == "json" {
		return listJSON(cmd.OutOrStdout(), records)
	}
	return listText(cmd.OutOrStdout(), records)
}

func listText(w io.Writer, records []*snapshot.Record) error {
	if len(records) == 0 {
		fmt.Fprintln(w, "No objects in snapshot. Run refresh first.")
		return nil
	}

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.AppendHeader(table.Row{"Type", "Database", "Schema", "Name", "Hash", "Fetched"})
	for _, rec := range records {
		t.AppendRow(table.Row{
			rec.ID.Type,
			rec.ID.Database,
			rec.ID.Schema,
			rec.ID.Name,
			rec.Hash,
			rec.FetchedAt.Format(time.RFC3339),
		})
	}
	t.SetStyle(table.StyleLight)
	t.Render()

	fmt.Fprintf(w, "%d object(s)\n", len(records))
	return nil
}

type listEntry struct {
	Type      string    `json:"type"`
	Database  string    `json:"database"`
	Schema    string    `json:"schema"`
	Name      string    `json:"name"`
	Hash      string    `json:"hash"`
	FetchedAt time.Time `json:"fetched_at"`
}

func listJSON(w io.Writer, records []*snapshot.Record) error {
	entries := make([]listEntry, 0, len(records))
	for _, rec := range records {
		entries = append(entries, listEntry{
			Type:      string(rec.ID.Type),
			Database:  rec.ID.Database,
			Schema:    rec.ID.Schema,
			Name:      rec.ID.Name,
			Hash:      rec.Hash,
			FetchedAt: rec.FetchedAt,
		})
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(entries)
}
