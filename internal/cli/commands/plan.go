package commands

import "github.com/spf13/cobra"

// NewPlanCommand creates the plan command: a refresh that never writes.
func NewPlanCommand() *cobra.Command {
	opts := &RefreshOptions{DryRun: true}

	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Preview the changes a refresh would apply",
		Long: `Plan fetches the current object universe and diffs it against the
persisted snapshot without writing anything. Equivalent to
refresh --dry-run.`,
		Example: `  # See what changed since the last refresh
  snowglobe plan

  # Restrict scope
  snowglobe plan --database analytics --types view`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runRefresh(cmd, opts)
		},
	}

	cmd.Flags().StringSliceVar(&opts.Databases, "database", nil, "Databases to scan (repeatable)")
	cmd.Flags().StringVar(&opts.Schema, "schema", "", "Restrict scanning to one schema")
	cmd.Flags().StringSliceVar(&opts.Types, "types", nil, "Object types to manage (e.g. table,view)")
	cmd.Flags().IntVar(&opts.Threads, "threads", 0, "Concurrent DDL fetches (default from config)")

	return cmd
}
