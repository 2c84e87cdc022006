package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/leapstack-labs/snowglobe/internal/graph"
	"github.com/leapstack-labs/snowglobe/pkg/identity"
	"github.com/spf13/cobra"
)

// TraceOptions holds options for the trace command.
type TraceOptions struct {
	Direction string
	Depth     int
	Live      bool
}

// NewTraceCommand creates the trace command.
func NewTraceCommand() *cobra.Command {
	opts := &TraceOptions{}

	cmd := &cobra.Command{
		Use:   "trace <object>",
		Short: "Trace lineage of an object through the dependency graph",
		Long: `Trace walks the dependency graph from an object, upstream (what it
reads from) or downstream (what reads from it). The graph is built from
the persisted snapshot by default; --live fetches fresh DDL instead.

The object is given as name, schema.name, or database.schema.name.
Unqualified parts are filled from the active profile.`,
		Example: `  # What does this view read from?
  snowglobe trace analytics.marts.orders --direction upstream

  # What breaks if this table changes?
  snowglobe trace analytics.raw.payments --direction downstream

  # Direct neighbors only
  snowglobe trace analytics.marts.orders --depth 1

  # Build the graph from the warehouse, not the snapshot
  snowglobe trace analytics.marts.orders --live`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrace(cmd, args[0], opts)
		},
	}

	cmd.Flags().StringVarP(&opts.Direction, "direction", "d", "upstream", "Trace direction (upstream|downstream)")
	cmd.Flags().IntVar(&opts.Depth, "depth", -1, "Max traversal depth (-1 = unlimited, 0 = start only)")
	cmd.Flags().BoolVar(&opts.Live, "live", false, "Fetch fresh DDL instead of reading the snapshot")

	_ = cmd.RegisterFlagCompletionFunc("direction", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return []string{"upstream", "downstream"}, cobra.ShellCompDirectiveNoFileComp
	})

	return cmd
}

func runTrace(cmd *cobra.Command, object string, opts *TraceOptions) error {
	dir, err := graph.ParseDirection(opts.Direction)
	if err != nil {
		return err
	}

	cc, cleanup, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	profile, _ := cc.Cfg.ActiveProfile()
	start, err := identity.ParseFQN(object, profile.Database, profile.Schema, identity.TypeUnknown)
	if err != nil {
		return err
	}

	g, err := cc.Engine.BuildGraph(cmd.Context(), opts.Live)
	if err != nil {
		return err
	}

	nodes, err := g.Trace(start, dir, opts.Depth)
	if err != nil {
		return err
	}

	if cc.Cfg.OutputFormat == "json" {
		return traceJSON(cmd.OutOrStdout(), start, dir, nodes)
	}
	return traceText(cmd.OutOrStdout(), start, dir, nodes)
}

// traceText renders the lineage as an indented tree by depth.
func traceText(w io.Writer, start identity.Identity, dir graph.Direction, nodes []graph.TraceNode) error {
	fmt.Fprintf(w, "Lineage (%s) for %s\n\n", dir, start.FQN())

	for _, n := range nodes {
		if n.Depth == 0 {
			fmt.Fprintf(w, "%s\n", n.ID.FQN())
			continue
		}
		marker := ""
		if n.External {
			marker = " (external)"
		}
		fmt.Fprintf(w, "%s- %s%s\n", strings.Repeat("  ", n.Depth), n.ID.FQN(), marker)
	}

	fmt.Fprintf(w, "\n%d object(s) %s\n", len(nodes)-1, dir)
	return nil
}

type traceOutput struct {
	Root      string            `json:"root"`
	Direction string            `json:"direction"`
	Nodes     []traceNodeOutput `json:"nodes"`
}

type traceNodeOutput struct {
	FQN      string `json:"fqn"`
	Type     string `json:"type"`
	Depth    int    `json:"depth"`
	External bool   `json:"external,omitempty"`
}

func traceJSON(w io.Writer, start identity.Identity, dir graph.Direction, nodes []graph.TraceNode) error {
	out := traceOutput{
		Root:      start.FQN(),
		Direction: string(dir),
		Nodes:     make([]traceNodeOutput, 0, len(nodes)),
	}
	for _, n := range nodes {
		out.Nodes = append(out.Nodes, traceNodeOutput{
			FQN:      n.ID.FQN(),
			Type:     string(n.ID.Type),
			Depth:    n.Depth,
			External: n.External,
		})
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
