package commands

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/leapstack-labs/snowglobe/internal/graph"
	"github.com/spf13/cobra"
)

// DAGOptions holds options for the dag command.
type DAGOptions struct {
	Live      bool
	ShowEdges bool
}

// NewDAGCommand creates the dag command.
func NewDAGCommand() *cobra.Command {
	opts := &DAGOptions{}

	cmd := &cobra.Command{
		Use:   "dag",
		Short: "Show dependency graph statistics and cycles",
		Long: `Dag builds the dependency graph from the persisted snapshot and
reports its shape: node and edge counts, external references, and any
dependency cycles.`,
		Example: `  # Graph overview
  snowglobe dag

  # Include every edge
  snowglobe dag --edges`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDAG(cmd, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.Live, "live", false, "Fetch fresh DDL instead of reading the snapshot")
	cmd.Flags().BoolVar(&opts.ShowEdges, "edges", false, "List every dependency edge")

	return cmd
}

func runDAG(cmd *cobra.Command, opts *DAGOptions) error {
	cc, cleanup, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	g, err := cc.Engine.BuildGraph(cmd.Context(), opts.Live)
	if err != nil {
		return err
	}

	if cc.Cfg.OutputFormat == "json" {
		return dagJSON(cmd.OutOrStdout(), g, opts)
	}
	return dagText(cmd.OutOrStdout(), g, opts)
}

func dagText(w io.Writer, g *graph.Graph, opts *DAGOptions) error {
	external := g.ExternalNodes()
	cycles := g.Cycles()

	fmt.Fprintf(w, "Nodes:    %d\n", g.NodeCount())
	fmt.Fprintf(w, "Edges:    %d\n", g.EdgeCount())
	fmt.Fprintf(w, "External: %d\n", len(external))
	fmt.Fprintf(w, "Cycles:   %d\n", len(cycles))

	if len(external) > 0 {
		fmt.Fprintln(w, "\nExternal references (not in snapshot):")
		for _, id := range external {
			fmt.Fprintf(w, "  - %s\n", id.FQN())
		}
	}

	if len(cycles) > 0 {
		fmt.Fprintln(w, "\nDependency cycles:")
		for _, cycle := range cycles {
			fmt.Fprintf(w, "  - %s\n", formatCyclePath(cycle))
		}
	}

	if opts.ShowEdges {
		fmt.Fprintln(w, "\nEdges:")
		for _, node := range g.Nodes() {
			for _, dep := range g.Dependencies(node.ID.FQN()) {
				fmt.Fprintf(w, "  %s -> %s\n", node.ID.FQN(), dep.FQN())
			}
		}
	}

	return nil
}

type dagOutput struct {
	Nodes    int       `json:"nodes"`
	Edges    int       `json:"edges"`
	External []string  `json:"external,omitempty"`
	Cycles   []string  `json:"cycles,omitempty"`
	EdgeList []dagEdge `json:"edge_list,omitempty"`
}

type dagEdge struct {
	From string `json:"from"`
	To   string `json:"to"`
}

func dagJSON(w io.Writer, g *graph.Graph, opts *DAGOptions) error {
	out := dagOutput{
		Nodes: g.NodeCount(),
		Edges: g.EdgeCount(),
	}
	for _, id := range g.ExternalNodes() {
		out.External = append(out.External, id.FQN())
	}
	for _, cycle := range g.Cycles() {
		out.Cycles = append(out.Cycles, formatCyclePath(cycle))
	}
	if opts.ShowEdges {
		for _, node := range g.Nodes() {
			for _, dep := range g.Dependencies(node.ID.FQN()) {
				out.EdgeList = append(out.EdgeList, dagEdge{From: node.ID.FQN(), To: dep.FQN()})
			}
		}
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
