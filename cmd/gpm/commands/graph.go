package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/l3aro/go-pattern-miner/pkg/artifact"
	"github.com/l3aro/go-pattern-miner/pkg/flowgraph"
	"github.com/l3aro/go-pattern-miner/pkg/pattern"
	"github.com/l3aro/go-pattern-miner/pkg/syntax"
)

// graphCmd represents the graph command
var graphCmd = &cobra.Command{
	Use:   "graph <file> <function>",
	Short: "Print the flow graph of a function",
	Long: `Builds the dependence graph of a function in a Python file and prints it.
The function may be given as "name" or "Class.method". Use --dot for the
artifact format and --raw to see the graph before dependence resolution.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		filePath, functionName := args[0], args[1]
		if !isPythonFile(filePath) {
			return fmt.Errorf("unsupported file type: %s (only .py files supported)", filePath)
		}

		dotOutput, _ := cmd.Flags().GetBool("dot")
		jsonOutput, _ := cmd.Flags().GetBool("json")
		raw, _ := cmd.Flags().GetBool("raw")

		tree, err := syntax.ParsePythonFile(cmd.Context(), filePath)
		if err != nil {
			return err
		}
		defer tree.Close()

		fn, err := tree.Function(functionName)
		if err != nil {
			return fmt.Errorf("%w in %s", err, filePath)
		}

		opts := []flowgraph.Option{flowgraph.WithLogger(logger)}
		if raw {
			opts = append(opts, flowgraph.WithoutResolution())
		} else if settings.SkipClosure {
			opts = append(opts, flowgraph.WithoutClosure())
		}
		fg, err := flowgraph.Build(fn.Node, opts...)
		if err != nil {
			return fmt.Errorf("building graph: %w", err)
		}
		for _, d := range fg.Diagnostics {
			logger.Warn("statement skipped", "line", d.Line, "construct", d.Construct, "reason", d.Message)
		}

		if !dotOutput && !jsonOutput {
			printFlowGraph(os.Stdout, fg)
			return nil
		}

		g, err := pattern.FromFlowGraph(fg)
		if err != nil {
			return err
		}
		if jsonOutput {
			data, err := json.MarshalIndent(g.Document(), "", "  ")
			if err != nil {
				return fmt.Errorf("marshaling JSON: %w", err)
			}
			fmt.Println(string(data))
			return nil
		}
		data, err := artifact.MarshalGraph(g)
		if err != nil {
			return err
		}
		_, err = os.Stdout.Write(data)
		return err
	},
}

// isPythonFile checks if the file has a .py extension.
func isPythonFile(filePath string) bool {
	return strings.HasSuffix(filePath, ".py")
}

// printFlowGraph prints the graph in human-readable format.
func printFlowGraph(w io.Writer, fg *flowgraph.FlowGraph) {
	nodes := fg.Nodes()
	edges := fg.Edges()
	fmt.Fprintf(w, "=== Flow graph for function: %s ===\n", fg.Name)
	fmt.Fprintf(w, "\nNodes (%d):\n", len(nodes))
	for _, n := range nodes {
		line := 0
		if n.Syntax() != nil {
			line = n.Syntax().Line()
		}
		fmt.Fprintf(w, "  %3d  %-22s %s (line %d)\n", n.ID(), nodeKind(n), n.Label(), line)
	}

	fmt.Fprintf(w, "\nEdges (%d):\n", len(edges))
	for _, e := range edges {
		fmt.Fprintf(w, "  %3d --%s--> %d", e.From.ID(), e.Label, e.To.ID())
		if e.Label == flowgraph.LabelControl {
			fmt.Fprintf(w, " [%t]", e.BranchKind)
		}
		if e.FromClosure {
			fmt.Fprint(w, " (closure)")
		}
		fmt.Fprintln(w)
	}
}

func nodeKind(n flowgraph.Node) string {
	switch n := n.(type) {
	case *flowgraph.DataNode:
		return "data/" + string(n.Kind)
	case *flowgraph.OperationNode:
		return "operation/" + string(n.Kind)
	case *flowgraph.ControlNode:
		return "control/" + string(n.Kind)
	case *flowgraph.EntryNode:
		return "entry"
	case *flowgraph.EmptyNode:
		return "empty"
	}
	return "unknown"
}

func init() {
	graphCmd.Flags().Bool("dot", false, "Output the graph in DOT format")
	graphCmd.Flags().BoolP("json", "j", false, "Output as JSON")
	graphCmd.Flags().Bool("raw", false, "Skip dependence resolution and transitive closure")
	RootCmd.AddCommand(graphCmd)
}
