package commands

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/l3aro/go-pattern-miner/pkg/artifact"
	"github.com/l3aro/go-pattern-miner/pkg/oracle"
	"github.com/l3aro/go-pattern-miner/pkg/pattern"
)

// checkCmd represents the check command
var checkCmd = &cobra.Command{
	Use:   "check <file> <function>...",
	Short: "Compare the graph of a function with a reference builder",
	Long: `Builds each function in process, runs the configured oracle_command on the
same function and compares both graphs. The oracle receives the file path and
the function name as its last two arguments and prints the graph as DOT.`,
	Args: cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		filePath := args[0]
		if !isPythonFile(filePath) {
			return fmt.Errorf("unsupported file type: %s (only .py files supported)", filePath)
		}
		if len(settings.OracleCommand) == 0 {
			return errors.New("oracle_command is not configured")
		}
		timeout, err := settings.OracleTimeoutDuration()
		if err != nil {
			return err
		}
		showDot, _ := cmd.Flags().GetBool("dot")

		checker, err := oracle.NewChecker(settings.OracleCommand,
			oracle.WithTimeout(timeout),
			oracle.WithLogger(logger),
		)
		if err != nil {
			return err
		}

		different := 0
		for _, function := range args[1:] {
			res, err := checker.Check(cmd.Context(), filePath, function)
			if err != nil {
				var subErr *oracle.SubprocessError
				if errors.As(err, &subErr) {
					logger.Error("oracle failed", "function", function, "exit_code", subErr.ExitCode)
				}
				return err
			}
			fmt.Println(res.Summary())
			for _, d := range res.Diagnostics {
				fmt.Printf("  line %d: skipped %s: %s\n", d.Line, d.Construct, d.Message)
			}
			if res.Equivalent {
				continue
			}
			different++
			if !showDot {
				continue
			}
			graphs := map[string]*pattern.Graph{"ours": res.Ours, "reference": res.Reference}
			for _, name := range []string{"ours", "reference"} {
				data, err := artifact.MarshalGraph(graphs[name])
				if err != nil {
					return err
				}
				fmt.Printf("--- %s ---\n", name)
				os.Stdout.Write(data)
			}
		}

		if different > 0 {
			return fmt.Errorf("%d of %d functions differ from the reference", different, len(args)-1)
		}
		return nil
	},
}

func init() {
	checkCmd.Flags().Bool("dot", false, "Print both graphs in DOT format when they differ")
	RootCmd.AddCommand(checkCmd)
}
