package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/l3aro/go-pattern-miner/pkg/artifact"
	"github.com/l3aro/go-pattern-miner/pkg/mining"
)

// mineCmd represents the mine command
var mineCmd = &cobra.Command{
	Use:   "mine <examples-dir>",
	Short: "Mine patterns from example changes",
	Long: `Reads NAME.before.py files, each with an optional NAME.after.py holding the
fixed code, groups examples of the same shape and writes one pattern
directory per group that occurs often enough.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		outDir, _ := cmd.Flags().GetString("out")
		if outDir == "" {
			outDir = settings.PatternsDir
		}
		minOccurrences := settings.MinOccurrences
		if cmd.Flags().Changed("min") {
			minOccurrences, _ = cmd.Flags().GetInt("min")
		}

		examples, err := mining.LoadExamples(args[0])
		if err != nil {
			return err
		}
		logger.Info("mining", "examples", len(examples), "min_occurrences", minOccurrences)

		miner := mining.NewMiner(
			mining.WithMinOccurrences(minOccurrences),
			mining.WithMaxMappings(settings.MaxMappings),
			mining.WithLogger(logger),
		)
		patterns, err := miner.Mine(cmd.Context(), examples)
		if err != nil {
			return err
		}
		if len(patterns) == 0 {
			fmt.Println("No pattern occurs often enough.")
			return nil
		}

		for _, p := range patterns {
			dir, err := artifact.WritePattern(outDir, p)
			if err != nil {
				return err
			}
			fix := ""
			if p.Fix != nil {
				fix = ", with fix"
			}
			fmt.Printf("%s: %d samples%s -> %s\n", p.ID, len(p.Samples), fix, dir)
		}
		fmt.Printf("Wrote %d patterns to %s\n", len(patterns), outDir)
		return nil
	},
}

func init() {
	mineCmd.Flags().StringP("out", "o", "", "Output directory (default: patterns_dir from config)")
	mineCmd.Flags().Int("min", 0, "Minimum number of examples per pattern (default: min_occurrences from config)")
	RootCmd.AddCommand(mineCmd)
}
