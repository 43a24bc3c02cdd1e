// Package commands provides the CLI commands for the go-pattern-miner tool.
package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/l3aro/go-pattern-miner/internal/config"
	"github.com/l3aro/go-pattern-miner/internal/log"
)

var (
	settings *config.Config
	logger   log.Logger = log.Nop()
)

// RootCmd represents the base command when called without any subcommands
var RootCmd = &cobra.Command{
	Use:   "gpm",
	Short: "go-pattern-miner - Mine and detect code change patterns",
	Long: `go-pattern-miner builds dependence graphs of Python functions, mines
recurring shapes from example changes and finds them in other code.

Commands:
  graph       Print the flow graph of a function
  mine        Mine patterns from example changes
  detect      Find pattern occurrences in a project
  check       Compare the graph of a function with a reference builder
  init        Create a configuration file interactively

Use "gpm [command] --help" for more information about a command.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "init" {
			return nil
		}
		configPath, _ := cmd.Flags().GetString("config")
		verbose, _ := cmd.Flags().GetBool("verbose")

		var err error
		if configPath != "" {
			settings, err = config.LoadFromFile(configPath)
		} else {
			settings, err = config.Load()
		}
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		logger = settings.Logger(verbose)
		return nil
	},
}

// Execute adds all child commands to the root command and sets flags appropriately
func Execute() error {
	return RootCmd.Execute()
}

func init() {
	RootCmd.PersistentFlags().String("config", "", "Config file path (default: project and global config)")
	RootCmd.PersistentFlags().Bool("verbose", false, "Verbose logging")
}
