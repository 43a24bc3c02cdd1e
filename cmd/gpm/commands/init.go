package commands

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/l3aro/go-pattern-miner/internal/config"
)

// initCmd represents the init command
var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize gpm configuration interactively",
	Long: `Guides you through setting up gpm configuration step by step.
Creates a config file with pattern storage, mining and detection settings.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runInit()
	},
}

func runInit() error {
	cfg := config.DefaultConfig()

	// === SECTION 1: Patterns ===
	minOccurrences := strconv.Itoa(cfg.MinOccurrences)
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Patterns directory").
				Description("Where mined patterns are written and read from").
				Placeholder(cfg.PatternsDir).
				Value(&cfg.PatternsDir),
			huh.NewInput().
				Title("Minimum occurrences").
				Description("Examples needed before a shape becomes a pattern").
				Placeholder(minOccurrences).
				Validate(positiveInt).
				Value(&minOccurrences),
		),
	)
	if err := form.Run(); err != nil {
		return fmt.Errorf("interactive prompt failed: %w", err)
	}

	// === SECTION 2: Detection ===
	workers := strconv.Itoa(cfg.Workers)
	useCache := true
	form = huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Detection workers").
				Description("Files analysed at the same time").
				Placeholder(workers).
				Validate(positiveInt).
				Value(&workers),
			huh.NewConfirm().
				Title("Cache detection results?").
				Description("Reuse results for functions that did not change").
				Affirmative("Yes").
				Negative("No").
				Value(&useCache),
			huh.NewSelect[string]().
				Title("Log level").
				Options(
					huh.NewOption("Debug", "debug"),
					huh.NewOption("Info", "info"),
					huh.NewOption("Warn", "warn"),
					huh.NewOption("Error", "error"),
				).
				Value(&cfg.LogLevel),
		),
	)
	if err := form.Run(); err != nil {
		return fmt.Errorf("interactive prompt failed: %w", err)
	}

	// === SECTION 3: Oracle ===
	oracleCommand := ""
	form = huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Reference builder command (optional, press Enter to skip)").
				Description("Used by 'gpm check'; receives the file and function as last arguments").
				Placeholder("python3 tools/reference_graph.py").
				Value(&oracleCommand),
		),
	)
	if err := form.Run(); err != nil {
		return fmt.Errorf("interactive prompt failed: %w", err)
	}

	// === SECTION 4: Config Location ===
	var saveLocationChoice string
	form = huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Save Configuration").
				Description("Where to save the configuration file?").
				Options(
					huh.NewOption("Project (./.gpm/config.yaml)", "project"),
					huh.NewOption("Global (~/.gpm/config.yaml)", "global"),
				).
				Value(&saveLocationChoice),
		),
	)
	if err := form.Run(); err != nil {
		return fmt.Errorf("interactive prompt failed: %w", err)
	}

	configPath := config.ProjectConfigFilePath()
	if saveLocationChoice == "global" {
		configPath = config.GlobalConfigFilePath()
	}

	if _, err := os.Stat(configPath); err == nil {
		var overwrite bool
		form = huh.NewForm(
			huh.NewGroup(
				huh.NewConfirm().
					Title("Config file exists").
					Description(fmt.Sprintf("Overwrite existing config at %s?", configPath)).
					Affirmative("Overwrite").
					Negative("Cancel").
					Value(&overwrite),
			),
		)
		if err := form.Run(); err != nil {
			return fmt.Errorf("interactive prompt failed: %w", err)
		}
		if !overwrite {
			fmt.Println("Cancelled.")
			return nil
		}
	}

	// === Build config struct ===
	cfg.MinOccurrences, _ = strconv.Atoi(strings.TrimSpace(minOccurrences))
	cfg.Workers, _ = strconv.Atoi(strings.TrimSpace(workers))
	if !useCache {
		cfg.CacheSize = 0
	}
	cfg.OracleCommand = strings.Fields(oracleCommand)
	if cfg.PatternsDir == "" {
		cfg.PatternsDir = config.DefaultConfig().PatternsDir
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}

	fmt.Println("\n=== Configuration Preview ===")
	fmt.Printf("Config path: %s\n", configPath)
	fmt.Printf("Patterns directory: %s\n", cfg.PatternsDir)
	fmt.Printf("Minimum occurrences: %d\n", cfg.MinOccurrences)
	fmt.Printf("Workers: %d\n", cfg.Workers)
	fmt.Printf("Log level: %s\n", cfg.LogLevel)
	fmt.Printf("Detection cache: %t\n", cfg.CacheSize > 0)
	if len(cfg.OracleCommand) > 0 {
		fmt.Printf("Oracle: %s\n", strings.Join(cfg.OracleCommand, " "))
	}
	fmt.Println("================================")

	if err := cfg.Save(configPath); err != nil {
		return fmt.Errorf("saving config: %w", err)
	}
	fmt.Printf("Configuration saved to: %s\n", configPath)
	return nil
}

func positiveInt(s string) error {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n < 1 {
		return fmt.Errorf("enter a positive number")
	}
	return nil
}

func init() {
	RootCmd.AddCommand(initCmd)
}
