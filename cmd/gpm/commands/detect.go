package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/l3aro/go-pattern-miner/internal/scanner"
	"github.com/l3aro/go-pattern-miner/pkg/cache"
	"github.com/l3aro/go-pattern-miner/pkg/detect"
	"github.com/l3aro/go-pattern-miner/pkg/repository"
)

// detectCmd represents the detect command
var detectCmd = &cobra.Command{
	Use:   "detect <project-dir>",
	Short: "Find pattern occurrences in a project",
	Long: `Scans the Python files of a project, builds the graph of every function and
reports each mined pattern found in it. Files listed in .gpmignore are skipped.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		patternsDir, _ := cmd.Flags().GetString("patterns")
		if patternsDir == "" {
			patternsDir = settings.PatternsDir
		}
		jsonOutput, _ := cmd.Flags().GetBool("json")
		noCache, _ := cmd.Flags().GetBool("no-cache")

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()

		repo, err := repository.Load(patternsDir,
			repository.WithSnapshot(settings.SnapshotPath),
			repository.WithLogger(logger),
		)
		if err != nil {
			return fmt.Errorf("loading patterns: %w", err)
		}
		if repo.Len() == 0 {
			return fmt.Errorf("no patterns found in %s", patternsDir)
		}

		opts := scanner.DefaultOptions()
		opts.IgnoreFileName = settings.IgnoreFile
		opts.Logger = logger
		files, err := scanner.New(opts).Scan(args[0])
		if err != nil {
			return fmt.Errorf("scanning project: %w", err)
		}
		logger.Info("detecting", "files", len(files), "patterns", repo.Len(), "workers", settings.Workers)

		detectorOpts := []detect.Option{
			detect.WithWorkers(settings.Workers),
			detect.WithLogger(logger),
		}
		if settings.SkipClosure {
			detectorOpts = append(detectorOpts, detect.WithoutClosure())
		}

		var detections *cache.Detections
		if !noCache && settings.CacheSize > 0 && settings.CachePath != "" {
			scope := repo.Fingerprint() + ":closure=" + strconv.FormatBool(!settings.SkipClosure)
			detections = cache.NewDetections(scope, settings.CacheSize)
			if ok, err := detections.LoadFile(settings.CachePath); err != nil {
				logger.Warn("ignoring detection cache", "path", settings.CachePath, "error", err)
			} else if ok {
				logger.Debug("loaded detection cache", "path", settings.CachePath, "entries", detections.Len())
			}
			detectorOpts = append(detectorOpts, detect.WithCache(detections))
		}

		report, err := detect.New(repo, detectorOpts...).Run(ctx, files)
		if err != nil {
			return err
		}

		if detections != nil {
			if err := detections.SaveFile(settings.CachePath); err != nil {
				logger.Warn("could not write detection cache", "path", settings.CachePath, "error", err)
			}
		}

		if jsonOutput {
			data, err := json.MarshalIndent(report, "", "  ")
			if err != nil {
				return fmt.Errorf("marshaling JSON: %w", err)
			}
			fmt.Println(string(data))
			return nil
		}

		for _, f := range report.Findings {
			fmt.Printf("%s:%d %s: %s\n", f.File, f.Line, f.Function, f.Pattern)
		}
		fmt.Fprintf(os.Stderr, "%d findings in %d functions of %d files (%d skipped, %d cached)\n",
			len(report.Findings), report.Functions, report.Files, report.Skipped, report.CacheHits)
		return nil
	},
}

func init() {
	detectCmd.Flags().StringP("patterns", "p", "", "Patterns directory (default: patterns_dir from config)")
	detectCmd.Flags().BoolP("json", "j", false, "Output as JSON")
	detectCmd.Flags().Bool("no-cache", false, "Ignore and do not update the detection cache")
	RootCmd.AddCommand(detectCmd)
}
