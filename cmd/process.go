package cmd

import (
	"context"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/mcdc-perf/perfsuite/suite"
	"github.com/mcdc-perf/perfsuite/suite/artifact"
	"github.com/mcdc-perf/perfsuite/suite/process"
	"github.com/mcdc-perf/perfsuite/suite/record"
	"github.com/mcdc-perf/perfsuite/suite/reduce"
)

var (
	// CLI flags for the read phase
	processTaskPath  string   // Serial task file; default <root>/task-serial.yaml
	compileTimesPath string   // YAML list of measured compile times
	batches          int      // Batch count used in every tracking rate
	recordFormats    []string // Record sinks to write
	noCharts         bool     // Skip chart rendering
)

// processOptions is the resolved configuration of one read phase.
type processOptions struct {
	Root         string
	Platform     suite.PlatformProfile
	Version      string
	TaskPath     string
	CompileTimes string
	Batches      int
	Formats      []string
	Charts       bool
}

var processCmd = &cobra.Command{
	Use:     "process",
	Short:   "Reduce serial sweep outputs into a performance record and charts",
	PreRunE: resolvePlatform,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		version, err := resolveVersion(ctx, suite.ExecRunner{})
		if err != nil {
			logrus.Fatalf("Cannot determine code version (use --code-version): %v", err)
		}
		opts := processOptions{
			Root:         rootDir,
			Platform:     platform,
			Version:      version,
			TaskPath:     processTaskPath,
			CompileTimes: compileTimesPath,
			Batches:      batches,
			Formats:      recordFormats,
			Charts:       !noCharts,
		}
		if _, err := runProcess(opts); err != nil {
			logrus.Fatalf("Processing aborted: %v", err)
		}
	},
}

// runProcess loads the task and compile-time table and runs the read phase.
func runProcess(opts processOptions) (process.Summary, error) {
	layout := suite.Layout{Root: opts.Root, Platform: opts.Platform.Name, Version: opts.Version}
	if opts.TaskPath == "" {
		opts.TaskPath = layout.TaskPath(suite.PhaseSerial)
	}
	task, err := suite.LoadSerialTask(opts.TaskPath)
	if err != nil {
		return process.Summary{}, err
	}

	table := reduce.DefaultCompileTimes()
	if opts.CompileTimes != "" {
		table, err = reduce.LoadCompileTimes(opts.CompileTimes, table)
		if err != nil {
			return process.Summary{}, err
		}
	}

	sinks, err := record.NewSinks(opts.Formats, layout.ResultsDir(suite.PhaseSerial))
	if err != nil {
		return process.Summary{}, err
	}

	return process.Run(task, process.Config{
		Layout:       layout,
		Platform:     opts.Platform,
		Reader:       artifact.YAMLReader{},
		CompileTimes: table,
		Batches:      opts.Batches,
		Charts:       opts.Charts,
		Sinks:        sinks,
		Meta: record.Meta{
			Platform:   opts.Platform.Name,
			Version:    opts.Version,
			Invocation: uuid.NewString(),
		},
	})
}

func init() {
	addPlatformFlag(processCmd, false)
	processCmd.Flags().StringVar(&processTaskPath, "task", "", "Serial task file (default <root>/task-serial.yaml)")
	processCmd.Flags().StringVar(&compileTimesPath, "compile-times", "", "YAML list of measured compile times overriding the built-in table")
	processCmd.Flags().IntVar(&batches, "batches", reduce.DefaultBatches, "Number of batches each run simulated")
	processCmd.Flags().StringSliceVar(&recordFormats, "format", []string{record.FormatYAML, record.FormatBench}, "Record formats to write (yaml, bench, sqlite)")
	processCmd.Flags().BoolVar(&noCharts, "no-charts", false, "Skip chart rendering")

	rootCmd.AddCommand(processCmd)
}
