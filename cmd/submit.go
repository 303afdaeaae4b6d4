package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/mcdc-perf/perfsuite/suite"
)

var (
	// CLI flags for job submission
	taskPath     string // Task file; default <root>/task-<phase>.yaml
	templatePath string // Scheduler template; default <root>/template-<scheduler>.pbs
	dryRun       bool   // Write job files without invoking the scheduler
	serialHours  int    // Wall time requested for each serial job
)

// submitOptions is the resolved configuration of one submission pass.
type submitOptions struct {
	Phase       suite.Phase
	Root        string
	Platform    suite.PlatformProfile
	Version     string
	TaskPath    string
	Template    string
	Python      string
	DryRun      bool
	SerialHours int
}

var submitCmd = &cobra.Command{
	Use:   "submit",
	Short: "Generate scheduler jobs for a sweep phase and submit them",
}

var submitSerialCmd = &cobra.Command{
	Use:     "serial",
	Short:   "Submit one single-node job per problem, method and mode",
	PreRunE: resolvePlatform,
	Run: func(cmd *cobra.Command, args []string) {
		runSubmitCommand(cmd.Context(), suite.PhaseSerial)
	},
}

var submitParallelCmd = &cobra.Command{
	Use:     "parallel",
	Short:   "Submit weak-scaling jobs for every node count and case",
	PreRunE: resolvePlatform,
	Run: func(cmd *cobra.Command, args []string) {
		runSubmitCommand(cmd.Context(), suite.PhaseParallel)
	},
}

func runSubmitCommand(ctx context.Context, phase suite.Phase) {
	if ctx == nil {
		ctx = context.Background()
	}
	runner := suite.ExecRunner{}
	version, err := resolveVersion(ctx, runner)
	if err != nil {
		logrus.Fatalf("Cannot determine code version (use --code-version): %v", err)
	}
	opts := submitOptions{
		Phase:       phase,
		Root:        rootDir,
		Platform:    platform,
		Version:     version,
		TaskPath:    taskPath,
		Template:    templatePath,
		Python:      pythonBin,
		DryRun:      dryRun,
		SerialHours: serialHours,
	}
	if err := runSubmit(ctx, opts, runner); err != nil {
		logrus.Fatalf("Submission aborted: %v", err)
	}
}

// runSubmit plans every job of a phase and submits them in order. Any
// configuration error aborts before the first job is written.
func runSubmit(ctx context.Context, opts submitOptions, r suite.Runner) error {
	layout := suite.Layout{Root: opts.Root, Platform: opts.Platform.Name, Version: opts.Version}
	if opts.TaskPath == "" {
		opts.TaskPath = layout.TaskPath(opts.Phase)
	}
	if opts.Template == "" {
		opts.Template = layout.TemplatePath(opts.Platform.Scheduler)
	}
	tmpl, err := os.ReadFile(opts.Template)
	if err != nil {
		return fmt.Errorf("reading template: %w", err)
	}
	cfg := suite.SubmitConfig{
		Layout:      layout,
		Platform:    opts.Platform,
		Template:    string(tmpl),
		Python:      opts.Python,
		SerialHours: opts.SerialHours,
	}

	var jobs []suite.JobRecord
	switch opts.Phase {
	case suite.PhaseSerial:
		task, err := suite.LoadSerialTask(opts.TaskPath)
		if err != nil {
			return err
		}
		jobs, err = suite.PlanSerial(task, cfg)
		if err != nil {
			return err
		}
	case suite.PhaseParallel:
		task, err := suite.LoadParallelTask(opts.TaskPath)
		if err != nil {
			return err
		}
		jobs, err = suite.PlanParallel(task, cfg)
		if err != nil {
			return err
		}
	default:
		return fmt.Errorf("unknown phase %q", opts.Phase)
	}
	logrus.Infof("Planned %d %s jobs for %s (version %s)", len(jobs), opts.Phase, opts.Platform.Name, opts.Version)

	s := suite.NewSubmitter(r, opts.Platform, opts.DryRun)
	results := layout.ResultsDir(opts.Phase)
	if err := suite.WriteMachineSpec(results, suite.CollectMachineSpec(opts.Platform.Name, s.ID)); err != nil {
		return err
	}
	submitErr := suite.SubmitJobs(ctx, jobs, layout, s)
	if err := s.WriteManifest(results, opts.Phase); err != nil {
		return err
	}
	if submitErr != nil {
		return submitErr
	}

	sum := s.Manifest(opts.Phase).Summary
	logrus.Infof("Submission %s: %d jobs, %d submitted, %d failed, %d dry-run",
		s.ID, sum.Total, sum.Submitted, sum.Failed, sum.DryRun)
	return nil
}

func init() {
	addPlatformFlag(submitCmd, true)
	submitCmd.PersistentFlags().StringVar(&taskPath, "task", "", "Task file (default <root>/task-<phase>.yaml)")
	submitCmd.PersistentFlags().StringVar(&templatePath, "template", "", "Scheduler template (default <root>/template-<scheduler>.pbs)")
	submitCmd.PersistentFlags().BoolVar(&dryRun, "dry-run", false, "Write job files without invoking the scheduler")
	submitSerialCmd.Flags().IntVar(&serialHours, "hours", suite.DefaultSerialHours, "Wall time in hours requested for each serial job")

	submitCmd.AddCommand(submitSerialCmd)
	submitCmd.AddCommand(submitParallelCmd)
	rootCmd.AddCommand(submitCmd)
}
