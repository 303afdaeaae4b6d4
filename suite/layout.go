package suite

import (
	"fmt"
	"path/filepath"
)

// Layout derives every path the suite reads or writes. The job outputs under
// test_suite/ are the only hand-off between submission and reduction.
//
//	<root>/task-<phase>.yaml
//	<root>/template-<scheduler>.pbs
//	<root>/test_suite/<problem>/<engine>/output/<run dir>/
//	<root>/<version>/<phase>/<platform>/
type Layout struct {
	Root     string
	Platform string
	Version  string
}

// TaskPath is the default task file for a phase.
func (l Layout) TaskPath(phase Phase) string {
	return filepath.Join(l.Root, fmt.Sprintf("task-%s.yaml", phase))
}

// TemplatePath is the default job template for a scheduler family.
func (l Layout) TemplatePath(f SchedulerFamily) string {
	return filepath.Join(l.Root, fmt.Sprintf("template-%s.pbs", f))
}

// EngineDir holds the inputs of one engine for one problem.
func (l Layout) EngineDir(problem, engine string) string {
	return filepath.Join(l.Root, "test_suite", problem, engine)
}

// OutputDir holds all run directories of one engine for one problem.
func (l Layout) OutputDir(problem, engine string) string {
	return filepath.Join(l.EngineDir(problem, engine), "output")
}

// SerialRunDir is where a serial MC/DC sweep runs and leaves its artifacts.
func (l Layout) SerialRunDir(problem, method, mode string) string {
	return filepath.Join(l.OutputDir(problem, EngineMCDC), fmt.Sprintf("serial-%s-%s-%s", l.Platform, method, mode))
}

// ParallelRunDir is where the batches of one node count run.
func (l Layout) ParallelRunDir(problem, method, mode string, nodes int) string {
	return filepath.Join(l.OutputDir(problem, EngineMCDC), fmt.Sprintf("parallel-%s-%s-%s-node_%d", l.Platform, method, mode, nodes))
}

// BaselineRunDir is where the baseline engine's serial sweep leaves its artifacts.
func (l Layout) BaselineRunDir(problem string) string {
	return filepath.Join(l.OutputDir(problem, EngineOpenMC), fmt.Sprintf("serial-%s", l.Platform))
}

// RunDir returns the run directory for a batch.
func (l Layout) RunDir(b Batch) string {
	if b.Phase == PhaseParallel {
		return l.ParallelRunDir(b.Problem, b.Method, b.Mode, b.Nodes)
	}
	return l.SerialRunDir(b.Problem, b.Method, b.Mode)
}

// ResultsDir collects records, charts, manifests and the machine spec.
func (l Layout) ResultsDir(phase Phase) string {
	return filepath.Join(l.Root, l.Version, string(phase), l.Platform)
}
