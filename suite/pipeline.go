package suite

import (
	"context"
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/sirupsen/logrus"
)

// SubmitConfig carries everything the write phase needs besides the task.
type SubmitConfig struct {
	Layout      Layout
	Platform    PlatformProfile
	Template    string
	Python      string
	SerialHours int
	Cases       []Case
}

// PlanSerial enumerates and renders every serial job of a task. Any
// configuration error aborts the plan before a single job is submitted.
func PlanSerial(task SerialTask, cfg SubmitConfig) ([]JobRecord, error) {
	hours := cfg.SerialHours
	if hours == 0 {
		hours = DefaultSerialHours
	}
	var jobs []JobRecord
	for _, problem := range SortedKeys(task) {
		p := task[problem]
		if p.OpenMC != nil {
			logrus.Infof("Skipping openmc sweep of %s: baseline runs are submitted outside the suite", problem)
		}
		for _, method := range SortedKeys(p.MCDC) {
			for _, mode := range SortedKeys(p.MCDC[method]) {
				batches, err := EnumerateSerial(problem, method, mode, p.MCDC[method][mode], cfg.Platform, hours)
				if err != nil {
					return nil, err
				}
				planned, err := renderBatches(batches, cfg)
				if err != nil {
					return nil, err
				}
				jobs = append(jobs, planned...)
			}
		}
	}
	return jobs, nil
}

// PlanParallel enumerates and renders every weak-scaling job of a task.
func PlanParallel(task ParallelTask, cfg SubmitConfig) ([]JobRecord, error) {
	cases := cfg.Cases
	if cases == nil {
		cases = DefaultCases
	}
	var jobs []JobRecord
	for _, problem := range SortedKeys(task) {
		p := task[problem]
		for _, method := range SortedKeys(p.MCDC) {
			for _, mode := range SortedKeys(p.MCDC[method]) {
				batches, err := EnumerateParallel(problem, method, mode, p.MCDC[method][mode], cfg.Platform, cases)
				if err != nil {
					return nil, err
				}
				planned, err := renderBatches(batches, cfg)
				if err != nil {
					return nil, err
				}
				jobs = append(jobs, planned...)
			}
		}
	}
	return jobs, nil
}

func renderBatches(batches []Batch, cfg SubmitConfig) ([]JobRecord, error) {
	jobs := make([]JobRecord, 0, len(batches))
	for _, b := range batches {
		job, err := BuildJob(cfg.Template, b, cfg.Platform, cfg.Python)
		if err != nil {
			return nil, err
		}
		job.Dir = cfg.Layout.RunDir(b)
		jobs = append(jobs, job)
	}
	return jobs, nil
}

// SubmitJobs stages inputs and the runtime converter, then submits each
// planned job in order. Missing inputs and scheduler failures are logged and
// do not stop the pass; a run directory that cannot be written does.
func SubmitJobs(ctx context.Context, jobs []JobRecord, layout Layout, s *Submitter) error {
	for _, job := range jobs {
		if err := ctx.Err(); err != nil {
			return err
		}
		var particles int64
		for _, r := range job.Batch.Runs {
			particles += r.Particles
		}
		logrus.Debugf("Preparing %s: %d runs, %s particles on %d nodes",
			job.Name, len(job.Batch.Runs), humanize.Comma(particles), job.Batch.Nodes)

		src := layout.EngineDir(job.Batch.Problem, EngineMCDC)
		if err := StageInputs(src, job.Dir); err != nil {
			logrus.Warnf("Staging inputs for %s: %v", job.Name, err)
		}
		if err := WriteConverter(job.Dir); err != nil {
			return fmt.Errorf("staging %s: %w", job.Name, err)
		}
		if err := s.Submit(ctx, job); err != nil {
			return fmt.Errorf("submitting %s: %w", job.Name, err)
		}
	}
	return nil
}
