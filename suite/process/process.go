// Package process runs the read phase: it reduces every sweep of a serial
// task into a record, renders charts and writes the record sinks.
package process

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/mcdc-perf/perfsuite/suite"
	"github.com/mcdc-perf/perfsuite/suite/artifact"
	"github.com/mcdc-perf/perfsuite/suite/chart"
	"github.com/mcdc-perf/perfsuite/suite/record"
	"github.com/mcdc-perf/perfsuite/suite/reduce"
	"github.com/sirupsen/logrus"
)

// Config carries everything the read phase needs besides the task.
type Config struct {
	Layout       suite.Layout
	Platform     suite.PlatformProfile
	Reader       artifact.Reader
	CompileTimes reduce.CompileTable
	Batches      int
	Charts       bool
	Sinks        []record.Sink
	Meta         record.Meta
}

// Summary reports what one read phase produced.
type Summary struct {
	Record record.Record
	Charts []string
	Failed int
}

// Run reduces every sweep of task in sorted problem, method, mode order.
// A sweep that cannot be reduced is recorded with its error and the pass
// continues; only failures to write the outputs are returned.
func Run(task suite.SerialTask, cfg Config) (Summary, error) {
	if cfg.Reader == nil {
		cfg.Reader = artifact.YAMLReader{}
	}
	if cfg.Batches == 0 {
		cfg.Batches = reduce.DefaultBatches
	}
	dir := cfg.Layout.ResultsDir(suite.PhaseSerial)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return Summary{}, fmt.Errorf("creating results dir: %w", err)
	}

	var sum Summary
	b := record.NewBuilder()
	for _, problem := range suite.SortedKeys(task) {
		p := task[problem]

		var baseline []chart.Series
		if p.OpenMC != nil {
			key := record.Key{Problem: problem, Engine: suite.EngineOpenMC}
			counts := suite.LogSpacedCounts(*p.OpenMC)
			res, err := reduce.Reduce(cfg.Reader, cfg.Layout.BaselineRunDir(problem), counts, reduce.Options{
				Batches:  cfg.Batches,
				Field:    artifact.FieldBaselineSimulation,
				Problem:  problem,
				Platform: cfg.Platform.Name,
				Method:   suite.EngineOpenMC,
			})
			if err != nil {
				logrus.Warnf("Reducing %s/openmc: %v", problem, err)
				b.Add(key, record.Failed(len(counts), err))
				sum.Failed++
			} else {
				m := record.FromSweep(res)
				if n := res.Imax(); n > 0 {
					last := artifact.Path(cfg.Layout.BaselineRunDir(problem), suite.SerialOutputTag(res.Samples[n-1].N))
					m.RuntimePhases = runtimePhases(cfg.Reader, last)
				}
				b.Add(key, m)
				baseline = chart.SeriesFromSweep(record.EngineLabel(suite.EngineOpenMC), res, cfg.Batches)
			}
		}

		for _, method := range suite.SortedKeys(p.MCDC) {
			fig := chart.Figure{Problem: problem, Method: method}
			for _, mode := range suite.SortedKeys(p.MCDC[method]) {
				series, ok := reduceMode(b, &sum, cfg, problem, method, mode, p.MCDC[method][mode])
				if ok {
					fig.Series = append(fig.Series, series...)
				}
			}
			if !cfg.Charts || len(fig.Series) == 0 {
				continue
			}
			fig.Series = append(fig.Series, baseline...)
			paths, err := chart.Render(dir, fig)
			if err != nil {
				logrus.Warnf("Rendering charts for %s/%s: %v", problem, method, err)
			}
			sum.Charts = append(sum.Charts, paths...)
		}
	}

	sum.Record = b.Build()
	for _, s := range cfg.Sinks {
		if err := s.Write(sum.Record, cfg.Meta); err != nil {
			return sum, err
		}
		logrus.Infof("Wrote %s", s.Path())
	}
	logrus.Infof("Reduced %d sweeps on %s (%d failed)", sum.Record.Len(), cfg.Platform.Name, sum.Failed)
	return sum, nil
}

func reduceMode(b *record.Builder, sum *Summary, cfg Config, problem, method, mode string, sweep suite.Sweep) ([]chart.Series, bool) {
	traits, _ := suite.LookupMode(mode)
	if traits.RequiresAccelerator && !cfg.Platform.HasAccelerators() {
		logrus.Debugf("Skipping %s/%s/%s: platform %s has no accelerators", problem, method, mode, cfg.Platform.Name)
		return nil, false
	}

	key := record.Key{Problem: problem, Engine: suite.EngineMCDC, Method: method, Mode: mode}
	counts := suite.LogSpacedCounts(sweep)
	opts := reduce.Options{
		Batches:     cfg.Batches,
		Field:       artifact.FieldSimulation,
		CompileCost: traits.CompileCost,
		Problem:     problem,
		Platform:    cfg.Platform.Name,
		Method:      method,
		Mode:        mode,
	}
	if traits.CompileCost {
		opts.CompileTime = cfg.CompileTimes.Lookup(reduce.CompileKey{
			Platform: cfg.Platform.Name, Problem: problem, Method: method, Mode: mode,
		})
	}

	res, err := reduce.Reduce(cfg.Reader, cfg.Layout.SerialRunDir(problem, method, mode), counts, opts)
	if err != nil {
		logrus.Warnf("Reducing %s/%s/%s: %v", problem, method, mode, err)
		b.Add(key, record.Failed(len(counts), err))
		sum.Failed++
		return nil, false
	}
	if res.CompileTimeEstimated {
		logrus.Infof("No compile time known for %s/%s/%s on %s; using prefix minimum %.3fs",
			problem, method, mode, cfg.Platform.Name, res.CompileTime)
	}
	b.Add(key, record.FromSweep(res))
	return chart.SeriesFromSweep(fmt.Sprintf("%s-%s", record.EngineLabel(suite.EngineMCDC), mode), res, cfg.Batches), true
}

// runtimePhases reads the baseline's phase breakdown from one artifact,
// keyed by phase name without the "runtime/" prefix. Phases the artifact
// lacks are left out.
func runtimePhases(r artifact.Reader, path string) map[string]float64 {
	phases := make(map[string]float64)
	for _, name := range artifact.BaselinePhases {
		v, err := r.ReadScalar(path, name)
		if err != nil {
			if !errors.Is(err, artifact.ErrMissingField) {
				logrus.Warnf("Reading %s: %v", name, err)
			}
			continue
		}
		phases[strings.TrimPrefix(name, "runtime/")] = v
	}
	if len(phases) == 0 {
		return nil
	}
	return phases
}
