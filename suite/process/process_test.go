package process

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mcdc-perf/perfsuite/suite"
	"github.com/mcdc-perf/perfsuite/suite/artifact"
	"github.com/mcdc-perf/perfsuite/suite/internal/testutil"
	"github.com/mcdc-perf/perfsuite/suite/record"
	"github.com/mcdc-perf/perfsuite/suite/reduce"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixture(t *testing.T) (suite.SerialTask, Config) {
	t.Helper()
	root := t.TempDir()
	layout := suite.Layout{Root: root, Platform: "dane", Version: "0.11.0"}
	platform, err := suite.DefaultPlatforms().Lookup("dane")
	require.NoError(t, err)

	sweep := suite.Sweep{LogNMin: 2, LogNMax: 4, NRuns: 3}
	task := suite.SerialTask{
		"azurv1": {
			MCDC: map[string]map[string]suite.Sweep{
				"analog": {"python": sweep, "numba": sweep, "gpu": sweep},
			},
			OpenMC: &suite.Sweep{LogNMin: 2, LogNMax: 3, NRuns: 2},
		},
		"pincell": {
			MCDC: map[string]map[string]suite.Sweep{
				"analog": {"python": sweep},
			},
		},
	}

	testutil.WriteWalls(t, layout.SerialRunDir("azurv1", "analog", "python"), map[int64]float64{100: 2.0, 1000: 18.0})
	testutil.WriteWalls(t, layout.SerialRunDir("azurv1", "analog", "numba"), map[int64]float64{100: 45, 1000: 46, 10000: 50})
	testutil.WriteRuntime(t, layout.BaselineRunDir("azurv1"), 100, map[string]float64{"runtime/simulation": 1.0})
	testutil.WriteRuntime(t, layout.BaselineRunDir("azurv1"), 1000, map[string]float64{"runtime/simulation": 4.0})
	// corrupt: artifact present without the simulation field
	testutil.WriteRuntime(t, layout.SerialRunDir("pincell", "analog", "python"), 100, map[string]float64{"total": 1})

	sinks, err := record.NewSinks([]string{record.FormatYAML, record.FormatBench}, layout.ResultsDir(suite.PhaseSerial))
	require.NoError(t, err)
	return task, Config{
		Layout:       layout,
		Platform:     platform,
		Reader:       artifact.YAMLReader{},
		CompileTimes: reduce.CompileTable{{Platform: "dane", Problem: "azurv1", Method: "analog", Mode: "numba"}: 45},
		Batches:      10,
		Charts:       true,
		Sinks:        sinks,
		Meta:         record.Meta{Platform: "dane", Version: "0.11.0", Invocation: "test"},
	}
}

func TestRun_ReducesEverySweep(t *testing.T) {
	// GIVEN a task with complete, truncated, corrupt and baseline sweeps
	task, cfg := fixture(t)

	// WHEN the read phase runs
	sum, err := Run(task, cfg)
	require.NoError(t, err)

	// THEN the truncated python sweep reports the rate of its last run
	python, ok := sum.Record.Get(record.Key{Problem: "azurv1", Engine: suite.EngineMCDC, Method: "analog", Mode: "python"})
	require.True(t, ok)
	assert.Equal(t, 3, python.PlannedRuns)
	assert.Equal(t, 2, python.CompletedRuns)
	testutil.AssertFloat64Equal(t, "python rate", 10*1000/18.0*1e-3, python.TrackingRate.Value, 1e-12)

	// AND the numba sweep is corrected with the table's compile time
	numba, ok := sum.Record.Get(record.Key{Problem: "azurv1", Engine: suite.EngineMCDC, Method: "analog", Mode: "numba"})
	require.True(t, ok)
	require.NotNil(t, numba.CompileTime)
	assert.Equal(t, 45.0, *numba.CompileTime)
	testutil.AssertFloat64Equal(t, "numba rate", 20.0, numba.TrackingRate.Value, 1e-12)
	require.NotNil(t, numba.RawTrackingRate)
	testutil.AssertFloat64Equal(t, "numba raw rate", 2.0, numba.RawTrackingRate.Value, 1e-12)

	// AND the gpu mode is skipped on a platform without accelerators
	_, ok = sum.Record.Get(record.Key{Problem: "azurv1", Engine: suite.EngineMCDC, Method: "analog", Mode: "gpu"})
	assert.False(t, ok)

	// AND the baseline is reduced on its simulation phase
	baseline, ok := sum.Record.Get(record.Key{Problem: "azurv1", Engine: suite.EngineOpenMC})
	require.True(t, ok)
	testutil.AssertFloat64Equal(t, "baseline rate", 2.5, baseline.TrackingRate.Value, 1e-12)
	assert.Equal(t, map[string]float64{"simulation": 4.0}, baseline.RuntimePhases)

	// AND the corrupt sweep fails alone
	assert.Equal(t, 1, sum.Failed)
	failed, ok := sum.Record.Get(record.Key{Problem: "pincell", Engine: suite.EngineMCDC, Method: "analog", Mode: "python"})
	require.True(t, ok)
	assert.False(t, failed.TrackingRate.Valid)
	assert.Contains(t, failed.Error, "output_100-runtime.yaml")
}

func TestRun_WritesOutputs(t *testing.T) {
	task, cfg := fixture(t)

	sum, err := Run(task, cfg)
	require.NoError(t, err)

	dir := cfg.Layout.ResultsDir(suite.PhaseSerial)
	for _, name := range []string{record.YAMLFile, record.BenchFile} {
		_, err := os.Stat(filepath.Join(dir, name))
		assert.NoError(t, err, name)
	}
	assert.Contains(t, sum.Charts, filepath.Join(dir, "azurv1-analog-runtime.png"))
	assert.Contains(t, sum.Charts, filepath.Join(dir, "azurv1-analog-tracking_rate.png"))
	for _, p := range sum.Charts {
		_, err := os.Stat(p)
		assert.NoError(t, err)
	}
}

func TestRun_ChartsDisabled(t *testing.T) {
	task, cfg := fixture(t)
	cfg.Charts = false

	sum, err := Run(task, cfg)
	require.NoError(t, err)
	assert.Empty(t, sum.Charts)
}

func TestRun_NoArtifactsAtAll(t *testing.T) {
	// GIVEN a layout with no outputs
	_, cfg := fixture(t)
	cfg.Layout.Root = t.TempDir()
	cfg.Sinks = nil
	task := suite.SerialTask{"kobayashi": {MCDC: map[string]map[string]suite.Sweep{
		"analog": {"numba": {LogNMin: 2, LogNMax: 3, NRuns: 2}},
	}}}

	// WHEN the read phase runs
	sum, err := Run(task, cfg)
	require.NoError(t, err)

	// THEN the sweep is recorded as empty with an invalid rate
	m, ok := sum.Record.Get(record.Key{Problem: "kobayashi", Engine: suite.EngineMCDC, Method: "analog", Mode: "numba"})
	require.True(t, ok)
	assert.Equal(t, 0, m.CompletedRuns)
	assert.False(t, m.TrackingRate.Valid)
	assert.Nil(t, m.CompileTime)
	assert.Empty(t, sum.Charts)
}

func TestRun_BaselinePhaseBreakdown(t *testing.T) {
	// GIVEN a baseline sweep whose last artifact carries several phases
	_, cfg := fixture(t)
	cfg.Sinks = nil
	cfg.Charts = false
	dir := cfg.Layout.BaselineRunDir("shem361")
	testutil.WriteRuntime(t, dir, 100, map[string]float64{"runtime/simulation": 1.5})
	testutil.WriteRuntime(t, dir, 1000, map[string]float64{
		"runtime/simulation":             8.5,
		"runtime/transport":              8.25,
		"runtime/reading cross sections": 0.75,
	})
	task := suite.SerialTask{"shem361": {OpenMC: &suite.Sweep{LogNMin: 2, LogNMax: 3, NRuns: 2}}}

	// WHEN the read phase runs
	sum, err := Run(task, cfg)
	require.NoError(t, err)

	// THEN the phases of the last run are recorded without their prefix
	m, ok := sum.Record.Get(record.Key{Problem: "shem361", Engine: suite.EngineOpenMC})
	require.True(t, ok)
	assert.Equal(t, map[string]float64{
		"simulation":             8.5,
		"transport":              8.25,
		"reading cross sections": 0.75,
	}, m.RuntimePhases)
}

func TestRun_GPUModeKeepsItsOwnCompileTime(t *testing.T) {
	// GIVEN a GPU platform whose table only knows the numba compile time
	root := t.TempDir()
	tioga, err := suite.DefaultPlatforms().Lookup("tioga")
	require.NoError(t, err)
	layout := suite.Layout{Root: root, Platform: "tioga", Version: "0.11.0"}
	sweep := suite.Sweep{LogNMin: 2, LogNMax: 4, NRuns: 3}
	task := suite.SerialTask{"azurv1": {MCDC: map[string]map[string]suite.Sweep{
		"analog": {"numba": sweep, "gpu": sweep},
	}}}
	testutil.WriteWalls(t, layout.SerialRunDir("azurv1", "analog", "numba"), map[int64]float64{100: 45, 1000: 46, 10000: 50})
	testutil.WriteWalls(t, layout.SerialRunDir("azurv1", "analog", "gpu"), map[int64]float64{100: 5, 1000: 6, 10000: 10})
	cfg := Config{
		Layout:       layout,
		Platform:     tioga,
		Reader:       artifact.YAMLReader{},
		CompileTimes: reduce.CompileTable{{Platform: "tioga", Problem: "azurv1", Method: "analog", Mode: "numba"}: 45},
		Batches:      10,
	}

	// WHEN the read phase runs
	sum, err := Run(task, cfg)
	require.NoError(t, err)

	// THEN numba uses the table and gpu falls back to its own prefix minimum
	numba, ok := sum.Record.Get(record.Key{Problem: "azurv1", Engine: suite.EngineMCDC, Method: "analog", Mode: "numba"})
	require.True(t, ok)
	require.NotNil(t, numba.CompileTime)
	assert.Equal(t, 45.0, *numba.CompileTime)

	gpu, ok := sum.Record.Get(record.Key{Problem: "azurv1", Engine: suite.EngineMCDC, Method: "analog", Mode: "gpu"})
	require.True(t, ok)
	require.NotNil(t, gpu.CompileTime)
	assert.Equal(t, 5.0, *gpu.CompileTime)
	testutil.AssertFloat64Equal(t, "gpu rate", 20.0, gpu.TrackingRate.Value, 1e-12)
}

func TestRun_ReadsArtifactsNamedByGeneratedJobs(t *testing.T) {
	// GIVEN a planned serial job and a layout shared with the read phase
	_, cfg := fixture(t)
	cfg.Layout.Root = t.TempDir()
	cfg.Sinks = nil
	cfg.Charts = false
	sweep := suite.Sweep{LogNMin: 2, LogNMax: 3, NRuns: 2}
	task := suite.SerialTask{"azurv1": {MCDC: map[string]map[string]suite.Sweep{"analog": {"python": sweep}}}}
	jobs, err := suite.PlanSerial(task, suite.SubmitConfig{
		Layout:   cfg.Layout,
		Platform: cfg.Platform,
		Template: testutil.SlurmTemplate,
	})
	require.NoError(t, err)
	require.Len(t, jobs, 1)

	// WHEN every conversion line of the job leaves its artifact behind
	converted := 0
	for _, line := range strings.Split(jobs[0].Text, "\n") {
		fields := strings.Fields(line)
		if len(fields) != 4 || fields[1] != suite.ConverterFile {
			continue
		}
		converted++
		testutil.WriteFile(t, jobs[0].Dir, fields[3], "simulation: 2.5\n")
	}
	require.Equal(t, 2, converted)

	// THEN the read phase finds the complete sweep
	sum, err := Run(task, cfg)
	require.NoError(t, err)
	m, ok := sum.Record.Get(record.Key{Problem: "azurv1", Engine: suite.EngineMCDC, Method: "analog", Mode: "python"})
	require.True(t, ok)
	assert.Equal(t, 2, m.CompletedRuns)
	assert.True(t, m.TrackingRate.Valid)
	testutil.AssertFloat64Equal(t, "rate", 4.0, m.TrackingRate.Value, 1e-12)
}
