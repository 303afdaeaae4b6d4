package suite

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/mcdc-perf/perfsuite/suite/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlanSerial_SortedAndSkipsAccelerators(t *testing.T) {
	// GIVEN a serial task with two problems, including a gpu mode, on dane
	sweep := Sweep{LogNMin: 2, LogNMax: 3, NRuns: 2}
	task := SerialTask{
		"pincell": {MCDC: map[string]map[string]Sweep{"analog": {"python": sweep}}},
		"azurv1": {
			MCDC:   map[string]map[string]Sweep{"analog": {"python": sweep, "numba": sweep, "gpu": sweep}},
			OpenMC: &sweep,
		},
	}
	root := t.TempDir()
	cfg := SubmitConfig{
		Layout:   Layout{Root: root, Platform: "dane"},
		Platform: DefaultPlatforms()["dane"],
		Template: testutil.SlurmTemplate,
	}

	// WHEN the jobs are planned
	jobs, err := PlanSerial(task, cfg)
	require.NoError(t, err)

	// THEN jobs come in problem, method, mode order without the gpu mode
	var names []string
	for _, j := range jobs {
		names = append(names, j.Name)
	}
	assert.Equal(t, []string{
		"mcdc-ser-azurv1-analog-numba",
		"mcdc-ser-azurv1-analog-python",
		"mcdc-ser-pincell-analog-python",
	}, names)
	assert.Equal(t, filepath.Join(root, "test_suite", "azurv1", "mcdc", "output", "serial-dane-analog-numba"), jobs[0].Dir)
	assert.Contains(t, jobs[0].Text, "#SBATCH -t 12:00:00")
}

func TestPlanSerial_IsDeterministic(t *testing.T) {
	sweep := Sweep{LogNMin: 2, LogNMax: 5, NRuns: 4}
	task := SerialTask{
		"a": {MCDC: map[string]map[string]Sweep{"analog": {"python": sweep, "numba": sweep}, "implicit_capture": {"numba": sweep}}},
		"b": {MCDC: map[string]map[string]Sweep{"analog": {"python": sweep}}},
	}
	cfg := SubmitConfig{Layout: Layout{Root: "/r", Platform: "dane"}, Platform: DefaultPlatforms()["dane"], Template: testutil.SlurmTemplate}

	first, err := PlanSerial(task, cfg)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		again, err := PlanSerial(task, cfg)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestPlanSerial_HoursOverLimit(t *testing.T) {
	task := SerialTask{"p": {MCDC: map[string]map[string]Sweep{"analog": {"python": {LogNMin: 2, LogNMax: 3, NRuns: 2}}}}}
	cfg := SubmitConfig{Platform: DefaultPlatforms()["lassen"], Template: testutil.SlurmTemplate, SerialHours: 24}

	jobs, err := PlanSerial(task, cfg)
	require.NoError(t, err)
	assert.Empty(t, jobs)
}

func TestPlanParallel(t *testing.T) {
	task := ParallelTask{"kobayashi": {MCDC: map[string]map[string]int64{"analog": {"numba": 1000}}}}
	cfg := SubmitConfig{
		Layout:   Layout{Root: "/r", Platform: "tioga"},
		Platform: DefaultPlatforms()["tioga"],
		Template: testutil.SlurmTemplate,
	}

	jobs, err := PlanParallel(task, cfg)
	require.NoError(t, err)

	require.Len(t, jobs, 20)
	assert.Equal(t, "/r/test_suite/kobayashi/mcdc/output/parallel-tioga-analog-numba-node_1", jobs[0].Dir)
	assert.Equal(t, "submit-case1.pbs", jobs[0].FileName)
	assert.Equal(t, "/r/test_suite/kobayashi/mcdc/output/parallel-tioga-analog-numba-node_16", jobs[19].Dir)
}

func TestPlanParallel_TemplateErrorAbortsPlan(t *testing.T) {
	task := ParallelTask{"kobayashi": {MCDC: map[string]map[string]int64{"analog": {"numba": 1000}}}}
	cfg := SubmitConfig{Platform: DefaultPlatforms()["tioga"], Template: "<QUEUE>"}

	_, err := PlanParallel(task, cfg)
	assert.ErrorIs(t, err, ErrTemplate)
}

func TestSubmitJobs_StagesAndSubmits(t *testing.T) {
	// GIVEN a test_suite tree with an input deck
	root := t.TempDir()
	layout := Layout{Root: root, Platform: "dane", Version: "0.11.0"}
	testutil.WriteFile(t, layout.EngineDir("azurv1", EngineMCDC), "input.py", "print('azurv1')\n")
	task := SerialTask{"azurv1": {MCDC: map[string]map[string]Sweep{"analog": {"python": {LogNMin: 2, LogNMax: 3, NRuns: 2}}}}}
	cfg := SubmitConfig{Layout: layout, Platform: DefaultPlatforms()["dane"], Template: testutil.SlurmTemplate}
	jobs, err := PlanSerial(task, cfg)
	require.NoError(t, err)

	// WHEN the jobs are submitted
	r := &fakeRunner{}
	s := NewSubmitter(r, cfg.Platform, false)
	require.NoError(t, SubmitJobs(context.Background(), jobs, layout, s))

	// THEN the input deck and job file sit in the run directory
	runDir := layout.SerialRunDir("azurv1", "analog", "python")
	assert.FileExists(t, filepath.Join(runDir, "input.py"))
	assert.FileExists(t, filepath.Join(runDir, "submit.pbs"))
	converter, err := os.ReadFile(filepath.Join(runDir, ConverterFile))
	require.NoError(t, err)
	assert.Contains(t, string(converter), "h5py")
	require.Len(t, r.calls, 1)
	assert.Equal(t, runDir, r.calls[0].Dir)
}

func TestSubmitJobs_MissingInputsStillSubmits(t *testing.T) {
	layout := Layout{Root: t.TempDir(), Platform: "dane"}
	task := SerialTask{"p": {MCDC: map[string]map[string]Sweep{"analog": {"python": {LogNMin: 2, LogNMax: 3, NRuns: 2}}}}}
	cfg := SubmitConfig{Layout: layout, Platform: DefaultPlatforms()["dane"], Template: testutil.SlurmTemplate}
	jobs, err := PlanSerial(task, cfg)
	require.NoError(t, err)

	r := &fakeRunner{}
	require.NoError(t, SubmitJobs(context.Background(), jobs, layout, NewSubmitter(r, cfg.Platform, false)))
	assert.Len(t, r.calls, 1)
}

func TestSubmitJobs_UnwritableRunDirStopsPass(t *testing.T) {
	// GIVEN a run directory path blocked by a regular file
	layout := Layout{Root: t.TempDir(), Platform: "dane"}
	blocker := testutil.WriteFile(t, t.TempDir(), "blocker", "x")

	// WHEN the job is submitted
	r := &fakeRunner{}
	err := SubmitJobs(context.Background(), []JobRecord{testJob(blocker, "submit.pbs")}, layout, NewSubmitter(r, DefaultPlatforms()["dane"], false))

	// THEN the pass stops before the scheduler is called
	assert.Error(t, err)
	assert.Empty(t, r.calls)
}

func TestSubmitJobs_CancelledContext(t *testing.T) {
	layout := Layout{Root: t.TempDir(), Platform: "dane"}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := SubmitJobs(ctx, []JobRecord{testJob(t.TempDir(), "submit.pbs")}, layout, NewSubmitter(&fakeRunner{}, DefaultPlatforms()["dane"], false))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestWriteMachineSpec(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "results")
	spec := CollectMachineSpec("dane", "inv")

	require.NoError(t, WriteMachineSpec(dir, spec))

	data, err := os.ReadFile(filepath.Join(dir, MachineSpecFile))
	require.NoError(t, err)
	assert.Contains(t, string(data), "platform: dane")
	assert.Contains(t, string(data), "invocation: inv")
	assert.Positive(t, spec.CPUs)
}

func TestLayout_Paths(t *testing.T) {
	l := Layout{Root: "/r", Platform: "lassen", Version: "0.11.0"}
	assert.Equal(t, "/r/task-serial.yaml", l.TaskPath(PhaseSerial))
	assert.Equal(t, "/r/template-lsf.pbs", l.TemplatePath(SchedulerLSF))
	assert.Equal(t, "/r/test_suite/shem361/openmc/output/serial-lassen", l.BaselineRunDir("shem361"))
	assert.Equal(t, "/r/0.11.0/parallel/lassen", l.ResultsDir(PhaseParallel))
	assert.Equal(t, "/r/test_suite/p/mcdc/output/parallel-lassen-m-gpu-node_8",
		l.RunDir(Batch{Phase: PhaseParallel, Problem: "p", Method: "m", Mode: "gpu", Nodes: 8}))
}
