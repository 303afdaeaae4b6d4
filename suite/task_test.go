package suite

import (
	"path/filepath"
	"testing"

	"github.com/mcdc-perf/perfsuite/suite/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const serialTaskYAML = `
azurv1:
  mcdc:
    analog:
      python: {logN_min: 2, logN_max: 4, N_runs: 3}
      numba: {logN_min: 3, logN_max: 6, N_runs: 4}
  openmc: {logN_min: 2, logN_max: 5, N_runs: 4}
pincell:
  mcdc:
    analog:
      numba: {logN_min: 2, logN_max: 2, N_runs: 1}
`

func TestLoadSerialTask_ValidFile(t *testing.T) {
	// GIVEN a well-formed serial task file
	path := testutil.WriteFile(t, t.TempDir(), "task-serial.yaml", serialTaskYAML)

	// WHEN it is loaded
	task, err := LoadSerialTask(path)

	// THEN the nested sweeps are decoded
	require.NoError(t, err)
	assert.Equal(t, []string{"azurv1", "pincell"}, SortedKeys(task))
	assert.Equal(t, Sweep{LogNMin: 3, LogNMax: 6, NRuns: 4}, task["azurv1"].MCDC["analog"]["numba"])
	require.NotNil(t, task["azurv1"].OpenMC)
	assert.Equal(t, 4, task["azurv1"].OpenMC.NRuns)
	assert.Nil(t, task["pincell"].OpenMC)
}

func TestLoadSerialTask_Rejects(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"unknown sweep key", "p:\n  mcdc:\n    analog:\n      python: {logN_min: 2, logN_max: 4, N_runs: 3, seed: 1}\n"},
		{"unknown engine key", "p:\n  serpent: {}\n"},
		{"unknown mode", "p:\n  mcdc:\n    analog:\n      cuda: {logN_min: 2, logN_max: 4, N_runs: 3}\n"},
		{"zero runs", "p:\n  mcdc:\n    analog:\n      python: {logN_min: 2, logN_max: 4, N_runs: 0}\n"},
		{"inverted bounds", "p:\n  mcdc:\n    analog:\n      python: {logN_min: 5, logN_max: 4, N_runs: 3}\n"},
		{"exponent too large", "p:\n  mcdc:\n    analog:\n      python: {logN_min: 2, logN_max: 19, N_runs: 3}\n"},
		{"no modes", "p:\n  mcdc:\n    analog: {}\n"},
		{"no engines", "p: {}\n"},
		{"empty file", ""},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			path := testutil.WriteFile(t, t.TempDir(), "task-serial.yaml", tc.content)
			_, err := LoadSerialTask(path)
			assert.ErrorIs(t, err, ErrInvalidTask)
		})
	}
}

func TestLoadSerialTask_MissingFile(t *testing.T) {
	_, err := LoadSerialTask(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoadParallelTask(t *testing.T) {
	dir := t.TempDir()

	path := testutil.WriteFile(t, dir, "task-parallel.yaml", "kobayashi:\n  mcdc:\n    analog:\n      numba: 100000\n    implicit_capture:\n      numba: 1000\n")
	task, err := LoadParallelTask(path)
	require.NoError(t, err)
	assert.Equal(t, int64(100000), task["kobayashi"].MCDC["analog"]["numba"])
	assert.Equal(t, int64(1000), task["kobayashi"].MCDC["implicit_capture"]["numba"])
}

func TestLoadParallelTask_Rejects(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"zero base", "kobayashi:\n  mcdc:\n    analog:\n      numba: 0\n"},
		{"base over bound", "kobayashi:\n  mcdc:\n    analog:\n      numba: 2199023255553\n"},
		{"python mode", "kobayashi:\n  mcdc:\n    analog:\n      python: 1000\n"},
		{"gpu mode", "kobayashi:\n  mcdc:\n    analog:\n      gpu: 1000\n"},
		{"unknown mode", "kobayashi:\n  mcdc:\n    analog:\n      cuda: 1000\n"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			path := testutil.WriteFile(t, t.TempDir(), "task-parallel.yaml", tc.content)
			_, err := LoadParallelTask(path)
			assert.ErrorIs(t, err, ErrInvalidTask)
		})
	}
}

func TestSweepValidate_EqualBoundsAllowed(t *testing.T) {
	assert.NoError(t, Sweep{LogNMin: 3, LogNMax: 3, NRuns: 5}.Validate())
}

func TestLookupMode(t *testing.T) {
	numba, ok := LookupMode("numba")
	require.True(t, ok)
	assert.True(t, numba.CompileCost)
	assert.False(t, numba.RequiresAccelerator)
	assert.True(t, numba.Distributed)

	gpu, ok := LookupMode("gpu")
	require.True(t, ok)
	assert.True(t, gpu.RequiresAccelerator)
	assert.False(t, gpu.Distributed)

	_, ok = LookupMode("openmp")
	assert.False(t, ok)
}
