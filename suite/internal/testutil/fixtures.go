// Package testutil provides shared test infrastructure for the suite packages:
// on-disk fixtures for task files, templates and timing artifacts, and
// assertion helpers.
package testutil

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"

	"github.com/mcdc-perf/perfsuite/suite/artifact"
)

// SlurmTemplate is a minimal scheduler template using every recognized token.
const SlurmTemplate = `#!/bin/bash
#SBATCH -N <N_NODE>
#SBATCH -J <JOB_NAME><CASE>
#SBATCH -t <TIME>

<COMMANDS>`

// WriteFile writes content to dir/name, creating dir, and returns the path.
func WriteFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatalf("Failed to create %s: %v", dir, err)
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write %s: %v", path, err)
	}
	return path
}

// WriteArtifact stores named scalars at path the way the job-side converter
// does. Names containing "/" become nested mappings.
func WriteArtifact(t *testing.T, path string, scalars map[string]float64) {
	t.Helper()
	root := map[string]any{}
	for name, v := range scalars {
		parts := strings.Split(name, "/")
		m := root
		for _, p := range parts[:len(parts)-1] {
			child, ok := m[p].(map[string]any)
			if !ok {
				child = map[string]any{}
				m[p] = child
			}
			m = child
		}
		m[parts[len(parts)-1]] = v
	}
	data, err := yaml.Marshal(root)
	if err != nil {
		t.Fatalf("Failed to marshal artifact: %v", err)
	}
	WriteFile(t, filepath.Dir(path), filepath.Base(path), string(data))
}

// WriteRuntime writes a timing artifact for output tag output_<n> holding the
// given scalars.
func WriteRuntime(t *testing.T, dir string, n int64, scalars map[string]float64) string {
	t.Helper()
	path := artifact.Path(dir, fmt.Sprintf("output_%d", n))
	WriteArtifact(t, path, scalars)
	return path
}

// WriteWalls writes one MC/DC timing artifact per entry of walls.
func WriteWalls(t *testing.T, dir string, walls map[int64]float64) {
	t.Helper()
	for n, wall := range walls {
		WriteRuntime(t, dir, n, map[string]float64{artifact.FieldSimulation: wall})
	}
}

// AssertFloat64Equal compares two float64 values with relative tolerance.
func AssertFloat64Equal(t *testing.T, name string, want, got, relTol float64) {
	t.Helper()
	if want == 0 && got == 0 {
		return
	}
	diff := math.Abs(want - got)
	maxVal := math.Max(math.Abs(want), math.Abs(got))
	if diff/maxVal > relTol {
		t.Errorf("%s: got %v, want %v (diff=%v, relDiff=%v)", name, got, want, diff, diff/maxVal)
	}
}
