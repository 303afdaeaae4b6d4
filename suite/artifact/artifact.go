// Package artifact reads the timing artifacts left behind by completed runs.
//
// A timing artifact is a small YAML document of named scalars written next to
// a run's output, e.g. output_1000-runtime.yaml:
//
//	simulation: 18.0
//
// Every generated job converts the engine's output_1000-runtime.h5 into this
// form right after the run, so the reader never touches HDF5.
//
// Nested mappings are addressed with "/"-joined names, so the baseline engine's
// artifact is read with names such as "runtime/simulation".
package artifact

import (
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Suffix is appended to an output tag to name its timing artifact.
const Suffix = "-runtime.yaml"

// EngineSuffix is appended to an output tag to name the HDF5 runtime file the
// engine writes with --runtime_output. Jobs convert it into the artifact.
const EngineSuffix = "-runtime.h5"

// Field names read by the reducer.
const (
	FieldSimulation         = "simulation"
	FieldBaselineSimulation = "runtime/simulation"
)

// BaselinePhases are the runtime phases recorded by the baseline engine.
var BaselinePhases = []string{
	"runtime/accumulating tallies",
	"runtime/active batches",
	"runtime/reading cross sections",
	"runtime/simulation",
	"runtime/total",
	"runtime/total initialization",
	"runtime/transport",
	"runtime/writing statepoints",
}

var (
	// ErrMissingField is returned when an artifact exists but lacks a field.
	ErrMissingField = errors.New("field not found")
	// ErrNotScalar is returned when a field exists but is not a finite number.
	ErrNotScalar = errors.New("field is not a finite scalar")
	// ErrUnreadable is returned when an artifact exists but cannot be parsed.
	ErrUnreadable = errors.New("artifact unreadable")
)

// Path returns the timing artifact path for an output tag inside dir.
func Path(dir, tag string) string {
	return filepath.Join(dir, tag+Suffix)
}

// Reader looks up timing artifacts.
type Reader interface {
	// Exists reports whether the artifact is present. A missing artifact is
	// not an error; any other failure to stat it is.
	Exists(path string) (bool, error)
	// ReadScalar reads one named scalar from an artifact.
	ReadScalar(path, name string) (float64, error)
}

// YAMLReader reads YAML timing artifacts from the local filesystem.
type YAMLReader struct{}

// Exists stats path.
func (YAMLReader) Exists(path string) (bool, error) {
	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("stat %s: %w", path, err)
	}
	if info.IsDir() {
		return false, fmt.Errorf("%s: %w: is a directory", path, ErrUnreadable)
	}
	return true, nil
}

// ReadScalar parses the artifact and resolves name.
func (YAMLReader) ReadScalar(path, name string) (float64, error) {
	doc, err := load(path)
	if err != nil {
		return 0, err
	}
	return lookup(doc, path, name)
}

func load(path string) (*yaml.Node, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %v", path, ErrUnreadable, err)
	}
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%s: %w: %v", path, ErrUnreadable, err)
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 {
		return nil, fmt.Errorf("%s: %w: empty document", path, ErrUnreadable)
	}
	return doc.Content[0], nil
}

func lookup(root *yaml.Node, path, name string) (float64, error) {
	node := root
	for _, part := range strings.Split(name, "/") {
		if node.Kind != yaml.MappingNode {
			return 0, fmt.Errorf("%s: %w: %q", path, ErrMissingField, name)
		}
		var next *yaml.Node
		for i := 0; i+1 < len(node.Content); i += 2 {
			if node.Content[i].Value == part {
				next = node.Content[i+1]
				break
			}
		}
		if next == nil {
			return 0, fmt.Errorf("%s: %w: %q", path, ErrMissingField, name)
		}
		node = next
	}
	// A one-element sequence is accepted as a scalar dataset.
	if node.Kind == yaml.SequenceNode && len(node.Content) == 1 {
		node = node.Content[0]
	}
	if node.Kind != yaml.ScalarNode {
		return 0, fmt.Errorf("%s: %w: %q", path, ErrNotScalar, name)
	}
	v, err := strconv.ParseFloat(node.Value, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("%s: %w: %q = %q", path, ErrNotScalar, name, node.Value)
	}
	return v, nil
}
