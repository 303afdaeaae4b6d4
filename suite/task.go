package suite

import (
	"bytes"
	"fmt"
	"maps"
	"math"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// Engine names as they appear in task files and in the test_suite tree.
const (
	EngineMCDC   = "mcdc"
	EngineOpenMC = "openmc"
)

// maxLogN bounds sweep exponents so particle counts fit in an int64.
const maxLogN = 18

// MaxNBase bounds a weak-scaling base count so that 2^power × nodes × N_base
// stays within an int64 for every default case and node count.
const MaxNBase = 1 << 40

// Sweep is a log-spaced particle-count sweep.
type Sweep struct {
	LogNMin float64 `yaml:"logN_min"`
	LogNMax float64 `yaml:"logN_max"`
	NRuns   int     `yaml:"N_runs"`
}

// Validate checks the sweep invariants: N_runs >= 1 and logN_max >= logN_min.
func (s Sweep) Validate() error {
	if s.NRuns < 1 {
		return fmt.Errorf("N_runs must be at least 1, got %d", s.NRuns)
	}
	if math.IsNaN(s.LogNMin) || math.IsNaN(s.LogNMax) || math.IsInf(s.LogNMin, 0) || math.IsInf(s.LogNMax, 0) {
		return fmt.Errorf("logN bounds must be finite, got [%v, %v]", s.LogNMin, s.LogNMax)
	}
	if s.LogNMax < s.LogNMin {
		return fmt.Errorf("logN_max (%v) must not be below logN_min (%v)", s.LogNMax, s.LogNMin)
	}
	if s.LogNMin < 0 || s.LogNMax > maxLogN {
		return fmt.Errorf("logN bounds must lie in [0, %d], got [%v, %v]", maxLogN, s.LogNMin, s.LogNMax)
	}
	return nil
}

// ModeTraits describes what an execution mode needs from a platform, whether
// its runs carry a one-time compilation cost and whether it takes part in
// weak-scaling (parallel) sweeps.
type ModeTraits struct {
	RequiresAccelerator bool
	CompileCost         bool
	Distributed         bool
}

// modeRegistry is the closed set of MC/DC execution modes. Only numba runs
// across MPI ranks in the parallel phase.
var modeRegistry = map[string]ModeTraits{
	"python": {},
	"numba":  {CompileCost: true, Distributed: true},
	"gpu":    {RequiresAccelerator: true, CompileCost: true},
}

// LookupMode returns the traits of a registered execution mode.
func LookupMode(name string) (ModeTraits, bool) {
	t, ok := modeRegistry[name]
	return t, ok
}

// ProblemTask is one problem entry of a serial task file.
// MCDC maps method → mode → sweep; OpenMC is the baseline sweep, if any.
type ProblemTask struct {
	MCDC   map[string]map[string]Sweep `yaml:"mcdc"`
	OpenMC *Sweep                      `yaml:"openmc,omitempty"`
}

// SerialTask maps problem name to its sweeps.
type SerialTask map[string]ProblemTask

// ParallelProblem is one problem entry of a parallel task file.
// MCDC maps method → mode → per-node base particle count.
type ParallelProblem struct {
	MCDC map[string]map[string]int64 `yaml:"mcdc"`
}

// ParallelTask maps problem name to its weak-scaling entries.
type ParallelTask map[string]ParallelProblem

// LoadSerialTask reads and validates a serial task file.
// Uses strict parsing: unrecognized keys (typos) are rejected.
func LoadSerialTask(path string) (SerialTask, error) {
	var task SerialTask
	if err := decodeStrict(path, &task); err != nil {
		return nil, err
	}
	if err := task.Validate(); err != nil {
		return nil, err
	}
	return task, nil
}

// LoadParallelTask reads and validates a parallel task file.
func LoadParallelTask(path string) (ParallelTask, error) {
	var task ParallelTask
	if err := decodeStrict(path, &task); err != nil {
		return nil, err
	}
	if err := task.Validate(); err != nil {
		return nil, err
	}
	return task, nil
}

func decodeStrict(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading task spec: %w", err)
	}
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(out); err != nil {
		return fmt.Errorf("%w: parsing %s: %v", ErrInvalidTask, path, err)
	}
	return nil
}

// Validate checks every sweep and mode name in the task.
func (t SerialTask) Validate() error {
	if len(t) == 0 {
		return fmt.Errorf("%w: no problems defined", ErrInvalidTask)
	}
	for _, problem := range SortedKeys(t) {
		if problem == "" {
			return fmt.Errorf("%w: empty problem name", ErrInvalidTask)
		}
		p := t[problem]
		if len(p.MCDC) == 0 && p.OpenMC == nil {
			return fmt.Errorf("%w: problem %q defines no engine", ErrInvalidTask, problem)
		}
		for _, method := range SortedKeys(p.MCDC) {
			if err := validateModes(problem, method, p.MCDC[method]); err != nil {
				return err
			}
			for _, mode := range SortedKeys(p.MCDC[method]) {
				if err := p.MCDC[method][mode].Validate(); err != nil {
					return fmt.Errorf("%w: %s/mcdc/%s/%s: %v", ErrInvalidTask, problem, method, mode, err)
				}
			}
		}
		if p.OpenMC != nil {
			if err := p.OpenMC.Validate(); err != nil {
				return fmt.Errorf("%w: %s/openmc: %v", ErrInvalidTask, problem, err)
			}
		}
	}
	return nil
}

// Validate checks every base particle count and mode name in the task.
func (t ParallelTask) Validate() error {
	if len(t) == 0 {
		return fmt.Errorf("%w: no problems defined", ErrInvalidTask)
	}
	for _, problem := range SortedKeys(t) {
		if problem == "" {
			return fmt.Errorf("%w: empty problem name", ErrInvalidTask)
		}
		p := t[problem]
		if len(p.MCDC) == 0 {
			return fmt.Errorf("%w: problem %q defines no mcdc methods", ErrInvalidTask, problem)
		}
		for _, method := range SortedKeys(p.MCDC) {
			if err := validateModes(problem, method, p.MCDC[method]); err != nil {
				return err
			}
			for _, mode := range SortedKeys(p.MCDC[method]) {
				if !modeRegistry[mode].Distributed {
					return fmt.Errorf("%w: %s/mcdc/%s: mode %q does not run in parallel sweeps",
						ErrInvalidTask, problem, method, mode)
				}
				if err := validateNBase(p.MCDC[method][mode]); err != nil {
					return fmt.Errorf("%w: %s/mcdc/%s/%s: %v", ErrInvalidTask, problem, method, mode, err)
				}
			}
		}
	}
	return nil
}

func validateNBase(base int64) error {
	if base < 1 || base > MaxNBase {
		return fmt.Errorf("N_base must lie in [1, %d], got %d", int64(MaxNBase), base)
	}
	return nil
}

func validateModes[V any](problem, method string, modes map[string]V) error {
	if method == "" {
		return fmt.Errorf("%w: %s: empty method name", ErrInvalidTask, problem)
	}
	if len(modes) == 0 {
		return fmt.Errorf("%w: %s/mcdc/%s: no modes defined", ErrInvalidTask, problem, method)
	}
	for mode := range modes {
		if _, ok := modeRegistry[mode]; !ok {
			return fmt.Errorf("%w: %s/mcdc/%s: unknown mode %q; valid: %v",
				ErrInvalidTask, problem, method, mode, SortedKeys(modeRegistry))
		}
	}
	return nil
}

// SortedKeys returns map keys in ascending order. Task iteration always goes
// through it so the nested problem/method/mode order is fixed.
func SortedKeys[V any](m map[string]V) []string {
	return slices.Sorted(maps.Keys(m))
}
