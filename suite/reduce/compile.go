package reduce

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"maps"
	"math"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/mcdc-perf/perfsuite/suite"
)

// ErrInvalidCompileTime is returned for unusable compile-time table entries.
var ErrInvalidCompileTime = errors.New("invalid compile time")

// DefaultCompileMode is the mode a compile-time entry applies to when the
// entry names none.
const DefaultCompileMode = "numba"

// CompileKey identifies a measured compile time. Modes compile different
// kernels, so a numba measurement never stands in for gpu.
type CompileKey struct {
	Platform string
	Problem  string
	Method   string
	Mode     string
}

// CompileTable maps a (platform, problem, method, mode) key to seconds.
type CompileTable map[CompileKey]float64

// DefaultCompileTimes returns the measured compile times shipped with the suite.
func DefaultCompileTimes() CompileTable {
	return CompileTable{
		{Platform: "dane", Problem: "azurv1", Method: "analog", Mode: "numba"}:                     43.288844207,
		{Platform: "dane", Problem: "kobayashi", Method: "analog", Mode: "numba"}:                  55.095778819,
		{Platform: "dane", Problem: "kobayashi", Method: "implicit_capture", Mode: "numba"}:        55.052752989,
		{Platform: "dane", Problem: "kobayashi-coarse", Method: "analog", Mode: "numba"}:           43.325393946,
		{Platform: "dane", Problem: "kobayashi-coarse", Method: "implicit_capture", Mode: "numba"}: 43.353021065,
		{Platform: "dane", Problem: "shem361", Method: "analog", Mode: "numba"}:                    46.255581683,
		{Platform: "dane", Problem: "pincell", Method: "analog", Mode: "numba"}:                    44.184755025,
	}
}

// Lookup returns the compile time for a key, or nil when none is known.
func (t CompileTable) Lookup(k CompileKey) *float64 {
	v, ok := t[k]
	if !ok {
		return nil
	}
	return &v
}

type compileEntry struct {
	Platform string  `yaml:"platform"`
	Problem  string  `yaml:"problem"`
	Method   string  `yaml:"method"`
	Mode     string  `yaml:"mode"`
	Seconds  float64 `yaml:"seconds"`
}

// LoadCompileTimes reads a YAML list of compile-time entries and returns a
// copy of base with them added or replaced. Unknown keys are rejected, an
// omitted mode means DefaultCompileMode and an empty file adds nothing.
//
//	[{platform: dane, problem: azurv1, method: analog, seconds: 43.3},
//	 {platform: tioga, problem: azurv1, method: analog, mode: gpu, seconds: 12.0}]
func LoadCompileTimes(path string, base CompileTable) (CompileTable, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading compile times: %w", err)
	}
	var entries []compileEntry
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&entries); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parsing compile times %s: %w", path, err)
	}

	table := maps.Clone(base)
	if table == nil {
		table = make(CompileTable)
	}
	for i, e := range entries {
		if e.Platform == "" || e.Problem == "" || e.Method == "" {
			return nil, fmt.Errorf("%w: entry %d: incomplete key", ErrInvalidCompileTime, i)
		}
		if e.Mode == "" {
			e.Mode = DefaultCompileMode
		}
		if traits, ok := suite.LookupMode(e.Mode); !ok || !traits.CompileCost {
			return nil, fmt.Errorf("%w: entry %d: mode %q has no compile cost", ErrInvalidCompileTime, i, e.Mode)
		}
		if math.IsNaN(e.Seconds) || math.IsInf(e.Seconds, 0) || e.Seconds < 0 {
			return nil, fmt.Errorf("%w: entry %d (%s/%s/%s/%s): %v", ErrInvalidCompileTime, i, e.Platform, e.Problem, e.Method, e.Mode, e.Seconds)
		}
		table[CompileKey{Platform: e.Platform, Problem: e.Problem, Method: e.Method, Mode: e.Mode}] = e.Seconds
	}
	return table, nil
}
