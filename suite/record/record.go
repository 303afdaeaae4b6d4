// Package record assembles the per-invocation metrics record and writes it
// to one or more sinks.
package record

import (
	"cmp"
	"slices"

	"github.com/mcdc-perf/perfsuite/suite"
	"github.com/mcdc-perf/perfsuite/suite/reduce"
)

// EngineLabel returns the label an engine is listed under in record.yaml.
func EngineLabel(engine string) string {
	switch engine {
	case suite.EngineMCDC:
		return "MC/DC"
	case suite.EngineOpenMC:
		return "OpenMC"
	}
	return engine
}

// Key locates one sweep in the record. The baseline engine has no method or
// mode and leaves both empty.
type Key struct {
	Problem string
	Engine  string
	Method  string
	Mode    string
}

// Metrics are the reduced values of one sweep.
type Metrics struct {
	// TrackingRate is the last available rate, compile-corrected for modes
	// that carry a compile cost.
	TrackingRate reduce.Rate `yaml:"tracking_rate"`
	// RawTrackingRate is the uncorrected rate; set only for corrected modes.
	RawTrackingRate *reduce.Rate `yaml:"raw_tracking_rate,omitempty"`
	CompileTime     *float64     `yaml:"compile_time,omitempty"`
	PlannedRuns     int          `yaml:"planned_runs"`
	CompletedRuns   int          `yaml:"completed_runs"`
	// RuntimePhases is the baseline engine's per-phase wall time, in
	// seconds, for its last completed run.
	RuntimePhases map[string]float64 `yaml:"runtime_phases,omitempty"`
	// Error is set when the sweep could not be reduced.
	Error string `yaml:"error,omitempty"`
}

// FromSweep converts a reduction into record metrics.
func FromSweep(res reduce.SweepResult) Metrics {
	m := Metrics{
		TrackingRate:  res.TrackingRate,
		PlannedRuns:   len(res.Planned),
		CompletedRuns: res.Imax(),
	}
	if res.Corrected {
		raw := res.TrackingRate
		m.RawTrackingRate = &raw
		m.TrackingRate = res.CorrectedTrackingRate
		if res.Imax() > 0 {
			compile := res.CompileTime
			m.CompileTime = &compile
		}
	}
	return m
}

// Failed returns metrics for a sweep whose reduction failed.
func Failed(planned int, err error) Metrics {
	return Metrics{PlannedRuns: planned, Error: err.Error()}
}

// Entry is one sweep of the record.
type Entry struct {
	Key     Key
	Metrics Metrics
}

// Builder collects entries during one invocation.
type Builder struct {
	metrics map[Key]Metrics
}

// NewBuilder returns an empty builder.
func NewBuilder() *Builder {
	return &Builder{metrics: make(map[Key]Metrics)}
}

// Add stores the metrics of a sweep, replacing any earlier entry for the key.
func (b *Builder) Add(k Key, m Metrics) {
	b.metrics[k] = m
}

// Build returns the record with entries in problem, engine, method, mode order.
func (b *Builder) Build() Record {
	entries := make([]Entry, 0, len(b.metrics))
	for k, m := range b.metrics {
		entries = append(entries, Entry{Key: k, Metrics: m})
	}
	slices.SortFunc(entries, func(a, b Entry) int {
		return cmp.Or(
			cmp.Compare(a.Key.Problem, b.Key.Problem),
			cmp.Compare(a.Key.Engine, b.Key.Engine),
			cmp.Compare(a.Key.Method, b.Key.Method),
			cmp.Compare(a.Key.Mode, b.Key.Mode),
		)
	})
	return Record{entries: entries}
}

// Record is the immutable result of one reduction pass.
type Record struct {
	entries []Entry
}

// Entries returns the sorted entries.
func (r Record) Entries() []Entry {
	return slices.Clone(r.entries)
}

// Len returns the number of entries.
func (r Record) Len() int {
	return len(r.entries)
}

// Get returns the metrics for a key.
func (r Record) Get(k Key) (Metrics, bool) {
	for _, e := range r.entries {
		if e.Key == k {
			return e.Metrics, true
		}
	}
	return Metrics{}, false
}

// MarshalYAML nests entries as problem → engine label → method → mode.
// Entries without a method are placed directly under the engine label.
func (r Record) MarshalYAML() (any, error) {
	out := map[string]map[string]any{}
	for _, e := range r.entries {
		engines, ok := out[e.Key.Problem]
		if !ok {
			engines = map[string]any{}
			out[e.Key.Problem] = engines
		}
		label := EngineLabel(e.Key.Engine)
		if e.Key.Method == "" {
			engines[label] = e.Metrics
			continue
		}
		methods, ok := engines[label].(map[string]map[string]Metrics)
		if !ok {
			methods = map[string]map[string]Metrics{}
			engines[label] = methods
		}
		if methods[e.Key.Method] == nil {
			methods[e.Key.Method] = map[string]Metrics{}
		}
		methods[e.Key.Method][e.Key.Mode] = e.Metrics
	}
	return out, nil
}
