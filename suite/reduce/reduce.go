// Package reduce turns the timing artifacts of a completed sweep into
// runtimes and tracking rates.
package reduce

import (
	"fmt"
	"math"

	"github.com/mcdc-perf/perfsuite/suite"
	"github.com/mcdc-perf/perfsuite/suite/artifact"
	"github.com/sirupsen/logrus"
)

// DefaultBatches is the number of batches every run simulates.
const DefaultBatches = 10

// Rate is a tracking rate in kparticles/s. An invalid rate has no value:
// the sweep produced no data, or the runtime left after removing the
// compile time was not positive.
type Rate struct {
	Value float64
	Valid bool
}

// ValidRate wraps a computed rate.
func ValidRate(v float64) Rate {
	return Rate{Value: v, Valid: true}
}

// String renders the rate for logs.
func (r Rate) String() string {
	if !r.Valid {
		return "invalid"
	}
	return fmt.Sprintf("%.4g", r.Value)
}

// MarshalYAML writes invalid rates as the string "invalid".
func (r Rate) MarshalYAML() (any, error) {
	if !r.Valid {
		return "invalid", nil
	}
	return r.Value, nil
}

// Sample is one completed run: its particle count and wall time in seconds.
type Sample struct {
	N    int64
	Wall float64
}

// Options controls one reduction.
type Options struct {
	// Batches multiplies N in the rate formula; zero means DefaultBatches.
	Batches int
	// Field is the artifact scalar holding the wall time.
	Field string
	// CompileCost enables the compile-time correction.
	CompileCost bool
	// CompileTime is the known compile time; nil falls back to the minimum
	// wall time of the completed prefix.
	CompileTime *float64

	// Labels for the per-sample debug log.
	Problem  string
	Platform string
	Method   string
	Mode     string
}

// SweepResult is the reduction of one sweep.
type SweepResult struct {
	Planned []int64
	Samples []Sample
	Rates   []Rate
	// TrackingRate is the rate of the last completed run.
	TrackingRate Rate

	// Compile-corrected values; set only when Options.CompileCost is true.
	Corrected             bool
	CompileTime           float64
	CompileTimeEstimated  bool
	CorrectedRuntimes     []float64
	CorrectedRates        []Rate
	CorrectedTrackingRate Rate
}

// Imax is the number of leading runs whose artifacts exist.
func (r SweepResult) Imax() int {
	return len(r.Samples)
}

// Reduce reads the timing artifacts of a sweep from dir. Artifacts are checked
// in the order of counts and the first missing one ends the sweep; later
// artifacts are ignored even if present. A present but unreadable artifact
// fails the sweep.
func Reduce(r artifact.Reader, dir string, counts []int64, opts Options) (SweepResult, error) {
	batches := opts.Batches
	if batches == 0 {
		batches = DefaultBatches
	}
	if batches < 1 {
		return SweepResult{}, fmt.Errorf("batches must be positive, got %d", batches)
	}
	field := opts.Field
	if field == "" {
		field = artifact.FieldSimulation
	}

	res := SweepResult{Planned: counts}
	for _, n := range counts {
		path := artifact.Path(dir, suite.SerialOutputTag(n))
		ok, err := r.Exists(path)
		if err != nil {
			return SweepResult{}, err
		}
		if !ok {
			break
		}
		wall, err := r.ReadScalar(path, field)
		if err != nil {
			return SweepResult{}, err
		}
		logrus.Debugf("Sample %s %s %s %s N=%d wall=%g", opts.Problem, opts.Platform, opts.Method, opts.Mode, n, wall)
		res.Samples = append(res.Samples, Sample{N: n, Wall: wall})
		res.Rates = append(res.Rates, rate(batches, n, wall))
	}
	if n := len(res.Rates); n > 0 {
		res.TrackingRate = res.Rates[n-1]
	}
	if len(res.Samples) < len(counts) {
		logrus.Infof("Sweep %s/%s/%s truncated at %d of %d runs", opts.Problem, opts.Method, opts.Mode, len(res.Samples), len(counts))
	}

	if opts.CompileCost {
		correct(&res, batches, opts.CompileTime)
	}
	return res, nil
}

func correct(res *SweepResult, batches int, known *float64) {
	res.Corrected = true
	switch {
	case known != nil:
		res.CompileTime = *known
	case len(res.Samples) > 0:
		res.CompileTimeEstimated = true
		res.CompileTime = res.Samples[0].Wall
		for _, s := range res.Samples[1:] {
			res.CompileTime = math.Min(res.CompileTime, s.Wall)
		}
	default:
		return
	}
	res.CorrectedRuntimes = make([]float64, len(res.Samples))
	res.CorrectedRates = make([]Rate, len(res.Samples))
	for i, s := range res.Samples {
		rt := s.Wall - res.CompileTime
		res.CorrectedRuntimes[i] = rt
		res.CorrectedRates[i] = rate(batches, s.N, rt)
	}
	if n := len(res.CorrectedRates); n > 0 {
		res.CorrectedTrackingRate = res.CorrectedRates[n-1]
	}
}

// rate is batches × N / wall × 1e-3 kparticles/s.
func rate(batches int, n int64, wall float64) Rate {
	if wall <= 0 || math.IsNaN(wall) || math.IsInf(wall, 0) {
		return Rate{}
	}
	return ValidRate(float64(batches) * float64(n) / wall * 1e-3)
}
