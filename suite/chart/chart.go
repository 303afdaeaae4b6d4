// Package chart renders runtime and tracking-rate plots of reduced sweeps.
package chart

import (
	"errors"
	"fmt"
	"math"
	"path/filepath"

	"github.com/mcdc-perf/perfsuite/suite/reduce"
	"github.com/sirupsen/logrus"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
)

// ErrNoData is returned when a figure has no point that can be drawn.
var ErrNoData = errors.New("no plottable points")

// Series is one line of a figure. X holds source particle counts
// (N × batches); Runtime and Rate are aligned with X.
type Series struct {
	Label     string
	X         []float64
	Runtime   []float64
	Rate      []reduce.Rate
	Corrected bool
}

// Figure groups the series of one (problem, method) pair.
type Figure struct {
	Problem string
	Method  string
	Series  []Series
}

// SeriesFromSweep returns the series for one mode: its raw values and, when
// the sweep was compile-corrected, a second "w/o comp." series.
func SeriesFromSweep(label string, res reduce.SweepResult, batches int) []Series {
	if batches == 0 {
		batches = reduce.DefaultBatches
	}
	x := make([]float64, len(res.Samples))
	runtime := make([]float64, len(res.Samples))
	for i, s := range res.Samples {
		x[i] = float64(s.N) * float64(batches)
		runtime[i] = s.Wall
	}
	out := []Series{{Label: label, X: x, Runtime: runtime, Rate: res.Rates}}
	if res.Corrected && len(res.CorrectedRuntimes) > 0 {
		out = append(out, Series{
			Label:     label + " (w/o comp.)",
			X:         x,
			Runtime:   res.CorrectedRuntimes,
			Rate:      res.CorrectedRates,
			Corrected: true,
		})
	}
	return out
}

// RuntimeFile names the runtime plot of a figure.
func RuntimeFile(problem, method string) string {
	return fmt.Sprintf("%s-%s-runtime.png", problem, method)
}

// RateFile names the tracking-rate plot of a figure.
func RateFile(problem, method string) string {
	return fmt.Sprintf("%s-%s-tracking_rate.png", problem, method)
}

// Render writes the runtime and tracking-rate plots of fig into dir and
// returns the paths written. Points that cannot sit on a log axis are left out.
func Render(dir string, fig Figure) ([]string, error) {
	var written []string

	runtime := newPlot("Runtime [s]", true)
	n, err := addSeries(runtime, fig.Series, func(s Series, i int) (float64, bool) {
		return s.Runtime[i], s.Runtime[i] > 0
	}, true)
	if err != nil {
		return nil, err
	}
	if n > 0 {
		path := filepath.Join(dir, RuntimeFile(fig.Problem, fig.Method))
		if err := runtime.Save(4*vg.Inch, 3*vg.Inch, path); err != nil {
			return written, fmt.Errorf("saving %s: %w", path, err)
		}
		written = append(written, path)
	}

	rate := newPlot("Tracking rate [kparticles/s]", false)
	n, err = addSeries(rate, fig.Series, func(s Series, i int) (float64, bool) {
		if i >= len(s.Rate) {
			return 0, false
		}
		return s.Rate[i].Value, s.Rate[i].Valid
	}, false)
	if err != nil {
		return written, err
	}
	if n > 0 {
		path := filepath.Join(dir, RateFile(fig.Problem, fig.Method))
		if err := rate.Save(4*vg.Inch, 3*vg.Inch, path); err != nil {
			return written, fmt.Errorf("saving %s: %w", path, err)
		}
		written = append(written, path)
	}

	if len(written) == 0 {
		return nil, fmt.Errorf("%s/%s: %w", fig.Problem, fig.Method, ErrNoData)
	}
	return written, nil
}

func newPlot(yLabel string, logY bool) *plot.Plot {
	p := plot.New()
	p.X.Label.Text = "Number of source particles"
	p.Y.Label.Text = yLabel
	p.X.Scale = plot.LogScale{}
	p.X.Tick.Marker = plot.LogTicks{Prec: -1}
	if logY {
		p.Y.Scale = plot.LogScale{}
		p.Y.Tick.Marker = plot.LogTicks{Prec: -1}
	}
	p.Legend.Top = true
	p.Legend.Left = true
	p.Add(plotter.NewGrid())
	return p
}

// addSeries adds one line per series and returns the number of points drawn.
func addSeries(p *plot.Plot, series []Series, value func(Series, int) (float64, bool), logY bool) (int, error) {
	total := 0
	for i, s := range series {
		var xys plotter.XYs
		for j, x := range s.X {
			y, ok := value(s, j)
			if !ok || x <= 0 || math.IsNaN(y) || math.IsInf(y, 0) || (logY && y <= 0) {
				continue
			}
			xys = append(xys, plotter.XY{X: x, Y: y})
		}
		if len(xys) == 0 {
			logrus.Debugf("Series %q has no plottable points", s.Label)
			continue
		}
		line, points, err := plotter.NewLinePoints(xys)
		if err != nil {
			return 0, fmt.Errorf("series %q: %w", s.Label, err)
		}
		line.Color = plotutil.Color(i)
		points.Color = plotutil.Color(i)
		points.Shape = plotutil.Shape(i)
		if s.Corrected {
			line.Dashes = plotutil.Dashes(1)
		}
		p.Add(line, points)
		p.Legend.Add(s.Label, line, points)
		total += len(xys)
	}
	if total > 0 {
		padLogRange(&p.X.Min, &p.X.Max)
		if logY {
			padLogRange(&p.Y.Min, &p.Y.Max)
		}
	}
	return total, nil
}

// padLogRange widens a degenerate axis range so a single point can be drawn.
func padLogRange(lo, hi *float64) {
	if *lo == *hi {
		*lo /= 2
		*hi *= 2
	}
}
