package suite

import (
	"fmt"
	"math"

	"github.com/sirupsen/logrus"
)

// Phase distinguishes the two kinds of sweeps the suite submits.
type Phase string

const (
	PhaseSerial   Phase = "serial"
	PhaseParallel Phase = "parallel"
)

// maxNodeCandidate is the largest node count ever considered.
const maxNodeCandidate = 1024

// DefaultSerialHours is the wall time requested for a serial sweep job.
const DefaultSerialHours = 12

// RunDescriptor is one concrete unit of work inside a job.
type RunDescriptor struct {
	Problem   string
	Method    string
	Mode      string
	Nodes     int
	Ranks     int // MPI ranks; 0 for serial runs
	Particles int64
	OutputTag string
}

// Case is a parallel submission batch: a wall-time budget and the
// power-of-two particle scale factors run inside it.
type Case struct {
	Name   string
	Hours  int
	Powers []int
}

// DefaultCases are the weak-scaling batches submitted per node count.
var DefaultCases = []Case{
	{Name: "case1", Hours: 3, Powers: []int{-4, -3, -2, -1, 0}},
	{Name: "case2", Hours: 3, Powers: []int{1}},
	{Name: "case3", Hours: 6, Powers: []int{2}},
	{Name: "case4", Hours: 12, Powers: []int{3}},
	{Name: "case5", Hours: 24, Powers: []int{4}},
}

// Batch is a group of runs sharing a node count and a wall-time request;
// it becomes exactly one job.
type Batch struct {
	Phase   Phase
	Problem string
	Method  string
	Mode    string
	Case    string // empty for serial batches
	Nodes   int
	Hours   int
	Runs    []RunDescriptor
}

// SerialOutputTag names the output of a serial run with n particles.
func SerialOutputTag(n int64) string {
	return fmt.Sprintf("output_%d", n)
}

// ParallelOutputTag names the output of a parallel run at a scale power.
func ParallelOutputTag(power int) string {
	return fmt.Sprintf("output_%d", power)
}

// LogSpacedCounts returns NRuns particle counts log-spaced (base 10) between
// 10^LogNMin and 10^LogNMax inclusive, each truncated to an integer.
// Duplicates produced by truncation are kept.
func LogSpacedCounts(s Sweep) []int64 {
	if s.NRuns < 1 {
		return nil
	}
	counts := make([]int64, s.NRuns)
	if s.NRuns == 1 {
		counts[0] = int64(math.Pow(10, s.LogNMin))
		return counts
	}
	step := (s.LogNMax - s.LogNMin) / float64(s.NRuns-1)
	for i := range counts {
		exp := s.LogNMin + float64(i)*step
		if i == len(counts)-1 {
			exp = s.LogNMax
		}
		counts[i] = int64(math.Pow(10, exp))
	}
	return counts
}

// NodeCounts returns the powers of two up to the node ceiling. Enumeration
// stops at the first candidate above the ceiling.
func NodeCounts(maxNodes int) []int {
	var nodes []int
	for n := 1; n <= maxNodeCandidate; n *= 2 {
		if n > maxNodes {
			break
		}
		nodes = append(nodes, n)
	}
	return nodes
}

// EnumerateSerial expands one serial sweep into its batch. The result is empty
// when the mode needs accelerators the platform lacks, or when the wall-time
// request exceeds the platform ceiling.
func EnumerateSerial(problem, method, mode string, sweep Sweep, p PlatformProfile, hours int) ([]Batch, error) {
	traits, ok := LookupMode(mode)
	if !ok {
		return nil, fmt.Errorf("%w: unknown mode %q", ErrInvalidTask, mode)
	}
	if err := sweep.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %s/%s/%s: %v", ErrInvalidTask, problem, method, mode, err)
	}
	if traits.RequiresAccelerator && !p.HasAccelerators() {
		logrus.Infof("Skipping %s/%s/%s: platform %s has no accelerators", problem, method, mode, p.Name)
		return nil, nil
	}
	if hours > p.MaxTimeHours {
		logrus.Warnf("Dropping serial batch %s/%s/%s: %dh exceeds %s limit of %dh",
			problem, method, mode, hours, p.Name, p.MaxTimeHours)
		return nil, nil
	}

	counts := LogSpacedCounts(sweep)
	runs := make([]RunDescriptor, len(counts))
	for i, n := range counts {
		runs[i] = RunDescriptor{
			Problem:   problem,
			Method:    method,
			Mode:      mode,
			Nodes:     1,
			Particles: n,
			OutputTag: SerialOutputTag(n),
		}
	}
	return []Batch{{
		Phase:   PhaseSerial,
		Problem: problem,
		Method:  method,
		Mode:    mode,
		Nodes:   1,
		Hours:   hours,
		Runs:    runs,
	}}, nil
}

// EnumerateParallel expands one weak-scaling entry into batches: for every
// node count up to the ceiling, one batch per case whose wall time fits.
// Each run uses 2^power × nodes × nBase particles on nodes × cores ranks.
func EnumerateParallel(problem, method, mode string, nBase int64, p PlatformProfile, cases []Case) ([]Batch, error) {
	traits, ok := LookupMode(mode)
	if !ok {
		return nil, fmt.Errorf("%w: unknown mode %q", ErrInvalidTask, mode)
	}
	if !traits.Distributed {
		return nil, fmt.Errorf("%w: %s/%s: mode %q does not run in parallel sweeps", ErrInvalidTask, problem, method, mode)
	}
	if err := validateNBase(nBase); err != nil {
		return nil, fmt.Errorf("%w: %s/%s/%s: %v", ErrInvalidTask, problem, method, mode, err)
	}

	var batches []Batch
	for _, nodes := range NodeCounts(p.MaxNodes) {
		ranks := nodes * p.CoresPerNode
		for _, c := range cases {
			if c.Hours > p.MaxTimeHours {
				logrus.Debugf("Dropping %s for %s/%s/%s on %d nodes: %dh exceeds %dh",
					c.Name, problem, method, mode, nodes, c.Hours, p.MaxTimeHours)
				continue
			}
			runs := make([]RunDescriptor, 0, len(c.Powers))
			for _, power := range c.Powers {
				f := math.Pow(2, float64(power)) * float64(nodes) * float64(nBase)
				if f >= math.MaxInt64 {
					return nil, fmt.Errorf("%w: %s/%s/%s %s: 2^%d × %d nodes × %d particles overflows",
						ErrInvalidTask, problem, method, mode, c.Name, power, nodes, nBase)
				}
				n := int64(f)
				if n < 1 {
					return nil, fmt.Errorf("%w: %s/%s/%s %s: 2^%d × %d nodes × %d particles truncates to zero",
						ErrInvalidTask, problem, method, mode, c.Name, power, nodes, nBase)
				}
				runs = append(runs, RunDescriptor{
					Problem:   problem,
					Method:    method,
					Mode:      mode,
					Nodes:     nodes,
					Ranks:     ranks,
					Particles: n,
					OutputTag: ParallelOutputTag(power),
				})
			}
			batches = append(batches, Batch{
				Phase:   PhaseParallel,
				Problem: problem,
				Method:  method,
				Mode:    mode,
				Case:    c.Name,
				Nodes:   nodes,
				Hours:   c.Hours,
				Runs:    runs,
			})
		}
	}
	return batches, nil
}
