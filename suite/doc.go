// Package suite provides the write phase of the MC/DC performance test suite:
// sweep enumeration, job templating and job submission.
//
// # Reading Guide
//
//   - task.go: serial and parallel task specs (problem → method → mode → sweep)
//   - platform.go: platform profiles (scheduler family, node and time ceilings)
//   - enumerate.go: expansion of a task entry into run descriptors and batches
//   - template.go: scheduler template rendering and command blocks
//   - submit.go: external-process runner and fire-and-forget submission
//   - pipeline.go: plan-then-submit orchestration for a whole task file
//
// The read phase lives in sub-packages:
//   - suite/artifact/: timing artifact lookup (named scalars)
//   - suite/reduce/: truncate-on-missing reduction and tracking-rate metrics
//   - suite/record/: the per-invocation record and its sinks (yaml, bench, sqlite)
//   - suite/chart/: runtime and tracking-rate plots
//   - suite/process/: reduction of a whole serial task file into a record
//
// The two phases share nothing but the filesystem layout described in layout.go.
package suite
