package suite

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Command is an external process invocation.
type Command struct {
	Name string
	Args []string
	Dir  string
}

func (c Command) String() string {
	return strings.Join(append([]string{c.Name}, c.Args...), " ")
}

// Result is what an external process left behind.
type Result struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

// ErrExitStatus is wrapped when a process ran but exited non-zero.
var ErrExitStatus = errors.New("non-zero exit status")

// Runner runs external processes. Submission and version probing go through
// it so tests can substitute a recording fake.
type Runner interface {
	Run(ctx context.Context, cmd Command) (Result, error)
}

// ExecRunner runs commands with os/exec and waits for them to exit.
type ExecRunner struct{}

// Run starts the command in cmd.Dir and collects its output.
func (ExecRunner) Run(ctx context.Context, cmd Command) (Result, error) {
	c := exec.CommandContext(ctx, cmd.Name, cmd.Args...)
	c.Dir = cmd.Dir
	var stdout, stderr bytes.Buffer
	c.Stdout = &stdout
	c.Stderr = &stderr

	err := c.Run()
	res := Result{Stdout: stdout.String(), Stderr: stderr.String()}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		res.ExitCode = exitErr.ExitCode()
		return res, fmt.Errorf("%s: %w %d", cmd, ErrExitStatus, res.ExitCode)
	}
	if err != nil {
		return res, fmt.Errorf("running %s: %w", cmd, err)
	}
	return res, nil
}

// Submission outcomes recorded in the manifest.
const (
	StatusSubmitted = "submitted"
	StatusFailed    = "failed"
	StatusDryRun    = "dry-run"
)

// SubmissionEntry records what happened to one job file.
type SubmissionEntry struct {
	Job      string `yaml:"job"`
	File     string `yaml:"file"`
	Command  string `yaml:"command"`
	Status   string `yaml:"status"`
	ExitCode int    `yaml:"exit_code,omitempty"`
	Error    string `yaml:"error,omitempty"`
	Output   string `yaml:"output,omitempty"`
}

// Manifest lists every job of one submission pass.
type Manifest struct {
	Invocation string            `yaml:"invocation"`
	Platform   string            `yaml:"platform"`
	Phase      Phase             `yaml:"phase"`
	Summary    ManifestSummary   `yaml:"summary"`
	Jobs       []SubmissionEntry `yaml:"jobs"`
}

// ManifestSummary counts submission outcomes.
type ManifestSummary struct {
	Total     int `yaml:"total"`
	Submitted int `yaml:"submitted"`
	Failed    int `yaml:"failed"`
	DryRun    int `yaml:"dry_run"`
}

// Summarize counts the outcomes of a list of entries.
func Summarize(entries []SubmissionEntry) ManifestSummary {
	s := ManifestSummary{Total: len(entries)}
	for _, e := range entries {
		switch e.Status {
		case StatusSubmitted:
			s.Submitted++
		case StatusFailed:
			s.Failed++
		case StatusDryRun:
			s.DryRun++
		}
	}
	return s
}

// ManifestFile is the submission manifest written into the results directory.
const ManifestFile = "submissions.yaml"

// Submitter hands rendered jobs to the platform's submission command.
// Submission is fire-and-forget: the scheduler's own exit status is the only
// signal, failures are logged and recorded, and nothing is retried.
type Submitter struct {
	Runner   Runner
	Platform PlatformProfile
	DryRun   bool
	// ID identifies one submission pass.
	ID      string
	entries []SubmissionEntry
}

// NewSubmitter creates a Submitter with a fresh invocation ID.
func NewSubmitter(r Runner, p PlatformProfile, dryRun bool) *Submitter {
	return &Submitter{Runner: r, Platform: p, DryRun: dryRun, ID: uuid.NewString()}
}

// Submit writes the job file into job.Dir and invokes the submission command
// there. Only a failure to write the job file is returned; scheduler failures
// are recorded and the caller moves on to the next job.
func (s *Submitter) Submit(ctx context.Context, job JobRecord) error {
	if err := os.MkdirAll(job.Dir, 0755); err != nil {
		return fmt.Errorf("creating run dir: %w", err)
	}
	path := filepath.Join(job.Dir, job.FileName)
	if err := os.WriteFile(path, []byte(job.Text), 0644); err != nil {
		return fmt.Errorf("writing job file: %w", err)
	}

	name, args := s.Platform.SubmitCommandFor(job.FileName)
	cmd := Command{Name: name, Args: args, Dir: job.Dir}
	entry := SubmissionEntry{Job: job.Name, File: path, Command: cmd.String()}

	if s.DryRun {
		entry.Status = StatusDryRun
		logrus.Infof("[dry-run] %s: %s", job.Name, cmd)
		s.entries = append(s.entries, entry)
		return nil
	}

	res, err := s.Runner.Run(ctx, cmd)
	entry.Output = strings.TrimSpace(res.Stdout)
	if err != nil {
		entry.Status = StatusFailed
		entry.ExitCode = res.ExitCode
		entry.Error = err.Error()
		logrus.Warnf("Submission of %s failed: %v %s", job.Name, err, strings.TrimSpace(res.Stderr))
	} else {
		entry.Status = StatusSubmitted
		logrus.Infof("Submitted %s: %s", job.Name, entry.Output)
	}
	s.entries = append(s.entries, entry)
	return nil
}

// Manifest returns the outcomes recorded so far.
func (s *Submitter) Manifest(phase Phase) Manifest {
	entries := make([]SubmissionEntry, len(s.entries))
	copy(entries, s.entries)
	return Manifest{
		Invocation: s.ID,
		Platform:   s.Platform.Name,
		Phase:      phase,
		Summary:    Summarize(entries),
		Jobs:       entries,
	}
}

// WriteManifest writes the manifest as YAML into dir.
func (s *Submitter) WriteManifest(dir string, phase Phase) error {
	data, err := yaml.Marshal(s.Manifest(phase))
	if err != nil {
		return fmt.Errorf("marshaling manifest: %w", err)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating results dir: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, ManifestFile), data, 0644); err != nil {
		return fmt.Errorf("writing manifest: %w", err)
	}
	return nil
}

// StageInputs copies the regular files of src (input deck, data files) into
// dst. Sub-directories, including the output tree itself, are not copied.
func StageInputs(src, dst string) error {
	entries, err := os.ReadDir(src)
	if err != nil {
		return fmt.Errorf("reading input dir: %w", err)
	}
	if err := os.MkdirAll(dst, 0755); err != nil {
		return fmt.Errorf("creating run dir: %w", err)
	}
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		if err := copyFile(filepath.Join(src, e.Name()), filepath.Join(dst, e.Name())); err != nil {
			return err
		}
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("opening %s: %w", src, err)
	}
	defer func() { _ = in.Close() }()

	info, err := in.Stat()
	if err != nil {
		return fmt.Errorf("stat %s: %w", src, err)
	}
	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return fmt.Errorf("creating %s: %w", dst, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return fmt.Errorf("copying %s: %w", src, err)
	}
	return out.Close()
}

// ProbeVersion asks the Python environment for the installed mcdc version.
func ProbeVersion(ctx context.Context, r Runner, python string) (string, error) {
	if python == "" {
		python = "python"
	}
	res, err := r.Run(ctx, Command{
		Name: python,
		Args: []string{"-c", "import importlib.metadata as m; print(m.version('mcdc'))"},
	})
	if err != nil {
		return "", fmt.Errorf("probing mcdc version: %w", err)
	}
	version := strings.TrimSpace(res.Stdout)
	if version == "" {
		return "", fmt.Errorf("probing mcdc version: empty output")
	}
	return version, nil
}
