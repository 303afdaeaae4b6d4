package suite

import (
	"fmt"
	"maps"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
)

// SchedulerFamily identifies the batch system a platform runs.
type SchedulerFamily string

const (
	SchedulerSlurm SchedulerFamily = "slurm"
	SchedulerLSF   SchedulerFamily = "lsf"
	SchedulerFlux  SchedulerFamily = "flux"
)

// defaultLaunchers maps a scheduler family to its MPI launcher prefix.
var defaultLaunchers = map[SchedulerFamily]string{
	SchedulerSlurm: "srun -n",
	SchedulerLSF:   "lrun -n",
	SchedulerFlux:  "flux run -n",
}

// LookupScheduler validates a scheduler family name.
func LookupScheduler(name string) (SchedulerFamily, error) {
	f := SchedulerFamily(name)
	if _, ok := defaultLaunchers[f]; !ok {
		return "", fmt.Errorf("%w %q; valid: slurm, lsf, flux", ErrUnknownScheduler, name)
	}
	return f, nil
}

// PlatformProfile holds the per-platform constants used to enumerate and
// submit jobs. Profiles are looked up by name and never mutated.
type PlatformProfile struct {
	Name          string          `toml:"-"`
	SubmitCommand string          `toml:"submit_command"`
	Scheduler     SchedulerFamily `toml:"scheduler"`
	CoresPerNode  int             `toml:"cores_per_node"`
	GPUsPerNode   int             `toml:"gpus_per_node"`
	MaxNodes      int             `toml:"max_nodes"`
	MaxTimeHours  int             `toml:"max_time_hours"`
	TimeFormat    string          `toml:"time_format"` // "XX" is replaced by the hour count
	Launcher      string          `toml:"launcher,omitempty"`
}

// Validate checks that a profile is usable for enumeration and submission.
func (p PlatformProfile) Validate() error {
	if _, err := LookupScheduler(string(p.Scheduler)); err != nil {
		return fmt.Errorf("platform %q: %w", p.Name, err)
	}
	if len(strings.Fields(p.SubmitCommand)) == 0 {
		return fmt.Errorf("platform %q: submit_command is empty", p.Name)
	}
	if p.CoresPerNode < 1 {
		return fmt.Errorf("platform %q: cores_per_node must be positive, got %d", p.Name, p.CoresPerNode)
	}
	if p.GPUsPerNode < 0 {
		return fmt.Errorf("platform %q: gpus_per_node must be non-negative, got %d", p.Name, p.GPUsPerNode)
	}
	if p.MaxNodes < 1 {
		return fmt.Errorf("platform %q: max_nodes must be positive, got %d", p.Name, p.MaxNodes)
	}
	if p.MaxTimeHours < 1 {
		return fmt.Errorf("platform %q: max_time_hours must be positive, got %d", p.Name, p.MaxTimeHours)
	}
	if !strings.Contains(p.TimeFormat, "XX") {
		return fmt.Errorf("platform %q: time_format %q has no XX placeholder", p.Name, p.TimeFormat)
	}
	return nil
}

// TimeString renders a wall-time request in the platform's format,
// e.g. 12 → "12:00:00" on Slurm or "12h" on Flux.
func (p PlatformProfile) TimeString(hours int) string {
	return strings.ReplaceAll(p.TimeFormat, "XX", strconv.Itoa(hours))
}

// LauncherPrefix returns the MPI launcher, defaulting by scheduler family.
func (p PlatformProfile) LauncherPrefix() string {
	if p.Launcher != "" {
		return p.Launcher
	}
	return defaultLaunchers[p.Scheduler]
}

// SubmitCommandFor splits the submission command and appends the job file.
func (p PlatformProfile) SubmitCommandFor(jobFile string) (string, []string) {
	fields := strings.Fields(p.SubmitCommand)
	return fields[0], append(fields[1:], jobFile)
}

// HasAccelerators reports whether the platform's nodes carry GPUs.
func (p PlatformProfile) HasAccelerators() bool {
	return p.GPUsPerNode > 0
}

// PlatformTable maps platform names to their profiles.
type PlatformTable map[string]PlatformProfile

// DefaultPlatforms returns the built-in profile table.
func DefaultPlatforms() PlatformTable {
	return PlatformTable{
		"dane": {
			Name: "dane", SubmitCommand: "sbatch", Scheduler: SchedulerSlurm,
			CoresPerNode: 112, GPUsPerNode: 0, MaxNodes: 520, MaxTimeHours: 24, TimeFormat: "XX:00:00",
		},
		"lassen": {
			Name: "lassen", SubmitCommand: "bsub", Scheduler: SchedulerLSF,
			CoresPerNode: 44, GPUsPerNode: 4, MaxNodes: 256, MaxTimeHours: 12, TimeFormat: "XX:00",
		},
		"tioga": {
			Name: "tioga", SubmitCommand: "flux batch", Scheduler: SchedulerFlux,
			CoresPerNode: 64, GPUsPerNode: 4, MaxNodes: 16, MaxTimeHours: 12, TimeFormat: "XXh",
		},
		"tuolumne": {
			Name: "tuolumne", SubmitCommand: "flux batch", Scheduler: SchedulerFlux,
			CoresPerNode: 96, GPUsPerNode: 4, MaxNodes: 512, MaxTimeHours: 24, TimeFormat: "XXh",
		},
	}
}

// Lookup returns the named profile or fails with ErrUnknownPlatform.
func (t PlatformTable) Lookup(name string) (PlatformProfile, error) {
	p, ok := t[name]
	if !ok {
		return PlatformProfile{}, fmt.Errorf("%w %q; valid: %s", ErrUnknownPlatform, name, strings.Join(t.Names(), ", "))
	}
	return p, nil
}

// Names returns the recognized platform names in sorted order.
func (t PlatformTable) Names() []string {
	return SortedKeys(t)
}

// platformFile is the on-disk shape of a platform override file:
//
//	[platform.dane]
//	submit_command = "sbatch"
//	scheduler = "slurm"
//	...
type platformFile struct {
	Platforms map[string]PlatformProfile `toml:"platform"`
}

// LoadPlatformOverrides reads a TOML file of complete profiles and returns a
// copy of base with those profiles added or replaced. Unknown keys are rejected.
func LoadPlatformOverrides(path string, base PlatformTable) (PlatformTable, error) {
	var file platformFile
	md, err := toml.DecodeFile(path, &file)
	if err != nil {
		return nil, fmt.Errorf("parse platform file: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("parse platform file: unknown keys %v", undecoded)
	}
	table := maps.Clone(base)
	if table == nil {
		table = make(PlatformTable)
	}
	for name, p := range file.Platforms {
		p.Name = name
		if err := p.Validate(); err != nil {
			return nil, err
		}
		table[name] = p
	}
	return table, nil
}
