package suite

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"gopkg.in/yaml.v3"
)

// MachineSpecFile is written next to the results of every submission pass.
const MachineSpecFile = "machine_spec.yaml"

// MachineSpec is a snapshot of the host the suite was launched from.
type MachineSpec struct {
	Architecture string `yaml:"architecture"`
	System       string `yaml:"system"`
	Node         string `yaml:"node"`
	CPUs         int    `yaml:"cpus"`
	GoVersion    string `yaml:"go_version"`
	Platform     string `yaml:"platform"`
	Invocation   string `yaml:"invocation,omitempty"`
}

// CollectMachineSpec gathers host information for the given platform name.
func CollectMachineSpec(platform, invocation string) MachineSpec {
	node, err := os.Hostname()
	if err != nil {
		node = "unknown"
	}
	return MachineSpec{
		Architecture: runtime.GOARCH,
		System:       runtime.GOOS,
		Node:         node,
		CPUs:         runtime.NumCPU(),
		GoVersion:    runtime.Version(),
		Platform:     platform,
		Invocation:   invocation,
	}
}

// WriteMachineSpec writes spec as YAML into dir, creating dir if needed.
func WriteMachineSpec(dir string, spec MachineSpec) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating results dir: %w", err)
	}
	data, err := yaml.Marshal(spec)
	if err != nil {
		return fmt.Errorf("marshaling machine spec: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, MachineSpecFile), data, 0644); err != nil {
		return fmt.Errorf("writing machine spec: %w", err)
	}
	return nil
}
