package suite

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mcdc-perf/perfsuite/suite/artifact"
)

// ConverterFile is the helper every run directory receives. Jobs call it
// after each run to turn the engine's HDF5 runtime file into the timing
// artifact the read phase looks up.
const ConverterFile = "runtime_to_yaml.py"

//go:embed runtime_to_yaml.py
var converterScript []byte

// WriteConverter places the converter script in dir.
func WriteConverter(dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating run dir: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, ConverterFile), converterScript, 0644); err != nil {
		return fmt.Errorf("writing %s: %w", ConverterFile, err)
	}
	return nil
}

// ConvertLine returns the shell line that converts the runtime file of an
// output tag into its timing artifact.
func (b CommandBuilder) ConvertLine(tag string) string {
	return fmt.Sprintf("%s %s %s %s", b.python(), ConverterFile, tag+artifact.EngineSuffix, tag+artifact.Suffix)
}
