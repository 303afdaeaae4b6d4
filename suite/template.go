package suite

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Recognized template placeholders. The set is closed: any other
// <UPPER_CASE> token in a template is rejected.
const (
	TokenNodes    = "<N_NODE>"
	TokenJobName  = "<JOB_NAME>"
	TokenTime     = "<TIME>"
	TokenCase     = "<CASE>"
	TokenCommands = "<COMMANDS>"
)

var knownTokens = map[string]bool{
	TokenNodes:    true,
	TokenJobName:  true,
	TokenTime:     true,
	TokenCase:     true,
	TokenCommands: true,
}

var tokenPattern = regexp.MustCompile(`<[A-Z][A-Z0-9_]*>`)

// JobFields are the values substituted into a scheduler template.
// Case may be empty; the other fields are required when their token appears.
type JobFields struct {
	Nodes    int
	JobName  string
	Time     string
	Case     string
	Commands []string
}

// Render substitutes fields into template in a single pass. A template with
// no recognized tokens is returned unchanged. Values may not themselves
// contain token-shaped text, so rendering an already rendered job is a no-op.
func Render(template string, f JobFields) (string, error) {
	present := make(map[string]bool)
	for _, tok := range tokenPattern.FindAllString(template, -1) {
		if !knownTokens[tok] {
			return "", fmt.Errorf("%w: unrecognized token %s", ErrTemplate, tok)
		}
		present[tok] = true
	}
	if len(present) == 0 {
		return template, nil
	}

	values := map[string]string{
		TokenNodes:    "",
		TokenJobName:  f.JobName,
		TokenTime:     f.Time,
		TokenCase:     f.Case,
		TokenCommands: commandText(f.Commands),
	}
	if f.Nodes > 0 {
		values[TokenNodes] = strconv.Itoa(f.Nodes)
	}
	for _, tok := range []string{TokenNodes, TokenJobName, TokenTime} {
		if present[tok] && values[tok] == "" {
			return "", fmt.Errorf("%w: no value for %s", ErrTemplate, tok)
		}
	}

	pairs := make([]string, 0, 2*len(present))
	for tok := range present {
		if bad := tokenPattern.FindString(values[tok]); bad != "" {
			return "", fmt.Errorf("%w: value for %s contains token %s", ErrTemplate, tok, bad)
		}
		pairs = append(pairs, tok, values[tok])
	}
	return strings.NewReplacer(pairs...).Replace(template), nil
}

func commandText(lines []string) string {
	if len(lines) == 0 {
		return ""
	}
	return strings.Join(lines, "\n") + "\n"
}

// CommandBuilder produces the shell line that launches one run.
// An empty Launcher yields a plain serial invocation.
type CommandBuilder struct {
	Python   string
	Launcher string
}

func (b CommandBuilder) python() string {
	if b.Python == "" {
		return "python"
	}
	return b.Python
}

// Line returns the invocation for a run descriptor.
func (b CommandBuilder) Line(r RunDescriptor) string {
	line := fmt.Sprintf("%s input.py %s --mode=%s --N_particle=%d --output=%s --no-progress_bar --caching --runtime_output",
		b.python(), r.Method, r.Mode, r.Particles, r.OutputTag)
	if b.Launcher != "" {
		line = fmt.Sprintf("%s %d %s", b.Launcher, r.Ranks, line)
	}
	return line
}

// CommandBlock builds the shell lines for a batch: one invocation per run
// followed by conversion of its runtime file into a timing artifact and, from
// the second run on, removal of the previous run's output. At most two
// outputs coexist while the batch runs and the last one is kept. Runtime
// files and artifacts are never removed.
func CommandBlock(runs []RunDescriptor, b CommandBuilder) []string {
	lines := make([]string, 0, 3*len(runs))
	previous := ""
	for _, r := range runs {
		lines = append(lines, b.Line(r), b.ConvertLine(r.OutputTag))
		// Duplicate truncated counts share a tag; removing it would drop the
		// output just written.
		if previous != "" && previous != r.OutputTag {
			lines = append(lines, fmt.Sprintf("rm %s.h5", previous))
		}
		previous = r.OutputTag
	}
	return lines
}

// JobRecord is the rendered submission for one batch.
type JobRecord struct {
	Batch    Batch
	Name     string
	FileName string
	Text     string
	Dir      string // run directory the job file is written to
}

// JobName returns the scheduler job name for a batch.
func JobName(b Batch) string {
	if b.Phase == PhaseParallel {
		return fmt.Sprintf("mcdc-par-%s-%s-%s-%s", b.Problem, b.Method, b.Mode, b.Case)
	}
	return fmt.Sprintf("mcdc-ser-%s-%s-%s", b.Problem, b.Method, b.Mode)
}

// JobFileName returns the job file name for a batch.
func JobFileName(b Batch) string {
	if b.Case != "" {
		return fmt.Sprintf("submit-%s.pbs", b.Case)
	}
	return "submit.pbs"
}

// BuildJob renders the scheduler template for a batch.
func BuildJob(template string, b Batch, p PlatformProfile, python string) (JobRecord, error) {
	builder := CommandBuilder{Python: python}
	caseSuffix := ""
	if b.Phase == PhaseParallel {
		builder.Launcher = p.LauncherPrefix()
		caseSuffix = "-" + b.Case
	}
	name := JobName(b)
	text, err := Render(template, JobFields{
		Nodes:    b.Nodes,
		JobName:  name,
		Time:     p.TimeString(b.Hours),
		Case:     caseSuffix,
		Commands: CommandBlock(b.Runs, builder),
	})
	if err != nil {
		return JobRecord{}, fmt.Errorf("rendering %s: %w", name, err)
	}
	return JobRecord{Batch: b, Name: name, FileName: JobFileName(b), Text: text}, nil
}
