package record

import (
	"bufio"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mcdc-perf/perfsuite/suite/reduce"
	"golang.org/x/perf/benchfmt"
	"gopkg.in/yaml.v3"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver (no CGO required)
)

// Output formats accepted by NewSinks.
const (
	FormatYAML   = "yaml"
	FormatBench  = "bench"
	FormatSQLite = "sqlite"
)

// File names written into the results directory.
const (
	YAMLFile   = "record.yaml"
	BenchFile  = "record.bench"
	SQLiteFile = "record.db"
)

// ErrUnknownFormat is returned for an unrecognized --format value.
var ErrUnknownFormat = errors.New("unknown record format")

// Meta identifies the invocation that produced a record.
type Meta struct {
	Platform   string
	Version    string
	Invocation string
}

// Sink persists a record. Every sink rewrites its target wholesale.
type Sink interface {
	Path() string
	Write(r Record, meta Meta) error
}

// NewSinks returns one sink per format, writing into dir.
func NewSinks(formats []string, dir string) ([]Sink, error) {
	var sinks []Sink
	seen := make(map[string]bool)
	for _, f := range formats {
		f = strings.TrimSpace(f)
		if f == "" || seen[f] {
			continue
		}
		seen[f] = true
		switch f {
		case FormatYAML:
			sinks = append(sinks, YAMLSink{path: filepath.Join(dir, YAMLFile)})
		case FormatBench:
			sinks = append(sinks, BenchSink{path: filepath.Join(dir, BenchFile)})
		case FormatSQLite:
			sinks = append(sinks, SQLiteSink{path: filepath.Join(dir, SQLiteFile)})
		default:
			return nil, fmt.Errorf("%w %q; valid: yaml, bench, sqlite", ErrUnknownFormat, f)
		}
	}
	if len(sinks) == 0 {
		return nil, fmt.Errorf("%w: no format selected", ErrUnknownFormat)
	}
	return sinks, nil
}

// YAMLSink writes record.yaml.
type YAMLSink struct {
	path string
}

// Path returns the output file.
func (s YAMLSink) Path() string { return s.path }

func (s YAMLSink) Write(r Record, _ Meta) error {
	data, err := yaml.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshaling record: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("creating results dir: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0644); err != nil {
		return fmt.Errorf("writing record: %w", err)
	}
	return nil
}

// Benchmark units used in record.bench.
const (
	UnitRate     = "kparticles/s"
	UnitRawRate  = "raw-kparticles/s"
	UnitCompile  = "compile-s"
	UnitComplete = "completed-runs"
)

// BenchSink writes the record in the Go benchmark format so results of
// different versions can be compared with benchstat.
type BenchSink struct {
	path string
}

// Path returns the output file.
func (s BenchSink) Path() string { return s.path }

func (s BenchSink) Write(r Record, meta Meta) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("creating results dir: %w", err)
	}
	f, err := os.Create(s.path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", s.path, err)
	}
	buf := bufio.NewWriter(f)
	w := benchfmt.NewWriter(buf)

	config := []benchfmt.Config{
		{Key: "platform", Value: []byte(meta.Platform), File: true},
		{Key: "version", Value: []byte(meta.Version), File: true},
		{Key: "invocation", Value: []byte(meta.Invocation), File: true},
	}
	for _, e := range r.entries {
		if err := w.Write(benchResult(config, e)); err != nil {
			_ = f.Close()
			return fmt.Errorf("writing %s: %w", s.path, err)
		}
	}
	if err := buf.Flush(); err != nil {
		_ = f.Close()
		return fmt.Errorf("writing %s: %w", s.path, err)
	}
	return f.Close()
}

// BenchName returns the benchmark name of an entry, without the "Benchmark"
// prefix, e.g. "Record/problem=azurv1/engine=mcdc/method=analog/mode=numba".
func BenchName(k Key) string {
	var b strings.Builder
	b.WriteString("Record/problem=")
	b.WriteString(k.Problem)
	b.WriteString("/engine=")
	b.WriteString(k.Engine)
	if k.Method != "" {
		b.WriteString("/method=")
		b.WriteString(k.Method)
	}
	if k.Mode != "" {
		b.WriteString("/mode=")
		b.WriteString(k.Mode)
	}
	return b.String()
}

func benchResult(config []benchfmt.Config, e Entry) *benchfmt.Result {
	m := e.Metrics
	values := []benchfmt.Value{{Value: float64(m.CompletedRuns), Unit: UnitComplete}}
	if m.TrackingRate.Valid {
		values = append(values, benchfmt.Value{Value: m.TrackingRate.Value, Unit: UnitRate})
	}
	if m.RawTrackingRate != nil && m.RawTrackingRate.Valid {
		values = append(values, benchfmt.Value{Value: m.RawTrackingRate.Value, Unit: UnitRawRate})
	}
	if m.CompileTime != nil {
		values = append(values, benchfmt.Value{Value: *m.CompileTime, Unit: UnitCompile})
	}
	return &benchfmt.Result{
		Config: config,
		Name:   benchfmt.Name(BenchName(e.Key)),
		Iters:  1,
		Values: values,
	}
}

// SQLiteSink writes record.db with a single metrics table that is dropped and
// recreated on every write. Invalid rates are stored as NULL.
type SQLiteSink struct {
	path string
}

// Path returns the database file.
func (s SQLiteSink) Path() string { return s.path }

const metricsSchema = `CREATE TABLE metrics (
	platform        TEXT NOT NULL,
	version         TEXT NOT NULL,
	invocation      TEXT NOT NULL,
	problem         TEXT NOT NULL,
	engine          TEXT NOT NULL,
	method          TEXT NOT NULL,
	mode            TEXT NOT NULL,
	tracking_rate   REAL,
	raw_rate        REAL,
	compile_time    REAL,
	planned_runs    INTEGER NOT NULL,
	completed_runs  INTEGER NOT NULL,
	error           TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (problem, engine, method, mode)
)`

func (s SQLiteSink) Write(r Record, meta Meta) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("creating results dir: %w", err)
	}
	db, err := sql.Open("sqlite", s.path)
	if err != nil {
		return fmt.Errorf("open sqlite: %w", err)
	}
	defer db.Close()
	db.SetMaxOpenConns(1)

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, stmt := range []string{`DROP TABLE IF EXISTS metrics`, metricsSchema} {
		if _, err := tx.Exec(stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	insert, err := tx.Prepare(`INSERT INTO metrics
		(platform, version, invocation, problem, engine, method, mode,
		 tracking_rate, raw_rate, compile_time, planned_runs, completed_runs, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer insert.Close()

	for _, e := range r.entries {
		m := e.Metrics
		var raw sql.NullFloat64
		if m.RawTrackingRate != nil {
			raw = nullRate(*m.RawTrackingRate)
		}
		var compile sql.NullFloat64
		if m.CompileTime != nil {
			compile = sql.NullFloat64{Float64: *m.CompileTime, Valid: true}
		}
		if _, err := insert.Exec(
			meta.Platform, meta.Version, meta.Invocation,
			e.Key.Problem, e.Key.Engine, e.Key.Method, e.Key.Mode,
			nullRate(m.TrackingRate), raw, compile,
			m.PlannedRuns, m.CompletedRuns, m.Error,
		); err != nil {
			return fmt.Errorf("insert %s: %w", BenchName(e.Key), err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func nullRate(r reduce.Rate) sql.NullFloat64 {
	return sql.NullFloat64{Float64: r.Value, Valid: r.Valid}
}
