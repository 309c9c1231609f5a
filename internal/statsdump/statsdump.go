// Package statsdump renders a fuzzing run's stats() and debug_dump()
// views into the formats an operator actually consumes: JSON for tooling,
// HTML for a point-in-time snapshot, and a compact text table for the
// terminal.
//
// Grounded on internal/report/{report,json,html}.go's Report/Generator/
// Manager shape from the teacher repo, with the anomaly-log schema
// replaced by seedsched.Stats/DebugView.
package statsdump

import (
	"encoding/json"
	"fmt"
	"html/template"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/fluxcore/fluxcore/internal/memory"
	"github.com/fluxcore/fluxcore/internal/ownerloop"
	"github.com/fluxcore/fluxcore/internal/power"
	"github.com/fluxcore/fluxcore/internal/seedsched"
)

// Snapshot is the full picture of a run at one instant, the payload every
// Generator renders.
type Snapshot struct {
	Title       string              `json:"title"`
	GeneratedAt time.Time           `json:"generated_at"`
	Uptime      time.Duration       `json:"uptime"`
	Loop        ownerloop.Stats     `json:"loop"`
	Scheduler   seedsched.Stats     `json:"scheduler"`
	Debug       seedsched.DebugView `json:"debug"`
	Crashes     int                 `json:"crashes"`
	Memory      memory.Stats        `json:"memory"`

	// Hybrid is nil unless the run's Loop has a HybridPowerScheduler
	// attached (power.mode: hybrid in config).
	Hybrid *power.HybridState `json:"hybrid,omitempty"`
}

// MarshalJSON renders Uptime as a duration string rather than nanoseconds,
// matching the teacher's Statistics.MarshalJSON convention.
func (s Snapshot) MarshalJSON() ([]byte, error) {
	type Alias Snapshot
	return json.Marshal(&struct {
		Alias
		Uptime string `json:"uptime"`
	}{
		Alias:  Alias(s),
		Uptime: s.Uptime.String(),
	})
}

// Generator renders a Snapshot to a writer in some format.
type Generator interface {
	Generate(s Snapshot, w io.Writer) error
	Extension() string
}

// JSONGenerator renders indented JSON.
type JSONGenerator struct{ Indent bool }

func (g JSONGenerator) Generate(s Snapshot, w io.Writer) error {
	enc := json.NewEncoder(w)
	if g.Indent {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(s)
}

func (g JSONGenerator) Extension() string { return "json" }

// TextGenerator renders a compact human-readable table, suited to a
// terminal or a log line.
type TextGenerator struct{}

func (TextGenerator) Generate(s Snapshot, w io.Writer) error {
	_, err := fmt.Fprintf(w,
		"%s  generated %s  uptime %s\n"+
			"executions=%d interesting=%d crashes=%d timeouts=%d\n"+
			"scheduler=%s size=%d leased=%d updated=%d\n"+
			"heap_alloc=%d heap_objects=%d goroutines=%d\n",
		s.Title, s.GeneratedAt.Format(time.RFC3339), s.Uptime,
		s.Loop.Executions, s.Loop.InterestingInputs, s.Loop.Crashes, s.Loop.Timeouts,
		s.Scheduler.Kind, s.Scheduler.Size, s.Scheduler.TotalLeased, s.Scheduler.TotalUpdated,
		s.Memory.HeapAlloc, s.Memory.HeapObjects, s.Memory.NumGoroutine,
	)
	return err
}

func (TextGenerator) Extension() string { return "txt" }

// HTMLGenerator renders a single self-contained HTML snapshot page.
type HTMLGenerator struct {
	tmpl *template.Template
}

// NewHTMLGenerator builds an HTMLGenerator with its template parsed once.
func NewHTMLGenerator() *HTMLGenerator {
	tmpl := template.Must(template.New("snapshot").Funcs(template.FuncMap{
		"formatTime":     func(t time.Time) string { return t.Format("2006-01-02 15:04:05") },
		"formatDuration": func(d time.Duration) string { return d.String() },
	}).Parse(htmlTemplate))
	return &HTMLGenerator{tmpl: tmpl}
}

func (g *HTMLGenerator) Generate(s Snapshot, w io.Writer) error {
	return g.tmpl.Execute(w, s)
}

func (g *HTMLGenerator) Extension() string { return "html" }

const htmlTemplate = `<!DOCTYPE html>
<html>
<head><title>{{.Title}}</title></head>
<body>
<h1>{{.Title}}</h1>
<p>Generated {{formatTime .GeneratedAt}} &middot; uptime {{formatDuration .Uptime}}</p>
<table border="1" cellpadding="4">
<tr><th>Executions</th><td>{{.Loop.Executions}}</td></tr>
<tr><th>Interesting inputs</th><td>{{.Loop.InterestingInputs}}</td></tr>
<tr><th>Crashes</th><td>{{.Loop.Crashes}}</td></tr>
<tr><th>Timeouts</th><td>{{.Loop.Timeouts}}</td></tr>
<tr><th>Scheduler kind</th><td>{{.Scheduler.Kind}}</td></tr>
<tr><th>Corpus size</th><td>{{.Scheduler.Size}}</td></tr>
<tr><th>Heap alloc (bytes)</th><td>{{.Memory.HeapAlloc}}</td></tr>
<tr><th>Goroutines</th><td>{{.Memory.NumGoroutine}}</td></tr>
</table>
<h2>Debug dump ({{.Debug.Kind}})</h2>
<table border="1" cellpadding="4">
<tr><th>Seed</th><th>Priority</th><th>FuzzCount</th><th>Path</th></tr>
{{range .Debug.Entries}}
<tr><td>{{.SeedID}}</td><td>{{.Priority}}</td><td>{{.FuzzCount}}</td><td>{{.Path}}</td></tr>
{{end}}
</table>
{{if .Hybrid}}
<h2>Hybrid power scheduler</h2>
<table border="1" cellpadding="4">
<tr><th>Mode</th><td>{{.Hybrid.Mode}}</td></tr>
<tr><th>Plateau counter</th><td>{{.Hybrid.PlateauCounter}}</td></tr>
<tr><th>Breakthrough counter</th><td>{{.Hybrid.BreakthroughCounter}}</td></tr>
<tr><th>Cycles in window</th><td>{{.Hybrid.CyclesInWindow}}</td></tr>
</table>
{{end}}
</body>
</html>
`

// Manager picks a Generator by format name and writes its output to a file
// under outputDir, or directly to a caller-supplied writer.
type Manager struct {
	generators map[string]Generator
	outputDir  string
}

// NewManager creates a Manager with the default json/html/text generators
// registered.
func NewManager(outputDir string) *Manager {
	m := &Manager{generators: make(map[string]Generator), outputDir: outputDir}
	m.RegisterGenerator("json", JSONGenerator{Indent: true})
	m.RegisterGenerator("html", NewHTMLGenerator())
	m.RegisterGenerator("text", TextGenerator{})
	return m
}

// RegisterGenerator registers or replaces a generator for format.
func (m *Manager) RegisterGenerator(format string, gen Generator) {
	m.generators[format] = gen
}

// WriteToWriter renders a Snapshot directly to w in the given format.
func (m *Manager) WriteToWriter(s Snapshot, format string, w io.Writer) error {
	gen, ok := m.generators[format]
	if !ok {
		return fmt.Errorf("statsdump: unknown format %q", format)
	}
	return gen.Generate(s, w)
}

// Dump renders a Snapshot to a timestamped file under outputDir and returns
// its path.
func (m *Manager) Dump(s Snapshot, format string) (string, error) {
	gen, ok := m.generators[format]
	if !ok {
		return "", fmt.Errorf("statsdump: unknown format %q", format)
	}
	if err := os.MkdirAll(m.outputDir, 0755); err != nil {
		return "", fmt.Errorf("statsdump: create output dir: %w", err)
	}

	name := fmt.Sprintf("stats_%s.%s", s.GeneratedAt.Format("20060102_150405"), gen.Extension())
	path := filepath.Join(m.outputDir, name)

	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("statsdump: create file: %w", err)
	}
	defer f.Close()

	if err := gen.Generate(s, f); err != nil {
		return "", fmt.Errorf("statsdump: generate: %w", err)
	}
	return path, nil
}
