package writers

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"text/template"
	"time"

	"github.com/Masterminds/sprig/v3"

	"github.com/lostsec/lostsec/pkg/defaults"
	"github.com/lostsec/lostsec/pkg/jsonutil"
	"github.com/lostsec/lostsec/pkg/output/dispatcher"
	"github.com/lostsec/lostsec/pkg/output/events"
)

// Compile-time interface check.
var _ dispatcher.Writer = (*TemplateWriter)(nil)

// TemplateConfig configures the template writer.
type TemplateConfig struct {
	// TemplatePath is the path to a custom template file.
	TemplatePath string

	// TemplateString is an inline template string (alternative to TemplatePath).
	TemplateString string

	// BuiltIn is the name of a built-in template: "csv", "markdown", "text-summary".
	BuiltIn string
}

// builtInTemplates contains pre-defined report layouts.
var builtInTemplates = map[string]string{
	"csv": `url,target,payload,injection_point,status,evidence
{{- range .Vulnerable }}
{{ escapeCSV .URL }},{{ escapeCSV .Target }},{{ escapeCSV .Payload }},{{ .Point }},{{ .Status }},{{ escapeCSV .Evidence }}
{{- end }}
`,

	"markdown": `# {{ .Tool | title }} {{ .Variant }} report

| | |
|---|---|
| Scan | ` + "`{{ .ScanID }}`" + ` |
| State | {{ .State }}{{ with .Reason }} ({{ . }}){{ end }} |
| Scanned | {{ .Totals.Scanned }} |
| Vulnerable | {{ len .Vulnerable }} |
| Unconfirmed candidates | {{ .Unconfirmed }} |
| Duration | {{ .Duration }} |
{{ if .Vulnerable }}
## Findings
{{ range $i, $v := .Vulnerable }}
{{ add1 $i }}. ` + "`{{ $v.URL }}`" + `{{ with $v.Evidence }} ({{ . | trunc 80 }}){{ end }}
{{- end }}
{{ end }}`,

	"text-summary": `{{ .Tool | upper }} {{ .Variant | upper }} SCAN SUMMARY
{{ repeat 30 "=" }}
Scan:       {{ .ScanID }}
State:      {{ .State }}{{ with .Reason }} ({{ . }}){{ end }}
Generated:  {{ .Timestamp }}
Duration:   {{ .Duration }}

Scanned:    {{ .Totals.Scanned }}
Vulnerable: {{ len .Vulnerable }}
Errors:     {{ .Totals.Errors }}
{{- range .Vulnerable }}
  - {{ .URL }}
{{- end }}
`,
}

// TemplateWriter renders the scan using Go templates with Sprig functions.
// It buffers result and summary events and renders once on Close.
type TemplateWriter struct {
	w       io.Writer
	mu      sync.Mutex
	config  TemplateConfig
	tmpl    *template.Template
	results []*events.ResultEvent
	summary *events.SummaryEvent
	scanID  string
}

// NewTemplateWriter creates a new template writer.
// It parses the template immediately and returns an error if the template is invalid.
func NewTemplateWriter(w io.Writer, config TemplateConfig) (*TemplateWriter, error) {
	tw := &TemplateWriter{w: w, config: config}
	if err := tw.parseTemplate(); err != nil {
		return nil, fmt.Errorf("template parse error: %w", err)
	}
	return tw, nil
}

// BuiltInTemplates returns the names of the built-in templates.
func BuiltInTemplates() []string {
	return []string{"csv", "markdown", "text-summary"}
}

func (tw *TemplateWriter) parseTemplate() error {
	var content string

	switch {
	case tw.config.TemplatePath != "":
		b, err := os.ReadFile(tw.config.TemplatePath)
		if err != nil {
			return fmt.Errorf("failed to read template file: %w", err)
		}
		content = string(b)

	case tw.config.TemplateString != "":
		content = tw.config.TemplateString

	case tw.config.BuiltIn != "":
		b, ok := builtInTemplates[tw.config.BuiltIn]
		if !ok {
			return fmt.Errorf("unknown built-in template: %s (available: %s)",
				tw.config.BuiltIn, strings.Join(BuiltInTemplates(), ", "))
		}
		content = b

	default:
		return fmt.Errorf("no template specified: set TemplatePath, TemplateString, or BuiltIn")
	}

	funcMap := sprig.TxtFuncMap()
	funcMap["escapeCSV"] = tmplEscapeCSV
	funcMap["json"] = tmplToJSON

	tmpl, err := template.New(defaults.ToolName).Funcs(funcMap).Parse(content)
	if err != nil {
		return fmt.Errorf("parse output template: %w", err)
	}
	tw.tmpl = tmpl
	return nil
}

// Write buffers an event for later template rendering.
func (tw *TemplateWriter) Write(event events.Event) error {
	tw.mu.Lock()
	defer tw.mu.Unlock()

	if tw.scanID == "" {
		tw.scanID = event.ScanID()
	}
	switch e := event.(type) {
	case *events.ResultEvent:
		tw.results = append(tw.results, e)
	case *events.SummaryEvent:
		tw.summary = e
	}
	return nil
}

// Flush is a no-op for template writer.
// All events are rendered as a single document on Close.
func (tw *TemplateWriter) Flush() error {
	return nil
}

// Close renders the template with all buffered events and writes to the output.
func (tw *TemplateWriter) Close() error {
	tw.mu.Lock()
	defer tw.mu.Unlock()

	var buf bytes.Buffer
	if err := tw.tmpl.Execute(&buf, tw.buildTemplateData()); err != nil {
		return fmt.Errorf("template execution error: %w", err)
	}
	if _, err := tw.w.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("write error: %w", err)
	}
	if closer, ok := tw.w.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

// SupportsEvent returns true for result and summary events.
func (tw *TemplateWriter) SupportsEvent(eventType events.EventType) bool {
	return eventType == events.EventTypeResult || eventType == events.EventTypeSummary
}

// tmplData holds all data available to templates.
type tmplData struct {
	Tool      string
	ScanID    string
	Variant   string
	State     string
	Reason    string
	Timestamp string
	Duration  time.Duration

	Totals      events.StatsInfo
	Unconfirmed int64

	// Vulnerable is the summary's final list when a summary arrived, else
	// every vulnerable result seen so far.
	Vulnerable []tmplFinding

	// Results is every buffered result event, in arrival order.
	Results []*events.ResultEvent
}

// tmplFinding flattens a vulnerable task for templates.
type tmplFinding struct {
	URL      string
	Target   string
	Payload  string
	Point    string
	Status   string
	Evidence string
}

func (tw *TemplateWriter) buildTemplateData() *tmplData {
	data := &tmplData{
		Tool:      defaults.ToolName,
		ScanID:    tw.scanID,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Results:   tw.results,
	}

	evidence := make(map[uint64]string)
	for _, r := range tw.results {
		if r.Result.Status == "vulnerable" {
			evidence[r.Task.Seq] = r.Result.Evidence
		}
	}

	if s := tw.summary; s != nil {
		data.Variant = s.Variant
		data.State = s.State
		data.Reason = s.Reason
		data.Duration = s.Timing.Elapsed.Round(time.Millisecond)
		data.Totals = s.Totals
		data.Unconfirmed = s.Unconfirmed
		for _, t := range s.Vulnerable {
			data.Vulnerable = append(data.Vulnerable, tmplFinding{
				URL: t.URL, Target: t.Target, Payload: t.Payload, Point: t.Point,
				Status: "vulnerable", Evidence: evidence[t.Seq],
			})
		}
		return data
	}

	for _, r := range tw.results {
		if r.Result.Status != "vulnerable" {
			continue
		}
		data.Vulnerable = append(data.Vulnerable, tmplFinding{
			URL: r.Task.URL, Target: r.Task.Target, Payload: r.Task.Payload, Point: r.Task.Point,
			Status: r.Result.Status, Evidence: r.Result.Evidence,
		})
	}
	return data
}

// tmplEscapeCSV escapes a string for CSV output.
// It wraps the value in quotes if it contains commas, quotes, or newlines.
func tmplEscapeCSV(s string) string {
	if strings.ContainsAny(s, ",\"\n\r") {
		return "\"" + strings.ReplaceAll(s, "\"", "\"\"") + "\""
	}
	return s
}

func tmplToJSON(v any) string {
	b, err := jsonutil.Marshal(v)
	if err != nil {
		return fmt.Sprintf("error: %v", err)
	}
	return string(b)
}
