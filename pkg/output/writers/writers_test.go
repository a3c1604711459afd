package writers

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lostsec/lostsec/pkg/jsonutil"
	"github.com/lostsec/lostsec/pkg/output/events"
	"github.com/lostsec/lostsec/pkg/testutil"
)

func resultEvent(seq uint64, url, status string) *events.ResultEvent {
	return &events.ResultEvent{
		BaseEvent: events.NewBase(events.EventTypeResult, "scan-1"),
		Phase:     events.PhaseProbe,
		Task:      events.TaskInfo{Seq: seq, Target: "http://x/", Payload: "p", Point: "path", URL: url},
		Result:    events.ResultInfo{Status: status, Evidence: "root:x:0:"},
	}
}

func summaryEvent(urls ...string) *events.SummaryEvent {
	s := &events.SummaryEvent{
		BaseEvent: events.NewBase(events.EventTypeSummary, "scan-1"),
		Variant:   "lfi",
		State:     "completed",
		Totals:    events.StatsInfo{Scanned: 4, Found: int64(len(urls))},
		Timing:    events.SummaryTiming{StartedAt: time.Now(), Elapsed: 1500 * time.Millisecond},
	}
	for i, u := range urls {
		s.Vulnerable = append(s.Vulnerable, events.TaskInfo{Seq: uint64(i), URL: u, Target: "http://x/", Point: "path"})
	}
	return s
}

func TestJSONLWriter(t *testing.T) {
	var buf bytes.Buffer
	w := NewJSONLWriter(&buf, JSONLOptions{})

	require.NoError(t, w.Write(resultEvent(0, "http://x/a", "vulnerable")))
	require.NoError(t, w.Write(summaryEvent("http://x/a")))
	require.NoError(t, w.Close())

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	for _, l := range lines {
		assert.True(t, jsonutil.Valid([]byte(l)), l)
	}

	var got struct {
		Type   string `json:"type"`
		ScanID string `json:"scan_id"`
		Task   struct {
			URL string `json:"url"`
		} `json:"task"`
	}
	require.NoError(t, jsonutil.Unmarshal([]byte(lines[0]), &got))
	assert.Equal(t, "result", got.Type)
	assert.Equal(t, "scan-1", got.ScanID)
	assert.Equal(t, "http://x/a", got.Task.URL)
}

func TestJSONLWriter_Filters(t *testing.T) {
	var buf bytes.Buffer
	w := NewJSONLWriter(&buf, JSONLOptions{OnlyVulnerable: true, OmitProgress: true})

	assert.False(t, w.SupportsEvent(events.EventTypeProgress))
	assert.True(t, w.SupportsEvent(events.EventTypeSummary))

	require.NoError(t, w.Write(resultEvent(0, "http://x/a", "potential")))
	require.NoError(t, w.Write(resultEvent(1, "http://x/b", "vulnerable")))

	assert.Equal(t, 1, strings.Count(buf.String(), "\n"))
	assert.Contains(t, buf.String(), "http://x/b")
}

func TestTemplateWriter_BuiltIns(t *testing.T) {
	for _, name := range BuiltInTemplates() {
		t.Run(name, func(t *testing.T) {
			var buf bytes.Buffer
			w, err := NewTemplateWriter(&buf, TemplateConfig{BuiltIn: name})
			require.NoError(t, err)

			require.NoError(t, w.Write(resultEvent(0, "http://x/a,b", "vulnerable")))
			require.NoError(t, w.Write(summaryEvent("http://x/a,b")))
			require.NoError(t, w.Close())

			assert.Contains(t, buf.String(), "http://x/a,b")
		})
	}
}

func TestTemplateWriter_CSVEscapes(t *testing.T) {
	var buf bytes.Buffer
	w, err := NewTemplateWriter(&buf, TemplateConfig{BuiltIn: "csv"})
	require.NoError(t, err)

	require.NoError(t, w.Write(resultEvent(0, "http://x/a,b", "vulnerable")))
	require.NoError(t, w.Close())

	assert.Contains(t, buf.String(), `"http://x/a,b"`)
	assert.Contains(t, buf.String(), "root:x:0:")
}

func TestTemplateWriter_SummaryDrivesList(t *testing.T) {
	var buf bytes.Buffer
	w, err := NewTemplateWriter(&buf, TemplateConfig{TemplateString: `{{ len .Vulnerable }} {{ .State }} {{ .Variant }}`})
	require.NoError(t, err)

	require.NoError(t, w.Write(resultEvent(0, "http://x/a", "potential")))
	require.NoError(t, w.Write(summaryEvent("http://x/a", "http://x/b")))
	require.NoError(t, w.Close())

	assert.Equal(t, "2 completed lfi", buf.String())
}

func TestTemplateWriter_Errors(t *testing.T) {
	_, err := NewTemplateWriter(&bytes.Buffer{}, TemplateConfig{})
	assert.Error(t, err)

	_, err = NewTemplateWriter(&bytes.Buffer{}, TemplateConfig{BuiltIn: "sarif"})
	assert.ErrorContains(t, err, "unknown built-in template")

	_, err = NewTemplateWriter(&bytes.Buffer{}, TemplateConfig{TemplateString: "{{ .Broken "})
	assert.Error(t, err)

	_, err = NewTemplateWriter(&bytes.Buffer{}, TemplateConfig{TemplatePath: filepath.Join(t.TempDir(), "missing.tmpl")})
	assert.Error(t, err)
}

func TestListSink_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "vulnerable.txt")
	s := NewListSink(path)

	require.NoError(t, s.Write([]string{"http://x/a", "http://x/b"}))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "http://x/a\nhttp://x/b\n", string(data))
	assert.Equal(t, 2, s.Written())
}

func TestListSink_EmptyListCreatesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.txt")
	require.NoError(t, NewListSink(path).Write(nil))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Zero(t, info.Size())
}

func TestListSink_Writer(t *testing.T) {
	var buf bytes.Buffer
	s := NewListWriterSink(&buf)
	require.NoError(t, s.Write([]string{"u"}))
	assert.Equal(t, "u\n", buf.String())
	assert.Empty(t, s.Path())
}

func TestWriters_FailingDestination(t *testing.T) {
	sink := NewListWriterSink(&testutil.FailingWriter{Limit: 4})
	err := sink.Write([]string{"http://x/a", "http://x/b"})
	assert.ErrorIs(t, err, testutil.ErrFault)
	assert.Zero(t, sink.Written())

	jw := NewJSONLWriter(&testutil.FailingWriter{}, JSONLOptions{})
	assert.Error(t, jw.Write(resultEvent(1, "http://x/a", "vulnerable")))
}
