package input

import (
	"flag"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeList(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "list.txt")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestSource_OrderAndTrimming(t *testing.T) {
	s := &Source{
		Values:   []string{" http://a/ ", ""},
		ListFile: writeList(t, "http://b/\n\n  http://c/\n"),
		Stdin:    strings.NewReader("http://d/\n"),
	}
	require.NoError(t, s.Validate())

	assert.Equal(t, []string{"http://a/", "http://b/", "http://c/", "http://d/"}, slices.Collect(s.Seq()))
	assert.NoError(t, s.Err())
}

func TestSource_Restartable(t *testing.T) {
	s := &Source{
		ListFile: writeList(t, "1\n2\n3\n"),
		Stdin:    strings.NewReader("4\n"),
	}
	first := slices.Collect(s.Seq())
	second := slices.Collect(s.Seq())
	assert.Equal(t, []string{"1", "2", "3", "4"}, first)
	assert.Equal(t, first, second)
}

func TestSource_StopsEarly(t *testing.T) {
	s := &Source{ListFile: writeList(t, "1\n2\n3\n")}
	var got []string
	for v := range s.Seq() {
		got = append(got, v)
		if len(got) == 2 {
			break
		}
	}
	assert.Equal(t, []string{"1", "2"}, got)
}

func TestSource_Comments(t *testing.T) {
	path := writeList(t, "# targets\nhttp://a/\n#x\n")

	s := &Source{ListFile: path, SkipComments: true}
	assert.Equal(t, []string{"http://a/"}, slices.Collect(s.Seq()))

	payloads := &Source{ListFile: path}
	assert.Len(t, slices.Collect(payloads.Seq()), 3)
}

func TestSource_ValidateErrors(t *testing.T) {
	assert.ErrorIs(t, (&Source{}).Validate(), ErrNoInput)

	s := &Source{ListFile: filepath.Join(t.TempDir(), "missing.txt")}
	assert.ErrorIs(t, s.Validate(), ErrUnreadable)

	assert.Empty(t, slices.Collect(s.Seq()))
	assert.ErrorIs(t, s.Err(), ErrUnreadable)
}

func TestStringSliceFlag(t *testing.T) {
	var urls StringSliceFlag
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	fs.Var(&urls, "u", "target URLs")

	require.NoError(t, fs.Parse([]string{"-u", "https://a.com, https://b.com", "-u", "https://c.com", "-u", ""}))
	assert.Equal(t, StringSliceFlag{"https://a.com", "https://b.com", "https://c.com"}, urls)
	assert.Equal(t, "https://a.com,https://b.com,https://c.com", urls.String())
	assert.Equal(t, "strings", urls.Type())
}
