// Package input turns command-line values, files and stdin into lazy,
// restartable line sequences for the task generator.
package input

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"iter"
	"os"
	"strings"
	"sync"
)

var (
	// ErrNoInput is returned when a Source has nothing configured.
	ErrNoInput = errors.New("input: no values, file or stdin given")

	// ErrUnreadable is returned when a list file cannot be opened.
	ErrUnreadable = errors.New("input: cannot read file")
)

// maxLineSize bounds one input line; longer lines end iteration with an error.
const maxLineSize = 1 << 20

// Source consolidates the ways values reach the scanner: literal values
// (from -u or -p flags), a list file, and piped stdin.
type Source struct {
	Values   []string
	ListFile string
	Stdin    io.Reader

	// SkipComments drops lines starting with "#". Payload lists keep them
	// since "#" is meaningful in URLs.
	SkipComments bool

	mu    sync.Mutex
	err   error
	stdin []string
	read  bool
}

// Validate checks that at least one input is configured and the list file
// is readable, so errors surface before the scan starts.
func (s *Source) Validate() error {
	if len(s.Values) == 0 && s.ListFile == "" && s.Stdin == nil {
		return ErrNoInput
	}
	if s.ListFile != "" {
		f, err := os.Open(s.ListFile)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrUnreadable, err)
		}
		f.Close()
	}
	return nil
}

// Seq yields literal values, then file lines, then stdin lines. The file is
// reopened on every iteration, so the sequence can be walked more than
// once (for the checkpoint signature and again for the scan) without
// holding the file in memory. Stdin can only be read once and is buffered.
// Read errors stop iteration and are reported by Err.
func (s *Source) Seq() iter.Seq[string] {
	return func(yield func(string) bool) {
		for _, v := range s.Values {
			if !s.emit(v, yield) {
				return
			}
		}
		if s.ListFile != "" {
			for line := range s.fileLines() {
				if !s.emit(line, yield) {
					return
				}
			}
		}
		if s.Stdin != nil {
			for _, line := range s.stdinLines() {
				if !s.emit(line, yield) {
					return
				}
			}
		}
	}
}

// Err returns the first read error seen by any iteration.
func (s *Source) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *Source) emit(v string, yield func(string) bool) bool {
	v = strings.TrimSpace(v)
	if v == "" || (s.SkipComments && strings.HasPrefix(v, "#")) {
		return true
	}
	return yield(v)
}

func (s *Source) fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err == nil {
		s.err = err
	}
}

func (s *Source) fileLines() iter.Seq[string] {
	return func(yield func(string) bool) {
		f, err := os.Open(s.ListFile)
		if err != nil {
			s.fail(fmt.Errorf("%w: %w", ErrUnreadable, err))
			return
		}
		defer f.Close()

		sc := bufio.NewScanner(f)
		sc.Buffer(make([]byte, 0, 64*1024), maxLineSize)
		for sc.Scan() {
			if !yield(sc.Text()) {
				return
			}
		}
		if err := sc.Err(); err != nil {
			s.fail(fmt.Errorf("input: %s: %w", s.ListFile, err))
		}
	}
}

func (s *Source) stdinLines() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.read {
		return s.stdin
	}
	s.read = true

	sc := bufio.NewScanner(s.Stdin)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	for sc.Scan() {
		s.stdin = append(s.stdin, sc.Text())
	}
	if err := sc.Err(); err != nil && s.err == nil {
		s.err = fmt.Errorf("input: stdin: %w", err)
	}
	return s.stdin
}

// PipedStdin returns os.Stdin when it is a pipe or file, nil for a terminal.
func PipedStdin() io.Reader {
	stat, err := os.Stdin.Stat()
	if err != nil || stat.Mode()&os.ModeCharDevice != 0 {
		return nil
	}
	return os.Stdin
}
