package ui

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/lostsec/lostsec/pkg/result"
)

// ProgressLine redraws a single status line on a terminal. On anything else
// it prints one line per update at most every Interval.
type ProgressLine struct {
	w        io.Writer
	tty      bool
	width    int
	Interval time.Duration

	mu      sync.Mutex
	last    time.Time
	drawn   bool
	stopped bool
}

// NewProgressLine writes to w (normally stderr).
func NewProgressLine(w io.Writer) *ProgressLine {
	return &ProgressLine{
		w:        w,
		tty:      IsTerminal(w),
		width:    Width(w, 100),
		Interval: 5 * time.Second,
	}
}

// Update renders the counters of s for phase.
func (p *ProgressLine) Update(phase string, batch int64, s result.Snapshot) {
	if IsSilent() {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopped {
		return
	}

	elapsed := time.Since(s.StartedAt)
	var rps float64
	if elapsed > 0 {
		rps = float64(s.Scanned) / elapsed.Seconds()
	}
	line := fmt.Sprintf("[%s] batch %d | scanned %d | vulnerable %d | candidates %d | errors %d | %.0f/s | %s",
		phase, batch, s.Scanned, s.Found, s.Candidates, s.Errors, rps, formatDuration(elapsed))

	if !p.tty {
		if time.Since(p.last) < p.Interval {
			return
		}
		p.last = time.Now()
		fmt.Fprintln(p.w, line)
		return
	}

	if len(line) > p.width-1 {
		line = line[:p.width-1]
	}
	fmt.Fprintf(p.w, "\r%s%s", BracketStyle.Render(line), strings.Repeat(" ", max(0, p.width-1-len(line))))
	p.drawn = true
}

// Clear erases the line so other output can be printed.
func (p *ProgressLine) Clear() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.clearLocked()
}

// Stop clears the line and ignores later updates.
func (p *ProgressLine) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.clearLocked()
	p.stopped = true
}

func (p *ProgressLine) clearLocked() {
	if p.tty && p.drawn {
		fmt.Fprintf(p.w, "\r%s\r", strings.Repeat(" ", p.width-1))
		p.drawn = false
	}
}
