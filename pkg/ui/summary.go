package ui

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/lostsec/lostsec/pkg/result"
)

// PrintFinding prints one vulnerable URL as it is found.
func PrintFinding(w io.Writer, phase, url, evidence string, confirmed bool) {
	tag := "probe"
	if confirmed {
		tag = "confirmed"
	}
	line := fmt.Sprintf("%s %s %s",
		VulnStyle.Render("[VULN]"),
		BracketStyle.Render("["+phase+"/"+tag+"]"),
		URLStyle.Render(url))
	if evidence != "" {
		line += " " + BracketStyle.Render("("+truncate(evidence, 80)+")")
	}
	Fprintf(w, "%s\n", line)
}

// PrintSummary prints the end-of-scan box followed by the vulnerable URLs.
// It prints in silent mode too.
func PrintSummary(w io.Writer, s result.Snapshot) {
	rows := []struct {
		label string
		value string
		style lipgloss.Style
	}{
		{"Variant", s.Variant, ValueStyle},
		{"State", stateText(s.Termination), stateStyle(s.Termination.State)},
		{"Scanned", fmt.Sprint(s.Scanned), StatValueStyle},
		{"Vulnerable", fmt.Sprint(s.Found), countStyle(s.Found, VulnStyle)},
		{"Candidates", fmt.Sprint(s.Candidates), countStyle(s.Candidates, CandidateStyle)},
		{"Confirmed", fmt.Sprint(s.Confirmed), StatValueStyle},
		{"Unconfirmed", fmt.Sprint(s.Unconfirmed), StatValueStyle},
		{"Confirm failed", fmt.Sprint(s.ConfirmationFailures), countStyle(s.ConfirmationFailures, WarningStyle)},
		{"Errors", fmt.Sprint(s.Errors), countStyle(s.Errors, WarningStyle)},
		{"Skipped", fmt.Sprint(s.Skipped), StatValueStyle},
		{"Duration", formatDuration(s.Elapsed), StatValueStyle},
	}

	var b strings.Builder
	for i, r := range rows {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(LabelStyle.Render(r.label) + r.style.Render(r.value))
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, SectionStyle.Render("Scan Summary"))
	fmt.Fprintln(w, BoxStyle.Render(b.String()))

	if len(s.Vulnerable) == 0 {
		PrintSuccess(w, "no vulnerable URLs found")
		return
	}
	fmt.Fprintln(w)
	for _, f := range s.Vulnerable {
		mark := Icon("●", "*")
		if f.Confirmed {
			mark = Icon("◆", "!")
		}
		Fprintf(w, "  %s %s\n", VulnStyle.Render(mark), URLStyle.Render(f.URL))
	}
}

func stateText(t result.Termination) string {
	if t.Reason == "" {
		return string(t.State)
	}
	return string(t.State) + " (" + t.Reason + ")"
}

func stateStyle(s result.State) lipgloss.Style {
	if s == result.StateAborted {
		return WarningStyle
	}
	return CleanStyle
}

func countStyle(n int64, nonzero lipgloss.Style) lipgloss.Style {
	if n > 0 {
		return nonzero
	}
	return StatValueStyle
}

func formatDuration(d time.Duration) string {
	switch {
	case d < time.Second:
		return fmt.Sprintf("%dms", d.Milliseconds())
	case d < time.Minute:
		return fmt.Sprintf("%.1fs", d.Seconds())
	default:
		return d.Round(time.Second).String()
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
