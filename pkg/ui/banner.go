// Package ui renders the terminal front end: banner, live progress and the
// end-of-scan summary. Everything goes to stderr except what a caller
// explicitly sends elsewhere.
package ui

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"

	"github.com/lostsec/lostsec/pkg/defaults"
)

var (
	silentMode  bool
	noColorMode bool
	uiMu        sync.RWMutex
)

// SetSilent suppresses everything but the summary and errors.
func SetSilent(silent bool) {
	uiMu.Lock()
	defer uiMu.Unlock()
	silentMode = silent
}

// IsSilent returns whether silent mode is enabled
func IsSilent() bool {
	uiMu.RLock()
	defer uiMu.RUnlock()
	return silentMode
}

// SetNoColor disables colored output
func SetNoColor(noColor bool) {
	uiMu.Lock()
	defer uiMu.Unlock()
	noColorMode = noColor
	if noColor {
		lipgloss.SetColorProfile(termenv.Ascii)
	}
}

// IsNoColor returns whether color is disabled
func IsNoColor() bool {
	uiMu.RLock()
	defer uiMu.RUnlock()
	return noColorMode
}

const bannerArt = `
 __               __                 
/ /  ___  ___ ___/ /___ ___ ___ 
/ /__/ _ \(_-</ __(_-</ -_) __/
/____/\___/___/\__/___/\__/\__/ 
`

// PrintBanner prints the banner and version.
func PrintBanner(w io.Writer) {
	if IsSilent() {
		return
	}
	for _, line := range strings.Split(bannerArt, "\n") {
		if line != "" {
			fmt.Fprintln(w, BannerStyle.Render(line))
		}
	}
	fmt.Fprintf(w, "             v%s\n\n", VersionStyle.Render(defaults.Version))
}

// ConfigItem is one row of PrintConfig.
type ConfigItem struct {
	Label string
	Value string
}

// PrintConfig prints the scan settings in the given order. Empty values
// are skipped.
func PrintConfig(w io.Writer, items []ConfigItem) {
	if IsSilent() {
		return
	}
	for _, it := range items {
		if it.Value == "" {
			continue
		}
		fmt.Fprintf(w, "  %s %s\n", LabelStyle.Render(it.Label+":"), ValueStyle.Render(it.Value))
	}
	fmt.Fprintln(w)
}

func PrintSuccess(w io.Writer, message string) {
	Fprintf(w, "%s %s\n", SuccessStyle.Render(Icon("✔", "[+]")), message)
}

func PrintError(w io.Writer, message string) {
	Fprintf(w, "%s %s\n", ErrorStyle.Render(Icon("✘", "[x]")), message)
}

func PrintWarning(w io.Writer, message string) {
	Fprintf(w, "%s %s\n", WarningStyle.Render(Icon("⚠", "[!]")), message)
}

func PrintInfo(w io.Writer, message string) {
	if IsSilent() {
		return
	}
	Fprintf(w, "%s %s\n", InfoStyle.Render(Icon("ℹ", "[*]")), message)
}
