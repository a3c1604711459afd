package ui

import (
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"
	"sync"
	"unicode"
	"unicode/utf8"

	"golang.org/x/term"
)

var (
	unicodeOnce sync.Once
	unicodeOK   bool
)

// IsTerminal reports whether w is an interactive terminal.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return term.IsTerminal(int(f.Fd()))
}

// Width returns the terminal width of w, or fallback when w is not a
// terminal.
func Width(w io.Writer, fallback int) int {
	f, ok := w.(*os.File)
	if !ok {
		return fallback
	}
	width, _, err := term.GetSize(int(f.Fd()))
	if err != nil || width <= 0 {
		return fallback
	}
	return width
}

// UnicodeTerminal reports whether stderr can render Unicode glyphs.
// False when stderr is redirected, TERM is "dumb", or on a legacy Windows
// console (Windows Terminal sets WT_SESSION).
func UnicodeTerminal() bool {
	unicodeOnce.Do(func() {
		if os.Getenv("TERM") == "dumb" || !IsTerminal(os.Stderr) {
			return
		}
		if runtime.GOOS == "windows" {
			unicodeOK = os.Getenv("WT_SESSION") != ""
			return
		}
		unicodeOK = true
	})
	return unicodeOK
}

// Icon returns unicode when the terminal supports it, ascii otherwise.
func Icon(unicode, ascii string) string {
	if UnicodeTerminal() {
		return unicode
	}
	return ascii
}

// SanitizeString drops glyphs a legacy terminal cannot render. Unicode
// terminals get s unchanged.
func SanitizeString(s string) string {
	if UnicodeTerminal() {
		return s
	}
	return asciiFold(s)
}

func asciiFold(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); {
		r, size := utf8.DecodeRuneInString(s[i:])
		switch {
		case r < 0x80:
			b.WriteByte(s[i])
		case r >= 0xFE00 && r <= 0xFE0F:
			// variation selector
		case r <= 0xFF || unicode.Is(unicode.Latin, r):
			b.WriteRune(r)
		}
		i += size
	}
	return b.String()
}

// Fprintf writes to w with terminal-appropriate sanitization.
func Fprintf(w io.Writer, format string, args ...any) {
	fmt.Fprint(w, SanitizeString(fmt.Sprintf(format, args...)))
}
