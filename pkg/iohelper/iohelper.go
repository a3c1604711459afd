// Package iohelper provides helper functions for I/O operations,
// particularly for safely reading HTTP response bodies with limits.
package iohelper

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"strings"
	"unicode/utf8"

	"golang.org/x/net/html/charset"
	"golang.org/x/text/transform"
)

// Standard body size limits for different use cases
const (
	// SmallMaxBodySize is for error pages and status responses (8KB)
	SmallMaxBodySize int64 = 8 * 1024

	// DefaultMaxBodySize is the detector-visible body prefix (512KB)
	DefaultMaxBodySize int64 = 512 * 1024

	// drainLimit caps how much is discarded to keep a connection reusable.
	drainLimit = 64 * 1024
)

var (
	// ErrUnknownCharset is returned when a response declares a charset
	// that has no registered decoder.
	ErrUnknownCharset = errors.New("iohelper: unknown charset")

	// ErrDecode is returned when the body cannot be transcoded to UTF-8.
	ErrDecode = errors.New("iohelper: body decode failed")
)

// ReadBody reads from an io.Reader with a size limit.
// If r is nil, returns empty slice and no error.
// This prevents memory exhaustion from maliciously large responses.
//
// Usage:
//
//	body, err := iohelper.ReadBody(resp.Body, iohelper.DefaultMaxBodySize)
//	defer iohelper.DrainAndClose(resp.Body)
func ReadBody(r io.Reader, maxSize int64) ([]byte, error) {
	if r == nil {
		return []byte{}, nil
	}
	return io.ReadAll(io.LimitReader(r, maxSize))
}

// ReadBodyOrLog reads up to DefaultMaxBodySize and logs any error.
// It returns the bytes read so far (which may be partial on error).
func ReadBodyOrLog(r io.Reader, logger *slog.Logger) []byte {
	data, err := ReadBody(r, DefaultMaxBodySize)
	if err != nil && logger != nil {
		logger.Warn("body read failed", slog.String("error", err.Error()))
	}
	return data
}

// DrainAndClose reads any remaining data from r and closes it if it's a ReadCloser.
// This ensures the connection can be reused for HTTP keep-alive.
// Always returns nil error to allow use in defer.
func DrainAndClose(r io.Reader) error {
	if r == nil {
		return nil
	}

	_, _ = io.Copy(io.Discard, io.LimitReader(r, drainLimit))

	if rc, ok := r.(io.ReadCloser); ok {
		rc.Close()
	}
	return nil
}

// DecodeBody converts a response body to UTF-8 text using the charset
// declared in contentType. Without a declaration, valid UTF-8 is returned
// as-is and anything else is sniffed the way browsers do.
func DecodeBody(body []byte, contentType string) (string, error) {
	if len(body) == 0 {
		return "", nil
	}

	if label := charsetLabel(contentType); label != "" {
		enc, name := charset.Lookup(label)
		if enc == nil {
			return "", fmt.Errorf("%w: %q", ErrUnknownCharset, label)
		}
		if name == "utf-8" && utf8.Valid(body) {
			return string(body), nil
		}
		out, _, err := transform.Bytes(enc.NewDecoder(), body)
		if err != nil {
			return "", fmt.Errorf("%w: %s: %v", ErrDecode, name, err)
		}
		return string(out), nil
	}

	if utf8.Valid(body) {
		return string(body), nil
	}

	enc, name, _ := charset.DetermineEncoding(body, contentType)
	out, _, err := transform.Bytes(enc.NewDecoder(), body)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrDecode, name, err)
	}
	return string(out), nil
}

func charsetLabel(contentType string) string {
	if contentType == "" {
		return ""
	}
	_, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(params["charset"])
}
