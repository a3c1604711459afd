package httpclient

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
	"syscall"
)

// Sentinel errors for HTTP client failure modes.
// Callers should use errors.Is() to check for these.
var (
	// ErrTransport is the parent of every network-level probe failure.
	ErrTransport = errors.New("httpclient: transport error")

	// ErrTimeout indicates the request exceeded its deadline.
	ErrTimeout = errors.New("httpclient: request timed out")

	// ErrDNS indicates a DNS resolution failure for the target host.
	ErrDNS = errors.New("httpclient: DNS resolution failed")

	// ErrTLS indicates a TLS handshake or certificate verification failure.
	ErrTLS = errors.New("httpclient: TLS handshake failed")

	// ErrRefused indicates the connection was refused or reset.
	ErrRefused = errors.New("httpclient: connection refused")

	// ErrInvalidProxy indicates the configured proxy URL could not be parsed.
	ErrInvalidProxy = errors.New("httpclient: invalid proxy URL")
)

// Classify wraps a raw client error so that errors.Is matches ErrTransport
// and the most specific failure kind. Nil stays nil.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrTransport) {
		return err
	}
	return fmt.Errorf("%w: %w: %w", ErrTransport, kindOf(err), err)
}

func kindOf(err error) error {
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return ErrDNS
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return ErrTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrTimeout
	}

	var certErr *tls.CertificateVerificationError
	var recordErr tls.RecordHeaderError
	var unknownAuth x509.UnknownAuthorityError
	if errors.As(err, &certErr) || errors.As(err, &recordErr) || errors.As(err, &unknownAuth) {
		return ErrTLS
	}

	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) {
		return ErrRefused
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "tls"), strings.Contains(msg, "x509"):
		return ErrTLS
	case strings.Contains(msg, "no such host"):
		return ErrDNS
	case strings.Contains(msg, "connection refused"), strings.Contains(msg, "connection reset"):
		return ErrRefused
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Timeout() {
		return ErrTimeout
	}
	return ErrRefused
}
