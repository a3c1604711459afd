// Package exitcode maps a scan outcome to a process exit code so CI
// pipelines can react to findings.
//
// Exit codes:
//   - 0: Success (no vulnerable URLs)
//   - 1: Vulnerable URLs found (configurable)
//   - 2: Scan or sink failure
//   - 3: Invalid configuration
//   - 4: Confirmation sessions could not be started
//   - 5: Scan interrupted
package exitcode

import (
	"errors"
	"fmt"

	"github.com/lostsec/lostsec/pkg/browser"
	"github.com/lostsec/lostsec/pkg/result"
	"github.com/lostsec/lostsec/pkg/scanner"
)

// Code is a semantic exit code.
type Code int

const (
	Success       Code = 0
	Vulnerable    Code = 1
	Errors        Code = 2
	Configuration Code = 3
	Resources     Code = 4
	Interrupted   Code = 5
)

var codeStrings = map[Code]string{
	Success:       "success",
	Vulnerable:    "vulnerable_found",
	Errors:        "scan_failed",
	Configuration: "invalid_configuration",
	Resources:     "resource_acquisition_failed",
	Interrupted:   "scan_interrupted",
}

var codeDescriptions = map[Code]string{
	Success:       "Scan completed with no vulnerable URLs",
	Vulnerable:    "One or more vulnerable URLs were found",
	Errors:        "Scan failed or results could not be written",
	Configuration: "Invalid configuration provided",
	Resources:     "Browser sessions for confirmation could not be started",
	Interrupted:   "Scan was interrupted by user or signal",
}

// Config tunes the mapping.
type Config struct {
	// FindingsCode is returned when vulnerable URLs were found. Zero
	// means Success, for pipelines that only fail on errors.
	FindingsCode Code
}

// DefaultConfig fails the run on findings.
func DefaultConfig() Config {
	return Config{FindingsCode: Vulnerable}
}

// FromScan classifies a finished scan. Priority: interrupted, resource
// failure, configuration, other errors, findings, success.
func FromScan(cfg Config, snap *result.Snapshot, err error) (Code, string) {
	switch {
	case errors.Is(err, scanner.ErrCancelled):
		return Interrupted, describe(Interrupted, snap)
	case errors.Is(err, browser.ErrResourceAcquisition):
		return Resources, codeDescriptions[Resources]
	case errors.Is(err, scanner.ErrInvalidConfig):
		return Configuration, codeDescriptions[Configuration]
	case err != nil:
		return Errors, fmt.Sprintf("%s: %v", codeDescriptions[Errors], err)
	}

	if snap != nil && snap.Found > 0 && cfg.FindingsCode != Success {
		return cfg.FindingsCode, describe(Vulnerable, snap)
	}
	return Success, codeDescriptions[Success]
}

func describe(c Code, snap *result.Snapshot) string {
	if snap == nil {
		return codeDescriptions[c]
	}
	return fmt.Sprintf("%s (scanned: %d, vulnerable: %d)", codeDescriptions[c], snap.Scanned, snap.Found)
}

// CodeString returns the machine-readable name of code.
func CodeString(code Code) string {
	if s, ok := codeStrings[code]; ok {
		return s
	}
	return fmt.Sprintf("unknown_code_%d", code)
}

// Description returns the human-readable description of code.
func Description(code Code) string {
	if s, ok := codeDescriptions[code]; ok {
		return s
	}
	return fmt.Sprintf("Unknown exit code: %d", code)
}
