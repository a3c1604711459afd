// Package checkpoint persists scan progress so an interrupted scan can
// resume. Tasks are dispatched in a deterministic order, so progress is a
// prefix length plus the aggregated result and any candidates still waiting
// for confirmation.
package checkpoint

import (
	"encoding/hex"
	"errors"
	"fmt"
	"iter"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/spaolacci/murmur3"

	"github.com/lostsec/lostsec/pkg/confirm"
	"github.com/lostsec/lostsec/pkg/jsonutil"
	"github.com/lostsec/lostsec/pkg/result"
)

// FormatVersion is written into every checkpoint.
const FormatVersion = "1"

var (
	// ErrNoCheckpoint is returned by Load when the file does not exist.
	ErrNoCheckpoint = errors.New("checkpoint: no checkpoint file")

	// ErrMismatch is returned by Resume when the checkpoint belongs to a
	// different scan (other variant, targets or payloads).
	ErrMismatch = errors.New("checkpoint: signature mismatch")

	// ErrCorrupt is returned when the file cannot be decoded.
	ErrCorrupt = errors.New("checkpoint: corrupt file")
)

// State is the persisted progress of one scan.
type State struct {
	Version   string `json:"version"`
	Signature string `json:"signature"`
	Variant   string `json:"variant"`
	ScanID    string `json:"scan_id"`

	StartTime  time.Time `json:"start_time"`
	LastUpdate time.Time `json:"last_update"`

	// Dispatched is how many tasks, in generation order, are fully
	// accounted for in Snapshot.
	Dispatched int64 `json:"dispatched"`

	Snapshot result.Snapshot     `json:"snapshot"`
	Pending  []confirm.Candidate `json:"pending,omitempty"`
}

// Manager reads and writes one checkpoint file. Safe for concurrent use.
type Manager struct {
	path string
	mu   sync.Mutex
}

// NewManager creates a manager for path (default "lostsec.resume.json").
func NewManager(path string) *Manager {
	if path == "" {
		path = "lostsec.resume.json"
	}
	return &Manager{path: path}
}

// Path returns the checkpoint file path.
func (m *Manager) Path() string { return m.path }

// Load reads the checkpoint file.
func (m *Manager) Load() (*State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	data, err := os.ReadFile(m.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNoCheckpoint
	}
	if err != nil {
		return nil, fmt.Errorf("checkpoint: read: %w", err)
	}

	var st State
	if err := jsonutil.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorrupt, err)
	}
	if st.Version != FormatVersion {
		return nil, fmt.Errorf("%w: version %q", ErrCorrupt, st.Version)
	}
	return &st, nil
}

// Resume loads the checkpoint and checks it belongs to the scan identified
// by signature. A missing file yields (nil, nil).
func (m *Manager) Resume(signature string) (*State, error) {
	st, err := m.Load()
	if errors.Is(err, ErrNoCheckpoint) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if st.Signature != signature {
		return nil, fmt.Errorf("%w: file %s, scan %s", ErrMismatch, st.Signature, signature)
	}
	return st, nil
}

// Save writes st atomically: a temp file in the same directory is renamed
// over the checkpoint.
func (m *Manager) Save(st *State) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	st.Version = FormatVersion
	st.LastUpdate = time.Now()

	data, err := jsonutil.MarshalIndent(st, "  ")
	if err != nil {
		return fmt.Errorf("checkpoint: encode: %w", err)
	}

	dir := filepath.Dir(m.path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("checkpoint: mkdir: %w", err)
		}
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(m.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("checkpoint: temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("checkpoint: write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("checkpoint: write: %w", err)
	}
	if err := os.Rename(tmp.Name(), m.path); err != nil {
		return fmt.Errorf("checkpoint: rename: %w", err)
	}
	return nil
}

// Delete removes the checkpoint file. A missing file is not an error.
func (m *Manager) Delete() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := os.Remove(m.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("checkpoint: delete: %w", err)
	}
	return nil
}

// Exists reports whether the checkpoint file exists.
func (m *Manager) Exists() bool {
	_, err := os.Stat(m.path)
	return err == nil
}

// Signature fingerprints a scan: the variant name, the injection mode and
// every target and payload line. Restartable sequences are walked once.
func Signature(variant, mode string, targets, payloads iter.Seq[string]) string {
	h := murmur3.New128()
	write := func(s string) {
		_, _ = h.Write([]byte(s))
		_, _ = h.Write([]byte{0})
	}

	write(variant)
	write(mode)
	write("targets")
	for t := range targets {
		write(t)
	}
	write("payloads")
	for p := range payloads {
		write(p)
	}
	return hex.EncodeToString(h.Sum(nil))
}
