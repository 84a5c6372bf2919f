package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"time"

	"quickchat/internal/pkg/logx"
)

// Preferences is the per-device state kept across restarts. Mute and block never reach the server.
type Preferences struct {
	Muted      []string             `json:"muted"`
	Blocked    []string             `json:"blocked"`
	LastOpened map[string]time.Time `json:"lastOpened"`
}

// PrefStore persists Preferences. Save is best-effort from the session's point of view:
// failures are logged and the in-memory state stays authoritative.
type PrefStore interface {
	Load() (Preferences, error)
	Save(Preferences) error
}

// FilePrefStore keeps preferences in a JSON file, one file per identity.
type FilePrefStore struct {
	path string
}

// NewFilePrefStore returns a store writing to dir/<userID>.json.
func NewFilePrefStore(dir, userID string) *FilePrefStore {
	return &FilePrefStore{path: filepath.Join(dir, userID+".json")}
}

// Load reads the file. A missing or unreadable file yields empty preferences, never an error
// the caller has to handle.
func (f *FilePrefStore) Load() (Preferences, error) {
	empty := Preferences{LastOpened: map[string]time.Time{}}

	b, err := os.ReadFile(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		return empty, nil
	}
	if err != nil {
		return empty, fmt.Errorf("read preferences: %w", err)
	}

	var p Preferences
	if err := json.Unmarshal(b, &p); err != nil {
		logx.Warn("Discarding unreadable preferences file", "path", f.path, "error", err.Error())
		return empty, nil
	}
	if p.LastOpened == nil {
		p.LastOpened = map[string]time.Time{}
	}
	return p, nil
}

// Save writes the file atomically.
func (f *FilePrefStore) Save(p Preferences) error {
	slices.Sort(p.Muted)
	slices.Sort(p.Blocked)

	b, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return fmt.Errorf("encode preferences: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(f.path), 0o700); err != nil {
		return fmt.Errorf("create preferences dir: %w", err)
	}

	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o600); err != nil {
		return fmt.Errorf("write preferences: %w", err)
	}
	return os.Rename(tmp, f.path)
}
