// Package config holds the manager's process-wide Settings record and its
// on-disk TOML form.
//
// Grounded on the teacher's internal/config/settings.go for the shape of
// the concern (a single Settings struct, defaults, atomic save, a
// RuntimeConfig view consumed by the download engine) but narrowed to the
// field set spec.md §3/§6 actually names, and persisted as TOML via
// pelletier/go-toml/v2 — the library original_source/aura-core/src/config.rs
// uses the Rust `toml` crate for this same file, and go-toml/v2 is the one
// TOML library already present (transitively) in the retrieved pack.
package config

import (
	"os"
	"path/filepath"
	"sync"

	"github.com/pelletier/go-toml/v2"
)

// Settings is the process-wide configuration record (spec.md §3).
type Settings struct {
	DownloadDir            string `toml:"download_dir"`
	MaxConcurrentDownloads int    `toml:"max_concurrent_downloads"`
	SegmentsPerFile        int    `toml:"segments_per_file"`
	UserAgent              string `toml:"user_agent"`
}

// Store guards a Settings record behind a reader/writer discipline: readers
// receive a cloned snapshot and never hold the lock while using it (spec.md
// §5's "Settings: reader-writer lock" rule).
type Store struct {
	mu       sync.RWMutex
	path     string
	settings Settings
}

const fileName = "settings.toml"

// DefaultDir returns the per-OS user config directory for this app,
// "<user-config>/aura" per spec.md §6. Callers on mobile are expected to
// supply their own directory to Load instead of relying on this.
func DefaultDir() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(base, "aura"), nil
}

// Default returns a Settings record with sensible defaults; download_dir
// defaults to the user's home Downloads folder.
func Default() Settings {
	home, _ := os.UserHomeDir()
	return Settings{
		DownloadDir:            filepath.Join(home, "Downloads"),
		MaxConcurrentDownloads: 3,
		SegmentsPerFile:        4,
		UserAgent:              "aura-core/1.0",
	}
}

// Load reads settings.toml from dir, writing defaults if the file is absent.
// A malformed file is reported as an error rather than silently replaced,
// since unlike the ledger a corrupt settings file is a configuration
// mistake worth surfacing, not routine churn.
func Load(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	path := filepath.Join(dir, fileName)

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, err
		}
		s := &Store{path: path, settings: Default()}
		if err := s.save(); err != nil {
			return nil, err
		}
		return s, nil
	}

	settings := Default()
	if err := toml.Unmarshal(data, &settings); err != nil {
		return nil, err
	}
	return &Store{path: path, settings: settings}, nil
}

// Get returns a cloned snapshot of the current settings.
func (s *Store) Get() Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.settings
}

// Update replaces the settings and persists the new value.
func (s *Store) Update(next Settings) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings = next
	return s.save()
}

// save must be called with s.mu held.
func (s *Store) save() error {
	data, err := toml.Marshal(s.settings)
	if err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}
