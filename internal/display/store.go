package display

import (
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

//go:embed defaults/*.yaml
var defaultsFS embed.FS

// Record describes one profile as seen by list/save/import operations.
// ModifiedAt is only set for custom (override-tier) profiles.
type Record struct {
	Name       string    `json:"name"`
	IsCustom   bool      `json:"is_custom"`
	ModifiedAt time.Time `json:"modified_at,omitzero"`
}

// Store resolves display profiles across two tiers: read-only defaults
// shipped with the binary and a writable override directory that survives
// upgrades. An override always wins over a default of the same name.
//
// Callers receive parsed Profile values or raw content copies, never
// references into store state, so concurrent reads are safe. Mutations are
// serialized with a mutex; individual files are written via temp-and-rename
// so a concurrent reader sees either the old or the new content, never a
// partial write.
type Store struct {
	defaults    fs.FS
	overrideDir string
	logger      *slog.Logger

	mu sync.RWMutex
}

// NewStore creates a Store over the embedded default profiles, writing
// overrides under overrideDir. The directory is created lazily on first
// write.
func NewStore(overrideDir string) *Store {
	sub, err := fs.Sub(defaultsFS, "defaults")
	if err != nil {
		// The embedded tree always contains defaults/.
		panic(err)
	}
	return NewStoreWithDefaults(sub, overrideDir)
}

// NewStoreWithDefaults creates a Store over an explicit default tier
// (used by tests).
func NewStoreWithDefaults(defaults fs.FS, overrideDir string) *Store {
	return &Store{
		defaults:    defaults,
		overrideDir: overrideDir,
		logger:      slog.Default(),
	}
}

// List returns one record for every profile present in either tier,
// sorted by name. An override entry supersedes the default of the same name.
func (s *Store) List() ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	records := make(map[string]Record)

	entries, err := fs.ReadDir(s.defaults, ".")
	if err != nil {
		return nil, fmt.Errorf("reading default profiles: %w", err)
	}
	for _, e := range entries {
		name, ok := profileName(e.Name())
		if !ok {
			continue
		}
		records[name] = Record{Name: name}
	}

	overrides, err := os.ReadDir(s.overrideDir)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("reading override profiles: %w", err)
	}
	for _, e := range overrides {
		name, ok := profileName(e.Name())
		if !ok {
			continue
		}
		info, err := e.Info()
		if err != nil {
			return nil, fmt.Errorf("reading override profile %s: %w", e.Name(), err)
		}
		records[name] = Record{Name: name, IsCustom: true, ModifiedAt: info.ModTime().UTC()}
	}

	result := make([]Record, 0, len(records))
	for _, r := range records {
		result = append(result, r)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result, nil
}

// Names returns the sorted names of all available profiles. Used to give
// NotFound errors enough context to act on.
func (s *Store) Names() ([]string, error) {
	records, err := s.List()
	if err != nil {
		return nil, err
	}
	names := make([]string, len(records))
	for i, r := range records {
		names[i] = r.Name
	}
	return names, nil
}

// Load resolves name through the tier rule and parses the result.
func (s *Store) Load(name string) (Profile, error) {
	raw, err := s.Raw(name)
	if err != nil {
		return Profile{}, err
	}
	return ParseProfile(name, raw)
}

// Raw returns the resolved raw profile content: override tier if present,
// else default tier, else ErrNotFound.
func (s *Store) Raw(name string) ([]byte, error) {
	if !ValidName(name) {
		return nil, ErrInvalidName
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rawLocked(name)
}

func (s *Store) rawLocked(name string) ([]byte, error) {
	content, err := os.ReadFile(s.overridePath(name))
	if err == nil {
		return content, nil
	}
	if !os.IsNotExist(err) {
		return nil, fmt.Errorf("reading override profile %s: %w", name, err)
	}

	content, err = fs.ReadFile(s.defaults, name+Ext)
	if err == nil {
		return content, nil
	}
	if !os.IsNotExist(err) {
		return nil, fmt.Errorf("reading default profile %s: %w", name, err)
	}
	return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
}

// Save validates content and writes it into the override tier, regardless
// of whether a default with the same name exists — this is how a built-in
// profile is customized.
func (s *Store) Save(name string, content []byte) (Record, error) {
	if !ValidName(name) {
		return Record{}, ErrInvalidName
	}
	if _, err := ParseProfile(name, content); err != nil {
		return Record{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writeLocked(name, content)
}

// Reset deletes the override entry for name, restoring the default.
// Fails with ErrNotFound if there is no override, or if there is no default
// to fall back to (resetting to nothing is not permitted).
func (s *Store) Reset(name string) error {
	if !ValidName(name) {
		return ErrInvalidName
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := os.Stat(s.overridePath(name)); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: no custom configuration for %s", ErrNotFound, name)
		}
		return fmt.Errorf("checking override profile %s: %w", name, err)
	}
	if _, err := fs.Stat(s.defaults, name+Ext); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: no default configuration for %s", ErrNotFound, name)
		}
		return fmt.Errorf("checking default profile %s: %w", name, err)
	}

	if err := os.Remove(s.overridePath(name)); err != nil {
		return fmt.Errorf("removing override profile %s: %w", name, err)
	}
	s.logger.Info("display profile reset to default", "name", name)
	return nil
}

// Duplicate copies the resolved content of source verbatim into a new
// override entry named newName. The new name is validated before any
// storage access.
func (s *Store) Duplicate(source, newName string) (Record, error) {
	if !ValidName(newName) {
		return Record{}, ErrInvalidName
	}
	if !ValidName(source) {
		return Record{}, fmt.Errorf("%w: %s", ErrNotFound, source)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	content, err := s.rawLocked(source)
	if err != nil {
		return Record{}, err
	}

	if _, err := os.Stat(s.overridePath(newName)); err == nil {
		return Record{}, fmt.Errorf("%w: %s", ErrExists, newName)
	} else if !os.IsNotExist(err) {
		return Record{}, fmt.Errorf("checking override profile %s: %w", newName, err)
	}

	rec, err := s.writeLocked(newName, content)
	if err != nil {
		return Record{}, err
	}
	s.logger.Info("display profile duplicated", "source", source, "name", newName)
	return rec, nil
}

// Delete removes an override entry. Default-tier profiles cannot be
// deleted, only reset away from their override.
func (s *Store) Delete(name string) error {
	if !ValidName(name) {
		return ErrInvalidName
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.overridePath(name)); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: no custom configuration for %s", ErrNotFound, name)
		}
		return fmt.Errorf("removing override profile %s: %w", name, err)
	}
	s.logger.Info("display profile deleted", "name", name)
	return nil
}

// Export returns the resolved raw content and its canonical filename.
func (s *Store) Export(name string) (string, []byte, error) {
	content, err := s.Raw(name)
	if err != nil {
		return "", nil, err
	}
	return name + Ext, content, nil
}

// Import derives the profile name from filename, validates content, and
// writes an override entry. An existing override is only replaced when
// overwrite is set.
func (s *Store) Import(filename string, content []byte, overwrite bool) (Record, error) {
	name, ok := profileName(filepath.Base(filename))
	if !ok {
		if !strings.HasSuffix(filename, Ext) {
			return Record{}, fmt.Errorf("%w: filename must end with %s", ErrInvalidName, Ext)
		}
		return Record{}, ErrInvalidName
	}
	if _, err := ParseProfile(name, content); err != nil {
		return Record{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !overwrite {
		if _, err := os.Stat(s.overridePath(name)); err == nil {
			return Record{}, fmt.Errorf("%w: %s", ErrExists, name)
		} else if !os.IsNotExist(err) {
			return Record{}, fmt.Errorf("checking override profile %s: %w", name, err)
		}
	}

	rec, err := s.writeLocked(name, content)
	if err != nil {
		return Record{}, err
	}
	s.logger.Info("display profile imported", "name", name)
	return rec, nil
}

// writeLocked writes content into the override tier via temp-and-rename.
// Caller holds the write lock.
func (s *Store) writeLocked(name string, content []byte) (Record, error) {
	if err := os.MkdirAll(s.overrideDir, 0o755); err != nil {
		return Record{}, fmt.Errorf("creating override directory: %w", err)
	}

	tmp, err := os.CreateTemp(s.overrideDir, name+".*.tmp")
	if err != nil {
		return Record{}, fmt.Errorf("creating temp file for %s: %w", name, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(content); err != nil {
		tmp.Close()
		return Record{}, fmt.Errorf("writing profile %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		return Record{}, fmt.Errorf("closing temp file for %s: %w", name, err)
	}
	if err := os.Rename(tmp.Name(), s.overridePath(name)); err != nil {
		return Record{}, fmt.Errorf("replacing profile %s: %w", name, err)
	}

	s.logger.Info("display profile saved", "name", name)
	return Record{Name: name, IsCustom: true, ModifiedAt: time.Now().UTC()}, nil
}

func (s *Store) overridePath(name string) string {
	return filepath.Join(s.overrideDir, name+Ext)
}

// profileName extracts a valid profile name from a file name, or reports
// that the file is not a profile.
func profileName(filename string) (string, bool) {
	if !strings.HasSuffix(filename, Ext) {
		return "", false
	}
	name := strings.TrimSuffix(filename, Ext)
	if !ValidName(name) {
		return "", false
	}
	return name, true
}
