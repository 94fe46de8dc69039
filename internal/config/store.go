package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

const (
	maxConfigFileSize = 1024 * 1024 // 1MB
)

// OptionStore persists plain string options.
type OptionStore interface {
	ReadOption(key, def string) string
	SaveOption(key, value string) error
}

// batchSaver is implemented by stores that can persist several options in
// one write.
type batchSaver interface {
	SaveOptions(opts map[string]string) error
}

// DefaultPath returns ~/.config/jobtrace/config.yaml.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".config", "jobtrace", "config.yaml"), nil
}

// FileStore keeps options in a YAML file.
//
// # Security Considerations
//
// The file must have 0600 or 0400 permissions and be at most 1MB. Only files
// under ~/.config/jobtrace/ or /etc/jobtrace/ are accepted.
type FileStore struct {
	path string

	mu sync.Mutex
	k  *koanf.Koanf
}

// OpenFileStore loads the store at path. An empty path selects DefaultPath.
// A missing file is not an error; it is created on the first save.
func OpenFileStore(path string) (*FileStore, error) {
	if path == "" {
		p, err := DefaultPath()
		if err != nil {
			return nil, err
		}
		path = p
	}

	if err := validateConfigPath(path); err != nil {
		return nil, fmt.Errorf("config path validation failed: %w", err)
	}

	s := &FileStore{path: path, k: koanf.New(".")}

	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	// Validate the already-opened descriptor to avoid a TOCTOU race.
	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if err := validateConfigFileProperties(info); err != nil {
		return nil, fmt.Errorf("config file validation failed: %w", err)
	}

	content, err := io.ReadAll(io.LimitReader(f, maxConfigFileSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := s.k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
	}
	return s, nil
}

// Path returns the file backing the store.
func (s *FileStore) Path() string {
	return s.path
}

// ReadOption implements OptionStore.
func (s *FileStore) ReadOption(key, def string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.k.Exists(key) {
		return def
	}
	return s.k.String(key)
}

// SaveOption implements OptionStore.
func (s *FileStore) SaveOption(key, value string) error {
	return s.SaveOptions(map[string]string{key: value})
}

// SaveOptions sets all options and rewrites the file once.
func (s *FileStore) SaveOptions(opts map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for k, v := range opts {
		if err := s.k.Set(k, v); err != nil {
			return fmt.Errorf("failed to set option %s: %w", k, err)
		}
	}

	data, err := s.k.Marshal(yaml.Parser())
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return writeFileAtomic(s.path, data)
}

// writeFileAtomic writes data to a temp file beside path and renames it.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create config directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".config-*.yaml")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if err := tmp.Chmod(0600); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to chmod temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("failed to replace config file: %w", err)
	}
	return nil
}

// validateConfigPath checks if path is in allowed directories.
// This validation runs even if the file doesn't exist yet.
func validateConfigPath(path string) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to resolve path: %w", err)
	}

	// Resolve symlinks so they cannot escape the allowed directories.
	resolvedPath, err := filepath.EvalSymlinks(absPath)
	if err != nil {
		// Paths that don't exist yet are validated as given.
		resolvedPath = absPath
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("failed to get home directory: %w", err)
	}

	allowedDirs := []string{
		filepath.Join(home, ".config", "jobtrace"),
		"/etc/jobtrace",
	}
	for _, dir := range allowedDirs {
		if resolvedPath == dir || strings.HasPrefix(resolvedPath, dir+string(filepath.Separator)) {
			return nil
		}
		// Compare against the resolved form of the directory too, for homes
		// that live behind a symlink.
		if resolvedDir, err := filepath.EvalSymlinks(dir); err == nil &&
			strings.HasPrefix(resolvedPath, resolvedDir+string(filepath.Separator)) {
			return nil
		}
	}

	return fmt.Errorf("config file must be in ~/.config/jobtrace/ or /etc/jobtrace/")
}

// validateConfigFileProperties checks file permissions and size.
func validateConfigFileProperties(info os.FileInfo) error {
	if runtime.GOOS != "windows" {
		perm := info.Mode().Perm()
		if perm != 0600 && perm != 0400 {
			return fmt.Errorf("insecure config file permissions: %v (expected 0600 or 0400)", perm)
		}
	}

	if info.Size() > maxConfigFileSize {
		return fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxConfigFileSize)
	}

	return nil
}

// MemoryStore is an in-memory OptionStore.
type MemoryStore struct {
	mu   sync.RWMutex
	opts map[string]string
}

// NewMemoryStore returns a store seeded with opts.
func NewMemoryStore(opts map[string]string) *MemoryStore {
	m := &MemoryStore{opts: make(map[string]string, len(opts))}
	for k, v := range opts {
		m.opts[k] = v
	}
	return m
}

// ReadOption implements OptionStore.
func (m *MemoryStore) ReadOption(key, def string) string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if v, ok := m.opts[key]; ok {
		return v
	}
	return def
}

// SaveOption implements OptionStore.
func (m *MemoryStore) SaveOption(key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.opts == nil {
		m.opts = make(map[string]string)
	}
	m.opts[key] = value
	return nil
}
