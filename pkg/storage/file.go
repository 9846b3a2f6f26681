package storage

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/cuemby/cirrus/pkg/types"
)

// FileStore keeps the pricing file as a single JSON document on disk
type FileStore struct {
	path string
	mu   sync.Mutex
}

// NewFileStore creates a JSON file store at path. The file is created on
// the first Save.
func NewFileStore(path string) (*FileStore, error) {
	if path == "" {
		return nil, errors.New("pricing file path is required")
	}
	return &FileStore{path: path}, nil
}

// Load reads the pricing file; a missing file is an empty mapping
func (s *FileStore) Load() (PricingFile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

func (s *FileStore) load() (PricingFile, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return PricingFile{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read pricing file: %w", err)
	}
	if len(data) == 0 {
		return PricingFile{}, nil
	}
	return unmarshalFile(data)
}

// Save merges one provider's machine types into the file. The write goes to
// a temporary file that is renamed over the original.
func (s *FileStore) Save(provider types.Provider, machineTypes []types.MachineType) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := s.load()
	if err != nil {
		return err
	}
	f[provider] = machineTypes

	data, err := marshalFile(f)
	if err != nil {
		return fmt.Errorf("failed to encode pricing file: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create pricing directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".pricing-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write pricing file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync pricing file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close pricing file: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("failed to replace pricing file: %w", err)
	}
	return nil
}

// Close is a no-op for the file store
func (s *FileStore) Close() error {
	return nil
}
