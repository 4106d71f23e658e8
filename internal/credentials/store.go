package credentials

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"
)

// Store is the durable storage contract for the credential record.
// The token lifecycle manager owns when load/save happen.
type Store interface {
	// Load returns the stored record, or an empty record when nothing
	// has been persisted yet.
	Load() (Record, error)

	// Save persists the record. Save must complete (or fail) before the
	// mutating operation that triggered it returns.
	Save(Record) error
}

// FileStore persists the credential record as a single JSON file.
type FileStore struct {
	path   string
	logger *zap.Logger
	mu     sync.Mutex
}

// NewFileStore creates a file-backed credential store at the given path.
func NewFileStore(path string, logger *zap.Logger) *FileStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FileStore{
		path:   path,
		logger: logger,
	}
}

// Load reads the credential record from disk. A missing file yields an
// empty record, not an error; a corrupt file is an error.
func (s *FileStore) Load() (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			s.logger.Debug("No stored credentials", zap.String("path", s.path))
			return Record{}, nil
		}
		return Record{}, fmt.Errorf("reading credentials file: %w", err)
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return Record{}, fmt.Errorf("parsing credentials file %s: %w", s.path, err)
	}
	return rec, nil
}

// Save writes the credential record to disk. The file is created with
// owner-only permissions since it holds live tokens.
func (s *FileStore) Save(rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return fmt.Errorf("creating credentials directory: %w", err)
		}
	}

	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling credentials: %w", err)
	}

	if err := os.WriteFile(s.path, data, 0600); err != nil {
		return fmt.Errorf("writing credentials file: %w", err)
	}

	s.logger.Debug("Credentials saved", zap.String("path", s.path))
	return nil
}
