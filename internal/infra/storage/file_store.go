package storage

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"time"

	domain "marco/internal/domain/reminder"
	"marco/internal/infra/filestore"
	jsonx "marco/internal/shared/json"
	"marco/internal/shared/logging"
)

const documentPerm = 0o600

// FileStore keeps the registry as a single JSON document rewritten atomically
// on every save.
type FileStore struct {
	mu       sync.Mutex
	path     string
	location *time.Location
	logger   logging.Logger
}

// FileStoreOption customizes a FileStore.
type FileStoreOption func(*FileStore)

// WithLocation sets the zone used for timestamps that carry no offset.
func WithLocation(loc *time.Location) FileStoreOption {
	return func(s *FileStore) {
		if loc != nil {
			s.location = loc
		}
	}
}

func WithFileLogger(logger logging.Logger) FileStoreOption {
	return func(s *FileStore) { s.logger = logging.OrNop(logger) }
}

// NewFileStore creates a store at path. The file is created on first save.
func NewFileStore(path string, opts ...FileStoreOption) *FileStore {
	s := &FileStore{
		path:     path,
		location: time.Local,
		logger:   logging.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Path returns the document location.
func (s *FileStore) Path() string { return s.path }

// Load reads the document. A missing or blank file is an empty snapshot.
func (s *FileStore) Load(ctx context.Context) (domain.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return domain.Snapshot{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := filestore.ReadFileOrEmpty(s.path)
	if err != nil {
		return domain.Snapshot{}, fmt.Errorf("file store: read %s: %w", s.path, err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return domain.Snapshot{}, nil
	}
	var doc document
	if err := jsonx.Unmarshal(data, &doc); err != nil {
		return domain.Snapshot{}, fmt.Errorf("file store: decode %s: %w", s.path, err)
	}
	snapshot, err := fromDocument(doc, s.location)
	if err != nil {
		return domain.Snapshot{}, fmt.Errorf("file store: %s: %w", s.path, err)
	}
	s.logger.Debug("FileStore: loaded %d reminders from %s", len(snapshot.Reminders), s.path)
	return snapshot, nil
}

// Save rewrites the whole document through a temp file and rename.
func (s *FileStore) Save(ctx context.Context, snapshot domain.Snapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := filestore.WriteJSON(s.path, toDocument(snapshot), documentPerm); err != nil {
		return fmt.Errorf("file store: write %s: %w", s.path, err)
	}
	return nil
}
