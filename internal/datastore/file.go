package datastore

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// FileStore is a MemoryStore that additionally persists the full record set
// to a JSON file after every mutation. Records survive restarts; the write
// amplification is acceptable because broadcasts mutate only on publish and
// stop, not per signaling message.
type FileStore struct {
	log  *slog.Logger
	path string

	mu         sync.Mutex
	broadcasts map[string]Broadcast
}

// NewFileStore opens (or creates) the store file at <dbPath>/<dbName>.json.
// An empty dbPath means the working directory.
func NewFileStore(dbName, dbPath string, log *slog.Logger) (*FileStore, error) {
	if dbName == "" {
		return nil, errors.New("DB_NAME must not be empty for filedb")
	}
	if dbPath == "" {
		dbPath = "."
	}
	if err := os.MkdirAll(dbPath, 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	s := &FileStore{
		log:        log,
		path:       filepath.Join(dbPath, dbName+".json"),
		broadcasts: make(map[string]Broadcast),
	}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *FileStore) load() error {
	raw, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read db file: %w", err)
	}
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, &s.broadcasts); err != nil {
		return fmt.Errorf("parse db file %s: %w", s.path, err)
	}
	s.log.Info("loaded broadcast records", "path", s.path, "count", len(s.broadcasts))
	return nil
}

// persistLocked writes the record set via a temp file and rename so a crash
// mid-write cannot corrupt the store.
func (s *FileStore) persistLocked() error {
	raw, err := json.MarshalIndent(s.broadcasts, "", "  ")
	if err != nil {
		return fmt.Errorf("encode db file: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return fmt.Errorf("write db file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace db file: %w", err)
	}
	return nil
}

func (s *FileStore) Save(b Broadcast) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.broadcasts[b.StreamID] = b
	return s.persistLocked()
}

func (s *FileStore) Get(streamID string) (Broadcast, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.broadcasts[streamID]
	return b, ok, nil
}

func (s *FileStore) UpdateStatus(streamID string, status Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.broadcasts[streamID]
	if !ok {
		return nil
	}
	b.Status = status
	if status == StatusFinished {
		b.FinishedAt = time.Now()
	}
	s.broadcasts[streamID] = b
	return s.persistLocked()
}

func (s *FileStore) Delete(streamID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.broadcasts[streamID]; !ok {
		return nil
	}
	delete(s.broadcasts, streamID)
	return s.persistLocked()
}

func (s *FileStore) Close() error { return nil }
