package datastore

import (
	"sync"
	"time"
)

// MemoryStore keeps broadcast records in process memory. Records do not
// survive a restart; this is the default backend.
type MemoryStore struct {
	mu         sync.RWMutex
	broadcasts map[string]Broadcast
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{broadcasts: make(map[string]Broadcast)}
}

func (s *MemoryStore) Save(b Broadcast) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.broadcasts[b.StreamID] = b
	return nil
}

func (s *MemoryStore) Get(streamID string) (Broadcast, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.broadcasts[streamID]
	return b, ok, nil
}

func (s *MemoryStore) UpdateStatus(streamID string, status Status) error {
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
	return nil
}

func (s *MemoryStore) Delete(streamID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.broadcasts, streamID)
	return nil
}

func (s *MemoryStore) Close() error { return nil }
