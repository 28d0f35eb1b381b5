// Package datastore keeps broadcast records: one per published stream,
// tracking its lifecycle status. Backends are deliberately small; the server
// only needs point lookups and status updates on the signaling path.
package datastore

import (
	"fmt"
	"log/slog"
	"time"
)

const (
	TypeMemory = "memorydb"
	TypeFile   = "filedb"
)

// Status is the lifecycle state of a broadcast record.
type Status string

const (
	StatusCreated      Status = "created"
	StatusBroadcasting Status = "broadcasting"
	StatusFinished     Status = "finished"
)

// Broadcast is the persisted record of a published stream.
type Broadcast struct {
	StreamID   string    `json:"streamId"`
	Status     Status    `json:"status"`
	StartedAt  time.Time `json:"startedAt"`
	FinishedAt time.Time `json:"finishedAt,omitempty"`
}

// Store persists broadcast records. Implementations are safe for concurrent
// use by every signaling connection.
type Store interface {
	// Save inserts or replaces the record for b.StreamID.
	Save(b Broadcast) error
	// Get returns the record for streamID. The bool reports whether it exists.
	Get(streamID string) (Broadcast, bool, error)
	// UpdateStatus sets the status of an existing record. Updating a missing
	// record is not an error; the stream may have been deleted concurrently.
	UpdateStatus(streamID string, status Status) error
	// Delete removes the record for streamID if present.
	Delete(streamID string) error
	Close() error
}

// New builds the store selected by dbType. An unknown type is a startup
// error rather than a silent fallback.
func New(dbType, dbName, dbPath string, log *slog.Logger) (Store, error) {
	switch dbType {
	case TypeMemory:
		return NewMemoryStore(), nil
	case TypeFile:
		return NewFileStore(dbName, dbPath, log)
	default:
		return nil, fmt.Errorf("unknown DB_TYPE %q (expected %q or %q)", dbType, TypeMemory, TypeFile)
	}
}
