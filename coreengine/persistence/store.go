// Package persistence is the boundary to durable storage for artifact records.
//
// The session store writes each record through to a Store and never reads it
// back during a session. Records are read only to rehydrate a session on
// startup, or by tooling that lists what an interview produced.
package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// ErrClosed is returned by a store after Close.
var ErrClosed = errors.New("persistence store is closed")

// Record is one persisted artifact payload.
type Record struct {
	ID         string          `json:"id"`
	RecordType string          `json:"record_type"`
	Payload    json.RawMessage `json:"payload"`
	CreatedAt  time.Time       `json:"created_at"`
}

// Store persists and lists artifact records.
type Store interface {
	// Persist writes a payload and returns its persisted id.
	Persist(ctx context.Context, recordType string, payload []byte) (string, error)

	// List returns records of one type in creation order. An empty type lists all records.
	List(ctx context.Context, recordType string) ([]Record, error)

	// RecordTypes returns the distinct record types present, sorted.
	RecordTypes(ctx context.Context) ([]string, error)

	Close() error
}

func validatePayload(recordType string, payload []byte) error {
	if recordType == "" {
		return errors.New("record type is required")
	}
	if !json.Valid(payload) {
		return errors.New("payload is not valid JSON")
	}
	return nil
}
