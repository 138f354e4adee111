package persistence

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore keeps records in process memory. Used when no database path is configured.
type MemoryStore struct {
	records []Record
	closed  bool
	mu      sync.RWMutex
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Persist implements Store.
func (s *MemoryStore) Persist(ctx context.Context, recordType string, payload []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := validatePayload(recordType, payload); err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return "", ErrClosed
	}
	rec := Record{
		ID:         uuid.NewString(),
		RecordType: recordType,
		Payload:    append([]byte(nil), payload...),
		CreatedAt:  time.Now().UTC(),
	}
	s.records = append(s.records, rec)
	return rec.ID, nil
}

// List implements Store.
func (s *MemoryStore) List(ctx context.Context, recordType string) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrClosed
	}
	var result []Record
	for _, r := range s.records {
		if recordType == "" || r.RecordType == recordType {
			result = append(result, r)
		}
	}
	return result, nil
}

// RecordTypes implements Store.
func (s *MemoryStore) RecordTypes(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrClosed
	}
	seen := make(map[string]bool)
	var types []string
	for _, r := range s.records {
		if !seen[r.RecordType] {
			seen[r.RecordType] = true
			types = append(types, r.RecordType)
		}
	}
	sort.Strings(types)
	return types, nil
}

// Close implements Store.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
