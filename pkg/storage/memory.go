package storage

import (
	"context"
	"sort"
	"sync"

	"github.com/orbsec/organization-service/pkg/faults"
)

// MemoryStore keeps records in process memory
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]*Record
}

// NewMemoryStore creates an empty store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]*Record)}
}

// Get returns the record with the given ID
func (s *MemoryStore) Get(ctx context.Context, id string) (*Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, faults.Wrap(faults.Classify(err), "storage.get", err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[id]
	if !ok {
		return nil, faults.Newf(faults.NotFound, "storage.get", "record %s not found", id)
	}
	return rec.Clone(), nil
}

// GetAll returns all records ordered by ID
func (s *MemoryStore) GetAll(ctx context.Context) ([]*Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, faults.Wrap(faults.Classify(err), "storage.get_all", err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	records := make([]*Record, 0, len(s.records))
	for _, rec := range s.records {
		records = append(records, rec.Clone())
	}
	sort.Slice(records, func(i, j int) bool { return records[i].ID < records[j].ID })
	return records, nil
}

// Save inserts or replaces a record
func (s *MemoryStore) Save(ctx context.Context, record *Record) (*Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, faults.Wrap(faults.Classify(err), "storage.save", err)
	}
	if record == nil || record.ID == "" {
		return nil, faults.New(faults.ValidationFailed, "storage.save", "record id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records[record.ID] = record.Clone()
	return record.Clone(), nil
}

// Delete removes the record with the given ID
func (s *MemoryStore) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return faults.Wrap(faults.Classify(err), "storage.delete", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.records[id]; !ok {
		return faults.Newf(faults.NotFound, "storage.delete", "record %s not found", id)
	}
	delete(s.records, id)
	return nil
}

// HealthCheck always succeeds
func (s *MemoryStore) HealthCheck(ctx context.Context) error {
	return nil
}

// Close is a no-op
func (s *MemoryStore) Close() error {
	return nil
}
