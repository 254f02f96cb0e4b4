// Package storage defines the persistence contract for organization records.
//
// # Overview
//
// The organization service treats its relational store as a key-value
// gateway: records are loaded, listed, saved and deleted by identity. The
// Store interface captures exactly that surface so the orchestrator can wrap
// every call in a resilience policy without knowing which backend serves it.
//
// # Implementations
//
//   - MemoryStore: mutex-protected map, used in tests and for local runs
//   - sqlstore.Store: PostgreSQL (lib/pq) or SQLite (go-sqlite3)
//   - CachedStore: read-through LRU decorator around any Store
//
// # Errors
//
// Implementations report failures with pkg/faults kinds:
//
//   - faults.NotFound: Get or Delete of an identity that is not stored
//   - faults.Unavailable: the backend could not be reached
//   - faults.Timeout: the backend did not answer before the context deadline
//
// GetAll on an empty store returns an empty, non-nil slice and no error.
//
// # Usage
//
//	store := storage.NewMemoryStore()
//	saved, err := store.Save(ctx, &storage.Record{ID: "42", Name: "Acme"})
//	rec, err := store.Get(ctx, "42")
//	if faults.Is(err, faults.NotFound) {
//		// absent
//	}
package storage
