package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/orbsec/organization-service/pkg/faults"
	"github.com/orbsec/organization-service/pkg/observability"
	"github.com/orbsec/organization-service/pkg/storage"
)

// Store implements storage.Store on a SQL database. Reads go to a replica
// when one is configured, writes always go to the primary.
type Store struct {
	conns *ConnectionManager
}

var _ storage.Store = (*Store)(nil)

// New creates a store on existing connections
func New(conns *ConnectionManager) *Store {
	return &Store{conns: conns}
}

// Open connects using cfg, creates the schema and returns the store
func Open(ctx context.Context, cfg storage.Config, logger *observability.Logger) (*Store, error) {
	dialect, err := DialectByName(cfg.Type)
	if err != nil {
		return nil, err
	}

	conns, err := NewConnectionManager(ConnectionConfig{
		Dialect:     dialect,
		PrimaryDSN:  cfg.DSN,
		ReplicaDSNs: cfg.ReplicaDSNs,
		MaxConns:    cfg.MaxConns,
		MinConns:    cfg.MinConns,
		Timeout:     cfg.Timeout,
		MaxLifetime: cfg.MaxLifetime,
		MaxIdleTime: cfg.MaxIdleTime,
	}, logger)
	if err != nil {
		return nil, err
	}

	s := New(conns)
	if err := s.Migrate(ctx); err != nil {
		conns.Close()
		return nil, err
	}
	return s, nil
}

// Connections exposes the underlying pools
func (s *Store) Connections() *ConnectionManager {
	return s.conns
}

// Migrate creates the organizations table if needed
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.conns.Primary().ExecContext(ctx, s.conns.Dialect().Schema); err != nil {
		return fmt.Errorf("failed to create organizations table: %w", err)
	}
	return nil
}

// Get returns the record with the given ID. It reads the primary because
// updates merge onto the record it returns; GetAll may lag on a replica.
func (s *Store) Get(ctx context.Context, id string) (*storage.Record, error) {
	var rec storage.Record
	err := s.conns.Primary().QueryRowContext(ctx, queryGet, id).Scan(
		&rec.ID, &rec.Name, &rec.ContactName, &rec.ContactEmail, &rec.ContactPhone,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, faults.Newf(faults.NotFound, "sqlstore.get", "record %s not found", id)
		}
		return nil, classify("sqlstore.get", err)
	}
	return &rec, nil
}

// GetAll returns all records ordered by ID, never nil
func (s *Store) GetAll(ctx context.Context) ([]*storage.Record, error) {
	rows, err := s.conns.Replica().QueryContext(ctx, queryGetAll)
	if err != nil {
		return nil, classify("sqlstore.get_all", err)
	}
	defer rows.Close()

	records := make([]*storage.Record, 0)
	for rows.Next() {
		var rec storage.Record
		if err := rows.Scan(&rec.ID, &rec.Name, &rec.ContactName, &rec.ContactEmail, &rec.ContactPhone); err != nil {
			return nil, classify("sqlstore.get_all", err)
		}
		records = append(records, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("sqlstore.get_all", err)
	}
	return records, nil
}

// Save upserts the record
func (s *Store) Save(ctx context.Context, record *storage.Record) (*storage.Record, error) {
	if record == nil || record.ID == "" {
		return nil, faults.New(faults.ValidationFailed, "sqlstore.save", "record id is required")
	}

	_, err := s.conns.Primary().ExecContext(ctx, querySave,
		record.ID,
		record.Name,
		record.ContactName,
		record.ContactEmail,
		record.ContactPhone,
	)
	if err != nil {
		return nil, classify("sqlstore.save", err)
	}
	return record.Clone(), nil
}

// Delete removes the record with the given ID
func (s *Store) Delete(ctx context.Context, id string) error {
	result, err := s.conns.Primary().ExecContext(ctx, queryDelete, id)
	if err != nil {
		return classify("sqlstore.delete", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return classify("sqlstore.delete", err)
	}
	if affected == 0 {
		return faults.Newf(faults.NotFound, "sqlstore.delete", "record %s not found", id)
	}
	return nil
}

// HealthCheck pings the database
func (s *Store) HealthCheck(ctx context.Context) error {
	return s.conns.HealthCheck(ctx)
}

// Close closes all connections
func (s *Store) Close() error {
	return s.conns.Close()
}
