// Package store implements the primary SQL store: generic, configuration
// driven CRUD over the entity tables plus the membership queries backing the
// scoping engine. It works against PostgreSQL in production and sqlite in
// tests.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/thermaleye/backoffice/pkg/registry"
	"github.com/thermaleye/backoffice/pkg/scope"
)

// ErrNotFound is returned when a record does not exist or is outside the
// caller's visibility. The two cases are deliberately indistinguishable.
var ErrNotFound = errors.New("record not found")

// Record is one entity row, keyed by column name.
type Record = map[string]interface{}

// ListQuery describes a scoped list request.
type ListQuery struct {
	Filter scope.Filter

	// Terms are substring-matched against the entity's search fields:
	// each term must match at least one field; terms AND together.
	Terms []string

	// Ordering is a column name, "-" prefixed for descending. Unknown
	// columns fall back to the entity default, then to id.
	Ordering string

	Limit  int
	Offset int
}

// Store is the generic entity store.
type Store struct {
	db *sql.DB
}

// New creates a store over the given database handle.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// DB exposes the underlying handle for health checks and package wiring.
func (s *Store) DB() *sql.DB {
	return s.db
}

// List returns the records visible under the query's filter.
func (s *Store) List(ctx context.Context, cfg *registry.EntityConfig, q ListQuery) ([]Record, error) {
	if q.Filter.MatchNone {
		return []Record{}, nil
	}

	query, args := buildSelect(cfg, q)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", cfg.Kind, err)
	}
	defer rows.Close()

	records := make([]Record, 0)
	for rows.Next() {
		record, err := scanRecord(cfg, rows)
		if err != nil {
			return nil, fmt.Errorf("scan %s: %w", cfg.Kind, err)
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

// Count returns the number of records visible under the filter.
func (s *Store) Count(ctx context.Context, cfg *registry.EntityConfig, filter scope.Filter) (int, error) {
	if filter.MatchNone {
		return 0, nil
	}
	query, args := buildCount(cfg, filter)
	var count int
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("count %s: %w", cfg.Kind, err)
	}
	return count, nil
}

// Get returns one record by id, restricted by the filter so that retrieval
// honors the same visibility rules as listing.
func (s *Store) Get(ctx context.Context, cfg *registry.EntityConfig, id int64, filter scope.Filter) (Record, error) {
	if filter.MatchNone {
		return nil, ErrNotFound
	}
	q := ListQuery{Filter: filter.And("id", []int64{id}), Limit: 1}
	records, err := s.List(ctx, cfg, q)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, ErrNotFound
	}
	return records[0], nil
}

// Insert creates a record from the declared columns present in the input and
// returns the new id.
func (s *Store) Insert(ctx context.Context, cfg *registry.EntityConfig, record Record) (int64, error) {
	query, args := buildInsert(cfg, record)
	var id int64
	// lib/pq has no LastInsertId; RETURNING works on postgres and sqlite 3.35+.
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&id); err != nil {
		return 0, fmt.Errorf("insert %s: %w", cfg.Kind, err)
	}
	return id, nil
}

// Update modifies the declared columns present in the input for one record,
// restricted by the filter. Updating an invisible record reports ErrNotFound.
func (s *Store) Update(ctx context.Context, cfg *registry.EntityConfig, id int64, record Record, filter scope.Filter) error {
	if filter.MatchNone {
		return ErrNotFound
	}
	query, args, ok := buildUpdate(cfg, id, record, filter)
	if !ok {
		return fmt.Errorf("update %s: no updatable columns in input", cfg.Kind)
	}
	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update %s: %w", cfg.Kind, err)
	}
	return affectedOrNotFound(result)
}

// Delete removes one record, restricted by the filter. Soft-delete entities
// get their deleted flag set instead of a row removal.
func (s *Store) Delete(ctx context.Context, cfg *registry.EntityConfig, id int64, filter scope.Filter) error {
	if filter.MatchNone {
		return ErrNotFound
	}
	query, args := buildDelete(cfg, id, filter)
	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("delete %s: %w", cfg.Kind, err)
	}
	return affectedOrNotFound(result)
}

func affectedOrNotFound(result sql.Result) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}
