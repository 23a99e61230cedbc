package state

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrNotFound is returned when no saved state exists for a key.
var ErrNotFound = errors.New("saved state not found")

// SavedState is one UI state snapshot. Keys are slash-separated paths
// ("dashboard/filters/machines") owned per user; a shared state is readable
// by every authenticated user but writable only by its owner.
type SavedState struct {
	ID        int64           `json:"id"`
	UserID    int64           `json:"user_id"`
	Key       string          `json:"key"`
	Payload   json.RawMessage `json:"payload"`
	Shared    bool            `json:"shared"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Store persists saved states.
type Store struct {
	db *sql.DB
}

// NewStore creates a state store over the given database handle.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Get returns the state under key for userID: the user's own state first,
// otherwise a shared state under the same key from any user.
func (s *Store) Get(ctx context.Context, userID int64, key string) (*SavedState, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, state_key, payload, shared, updated_at
		FROM saved_states
		WHERE state_key = $1 AND (user_id = $2 OR shared = TRUE)
		ORDER BY CASE WHEN user_id = $2 THEN 0 ELSE 1 END, updated_at DESC
		LIMIT 1
	`, key, userID)
	return scanState(row)
}

// Save upserts the caller's state under key.
func (s *Store) Save(ctx context.Context, userID int64, key string, payload json.RawMessage, shared bool) (*SavedState, error) {
	row := s.db.QueryRowContext(ctx, `
		INSERT INTO saved_states (user_id, state_key, payload, shared, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id, state_key) DO UPDATE
		SET payload = EXCLUDED.payload,
		    shared = EXCLUDED.shared,
		    updated_at = EXCLUDED.updated_at
		RETURNING id, user_id, state_key, payload, shared, updated_at
	`, userID, key, string(payload), shared, time.Now().UTC())
	return scanState(row)
}

// Delete removes the caller's own state under key. Shared states of other
// users are not deletable through this path.
func (s *Store) Delete(ctx context.Context, userID int64, key string) error {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM saved_states WHERE user_id = $1 AND state_key = $2
	`, userID, key)
	if err != nil {
		return fmt.Errorf("delete saved state: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// List returns the states visible to userID whose key starts with prefix:
// the user's own plus shared ones. An empty prefix lists everything
// visible.
func (s *Store) List(ctx context.Context, userID int64, prefix string) ([]*SavedState, error) {
	pattern := likePrefix(prefix)
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, state_key, payload, shared, updated_at
		FROM saved_states
		WHERE (user_id = $1 OR shared = TRUE) AND state_key LIKE $2
		ORDER BY state_key, CASE WHEN user_id = $1 THEN 0 ELSE 1 END
	`, userID, pattern)
	if err != nil {
		return nil, fmt.Errorf("list saved states: %w", err)
	}
	defer rows.Close()

	var states []*SavedState
	seen := make(map[string]bool)
	for rows.Next() {
		st, err := scanState(rows)
		if err != nil {
			return nil, err
		}
		// One entry per key; the ORDER BY puts the user's own row first.
		if seen[st.Key] {
			continue
		}
		seen[st.Key] = true
		states = append(states, st)
	}
	return states, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanState(row rowScanner) (*SavedState, error) {
	var st SavedState
	var payload string
	err := row.Scan(&st.ID, &st.UserID, &st.Key, &payload, &st.Shared, &st.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan saved state: %w", err)
	}
	st.Payload = json.RawMessage(payload)
	return &st, nil
}

// likePrefix escapes LIKE metacharacters so a prefix is matched literally.
func likePrefix(prefix string) string {
	escaped := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(prefix)
	return escaped + "%"
}
