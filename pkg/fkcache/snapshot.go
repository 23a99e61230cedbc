package fkcache

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"
)

// Snapshot is the durable record of the last global rebuild of one kind.
// It answers "what was last cached" for operators without forcing a live
// rebuild, and survives redis restarts.
type Snapshot struct {
	Kind        string    `json:"kind"`
	RecordCount int       `json:"record_count"`
	BuiltAt     time.Time `json:"built_at"`
	Options     []Option  `json:"options"`
}

// ErrNoSnapshot is returned when a kind has never had a global rebuild.
var ErrNoSnapshot = errors.New("no snapshot recorded")

// saveSnapshot persists the global option set. Failures are logged, not
// surfaced: the snapshot is observability data, not part of the answer.
func (s *Service) saveSnapshot(ctx context.Context, set *OptionSet) {
	payload, err := json.Marshal(set.Options)
	if err != nil {
		return
	}
	_, err = s.store.DB().ExecContext(ctx, `
		INSERT INTO fk_option_snapshots (kind, payload, record_count, built_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (kind) DO UPDATE SET
			payload = EXCLUDED.payload,
			record_count = EXCLUDED.record_count,
			built_at = EXCLUDED.built_at
	`, set.Kind, string(payload), set.Count, set.BuiltAt)
	if err != nil {
		s.logger.WithError(err).WithField("kind", set.Kind).Warn("fk snapshot write failed")
	}
}

// GetSnapshot loads the durable snapshot for a kind.
func (s *Service) GetSnapshot(ctx context.Context, kind string) (*Snapshot, error) {
	row := s.store.DB().QueryRowContext(ctx, `
		SELECT kind, payload, record_count, built_at
		FROM fk_option_snapshots
		WHERE kind = $1
	`, kind)

	var snap Snapshot
	var payload string
	err := row.Scan(&snap.Kind, &payload, &snap.RecordCount, &snap.BuiltAt)
	if err == sql.ErrNoRows {
		return nil, ErrNoSnapshot
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(payload), &snap.Options); err != nil {
		return nil, err
	}
	return &snap, nil
}
