package audit

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/thermaleye/backoffice/pkg/access"
	"github.com/thermaleye/backoffice/pkg/observability"
)

// DBSink persists access denials to the database. Grants are not stored;
// the denial trail is what security review asks for and grants dominate
// traffic by orders of magnitude.
type DBSink struct {
	db     *sql.DB
	logger *observability.Logger
}

// NewDBSink creates a database-backed audit sink and ensures its table.
func NewDBSink(db *sql.DB, logger *observability.Logger) (*DBSink, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}
	sink := &DBSink{db: db, logger: logger}
	if err := sink.ensureTable(); err != nil {
		return nil, fmt.Errorf("failed to ensure access_denials table: %w", err)
	}
	return sink, nil
}

func (s *DBSink) ensureTable() error {
	query := `
	CREATE TABLE IF NOT EXISTS access_denials (
		id BIGSERIAL PRIMARY KEY,
		denied_at TIMESTAMP WITH TIME ZONE NOT NULL,
		entity_kind VARCHAR(100) NOT NULL,
		action VARCHAR(20) NOT NULL,
		role VARCHAR(20) NOT NULL,
		user_id BIGINT,
		username VARCHAR(255),
		request_id VARCHAR(100)
	);

	CREATE INDEX IF NOT EXISTS idx_access_denials_denied_at ON access_denials(denied_at DESC);
	CREATE INDEX IF NOT EXISTS idx_access_denials_kind ON access_denials(entity_kind);
	CREATE INDEX IF NOT EXISTS idx_access_denials_user_id ON access_denials(user_id);
	`
	_, err := s.db.Exec(query)
	return err
}

// RecordDecision implements access.AuditSink.
func (s *DBSink) RecordDecision(ctx context.Context, d access.Decision) {
	if d.Allowed {
		return
	}

	var userID interface{}
	var username interface{}
	if d.Principal != nil && d.Principal.Authenticated {
		userID = d.Principal.ID
		username = d.Principal.Username
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO access_denials (denied_at, entity_kind, action, role, user_id, username, request_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, time.Now().UTC(), d.Kind, string(d.Action), string(d.Role),
		userID, username, observability.GetRequestID(ctx))
	if err != nil && s.logger != nil {
		// An audit failure never fails the request it describes.
		s.logger.WithError(err).Warn("access denial audit write failed")
	}
}

// Denial is one stored access denial.
type Denial struct {
	ID        int64     `json:"id"`
	DeniedAt  time.Time `json:"denied_at"`
	Kind      string    `json:"entity_kind"`
	Action    string    `json:"action"`
	Role      string    `json:"role"`
	UserID    *int64    `json:"user_id,omitempty"`
	Username  *string   `json:"username,omitempty"`
	RequestID string    `json:"request_id,omitempty"`
}

// RecentDenials returns the newest denials, optionally restricted to one
// entity kind.
func (s *DBSink) RecentDenials(ctx context.Context, kind string, limit int) ([]Denial, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	query := `
		SELECT id, denied_at, entity_kind, action, role, user_id, username, request_id
		FROM access_denials
	`
	args := []interface{}{}
	if kind != "" {
		query += " WHERE entity_kind = $1"
		args = append(args, kind)
	}
	query += fmt.Sprintf(" ORDER BY denied_at DESC LIMIT %d", limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query access denials: %w", err)
	}
	defer rows.Close()

	var denials []Denial
	for rows.Next() {
		var d Denial
		var userID sql.NullInt64
		var username, requestID sql.NullString
		if err := rows.Scan(&d.ID, &d.DeniedAt, &d.Kind, &d.Action, &d.Role, &userID, &username, &requestID); err != nil {
			return nil, err
		}
		if userID.Valid {
			d.UserID = &userID.Int64
		}
		if username.Valid {
			d.Username = &username.String
		}
		d.RequestID = requestID.String
		denials = append(denials, d)
	}
	return denials, rows.Err()
}
