package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/thermaleye/backoffice/pkg/access"
)

// PrincipalByToken resolves an API token to a principal, loading the role
// flags and company memberships in one shot. An unknown or inactive token
// returns ErrNotFound; the middleware maps that to an anonymous principal
// rather than a hard failure, since anonymous is a first-class role.
func (s *Store) PrincipalByToken(ctx context.Context, token string) (*access.Principal, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, username, is_superuser, is_admin, is_staff
		FROM users
		WHERE api_token = $1 AND active = TRUE
	`, token)

	p := &access.Principal{Authenticated: true}
	err := row.Scan(&p.ID, &p.Username, &p.IsSuperuser, &p.IsAdmin, &p.IsStaff)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("principal by token: %w", err)
	}

	p.CompanyIDs, err = s.memberCompanyIDs(ctx, p.ID)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// PrincipalByID loads a principal by user id. Used by the scope rebuild
// endpoint and by tests.
func (s *Store) PrincipalByID(ctx context.Context, userID int64) (*access.Principal, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, username, is_superuser, is_admin, is_staff
		FROM users
		WHERE id = $1 AND active = TRUE
	`, userID)

	p := &access.Principal{Authenticated: true}
	err := row.Scan(&p.ID, &p.Username, &p.IsSuperuser, &p.IsAdmin, &p.IsStaff)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("principal by id: %w", err)
	}

	p.CompanyIDs, err = s.memberCompanyIDs(ctx, p.ID)
	if err != nil {
		return nil, err
	}
	return p, nil
}
