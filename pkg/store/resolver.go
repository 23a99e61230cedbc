package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/thermaleye/backoffice/pkg/access"
)

// Scope level names used by the ownership hierarchies.
const (
	LevelCompany = "company"
	LevelFactory = "factory"
)

// AccessibleIDs implements scope.AccessResolver: the ids the principal may
// see at one hierarchy level. Company access comes from direct membership;
// factory access derives structurally from the accessible companies.
func (s *Store) AccessibleIDs(ctx context.Context, p *access.Principal, level string) ([]int64, error) {
	if p == nil || !p.Authenticated {
		return nil, nil
	}

	switch level {
	case LevelCompany:
		return s.memberCompanyIDs(ctx, p.ID)
	case LevelFactory:
		companies, err := s.memberCompanyIDs(ctx, p.ID)
		if err != nil {
			return nil, err
		}
		return s.factoryIDsForCompanies(ctx, companies)
	default:
		return nil, fmt.Errorf("unknown scope level %q", level)
	}
}

func (s *Store) memberCompanyIDs(ctx context.Context, userID int64) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT company_id FROM company_memberships WHERE user_id = $1
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("member companies: %w", err)
	}
	defer rows.Close()
	return collectIDs(rows)
}

func (s *Store) factoryIDsForCompanies(ctx context.Context, companyIDs []int64) ([]int64, error) {
	if len(companyIDs) == 0 {
		return nil, nil
	}
	placeholders := make([]string, len(companyIDs))
	args := make([]interface{}, len(companyIDs))
	for i, id := range companyIDs {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = id
	}
	query := fmt.Sprintf(`SELECT id FROM factories WHERE company_id IN (%s)`,
		strings.Join(placeholders, ", "))
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("accessible factories: %w", err)
	}
	defer rows.Close()
	return collectIDs(rows)
}

func collectIDs(rows idScanner) ([]int64, error) {
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

type idScanner interface {
	Next() bool
	Scan(dest ...interface{}) error
	Err() error
}
