package store

import (
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/thermaleye/backoffice/pkg/registry"
	"github.com/thermaleye/backoffice/pkg/scope"
)

// buildWhere compiles a scope filter into SQL, continuing placeholder
// numbering from argIndex.
func buildWhere(filter scope.Filter, argIndex int) (string, []interface{}, int) {
	var parts []string
	var args []interface{}

	for _, eq := range filter.Equalities {
		parts = append(parts, fmt.Sprintf("%s = $%d", eq.Column, argIndex))
		args = append(args, eq.Value)
		argIndex++
	}
	for _, clause := range filter.Clauses {
		placeholders := make([]string, len(clause.Values))
		for i, v := range clause.Values {
			placeholders[i] = fmt.Sprintf("$%d", argIndex)
			args = append(args, v)
			argIndex++
		}
		parts = append(parts, fmt.Sprintf("%s IN (%s)", clause.Column, strings.Join(placeholders, ", ")))
	}

	if len(parts) == 0 {
		return "", args, argIndex
	}
	return strings.Join(parts, " AND "), args, argIndex
}

// buildTerms compiles substring terms: every term must match at least one
// search field, terms AND together.
func buildTerms(cfg *registry.EntityConfig, terms []string, argIndex int) (string, []interface{}, int) {
	if len(terms) == 0 || len(cfg.SearchFields) == 0 {
		return "", nil, argIndex
	}
	var parts []string
	var args []interface{}
	for _, term := range terms {
		fields := make([]string, len(cfg.SearchFields))
		for i, field := range cfg.SearchFields {
			fields[i] = fmt.Sprintf("LOWER(%s) LIKE $%d", field, argIndex)
			args = append(args, "%"+strings.ToLower(term)+"%")
			argIndex++
		}
		parts = append(parts, "("+strings.Join(fields, " OR ")+")")
	}
	return strings.Join(parts, " AND "), args, argIndex
}

func orderClause(cfg *registry.EntityConfig, ordering string) string {
	if ordering == "" {
		ordering = cfg.DefaultOrdering
	}
	column := strings.TrimPrefix(ordering, "-")
	if column == "" || !cfg.HasColumn(column) {
		return "ORDER BY id ASC"
	}
	direction := "ASC"
	if strings.HasPrefix(ordering, "-") {
		direction = "DESC"
	}
	return fmt.Sprintf("ORDER BY %s %s", column, direction)
}

func buildSelect(cfg *registry.EntityConfig, q ListQuery) (string, []interface{}) {
	var sb strings.Builder
	sb.WriteString("SELECT ")
	sb.WriteString(strings.Join(cfg.ColumnNames(), ", "))
	sb.WriteString(" FROM ")
	sb.WriteString(cfg.Table)

	where, args, argIndex := buildWhere(q.Filter, 1)
	termsWhere, termArgs, argIndex := buildTerms(cfg, q.Terms, argIndex)
	args = append(args, termArgs...)

	conditions := make([]string, 0, 2)
	if where != "" {
		conditions = append(conditions, where)
	}
	if termsWhere != "" {
		conditions = append(conditions, termsWhere)
	}
	if len(conditions) > 0 {
		sb.WriteString(" WHERE ")
		sb.WriteString(strings.Join(conditions, " AND "))
	}

	sb.WriteString(" ")
	sb.WriteString(orderClause(cfg, q.Ordering))

	if q.Limit > 0 {
		sb.WriteString(fmt.Sprintf(" LIMIT $%d", argIndex))
		args = append(args, q.Limit)
		argIndex++
	}
	if q.Offset > 0 {
		sb.WriteString(fmt.Sprintf(" OFFSET $%d", argIndex))
		args = append(args, q.Offset)
	}
	return sb.String(), args
}

func buildCount(cfg *registry.EntityConfig, filter scope.Filter) (string, []interface{}) {
	query := "SELECT COUNT(*) FROM " + cfg.Table
	where, args, _ := buildWhere(filter, 1)
	if where != "" {
		query += " WHERE " + where
	}
	return query, args
}

func buildInsert(cfg *registry.EntityConfig, record Record) (string, []interface{}) {
	columns := make([]string, 0, len(record))
	for _, col := range cfg.Columns {
		if col.Name == "id" {
			continue
		}
		if _, ok := record[col.Name]; ok {
			columns = append(columns, col.Name)
		}
	}
	sort.Strings(columns)

	placeholders := make([]string, len(columns))
	args := make([]interface{}, len(columns))
	for i, col := range columns {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = record[col]
	}
	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) RETURNING id",
		cfg.Table, strings.Join(columns, ", "), strings.Join(placeholders, ", "))
	return query, args
}

func buildUpdate(cfg *registry.EntityConfig, id int64, record Record, filter scope.Filter) (string, []interface{}, bool) {
	columns := make([]string, 0, len(record))
	for _, col := range cfg.Columns {
		if col.Name == "id" {
			continue
		}
		if _, ok := record[col.Name]; ok {
			columns = append(columns, col.Name)
		}
	}
	sort.Strings(columns)
	if len(columns) == 0 {
		return "", nil, false
	}

	sets := make([]string, len(columns))
	args := make([]interface{}, 0, len(columns)+1)
	argIndex := 1
	for i, col := range columns {
		sets[i] = fmt.Sprintf("%s = $%d", col, argIndex)
		args = append(args, record[col])
		argIndex++
	}

	query := fmt.Sprintf("UPDATE %s SET %s WHERE id = $%d", cfg.Table, strings.Join(sets, ", "), argIndex)
	args = append(args, id)
	argIndex++

	where, whereArgs, _ := buildWhere(filter, argIndex)
	if where != "" {
		query += " AND " + where
		args = append(args, whereArgs...)
	}
	return query, args, true
}

func buildDelete(cfg *registry.EntityConfig, id int64, filter scope.Filter) (string, []interface{}) {
	var query string
	args := []interface{}{id}
	argIndex := 2
	if cfg.SoftDelete && cfg.HasColumn("deleted") {
		query = fmt.Sprintf("UPDATE %s SET deleted = TRUE WHERE id = $1", cfg.Table)
	} else {
		query = fmt.Sprintf("DELETE FROM %s WHERE id = $1", cfg.Table)
	}
	where, whereArgs, _ := buildWhere(filter, argIndex)
	if where != "" {
		query += " AND " + where
		args = append(args, whereArgs...)
	}
	return query, args
}

// scanRecord reads one row into a Record using the declared column types.
func scanRecord(cfg *registry.EntityConfig, rows *sql.Rows) (Record, error) {
	targets := make([]interface{}, len(cfg.Columns))
	for i, col := range cfg.Columns {
		switch col.Type {
		case registry.TypeInt:
			targets[i] = &sql.NullInt64{}
		case registry.TypeFloat:
			targets[i] = &sql.NullFloat64{}
		case registry.TypeBool:
			targets[i] = &sql.NullBool{}
		case registry.TypeTime:
			targets[i] = &sql.NullTime{}
		default:
			targets[i] = &sql.NullString{}
		}
	}
	if err := rows.Scan(targets...); err != nil {
		return nil, err
	}

	record := make(Record, len(cfg.Columns))
	for i, col := range cfg.Columns {
		record[col.Name] = nullableValue(targets[i])
	}
	return record, nil
}

func nullableValue(target interface{}) interface{} {
	switch v := target.(type) {
	case *sql.NullInt64:
		if v.Valid {
			return v.Int64
		}
	case *sql.NullFloat64:
		if v.Valid {
			return v.Float64
		}
	case *sql.NullBool:
		if v.Valid {
			return v.Bool
		}
	case *sql.NullTime:
		if v.Valid {
			return v.Time.UTC().Format(time.RFC3339)
		}
	case *sql.NullString:
		if v.Valid {
			return v.String
		}
	}
	return nil
}
