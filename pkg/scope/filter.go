package scope

// Clause restricts one column to a value set.
type Clause struct {
	Column string
	Values []int64
}

// Equality is a static column = value predicate from an entity's base
// filters.
type Equality struct {
	Column string
	Value  interface{}
}

// Filter is a conjunction of clauses over a single entity table. It is the
// neutral predicate form shared by the primary store, the FK options cache
// and both search paths, so every consumer enforces identical visibility.
type Filter struct {
	Clauses    []Clause
	Equalities []Equality

	// MatchNone marks a fail-closed predicate: a principal with no
	// accessible values at some hierarchy level sees zero records, never an
	// unfiltered set.
	MatchNone bool
}

// Unrestricted is the superuser predicate: no clauses at all.
func Unrestricted() Filter {
	return Filter{}
}

// Nothing is the empty-visibility predicate.
func Nothing() Filter {
	return Filter{MatchNone: true}
}

// And appends an in-set clause. Appending to a MatchNone filter is a no-op;
// nothing can widen it.
func (f Filter) And(column string, values []int64) Filter {
	if f.MatchNone {
		return f
	}
	if len(values) == 0 {
		return Nothing()
	}
	f.Clauses = append(f.Clauses, Clause{Column: column, Values: values})
	return f
}

// AndEq appends a static equality clause.
func (f Filter) AndEq(column string, value interface{}) Filter {
	if f.MatchNone {
		return f
	}
	f.Equalities = append(f.Equalities, Equality{Column: column, Value: value})
	return f
}

// Allows reports whether a record (as a column map) satisfies the filter.
// Used by tests and by the in-memory containment checks; the store and the
// search engine compile the same filter to their own query forms.
func (f Filter) Allows(record map[string]interface{}) bool {
	if f.MatchNone {
		return false
	}
	for _, eq := range f.Equalities {
		if !looseEqual(record[eq.Column], eq.Value) {
			return false
		}
	}
	for _, clause := range f.Clauses {
		id, ok := asInt64(record[clause.Column])
		if !ok {
			return false
		}
		found := false
		for _, v := range clause.Values {
			if v == id {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func asInt64(value interface{}) (int64, bool) {
	switch v := value.(type) {
	case int64:
		return v, true
	case int:
		return int64(v), true
	case float64:
		return int64(v), true
	default:
		return 0, false
	}
}

func looseEqual(a, b interface{}) bool {
	if ai, ok := asInt64(a); ok {
		// sqlite hands booleans back as integers
		switch bv := b.(type) {
		case bool:
			return (ai != 0) == bv
		default:
			if bi, ok := asInt64(b); ok {
				return ai == bi
			}
		}
	}
	return a == b
}
