package registry

// ColumnType classifies a storage column for scanning and for search-index
// mapping inference.
type ColumnType string

const (
	TypeText  ColumnType = "text"
	TypeInt   ColumnType = "int"
	TypeFloat ColumnType = "float"
	TypeBool  ColumnType = "bool"
	TypeTime  ColumnType = "time"
)

// Column describes one storage column of an entity kind.
type Column struct {
	Name string     `yaml:"name"`
	Type ColumnType `yaml:"type"`
}

// ScopeLevel is one step of an ownership hierarchy. Level names the scope
// dimension ("company", "factory"); Field is the column carrying that scope
// value on the entity's own table. Position 0 is closest to the principal's
// direct grant.
type ScopeLevel struct {
	Level string `yaml:"level"`
	Field string `yaml:"field"`
}

// EntityConfig is the declarative description of one entity kind: the single
// source of truth consumed by access control, scoping, endpoint generation,
// FK option caching, and search.
type EntityConfig struct {
	// Kind is the entity kind name, e.g. "factories".
	Kind string `yaml:"kind"`

	// Table is the backing storage table.
	Table string `yaml:"table"`

	// Columns lists the storage columns. The first column must be "id".
	Columns []Column `yaml:"columns"`

	// OwnershipHierarchy narrows visibility from principal to record,
	// most restrictive level first. Empty means globally visible (still
	// gated by action-level access control).
	OwnershipHierarchy []ScopeLevel `yaml:"ownership_hierarchy"`

	// FKFields maps local reference columns to the referenced entity kind.
	FKFields map[string]string `yaml:"fk_fields"`

	// FKDisplayTemplate builds a human label for records of this kind,
	// e.g. "{code}-{name}". Tokens must come from the safe field set.
	FKDisplayTemplate string `yaml:"fk_display_template"`

	// SearchFields are eligible for substring/fulltext matching.
	SearchFields []string `yaml:"search_fields"`

	// Feature flags.
	SoftDelete    bool `yaml:"soft_delete"`
	FactoryScoped bool `yaml:"factory_scoped"`
	DynamicSearch bool `yaml:"dynamic_search"`

	// BaseFilters are static equality predicates always applied,
	// e.g. {"active": true}.
	BaseFilters map[string]interface{} `yaml:"base_filters"`

	// DefaultOrdering is the fallback ordering column (prefix "-" for
	// descending), used when no relevance score is available.
	DefaultOrdering string `yaml:"default_ordering"`

	// CacheTTLSeconds bounds FK option cache entries. Zero means the
	// service default.
	CacheTTLSeconds int `yaml:"cache_ttl_seconds"`
}

// ColumnNames returns the configured column names in declaration order.
func (c *EntityConfig) ColumnNames() []string {
	names := make([]string, len(c.Columns))
	for i, col := range c.Columns {
		names[i] = col.Name
	}
	return names
}

// ColumnType returns the declared type of a column, defaulting to text for
// unknown columns.
func (c *EntityConfig) ColumnType(name string) ColumnType {
	for _, col := range c.Columns {
		if col.Name == name {
			return col.Type
		}
	}
	return TypeText
}

// HasColumn reports whether the config declares the named column.
func (c *EntityConfig) HasColumn(name string) bool {
	for _, col := range c.Columns {
		if col.Name == name {
			return true
		}
	}
	return false
}

// Scoped reports whether records of this kind are subject to ownership
// filtering at all.
func (c *EntityConfig) Scoped() bool {
	return len(c.OwnershipHierarchy) > 0 || c.FactoryScoped
}
