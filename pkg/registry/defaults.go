package registry

import "github.com/thermaleye/backoffice/pkg/observability"

// DefaultConfigs is the shipped views matrix for the monitoring domain:
// companies own factories, factories own machines, machines produce
// measurements. Scope columns are denormalized onto every scoped table so
// ownership predicates stay single-table.
func DefaultConfigs() []*EntityConfig {
	return []*EntityConfig{
		{
			Kind:  "companies",
			Table: "companies",
			Columns: []Column{
				{Name: "id", Type: TypeInt},
				{Name: "code", Type: TypeText},
				{Name: "name", Type: TypeText},
				{Name: "city", Type: TypeText},
				{Name: "active", Type: TypeBool},
				{Name: "deleted", Type: TypeBool},
				{Name: "created_at", Type: TypeTime},
			},
			OwnershipHierarchy: []ScopeLevel{
				{Level: "company", Field: "id"},
			},
			FKDisplayTemplate: "{code}-{name}",
			SearchFields:      []string{"code", "name", "city"},
			SoftDelete:        true,
			BaseFilters:       map[string]interface{}{"active": true},
			DefaultOrdering:   "name",
		},
		{
			Kind:  "factories",
			Table: "factories",
			Columns: []Column{
				{Name: "id", Type: TypeInt},
				{Name: "company_id", Type: TypeInt},
				{Name: "code", Type: TypeText},
				{Name: "name", Type: TypeText},
				{Name: "address", Type: TypeText},
				{Name: "active", Type: TypeBool},
				{Name: "deleted", Type: TypeBool},
				{Name: "created_at", Type: TypeTime},
			},
			OwnershipHierarchy: []ScopeLevel{
				{Level: "company", Field: "company_id"},
				{Level: "factory", Field: "id"},
			},
			FKFields:          map[string]string{"company_id": "companies"},
			FKDisplayTemplate: "{code}-{name}",
			SearchFields:      []string{"code", "name", "address"},
			SoftDelete:        true,
			FactoryScoped:     true,
			BaseFilters:       map[string]interface{}{"active": true},
			DefaultOrdering:   "name",
		},
		{
			Kind:  "machines",
			Table: "machines",
			Columns: []Column{
				{Name: "id", Type: TypeInt},
				{Name: "company_id", Type: TypeInt},
				{Name: "factory_id", Type: TypeInt},
				{Name: "code", Type: TypeText},
				{Name: "name", Type: TypeText},
				{Name: "location", Type: TypeText},
				{Name: "active", Type: TypeBool},
				{Name: "deleted", Type: TypeBool},
				{Name: "created_at", Type: TypeTime},
			},
			OwnershipHierarchy: []ScopeLevel{
				{Level: "company", Field: "company_id"},
				{Level: "factory", Field: "factory_id"},
			},
			FKFields: map[string]string{
				"company_id": "companies",
				"factory_id": "factories",
			},
			FKDisplayTemplate: "{code} {name}",
			SearchFields:      []string{"code", "name", "location"},
			SoftDelete:        true,
			FactoryScoped:     true,
			BaseFilters:       map[string]interface{}{"active": true},
			DefaultOrdering:   "code",
		},
		{
			Kind:  "measurements",
			Table: "measurements",
			Columns: []Column{
				{Name: "id", Type: TypeInt},
				{Name: "company_id", Type: TypeInt},
				{Name: "factory_id", Type: TypeInt},
				{Name: "machine_id", Type: TypeInt},
				{Name: "hrid", Type: TypeText},
				{Name: "kind", Type: TypeText},
				{Name: "value", Type: TypeFloat},
				{Name: "unit", Type: TypeText},
				{Name: "notes", Type: TypeText},
				{Name: "measured_at", Type: TypeTime},
				{Name: "created_at", Type: TypeTime},
			},
			OwnershipHierarchy: []ScopeLevel{
				{Level: "company", Field: "company_id"},
				{Level: "factory", Field: "factory_id"},
			},
			FKFields: map[string]string{
				"factory_id": "factories",
				"machine_id": "machines",
			},
			SearchFields:    []string{"hrid", "kind", "notes"},
			FactoryScoped:   true,
			DynamicSearch:   true,
			DefaultOrdering: "-measured_at",
		},
		{
			Kind:  "reports",
			Table: "reports",
			Columns: []Column{
				{Name: "id", Type: TypeInt},
				{Name: "company_id", Type: TypeInt},
				{Name: "factory_id", Type: TypeInt},
				{Name: "title", Type: TypeText},
				{Name: "summary", Type: TypeText},
				{Name: "period", Type: TypeText},
				{Name: "created_at", Type: TypeTime},
			},
			OwnershipHierarchy: []ScopeLevel{
				{Level: "company", Field: "company_id"},
				{Level: "factory", Field: "factory_id"},
			},
			FKFields:        map[string]string{"factory_id": "factories"},
			SearchFields:    []string{"title", "summary", "period"},
			FactoryScoped:   true,
			DefaultOrdering: "-created_at",
		},
	}
}

// Default builds the shipped registry. It cannot fail: the shipped configs
// are validated by tests.
func Default(logger *observability.Logger) *Registry {
	r, err := New(logger, DefaultConfigs()...)
	if err != nil {
		panic(err)
	}
	return r
}
