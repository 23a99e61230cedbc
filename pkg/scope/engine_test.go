package scope

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thermaleye/backoffice/pkg/access"
	"github.com/thermaleye/backoffice/pkg/registry"
)

// stubResolver serves canned accessible id sets per level.
type stubResolver struct {
	ids  map[string][]int64
	errs map[string]error
}

func (r *stubResolver) AccessibleIDs(_ context.Context, _ *access.Principal, level string) ([]int64, error) {
	if err := r.errs[level]; err != nil {
		return nil, err
	}
	return r.ids[level], nil
}

func machinesConfig() *registry.EntityConfig {
	return &registry.EntityConfig{
		Kind:  "machines",
		Table: "machines",
		Columns: []registry.Column{
			{Name: "id", Type: registry.TypeInt},
			{Name: "company_id", Type: registry.TypeInt},
			{Name: "factory_id", Type: registry.TypeInt},
			{Name: "active", Type: registry.TypeBool},
			{Name: "deleted", Type: registry.TypeBool},
		},
		OwnershipHierarchy: []registry.ScopeLevel{
			{Level: "company", Field: "company_id"},
			{Level: "factory", Field: "factory_id"},
		},
		SoftDelete:    true,
		FactoryScoped: true,
		BaseFilters:   map[string]interface{}{"active": true},
	}
}

func user() *access.Principal {
	return &access.Principal{ID: 10, Authenticated: true, CompanyIDs: []int64{1}}
}

func TestApplyRulesNilConfig(t *testing.T) {
	engine := NewEngine(&stubResolver{})
	filter, err := engine.ApplyRules(context.Background(), user(), nil, nil)
	assert.Error(t, err)
	assert.True(t, filter.MatchNone)
}

func TestApplyRulesSuperuserBypass(t *testing.T) {
	engine := NewEngine(&stubResolver{})
	su := &access.Principal{ID: 1, Authenticated: true, IsSuperuser: true}

	filter, err := engine.ApplyRules(context.Background(), su, machinesConfig(), nil)
	require.NoError(t, err)
	assert.Empty(t, filter.Clauses, "no ownership clauses for superusers")
	// Base predicates still apply; a superuser does not see deleted rows.
	assert.Len(t, filter.Equalities, 2)
}

func TestApplyRulesUnscopedEntity(t *testing.T) {
	engine := NewEngine(&stubResolver{})
	cfg := &registry.EntityConfig{
		Kind:    "units",
		Table:   "units",
		Columns: []registry.Column{{Name: "id", Type: registry.TypeInt}},
	}

	filter, err := engine.ApplyRules(context.Background(), access.Anonymous(), cfg, nil)
	require.NoError(t, err)
	assert.False(t, filter.MatchNone)
	assert.Empty(t, filter.Clauses)
}

func TestApplyRulesAnonymousOnScopedEntity(t *testing.T) {
	engine := NewEngine(&stubResolver{ids: map[string][]int64{"company": {1}}})

	filter, err := engine.ApplyRules(context.Background(), access.Anonymous(), machinesConfig(), nil)
	require.NoError(t, err)
	assert.True(t, filter.MatchNone)

	filter, err = engine.ApplyRules(context.Background(), nil, machinesConfig(), nil)
	require.NoError(t, err)
	assert.True(t, filter.MatchNone)
}

func TestApplyRulesWalksHierarchy(t *testing.T) {
	engine := NewEngine(&stubResolver{ids: map[string][]int64{
		"company": {1, 2},
		"factory": {10, 11, 12},
	}})

	filter, err := engine.ApplyRules(context.Background(), user(), machinesConfig(), nil)
	require.NoError(t, err)
	require.Len(t, filter.Clauses, 2)
	assert.Equal(t, Clause{Column: "company_id", Values: []int64{1, 2}}, filter.Clauses[0])
	assert.Equal(t, Clause{Column: "factory_id", Values: []int64{10, 11, 12}}, filter.Clauses[1])
}

func TestApplyRulesEmptyLevelFailsClosed(t *testing.T) {
	engine := NewEngine(&stubResolver{ids: map[string][]int64{
		"company": {1},
		"factory": nil,
	}})

	filter, err := engine.ApplyRules(context.Background(), user(), machinesConfig(), nil)
	require.NoError(t, err)
	assert.True(t, filter.MatchNone)
}

func TestApplyRulesResolverErrorFailsClosed(t *testing.T) {
	engine := NewEngine(&stubResolver{
		ids:  map[string][]int64{"company": {1}},
		errs: map[string]error{"factory": errors.New("membership table offline")},
	})

	filter, err := engine.ApplyRules(context.Background(), user(), machinesConfig(), nil)
	assert.Error(t, err)
	assert.True(t, filter.MatchNone)
}

func TestApplyRulesSelectionNarrows(t *testing.T) {
	engine := NewEngine(&stubResolver{ids: map[string][]int64{
		"company": {1, 2},
		"factory": {10, 11, 12},
	}})

	filter, err := engine.ApplyRules(context.Background(), user(), machinesConfig(), Selection{
		"factory": {11},
	})
	require.NoError(t, err)
	require.Len(t, filter.Clauses, 2)
	assert.Equal(t, []int64{11}, filter.Clauses[1].Values)
}

func TestApplyRulesSelectionCannotWiden(t *testing.T) {
	engine := NewEngine(&stubResolver{ids: map[string][]int64{
		"company": {1},
		"factory": {10},
	}})

	// Selecting a factory outside the accessible set yields nothing, not
	// that factory.
	filter, err := engine.ApplyRules(context.Background(), user(), machinesConfig(), Selection{
		"factory": {99},
	})
	require.NoError(t, err)
	assert.True(t, filter.MatchNone)
}

// TestApplyRulesSubsetProperty checks the containment invariant directly:
// whatever the selection, every record admitted by the selected filter is
// also admitted by the unselected one.
func TestApplyRulesSubsetProperty(t *testing.T) {
	engine := NewEngine(&stubResolver{ids: map[string][]int64{
		"company": {1, 2, 3},
		"factory": {10, 11, 12, 13},
	}})
	ctx := context.Background()
	cfg := machinesConfig()

	base, err := engine.ApplyRules(ctx, user(), cfg, nil)
	require.NoError(t, err)

	selections := []Selection{
		nil,
		{"company": {2}},
		{"factory": {11, 13}},
		{"company": {1}, "factory": {10, 99}},
	}
	var records []map[string]interface{}
	for _, company := range []int64{1, 2, 3, 4} {
		for _, factory := range []int64{10, 11, 13, 99} {
			records = append(records, map[string]interface{}{
				"company_id": company,
				"factory_id": factory,
				"active":     true,
				"deleted":    false,
			})
		}
	}

	for _, sel := range selections {
		narrowed, err := engine.ApplyRules(ctx, user(), cfg, sel)
		require.NoError(t, err)
		for _, rec := range records {
			if narrowed.Allows(rec) {
				assert.True(t, base.Allows(rec), "selection %v widened visibility for %v", sel, rec)
			}
		}
	}
}

func TestBaseOnly(t *testing.T) {
	filter := BaseOnly(machinesConfig())
	assert.Empty(t, filter.Clauses)
	assert.True(t, filter.Allows(map[string]interface{}{"active": true, "deleted": false}))
	assert.False(t, filter.Allows(map[string]interface{}{"active": true, "deleted": true}))
	assert.False(t, filter.Allows(map[string]interface{}{"active": false, "deleted": false}))
}
