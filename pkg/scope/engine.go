package scope

import (
	"context"
	"fmt"

	"github.com/thermaleye/backoffice/pkg/access"
	"github.com/thermaleye/backoffice/pkg/registry"
)

// AccessResolver answers which scope values a principal may see at one
// hierarchy level. The store implements it against the membership tables.
type AccessResolver interface {
	// AccessibleIDs returns the ids the principal may see at the named
	// level ("company", "factory"). An empty slice means no access; it is
	// not a wildcard.
	AccessibleIDs(ctx context.Context, p *access.Principal, level string) ([]int64, error)
}

// Selection carries the caller's explicit per-level narrowing, e.g. the
// factory picked in the UI header. Values here can only narrow visibility:
// the engine intersects them with the accessible set and never trusts them
// on their own.
type Selection map[string][]int64

// Engine turns an entity configuration plus a principal into a Filter
// restricting a queryable set to records the principal may see.
type Engine struct {
	resolver AccessResolver
}

// NewEngine creates a scoping engine over the given resolver.
func NewEngine(resolver AccessResolver) *Engine {
	return &Engine{resolver: resolver}
}

// ApplyRules produces the visibility predicate for one entity kind.
//
// Superusers bypass scoping entirely; that mirror of the access-service
// bypass is the single privileged shortcut and is applied here so every
// consumer (queries, FK options, both search paths) inherits it
// consistently. Unscoped entities skip ownership filtering but still carry
// their base filters. Everything else walks the ownership hierarchy level by
// level, intersecting explicit selections with the accessible set; an empty
// set at any level collapses the predicate to match-nothing.
func (e *Engine) ApplyRules(ctx context.Context, p *access.Principal, cfg *registry.EntityConfig, sel Selection) (Filter, error) {
	if cfg == nil {
		return Nothing(), fmt.Errorf("nil entity config")
	}

	if p != nil && p.Authenticated && p.IsSuperuser {
		return withBase(Unrestricted(), cfg), nil
	}

	if !cfg.Scoped() {
		return withBase(Unrestricted(), cfg), nil
	}

	if p == nil || !p.Authenticated {
		return Nothing(), nil
	}

	filter := Unrestricted()
	for _, level := range cfg.OwnershipHierarchy {
		accessible, err := e.resolver.AccessibleIDs(ctx, p, level.Level)
		if err != nil {
			// Resolution failure must fail closed, never open.
			return Nothing(), fmt.Errorf("resolve %s scope: %w", level.Level, err)
		}
		resolved := intersectSelection(accessible, sel[level.Level])
		filter = filter.And(level.Field, resolved)
		if filter.MatchNone {
			return Nothing(), nil
		}
	}

	return withBase(filter, cfg), nil
}

// intersectSelection narrows accessible by the explicit selection. A
// selected value outside the accessible set is dropped, not honored: a
// selection intersects the accessible set, it never overrides it.
func intersectSelection(accessible, selected []int64) []int64 {
	if len(selected) == 0 {
		return accessible
	}
	allowed := make(map[int64]bool, len(accessible))
	for _, id := range accessible {
		allowed[id] = true
	}
	out := make([]int64, 0, len(selected))
	for _, id := range selected {
		if allowed[id] {
			out = append(out, id)
		}
	}
	return out
}

// BaseOnly returns the entity's static predicate with no ownership
// filtering: base filters plus the soft-delete clause. The FK options cache
// uses it for the global (no-principal) scope.
func BaseOnly(cfg *registry.EntityConfig) Filter {
	return withBase(Unrestricted(), cfg)
}

// withBase layers the entity's static predicates on top of the ownership
// filter: base filters always apply, and soft-deleted rows stay hidden from
// every role.
func withBase(filter Filter, cfg *registry.EntityConfig) Filter {
	for column, value := range cfg.BaseFilters {
		filter = filter.AndEq(column, value)
	}
	if cfg.SoftDelete && cfg.HasColumn("deleted") {
		filter = filter.AndEq("deleted", false)
	}
	return filter
}
