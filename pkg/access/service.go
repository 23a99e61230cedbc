package access

import "context"

// Service answers access questions from the static policy tables. It is a
// pure function of its configuration: no storage access, no mutation.
type Service struct {
	defaults  Policy
	overrides map[string]Policy
	kinds     []string
	audit     AuditSink
}

// Option configures a Service.
type Option func(*Service)

// WithAuditSink routes every decision to the given sink.
func WithAuditSink(sink AuditSink) Option {
	return func(s *Service) { s.audit = sink }
}

// WithOverrides replaces the shipped per-kind override table.
func WithOverrides(overrides map[string]Policy) Option {
	return func(s *Service) { s.overrides = overrides }
}

// NewService creates an access service over the default policy tables.
// kinds lists every registered entity kind; it drives the matrix form when
// callers don't name kinds explicitly.
func NewService(kinds []string, opts ...Option) *Service {
	s := &Service{
		defaults:  DefaultPolicy,
		overrides: DefaultOverrides,
		kinds:     kinds,
		audit:     NopSink{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CanAccess reports whether the principal may perform action on kind.
// Superusers bypass the policy tables entirely. Unknown kinds, actions and
// roles all degrade toward denial, never toward allowance.
func (s *Service) CanAccess(ctx context.Context, kind string, action Action, p *Principal) bool {
	if p != nil && p.Authenticated && p.IsSuperuser {
		return true
	}

	role := p.Role()
	allowed := s.lookup(kind, action)[role]
	s.audit.RecordDecision(ctx, Decision{
		Kind:      kind,
		Action:    action,
		Principal: p,
		Role:      role,
		Allowed:   allowed,
	})
	return allowed
}

// CanViewMenu reports whether a menu entry is visible. Menu visibility rides
// the same policy machinery under a dedicated action.
func (s *Service) CanViewMenu(ctx context.Context, menuKey string, p *Principal) bool {
	return s.CanAccess(ctx, menuKey, ActionMenu, p)
}

// AccessMatrix computes per-action grants for the given kinds, or for every
// registered kind when kinds is empty. Every requested kind gets a row, even
// kinds the policy tables have never heard of.
func (s *Service) AccessMatrix(ctx context.Context, p *Principal, kinds ...string) map[string]map[Action]bool {
	if len(kinds) == 0 {
		kinds = s.kinds
	}
	matrix := make(map[string]map[Action]bool, len(kinds))
	for _, kind := range kinds {
		row := make(map[Action]bool, len(AllActions))
		for _, action := range AllActions {
			row[action] = s.CanAccess(ctx, kind, action, p)
		}
		matrix[kind] = row
	}
	return matrix
}

// lookup resolves the role map for (kind, action): entity override first,
// then the default policy, then the default view policy for unknown actions.
func (s *Service) lookup(kind string, action Action) map[Role]bool {
	if override, ok := s.overrides[kind]; ok {
		if roles, ok := override[action]; ok {
			return merged(s.defaultRow(action), roles)
		}
	}
	return s.defaultRow(action)
}

func (s *Service) defaultRow(action Action) map[Role]bool {
	if roles, ok := s.defaults[action]; ok {
		return roles
	}
	return s.defaults[ActionView]
}

// merged lays override on top of base without mutating either.
func merged(base, override map[Role]bool) map[Role]bool {
	out := make(map[Role]bool, len(base))
	for role, allowed := range base {
		out[role] = allowed
	}
	for role, allowed := range override {
		out[role] = allowed
	}
	return out
}
