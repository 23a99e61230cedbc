package search

import (
	"context"
	"errors"
	"net"
	"net/url"
)

// EngineQuery is the engine-neutral form of one search request.
type EngineQuery struct {
	// Text is the user's query. In simple mode it is matched across the
	// entity's search fields; in advanced mode it is a structured
	// query-string expression.
	Text     string
	Advanced bool

	// Fuzzy enables typo-tolerant matching (simple mode only).
	Fuzzy bool

	// Fields are the entity's searchable fields.
	Fields []string

	// ScopeFilters restrict results to the caller's visibility; they are
	// always ANDed with the text query, never optional.
	ScopeFilters map[string][]int64

	// EqualityFilters carry the entity's static base predicates.
	EqualityFilters map[string]interface{}

	From int
	Size int
}

// EngineHit is one ranked result.
type EngineHit struct {
	ID        int64
	Score     float64
	Highlight string
}

// EngineResult is the engine's answer.
type EngineResult struct {
	Hits  []EngineHit
	Total int
}

// Engine is the external search engine client surface. Implementations must
// enforce a bounded per-request timeout; callers treat any transport-class
// failure as a signal to stop using the engine for the rest of the process.
type Engine interface {
	Ping(ctx context.Context) error
	EnsureIndex(ctx context.Context, kind string, mapping map[string]string) error
	DeleteIndex(ctx context.Context, kind string) error
	IndexDocument(ctx context.Context, kind string, id int64, doc map[string]interface{}) error
	DeleteDocument(ctx context.Context, kind string, id int64) error
	Search(ctx context.Context, kind string, q EngineQuery) (*EngineResult, error)
}

// connError marks transport-class engine failures: connection refused,
// timeouts, DNS. Only these trip the breaker; a malformed query does not.
type connError struct {
	err error
}

func (e *connError) Error() string { return "search engine unreachable: " + e.err.Error() }
func (e *connError) Unwrap() error { return e.err }

// IsConnectionError reports whether an engine failure is transport-class.
func IsConnectionError(err error) bool {
	if err == nil {
		return false
	}
	var ce *connError
	if errors.As(err, &ce) {
		return true
	}
	var ne net.Error
	if errors.As(err, &ne) {
		return true
	}
	var ue *url.Error
	if errors.As(err, &ue) {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}
