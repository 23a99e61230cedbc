// Package search provides entity search over an external engine with a
// database fallback.
//
// # Paths
//
// The engine path sends the query to an Elasticsearch-compatible engine
// with the principal's scope filter embedded in the query, then hydrates
// hits from primary storage under the same filter. The database path
// substring-matches the entity's search fields in SQL, again under the
// same filter. Both paths therefore enforce identical visibility; which
// path answered is reported in the result and in metrics.
//
// # Breaker
//
// Engine failures are classified: transport-class errors (refused
// connections, timeouts, DNS) trip a one-way breaker and every later
// query takes the database path until the process restarts. Query-class
// errors fall back for that one query without tripping anything.
//
// # Indexing
//
// The Indexer rebuilds whole indexes (cmd/reindex, admin endpoint) and
// refreshes single documents after writes. Both serialize records through
// BuildDocument so bulk and incremental documents never diverge.
package search
