// Package registry holds the entity configuration registry: the declarative
// table ("views matrix") describing every managed entity kind.
//
// # Overview
//
// One EntityConfig per kind names the backing table, the ownership hierarchy
// establishing tenant scope, FK relations with display-label templates,
// searchable fields, and feature flags. Access control, scoping, endpoint
// generation, FK option caching and search indexing all interpret the same
// configuration, so the registry is the single source of truth for what an
// entity kind is.
//
// # Immutability
//
// A Registry is built once at process start (New, LoadFile, or Default) and
// never mutated afterwards. Concurrent reads need no synchronization. Tests
// build fixture registries instead of patching a shared one.
//
// # Validation
//
// Fatal problems (missing table, missing id column, duplicate kind) fail
// construction. Recoverable problems (dangling FK targets, unknown template
// tokens) log warnings and keep the registry usable, so a partially
// rolled-out configuration degrades instead of crashing the process.
package registry
