// Package state persists per-user UI state snapshots under hierarchical
// slash-separated keys ("dashboard/filters/machines").
//
// A state is owned by one user. Marking it shared makes it readable by any
// authenticated user; writes and deletes stay owner-only. Reads prefer the
// caller's own state over a shared one under the same key.
//
// State is deliberately decoupled from the entity configuration registry:
// payloads are opaque JSON and no scoping applies beyond ownership and the
// shared flag.
package state
