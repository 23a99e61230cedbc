// Package access decides who may do what to which entity kind.
//
// Decisions come from two static tables: a default policy mapping every
// action to per-role grants, and per-kind overrides layered on top. A
// principal resolves to exactly one role (superuser > admin > staff >
// user, unauthenticated callers are anonymous) and the lookup is a pure
// table read, so a decision costs no storage access and cannot partially
// fail. Everything unknown degrades toward denial: unknown kinds use the
// defaults, unknown actions fall back to the view row, unknown roles are
// denied. Superusers bypass the tables entirely.
//
// Every non-bypass decision is offered to an AuditSink; the shipped sinks
// log denials and persist them for security review.
package access
