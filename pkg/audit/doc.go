// Package audit persists access denials for security review.
//
// The access service calls its audit sink synchronously on every decision,
// so sinks here are cheap: DBSink stores denials only, MultiSink fans out
// to several sinks (typically the structured-log sink plus DBSink). An
// audit write failure is logged and swallowed; auditing never fails the
// request it describes.
//
// Handlers exposes the stored trail at /api/audit/denials for admins.
package audit
