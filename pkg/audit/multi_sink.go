package audit

import (
	"context"

	"github.com/thermaleye/backoffice/pkg/access"
)

// MultiSink fans one access decision out to several sinks. Sinks are
// called in order; a failing sink only logs inside itself and never stops
// the others.
type MultiSink struct {
	sinks []access.AuditSink
}

// NewMultiSink creates a sink writing to every given destination.
func NewMultiSink(sinks ...access.AuditSink) *MultiSink {
	return &MultiSink{sinks: sinks}
}

// RecordDecision implements access.AuditSink.
func (m *MultiSink) RecordDecision(ctx context.Context, d access.Decision) {
	for _, sink := range m.sinks {
		sink.RecordDecision(ctx, d)
	}
}
