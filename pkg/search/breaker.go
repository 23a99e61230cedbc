package search

import (
	"sync"
	"sync/atomic"

	"github.com/thermaleye/backoffice/pkg/observability"
)

// Breaker is the one-way circuit breaker shared by the query service and the
// indexer. One transport-class failure disables the external engine for the
// rest of the process lifetime; there is no automatic recovery probe, so a
// restart is required to re-enable it. This avoids paying a connection
// timeout on every request while the engine is down.
type Breaker struct {
	open     atomic.Bool
	tripOnce sync.Once
	logger   *observability.Logger
	metrics  *observability.Metrics
}

// NewBreaker creates a closed breaker.
func NewBreaker(logger *observability.Logger, metrics *observability.Metrics) *Breaker {
	if logger == nil {
		logger = observability.NewLogger(observability.InfoLevel, nil)
	}
	return &Breaker{logger: logger, metrics: metrics}
}

// Open reports whether the engine has been disabled.
func (b *Breaker) Open() bool {
	return b.open.Load()
}

// Trip disables the engine. Idempotent; the transition is logged once.
func (b *Breaker) Trip(err error) {
	b.open.Store(true)
	b.tripOnce.Do(func() {
		b.logger.WithError(err).Warn("search engine disabled after connection failure; restart required to re-enable")
		if b.metrics != nil {
			b.metrics.SearchBreakerOpen.Set(1)
		}
	})
}

// TripIfConnection trips the breaker for transport-class failures only and
// reports whether it did.
func (b *Breaker) TripIfConnection(err error) bool {
	if !IsConnectionError(err) {
		return false
	}
	b.Trip(err)
	return true
}
