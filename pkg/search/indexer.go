package search

import (
	"context"
	"errors"
	"fmt"

	"github.com/thermaleye/backoffice/pkg/observability"
	"github.com/thermaleye/backoffice/pkg/registry"
	"github.com/thermaleye/backoffice/pkg/scope"
	"github.com/thermaleye/backoffice/pkg/store"
)

const reindexBatchSize = 500

// ErrUnknownKind is returned for a kind the registry does not carry.
var ErrUnknownKind = errors.New("unknown entity kind")

// Indexer maintains the search indexes: full rebuilds per kind and
// incremental updates after entity writes. Both routes serialize records
// through BuildDocument.
type Indexer struct {
	engine   Engine
	breaker  *Breaker
	store    *store.Store
	registry *registry.Registry
	logger   *observability.Logger
	metrics  *observability.Metrics
}

// NewIndexer wires an indexer. metrics may be nil in tests.
func NewIndexer(engine Engine, breaker *Breaker, st *store.Store, reg *registry.Registry, logger *observability.Logger, metrics *observability.Metrics) *Indexer {
	return &Indexer{
		engine:   engine,
		breaker:  breaker,
		store:    st,
		registry: reg,
		logger:   logger,
		metrics:  metrics,
	}
}

// ReindexKind rebuilds one kind's index from storage: drop, recreate with
// the inferred mapping, then stream every base-visible record in.
func (ix *Indexer) ReindexKind(ctx context.Context, kind string) (int, error) {
	cfg := ix.registry.Get(kind)
	if cfg == nil {
		return 0, ErrUnknownKind
	}
	if ix.breaker.Open() {
		return 0, fmt.Errorf("search engine offline, not reindexing %s", kind)
	}

	if err := ix.engine.DeleteIndex(ctx, kind); err != nil {
		ix.breaker.TripIfConnection(err)
		return 0, fmt.Errorf("drop index for %s: %w", kind, err)
	}
	if err := ix.engine.EnsureIndex(ctx, kind, IndexMapping(cfg)); err != nil {
		ix.breaker.TripIfConnection(err)
		return 0, fmt.Errorf("create index for %s: %w", kind, err)
	}

	labels := newLabelCache(ix.store, ix.registry)
	indexed := 0
	for offset := 0; ; offset += reindexBatchSize {
		records, err := ix.store.List(ctx, cfg, store.ListQuery{
			Filter:   scope.BaseOnly(cfg),
			Ordering: "id",
			Limit:    reindexBatchSize,
			Offset:   offset,
		})
		if err != nil {
			return indexed, fmt.Errorf("load %s batch at %d: %w", kind, offset, err)
		}
		for _, rec := range records {
			id, ok := asDocInt64(rec["id"])
			if !ok {
				continue
			}
			doc := BuildDocument(cfg, rec, labels.labelFor(ctx))
			if err := ix.engine.IndexDocument(ctx, kind, id, doc); err != nil {
				ix.breaker.TripIfConnection(err)
				ix.countOp(kind, "index", "error")
				return indexed, fmt.Errorf("index %s/%d: %w", kind, id, err)
			}
			ix.countOp(kind, "index", "ok")
			indexed++
		}
		if len(records) < reindexBatchSize {
			break
		}
	}

	ix.logger.WithFields(map[string]interface{}{
		"kind":    kind,
		"indexed": indexed,
	}).Info("reindex complete")
	return indexed, nil
}

// IndexRecord refreshes one record's document after a write. A record that
// no longer passes its base filters is removed from the index instead.
func (ix *Indexer) IndexRecord(ctx context.Context, kind string, id int64) error {
	cfg := ix.registry.Get(kind)
	if cfg == nil {
		return ErrUnknownKind
	}
	if ix.breaker.Open() {
		return nil
	}

	rec, err := ix.store.Get(ctx, cfg, id, scope.BaseOnly(cfg))
	if errors.Is(err, store.ErrNotFound) {
		return ix.DeleteRecord(ctx, kind, id)
	}
	if err != nil {
		return fmt.Errorf("load %s/%d for indexing: %w", kind, id, err)
	}

	labels := newLabelCache(ix.store, ix.registry)
	doc := BuildDocument(cfg, rec, labels.labelFor(ctx))
	if err := ix.engine.IndexDocument(ctx, kind, id, doc); err != nil {
		ix.breaker.TripIfConnection(err)
		ix.countOp(kind, "index", "error")
		return fmt.Errorf("index %s/%d: %w", kind, id, err)
	}
	ix.countOp(kind, "index", "ok")
	return nil
}

// DeleteRecord drops one record's document.
func (ix *Indexer) DeleteRecord(ctx context.Context, kind string, id int64) error {
	if ix.registry.Get(kind) == nil {
		return ErrUnknownKind
	}
	if ix.breaker.Open() {
		return nil
	}
	if err := ix.engine.DeleteDocument(ctx, kind, id); err != nil {
		ix.breaker.TripIfConnection(err)
		ix.countOp(kind, "delete", "error")
		return fmt.Errorf("unindex %s/%d: %w", kind, id, err)
	}
	ix.countOp(kind, "delete", "ok")
	return nil
}

func (ix *Indexer) countOp(kind, op, result string) {
	if ix.metrics != nil {
		ix.metrics.IndexOperationsTotal.WithLabelValues(kind, op, result).Inc()
	}
}

// labelCache memoizes FK label lookups within one indexing pass.
type labelCache struct {
	store    *store.Store
	registry *registry.Registry
	seen     map[string]string
}

func newLabelCache(st *store.Store, reg *registry.Registry) *labelCache {
	return &labelCache{store: st, registry: reg, seen: make(map[string]string)}
}

func (c *labelCache) labelFor(ctx context.Context) LabelFunc {
	return func(kind string, id int64) string {
		key := fmt.Sprintf("%s:%d", kind, id)
		if label, ok := c.seen[key]; ok {
			return label
		}
		label := ""
		if cfg := c.registry.Get(kind); cfg != nil && cfg.FKDisplayTemplate != "" {
			if rec, err := c.store.Get(ctx, cfg, id, scope.Unrestricted()); err == nil {
				label = cfg.RenderLabel(rec)
			}
		}
		c.seen[key] = label
		return label
	}
}
