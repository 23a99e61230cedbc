// Package fkcache builds and caches FK dropdown option lists from the entity
// configuration registry.
//
// Option sets are cached per (entity kind, principal-or-global) in two
// layers: an in-process LRU in front of redis. Rebuilds apply the same
// scoping engine as query filtering, so a cached option list never exposes
// records its principal could not list directly. Staleness between a write
// and the invalidation-triggered rebuild is accepted and bounded by TTL.
package fkcache

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/thermaleye/backoffice/pkg/access"
	"github.com/thermaleye/backoffice/pkg/observability"
	"github.com/thermaleye/backoffice/pkg/registry"
	"github.com/thermaleye/backoffice/pkg/scope"
	"github.com/thermaleye/backoffice/pkg/store"
)

// MaxOptions bounds a rebuild. Oversized tables get truncated at fetch time
// rather than reported as an error: dropdowns are not an observability
// denial-of-service vector.
const MaxOptions = 2000

// DefaultTTL bounds cache entries for kinds without their own TTL config.
const DefaultTTL = time.Hour

// Option is one dropdown entry.
type Option struct {
	ID    int64  `json:"id"`
	Value int64  `json:"value"`
	Label string `json:"label"`
}

// OptionSet is the cached answer for one (kind, scope) key.
type OptionSet struct {
	Kind           string   `json:"kind"`
	Options        []Option `json:"options"`
	Count          int      `json:"count"`
	FactoriesCount int      `json:"factories_count"`
	BuiltAt        time.Time `json:"built_at"`
}

// CacheAge is how long ago the set was built.
func (s *OptionSet) CacheAge() time.Duration {
	return time.Since(s.BuiltAt)
}

// Service is the FK options cache.
type Service struct {
	registry *registry.Registry
	store    *store.Store
	scoper   *scope.Engine
	redis    *redis.Client
	l1       *lru.Cache[string, *OptionSet]
	logger   *observability.Logger
	metrics  *observability.Metrics
}

// New creates the cache service. redisClient may be nil; the service then
// runs on the in-process layer alone, which is how unit tests exercise it.
func New(reg *registry.Registry, st *store.Store, scoper *scope.Engine, redisClient *redis.Client, logger *observability.Logger, metrics *observability.Metrics) (*Service, error) {
	l1, err := lru.New[string, *OptionSet](256)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = observability.NewLogger(observability.InfoLevel, nil)
	}
	return &Service{
		registry: reg,
		store:    st,
		scoper:   scoper,
		redis:    redisClient,
		l1:       l1,
		logger:   logger,
		metrics:  metrics,
	}, nil
}

func cacheKey(kind string, p *access.Principal) string {
	if p == nil || !p.Authenticated {
		return fmt.Sprintf("fkopts:%s:global", kind)
	}
	return fmt.Sprintf("fkopts:%s:user:%d", kind, p.ID)
}

func (s *Service) ttl(cfg *registry.EntityConfig) time.Duration {
	if cfg.CacheTTLSeconds > 0 {
		return time.Duration(cfg.CacheTTLSeconds) * time.Second
	}
	return DefaultTTL
}

// GetOptions returns the option set for a kind under the principal's scope,
// rebuilding on miss, expiry or force.
func (s *Service) GetOptions(ctx context.Context, kind string, p *access.Principal, force bool) (*OptionSet, error) {
	cfg := s.registry.Get(kind)
	if cfg == nil {
		return nil, fmt.Errorf("unknown entity kind %q", kind)
	}

	key := cacheKey(kind, p)
	ttl := s.ttl(cfg)

	if !force {
		if set := s.lookup(ctx, key, ttl, kind); set != nil {
			return set, nil
		}
		s.countMiss(kind)
	}

	return s.rebuild(ctx, cfg, p, key, ttl, triggerLabel(force))
}

// KindForField resolves an FK form field name to the entity kind that
// supplies its options.
func (s *Service) KindForField(field string) (string, bool) {
	for _, kind := range s.registry.Kinds() {
		if target, ok := s.registry.Get(kind).FKFields[field]; ok {
			return target, true
		}
	}
	return "", false
}

// Invalidate drops the global cache entry for a kind after a write to its
// source table. User-scoped entries are left to age out on their own TTL.
func (s *Service) Invalidate(ctx context.Context, kind string) {
	globalKey := cacheKey(kind, nil)
	prefix := "fkopts:" + kind + ":"
	for _, key := range s.l1.Keys() {
		if strings.HasPrefix(key, prefix) {
			s.l1.Remove(key)
		}
	}
	if s.redis != nil {
		if err := s.redis.Del(ctx, globalKey).Err(); err != nil {
			s.logger.WithError(err).WithField("kind", kind).Warn("fk cache invalidation failed")
		}
	}
}

// RebuildScope force-rebuilds every FK-label-bearing kind for the principal.
// Used after a scope-defining change such as a membership update.
func (s *Service) RebuildScope(ctx context.Context, p *access.Principal) error {
	var firstErr error
	for _, kind := range s.registry.LabelKinds() {
		if _, err := s.GetOptions(ctx, kind, p, true); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// lookup checks the L1 then redis, promoting redis hits into L1.
func (s *Service) lookup(ctx context.Context, key string, ttl time.Duration, kind string) *OptionSet {
	if set, ok := s.l1.Get(key); ok {
		if time.Since(set.BuiltAt) < ttl {
			s.countHit(kind, "l1")
			return set
		}
		s.l1.Remove(key)
	}

	if s.redis == nil {
		return nil
	}
	data, err := s.redis.Get(ctx, key).Bytes()
	if err != nil {
		return nil
	}
	var set OptionSet
	if err := json.Unmarshal(data, &set); err != nil {
		return nil
	}
	if time.Since(set.BuiltAt) >= ttl {
		return nil
	}
	s.countHit(kind, "redis")
	s.l1.Add(key, &set)
	return &set
}

// rebuild fetches the scoped records and renders labels. Records whose
// template fields are missing get the best-effort fallback label; one broken
// record never aborts the batch.
func (s *Service) rebuild(ctx context.Context, cfg *registry.EntityConfig, p *access.Principal, key string, ttl time.Duration, trigger string) (*OptionSet, error) {
	filter, err := s.scopedFilter(ctx, cfg, p)
	if err != nil {
		return nil, err
	}

	records, err := s.store.List(ctx, cfg, store.ListQuery{
		Filter:   filter,
		Ordering: cfg.DefaultOrdering,
		Limit:    MaxOptions,
	})
	if err != nil {
		return nil, fmt.Errorf("rebuild %s options: %w", cfg.Kind, err)
	}

	set := &OptionSet{
		Kind:    cfg.Kind,
		Options: make([]Option, 0, len(records)),
		BuiltAt: time.Now().UTC(),
	}
	factories := make(map[int64]bool)
	for _, record := range records {
		id, ok := record["id"].(int64)
		if !ok {
			continue
		}
		set.Options = append(set.Options, Option{
			ID:    id,
			Value: id,
			Label: cfg.RenderLabel(record),
		})
		switch cfg.Kind {
		case "factories":
			factories[id] = true
		default:
			if fid, ok := record["factory_id"].(int64); ok {
				factories[fid] = true
			}
		}
	}
	set.Count = len(set.Options)
	set.FactoriesCount = len(factories)

	s.persist(ctx, key, set, ttl)
	if p == nil || !p.Authenticated {
		s.saveSnapshot(ctx, set)
		s.gaugeOptions(cfg.Kind, set.Count)
	}
	s.countRebuild(cfg.Kind, trigger)
	return set, nil
}

// scopedFilter picks the visibility predicate: base-only for the global
// scope, the full scoping-engine result otherwise.
func (s *Service) scopedFilter(ctx context.Context, cfg *registry.EntityConfig, p *access.Principal) (scope.Filter, error) {
	if p == nil || !p.Authenticated {
		return scope.BaseOnly(cfg), nil
	}
	return s.scoper.ApplyRules(ctx, p, cfg, nil)
}

func (s *Service) persist(ctx context.Context, key string, set *OptionSet, ttl time.Duration) {
	s.l1.Add(key, set)
	if s.redis == nil {
		return
	}
	data, err := json.Marshal(set)
	if err != nil {
		return
	}
	if err := s.redis.Set(ctx, key, data, ttl).Err(); err != nil {
		s.logger.WithError(err).WithField("key", key).Warn("fk cache write failed")
	}
}

func triggerLabel(force bool) string {
	if force {
		return "forced"
	}
	return "miss"
}

func (s *Service) countHit(kind, layer string) {
	if s.metrics != nil {
		s.metrics.FKCacheHitsTotal.WithLabelValues(kind, layer).Inc()
	}
}

func (s *Service) countMiss(kind string) {
	if s.metrics != nil {
		s.metrics.FKCacheMissesTotal.WithLabelValues(kind).Inc()
	}
}

func (s *Service) countRebuild(kind, trigger string) {
	if s.metrics != nil {
		s.metrics.FKCacheRebuildsTotal.WithLabelValues(kind, trigger).Inc()
	}
}

func (s *Service) gaugeOptions(kind string, count int) {
	if s.metrics != nil {
		s.metrics.FKCacheOptionCount.WithLabelValues(kind).Set(float64(count))
	}
}
