package fkcache

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thermaleye/backoffice/pkg/access"
	"github.com/thermaleye/backoffice/pkg/observability"
	"github.com/thermaleye/backoffice/pkg/registry"
	"github.com/thermaleye/backoffice/pkg/scope"
	"github.com/thermaleye/backoffice/pkg/store"
)

type fixture struct {
	db      *sql.DB
	service *Service
	redis   *redis.Client
}

func newFixture(t *testing.T, withRedis bool) *fixture {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	_, err = db.Exec(`
		CREATE TABLE company_memberships (
			user_id INTEGER NOT NULL,
			company_id INTEGER NOT NULL
		);
		CREATE TABLE companies (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			code TEXT,
			name TEXT,
			active BOOLEAN NOT NULL DEFAULT 1,
			deleted BOOLEAN NOT NULL DEFAULT 0
		);
		CREATE TABLE factories (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			company_id INTEGER NOT NULL,
			code TEXT,
			name TEXT,
			active BOOLEAN NOT NULL DEFAULT 1,
			deleted BOOLEAN NOT NULL DEFAULT 0
		);
		CREATE TABLE fk_option_snapshots (
			kind TEXT PRIMARY KEY,
			payload TEXT NOT NULL,
			record_count INTEGER NOT NULL,
			built_at TIMESTAMP NOT NULL
		);
		INSERT INTO companies (id, code, name) VALUES
			(1, 'ACME', 'Acme Industries'),
			(2, 'GLOB', 'Globex');
		INSERT INTO factories (id, company_id, code, name) VALUES
			(10, 1, 'FAC-N', 'North Plant'),
			(11, 1, 'FAC-S', 'South Plant'),
			(20, 2, 'FAC-X', 'West Plant');
		INSERT INTO company_memberships (user_id, company_id) VALUES (100, 1);
	`)
	require.NoError(t, err)

	logger := observability.NewLogger(observability.ErrorLevel, nil)
	reg, err := registry.New(logger,
		&registry.EntityConfig{
			Kind:  "companies",
			Table: "companies",
			Columns: []registry.Column{
				{Name: "id", Type: registry.TypeInt},
				{Name: "code", Type: registry.TypeText},
				{Name: "name", Type: registry.TypeText},
				{Name: "active", Type: registry.TypeBool},
				{Name: "deleted", Type: registry.TypeBool},
			},
			OwnershipHierarchy: []registry.ScopeLevel{{Level: "company", Field: "id"}},
			FKDisplayTemplate:  "{code}-{name}",
			SoftDelete:         true,
			BaseFilters:        map[string]interface{}{"active": true},
			DefaultOrdering:    "name",
		},
		&registry.EntityConfig{
			Kind:  "factories",
			Table: "factories",
			Columns: []registry.Column{
				{Name: "id", Type: registry.TypeInt},
				{Name: "company_id", Type: registry.TypeInt},
				{Name: "code", Type: registry.TypeText},
				{Name: "name", Type: registry.TypeText},
				{Name: "active", Type: registry.TypeBool},
				{Name: "deleted", Type: registry.TypeBool},
			},
			OwnershipHierarchy: []registry.ScopeLevel{
				{Level: "company", Field: "company_id"},
				{Level: "factory", Field: "id"},
			},
			FKFields:          map[string]string{"company_id": "companies"},
			FKDisplayTemplate: "{code}-{name}",
			SoftDelete:        true,
			FactoryScoped:     true,
			BaseFilters:       map[string]interface{}{"active": true},
			DefaultOrdering:   "name",
		},
	)
	require.NoError(t, err)

	st := store.New(db)
	scoper := scope.NewEngine(st)

	var client *redis.Client
	if withRedis {
		mr := miniredis.RunT(t)
		client = redis.NewClient(&redis.Options{Addr: mr.Addr()})
		t.Cleanup(func() { client.Close() })
	}

	svc, err := New(reg, st, scoper, client, logger, nil)
	require.NoError(t, err)

	return &fixture{db: db, service: svc, redis: client}
}

func TestGetOptionsGlobal(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	set, err := f.service.GetOptions(ctx, "factories", nil, false)
	require.NoError(t, err)
	require.Len(t, set.Options, 3)
	assert.Equal(t, 3, set.Count)
	assert.Equal(t, 3, set.FactoriesCount)
	// DefaultOrdering is name; labels come from the display template.
	assert.Equal(t, Option{ID: 10, Value: 10, Label: "FAC-N-North Plant"}, set.Options[0])
	assert.WithinDuration(t, time.Now(), set.BuiltAt, time.Minute)
}

func TestKindForField(t *testing.T) {
	f := newFixture(t, false)

	kind, ok := f.service.KindForField("company_id")
	require.True(t, ok)
	assert.Equal(t, "companies", kind)

	_, ok = f.service.KindForField("serial")
	assert.False(t, ok)
}

func TestGetOptionsUnknownKind(t *testing.T) {
	f := newFixture(t, false)
	_, err := f.service.GetOptions(context.Background(), "gadgets", nil, false)
	assert.Error(t, err)
}

func TestGetOptionsScopedMatchesQueryVisibility(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()
	member := &access.Principal{ID: 100, Authenticated: true, CompanyIDs: []int64{1}}

	set, err := f.service.GetOptions(ctx, "factories", member, false)
	require.NoError(t, err)
	require.Len(t, set.Options, 2)
	for _, opt := range set.Options {
		assert.NotEqual(t, int64(20), opt.ID, "cross-company factory leaked into options")
	}

	// A user with no memberships gets an empty set, not the global one.
	stranger := &access.Principal{ID: 999, Authenticated: true}
	set, err = f.service.GetOptions(ctx, "factories", stranger, false)
	require.NoError(t, err)
	assert.Empty(t, set.Options)
}

func TestGetOptionsCachesInL1(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	first, err := f.service.GetOptions(ctx, "factories", nil, false)
	require.NoError(t, err)

	// A row added after the build is not visible until invalidation or TTL.
	_, err = f.db.Exec(`INSERT INTO factories (id, company_id, code, name) VALUES (30, 1, 'FAC-Z', 'Zeta Plant')`)
	require.NoError(t, err)

	second, err := f.service.GetOptions(ctx, "factories", nil, false)
	require.NoError(t, err)
	assert.Equal(t, first.BuiltAt, second.BuiltAt, "expected a cache hit")
	assert.Len(t, second.Options, 3)

	// Force bypasses the cache.
	forced, err := f.service.GetOptions(ctx, "factories", nil, true)
	require.NoError(t, err)
	assert.Len(t, forced.Options, 4)
}

func TestInvalidateDropsCachedEntries(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	_, err := f.service.GetOptions(ctx, "factories", nil, false)
	require.NoError(t, err)
	assert.NoError(t, f.redis.Get(ctx, "fkopts:factories:global").Err())

	_, err = f.db.Exec(`UPDATE factories SET name = 'Renamed Plant' WHERE id = 10`)
	require.NoError(t, err)

	f.service.Invalidate(ctx, "factories")
	assert.ErrorIs(t, f.redis.Get(ctx, "fkopts:factories:global").Err(), redis.Nil)

	set, err := f.service.GetOptions(ctx, "factories", nil, false)
	require.NoError(t, err)
	assert.Equal(t, "FAC-N-Renamed Plant", set.Options[0].Label)
}

func TestRedisLayerSurvivesL1Eviction(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	built, err := f.service.GetOptions(ctx, "factories", nil, false)
	require.NoError(t, err)

	// Purge L1 only; the next lookup promotes the redis copy back.
	f.service.l1.Purge()
	set, err := f.service.GetOptions(ctx, "factories", nil, false)
	require.NoError(t, err)
	assert.Equal(t, built.BuiltAt.Unix(), set.BuiltAt.Unix())
	assert.Len(t, set.Options, 3)
}

func TestRebuildScope(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()
	member := &access.Principal{ID: 100, Authenticated: true, CompanyIDs: []int64{1}}

	require.NoError(t, f.service.RebuildScope(ctx, member))

	// Both labeled kinds are now warm for the member.
	for _, kind := range []string{"companies", "factories"} {
		_, ok := f.service.l1.Get(cacheKey(kind, member))
		assert.True(t, ok, "expected a warm entry for %s", kind)
	}
}

func TestRebuildScopeIdempotent(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	require.NoError(t, f.service.RebuildScope(ctx, nil))
	first, err := f.service.GetSnapshot(ctx, "factories")
	require.NoError(t, err)

	require.NoError(t, f.service.RebuildScope(ctx, nil))
	second, err := f.service.GetSnapshot(ctx, "factories")
	require.NoError(t, err)

	assert.Equal(t, first.RecordCount, second.RecordCount)
	assert.Equal(t, len(first.Options), len(second.Options))
}

func TestSnapshotPersistsGlobalBuilds(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	_, err := f.service.GetSnapshot(ctx, "factories")
	assert.ErrorIs(t, err, ErrNoSnapshot)

	_, err = f.service.GetOptions(ctx, "factories", nil, false)
	require.NoError(t, err)

	snap, err := f.service.GetSnapshot(ctx, "factories")
	require.NoError(t, err)
	assert.Equal(t, "factories", snap.Kind)
	assert.Equal(t, 3, snap.RecordCount)
	assert.Len(t, snap.Options, 3)

	// Scoped builds must not overwrite the global snapshot.
	member := &access.Principal{ID: 100, Authenticated: true}
	_, err = f.service.GetOptions(ctx, "factories", member, true)
	require.NoError(t, err)

	snap, err = f.service.GetSnapshot(ctx, "factories")
	require.NoError(t, err)
	assert.Equal(t, 3, snap.RecordCount)
}

func TestCacheKeySeparatesScopes(t *testing.T) {
	member := &access.Principal{ID: 100, Authenticated: true}
	assert.Equal(t, "fkopts:factories:global", cacheKey("factories", nil))
	assert.Equal(t, "fkopts:factories:global", cacheKey("factories", access.Anonymous()))
	assert.Equal(t, "fkopts:factories:user:100", cacheKey("factories", member))
}

func TestTTLPerKindOverride(t *testing.T) {
	f := newFixture(t, false)

	cfg := &registry.EntityConfig{CacheTTLSeconds: 120}
	assert.Equal(t, 2*time.Minute, f.service.ttl(cfg))
	assert.Equal(t, DefaultTTL, f.service.ttl(&registry.EntityConfig{}))
}
