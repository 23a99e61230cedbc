package api

import (
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thermaleye/backoffice/pkg/access"
	"github.com/thermaleye/backoffice/pkg/fkcache"
	"github.com/thermaleye/backoffice/pkg/middleware"
	"github.com/thermaleye/backoffice/pkg/observability"
	"github.com/thermaleye/backoffice/pkg/registry"
	"github.com/thermaleye/backoffice/pkg/scope"
	"github.com/thermaleye/backoffice/pkg/search"
	"github.com/thermaleye/backoffice/pkg/state"
	"github.com/thermaleye/backoffice/pkg/store"
)

// serverFixture wires a full server over an in-memory database: default
// registry, real scoping, token auth, FK cache without redis, search on the
// database path only.
type serverFixture struct {
	server *Server
	db     *sql.DB
}

func newServerFixture(t *testing.T) *serverFixture {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	_, err = db.Exec(`
		CREATE TABLE users (
			id INTEGER PRIMARY KEY,
			username TEXT NOT NULL,
			api_token TEXT,
			active INTEGER NOT NULL DEFAULT 1,
			is_superuser INTEGER NOT NULL DEFAULT 0,
			is_admin INTEGER NOT NULL DEFAULT 0,
			is_staff INTEGER NOT NULL DEFAULT 0
		);
		CREATE TABLE company_memberships (
			user_id INTEGER NOT NULL,
			company_id INTEGER NOT NULL
		);
		CREATE TABLE companies (
			id INTEGER PRIMARY KEY,
			code TEXT, name TEXT, city TEXT,
			active INTEGER NOT NULL DEFAULT 1,
			deleted INTEGER NOT NULL DEFAULT 0,
			created_at TIMESTAMP
		);
		CREATE TABLE factories (
			id INTEGER PRIMARY KEY,
			company_id INTEGER NOT NULL,
			code TEXT, name TEXT, address TEXT,
			active INTEGER NOT NULL DEFAULT 1,
			deleted INTEGER NOT NULL DEFAULT 0,
			created_at TIMESTAMP
		);
		CREATE TABLE machines (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			company_id INTEGER NOT NULL,
			factory_id INTEGER NOT NULL,
			code TEXT, name TEXT, location TEXT,
			active INTEGER NOT NULL DEFAULT 1,
			deleted INTEGER NOT NULL DEFAULT 0,
			created_at TIMESTAMP
		);
		CREATE TABLE measurements (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			company_id INTEGER NOT NULL,
			factory_id INTEGER NOT NULL,
			machine_id INTEGER NOT NULL,
			hrid TEXT, kind TEXT, value REAL, unit TEXT, notes TEXT,
			measured_at TIMESTAMP, created_at TIMESTAMP
		);
		CREATE TABLE reports (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			company_id INTEGER NOT NULL,
			factory_id INTEGER NOT NULL,
			title TEXT, summary TEXT, period TEXT,
			created_at TIMESTAMP
		);
		CREATE TABLE fk_option_snapshots (
			kind TEXT PRIMARY KEY,
			payload TEXT NOT NULL,
			record_count INTEGER NOT NULL,
			built_at TIMESTAMP NOT NULL
		);
		CREATE TABLE saved_states (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id INTEGER NOT NULL,
			state_key TEXT NOT NULL,
			payload TEXT NOT NULL,
			shared INTEGER NOT NULL DEFAULT 0,
			updated_at TIMESTAMP NOT NULL,
			UNIQUE (user_id, state_key)
		);

		INSERT INTO users (id, username, api_token, is_superuser) VALUES (1, 'root', 'tok-root', 1);
		INSERT INTO users (id, username, api_token) VALUES (2, 'mia', 'tok-mia');
		INSERT INTO users (id, username, api_token, is_staff) VALUES (3, 'sid', 'tok-sid', 1);
		INSERT INTO company_memberships (user_id, company_id) VALUES (2, 1), (3, 1);

		INSERT INTO companies (id, code, name, city) VALUES
			(1, 'ACME', 'Acme Corp', 'Austin'),
			(2, 'GLOBEX', 'Globex Inc', 'Berlin');
		INSERT INTO factories (id, company_id, code, name) VALUES
			(10, 1, 'FAC-N', 'North Plant'),
			(20, 2, 'FAC-S', 'South Plant');
		INSERT INTO machines (id, company_id, factory_id, code, name, location) VALUES
			(1, 1, 10, 'M-1', 'Hydraulic Press', 'Hall A'),
			(2, 1, 10, 'M-2', 'Band Saw', 'Hall B'),
			(3, 2, 20, 'M-3', 'Lathe Press', 'Hall C');
		INSERT INTO measurements (id, company_id, factory_id, machine_id, hrid, kind, value, unit) VALUES
			(1, 1, 10, 1, 'MEA-1', 'temperature', 71.5, 'C');
	`)
	require.NoError(t, err)

	logger := observability.NewLogger(observability.ErrorLevel, nil)
	reg := registry.Default(logger)
	st := store.New(db)
	scoper := scope.NewEngine(st)
	acc := access.NewService(reg.Kinds())

	cache, err := fkcache.New(reg, st, scoper, nil, logger, nil)
	require.NoError(t, err)

	server := NewServer(Deps{
		Registry: reg,
		Access:   acc,
		Scoper:   scoper,
		Store:    st,
		Cache:    cache,
		Search:   search.NewService(nil, nil, st, reg, scoper, logger, nil),
		State:    state.NewStore(db),
		Auth:     middleware.NewTokenAuth(st, logger),
		Logger:   logger,
	})
	return &serverFixture{server: server, db: db}
}

func (f *serverFixture) request(t *testing.T, token, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	f.server.ServeHTTP(rec, req)
	return rec
}

func decodeList(t *testing.T, rec *httptest.ResponseRecorder) ListResponse {
	t.Helper()
	var resp ListResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestServerAnonymousIsForbidden(t *testing.T) {
	f := newServerFixture(t)

	rec := f.request(t, "", http.MethodGet, "/api/machines", "")
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestServerCompaniesLockedForRegularUsers(t *testing.T) {
	f := newServerFixture(t)

	rec := f.request(t, "tok-mia", http.MethodGet, "/api/companies", "")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = f.request(t, "tok-root", http.MethodGet, "/api/companies", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 2, decodeList(t, rec).Total)
}

func TestServerListIsScoped(t *testing.T) {
	f := newServerFixture(t)

	rec := f.request(t, "tok-mia", http.MethodGet, "/api/machines", "")
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeList(t, rec)
	require.Equal(t, 2, resp.Total)
	for _, record := range resp.Records {
		assert.EqualValues(t, 1, record["company_id"])
	}

	rec = f.request(t, "tok-root", http.MethodGet, "/api/machines", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 3, decodeList(t, rec).Total)
}

func TestServerGetOutOfScopeReadsAsMissing(t *testing.T) {
	f := newServerFixture(t)

	rec := f.request(t, "tok-mia", http.MethodGet, "/api/machines/1", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = f.request(t, "tok-mia", http.MethodGet, "/api/machines/3", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServerSelectionCannotWiden(t *testing.T) {
	f := newServerFixture(t)

	// Asking for the other company narrows to nothing instead of leaking.
	rec := f.request(t, "tok-mia", http.MethodGet, "/api/machines?company_id=2", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 0, decodeList(t, rec).Total)
}

func TestServerCRUDLifecycle(t *testing.T) {
	f := newServerFixture(t)

	rec := f.request(t, "tok-root", http.MethodPost, "/api/machines",
		`{"company_id":1,"factory_id":10,"code":"M-9","name":"Grinder","location":"Hall D","active":true,"unknown_field":"dropped"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var created map[string]int64
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	id := created["id"]
	require.NotZero(t, id)

	rec = f.request(t, "tok-root", http.MethodGet, "/api/machines/4", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var record map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &record))
	assert.Equal(t, "Grinder", record["name"])
	assert.NotContains(t, record, "unknown_field")

	rec = f.request(t, "tok-root", http.MethodPut, "/api/machines/4", `{"name":"Surface Grinder"}`)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = f.request(t, "tok-root", http.MethodDelete, "/api/machines/4", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	// Soft deleted rows vanish from reads.
	rec = f.request(t, "tok-root", http.MethodGet, "/api/machines/4", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServerWriteActionsRequirePermission(t *testing.T) {
	f := newServerFixture(t)

	rec := f.request(t, "tok-mia", http.MethodPost, "/api/machines", `{"code":"M-9"}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = f.request(t, "tok-mia", http.MethodDelete, "/api/machines/1", "")
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestServerExport(t *testing.T) {
	f := newServerFixture(t)

	// Regular users may not export machines.
	rec := f.request(t, "tok-mia", http.MethodGet, "/api/machines/export", "")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = f.request(t, "tok-root", http.MethodGet, "/api/machines/export", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv", rec.Header().Get("Content-Type"))

	lines := strings.Split(strings.TrimSpace(rec.Body.String()), "\n")
	require.Len(t, lines, 4)
	assert.Contains(t, lines[0], "code")
	assert.Contains(t, rec.Body.String(), "Hydraulic Press")
}

func TestServerFKOptions(t *testing.T) {
	f := newServerFixture(t)

	rec := f.request(t, "tok-mia", http.MethodGet, "/api/machines/fk-options?field=factory_id", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var payload map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	assert.Equal(t, "factory_id", payload["field"])
	require.Contains(t, payload, "cache_age")
	assert.GreaterOrEqual(t, payload["cache_age"].(float64), 0.0)
	assert.Contains(t, payload, "count")
	assert.Contains(t, payload, "factories_count")

	var resp fkOptionsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Options, 1)
	assert.Equal(t, "FAC-N-North Plant", resp.Options[0].Label)

	rec = f.request(t, "tok-mia", http.MethodGet, "/api/machines/fk-options", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.request(t, "tok-mia", http.MethodGet, "/api/machines/fk-options?field=name", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServerRouteIntrospection(t *testing.T) {
	f := newServerFixture(t)

	rec := f.request(t, "", http.MethodGet, "/api/routes", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var routes []Route
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &routes))
	assert.Len(t, routes, 40)
}

func TestServerAccessMatrix(t *testing.T) {
	f := newServerFixture(t)

	rec := f.request(t, "tok-mia", http.MethodGet, "/api/access-matrix?kinds=companies,machines", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var matrix map[string]map[string]bool
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &matrix))
	assert.False(t, matrix["companies"]["view"])
	assert.True(t, matrix["machines"]["view"])
	assert.False(t, matrix["machines"]["delete"])
}

func TestServerSearch(t *testing.T) {
	f := newServerFixture(t)

	rec := f.request(t, "tok-mia", http.MethodGet, "/api/search", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.request(t, "tok-mia", http.MethodGet, "/api/search?view=galaxy", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.request(t, "tok-mia", http.MethodGet, "/api/search?view=machines&q=press", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var result search.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, "database", result.Path)
	require.Len(t, result.Records, 1)
	assert.Equal(t, "Hydraulic Press", result.Records[0]["name"])
}

func TestServerReindexRequiresAdmin(t *testing.T) {
	f := newServerFixture(t)

	rec := f.request(t, "tok-mia", http.MethodPost, "/api/search/reindex/machines", "")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	// The engine is disabled in this fixture, so an admin gets a 503.
	rec = f.request(t, "tok-root", http.MethodPost, "/api/search/reindex/machines", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestServerStateRequiresAuth(t *testing.T) {
	f := newServerFixture(t)

	rec := f.request(t, "", http.MethodGet, "/api/state", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = f.request(t, "tok-mia", http.MethodPut, "/api/state/dashboard/filters", `{"payload":{"a":1}}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.request(t, "tok-mia", http.MethodGet, "/api/state", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "dashboard/filters")
}

func TestServerFKAdminRequiresAdmin(t *testing.T) {
	f := newServerFixture(t)

	rec := f.request(t, "tok-mia", http.MethodPost, "/api/fk-options/rebuild?field=factory_id", "")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = f.request(t, "tok-root", http.MethodPost, "/api/fk-options/rebuild?field=factory_id", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"kind":"factories"`)

	rec = f.request(t, "tok-root", http.MethodGet, "/api/fk-options/snapshot?kind=factories", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestServerFKRebuildRequiresKnownField(t *testing.T) {
	f := newServerFixture(t)

	rec := f.request(t, "tok-root", http.MethodPost, "/api/fk-options/rebuild", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.request(t, "tok-root", http.MethodPost, "/api/fk-options/rebuild?field=serial", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServerFKRebuildScopeDefaultsToCaller(t *testing.T) {
	f := newServerFixture(t)

	// No body: the caller's own scope is rebuilt.
	rec := f.request(t, "tok-root", http.MethodPost, "/api/fk-options/rebuild-scope", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"user_id":1`)

	// An explicit user_id still targets that user.
	rec = f.request(t, "tok-root", http.MethodPost, "/api/fk-options/rebuild-scope", `{"user_id":2}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"user_id":2`)

	rec = f.request(t, "tok-root", http.MethodPost, "/api/fk-options/rebuild-scope", `{"user_id":99}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServerCreateCannotEscapeScope(t *testing.T) {
	f := newServerFixture(t)

	// mia may add measurements, but only inside her own company.
	rec := f.request(t, "tok-mia", http.MethodPost, "/api/measurements",
		`{"company_id":2,"factory_id":20,"machine_id":3,"hrid":"MEA-X","kind":"pressure","value":3.1,"unit":"bar"}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	// Omitting ownership columns is not a way around the check.
	rec = f.request(t, "tok-mia", http.MethodPost, "/api/measurements",
		`{"hrid":"MEA-X","kind":"pressure","value":3.1,"unit":"bar"}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = f.request(t, "tok-mia", http.MethodPost, "/api/measurements",
		`{"company_id":1,"factory_id":10,"machine_id":1,"hrid":"MEA-2","kind":"pressure","value":3.1,"unit":"bar"}`)
	assert.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
}

func TestServerUpdateCannotMoveRecordOut(t *testing.T) {
	f := newServerFixture(t)

	rec := f.request(t, "tok-sid", http.MethodPut, "/api/measurements/1", `{"company_id":2}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = f.request(t, "tok-sid", http.MethodPut, "/api/measurements/1", `{"notes":"sensor recalibrated"}`)
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}
