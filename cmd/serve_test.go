package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scholar-sites/sitesync/internal/config"
	"github.com/scholar-sites/sitesync/internal/profilesync"
	"github.com/scholar-sites/sitesync/internal/resolver"
	"github.com/scholar-sites/sitesync/internal/store"
)

func newMemoryStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	cfg = &config.Config{
		Resolver: config.ResolverConfig{
			MarketingHosts: []string{"localhost"},
		},
	}

	st := newMemoryStore(t)
	sched := newScheduler(st)
	res := resolver.New(st, cfg.Resolver.MarketingHosts, cfg.Resolver.PreviewSuffixes)
	return newRouter(sched, res)
}

func TestRouter_Health(t *testing.T) {
	router := newTestRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestRouter_SyncLogEmpty(t *testing.T) {
	router := newTestRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/sync/log", nil))

	assert.Equal(t, http.StatusOK, rec.Code)

	var entries []profilesync.Entry
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &entries))
	assert.Empty(t, entries)
}

func TestRouter_TriggerRunAccepted(t *testing.T) {
	router := newTestRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/sync/run", nil))

	assert.Equal(t, http.StatusAccepted, rec.Code)
}

func TestRouter_TriggerTenantAccepted(t *testing.T) {
	router := newTestRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/sync/tenants/t1", nil))

	assert.Equal(t, http.StatusAccepted, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "t1", body["tenant"])
}

func TestRouter_ResolveRequiresHost(t *testing.T) {
	router := newTestRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/resolve", nil))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRouter_ResolveMarketingHost(t *testing.T) {
	router := newTestRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/resolve?host=localhost:3000", nil))

	assert.Equal(t, http.StatusOK, rec.Code)

	var res resolver.Resolution
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.True(t, res.Marketing)
	assert.Nil(t, res.Tenant)
}
