package store

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/scholar-sites/sitesync/internal/model"
)

func init() {
	// Replace global logger with a no-op to keep test output quiet.
	zap.ReplaceGlobals(zap.NewNop())
}

func newMockStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return &PostgresStore{pool: mock}, mock
}

func TestCreateTenant(t *testing.T) {
	st, mock := newMockStore(t)

	mock.ExpectExec("INSERT INTO tenants").
		WithArgs(pgxmock.AnyArg(), "Jane Doe", "active", "weekly", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	tenant, err := st.CreateTenant(context.Background(), "Jane Doe", model.FrequencyWeekly)
	require.NoError(t, err)
	assert.NotEmpty(t, tenant.ID)
	assert.Equal(t, model.TenantStatusActive, tenant.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAddDomain_LowercasesHostname(t *testing.T) {
	st, mock := newMockStore(t)

	mock.ExpectExec("INSERT INTO domains").
		WithArgs(pgxmock.AnyArg(), "t1", "jane.example.com", true).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	d, err := st.AddDomain(context.Background(), "t1", "Jane.Example.COM", true)
	require.NoError(t, err)
	assert.Equal(t, "jane.example.com", d.Hostname)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSetResearcherProfile(t *testing.T) {
	st, mock := newMockStore(t)

	mock.ExpectQuery("INSERT INTO researcher_profiles").
		WithArgs(pgxmock.AnyArg(), "t1", "A100", "Jane Doe").
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow("p1"))

	p, err := st.SetResearcherProfile(context.Background(), "t1", "A100", "Jane Doe")
	require.NoError(t, err)
	assert.Equal(t, "p1", p.ID)
	assert.Equal(t, "A100", p.CatalogID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetDomainByHostname(t *testing.T) {
	st, mock := newMockStore(t)

	mock.ExpectQuery("SELECT id, tenant_id, hostname, is_primary FROM domains").
		WithArgs("jane.example.com").
		WillReturnRows(pgxmock.NewRows([]string{"id", "tenant_id", "hostname", "is_primary"}).
			AddRow("d1", "t1", "jane.example.com", true))

	d, err := st.GetDomainByHostname(context.Background(), "jane.example.com")
	require.NoError(t, err)
	require.NotNil(t, d)
	assert.Equal(t, "t1", d.TenantID)
	assert.True(t, d.Primary)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetDomainByHostname_NotFound(t *testing.T) {
	st, mock := newMockStore(t)

	mock.ExpectQuery("SELECT id, tenant_id, hostname, is_primary FROM domains").
		WithArgs("nobody.example.com").
		WillReturnError(pgx.ErrNoRows)

	d, err := st.GetDomainByHostname(context.Background(), "nobody.example.com")
	require.NoError(t, err)
	assert.Nil(t, d)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetTenant(t *testing.T) {
	st, mock := newMockStore(t)

	now := time.Now().UTC()
	mock.ExpectQuery("SELECT id, name, status, sync_frequency, last_synced_at, created_at, updated_at FROM tenants").
		WithArgs("t1").
		WillReturnRows(pgxmock.NewRows([]string{"id", "name", "status", "sync_frequency", "last_synced_at", "created_at", "updated_at"}).
			AddRow("t1", "Jane Doe", "active", "weekly", nil, now, now))

	tenant, err := st.GetTenant(context.Background(), "t1")
	require.NoError(t, err)
	require.NotNil(t, tenant)
	assert.Equal(t, model.TenantStatusActive, tenant.Status)
	assert.Equal(t, model.FrequencyWeekly, tenant.SyncFrequency)
	assert.Nil(t, tenant.LastSyncedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetTenant_UnknownFrequencyDefaultsMonthly(t *testing.T) {
	st, mock := newMockStore(t)

	now := time.Now().UTC()
	mock.ExpectQuery("SELECT id, name, status, sync_frequency, last_synced_at, created_at, updated_at FROM tenants").
		WithArgs("t1").
		WillReturnRows(pgxmock.NewRows([]string{"id", "name", "status", "sync_frequency", "last_synced_at", "created_at", "updated_at"}).
			AddRow("t1", "Jane Doe", "active", "fortnightly", nil, now, now))

	tenant, err := st.GetTenant(context.Background(), "t1")
	require.NoError(t, err)
	assert.Equal(t, model.FrequencyMonthly, tenant.SyncFrequency)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetTenant_NotFound(t *testing.T) {
	st, mock := newMockStore(t)

	mock.ExpectQuery("SELECT id, name, status, sync_frequency, last_synced_at, created_at, updated_at FROM tenants").
		WithArgs("ghost").
		WillReturnError(pgx.ErrNoRows)

	tenant, err := st.GetTenant(context.Background(), "ghost")
	require.NoError(t, err)
	assert.Nil(t, tenant)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetResearcherProfileByTenant_NotFound(t *testing.T) {
	st, mock := newMockStore(t)

	mock.ExpectQuery("SELECT id, tenant_id, catalog_id, display_name, last_synced_at FROM researcher_profiles").
		WithArgs("t1").
		WillReturnError(pgx.ErrNoRows)

	p, err := st.GetResearcherProfileByTenant(context.Background(), "t1")
	require.NoError(t, err)
	assert.Nil(t, p)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListActiveTenants(t *testing.T) {
	st, mock := newMockStore(t)

	now := time.Now().UTC()
	mock.ExpectQuery("FROM tenants WHERE status =").
		WithArgs("active").
		WillReturnRows(pgxmock.NewRows([]string{"id", "name", "status", "sync_frequency", "last_synced_at", "created_at", "updated_at"}).
			AddRow("t1", "Jane Doe", "active", "daily", &now, now, now).
			AddRow("t2", "John Roe", "active", "monthly", nil, now, now))

	tenants, err := st.ListActiveTenants(context.Background())
	require.NoError(t, err)
	require.Len(t, tenants, 2)
	assert.Equal(t, model.FrequencyDaily, tenants[0].SyncFrequency)
	assert.Equal(t, "t2", tenants[1].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateTenantSyncedAt_NotFound(t *testing.T) {
	st, mock := newMockStore(t)

	mock.ExpectExec("UPDATE tenants SET last_synced_at").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), "ghost").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := st.UpdateTenantSyncedAt(context.Background(), "ghost", time.Now().UTC())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "tenant not found")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertCachedBlob(t *testing.T) {
	st, mock := newMockStore(t)

	payload := json.RawMessage(`{"id":"A100"}`)
	mock.ExpectExec("INSERT INTO cached_blobs").
		WithArgs("A100", "researcher", []byte(payload), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := st.UpsertCachedBlob(context.Background(), "A100", model.BlobResearcher, payload)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReplaceTopics(t *testing.T) {
	st, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM "topics"`).
		WithArgs("A100").
		WillReturnResult(pgxmock.NewResult("DELETE", 3))
	mock.ExpectCopyFrom(pgx.Identifier{"topics"},
		[]string{"catalog_id", "topic_id", "display_name", "count", "subfield", "field", "domain"}).
		WillReturnResult(2)
	mock.ExpectCommit()

	topics := []model.Topic{
		{CatalogID: "A100", TopicID: "T1", DisplayName: "Computing", Count: 10},
		{CatalogID: "A100", TopicID: "T2", DisplayName: "Mathematics", Count: 4},
	}
	err := st.ReplaceTopics(context.Background(), "A100", topics)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReplaceTopics_EmptySetClearsRows(t *testing.T) {
	st, mock := newMockStore(t)

	// No rows means delete only; the COPY step is skipped entirely.
	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM "topics"`).
		WithArgs("A100").
		WillReturnResult(pgxmock.NewResult("DELETE", 5))
	mock.ExpectCommit()

	err := st.ReplaceTopics(context.Background(), "A100", nil)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReplacePublications_RollsBackOnCopyFailure(t *testing.T) {
	st, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM "publications"`).
		WithArgs("A100").
		WillReturnResult(pgxmock.NewResult("DELETE", 1))
	mock.ExpectCopyFrom(pgx.Identifier{"publications"},
		[]string{
			"catalog_id", "work_id", "title", "year", "cited_by_count", "doi",
			"open_access", "venue", "type_code", "is_review", "authors", "topics",
		}).
		WillReturnError(errors.New("copy failed"))
	mock.ExpectRollback()

	pubs := []model.Publication{{CatalogID: "A100", WorkID: "W1", Title: "Untitled"}}
	err := st.ReplacePublications(context.Background(), "A100", pubs)
	require.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReplaceAffiliations(t *testing.T) {
	st, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM "affiliations"`).
		WithArgs("A100").
		WillReturnResult(pgxmock.NewResult("DELETE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"affiliations"},
		[]string{"catalog_id", "institution_id", "institution_name", "institution_type", "country_code", "start_year", "end_year"}).
		WillReturnResult(1)
	mock.ExpectCommit()

	affs := []model.Affiliation{
		{CatalogID: "A100", InstitutionID: "I1", InstitutionName: "MIT", StartYear: 2018, EndYear: 2021},
	}
	err := st.ReplaceAffiliations(context.Background(), "A100", affs)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrate(t *testing.T) {
	st, mock := newMockStore(t)

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS tenants").
		WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, st.Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}
