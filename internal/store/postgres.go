package store

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/scholar-sites/sitesync/internal/db"
	"github.com/scholar-sites/sitesync/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements lists queries to prepare on each new connection.
// Domain and tenant lookups run on every inbound request.
var preparedStatements = map[string]string{
	"get_domain_by_hostname": `SELECT id, tenant_id, hostname, is_primary FROM domains WHERE hostname = $1`,
	"get_tenant":             `SELECT id, name, status, sync_frequency, last_synced_at, created_at, updated_at FROM tenants WHERE id = $1`,
	"get_profile_by_tenant":  `SELECT id, tenant_id, catalog_id, display_name, last_synced_at FROM researcher_profiles WHERE tenant_id = $1`,
	"upsert_cached_blob": `INSERT INTO cached_blobs (catalog_id, data_type, payload, updated_at) VALUES ($1, $2, $3, $4)
	 ON CONFLICT (catalog_id, data_type) DO UPDATE SET payload = $3, updated_at = $4`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	// Apply pool sizing from config with sensible defaults.
	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS tenants (
	id             TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	name           TEXT NOT NULL,
	status         TEXT NOT NULL DEFAULT 'pending',
	sync_frequency TEXT NOT NULL DEFAULT 'monthly',
	last_synced_at TIMESTAMPTZ,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at     TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS domains (
	id         TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	tenant_id  TEXT NOT NULL REFERENCES tenants(id),
	hostname   TEXT NOT NULL UNIQUE,
	is_primary BOOLEAN NOT NULL DEFAULT false
);

CREATE TABLE IF NOT EXISTS researcher_profiles (
	id             TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	tenant_id      TEXT NOT NULL UNIQUE REFERENCES tenants(id),
	catalog_id     TEXT NOT NULL DEFAULT '',
	display_name   TEXT NOT NULL DEFAULT '',
	last_synced_at TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS cached_blobs (
	catalog_id TEXT NOT NULL,
	data_type  TEXT NOT NULL,
	payload    JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (catalog_id, data_type)
);

CREATE TABLE IF NOT EXISTS topics (
	catalog_id   TEXT NOT NULL,
	topic_id     TEXT NOT NULL,
	display_name TEXT NOT NULL,
	count        INTEGER NOT NULL DEFAULT 0,
	subfield     TEXT NOT NULL DEFAULT '',
	field        TEXT NOT NULL DEFAULT '',
	domain       TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS affiliations (
	catalog_id       TEXT NOT NULL,
	institution_id   TEXT NOT NULL,
	institution_name TEXT NOT NULL,
	institution_type TEXT NOT NULL DEFAULT '',
	country_code     TEXT NOT NULL DEFAULT '',
	start_year       INTEGER NOT NULL DEFAULT 0,
	end_year         INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS publications (
	catalog_id     TEXT NOT NULL,
	work_id        TEXT NOT NULL,
	title          TEXT NOT NULL,
	year           INTEGER NOT NULL DEFAULT 0,
	cited_by_count INTEGER NOT NULL DEFAULT 0,
	doi            TEXT NOT NULL DEFAULT '',
	open_access    BOOLEAN NOT NULL DEFAULT false,
	venue          TEXT NOT NULL DEFAULT '',
	type_code      TEXT NOT NULL DEFAULT '',
	is_review      BOOLEAN NOT NULL DEFAULT false,
	authors        TEXT NOT NULL DEFAULT '',
	topics         TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_tenants_status ON tenants(status);
CREATE INDEX IF NOT EXISTS idx_domains_hostname ON domains(hostname);
CREATE INDEX IF NOT EXISTS idx_profiles_tenant ON researcher_profiles(tenant_id);
CREATE INDEX IF NOT EXISTS idx_topics_catalog ON topics(catalog_id);
CREATE INDEX IF NOT EXISTS idx_affiliations_catalog ON affiliations(catalog_id);
CREATE INDEX IF NOT EXISTS idx_publications_catalog ON publications(catalog_id);
CREATE INDEX IF NOT EXISTS idx_publications_cited ON publications(catalog_id, cited_by_count DESC);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) CreateTenant(ctx context.Context, name string, frequency model.SyncFrequency) (*model.Tenant, error) {
	id := uuid.New().String()
	now := time.Now().UTC()
	_, err := s.pool.Exec(ctx,
		`INSERT INTO tenants (id, name, status, sync_frequency, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $5)`,
		id, name, string(model.TenantStatusActive), string(frequency), now,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: create tenant %s", name)
	}
	return &model.Tenant{
		ID:            id,
		Name:          name,
		Status:        model.TenantStatusActive,
		SyncFrequency: frequency,
		CreatedAt:     now,
		UpdatedAt:     now,
	}, nil
}

func (s *PostgresStore) AddDomain(ctx context.Context, tenantID, hostname string, primary bool) (*model.Domain, error) {
	id := uuid.New().String()
	hostname = strings.ToLower(hostname)
	_, err := s.pool.Exec(ctx,
		`INSERT INTO domains (id, tenant_id, hostname, is_primary) VALUES ($1, $2, $3, $4)`,
		id, tenantID, hostname, primary,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: add domain %s", hostname)
	}
	return &model.Domain{ID: id, TenantID: tenantID, Hostname: hostname, Primary: primary}, nil
}

func (s *PostgresStore) SetResearcherProfile(ctx context.Context, tenantID, catalogID, displayName string) (*model.ResearcherProfile, error) {
	var id string
	err := s.pool.QueryRow(ctx,
		`INSERT INTO researcher_profiles (id, tenant_id, catalog_id, display_name) VALUES ($1, $2, $3, $4)
		 ON CONFLICT (tenant_id) DO UPDATE SET catalog_id = $3, display_name = $4
		 RETURNING id`,
		uuid.New().String(), tenantID, catalogID, displayName,
	).Scan(&id)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: set profile for tenant %s", tenantID)
	}
	return &model.ResearcherProfile{ID: id, TenantID: tenantID, CatalogID: catalogID, DisplayName: displayName}, nil
}

func (s *PostgresStore) GetDomainByHostname(ctx context.Context, hostname string) (*model.Domain, error) {
	var d model.Domain
	err := s.pool.QueryRow(ctx,
		`SELECT id, tenant_id, hostname, is_primary FROM domains WHERE hostname = $1`,
		hostname,
	).Scan(&d.ID, &d.TenantID, &d.Hostname, &d.Primary)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "postgres: get domain %s", hostname)
	}
	return &d, nil
}

func (s *PostgresStore) GetTenant(ctx context.Context, tenantID string) (*model.Tenant, error) {
	var t model.Tenant
	var status, frequency string
	err := s.pool.QueryRow(ctx,
		`SELECT id, name, status, sync_frequency, last_synced_at, created_at, updated_at FROM tenants WHERE id = $1`,
		tenantID,
	).Scan(&t.ID, &t.Name, &status, &frequency, &t.LastSyncedAt, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "postgres: get tenant %s", tenantID)
	}
	t.Status = model.TenantStatus(status)
	t.SyncFrequency = model.ParseFrequency(frequency)
	return &t, nil
}

func (s *PostgresStore) GetResearcherProfileByTenant(ctx context.Context, tenantID string) (*model.ResearcherProfile, error) {
	var p model.ResearcherProfile
	err := s.pool.QueryRow(ctx,
		`SELECT id, tenant_id, catalog_id, display_name, last_synced_at FROM researcher_profiles WHERE tenant_id = $1`,
		tenantID,
	).Scan(&p.ID, &p.TenantID, &p.CatalogID, &p.DisplayName, &p.LastSyncedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "postgres: get profile for tenant %s", tenantID)
	}
	return &p, nil
}

func (s *PostgresStore) ListActiveTenants(ctx context.Context) ([]model.Tenant, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, name, status, sync_frequency, last_synced_at, created_at, updated_at
		 FROM tenants WHERE status = $1 ORDER BY created_at`,
		string(model.TenantStatusActive),
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list active tenants")
	}
	defer rows.Close()

	var tenants []model.Tenant
	for rows.Next() {
		var t model.Tenant
		var status, frequency string
		if err := rows.Scan(&t.ID, &t.Name, &status, &frequency, &t.LastSyncedAt, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan tenant")
		}
		t.Status = model.TenantStatus(status)
		t.SyncFrequency = model.ParseFrequency(frequency)
		tenants = append(tenants, t)
	}
	return tenants, eris.Wrap(rows.Err(), "postgres: list active tenants iterate")
}

func (s *PostgresStore) UpdateTenantSyncedAt(ctx context.Context, tenantID string, syncedAt time.Time) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE tenants SET last_synced_at = $1, updated_at = $2 WHERE id = $3`,
		syncedAt, time.Now().UTC(), tenantID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update tenant synced at %s", tenantID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("tenant not found: %s", tenantID)
	}
	return nil
}

func (s *PostgresStore) UpdateProfileSyncedAt(ctx context.Context, profileID string, syncedAt time.Time) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE researcher_profiles SET last_synced_at = $1 WHERE id = $2`,
		syncedAt, profileID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update profile synced at %s", profileID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("profile not found: %s", profileID)
	}
	return nil
}

func (s *PostgresStore) UpsertCachedBlob(ctx context.Context, catalogID string, dataType model.BlobType, payload json.RawMessage) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO cached_blobs (catalog_id, data_type, payload, updated_at) VALUES ($1, $2, $3, $4)
		 ON CONFLICT (catalog_id, data_type) DO UPDATE SET payload = $3, updated_at = $4`,
		catalogID, string(dataType), []byte(payload), time.Now().UTC(),
	)
	return eris.Wrapf(err, "postgres: upsert cached blob %s/%s", catalogID, dataType)
}

func (s *PostgresStore) ReplaceTopics(ctx context.Context, catalogID string, topics []model.Topic) error {
	rows := make([][]any, 0, len(topics))
	for _, t := range topics {
		rows = append(rows, []any{catalogID, t.TopicID, t.DisplayName, t.Count, t.Subfield, t.Field, t.Domain})
	}
	return db.ReplaceForKey(ctx, s.pool, db.ReplaceConfig{
		Table:     "topics",
		KeyColumn: "catalog_id",
		Columns:   []string{"catalog_id", "topic_id", "display_name", "count", "subfield", "field", "domain"},
	}, catalogID, rows)
}

func (s *PostgresStore) ReplaceAffiliations(ctx context.Context, catalogID string, affs []model.Affiliation) error {
	rows := make([][]any, 0, len(affs))
	for _, a := range affs {
		rows = append(rows, []any{catalogID, a.InstitutionID, a.InstitutionName, a.InstitutionType, a.CountryCode, a.StartYear, a.EndYear})
	}
	return db.ReplaceForKey(ctx, s.pool, db.ReplaceConfig{
		Table:     "affiliations",
		KeyColumn: "catalog_id",
		Columns:   []string{"catalog_id", "institution_id", "institution_name", "institution_type", "country_code", "start_year", "end_year"},
	}, catalogID, rows)
}

func (s *PostgresStore) ReplacePublications(ctx context.Context, catalogID string, pubs []model.Publication) error {
	rows := make([][]any, 0, len(pubs))
	for _, p := range pubs {
		rows = append(rows, []any{
			catalogID, p.WorkID, p.Title, p.Year, p.CitedByCount, p.DOI,
			p.OpenAccess, p.Venue, p.TypeCode, p.IsReview, p.Authors,
			strings.Join(p.Topics, ", "),
		})
	}
	return db.ReplaceForKey(ctx, s.pool, db.ReplaceConfig{
		Table:     "publications",
		KeyColumn: "catalog_id",
		Columns: []string{
			"catalog_id", "work_id", "title", "year", "cited_by_count", "doi",
			"open_access", "venue", "type_code", "is_review", "authors", "topics",
		},
	}, catalogID, rows)
}
