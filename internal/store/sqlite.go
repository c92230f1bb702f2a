package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/scholar-sites/sitesync/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite. It exists for
// single-node and development deployments; semantics match PostgresStore.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS tenants (
	id             TEXT PRIMARY KEY,
	name           TEXT NOT NULL,
	status         TEXT NOT NULL DEFAULT 'pending',
	sync_frequency TEXT NOT NULL DEFAULT 'monthly',
	last_synced_at DATETIME,
	created_at     DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at     DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS domains (
	id         TEXT PRIMARY KEY,
	tenant_id  TEXT NOT NULL REFERENCES tenants(id),
	hostname   TEXT NOT NULL UNIQUE,
	is_primary INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS researcher_profiles (
	id             TEXT PRIMARY KEY,
	tenant_id      TEXT NOT NULL UNIQUE REFERENCES tenants(id),
	catalog_id     TEXT NOT NULL DEFAULT '',
	display_name   TEXT NOT NULL DEFAULT '',
	last_synced_at DATETIME
);

CREATE TABLE IF NOT EXISTS cached_blobs (
	catalog_id TEXT NOT NULL,
	data_type  TEXT NOT NULL,
	payload    TEXT NOT NULL,
	updated_at DATETIME NOT NULL DEFAULT (datetime('now')),
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
	open_access    INTEGER NOT NULL DEFAULT 0,
	venue          TEXT NOT NULL DEFAULT '',
	type_code      TEXT NOT NULL DEFAULT '',
	is_review      INTEGER NOT NULL DEFAULT 0,
	authors        TEXT NOT NULL DEFAULT '',
	topics         TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_tenants_status ON tenants(status);
CREATE INDEX IF NOT EXISTS idx_domains_hostname ON domains(hostname);
CREATE INDEX IF NOT EXISTS idx_topics_catalog ON topics(catalog_id);
CREATE INDEX IF NOT EXISTS idx_affiliations_catalog ON affiliations(catalog_id);
CREATE INDEX IF NOT EXISTS idx_publications_catalog ON publications(catalog_id);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateTenant(ctx context.Context, name string, frequency model.SyncFrequency) (*model.Tenant, error) {
	id := uuid.New().String()
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO tenants (id, name, status, sync_frequency, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
		id, name, string(model.TenantStatusActive), string(frequency), now, now,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: create tenant %s", name)
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

func (s *SQLiteStore) AddDomain(ctx context.Context, tenantID, hostname string, primary bool) (*model.Domain, error) {
	id := uuid.New().String()
	hostname = strings.ToLower(hostname)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO domains (id, tenant_id, hostname, is_primary) VALUES (?, ?, ?, ?)`,
		id, tenantID, hostname, primary,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: add domain %s", hostname)
	}
	return &model.Domain{ID: id, TenantID: tenantID, Hostname: hostname, Primary: primary}, nil
}

func (s *SQLiteStore) SetResearcherProfile(ctx context.Context, tenantID, catalogID, displayName string) (*model.ResearcherProfile, error) {
	var id string
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO researcher_profiles (id, tenant_id, catalog_id, display_name) VALUES (?, ?, ?, ?)
		 ON CONFLICT (tenant_id) DO UPDATE SET catalog_id = excluded.catalog_id, display_name = excluded.display_name
		 RETURNING id`,
		uuid.New().String(), tenantID, catalogID, displayName,
	).Scan(&id)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: set profile for tenant %s", tenantID)
	}
	return &model.ResearcherProfile{ID: id, TenantID: tenantID, CatalogID: catalogID, DisplayName: displayName}, nil
}

func (s *SQLiteStore) GetDomainByHostname(ctx context.Context, hostname string) (*model.Domain, error) {
	var d model.Domain
	err := s.db.QueryRowContext(ctx,
		`SELECT id, tenant_id, hostname, is_primary FROM domains WHERE hostname = ?`,
		hostname,
	).Scan(&d.ID, &d.TenantID, &d.Hostname, &d.Primary)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get domain %s", hostname)
	}
	return &d, nil
}

func (s *SQLiteStore) GetTenant(ctx context.Context, tenantID string) (*model.Tenant, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, status, sync_frequency, last_synced_at, created_at, updated_at FROM tenants WHERE id = ?`,
		tenantID,
	)
	t, err := scanTenant(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get tenant %s", tenantID)
	}
	return t, nil
}

func (s *SQLiteStore) GetResearcherProfileByTenant(ctx context.Context, tenantID string) (*model.ResearcherProfile, error) {
	var p model.ResearcherProfile
	var lastSynced sql.NullTime
	err := s.db.QueryRowContext(ctx,
		`SELECT id, tenant_id, catalog_id, display_name, last_synced_at FROM researcher_profiles WHERE tenant_id = ?`,
		tenantID,
	).Scan(&p.ID, &p.TenantID, &p.CatalogID, &p.DisplayName, &lastSynced)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get profile for tenant %s", tenantID)
	}
	if lastSynced.Valid {
		t := lastSynced.Time
		p.LastSyncedAt = &t
	}
	return &p, nil
}

func (s *SQLiteStore) ListActiveTenants(ctx context.Context) ([]model.Tenant, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, status, sync_frequency, last_synced_at, created_at, updated_at
		 FROM tenants WHERE status = ? ORDER BY created_at`,
		string(model.TenantStatusActive),
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list active tenants")
	}
	defer rows.Close()

	var tenants []model.Tenant
	for rows.Next() {
		t, err := scanTenant(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan tenant")
		}
		tenants = append(tenants, *t)
	}
	return tenants, eris.Wrap(rows.Err(), "sqlite: list active tenants iterate")
}

func (s *SQLiteStore) UpdateTenantSyncedAt(ctx context.Context, tenantID string, syncedAt time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE tenants SET last_synced_at = ?, updated_at = ? WHERE id = ?`,
		syncedAt.UTC(), time.Now().UTC(), tenantID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update tenant synced at %s", tenantID)
	}
	return checkRowsAffected(res, "tenant", tenantID)
}

func (s *SQLiteStore) UpdateProfileSyncedAt(ctx context.Context, profileID string, syncedAt time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE researcher_profiles SET last_synced_at = ? WHERE id = ?`,
		syncedAt.UTC(), profileID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update profile synced at %s", profileID)
	}
	return checkRowsAffected(res, "profile", profileID)
}

func (s *SQLiteStore) UpsertCachedBlob(ctx context.Context, catalogID string, dataType model.BlobType, payload json.RawMessage) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO cached_blobs (catalog_id, data_type, payload, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT (catalog_id, data_type) DO UPDATE SET payload = excluded.payload, updated_at = excluded.updated_at`,
		catalogID, string(dataType), string(payload), time.Now().UTC(),
	)
	return eris.Wrapf(err, "sqlite: upsert cached blob %s/%s", catalogID, dataType)
}

func (s *SQLiteStore) ReplaceTopics(ctx context.Context, catalogID string, topics []model.Topic) error {
	return s.replaceForKey(ctx, "topics", catalogID, len(topics),
		`INSERT INTO topics (catalog_id, topic_id, display_name, count, subfield, field, domain) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		func(i int) []any {
			t := topics[i]
			return []any{catalogID, t.TopicID, t.DisplayName, t.Count, t.Subfield, t.Field, t.Domain}
		})
}

func (s *SQLiteStore) ReplaceAffiliations(ctx context.Context, catalogID string, affs []model.Affiliation) error {
	return s.replaceForKey(ctx, "affiliations", catalogID, len(affs),
		`INSERT INTO affiliations (catalog_id, institution_id, institution_name, institution_type, country_code, start_year, end_year) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		func(i int) []any {
			a := affs[i]
			return []any{catalogID, a.InstitutionID, a.InstitutionName, a.InstitutionType, a.CountryCode, a.StartYear, a.EndYear}
		})
}

func (s *SQLiteStore) ReplacePublications(ctx context.Context, catalogID string, pubs []model.Publication) error {
	return s.replaceForKey(ctx, "publications", catalogID, len(pubs),
		`INSERT INTO publications (catalog_id, work_id, title, year, cited_by_count, doi, open_access, venue, type_code, is_review, authors, topics)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		func(i int) []any {
			p := pubs[i]
			return []any{
				catalogID, p.WorkID, p.Title, p.Year, p.CitedByCount, p.DOI,
				p.OpenAccess, p.Venue, p.TypeCode, p.IsReview, p.Authors,
				strings.Join(p.Topics, ", "),
			}
		})
}

// replaceForKey deletes all rows for the catalog id and inserts the fresh
// set inside one transaction.
func (s *SQLiteStore) replaceForKey(ctx context.Context, table, catalogID string, n int, insertSQL string, rowArgs func(int) []any) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrapf(err, "sqlite: replace %s: begin tx", table)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM `+table+` WHERE catalog_id = ?`, catalogID); err != nil {
		return eris.Wrapf(err, "sqlite: replace %s: delete", table)
	}

	if n > 0 {
		stmt, err := tx.PrepareContext(ctx, insertSQL)
		if err != nil {
			return eris.Wrapf(err, "sqlite: replace %s: prepare", table)
		}
		defer stmt.Close()

		for i := 0; i < n; i++ {
			if _, err := stmt.ExecContext(ctx, rowArgs(i)...); err != nil {
				return eris.Wrapf(err, "sqlite: replace %s: insert", table)
			}
		}
	}

	return eris.Wrapf(tx.Commit(), "sqlite: replace %s: commit", table)
}

// helpers

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Errorf("%s not found: %s", entity, id)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanTenant(row scannable) (*model.Tenant, error) {
	var t model.Tenant
	var status, frequency string
	var lastSynced sql.NullTime

	err := row.Scan(&t.ID, &t.Name, &status, &frequency, &lastSynced, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	t.Status = model.TenantStatus(status)
	t.SyncFrequency = model.ParseFrequency(frequency)
	if lastSynced.Valid {
		ts := lastSynced.Time
		t.LastSyncedAt = &ts
	}
	return &t, nil
}
