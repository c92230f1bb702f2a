package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/scholar-sites/sitesync/internal/model"
)

// Store defines the persistence contract the sync engine and the domain
// resolver depend on. Lookups return (nil, nil) when no row exists so
// callers can distinguish "absent" from a storage failure.
type Store interface {
	// Tenancy
	CreateTenant(ctx context.Context, name string, frequency model.SyncFrequency) (*model.Tenant, error)
	AddDomain(ctx context.Context, tenantID, hostname string, primary bool) (*model.Domain, error)
	SetResearcherProfile(ctx context.Context, tenantID, catalogID, displayName string) (*model.ResearcherProfile, error)
	GetDomainByHostname(ctx context.Context, hostname string) (*model.Domain, error)
	GetTenant(ctx context.Context, tenantID string) (*model.Tenant, error)
	GetResearcherProfileByTenant(ctx context.Context, tenantID string) (*model.ResearcherProfile, error)
	ListActiveTenants(ctx context.Context) ([]model.Tenant, error)
	UpdateTenantSyncedAt(ctx context.Context, tenantID string, syncedAt time.Time) error
	UpdateProfileSyncedAt(ctx context.Context, profileID string, syncedAt time.Time) error

	// Raw payload cache: one row per (catalog id, data type), writes replace.
	UpsertCachedBlob(ctx context.Context, catalogID string, dataType model.BlobType, payload json.RawMessage) error

	// Derived collections: delete-then-insert for the catalog id, in one
	// transaction per collection.
	ReplaceTopics(ctx context.Context, catalogID string, rows []model.Topic) error
	ReplaceAffiliations(ctx context.Context, catalogID string, rows []model.Affiliation) error
	ReplacePublications(ctx context.Context, catalogID string, rows []model.Publication) error

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
