package model

import "time"

// TenantStatus tracks the lifecycle of a hosted account.
type TenantStatus string

const (
	TenantStatusPending   TenantStatus = "pending"
	TenantStatusActive    TenantStatus = "active"
	TenantStatusSuspended TenantStatus = "suspended"
	TenantStatusCancelled TenantStatus = "cancelled"
)

// Serves reports whether a tenant in this status should be served on its
// custom domains. Suspended and cancelled tenants fall back to the
// marketing site.
func (s TenantStatus) Serves() bool {
	return s != TenantStatusSuspended && s != TenantStatusCancelled
}

// SyncFrequency is the plan-driven staleness tier governing how often a
// tenant's cached catalog data is refreshed.
type SyncFrequency string

const (
	FrequencyDaily   SyncFrequency = "daily"
	FrequencyWeekly  SyncFrequency = "weekly"
	FrequencyMonthly SyncFrequency = "monthly"
)

var frequencyIntervals = map[SyncFrequency]time.Duration{
	FrequencyDaily:   24 * time.Hour,
	FrequencyWeekly:  7 * 24 * time.Hour,
	FrequencyMonthly: 30 * 24 * time.Hour,
}

// Interval returns the staleness interval for the tier. Unknown tiers get
// the monthly interval.
func (f SyncFrequency) Interval() time.Duration {
	if d, ok := frequencyIntervals[f]; ok {
		return d
	}
	return frequencyIntervals[FrequencyMonthly]
}

// ParseFrequency maps a stored frequency string to a tier, defaulting to
// monthly for anything unrecognized.
func ParseFrequency(s string) SyncFrequency {
	switch SyncFrequency(s) {
	case FrequencyDaily, FrequencyWeekly, FrequencyMonthly:
		return SyncFrequency(s)
	default:
		return FrequencyMonthly
	}
}

// Tenant is a single hosted researcher/institution account.
type Tenant struct {
	ID            string        `json:"id"`
	Name          string        `json:"name"`
	Status        TenantStatus  `json:"status"`
	SyncFrequency SyncFrequency `json:"sync_frequency"`
	LastSyncedAt  *time.Time    `json:"last_synced_at,omitempty"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

// Domain maps a hostname to its owning tenant.
type Domain struct {
	ID       string `json:"id"`
	TenantID string `json:"tenant_id"`
	Hostname string `json:"hostname"`
	Primary  bool   `json:"primary"`
}

// ResearcherProfile joins a tenant to its external catalog identity.
type ResearcherProfile struct {
	ID           string     `json:"id"`
	TenantID     string     `json:"tenant_id"`
	CatalogID    string     `json:"catalog_id"`
	DisplayName  string     `json:"display_name,omitempty"`
	LastSyncedAt *time.Time `json:"last_synced_at,omitempty"`
}
