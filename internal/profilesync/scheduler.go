// Package profilesync keeps tenant portfolio caches fresh against the
// external bibliographic catalog.
package profilesync

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/scholar-sites/sitesync/internal/catalog"
	"github.com/scholar-sites/sitesync/internal/model"
	"github.com/scholar-sites/sitesync/internal/normalize"
	"github.com/scholar-sites/sitesync/internal/store"
)

const (
	// bootDelay postpones the first scheduled run so the process can
	// finish starting up before it begins hitting the upstream API.
	bootDelay = 60 * time.Second

	// tenantDelay throttles the sequential tenant loop. It applies after
	// every tenant, including skips, to keep run cadence predictable.
	tenantDelay = 2 * time.Second
)

// Summary aggregates the outcomes of one scheduled run.
type Summary struct {
	Synced  int `json:"synced"`
	Skipped int `json:"skipped"`
	Errors  int `json:"errors"`
}

// Scheduler drives the background refresh of tenant catalog caches.
// Tenants are processed strictly sequentially within a run.
type Scheduler struct {
	store   store.Store
	catalog catalog.Client
	log     *RingLog

	mu      sync.Mutex
	running bool
	stop    chan struct{}

	flightMu sync.Mutex
	inFlight map[string]bool

	// test seams; production values are the package constants
	bootDelay   time.Duration
	tenantDelay time.Duration
	now         func() time.Time
}

// NewScheduler creates a Scheduler writing outcomes to a fresh ring log.
func NewScheduler(st store.Store, c catalog.Client) *Scheduler {
	return &Scheduler{
		store:       st,
		catalog:     c,
		log:         NewRingLog(defaultLogCapacity),
		inFlight:    make(map[string]bool),
		bootDelay:   bootDelay,
		tenantDelay: tenantDelay,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Log exposes the operational sync log for the operator surface.
func (s *Scheduler) Log() *RingLog {
	return s.log
}

// Start schedules the repeating sync: a first run after a short boot
// delay, then one every intervalHours. Calling Start while already
// running is a logged no-op.
func (s *Scheduler) Start(intervalHours int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	log := zap.L().With(zap.String("component", "profilesync"))
	if s.running {
		log.Info("scheduler already running, ignoring start")
		return
	}
	if intervalHours <= 0 {
		intervalHours = 6
	}

	s.running = true
	s.stop = make(chan struct{})
	stop := s.stop

	log.Info("scheduler starting",
		zap.Duration("boot_delay", s.bootDelay),
		zap.Int("interval_hours", intervalHours),
	)

	go s.loop(stop, time.Duration(intervalHours)*time.Hour)
}

// Stop cancels the repeating timer. An in-flight run is not interrupted.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}
	close(s.stop)
	s.running = false
	zap.L().Info("scheduler stopped", zap.String("component", "profilesync"))
}

func (s *Scheduler) loop(stop <-chan struct{}, interval time.Duration) {
	boot := time.NewTimer(s.bootDelay)
	defer boot.Stop()

	select {
	case <-stop:
		return
	case <-boot.C:
	}
	s.runSafely()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			s.runSafely()
		}
	}
}

// runSafely wraps a scheduled run so an unexpected failure aborts only
// that run; the timer keeps firing on schedule.
func (s *Scheduler) runSafely() {
	defer func() {
		if r := recover(); r != nil {
			zap.L().Error("scheduled sync panicked",
				zap.String("component", "profilesync"),
				zap.Any("panic", r),
			)
		}
	}()

	if _, err := s.RunScheduledSync(context.Background()); err != nil {
		zap.L().Error("scheduled sync failed",
			zap.String("component", "profilesync"),
			zap.Error(err),
		)
	}
}

// isDue reports whether a profile's cache is stale for its tier. A
// never-synced profile is always due.
func isDue(now time.Time, lastSyncedAt *time.Time, freq model.SyncFrequency) bool {
	if lastSyncedAt == nil {
		return true
	}
	return now.Sub(*lastSyncedAt) >= freq.Interval()
}

// RunScheduledSync refreshes every active tenant that is due. One
// tenant's failure never aborts the loop.
func (s *Scheduler) RunScheduledSync(ctx context.Context) (Summary, error) {
	return s.run(ctx, false)
}

// ForceSyncAll refreshes every active tenant immediately, bypassing the
// staleness check.
func (s *Scheduler) ForceSyncAll(ctx context.Context) (Summary, error) {
	return s.run(ctx, true)
}

func (s *Scheduler) run(ctx context.Context, force bool) (Summary, error) {
	log := zap.L().With(zap.String("component", "profilesync"))
	now := s.now()

	tenants, err := s.store.ListActiveTenants(ctx)
	if err != nil {
		return Summary{}, eris.Wrap(err, "profilesync: list active tenants")
	}

	log.Info("sync run starting", zap.Int("tenants", len(tenants)))

	var sum Summary
	for _, tenant := range tenants {
		select {
		case <-ctx.Done():
			return sum, ctx.Err()
		default:
		}

		st := s.syncTenant(ctx, tenant, force, now)
		switch st {
		case StatusSuccess:
			sum.Synced++
		case StatusError:
			sum.Errors++
		default:
			sum.Skipped++
		}

		s.sleep(ctx, s.tenantDelay)
	}

	log.Info("sync run complete",
		zap.Int("synced", sum.Synced),
		zap.Int("skipped", sum.Skipped),
		zap.Int("errors", sum.Errors),
	)
	return sum, nil
}

// ForceSyncTenant refreshes a single tenant immediately, bypassing the
// staleness check. It shares the ring log with scheduled runs.
func (s *Scheduler) ForceSyncTenant(ctx context.Context, tenantID string) error {
	tenant, err := s.store.GetTenant(ctx, tenantID)
	if err != nil {
		return eris.Wrapf(err, "profilesync: force sync %s", tenantID)
	}
	if tenant == nil {
		return eris.Errorf("tenant not found: %s", tenantID)
	}

	s.syncTenant(ctx, *tenant, true, s.now())
	return nil
}

// syncTenant loads the tenant's profile, applies the skip rules, and
// runs syncOne when warranted. force bypasses the staleness check.
func (s *Scheduler) syncTenant(ctx context.Context, tenant model.Tenant, force bool, now time.Time) Status {
	log := zap.L().With(
		zap.String("component", "profilesync"),
		zap.String("tenant_id", tenant.ID),
	)

	profile, err := s.store.GetResearcherProfileByTenant(ctx, tenant.ID)
	if err != nil {
		log.Error("profile lookup failed", zap.Error(err))
		s.log.Append(Entry{
			TenantID:  tenant.ID,
			Frequency: tenant.SyncFrequency,
			Status:    StatusError,
			Message:   err.Error(),
			Timestamp: now,
		})
		return StatusError
	}
	if profile == nil || profile.CatalogID == "" {
		log.Debug("skipping tenant without catalog id")
		s.log.Append(Entry{
			TenantID:  tenant.ID,
			Frequency: tenant.SyncFrequency,
			Status:    StatusSkipped,
			Message:   "no catalog id configured",
			Timestamp: now,
		})
		return StatusSkipped
	}

	if !force && !isDue(now, profile.LastSyncedAt, tenant.SyncFrequency) {
		log.Debug("skipping tenant, cache still fresh",
			zap.Timep("last_synced_at", profile.LastSyncedAt),
		)
		s.log.Append(Entry{
			TenantID:     tenant.ID,
			CatalogID:    profile.CatalogID,
			Frequency:    tenant.SyncFrequency,
			LastSyncedAt: profile.LastSyncedAt,
			Status:       StatusSkipped,
			Message:      "not due",
			Timestamp:    now,
		})
		return StatusSkipped
	}

	if !s.acquire(tenant.ID) {
		log.Info("skipping tenant, sync already in flight")
		s.log.Append(Entry{
			TenantID:  tenant.ID,
			CatalogID: profile.CatalogID,
			Frequency: tenant.SyncFrequency,
			Status:    StatusSkipped,
			Message:   "sync already in flight",
			Timestamp: now,
		})
		return StatusSkipped
	}
	defer s.release(tenant.ID)

	return s.syncOne(ctx, tenant, *profile, now)
}

// syncOne runs the fetch/normalize/replace pipeline for one tenant.
// A 404 from either fetch is a soft skip, not a failure; writes that
// happened before a works 404 are kept (partial sync accepted).
func (s *Scheduler) syncOne(ctx context.Context, tenant model.Tenant, profile model.ResearcherProfile, now time.Time) Status {
	log := zap.L().With(
		zap.String("component", "profilesync"),
		zap.String("tenant_id", tenant.ID),
		zap.String("catalog_id", profile.CatalogID),
	)

	record := func(status Status, message string) Status {
		s.log.Append(Entry{
			TenantID:     tenant.ID,
			CatalogID:    profile.CatalogID,
			Frequency:    tenant.SyncFrequency,
			LastSyncedAt: profile.LastSyncedAt,
			Status:       status,
			Message:      message,
			Timestamp:    now,
		})
		return status
	}

	entity, err := s.catalog.FetchEntity(ctx, profile.CatalogID)
	if err != nil {
		if catalog.IsNotFound(err) {
			log.Warn("researcher not found in catalog")
			return record(StatusSkipped, "researcher not found in catalog")
		}
		log.Error("entity fetch failed", zap.Error(err))
		return record(StatusError, err.Error())
	}

	if err := s.store.UpsertCachedBlob(ctx, profile.CatalogID, model.BlobResearcher, entity.Raw); err != nil {
		log.Error("cache researcher blob failed", zap.Error(err))
		return record(StatusError, err.Error())
	}
	if err := s.store.ReplaceTopics(ctx, profile.CatalogID, normalize.Topics(profile.CatalogID, entity)); err != nil {
		log.Error("replace topics failed", zap.Error(err))
		return record(StatusError, err.Error())
	}
	if err := s.store.ReplaceAffiliations(ctx, profile.CatalogID, normalize.Affiliations(profile.CatalogID, entity)); err != nil {
		log.Error("replace affiliations failed", zap.Error(err))
		return record(StatusError, err.Error())
	}

	works, err := s.catalog.FetchWorksPaginated(ctx, profile.CatalogID)
	if err != nil {
		if catalog.IsNotFound(err) {
			// Topics and affiliations above are already committed; the
			// freshest available data wins over all-or-nothing.
			log.Warn("works not found in catalog, keeping entity data")
			return record(StatusSkipped, "works not found in catalog")
		}
		log.Error("works fetch failed", zap.Error(err))
		return record(StatusError, err.Error())
	}

	if err := s.store.ReplacePublications(ctx, profile.CatalogID, normalize.Publications(profile.CatalogID, works)); err != nil {
		log.Error("replace publications failed", zap.Error(err))
		return record(StatusError, err.Error())
	}
	worksBlob, err := json.Marshal(works)
	if err != nil {
		return record(StatusError, err.Error())
	}
	if err := s.store.UpsertCachedBlob(ctx, profile.CatalogID, model.BlobWorks, worksBlob); err != nil {
		log.Error("cache works blob failed", zap.Error(err))
		return record(StatusError, err.Error())
	}

	syncedAt := s.now()
	if err := s.store.UpdateTenantSyncedAt(ctx, tenant.ID, syncedAt); err != nil {
		log.Error("stamp tenant failed", zap.Error(err))
		return record(StatusError, err.Error())
	}
	if err := s.store.UpdateProfileSyncedAt(ctx, profile.ID, syncedAt); err != nil {
		log.Error("stamp profile failed", zap.Error(err))
		return record(StatusError, err.Error())
	}

	log.Info("tenant synced",
		zap.Int("works", len(works)),
		zap.Int("topics", len(entity.Topics)),
	)
	return record(StatusSuccess, fmt.Sprintf("synced %d works", len(works)))
}

// acquire marks a tenant sync as in flight. It returns false when a
// forced and a scheduled sync race for the same tenant; the loser skips
// rather than doubling up on the same rows.
func (s *Scheduler) acquire(tenantID string) bool {
	s.flightMu.Lock()
	defer s.flightMu.Unlock()
	if s.inFlight[tenantID] {
		return false
	}
	s.inFlight[tenantID] = true
	return true
}

func (s *Scheduler) release(tenantID string) {
	s.flightMu.Lock()
	defer s.flightMu.Unlock()
	delete(s.inFlight, tenantID)
}

func (s *Scheduler) sleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
