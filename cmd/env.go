package main

import (
	"context"
	"net/http"
	"time"

	"github.com/rotisserie/eris"

	"github.com/scholar-sites/sitesync/internal/catalog"
	"github.com/scholar-sites/sitesync/internal/profilesync"
	"github.com/scholar-sites/sitesync/internal/resolver"
	"github.com/scholar-sites/sitesync/internal/store"
)

// initStore opens the configured store backend.
func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		s, err := store.NewSQLite(cfg.Store.DatabaseURL)
		if err != nil {
			return nil, eris.Wrap(err, "init sqlite store")
		}
		return s, nil
	case "", "postgres":
		s, err := store.NewPostgres(ctx, cfg.Store.DatabaseURL, &store.PoolConfig{
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
		})
		if err != nil {
			return nil, eris.Wrap(err, "init postgres store")
		}
		return s, nil
	default:
		return nil, eris.Errorf("unknown store driver: %s", cfg.Store.Driver)
	}
}

// newCatalogClient builds the catalog client from config.
func newCatalogClient() catalog.Client {
	opts := []catalog.Option{
		catalog.WithRateLimit(cfg.Catalog.RatePerSec),
	}
	if cfg.Catalog.BaseURL != "" {
		opts = append(opts, catalog.WithBaseURL(cfg.Catalog.BaseURL))
	}
	if cfg.Catalog.UserAgent != "" {
		opts = append(opts, catalog.WithUserAgent(cfg.Catalog.UserAgent))
	}
	if cfg.Catalog.TimeoutSecs > 0 {
		opts = append(opts, catalog.WithHTTPClient(newHTTPClient(time.Duration(cfg.Catalog.TimeoutSecs)*time.Second)))
	}
	return catalog.NewClient(opts...)
}

func newHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
		},
	}
}

// newScheduler wires the store and catalog client into a scheduler.
func newScheduler(st store.Store) *profilesync.Scheduler {
	return profilesync.NewScheduler(st, newCatalogClient())
}

// newResolver wires the store into a hostname resolver.
func newResolver(st store.Store) *resolver.Resolver {
	return resolver.New(st, cfg.Resolver.MarketingHosts, cfg.Resolver.PreviewSuffixes)
}
